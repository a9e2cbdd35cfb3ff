package justice

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/auditor/internal/integrity"
	"github.com/ppiankov/auditor/internal/model"
)

// summary builds the executive summary from counts only, so the same
// verdict always reads the same
func (e *Engine) summary(out Output, in Input, hallucinated []string) string {
	var passed, failed []string
	var fallbackDims []string
	for _, c := range out.Criteria {
		if c.IsSynthetic() {
			continue
		}
		if c.Passed {
			passed = append(passed, c.DimensionName)
		} else {
			failed = append(failed, c.DimensionName)
		}
		if c.AutomatedFallback {
			fallbackDims = append(fallbackDims, c.DimensionName)
		}
	}

	lines := []string{
		fmt.Sprintf("Overall Score: %.2f/5.0", out.OverallScore),
		fmt.Sprintf("Dimensions Evaluated: %d | Passed: %d | Failed: %d", len(passed)+len(failed), len(passed), len(failed)),
	}
	if len(in.Dimensions) == 0 {
		lines = append(lines, "No rubric dimensions were loaded; nothing was scored.")
	}
	if len(failed) > 0 {
		lines = append(lines, "Critical Failures: "+strings.Join(failed, ", "))
	}
	if out.GlobalVeto {
		lines = append(lines, fmt.Sprintf("GLOBAL SECURITY VETO: a security-critical dimension hit the critical floor; overall score capped at %.1f.", e.cfg.GlobalVetoCap))
	}

	fallbackOps := 0
	for _, op := range in.Opinions {
		if op.IsAutomatedFallback {
			fallbackOps++
		}
	}
	switch {
	case len(in.Opinions) > 0 && fallbackOps == len(in.Opinions):
		lines = append(lines, "Note: all scores come from automated fallback opinions (LLM unavailable); full judicial review did not occur.")
	case len(fallbackDims) > 0:
		lines = append(lines, "Note: full judicial review did not occur for: "+strings.Join(fallbackDims, ", ")+" (automated fallback opinions only).")
	case fallbackOps > 0:
		lines = append(lines, fmt.Sprintf("Note: %d of %d opinions are automated fallbacks.", fallbackOps, len(in.Opinions)))
	}

	if len(hallucinated) > 0 {
		lines = append(lines, fmt.Sprintf("Hallucinated paths: %d (cited but not in repo).", len(hallucinated)))
	} else {
		lines = append(lines, "Evidence integrity: no hallucinated paths; cited files verified.")
	}
	lines = append(lines, fmt.Sprintf("Repo: %d files; %d paths cross-referenced.", in.ManifestSize, len(integrity.Dedup(in.VerifiedPaths))))

	return strings.Join(lines, "\n")
}

// remediationPlan lists the remediation of every failing result
func remediationPlan(results []model.CriterionResult) string {
	var lines []string
	for _, r := range results {
		if r.Passed || r.Remediation == "" {
			continue
		}
		lines = append(lines, "- "+r.Remediation)
	}
	if len(lines) == 0 {
		return "No remediation needed."
	}
	return strings.Join(lines, "\n")
}

// SkippedSummary is the executive summary of a run that collected no evidence
func SkippedSummary() string {
	return strings.Join([]string{
		"Audit skipped: no evidence collected.",
		"All detectives returned empty results, so the judicial stage was not invoked.",
		"Dimensions Evaluated: 0 | Passed: 0 | Failed: 0",
	}, "\n")
}

// Meta identifies the run a report belongs to
type Meta struct {
	RunID       string
	RepoURL     string
	GeneratedAt time.Time
}

// Assemble packages a synthesis output into the final report
func Assemble(meta Meta, in Input, out Output) *model.AuditReport {
	return &model.AuditReport{
		RunID:             meta.RunID,
		RepoURL:           meta.RepoURL,
		RepoName:          model.RepoNameFromURL(meta.RepoURL),
		GeneratedAt:       meta.GeneratedAt,
		OverallScore:      out.OverallScore,
		ExecutiveSummary:  out.ExecutiveSummary,
		Criteria:          nonNil(out.Criteria),
		RemediationPlan:   out.RemediationPlan,
		VerifiedPaths:     integrity.Dedup(in.VerifiedPaths),
		HallucinatedPaths: integrity.Dedup(in.HallucinatedPaths),
	}
}

// AssembleSkipped builds the minimal report of the skip branch
func AssembleSkipped(meta Meta, verified, hallucinated []string) *model.AuditReport {
	return &model.AuditReport{
		RunID:             meta.RunID,
		RepoURL:           meta.RepoURL,
		RepoName:          model.RepoNameFromURL(meta.RepoURL),
		GeneratedAt:       meta.GeneratedAt,
		ExecutiveSummary:  SkippedSummary(),
		Criteria:          []model.CriterionResult{},
		RemediationPlan:   "Re-run the audit once the repository and report are reachable.",
		VerifiedPaths:     integrity.Dedup(verified),
		HallucinatedPaths: integrity.Dedup(hallucinated),
		Skipped:           true,
	}
}

func nonNil(c []model.CriterionResult) []model.CriterionResult {
	if c == nil {
		return []model.CriterionResult{}
	}
	return c
}

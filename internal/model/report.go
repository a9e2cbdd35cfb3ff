package model

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// CriterionResult is the Chief Justice's final determination for one rubric dimension
type CriterionResult struct {
	DimensionID       string            `json:"dimension_id"`
	DimensionName     string            `json:"dimension_name"`
	FinalScore        int               `json:"final_score"` // 1-5, rounded
	Passed            bool              `json:"passed"`
	Security          bool              `json:"security,omitempty"`
	Variance          int               `json:"variance"`
	JudgeOpinions     []JudicialOpinion `json:"judge_opinions"`
	DissentSummary    string            `json:"dissent_summary,omitempty"` // Required when variance crosses the dissent threshold
	Remediation       string            `json:"remediation"`               // Required when the dimension fails
	AutomatedFallback bool              `json:"automated_fallback,omitempty"`
	AppliedRules      []string          `json:"applied_rules,omitempty"` // Identifiers of the synthesis rules that fired
}

// AuditReport is the terminal artifact of a run
type AuditReport struct {
	RunID             string            `json:"run_id,omitempty"`
	RepoURL           string            `json:"repo_url"`
	RepoName          string            `json:"repo_name"`
	GeneratedAt       time.Time         `json:"generated_at"`
	OverallScore      float64           `json:"overall_score"` // Weighted mean of final scores, 0 when nothing was scored
	ExecutiveSummary  string            `json:"executive_summary"`
	Criteria          []CriterionResult `json:"criteria"`
	RemediationPlan   string            `json:"remediation_plan"`
	VerifiedPaths     []string          `json:"verified_paths"`
	HallucinatedPaths []string          `json:"hallucinated_paths"`
	Skipped           bool              `json:"skipped,omitempty"` // Judicial stage skipped for lack of evidence
	Warnings          []string          `json:"warnings,omitempty"` // Degraded stages and merge conflicts

	Narrative *NarrativeSummary `json:"narrative,omitempty"` // Optional LLM rephrasing (separate, never affects score)
}

// NarrativeSummary is the optional LLM-polished executive summary.
// It is stored beside the deterministic summary and never replaces it
type NarrativeSummary struct {
	Enabled  bool     `json:"enabled"`
	Provider string   `json:"provider,omitempty"`
	Model    string   `json:"model,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// RepoNameFromURL extracts the repository name from a clone URL or local path
func RepoNameFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.Path
	} else if i := strings.LastIndex(raw, ":"); i > 0 && strings.Contains(raw[:i], "@") {
		// scp-like syntax: git@host:org/repo.git
		p = raw[i+1:]
	}
	p = strings.TrimRight(p, "/")
	name := path.Base(p)
	name = strings.TrimSuffix(name, ".git")
	if name == "." || name == "/" {
		return raw
	}
	return name
}

// GlobalVetoID identifies the synthetic result appended when a security
// dimension hits the critical floor
const GlobalVetoID = "global_security_veto"

// IsSynthetic reports whether the result was produced by a run-level rule
// rather than scored from opinions
func (c CriterionResult) IsSynthetic() bool {
	return c.DimensionID == GlobalVetoID
}

// Tally counts scored dimensions. Synthetic results are excluded
func (r *AuditReport) Tally() (passed, failed int, failedNames []string) {
	for _, c := range r.Criteria {
		if c.IsSynthetic() {
			continue
		}
		if c.Passed {
			passed++
		} else {
			failed++
			failedNames = append(failedNames, c.DimensionName)
		}
	}
	return passed, failed, failedNames
}

package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/auditor/internal/model"
)

const narrativeSystem = "You rewrite audit summaries for engineers. You never change numbers, verdicts or names, and you add no facts."

// Summarizer rephrases the deterministic executive summary. Its output is
// stored beside the report and never feeds any score
type Summarizer struct {
	provider Provider
	model    string
}

// NewSummarizer creates a summarizer over the first provider of the chain.
// A nil provider yields a disabled summarizer
func NewSummarizer(p Provider, model string) *Summarizer {
	return &Summarizer{provider: p, model: model}
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// Polish produces the narrative for report. Failures degrade to a summary
// carrying warnings; the returned error is reserved for a nil report
func (s *Summarizer) Polish(ctx context.Context, report *model.AuditReport) (*model.NarrativeSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}
	if report == nil {
		return nil, fmt.Errorf("polish: nil report")
	}

	out := &model.NarrativeSummary{Provider: s.provider.Name(), Model: s.model}
	if !s.provider.IsAvailable(ctx) {
		out.Warnings = append(out.Warnings, fmt.Sprintf("LLM provider %s is not available; narrative skipped.", out.Provider))
		return out, nil
	}
	out.Enabled = true

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System: narrativeSystem,
		Prompt: BuildNarrativePrompt(report),
		Model:  s.model,
	})
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("Narrative generation failed: %v", err))
		return out, nil
	}
	if resp.Model != "" {
		out.Model = resp.Model
	}

	if missing := VerifyNarrative(resp.Text, report); len(missing) > 0 {
		out.Warnings = append(out.Warnings, "Narrative rejected: it does not preserve "+strings.Join(missing, ", ")+".")
		return out, nil
	}

	passed, failed, _ := report.Tally()
	out.Summary = resp.Text
	out.Warnings = append(out.Warnings,
		fmt.Sprintf("Tokens used: %d", resp.TokensUsed),
		fmt.Sprintf("Verified facts: overall score %.2f, %d passed, %d failed", report.OverallScore, passed, failed))
	return out, nil
}

// BuildNarrativePrompt lists the facts the narrative must keep verbatim
func BuildNarrativePrompt(report *model.AuditReport) string {
	passed, failed, failedNames := report.Tally()

	var b strings.Builder
	b.WriteString("Rewrite the audit summary below as two short paragraphs for the repository's maintainers.\n\n")
	b.WriteString("CRITICAL RULES:\n")
	fmt.Fprintf(&b, "- Keep the overall score exactly as %.2f.\n", report.OverallScore)
	fmt.Fprintf(&b, "- State that %d dimensions passed and %d failed, using digits.\n", passed, failed)
	if len(failedNames) > 0 {
		fmt.Fprintf(&b, "- Name every failed dimension exactly: %s.\n", strings.Join(failedNames, "; "))
	}
	b.WriteString("- DO NOT add findings, file paths, or recommendations that are not listed here.\n")
	b.WriteString("- The scores were decided by deterministic rules; do not argue with them.\n\n")

	fmt.Fprintf(&b, "Repository: %s\n\n", report.RepoName)
	b.WriteString("Executive summary:\n")
	b.WriteString(report.ExecutiveSummary)
	b.WriteString("\n\nDimensions:\n")
	for _, c := range report.Criteria {
		if c.IsSynthetic() {
			continue
		}
		verdict := "PASS"
		if !c.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(&b, "- %s: %d/5 %s\n", c.DimensionName, c.FinalScore, verdict)
	}
	if report.RemediationPlan != "" {
		b.WriteString("\nRemediation plan:\n")
		b.WriteString(report.RemediationPlan)
		b.WriteString("\n")
	}
	return b.String()
}

// VerifyNarrative returns the facts of report that text fails to preserve:
// the overall score, the pass and fail counts, and each failed dimension name
func VerifyNarrative(text string, report *model.AuditReport) []string {
	var missing []string
	score := fmt.Sprintf("%.2f", report.OverallScore)
	if !strings.Contains(text, score) {
		missing = append(missing, "overall score "+score)
	}

	passed, failed, failedNames := report.Tally()
	if !hasNumber(text, passed) {
		missing = append(missing, fmt.Sprintf("pass count %d", passed))
	}
	if !hasNumber(text, failed) {
		missing = append(missing, fmt.Sprintf("fail count %d", failed))
	}
	lower := strings.ToLower(text)
	for _, name := range failedNames {
		if !strings.Contains(lower, strings.ToLower(name)) {
			missing = append(missing, "failed dimension "+strconv.Quote(name))
		}
	}
	return missing
}

// hasNumber matches n as a standalone integer, so "12" does not satisfy 2
// and the "3" of "3.50" does not count
func hasNumber(text string, n int) bool {
	re := regexp.MustCompile(`(^|[^\d.])` + strconv.Itoa(n) + `($|[^\d.]|\.$|\.\D)`)
	return re.MatchString(text)
}

// RenderSeparateMarkdown renders the narrative as its own document
func RenderSeparateMarkdown(summary *model.NarrativeSummary) string {
	if summary == nil || !summary.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Summary\n\n")
	b.WriteString("> **GENERATED CONTENT.** This text was written by a language model from the audit report.\n")
	b.WriteString("> Scores and verdicts were determined independently by deterministic rules and are not affected by it.\n\n")
	fmt.Fprintf(&b, "- **Provider:** %s\n", summary.Provider)
	if summary.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", summary.Model)
	}
	b.WriteString("\n## Summary\n\n")
	if summary.Summary == "" {
		b.WriteString("_No summary generated._\n")
	} else {
		b.WriteString(summary.Summary)
		b.WriteString("\n")
	}
	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range summary.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

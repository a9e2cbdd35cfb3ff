// Package report renders audit reports as JSON, Markdown and a short
// terminal summary
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/auditor/internal/llm"
	"github.com/ppiankov/auditor/internal/model"
)

// Renderer formats reports
type Renderer struct {
	out io.Writer // terminal summary target
}

// NewRenderer creates a renderer printing summaries to out (stdout when nil)
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out}
}

// JSON returns the indented JSON form of the report
func (r *Renderer) JSON(report *model.AuditReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderJSON writes the report as JSON to path
func (r *Renderer) RenderJSON(report *model.AuditReport, path string) error {
	data, err := r.JSON(report)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// RenderMarkdown writes the report as Markdown to path
func (r *Renderer) RenderMarkdown(report *model.AuditReport, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// RenderLLMMarkdown writes the narrative document. It is kept in its own
// file so generated text is never mistaken for the verdict
func (r *Renderer) RenderLLMMarkdown(report *model.AuditReport, path string) error {
	text := llm.RenderSeparateMarkdown(report.Narrative)
	if text == "" {
		return nil
	}
	return writeFile(path, []byte(text))
}

// Markdown renders the report: Executive Summary, Criterion Breakdown,
// Remediation Plan, then Evidence Integrity
func (r *Renderer) Markdown(report *model.AuditReport) string {
	var b strings.Builder

	title := report.RepoName
	if title == "" {
		title = report.RepoURL
	}
	fmt.Fprintf(&b, "# Audit Report: %s\n\n", orDash(title))
	if report.RepoURL != "" {
		fmt.Fprintf(&b, "- **Repository:** %s\n", report.RepoURL)
	}
	if report.RunID != "" {
		fmt.Fprintf(&b, "- **Run:** `%s`\n", report.RunID)
	}
	if !report.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- **Generated:** %s\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	passed, failed, _ := report.Tally()
	fmt.Fprintf(&b, "- **Overall score:** %.2f / 5\n", report.OverallScore)
	fmt.Fprintf(&b, "- **Dimensions:** %d passed, %d failed\n\n", passed, failed)

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(strings.TrimSpace(report.ExecutiveSummary))
	b.WriteString("\n\n")
	if report.Skipped {
		b.WriteString("> The judicial stage was skipped: no evidence was collected.\n\n")
	}

	b.WriteString("## Criterion Breakdown\n\n")
	if len(report.Criteria) == 0 {
		b.WriteString("_No criteria were scored._\n\n")
	}
	for _, c := range report.Criteria {
		writeCriterion(&b, c)
	}

	b.WriteString("## Remediation Plan\n\n")
	b.WriteString(orDash(strings.TrimSpace(report.RemediationPlan)))
	b.WriteString("\n\n")

	b.WriteString("## Evidence Integrity\n\n")
	fmt.Fprintf(&b, "- Verified paths: %d\n", len(report.VerifiedPaths))
	fmt.Fprintf(&b, "- Hallucinated paths: %d\n\n", len(report.HallucinatedPaths))
	if len(report.HallucinatedPaths) > 0 {
		b.WriteString("Paths cited by evidence but absent from the repository:\n\n")
		for _, p := range report.HallucinatedPaths {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	}

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if report.Narrative != nil && report.Narrative.Enabled {
		b.WriteString("---\n\n_An LLM-written narrative of this report is stored separately and does not affect any score._\n")
	}
	return b.String()
}

func writeCriterion(b *strings.Builder, c model.CriterionResult) {
	verdict := "FAIL"
	if c.Passed {
		verdict = "PASS"
	}
	fmt.Fprintf(b, "### %s (`%s`)\n\n", orDash(c.DimensionName), c.DimensionID)
	fmt.Fprintf(b, "**Score:** %d / 5 - **%s**", c.FinalScore, verdict)
	if c.Security {
		b.WriteString(" - security")
	}
	if c.AutomatedFallback {
		b.WriteString(" - automated fallback")
	}
	fmt.Fprintf(b, "\n\n**Variance:** %d\n\n", c.Variance)

	if len(c.AppliedRules) > 0 {
		fmt.Fprintf(b, "**Rules applied:** %s\n\n", strings.Join(c.AppliedRules, ", "))
	}

	if len(c.JudgeOpinions) > 0 {
		b.WriteString("| Judge | Score | Argument | Cited |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, op := range c.JudgeOpinions {
			judge := op.Judge.String()
			if op.IsAutomatedFallback {
				judge += " (fallback)"
			}
			fmt.Fprintf(b, "| %s | %d | %s | %s |\n",
				judge, op.Score, cell(op.Argument), cell(strings.Join(op.CitedEvidence, ", ")))
		}
		b.WriteString("\n")
	}

	if c.DissentSummary != "" {
		fmt.Fprintf(b, "**Dissent:** %s\n\n", c.DissentSummary)
	}
	if c.Remediation != "" {
		fmt.Fprintf(b, "**Remediation:** %s\n\n", c.Remediation)
	}
}

// RenderSummary prints a short verdict to the terminal
func (r *Renderer) RenderSummary(report *model.AuditReport) {
	passed, failed, failedNames := report.Tally()

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(r.out, "  Audit: %s\n", orDash(report.RepoName))
	fmt.Fprintln(r.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(r.out)
	if report.Skipped {
		fmt.Fprintln(r.out, "  Judicial stage skipped: no evidence collected")
	} else {
		fmt.Fprintf(r.out, "  Overall score:  %.2f / 5\n", report.OverallScore)
		fmt.Fprintf(r.out, "  Passed:         %d\n", passed)
		fmt.Fprintf(r.out, "  Failed:         %d\n", failed)
		if len(failedNames) > 0 {
			fmt.Fprintf(r.out, "  Failing:        %s\n", strings.Join(failedNames, ", "))
		}
	}
	fmt.Fprintf(r.out, "  Hallucinated:   %d path(s)\n", len(report.HallucinatedPaths))
	if len(report.Warnings) > 0 {
		fmt.Fprintf(r.out, "  Warnings:       %d\n", len(report.Warnings))
	}
	fmt.Fprintln(r.out)
}

// cell flattens text for a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/auditor/internal/model"
)

func sampleReport() *model.AuditReport {
	return &model.AuditReport{
		RunID:            "3f2a9c1d-7777-4444-8888-000000000000",
		RepoURL:          "https://github.com/acme/agents.git",
		RepoName:         "agents",
		GeneratedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		OverallScore:     3.5,
		ExecutiveSummary: "Overall Score: 3.50/5\nDimensions Evaluated: 2 | Passed: 1 | Failed: 1",
		Criteria: []model.CriterionResult{
			{
				DimensionID: "orchestration", DimensionName: "Graph Orchestration",
				FinalScore: 4, Passed: true, Variance: 1,
				JudgeOpinions: []model.JudicialOpinion{
					{Judge: model.JudgeProsecutor, CriterionID: "orchestration", Score: 3, Argument: "fan-out | fan-in present\nbut untested", CitedEvidence: []string{"ev-000000000001"}},
					{Judge: model.JudgeDefense, CriterionID: "orchestration", Score: 4, Argument: "solid", CitedEvidence: []string{}},
					{Judge: model.JudgeTechLead, CriterionID: "orchestration", Score: 4, Argument: "", CitedEvidence: []string{}, IsAutomatedFallback: true},
				},
			},
			{
				DimensionID: "safety", DimensionName: "Safe Tooling", Security: true,
				FinalScore: 2, Variance: 3, DissentSummary: "Prosecutor and Defense disagree on sandboxing.",
				Remediation: "Clone into a temporary directory.", AppliedRules: []string{"security_override"},
			},
		},
		RemediationPlan:   "- Safe Tooling: Clone into a temporary directory.",
		VerifiedPaths:     []string{"internal/graph/engine.go"},
		HallucinatedPaths: []string{"internal/graph/ghost.go"},
		Warnings:          []string{"tech_lead on orchestration: automated fallback"},
	}
}

func TestMarkdown_SectionOrder(t *testing.T) {
	md := NewRenderer(&bytes.Buffer{}).Markdown(sampleReport())

	sections := []string{"## Executive Summary", "## Criterion Breakdown", "## Remediation Plan", "## Evidence Integrity", "## Warnings"}
	last := -1
	for _, s := range sections {
		i := strings.Index(md, s)
		if i < 0 {
			t.Fatalf("missing section %q", s)
		}
		if i < last {
			t.Errorf("section %q out of order", s)
		}
		last = i
	}

	for _, want := range []string{
		"# Audit Report: agents",
		"**Score:** 4 / 5 - **PASS**",
		"**Score:** 2 / 5 - **FAIL** - security",
		"fan-out \\| fan-in present but untested",
		"TechLead (fallback)",
		"**Dissent:** Prosecutor and Defense disagree",
		"**Rules applied:** security_override",
		"- `internal/graph/ghost.go`",
		"1 passed, 1 failed",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestMarkdown_Skipped(t *testing.T) {
	r := &model.AuditReport{RepoURL: "https://example.com/x.git", RepoName: "x", ExecutiveSummary: "skipped", Skipped: true, Criteria: []model.CriterionResult{}}
	md := NewRenderer(&bytes.Buffer{}).Markdown(r)
	if !strings.Contains(md, "judicial stage was skipped") {
		t.Error("skipped notice missing")
	}
	if !strings.Contains(md, "_No criteria were scored._") {
		t.Error("empty breakdown notice missing")
	}
	if strings.Contains(md, "## Warnings") {
		t.Error("warnings section rendered without warnings")
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	want := sampleReport()
	data, err := NewRenderer(nil).JSON(want)
	if err != nil {
		t.Fatal(err)
	}
	var got model.AuditReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, &got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).RenderSummary(sampleReport())
	out := buf.String()
	for _, want := range []string{"Audit: agents", "3.50 / 5", "Failing:        Safe Tooling", "Hallucinated:   1 path(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	w := NewFileWriter(filepath.Join(dir, "out"), &buf, true)

	r := sampleReport()
	r.Narrative = &model.NarrativeSummary{Enabled: true, Provider: "openai", Summary: "A tidy summary."}
	if err := w.Write(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	written := w.Written()
	if len(written) != 1 {
		t.Fatalf("expected 1 report, got %d", len(written))
	}
	p := written[0]
	if filepath.Base(p.JSON) != "agents-3f2a9c1d.json" {
		t.Errorf("json path = %s", p.JSON)
	}
	for _, f := range []string{p.JSON, p.Markdown, p.LLM} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("expected %s: %v", f, err)
		}
	}
	llmDoc, _ := os.ReadFile(p.LLM)
	if !strings.Contains(string(llmDoc), "A tidy summary.") {
		t.Error("narrative file lacks the summary")
	}
	if !strings.Contains(buf.String(), "Audit: agents") {
		t.Error("summary not printed")
	}
}

func TestFileWriter_NoNarrative(t *testing.T) {
	w := NewFileWriter(t.TempDir(), &bytes.Buffer{}, false)
	if err := w.Write(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	if got := w.Written()[0].LLM; got != "" {
		t.Errorf("unexpected narrative file %s", got)
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		repo, run, want string
	}{
		{"agents", "3f2a9c1d-aaaa", "agents-3f2a9c1d"},
		{"", "", "audit"},
		{"my repo/../x", "ab", "my_repo_.._x-ab"},
		{"...", "r1", "audit-r1"},
	}
	for _, tt := range tests {
		got := BaseName(&model.AuditReport{RepoName: tt.repo, RunID: tt.run})
		if got != tt.want {
			t.Errorf("BaseName(%q, %q) = %q, want %q", tt.repo, tt.run, got, tt.want)
		}
	}
}

package llm

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/auditor/internal/model"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *CompletionResponse
	err       error
	calls     atomic.Int32
	lastReq   CompletionRequest
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.calls.Add(1)
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

func sampleReport() *model.AuditReport {
	return &model.AuditReport{
		RepoName:         "demo",
		OverallScore:     3.5,
		ExecutiveSummary: "Overall Score: 3.50/5.0",
		Criteria: []model.CriterionResult{
			{DimensionID: "a", DimensionName: "Graph Orchestration", FinalScore: 4, Passed: true},
			{DimensionID: "b", DimensionName: "Safe Tool Engineering", FinalScore: 2, Passed: false, Remediation: "sandbox git"},
			{DimensionID: "c", DimensionName: "Tests", FinalScore: 5, Passed: true},
		},
		RemediationPlan: "- sandbox git",
	}
}

func TestSummarizer_Disabled(t *testing.T) {
	s := NewSummarizer(nil, "")

	if s.IsEnabled() {
		t.Error("Expected summarizer to be disabled")
	}
	if s.ProviderName() != "" {
		t.Error("Expected empty provider name when disabled")
	}

	summary, err := s.Polish(context.Background(), sampleReport())
	if err != nil || summary != nil {
		t.Errorf("Expected nil, nil when disabled; got %v, %v", summary, err)
	}
}

func TestSummarizer_ProviderUnavailable(t *testing.T) {
	provider := &MockProvider{name: "test-provider", available: false}
	s := NewSummarizer(provider, "m")

	summary, err := s.Polish(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary == nil || summary.Enabled {
		t.Fatalf("Expected disabled summary, got %+v", summary)
	}
	if len(summary.Warnings) == 0 || !strings.Contains(summary.Warnings[0], "not available") {
		t.Errorf("Expected unavailability warning, got %v", summary.Warnings)
	}
	if provider.calls.Load() != 0 {
		t.Error("Complete must not be called when unavailable")
	}
}

func TestSummarizer_Success(t *testing.T) {
	provider := &MockProvider{
		name:      "test-provider",
		available: true,
		response: &CompletionResponse{
			Text:       "The repository scored 3.50 overall: 2 dimensions passed and 1 failed. Safe Tool Engineering needs a sandbox.",
			Model:      "test-model",
			TokensUsed: 150,
		},
	}
	s := NewSummarizer(provider, "test-model")

	summary, err := s.Polish(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !summary.Enabled || summary.Provider != "test-provider" || summary.Model != "test-model" {
		t.Errorf("Unexpected summary metadata: %+v", summary)
	}
	if !strings.HasPrefix(summary.Summary, "The repository scored 3.50") {
		t.Errorf("Unexpected summary text: %q", summary.Summary)
	}

	joined := strings.Join(summary.Warnings, "\n")
	for _, want := range []string{"Tokens used: 150", "Verified facts"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected note %q in %v", want, summary.Warnings)
		}
	}
	if !strings.Contains(provider.lastReq.Prompt, "Keep the overall score exactly as 3.50") {
		t.Errorf("prompt does not pin the score:\n%s", provider.lastReq.Prompt)
	}
}

func TestSummarizer_RejectsAlteredFacts(t *testing.T) {
	provider := &MockProvider{
		name:      "test-provider",
		available: true,
		response:  &CompletionResponse{Text: "A solid 4.00 overall with 3 passed dimensions and nothing failing."},
	}
	s := NewSummarizer(provider, "")

	summary, err := s.Polish(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.Summary != "" {
		t.Errorf("Altered narrative must be dropped, got %q", summary.Summary)
	}
	if len(summary.Warnings) != 1 || !strings.Contains(summary.Warnings[0], "Narrative rejected") {
		t.Errorf("Expected rejection warning, got %v", summary.Warnings)
	}
}

func TestSummarizer_ProviderError(t *testing.T) {
	provider := &MockProvider{name: "test-provider", available: true, err: errors.New("API rate limit exceeded")}
	s := NewSummarizer(provider, "")

	summary, err := s.Polish(context.Background(), sampleReport())
	if err != nil {
		t.Errorf("Expected no error (graceful degradation), got %v", err)
	}
	if summary == nil || !summary.Enabled {
		t.Fatalf("Expected enabled summary carrying the failure, got %+v", summary)
	}
	if !strings.Contains(strings.Join(summary.Warnings, " "), "failed: API rate limit") {
		t.Errorf("Expected warning to mention error: %v", summary.Warnings)
	}
}

func TestSummarizer_NilReport(t *testing.T) {
	s := NewSummarizer(&MockProvider{name: "p", available: true}, "")
	if _, err := s.Polish(context.Background(), nil); err == nil {
		t.Error("Expected error for nil report")
	}
}

func TestVerifyNarrative(t *testing.T) {
	report := sampleReport()
	tests := []struct {
		name        string
		text        string
		wantMissing int
	}{
		{"all facts", "Score 3.50. 2 passed, 1 failed: safe tool engineering.", 0},
		{"score rounded", "Score 3.5. 2 passed, 1 failed: Safe Tool Engineering.", 1},
		{"count hidden in score", "Score 3.50 with Safe Tool Engineering failing.", 2},
		{"count inside larger number", "Score 3.50, 12 passed, 11 failed, Safe Tool Engineering.", 2},
		{"missing failed name", "Score 3.50. 2 passed, 1 failed.", 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			missing := VerifyNarrative(tt.text, report)
			if len(missing) != tt.wantMissing {
				t.Errorf("missing = %v, want %d entries", missing, tt.wantMissing)
			}
		})
	}
}

func TestRenderSeparateMarkdown(t *testing.T) {
	if RenderSeparateMarkdown(nil) != "" {
		t.Error("Expected empty markdown when nil")
	}
	if RenderSeparateMarkdown(&model.NarrativeSummary{Enabled: false}) != "" {
		t.Error("Expected empty markdown when disabled")
	}

	md := RenderSeparateMarkdown(&model.NarrativeSummary{
		Enabled:  true,
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Summary:  "This is the generated summary content.",
		Warnings: []string{"Tokens used: 150", "Verified facts: overall score 3.50, 2 passed, 1 failed"},
	})
	for _, section := range []string{
		"# LLM Summary",
		"GENERATED CONTENT",
		"determined independently",
		"**Provider:** openai",
		"**Model:** gpt-4o-mini",
		"This is the generated summary content.",
		"## Notes",
		"Tokens used: 150",
	} {
		if !strings.Contains(md, section) {
			t.Errorf("Expected markdown to contain %q", section)
		}
	}

	empty := RenderSeparateMarkdown(&model.NarrativeSummary{Enabled: true, Provider: "p"})
	if !strings.Contains(empty, "No summary generated") {
		t.Error("Expected message about no summary")
	}
}

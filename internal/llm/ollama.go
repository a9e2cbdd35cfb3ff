package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/auditor/internal/logging"
)

// OllamaProvider runs judges on a local Ollama daemon
type OllamaProvider struct {
	api   *jsonAPI
	model string
	max   int
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`

	// only set on the final message
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

func ollamaErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error
}

// NewOllamaProvider creates a provider for baseURL (default localhost:11434)
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	// local models answer slower than hosted APIs
	return &OllamaProvider{
		api:   newJSONAPI(config, "http://localhost:11434", 60*time.Second, nil, ollamaErrorMessage),
		model: config.Model,
		max:   config.MaxTokens,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks that the daemon lists its models
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	status, err := p.api.get(ctx, "/api/tags")
	if err == nil && status == http.StatusOK {
		return true
	}
	logging.New("llm").Warn("ollama availability check failed", "base_url", p.api.baseURL, "status", status, "error", err)
	return false
}

// Complete generates one non-streaming answer
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := pick(req.Model, p.model)
	if model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	apiReq := ollamaRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Options: ollamaOptions{
			Temperature: defaultTemperature,
			NumPredict:  pickInt(req.MaxTokens, p.max, defaultMaxTokens),
		},
	}
	if req.JSON {
		apiReq.Format = "json"
	}

	var resp ollamaResponse
	if err := p.api.post(ctx, "/api/generate", apiReq, &resp); err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}

	text := strings.TrimSpace(resp.Response)
	tokens := resp.PromptEvalCount + resp.EvalCount
	if tokens == 0 {
		// some models report no counts; estimate at four bytes a token
		tokens = (len(req.Prompt) + len(text)) / 4
	}

	return &CompletionResponse{
		Text:       text,
		Model:      pick(resp.Model, model),
		TokensUsed: tokens,
	}, nil
}

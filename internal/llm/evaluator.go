package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/auditor/internal/cache"
	"github.com/ppiankov/auditor/internal/judge"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/worker"
)

// ErrCitationLeak marks an opinion that cites evidence the judges were never shown
var ErrCitationLeak = errors.New("CITATION LEAK")

// EvaluatorConfig wires the optional collaborators of an OpinionEvaluator
type EvaluatorConfig struct {
	StrictEvidence bool
	Cache          cache.Cache     // nil disables caching
	CacheTTL       time.Duration   // zero uses the cache default
	Limiter        *worker.Limiter // keyed by provider name; nil disables limiting
	MaxTokens      int
}

// OpinionEvaluator adapts a Provider to judge.Evaluator
type OpinionEvaluator struct {
	provider Provider
	cfg      EvaluatorConfig
}

// NewOpinionEvaluator creates an evaluator over p
func NewOpinionEvaluator(p Provider, cfg EvaluatorConfig) *OpinionEvaluator {
	return &OpinionEvaluator{provider: p, cfg: cfg}
}

// NewEvaluators wraps every provider of the chain, preserving order
func NewEvaluators(providers []Provider, cfg EvaluatorConfig) []judge.Evaluator {
	out := make([]judge.Evaluator, 0, len(providers))
	for _, p := range providers {
		out = append(out, NewOpinionEvaluator(p, cfg))
	}
	return out
}

// Name implements judge.Evaluator
func (e *OpinionEvaluator) Name() string {
	return e.provider.Name()
}

// rawOpinion is the JSON shape requested from the model. Scores and
// citations arrive as numbers or strings depending on the model
type rawOpinion struct {
	Score         json.Number       `json:"score"`
	Argument      string            `json:"argument"`
	CitedEvidence []json.RawMessage `json:"cited_evidence"`
}

// Evaluate implements judge.Evaluator
func (e *OpinionEvaluator) Evaluate(ctx context.Context, req judge.Request) (*model.JudicialOpinion, error) {
	system, prompt := judge.BuildPrompt(req)
	key := cache.CacheKey(e.provider.Name(), system, prompt)

	if e.cfg.Cache != nil {
		if cached, ok := e.cfg.Cache.Get(key); ok {
			if op, err := e.accept(string(cached), req); err == nil {
				return op, nil
			}
			_ = e.cfg.Cache.Delete(key)
		}
	}

	if err := e.cfg.Limiter.Wait(ctx, e.provider.Name()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := e.provider.Complete(ctx, CompletionRequest{
		System:    system,
		Prompt:    prompt,
		MaxTokens: e.cfg.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, err
	}

	op, err := e.accept(resp.Text, req)
	if err != nil {
		return nil, err
	}

	// Only validated answers are cached
	if e.cfg.Cache != nil {
		_ = e.cfg.Cache.Set(key, []byte(resp.Text), e.cfg.CacheTTL)
	}
	return op, nil
}

// accept parses a response and enforces the citation allowlist
func (e *OpinionEvaluator) accept(text string, req judge.Request) (*model.JudicialOpinion, error) {
	op, err := ParseOpinion(text)
	if err != nil {
		return nil, err
	}
	op.Judge = req.Role
	op.CriterionID = req.Dimension.ID

	if e.cfg.StrictEvidence {
		if err := checkCitations(op.CitedEvidence, req.Evidence); err != nil {
			return nil, err
		}
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return op, nil
}

// ParseOpinion extracts the opinion object from a model response. Code
// fences and prose around the object are tolerated
func ParseOpinion(text string) (*model.JudicialOpinion, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var raw rawOpinion
	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode opinion: %w", err)
	}

	score, err := parseScore(raw.Score)
	if err != nil {
		return nil, err
	}

	cites := make([]string, 0, len(raw.CitedEvidence))
	for _, c := range raw.CitedEvidence {
		s, err := citationString(c)
		if err != nil {
			return nil, err
		}
		if s != "" {
			cites = append(cites, s)
		}
	}

	return &model.JudicialOpinion{
		Score:         score,
		Argument:      strings.TrimSpace(raw.Argument),
		CitedEvidence: cites,
	}, nil
}

func parseScore(n json.Number) (int, error) {
	if n == "" {
		return 0, errors.New("opinion has no score")
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("score %q is not a number", n)
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("score %v is not an integer", f)
	}
	return int(f), nil
}

func citationString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("citation %s is neither string nor number", string(raw))
}

func extractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return text[start : end+1], nil
}

// checkCitations rejects citations that resolve to no evidence record.
// IDs are canonical; positional indices ("3" or "#3") are accepted as
// older judges emitted them
func checkCitations(cites []string, evidence []model.Evidence) error {
	ids := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		ids[ev.ID] = true
	}
	for _, c := range cites {
		if ids[c] {
			continue
		}
		if i, err := strconv.Atoi(strings.TrimPrefix(c, "#")); err == nil && i >= 0 && i < len(evidence) {
			continue
		}
		return fmt.Errorf("%w: opinion cited unknown evidence %q", ErrCitationLeak, c)
	}
	return nil
}

// Package judge runs one judicial persona over every rubric dimension.
// Opinions come from an ordered chain of evaluators; when the whole chain
// fails for a dimension the judge files a neutral placeholder instead of
// blocking the run
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
)

// Request is everything an evaluator needs for one opinion
type Request struct {
	Role      model.JudgeRole
	Dimension model.Dimension
	Evidence  []model.Evidence
}

// Evaluator produces a single opinion. Implementations wrap an LLM
// provider; tests use fakes
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, req Request) (*model.JudicialOpinion, error)
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, req Request) (*model.JudicialOpinion, error)

// Name implements Evaluator
func (f EvaluatorFunc) Name() string { return "func" }

// Evaluate implements Evaluator
func (f EvaluatorFunc) Evaluate(ctx context.Context, req Request) (*model.JudicialOpinion, error) {
	return f(ctx, req)
}

// ErrNoEvaluators is recorded on fallback opinions when the chain is empty
var ErrNoEvaluators = errors.New("no evaluators configured")

const (
	defaultMaxAttempts = 2
	defaultBackoff     = time.Second
	maxBackoff         = 30 * time.Second
)

// Judge evaluates every dimension from one role's perspective
type Judge struct {
	Role         model.JudgeRole
	Evaluators   []Evaluator // Priority order
	MaxAttempts  int         // Per evaluator, per dimension
	Backoff      time.Duration
	NeutralScore int
	Logger       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a judge configured from the judges config section
func New(role model.JudgeRole, evaluators []Evaluator, cfg model.JudgesConfig) *Judge {
	return &Judge{
		Role:        role,
		Evaluators:  evaluators,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		Logger:      logging.New("judge").With("role", role.String()),
	}
}

// Result is one run of a judge across the rubric
type Result struct {
	Opinions  []model.JudicialOpinion
	Fallbacks int
	Warnings  []string
}

// EvaluateAll files exactly one opinion per dimension, in rubric order
func (j *Judge) EvaluateAll(ctx context.Context, dims []model.Dimension, evidence []model.Evidence) Result {
	res := Result{Opinions: make([]model.JudicialOpinion, 0, len(dims))}
	for _, dim := range dims {
		op, err := j.evaluate(ctx, Request{Role: j.Role, Dimension: dim, Evidence: evidence})
		if err != nil {
			res.Fallbacks++
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s on %s: automated fallback (%v)", j.Role, dim.ID, err))
			op = j.Fallback(dim, err)
		}
		res.Opinions = append(res.Opinions, op)
	}
	return res
}

// evaluate walks the evaluator chain with bounded retries
func (j *Judge) evaluate(ctx context.Context, req Request) (model.JudicialOpinion, error) {
	if len(j.Evaluators) == 0 {
		return model.JudicialOpinion{}, ErrNoEvaluators
	}

	attempts := j.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var lastErr error
	for _, ev := range j.Evaluators {
		for attempt := 1; attempt <= attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return model.JudicialOpinion{}, err
			}

			op, err := j.try(ctx, ev, req)
			if err == nil {
				return op, nil
			}
			lastErr = fmt.Errorf("%s: %w", ev.Name(), err)
			j.logger().Warn("evaluation failed",
				"criterion", req.Dimension.ID,
				"evaluator", ev.Name(),
				"attempt", attempt,
				"error", err)

			if attempt < attempts {
				if err := j.wait(ctx, j.backoff(attempt)); err != nil {
					return model.JudicialOpinion{}, err
				}
			}
		}
	}
	return model.JudicialOpinion{}, lastErr
}

// try runs one evaluator and normalises the identity of its answer
func (j *Judge) try(ctx context.Context, ev Evaluator, req Request) (model.JudicialOpinion, error) {
	op, err := ev.Evaluate(ctx, req)
	if err != nil {
		return model.JudicialOpinion{}, err
	}
	if op == nil {
		return model.JudicialOpinion{}, errors.New("evaluator returned no opinion")
	}

	out := *op
	out.Judge = j.Role
	out.CriterionID = req.Dimension.ID
	out.IsAutomatedFallback = false
	if out.CitedEvidence == nil {
		out.CitedEvidence = []string{}
	}
	if err := out.Validate(); err != nil {
		return model.JudicialOpinion{}, fmt.Errorf("invalid opinion: %w", err)
	}
	return out, nil
}

// Fallback is the neutral opinion filed when no evaluator succeeded
func (j *Judge) Fallback(dim model.Dimension, cause error) model.JudicialOpinion {
	score := j.NeutralScore
	if score < model.MinScore || score > model.MaxScore {
		score = 3
	}
	return model.JudicialOpinion{
		Judge:       j.Role,
		CriterionID: dim.ID,
		Score:       score,
		Argument: fmt.Sprintf("Automated fallback: no evaluator produced a valid opinion for %s (%v). Neutral score assigned; full judicial review did not occur.",
			dim.Name, cause),
		CitedEvidence:       []string{},
		IsAutomatedFallback: true,
	}
}

// backoff doubles per attempt: Backoff, 2*Backoff, 4*Backoff, capped
func (j *Judge) backoff(attempt int) time.Duration {
	base := j.Backoff
	if base <= 0 {
		base = defaultBackoff
	}
	d := base << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (j *Judge) wait(ctx context.Context, d time.Duration) error {
	if j.sleep != nil {
		return j.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (j *Judge) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return logging.Discard()
}

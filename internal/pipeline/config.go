package pipeline

import (
	"log/slog"
	"strings"

	"github.com/ppiankov/auditor/internal/cache"
	"github.com/ppiankov/auditor/internal/detective"
	"github.com/ppiankov/auditor/internal/llm"
	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/util"
	"github.com/ppiankov/auditor/internal/worker"
)

// fetchRate is the per-host request rate for report documents
const fetchRate = 2.0

// FromConfig assembles the production collaborators for cfg: the provider
// chain with its cache and limiter, the three detectives and the optional
// narrative summarizer. Providers that fail to construct are logged and
// left out, so a run without any provider still completes on fallbacks
func FromConfig(cfg *model.Config, logger *slog.Logger) Options {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if logger == nil {
		logger = logging.New("pipeline")
	}

	providers, err := llm.NewProviders(cfg.LLM, cfg.HTTP)
	if err != nil {
		logger.Warn("some LLM providers are unavailable", "error", err)
	}
	if len(providers) == 0 {
		logger.Warn("no LLM provider configured, judges will file neutral fallback opinions")
	}

	evaluators := llm.NewEvaluators(providers, llm.EvaluatorConfig{
		StrictEvidence: cfg.LLM.StrictEvidence,
		Cache:          cache.FromConfig(cfg.Cache),
		Limiter:        worker.NewLimiter(cfg.LLM.RateLimit, cfg.LLM.Burst),
	})

	fetcher := util.NewFetcher(cfg.HTTP, worker.NewLimiter(fetchRate, 1))
	maxBytes := cfg.Repo.MaxFileBytes

	opts := Options{
		Config: cfg,
		Detectives: []detective.Detective{
			detective.NewRepoInvestigator(cfg.Repo),
			detective.NewDocAnalyst(fetcher, maxBytes),
			detective.NewVisionInspector(fetcher, maxBytes),
		},
		Evaluators: evaluators,
		Logger:     logger,
	}

	if cfg.LLM.Narrative && len(providers) > 0 {
		opts.Summarizer = llm.NewSummarizer(providers[0], providerModel(cfg.LLM.Providers, providers[0].Name()))
	}
	return opts
}

// providerModel finds the configured model of the first provider named name
func providerModel(pcs []model.ProviderConfig, name string) string {
	for _, pc := range pcs {
		n := strings.ToLower(pc.Name)
		if n == "claude" {
			n = "anthropic"
		}
		if n == name {
			return pc.Model
		}
	}
	return ""
}

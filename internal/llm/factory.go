package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/auditor/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		// No provider configured - return nil (LLM disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// NewProviders builds the ordered provider chain. Providers that cannot be
// constructed are left out and reported in the joined error; the rest are
// still returned so the judges can degrade instead of abort
func NewProviders(cfg model.LLMConfig, httpCfg model.HTTPConfig) ([]Provider, error) {
	var providers []Provider
	var errs []error
	for _, pc := range cfg.Providers {
		p, err := NewProvider(ConfigFromModel(pc, httpCfg))
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %q: %w", pc.Name, err))
			continue
		}
		if p != nil {
			providers = append(providers, p)
		}
	}
	return providers, errors.Join(errs...)
}

// ConfigFromModel converts one configured provider to llm.Config.
// Credentials missing from the config file are taken from the environment
func ConfigFromModel(pc model.ProviderConfig, httpCfg model.HTTPConfig) Config {
	cfg := Config{
		Provider:   pc.Name,
		Model:      pc.Model,
		APIKey:     pc.APIKey,
		BaseURL:    pc.BaseURL,
		Timeout:    pc.Timeout,
		MaxTokens:  pc.MaxTokens,
		HTTPProxy:  httpCfg.HTTPProxy,
		HTTPSProxy: httpCfg.HTTPSProxy,
		NoProxy:    httpCfg.NoProxy,
	}

	switch strings.ToLower(pc.Name) {
	case "openai":
		cfg.APIKey = pick(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
	case "anthropic", "claude":
		cfg.APIKey = pick(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	case "ollama":
		cfg.BaseURL = pick(cfg.BaseURL, os.Getenv("OLLAMA_BASE_URL"))
	}
	return cfg
}

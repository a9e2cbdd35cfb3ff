package model

import "time"

// Config is the complete application configuration.
// Field tags serve viper (mapstructure) and `auditor config show|init` (yaml)
type Config struct {
	Rubric      RubricConfig      `mapstructure:"rubric" yaml:"rubric"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Judges      JudgesConfig      `mapstructure:"judges" yaml:"judges"`
	Synthesis   SynthesisConfig   `mapstructure:"synthesis" yaml:"synthesis"`
	Repo        RepoConfig        `mapstructure:"repo" yaml:"repo"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// RubricConfig locates the rubric document. Empty path means the embedded default
type RubricConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LLMConfig configures the ordered provider chain used by the judges
type LLMConfig struct {
	Providers      []ProviderConfig `mapstructure:"providers" yaml:"providers"`
	StrictEvidence bool             `mapstructure:"strict_evidence" yaml:"strict_evidence"` // Reject opinions citing unknown evidence IDs
	Narrative      bool             `mapstructure:"narrative" yaml:"narrative"`             // Rephrase the executive summary with the first provider
	RateLimit      float64          `mapstructure:"rate_limit" yaml:"rate_limit"`           // Requests per second per provider
	Burst          int              `mapstructure:"burst" yaml:"burst"`
}

// ProviderConfig describes a single LLM provider in the chain
type ProviderConfig struct {
	Name      string `mapstructure:"name" yaml:"name"` // openai, anthropic, ollama
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout"` // seconds
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// JudgesConfig bounds the judge stage's attempts per dimension
type JudgesConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// SynthesisConfig holds the Chief Justice thresholds. They are configuration,
// not constants, because rule sets have varied between rubric revisions
type SynthesisConfig struct {
	NeutralScore         int     `mapstructure:"neutral_score" yaml:"neutral_score"`
	DissentVariance      int     `mapstructure:"dissent_variance" yaml:"dissent_variance"`
	ReEvaluationVariance int     `mapstructure:"re_evaluation_variance" yaml:"re_evaluation_variance"`
	TieBreakVariance     int     `mapstructure:"tie_break_variance" yaml:"tie_break_variance"`
	TechLeadWeight       float64 `mapstructure:"techlead_weight" yaml:"techlead_weight"`
	HeavyTechLeadWeight  float64 `mapstructure:"heavy_techlead_weight" yaml:"heavy_techlead_weight"`
	CriticalFloor        int     `mapstructure:"critical_floor" yaml:"critical_floor"`
	SecurityLowScore     int     `mapstructure:"security_low_score" yaml:"security_low_score"`
	SecurityCap          float64 `mapstructure:"security_cap" yaml:"security_cap"`
	HallucinationCap     float64 `mapstructure:"hallucination_cap" yaml:"hallucination_cap"`
	GradeInflationLow    int     `mapstructure:"grade_inflation_low" yaml:"grade_inflation_low"`
	PassThreshold        int     `mapstructure:"pass_threshold" yaml:"pass_threshold"`
	GlobalVetoCap        float64 `mapstructure:"global_veto_cap" yaml:"global_veto_cap"`
}

// RepoConfig controls cloning of the audited repository
type RepoConfig struct {
	CloneDepth   int           `mapstructure:"clone_depth" yaml:"clone_depth"`
	CloneTimeout time.Duration `mapstructure:"clone_timeout" yaml:"clone_timeout"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxFileBytes int64         `mapstructure:"max_file_bytes" yaml:"max_file_bytes"`
	KeepClone    bool          `mapstructure:"keep_clone" yaml:"keep_clone"`
}

// HTTPConfig is used when a report document is fetched by URL
type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	HTTPProxy     string        `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy    string        `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy       string        `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// CacheConfig configures the LLM response cache
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	MemoryTTL time.Duration `mapstructure:"memory_ttl" yaml:"memory_ttl"`
	DiskTTL   time.Duration `mapstructure:"disk_ttl" yaml:"disk_ttl"`
}

// ConcurrencyConfig bounds parallel work
type ConcurrencyConfig struct {
	MaxParallelStages int `mapstructure:"max_parallel_stages" yaml:"max_parallel_stages"` // Per superstep, 0 = unbounded
	BatchWorkers      int `mapstructure:"batch_workers" yaml:"batch_workers"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	CheckpointDir string `mapstructure:"checkpoint_dir" yaml:"checkpoint_dir,omitempty"`
	Verbose       bool   `mapstructure:"verbose" yaml:"verbose"`
}

// LoggingConfig selects slog level and handler
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultSynthesisConfig returns the thresholds of the current rule set
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		NeutralScore:         3,
		DissentVariance:      2,
		ReEvaluationVariance: 2,
		TieBreakVariance:     3,
		TechLeadWeight:       1.0,
		HeavyTechLeadWeight:  2.0,
		CriticalFloor:        1,
		SecurityLowScore:     2,
		SecurityCap:          2.0,
		HallucinationCap:     2.0,
		GradeInflationLow:    2,
		PassThreshold:        3,
		GlobalVetoCap:        2.0,
	}
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			StrictEvidence: true,
			RateLimit:      2,
			Burst:          2,
		},
		Judges: JudgesConfig{
			MaxAttempts: 2,
			Backoff:     time.Second,
		},
		Synthesis: DefaultSynthesisConfig(),
		Repo: RepoConfig{
			CloneDepth:   200,
			CloneTimeout: 2 * time.Minute,
			HistoryLimit: 200,
			MaxFileBytes: 512 * 1024,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Auditor/0.1 (+https://github.com/ppiankov/auditor)",
			MaxBodyBytes:  5_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".auditor/cache",
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			MaxParallelStages: 0,
			BatchWorkers:      2,
		},
		Output: OutputConfig{
			Dir: "audit",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

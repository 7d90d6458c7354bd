// Package config loads the service configuration from an optional YAML file
// with PARTSEARCH_* environment overrides on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the search service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	LLM      LLMConfig      `yaml:"llm"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Graph    GraphConfig    `yaml:"graph"`
	Stages   StagesConfig   `yaml:"stages"`
	Caching  CachingConfig  `yaml:"caching"`
	Limits   LimitsConfig   `yaml:"limits"`
	Breakers BreakersConfig `yaml:"circuit_breakers"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ThrottleRPS     float64       `yaml:"throttle_rps"`
	ThrottleBurst   int           `yaml:"throttle_burst"`
	CORSOrigin      string        `yaml:"cors_origin"`
}

// IndexConfig holds the text index connection settings.
type IndexConfig struct {
	URL        string        `yaml:"url"`
	PartsIndex string        `yaml:"parts_index"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig holds the query-interpretation model settings.
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig holds the L2 cache settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig holds the analytics event bus settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// GraphConfig holds the category graph store settings.
type GraphConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// StagesConfig toggles the five pipeline stages. Timeouts are advisory:
// a stage is skipped when the request deadline cannot cover its budget.
type StagesConfig struct {
	Understanding StageConfig `yaml:"understanding"`
	Retrieval     StageConfig `yaml:"retrieval"`
	Filtering     StageConfig `yaml:"filtering"`
	Ranking       StageConfig `yaml:"ranking"`
	Explanation   StageConfig `yaml:"explanation"`
}

// StageConfig holds one stage's toggle and time budget.
type StageConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// CachingConfig holds the response cache settings.
type CachingConfig struct {
	Enabled          bool          `yaml:"enabled"`
	SearchResultsTTL time.Duration `yaml:"search_results_ttl"`
}

// LimitsConfig holds the API paging bounds.
type LimitsConfig struct {
	MaxResults int `yaml:"max_results"`
	PageSize   int `yaml:"page_size"`
}

// BreakersConfig holds the three circuit breaker tunings.
type BreakersConfig struct {
	LLM   BreakerConfig `yaml:"llm"`
	Index BreakerConfig `yaml:"index"`
	DB    BreakerConfig `yaml:"db"`
}

// BreakerConfig holds one circuit breaker's thresholds.
type BreakerConfig struct {
	Threshold        int           `yaml:"threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// PipelineConfig holds the stage tunables.
type PipelineConfig struct {
	MaxCandidates     int     `yaml:"max_candidates"`
	MinScore          float64 `yaml:"min_score"`
	MaxResults        int     `yaml:"max_results"`
	LLMSkipConfidence float64 `yaml:"llm_skip_confidence"`
	CacheConfidence   float64 `yaml:"cache_confidence"`
	DefaultProfile    string  `yaml:"default_profile"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			ThrottleRPS:     50,
			ThrottleBurst:   100,
			CORSOrigin:      "*",
		},
		Index: IndexConfig{
			URL:        "http://localhost:9200",
			PartsIndex: "parts",
			Timeout:    5 * time.Second,
		},
		LLM: LLMConfig{
			Enabled:     true,
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-2.0-flash",
			Temperature: 0.1,
			MaxTokens:   1024,
			Timeout:     3 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Graph: GraphConfig{
			Enabled:  false,
			URL:      "neo4j://localhost:7687",
			User:     "neo4j",
			Password: "password",
		},
		Stages: StagesConfig{
			Understanding: StageConfig{Enabled: true, Timeout: 3 * time.Second},
			Retrieval:     StageConfig{Enabled: true, Timeout: 5 * time.Second},
			Filtering:     StageConfig{Enabled: true},
			Ranking:       StageConfig{Enabled: true},
			Explanation:   StageConfig{Enabled: true},
		},
		Caching: CachingConfig{
			Enabled:          true,
			SearchResultsTTL: 5 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxResults: 100,
			PageSize:   20,
		},
		Breakers: BreakersConfig{
			LLM:   BreakerConfig{Threshold: 3, Timeout: 30 * time.Second, SuccessThreshold: 2},
			Index: BreakerConfig{Threshold: 5, Timeout: 20 * time.Second, SuccessThreshold: 2},
			DB:    BreakerConfig{Threshold: 5, Timeout: 15 * time.Second, SuccessThreshold: 2},
		},
		Pipeline: PipelineConfig{
			MaxCandidates:     500,
			MinScore:          0.3,
			MaxResults:        200,
			LLMSkipConfidence: 0.6,
			CacheConfidence:   0.5,
			DefaultProfile:    "control",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads cfg from an optional YAML file, then applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Index.URL == "" {
		return fmt.Errorf("index url is required")
	}
	if c.Index.PartsIndex == "" {
		return fmt.Errorf("parts index name is required")
	}
	if c.Pipeline.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be positive")
	}
	if c.Pipeline.MinScore < 0 || c.Pipeline.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0, 1]")
	}
	if c.Pipeline.MaxResults < 1 || c.Pipeline.MaxResults > c.Pipeline.MaxCandidates {
		return fmt.Errorf("max_results must be in [1, max_candidates]")
	}
	if c.Pipeline.LLMSkipConfidence < 0 || c.Pipeline.LLMSkipConfidence > 1 {
		return fmt.Errorf("llm_skip_confidence must be in [0, 1]")
	}
	if c.Pipeline.CacheConfidence < 0 || c.Pipeline.CacheConfidence > 1 {
		return fmt.Errorf("cache_confidence must be in [0, 1]")
	}
	switch c.Pipeline.DefaultProfile {
	case "control", "relevance_heavy", "quality_heavy", "engagement_heavy":
	default:
		return fmt.Errorf("unknown ranking profile %q", c.Pipeline.DefaultProfile)
	}
	if c.Limits.PageSize < 1 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.Limits.MaxResults < c.Limits.PageSize {
		return fmt.Errorf("limits.max_results must be at least page_size")
	}
	for name, b := range map[string]BreakerConfig{
		"llm": c.Breakers.LLM, "index": c.Breakers.Index, "db": c.Breakers.DB,
	} {
		if b.Threshold < 1 || b.SuccessThreshold < 1 || b.Timeout <= 0 {
			return fmt.Errorf("circuit_breakers.%s: threshold, success_threshold and timeout must be positive", name)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := envOr("PARTSEARCH_PORT", ""); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := envOr("PARTSEARCH_INDEX_URL", ""); v != "" {
		cfg.Index.URL = v
	}
	if v := envOr("PARTSEARCH_PARTS_INDEX", ""); v != "" {
		cfg.Index.PartsIndex = v
	}
	if v := envOr("PARTSEARCH_GEMINI_API_KEY", ""); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
	}
	if v := envOr("PARTSEARCH_LLM_URL", ""); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := envOr("PARTSEARCH_LLM_MODEL", ""); v != "" {
		cfg.LLM.Model = v
	}
	if v := envOr("PARTSEARCH_REDIS_ADDR", ""); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := envOr("PARTSEARCH_REDIS_PASSWORD", ""); v != "" {
		cfg.Redis.Password = v
	}
	if v := envOr("PARTSEARCH_NATS_URL", ""); v != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = v
	}
	if v := envOr("PARTSEARCH_NEO4J_URL", ""); v != "" {
		cfg.Graph.Enabled = true
		cfg.Graph.URL = v
	}
	if v := envOr("PARTSEARCH_NEO4J_USER", ""); v != "" {
		cfg.Graph.User = v
	}
	if v := envOr("PARTSEARCH_NEO4J_PASS", ""); v != "" {
		cfg.Graph.Password = v
	}
	if v := envOr("PARTSEARCH_RANK_PROFILE", ""); v != "" {
		cfg.Pipeline.DefaultProfile = v
	}
	if v := envOr("PARTSEARCH_LOG_LEVEL", ""); v != "" {
		cfg.Logging.Level = v
	}
	if v := envOr("PARTSEARCH_CORS_ORIGIN", ""); v != "" {
		cfg.Server.CORSOrigin = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package config holds all plcaudit configuration: YAML file with
// environment overrides, the way an operator deploys it next to the
// PLC project exports.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all plcaudit configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Remote analysis service
	LLM LLMConfig `yaml:"llm"`

	// Document sharding
	Sharding ShardingConfig `yaml:"sharding"`

	// Parallel dispatch
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Finding fusion
	Analysis AnalysisConfig `yaml:"analysis"`

	// Shard-result cache
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the remote analysis service client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // deepseek, openai (any OpenAI-compatible endpoint)
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ShardingConfig bounds the size of document shards.
type ShardingConfig struct {
	MaxShardLines int `yaml:"max_shard_lines"`
	MinShardLines int `yaml:"min_shard_lines"`
	OverlapLines  int `yaml:"overlap_lines"`

	// ContextSummaryLimit truncates context-block text to this many bytes
	// when injected into a shard as read-only context.
	ContextSummaryLimit int `yaml:"context_summary_limit"`
}

// DispatchConfig configures the bounded-concurrency dispatcher.
type DispatchConfig struct {
	MaxWorkers    int    `yaml:"max_workers"`
	BatchSize     int    `yaml:"batch_size"`
	RetryTimes    int    `yaml:"retry_times"`
	RetryDelay    string `yaml:"retry_delay"`
	WorkerTimeout string `yaml:"worker_timeout"` // per-batch deadline
	BatchPause    string `yaml:"batch_pause"`    // delay between batches
}

// AnalysisConfig configures finding fusion.
type AnalysisConfig struct {
	AnalysisType        string  `yaml:"analysis_type"` // alarm, safety, logic
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// CacheConfig configures the SQLite shard-result cache.
type CacheConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // empty disables file logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "plcaudit",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:    "deepseek",
			Model:       "deepseek-reasoner",
			BaseURL:     "https://api.deepseek.com/v1",
			Timeout:     "300s",
			MaxTokens:   32000,
			Temperature: 0.1,
		},

		Sharding: ShardingConfig{
			MaxShardLines:       1500,
			MinShardLines:       800,
			OverlapLines:        100,
			ContextSummaryLimit: 200,
		},

		Dispatch: DispatchConfig{
			MaxWorkers:    20,
			BatchSize:     16,
			RetryTimes:    3,
			RetryDelay:    "2s",
			WorkerTimeout: "600s",
			BatchPause:    "2s",
		},

		Analysis: AnalysisConfig{
			AnalysisType:        "alarm",
			ConfidenceThreshold: 0.7,
			SimilarityThreshold: 0.75,
		},

		Cache: CacheConfig{
			Enabled:      true,
			DatabasePath: "data/plcaudit.db",
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "deepseek"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if url := os.Getenv("PLCAUDIT_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("PLCAUDIT_DB"); path != "" {
		c.Cache.DatabasePath = path
	}
}

// GetLLMTimeout returns the request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetRetryDelay returns the retry delay as a duration.
func (c *Config) GetRetryDelay() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.RetryDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetWorkerTimeout returns the per-batch deadline as a duration.
func (c *Config) GetWorkerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.WorkerTimeout)
	if err != nil {
		return 600 * time.Second
	}
	return d
}

// GetBatchPause returns the inter-batch delay as a duration.
func (c *Config) GetBatchPause() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.BatchPause)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ValidAnalysisTypes lists the supported analysis intents.
var ValidAnalysisTypes = []string{"alarm", "safety", "logic"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set DEEPSEEK_API_KEY or OPENAI_API_KEY)")
	}

	if c.Sharding.MaxShardLines <= c.Sharding.MinShardLines {
		return fmt.Errorf("max_shard_lines (%d) must be greater than min_shard_lines (%d)",
			c.Sharding.MaxShardLines, c.Sharding.MinShardLines)
	}
	if c.Sharding.OverlapLines < 0 {
		return fmt.Errorf("overlap_lines must not be negative")
	}

	if c.Dispatch.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive")
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Dispatch.RetryTimes < 0 {
		return fmt.Errorf("retry_times must not be negative")
	}

	valid := false
	for _, t := range ValidAnalysisTypes {
		if c.Analysis.AnalysisType == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid analysis type: %s (valid: %v)", c.Analysis.AnalysisType, ValidAnalysisTypes)
	}

	if c.Analysis.SimilarityThreshold < 0 || c.Analysis.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1]")
	}

	return nil
}

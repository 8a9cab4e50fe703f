package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "plcaudit" {
		t.Errorf("expected Name=plcaudit, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "deepseek" {
		t.Errorf("expected Provider=deepseek, got %s", cfg.LLM.Provider)
	}
	if cfg.Sharding.MaxShardLines != 1500 {
		t.Errorf("expected MaxShardLines=1500, got %d", cfg.Sharding.MaxShardLines)
	}
	if cfg.Dispatch.MaxWorkers != 20 {
		t.Errorf("expected MaxWorkers=20, got %d", cfg.Dispatch.MaxWorkers)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Sharding.MaxShardLines = 2000
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-test", loaded.LLM.APIKey)
	require.Equal(t, 2000, loaded.Sharding.MaxShardLines)
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Sharding, cfg.Sharding)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "env-key")
	t.Setenv("PLCAUDIT_DB", "/tmp/cache.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected APIKey=env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Cache.DatabasePath != "/tmp/cache.db" {
		t.Errorf("expected DatabasePath=/tmp/cache.db, got %s", cfg.Cache.DatabasePath)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing API key")
	}

	cfg.LLM.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	cfg.Sharding.MinShardLines = cfg.Sharding.MaxShardLines
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for shard line band")
	}
	cfg.Sharding.MinShardLines = 800

	cfg.Analysis.AnalysisType = "vibes"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for analysis type")
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GetLLMTimeout() == 0 {
		t.Error("GetLLMTimeout should return non-zero duration")
	}
	if cfg.GetWorkerTimeout() == 0 {
		t.Error("GetWorkerTimeout should return non-zero duration")
	}

	// Garbage values fall back to defaults rather than zero.
	cfg.Dispatch.RetryDelay = "banana"
	if cfg.GetRetryDelay() == 0 {
		t.Error("GetRetryDelay should fall back on parse error")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, filepath.Join(".testmend", "patterns", "learned.json"), cfg.Store.Path)
	assert.Equal(t, 5, cfg.Healing.MaxAttempts)
	assert.Equal(t, 3, cfg.Healing.SameErrorThreshold)
	assert.Equal(t, 0.7, cfg.Matching.FuzzyThreshold)
	assert.Equal(t, "npx", cfg.Runner.Command)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"healing": {"enabled": true, "max_attempts": 2, "cooldown": "90s"},
		"runner": {"command": "pnpm", "args": ["exec", "playwright", "test"]}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Healing.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.GetCooldown())
	assert.Equal(t, "pnpm", cfg.Runner.Command)

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.9, cfg.Promotion.MinConfidence)
	assert.Equal(t, "5s", cfg.Store.CacheTTL)
}

func TestLoadMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Healing.MaxAttempts = 7
	cfg.Healing.AllowedFixes = []string{"timeout-increase"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.CacheTTL = "not-a-duration"
	cfg.Store.LockStale = ""
	cfg.Store.LockMaxWait = "-3s"
	cfg.Healing.Cooldown = "0s"
	cfg.Runner.Timeout = "2m"

	assert.Equal(t, 5*time.Second, cfg.GetCacheTTL())
	assert.Equal(t, 30*time.Second, cfg.GetLockStale())
	assert.Equal(t, 5*time.Second, cfg.GetLockMaxWait())
	assert.Equal(t, 5*time.Minute, cfg.GetCooldown())
	assert.Equal(t, 2*time.Minute, cfg.GetRunnerTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.Healing.MaxAttempts = 0 }},
		{"fuzzy threshold above one", func(c *Config) { c.Matching.FuzzyThreshold = 1.5 }},
		{"negative min confidence", func(c *Config) { c.Matching.MinConfidence = -0.1 }},
		{"degradation above one", func(c *Config) { c.Healing.DegradationThreshold = 2 }},
		{"empty runner command", func(c *Config) { c.Runner.Command = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("repo", ".testmend", "config.json"), Path("repo"))
}

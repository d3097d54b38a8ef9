// Package config holds the tool configuration loaded from
// .testmend/config.json, with documented defaults for every knob.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WorkspaceDir is the dot-directory holding all tool state.
const WorkspaceDir = ".testmend"

// Config holds all testmend configuration.
type Config struct {
	// Store configures the learned pattern store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Matching configures pattern match thresholds.
	Matching MatchingConfig `json:"matching" yaml:"matching"`

	// Healing configures the bounded repair loop.
	Healing HealingConfig `json:"healing" yaml:"healing"`

	// Promotion configures promotion analysis thresholds.
	Promotion PromotionConfig `json:"promotion" yaml:"promotion"`

	// Runner configures the test runner invoked by verify.
	Runner RunnerConfig `json:"runner" yaml:"runner"`

	// Logging configures category debug logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// StoreConfig configures the pattern store paths and timings.
type StoreConfig struct {
	// Path to the learned pattern document (default .testmend/patterns/learned.json).
	Path string `json:"path" yaml:"path"`

	// SeedsPath to the discovered-pattern packs (default .testmend/patterns/discovered.yaml).
	SeedsPath string `json:"seeds_path" yaml:"seeds_path"`

	// CacheTTL for the in-memory document cache (default 5s).
	CacheTTL string `json:"cache_ttl" yaml:"cache_ttl"`

	// LockStale is the age after which a sidecar lock is taken over (default 30s).
	LockStale string `json:"lock_stale" yaml:"lock_stale"`

	// LockMaxWait bounds how long a writer waits for the lock (default 5s).
	LockMaxWait string `json:"lock_max_wait" yaml:"lock_max_wait"`

	// PruneMaxAgeDays is the unused-pattern age for pruning (default 60).
	PruneMaxAgeDays int `json:"prune_max_age_days" yaml:"prune_max_age_days"`

	// PruneMaxConfidence is the confidence ceiling for pruning (default 0.3).
	PruneMaxConfidence float64 `json:"prune_max_confidence" yaml:"prune_max_confidence"`
}

// MatchingConfig configures match thresholds.
type MatchingConfig struct {
	// MinConfidence filters learned patterns before matching (default 0.5).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	// FuzzyThreshold is the minimum similarity for a fuzzy match (default 0.7).
	FuzzyThreshold float64 `json:"fuzzy_threshold" yaml:"fuzzy_threshold"`
}

// HealingConfig configures the repair loop.
type HealingConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	MaxAttempts int  `json:"max_attempts" yaml:"max_attempts"`

	// AllowedFixes is an allow-list of fix type names; empty allows all safe fixes.
	AllowedFixes []string `json:"allowed_fixes" yaml:"allowed_fixes"`
	// ForbiddenFixes extends the built-in forbidden set.
	ForbiddenFixes []string `json:"forbidden_fixes" yaml:"forbidden_fixes"`

	// SameErrorThreshold opens the breaker after N identical errors (default 3).
	SameErrorThreshold int `json:"same_error_threshold" yaml:"same_error_threshold"`
	// ErrorHistorySize bounds the breaker's error ring (default 10).
	ErrorHistorySize int `json:"error_history_size" yaml:"error_history_size"`
	// DegradationThreshold opens the breaker when this fraction of attempts
	// made things worse (default 0.5).
	DegradationThreshold float64 `json:"degradation_threshold" yaml:"degradation_threshold"`
	// MaxTokens is the session token budget; 0 means unbounded.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// Cooldown before an open breaker closes again (default 5m).
	Cooldown string `json:"cooldown" yaml:"cooldown"`

	// Parallel bounds concurrent sessions in batch healing (default 4).
	Parallel int `json:"parallel" yaml:"parallel"`
}

// PromotionConfig configures promotion analysis.
type PromotionConfig struct {
	MinConfidence   float64 `json:"min_confidence" yaml:"min_confidence"`
	MinSuccessCount int     `json:"min_success_count" yaml:"min_success_count"`
	MinJourneys     int     `json:"min_journeys" yaml:"min_journeys"`
	MaxFailures     int     `json:"max_failures" yaml:"max_failures"`
	MinSuccessRate  float64 `json:"min_success_rate" yaml:"min_success_rate"`
}

// RunnerConfig configures the verify command.
type RunnerConfig struct {
	// Command is the runner binary (default "npx").
	Command string `json:"command" yaml:"command"`
	// Args precede the test file (default playwright JSON-reporter invocation).
	Args []string `json:"args" yaml:"args"`
	// Dir is the working directory; empty inherits the process directory.
	Dir string `json:"dir" yaml:"dir"`
	// Timeout per verify run (default 5m).
	Timeout string `json:"timeout" yaml:"timeout"`
}

// LoggingConfig configures category debug logging. Mirrors the shape the
// logging package reads directly so one file drives both.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Level      string          `json:"level" yaml:"level"`
	JSONFormat bool            `json:"json_format" yaml:"json_format"`
	Categories map[string]bool `json:"categories" yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:               filepath.Join(WorkspaceDir, "patterns", "learned.json"),
			SeedsPath:          filepath.Join(WorkspaceDir, "patterns", "discovered.yaml"),
			CacheTTL:           "5s",
			LockStale:          "30s",
			LockMaxWait:        "5s",
			PruneMaxAgeDays:    60,
			PruneMaxConfidence: 0.3,
		},
		Matching: MatchingConfig{
			MinConfidence:  0.5,
			FuzzyThreshold: 0.7,
		},
		Healing: HealingConfig{
			Enabled:              true,
			MaxAttempts:          5,
			SameErrorThreshold:   3,
			ErrorHistorySize:     10,
			DegradationThreshold: 0.5,
			MaxTokens:            0,
			Cooldown:             "5m",
			Parallel:             4,
		},
		Promotion: PromotionConfig{
			MinConfidence:   0.9,
			MinSuccessCount: 5,
			MinJourneys:     2,
			MaxFailures:     2,
			MinSuccessRate:  0.85,
		},
		Runner: RunnerConfig{
			Command: "npx",
			Args:    []string{"playwright", "test", "--reporter=json"},
			Timeout: "5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location inside a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, WorkspaceDir, "config.json")
}

// Load loads configuration from a JSON file, returning defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetCacheTTL returns the store cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Store.CacheTTL, 5*time.Second)
}

// GetLockStale returns the lock staleness age as a duration.
func (c *Config) GetLockStale() time.Duration {
	return parseDuration(c.Store.LockStale, 30*time.Second)
}

// GetLockMaxWait returns the lock wait bound as a duration.
func (c *Config) GetLockMaxWait() time.Duration {
	return parseDuration(c.Store.LockMaxWait, 5*time.Second)
}

// GetCooldown returns the breaker cooldown as a duration.
func (c *Config) GetCooldown() time.Duration {
	return parseDuration(c.Healing.Cooldown, 5*time.Minute)
}

// GetRunnerTimeout returns the per-verify timeout as a duration.
func (c *Config) GetRunnerTimeout() time.Duration {
	return parseDuration(c.Runner.Timeout, 5*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Healing.MaxAttempts < 1 {
		return fmt.Errorf("healing.max_attempts must be at least 1, got %d", c.Healing.MaxAttempts)
	}
	if c.Matching.FuzzyThreshold < 0 || c.Matching.FuzzyThreshold > 1 {
		return fmt.Errorf("matching.fuzzy_threshold must be in [0,1], got %v", c.Matching.FuzzyThreshold)
	}
	if c.Matching.MinConfidence < 0 || c.Matching.MinConfidence > 1 {
		return fmt.Errorf("matching.min_confidence must be in [0,1], got %v", c.Matching.MinConfidence)
	}
	if c.Healing.DegradationThreshold < 0 || c.Healing.DegradationThreshold > 1 {
		return fmt.Errorf("healing.degradation_threshold must be in [0,1], got %v", c.Healing.DegradationThreshold)
	}
	if c.Runner.Command == "" {
		return fmt.Errorf("runner.command must not be empty")
	}
	return nil
}

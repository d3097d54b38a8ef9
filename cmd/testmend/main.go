// testmend keeps generated end-to-end tests alive: it maps natural-language
// steps to UI actions through a reinforced pattern store, repairs failing
// tests with a bounded healing loop, and promotes battle-tested patterns
// into static library definitions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"testmend/internal/config"
	"testmend/internal/logging"
	"testmend/internal/patterns"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testmend",
	Short: "testmend - maintenance engine for generated e2e tests",
	Long: `testmend is the maintenance engine for generated end-to-end tests.

It learns which natural-language steps map to which UI actions, reinforces
those mappings from healing outcomes (Wilson-scored confidence), repairs
failing tests through a bounded loop of safe fixes, and promotes proven
patterns into static library definitions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			workspace = "."
		}
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(config.Path(workspace))
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// openStore builds the pattern store from the loaded configuration.
func openStore() *patterns.Store {
	return patterns.NewStore(storePath(), patterns.StoreOptions{
		CacheTTL:    cfg.GetCacheTTL(),
		LockStale:   cfg.GetLockStale(),
		LockMaxWait: cfg.GetLockMaxWait(),
	})
}

// openMatcher builds a matcher over the store plus the seeded discovered
// patterns, when a seed pack exists.
func openMatcher(store *patterns.Store) (*patterns.Matcher, error) {
	seeds, err := patterns.LoadSeeds(resolvePath(cfg.Store.SeedsPath))
	if err != nil {
		return nil, err
	}
	return patterns.NewMatcher(store, seeds), nil
}

func storePath() string {
	return resolvePath(cfg.Store.Path)
}

func sessionsDir() string {
	return resolvePath(config.WorkspaceDir + "/sessions")
}

// resolvePath anchors a config-relative path at the workspace root.
func resolvePath(p string) string {
	if workspace == "" || p == "" || os.IsPathSeparator(p[0]) {
		return p
	}
	return workspace + string(os.PathSeparator) + p
}

// matchOptions converts the config thresholds to match options.
func matchOptions() patterns.MatchOptions {
	opts := patterns.DefaultMatchOptions()
	opts.MinConfidence = cfg.Matching.MinConfidence
	opts.MinSimilarity = cfg.Matching.FuzzyThreshold
	return opts
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: current directory)")

	rootCmd.AddCommand(healCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

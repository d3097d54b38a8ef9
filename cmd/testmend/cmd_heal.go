package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"testmend/internal/classify"
	"testmend/internal/healing"
)

var (
	healMaxAttempts int
	healParallel    int
	healDryRun      bool
)

// healCmd runs the bounded healing loop over one or more test files.
var healCmd = &cobra.Command{
	Use:   "heal [test-file]...",
	Short: "Run the bounded healing loop over failing test files",
	Long: `Verifies each test file and, when it fails, repairs it through a bounded
loop of safe fixes: classify the failure, apply the next candidate fix,
re-verify. A per-session circuit breaker stops repetition, runaway cost, and
degradation; every attempt is journaled under ` + "`.testmend/sessions/`" + `.

Each file is an independent session; sessions run concurrently up to
--parallel. Pattern store writes serialize through the store's advisory
lock.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHeal,
}

func init() {
	healCmd.Flags().IntVar(&healMaxAttempts, "max-attempts", 0, "override the configured attempt budget")
	healCmd.Flags().IntVar(&healParallel, "parallel", 0, "override the configured session concurrency")
	healCmd.Flags().BoolVar(&healDryRun, "dry-run", false, "report what would be healed without touching any file")
}

// healingConfig converts the file configuration into the loop's config,
// applying command-line overrides.
func healingConfig() healing.Config {
	hc := healing.Config{
		Enabled:              cfg.Healing.Enabled,
		MaxAttempts:          cfg.Healing.MaxAttempts,
		SameErrorThreshold:   cfg.Healing.SameErrorThreshold,
		ErrorHistorySize:     cfg.Healing.ErrorHistorySize,
		DegradationThreshold: cfg.Healing.DegradationThreshold,
		MaxTokens:            cfg.Healing.MaxTokens,
		Cooldown:             cfg.GetCooldown(),
	}
	for _, f := range cfg.Healing.AllowedFixes {
		hc.AllowedFixes = append(hc.AllowedFixes, healing.FixType(f))
	}
	for _, f := range cfg.Healing.ForbiddenFixes {
		hc.ForbiddenFixes = append(hc.ForbiddenFixes, healing.FixType(f))
	}
	if healMaxAttempts > 0 {
		hc.MaxAttempts = healMaxAttempts
	}
	return hc
}

func runHeal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore()
	verifier := &healing.ExecVerifier{
		Command: cfg.Runner.Command,
		Args:    cfg.Runner.Args,
		Dir:     cfg.Runner.Dir,
	}
	controller := healing.NewController(
		verifier,
		healing.NewStrategyApplier(),
		healing.ClassifierFunc(classify.ClassifyReport),
		store,
	)
	hc := healingConfig()

	if healDryRun {
		return healDryRunPass(ctx, verifier, args)
	}

	parallel := cfg.Healing.Parallel
	if healParallel > 0 {
		parallel = healParallel
	}
	if parallel < 1 {
		parallel = 1
	}

	var mu sync.Mutex
	outcomes := make(map[string]*healing.Outcome, len(args))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, file := range args {
		file := file
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, cfg.GetRunnerTimeout())
			defer cancel()

			outcome, err := controller.Heal(vctx, healing.Options{
				TestFile:    file,
				SessionsDir: sessionsDir(),
				Config:      hc,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			mu.Lock()
			outcomes[file] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, file := range args {
		printOutcome(file, outcomes[file])
	}
	return nil
}

// healDryRunPass verifies each file and reports what healing would do,
// without applying any fix.
func healDryRunPass(ctx context.Context, verifier healing.Verifier, files []string) error {
	for _, file := range files {
		vctx, cancel := context.WithTimeout(ctx, cfg.GetRunnerTimeout())
		result, err := verifier.Verify(vctx, file)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if result.Passed() {
			fmt.Printf("%s: passing, nothing to heal\n", file)
			continue
		}

		cls := classify.ClassifyReport(result.FirstFailureMessage())
		canHeal, reason := healing.EvaluateHealing(cls, healingConfig())
		if !canHeal {
			fmt.Printf("%s: failing, not healable (%s)\n", file, reason)
			continue
		}
		next := healing.GetNextFix(cls, nil, healingConfig())
		if next == nil {
			fmt.Printf("%s: failing (%s), no fix candidates permitted by configuration\n", file, cls.Category)
			continue
		}
		fmt.Printf("%s: failing (%s), would try fix %s\n", file, cls.Category, next.Fix)
	}
	return nil
}

// printOutcome renders one session result. Non-healable and exhausted
// sessions are reported, not treated as command failures.
func printOutcome(file string, o *healing.Outcome) {
	logger.Info("healing session finished",
		zap.String("file", file),
		zap.String("status", string(o.Status)),
		zap.Int("attempts", o.Attempts))

	switch o.Status {
	case healing.StatusHealed:
		if o.Attempts == 0 {
			fmt.Printf("%s: HEALED (already passing)\n", file)
		} else {
			fmt.Printf("%s: HEALED after %d attempt(s) via %s\n", file, o.Attempts, o.AppliedFix)
		}
	default:
		fmt.Printf("%s: %s after %d attempt(s)\n", file, o.Status, o.Attempts)
		if o.Recommendation != "" {
			fmt.Printf("  recommendation: %s\n", o.Recommendation)
		}
		if o.LogPath != "" {
			fmt.Printf("  journal: %s\n", o.LogPath)
		}
	}
}

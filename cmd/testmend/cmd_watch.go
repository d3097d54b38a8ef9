package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"testmend/internal/classify"
	"testmend/internal/healing"
	"testmend/internal/logging"
)

var watchDebounce time.Duration

// watchCmd heals generated tests as they change on disk.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and heal generated tests as they change",
	Long: `Watches the directory for changes to test files (*.spec.ts, *.spec.js,
*.test.ts, *.test.js) and runs a healing session for each changed file.
Rapid successive writes to the same file are debounced. Runs until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a changed file is healed")
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range []string{".spec.ts", ".spec.js", ".test.ts", ".test.js"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	store := openStore()
	controller := healing.NewController(
		&healing.ExecVerifier{Command: cfg.Runner.Command, Args: cfg.Runner.Args, Dir: cfg.Runner.Dir},
		healing.NewStrategyApplier(),
		healing.ClassifierFunc(classify.ClassifyReport),
		store,
	)
	hc := healingConfig()

	logging.Watch("Watching %s for test changes", dir)
	fmt.Printf("watching %s (debounce %s), ctrl-c to stop\n", dir, watchDebounce)

	// One debounce timer per file; the callback heals after the quiet period.
	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	var wg sync.WaitGroup

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Reset(watchDebounce)
			return
		}
		pending[path] = time.AfterFunc(watchDebounce, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()

			wg.Add(1)
			defer wg.Done()
			healWatched(ctx, controller, hc, path)
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			mu.Unlock()
			wg.Wait()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isTestFile(event.Name) {
				continue
			}
			logging.WatchDebug("Change detected: %s (%s)", event.Name, event.Op)
			schedule(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func healWatched(ctx context.Context, controller *healing.Controller, hc healing.Config, path string) {
	if ctx.Err() != nil {
		return
	}
	vctx, cancel := context.WithTimeout(ctx, cfg.GetRunnerTimeout())
	defer cancel()

	outcome, err := controller.Heal(vctx, healing.Options{
		TestFile:    path,
		SessionsDir: sessionsDir(),
		Config:      hc,
	})
	if err != nil {
		logger.Warn("healing failed", zap.String("file", path), zap.Error(err))
		fmt.Printf("%s: healing error: %v\n", path, err)
		return
	}
	printOutcome(path, outcome)
}

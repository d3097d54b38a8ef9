package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"testmend/internal/patterns"
)

var (
	pruneMaxAgeDays    int
	pruneMaxConfidence float64
)

// patternsCmd inspects and maintains the learned store.
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain the learned pattern store",
}

var patternsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := openStore().Stats()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns, highest confidence first",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := openStore().Load()
		if err != nil {
			return err
		}
		if len(doc.Patterns) == 0 {
			fmt.Println("no learned patterns")
			return nil
		}

		sorted := append([]patterns.LearnedPattern(nil), doc.Patterns...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Confidence > sorted[j].Confidence
		})

		for _, p := range sorted {
			marker := " "
			if p.PromotedToCore {
				marker = "*"
			}
			fmt.Printf("%s %.3f  %-10s %-40q  %d/%d  %s\n",
				marker, p.Confidence, p.Primitive.Type, p.OriginalText,
				p.SuccessCount, p.SuccessCount+p.FailCount, p.ID)
		}
		fmt.Printf("\n%d pattern(s), * = promoted\n", len(sorted))
		return nil
	},
}

var patternsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stale low-confidence patterns",
	Long: `Removes patterns that are old, unused, low-confidence, and have never
succeeded. Promoted patterns are never pruned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := patterns.PruneOptions{
			MaxAge:        time.Duration(cfg.Store.PruneMaxAgeDays) * 24 * time.Hour,
			MaxConfidence: cfg.Store.PruneMaxConfidence,
		}
		if pruneMaxAgeDays > 0 {
			opts.MaxAge = time.Duration(pruneMaxAgeDays) * 24 * time.Hour
		}
		if cmd.Flags().Changed("max-confidence") {
			opts.MaxConfidence = pruneMaxConfidence
		}

		removed, err := openStore().Prune(opts)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d pattern(s)\n", removed)
		return nil
	},
}

func init() {
	patternsPruneCmd.Flags().IntVar(&pruneMaxAgeDays, "max-age-days", 0, "prune patterns unused for this many days (default from config)")
	patternsPruneCmd.Flags().Float64Var(&pruneMaxConfidence, "max-confidence", 0, "prune patterns at or below this confidence (default from config)")

	patternsCmd.AddCommand(patternsStatsCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsPruneCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	matchMinConfidence float64
	matchMinSimilarity float64
	matchNoFuzzy       bool
)

// matchCmd resolves a step text against the pattern store.
var matchCmd = &cobra.Command{
	Use:   "match [step text]",
	Short: "Resolve a natural-language step to its best pattern match",
	Long: `Looks the step text up in the learned store and the seeded discovered
patterns, exact match before fuzzy. Prints the matched action as JSON, or
reports that no pattern matched (exit 0 either way; the caller's fallback
is a static library lookup).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().Float64Var(&matchMinConfidence, "min-confidence", 0, "minimum learned-pattern confidence (default from config)")
	matchCmd.Flags().Float64Var(&matchMinSimilarity, "min-similarity", 0, "minimum fuzzy similarity (default from config)")
	matchCmd.Flags().BoolVar(&matchNoFuzzy, "no-fuzzy", false, "exact matches only")
}

func runMatch(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	store := openStore()
	matcher, err := openMatcher(store)
	if err != nil {
		return err
	}

	opts := matchOptions()
	if cmd.Flags().Changed("min-confidence") {
		opts.MinConfidence = matchMinConfidence
	}
	if cmd.Flags().Changed("min-similarity") {
		opts.MinSimilarity = matchMinSimilarity
	}
	opts.UseFuzzy = !matchNoFuzzy

	match, err := matcher.MatchPattern(text, opts)
	if err != nil {
		return err
	}
	if match == nil {
		fmt.Printf("no pattern matched %q\n", text)
		return nil
	}

	fmt.Printf("matched %s pattern %s (confidence %.3f, similarity %.3f)\n",
		match.Source, match.PatternID, match.Confidence, match.Similarity)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(match.Primitive)
}

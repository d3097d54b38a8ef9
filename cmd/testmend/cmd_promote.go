package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"testmend/internal/promote"
)

var (
	promoteMinConfidence float64
	promoteDryRun        bool
	promoteJSON          bool
)

// promoteCmd analyzes the store for promotion candidates.
var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote battle-tested patterns into static library definitions",
	Long: `Evaluates every unpromoted learned pattern against the promotion criteria
(confidence, success count, distinct journeys, failure ceiling, success
rate). Promotable patterns are emitted as library definitions and flagged in
the store; near-promotion patterns are reported with an estimate of the
successes they still need.`,
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().Float64Var(&promoteMinConfidence, "min-confidence", 0, "override the confidence criterion")
	promoteCmd.Flags().BoolVar(&promoteDryRun, "dry-run", false, "report candidates without flagging them in the store")
	promoteCmd.Flags().BoolVar(&promoteJSON, "json", false, "emit the full report as JSON")
}

func runPromote(cmd *cobra.Command, args []string) error {
	criteria := promote.Criteria{
		MinConfidence:     cfg.Promotion.MinConfidence,
		MinSuccessCount:   cfg.Promotion.MinSuccessCount,
		MinSourceJourneys: cfg.Promotion.MinJourneys,
		MaxFailCount:      cfg.Promotion.MaxFailures,
		MinSuccessRate:    cfg.Promotion.MinSuccessRate,
	}
	if cmd.Flags().Changed("min-confidence") {
		criteria.MinConfidence = promoteMinConfidence
	}

	analyzer := promote.NewAnalyzer(openStore(), criteria)
	report, err := analyzer.Analyze(!promoteDryRun)
	if err != nil {
		return err
	}

	if promoteJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, def := range report.Promotable {
		fmt.Printf("promotable: %s\n", def.Name)
		fmt.Printf("  match:      %s\n", def.MatchExpression)
		fmt.Printf("  action:     %s\n", def.ActionType)
		fmt.Printf("  extraction: %s\n", def.Extraction)
	}
	for _, ev := range report.NearPromotion {
		fmt.Printf("near promotion: %q needs ~%d more success(es) (missing: %v)\n",
			ev.Text, ev.SuccessesToPromotion, ev.MissingCriteria)
	}

	fmt.Printf("\n%d promotable, %d near promotion, %d need more data\n",
		len(report.Promotable), len(report.NearPromotion), len(report.NeedsMoreData))
	if promoteDryRun && len(report.Promotable) > 0 {
		fmt.Println("dry run: store not modified")
	}
	return nil
}

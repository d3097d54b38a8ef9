package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"testmend/internal/primitive"
)

var (
	recordJourney string
	recordAction  string
)

// recordCmd reinforces or weakens a learned pattern.
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a pattern outcome in the learned store",
}

var recordSuccessCmd = &cobra.Command{
	Use:   "success [step text]",
	Short: "Record a successful use of a step mapping",
	Long: `Reinforces the learned pattern for the step text. Unknown text creates a
new pattern, which requires --action with the mapped action as JSON:

  testmend record success "click the login button" \
    --action '{"type":"click","selector":"[data-testid=\"login\"]"}' \
    --journey checkout-flow`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecordSuccess,
}

var recordFailureCmd = &cobra.Command{
	Use:   "failure [step text]",
	Short: "Record a failed use of a step mapping",
	Long: `Weakens the learned pattern for the step text. Text with no existing
pattern is a no-op; failures never create patterns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecordFailure,
}

func init() {
	recordCmd.PersistentFlags().StringVar(&recordJourney, "journey", "", "journey ID the step came from")
	recordSuccessCmd.Flags().StringVar(&recordAction, "action", "", "mapped action as JSON (required for new patterns)")

	recordCmd.AddCommand(recordSuccessCmd)
	recordCmd.AddCommand(recordFailureCmd)
}

func runRecordSuccess(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	var action primitive.Action
	if recordAction != "" {
		if err := json.Unmarshal([]byte(recordAction), &action); err != nil {
			return fmt.Errorf("invalid --action JSON: %w", err)
		}
		if !primitive.IsKnown(action.Type) {
			return fmt.Errorf("unknown action type %q (known: %v)", action.Type, primitive.KnownTypes())
		}
	}

	store := openStore()
	if err := store.RecordSuccess(text, action, recordJourney); err != nil {
		return err
	}
	fmt.Printf("recorded success for %q\n", text)
	return nil
}

func runRecordFailure(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	store := openStore()
	if err := store.RecordFailure(text, recordJourney); err != nil {
		return err
	}
	fmt.Printf("recorded failure for %q\n", text)
	return nil
}

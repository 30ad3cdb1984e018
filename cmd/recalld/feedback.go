package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	feedbackFailed bool
	feedbackRules  []string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <learning-id>...",
	Short: "Credit or penalize surfaced learnings",
	Long: `Adjust the utility of learnings that were surfaced for an
interaction, based on whether the interaction succeeded.

The ids come from 'recalld context --json' output. Each id is credited
or penalized exactly once per invocation.

Rules that were surfaced and used are reported separately with --rules;
their hit counts drive ranking and protect them from expiry.

Examples:
  recalld feedback 2f1c... 9ab0...
  recalld feedback --failed 2f1c...
  recalld feedback --rules 7d2e... 2f1c...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().BoolVar(&feedbackFailed, "failed", false, "the interaction failed; penalize instead of credit")
	feedbackCmd.Flags().StringSliceVar(&feedbackRules, "rules", nil, "ids of rules that were surfaced and used")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	app.engine.MarkSurfaced(args)
	if err := app.engine.ApplyFeedback(cmd.Context(), !feedbackFailed); err != nil {
		return err
	}
	if len(feedbackRules) > 0 {
		app.engine.RecordRuleHits(cmd.Context(), feedbackRules)
	}

	outcome := "credited"
	if feedbackFailed {
		outcome = "penalized"
	}
	fmt.Fprintf(os.Stderr, "%s %d learning(s)\n", outcome, len(args))
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	consolidateThreshold float64
	consolidateMinCount  int
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Promote recurring learnings into rules",
	Long: `Cluster recent learnings by embedding similarity and promote each
cluster that recurs often enough into a standing rule.

Examples:
  recalld consolidate
  recalld consolidate --threshold 0.85 --min-count 5`,
	RunE: runConsolidate,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire stale rules, learnings, and heuristics",
	Long: `Remove expired records from every active scope: rules past their
age limit that were rarely used, and learnings and heuristics past
their age limits.

Cleanup also runs lazily during retrieval; this command forces a pass.`,
	RunE: runCleanup,
}

func init() {
	consolidateCmd.Flags().Float64Var(&consolidateThreshold, "threshold", 0, "similarity threshold for clustering (default from config)")
	consolidateCmd.Flags().IntVar(&consolidateMinCount, "min-count", 0, "minimum cluster size for promotion (default from config)")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	threshold := consolidateThreshold
	if threshold == 0 {
		threshold = app.cfg.Consolidation.Threshold
	}
	minCount := consolidateMinCount
	if minCount == 0 {
		minCount = app.cfg.Consolidation.MinCount
	}

	promoted, err := app.engine.RunConsolidation(cmd.Context(), threshold, minCount)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "promoted %d rule(s)\n", promoted)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	result, err := app.engine.RunCleanup(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "removed %d rule(s), %d learning(s), %d heuristic(s)\n",
		result.Rules, result.Learnings, result.Heuristics)
	return nil
}

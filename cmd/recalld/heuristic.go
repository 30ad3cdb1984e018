package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var heuristicScope string

var heuristicCmd = &cobra.Command{
	Use:   "heuristic",
	Short: "Manage pattern-triggered heuristics",
}

var heuristicAddCmd = &cobra.Command{
	Use:   "add <pattern> <suggestion>",
	Short: "Add a pattern-triggered heuristic",
	Long: `Add a heuristic whose suggestion surfaces whenever the pattern
matches a prompt, case-insensitively. The pattern is a regular
expression and is validated before it is stored.

Examples:
  recalld heuristic add 'migrat(e|ion)' "back up the database before migrating"
  recalld heuristic add --scope project 'docker' "this repo uses compose profiles"`,
	Args: cobra.ExactArgs(2),
	RunE: runHeuristicAdd,
}

func init() {
	heuristicAddCmd.Flags().StringVar(&heuristicScope, "scope", "", "target scope: global or project (default: project if active)")
	heuristicCmd.AddCommand(heuristicAddCmd)
}

func runHeuristicAdd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	scope, err := app.resolveScope(heuristicScope)
	if err != nil {
		return err
	}

	h, err := app.engine.AddHeuristic(cmd.Context(), args[0], args[1], scope)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "heuristic %s added in %s scope\n", h.ID, scope)
	return nil
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var ruleScope string

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage standing rules",
}

var ruleAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a standing rule",
	Long: `Add a rule that is always eligible for surfacing, ranked by how
often it has been used.

Examples:
  recalld rule add "always check exit codes after running commands"
  recalld rule add --scope global "never force-push to main"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRuleAdd,
}

func init() {
	ruleAddCmd.Flags().StringVar(&ruleScope, "scope", "", "target scope: global or project (default: project if active)")
	ruleCmd.AddCommand(ruleAddCmd)
}

func runRuleAdd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	scope, err := app.resolveScope(ruleScope)
	if err != nil {
		return err
	}

	rule, err := app.engine.AddRule(cmd.Context(), strings.Join(args, " "), scope)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "rule %s added in %s scope\n", rule.ID, scope)
	return nil
}

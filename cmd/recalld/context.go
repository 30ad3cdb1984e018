package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/memory"
)

var contextJSON bool

var contextCmd = &cobra.Command{
	Use:   "context <prompt>",
	Short: "Retrieve memory context for a prompt",
	Long: `Retrieve the rules, learnings, and heuristics relevant to a prompt.

By default the context is rendered as markdown ready for prompt
injection; --json emits the raw structure including scores and match
types.

Examples:
  # Markdown for prompt injection
  recalld context "why does the build fail after merging"

  # Raw structure
  recalld context --json "why does the build fail after merging"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

func init() {
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "emit the raw context as JSON")
}

func runContext(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	prompt := strings.Join(args, " ")
	result, err := app.engine.GetContext(cmd.Context(), prompt)
	if err != nil {
		return err
	}

	if contextJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	out := memory.FormatForPrompt(result)
	if out == "" {
		fmt.Fprintln(os.Stderr, "no relevant memory found")
		return nil
	}
	fmt.Print(out)
	return nil
}

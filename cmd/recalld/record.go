package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/memory"
)

var (
	recordCategory string
	recordScope    string
	recordPayload  string
)

var recordCmd = &cobra.Command{
	Use:   "record <content>",
	Short: "Record an observed outcome as a learning",
	Long: `Record an observed outcome as a learning in the active scope.

The optional payload is the raw material the learning was distilled
from (a log, a diff, a transcript); it is fingerprinted so the same
incident recorded twice stays a single learning. Content matching a
privacy marker is silently discarded.

Examples:
  # Record a success in the project scope
  recalld record --category success "regenerating the lockfile fixed the build"

  # Attach the raw log as the dedup payload
  recalld record --category failure --payload-file build.log "the fix did not hold"

  # Read the payload from stdin
  tail -50 build.log | recalld record --payload-file - "flaky test needs retries"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordCategory, "category", "success", "outcome category: success or failure")
	recordCmd.Flags().StringVar(&recordScope, "scope", "", "target scope: global or project (default: project if active)")
	recordCmd.Flags().StringVar(&recordPayload, "payload-file", "", "file with the raw outcome payload, - for stdin")
}

func runRecord(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	scope, err := app.resolveScope(recordScope)
	if err != nil {
		return err
	}

	var payload []byte
	if recordPayload == "-" {
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading payload from stdin: %w", err)
		}
	} else if recordPayload != "" {
		payload, err = os.ReadFile(recordPayload)
		if err != nil {
			return fmt.Errorf("reading payload file: %w", err)
		}
	}

	content := strings.Join(args, " ")
	if err := app.engine.RecordLearning(cmd.Context(), content, memory.Category(recordCategory), payload, scope); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "recorded in %s scope\n", scope)
	return nil
}

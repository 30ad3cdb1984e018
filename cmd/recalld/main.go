// Package main implements the recalld CLI for retrieval-augmented
// assistant memory: context retrieval, outcome recording, feedback,
// consolidation, and maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the config file location.
	configPath string
	// workDir overrides the directory used for project scope resolution.
	workDir string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recalld",
	Short: "Local retrieval-augmented memory for coding assistants",
	Long: `recalld stores rules, learnings, and heuristics in scoped local
databases and retrieves the relevant ones for a prompt using hybrid
semantic and keyword search.

The global scope lives under ~/.local/share/recalld; a project scope is
added automatically when a .recalld directory is found upward from the
working directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/recalld/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", "", "directory for project scope resolution (default cwd)")
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(heuristicCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(cleanupCmd)
}

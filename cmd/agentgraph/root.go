package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agentgraph",
	Short: "Checkpointed multi-agent graph service",
	Long: `agentgraph runs a supervisor multi-agent system on a checkpointed
graph-execution engine. Conversations are keyed by thread ID and resume
across requests; checkpoints can live in memory, SQLite, MySQL,
PostgreSQL, or Redis.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")
}

// Package cmd defines the caspar command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "caspar",
	Short: "Caspar - conversational customer service agent",
	Long: `Caspar is a conversational customer service agent. It answers questions
from a knowledge base, invokes business tools such as order lookup and
ticket creation, and hands conversations to human agents through a
priority queue when deterministic escalation rules fire.

Run "caspar serve" to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

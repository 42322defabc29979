package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Veridion Sentinel - compliance enforcement for AI agent actions",
	Long: `Veridion Sentinel is a compliance-policy enforcement platform that gates
AI agent actions against organizational policies.

It evaluates proposed actions and returns allow/block decisions, providing:
  - Shadow and dry-run modes for risk-free policy rollout
  - Per-policy circuit breakers that fail open on elevated error rates
  - Canary percentage rollout with automatic promotion and rollback
  - Outcome recording and shadow-impact analytics
  - Offline impact simulation against recorded traffic`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

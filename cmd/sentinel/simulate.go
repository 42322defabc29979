package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/config"
	"veridion-hq/sentinel/pkg/enforcement/simulator"
	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
)

var simulateFlags struct {
	policyType        string
	blockedCountries  []string
	revokedAgents     []string
	allowedRegions    []string
	restrictedActions []string
	windowDays        int
	offsetDays        int
	agents            []string
	locations         []string
	output            string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a proposed policy against recorded outcomes",
	Long: `Replay recorded outcome events against a proposed policy configuration
and report the blast radius: how many requests and which agents would
have been blocked had the policy been enforcing.

The simulation reads from the configured outcome backend and never
touches live enforcement state.

Examples:
  # What would a geofence blocking RU and KP have done last week?
  sentinel simulate --type GEOFENCE --blocked-countries RU,KP --window-days 7

  # Revoking two agents, restricted to EU traffic
  sentinel simulate --type AGENT_REVOCATION --revoked-agents agent-7,agent-12 --locations DE,FR

  # JSON output for scripting
  sentinel simulate --type DATA_TRANSFER --allowed-regions eu-west-1 --output json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateFlags.policyType, "type", "t", "", "policy type (GEOFENCE, AGENT_REVOCATION, DATA_TRANSFER, PROCESSING_RESTRICTION)")
	simulateCmd.Flags().StringSliceVar(&simulateFlags.blockedCountries, "blocked-countries", nil, "blocked country codes (GEOFENCE)")
	simulateCmd.Flags().StringSliceVar(&simulateFlags.revokedAgents, "revoked-agents", nil, "revoked agent IDs (AGENT_REVOCATION)")
	simulateCmd.Flags().StringSliceVar(&simulateFlags.allowedRegions, "allowed-regions", nil, "allowed target regions (DATA_TRANSFER)")
	simulateCmd.Flags().StringSliceVar(&simulateFlags.restrictedActions, "restricted-actions", nil, "restricted action types (PROCESSING_RESTRICTION)")
	simulateCmd.Flags().IntVar(&simulateFlags.windowDays, "window-days", 7, "days of history to replay")
	simulateCmd.Flags().IntVar(&simulateFlags.offsetDays, "offset-days", 0, "shift the window back in time")
	simulateCmd.Flags().StringSliceVar(&simulateFlags.agents, "agents", nil, "restrict replay to these agent IDs")
	simulateCmd.Flags().StringSliceVar(&simulateFlags.locations, "locations", nil, "restrict replay to these detected countries")
	simulateCmd.Flags().StringVarP(&simulateFlags.output, "output", "o", "text", "output format (text, json)")

	simulateCmd.MarkFlagRequired("type")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	policyType := policy.Type(strings.ToUpper(simulateFlags.policyType))
	switch policyType {
	case policy.TypeGeofence, policy.TypeAgentRevocation, policy.TypeDataTransfer, policy.TypeProcessingRestriction:
	default:
		return cli.NewCommandError("simulate", fmt.Errorf("unknown policy type: %s", simulateFlags.policyType))
	}

	// Simulation replays history, so it needs the persistent backend.
	if cfg.Outcome.Backend != "sqlite" {
		return cli.NewCommandError("simulate", fmt.Errorf("simulation requires the sqlite outcome backend, got %q", cfg.Outcome.Backend))
	}
	backend, err := outcome.NewSQLiteBackend(&outcome.SQLiteConfig{
		Path:         cfg.Outcome.SQLite.Path,
		MaxOpenConns: cfg.Outcome.SQLite.MaxOpenConns,
		MaxIdleConns: cfg.Outcome.SQLite.MaxIdleConns,
		BusyTimeout:  cfg.Outcome.SQLite.BusyTimeout,
	})
	if err != nil {
		return cli.NewCommandError("simulate", fmt.Errorf("failed to open outcome store: %w", err))
	}
	defer backend.Close()

	sim := simulator.New(backend, simulator.CutPoints{
		Medium:   cfg.Simulator.MediumCutPoint,
		High:     cfg.Simulator.HighCutPoint,
		Critical: cfg.Simulator.CriticalCutPoint,
	})

	result, err := sim.Simulate(context.Background(), simulator.Request{
		PolicyType: policyType,
		Config: policy.RuleConfig{
			BlockedCountries:  simulateFlags.blockedCountries,
			RevokedAgents:     simulateFlags.revokedAgents,
			AllowedRegions:    simulateFlags.allowedRegions,
			RestrictedActions: simulateFlags.restrictedActions,
		},
		WindowDays:     simulateFlags.windowDays,
		OffsetDays:     simulateFlags.offsetDays,
		AgentFilter:    simulateFlags.agents,
		LocationFilter: simulateFlags.locations,
	})
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}

	if simulateFlags.output == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, result)
	}

	printSimulationResult(result)
	return nil
}

func printSimulationResult(r *simulator.Result) {
	fmt.Printf("Simulation: %s\n", r.PolicyType)
	fmt.Printf("  Total requests:  %d\n", r.TotalRequests)
	fmt.Printf("  Would block:     %d\n", r.WouldBlock)
	fmt.Printf("  Would allow:     %d\n", r.WouldAllow)
	fmt.Printf("  Estimated impact: %s\n", r.EstimatedImpact)

	if len(r.CriticalAgents) > 0 {
		fmt.Printf("\nCritical agents (100%% of traffic blocked):\n")
		for _, id := range r.CriticalAgents {
			fmt.Printf("  - %s\n", id)
		}
	}
	if len(r.PartialImpactAgents) > 0 {
		fmt.Printf("\nPartially affected agents:\n")
		for _, id := range r.PartialImpactAgents {
			fmt.Printf("  - %s\n", id)
		}
	}
	if len(r.AffectedAgents) > 0 {
		fmt.Printf("\nPer-agent breakdown:\n")
		for _, a := range r.AffectedAgents {
			fmt.Printf("  %-24s %6d requests, %6d blocked (%.1f%%)\n",
				a.AgentID, a.TotalRequests, a.WouldBlock, a.BlockPercentage)
		}
	}
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "balancer",
		Short:        "Monte Carlo balancing for SweepWeave storyworlds",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", "", "balance config YAML (overrides BALANCER_CONFIG)")
	root.AddCommand(balanceCmd())
	root.AddCommand(simulateCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(enqueueCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

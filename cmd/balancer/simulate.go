package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/report"
	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

var (
	simulateFlags runFlags
	simulateJSON  bool
	simulateCopy  bool
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <storyworld.json>",
		Short: "Run a Monte Carlo rehearsal and report the ending distribution",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
	simulateFlags.register(cmd, false)
	cmd.Flags().BoolVar(&simulateJSON, "json", false, "print statistics as JSON")
	cmd.Flags().BoolVar(&simulateCopy, "copy", false, "also copy the report to the clipboard")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, &simulateFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	w, err := storyworld.Load(args[0])
	if err != nil {
		return err
	}
	if _, err := w.StartEncounter(); err != nil {
		return err
	}

	sim, closeSim := simulator(ctx, cfg, log)
	defer closeSim()

	stats, err := sim.Simulate(ctx, w, cfg.Balance.RunCount, cfg.Balance.Seed)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	issues := balance.Analyze(stats, cfg.Balance.Targets)

	var buf bytes.Buffer
	if simulateJSON {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Stats  any `json:"stats"`
			Issues any `json:"issues"`
		}{stats, issues}); err != nil {
			return err
		}
	} else {
		report.New(&buf, report.DefaultWidth).Statistics(stats, issues)
	}

	if simulateCopy {
		if err := clipboard.WriteAll(buf.String()); err != nil {
			log.Warn("Failed to copy report to clipboard", "error", err)
		}
	}
	_, err = io.Copy(os.Stdout, &buf)
	return err
}

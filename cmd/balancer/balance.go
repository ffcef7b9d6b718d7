package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/report"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

var (
	balanceFlags  runFlags
	balanceDryRun bool
	balanceOut    string
)

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <storyworld.json>",
		Short: "Simulate, analyze and tune a storyworld until it is balanced",
		Long: `Runs the simulate, analyze, tune loop on a storyworld document and writes
the tuned document back to the same file. Use --out to write elsewhere or
--dry-run to leave every file untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: runBalance,
	}
	balanceFlags.register(cmd, true)
	cmd.Flags().BoolVar(&balanceDryRun, "dry-run", false, "report only, do not write the tuned document")
	cmd.Flags().StringVarP(&balanceOut, "out", "o", "", "write the tuned document here instead of the input file")
	return cmd
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, &balanceFlags)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, closeSim := simulator(ctx, cfg, log)
	defer closeSim()

	store, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close(context.Background()) }()
	}

	path := args[0]
	w, err := storyworld.Load(path)
	if err != nil {
		return err
	}

	out := report.New(os.Stdout, report.DefaultWidth)
	session := tuner.NewSession(cfg.Balance.Session(), sim, log).
		WithObserver(out.Iteration)
	log.Info("Balancing storyworld", "path", path, "session_id", session.ID().String())
	fmt.Fprintf(os.Stdout, "Session  %s\n", session.ID())

	result, err := session.Run(ctx, w)
	if err != nil {
		return fmt.Errorf("balance failed: %w", err)
	}

	if !balanceDryRun && result.Adjusted() {
		dest := path
		if balanceOut != "" {
			dest = balanceOut
		}
		if err := storyworld.Save(dest, result.Final); err != nil {
			return fmt.Errorf("failed to save balanced storyworld: %w", err)
		}
		log.Info("Storyworld saved", "path", dest)
	}

	if store != nil {
		rec, err := history.FromReport(path, cfg.Balance.Session(), result)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, rec); err != nil {
			log.Error("Failed to save session history", "error", err)
		}
	}

	out.Outcome(result)
	return nil
}

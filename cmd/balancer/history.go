package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/report"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

var (
	historyLimit  int
	historyBefore string
	historyAfter  string
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past balance sessions stored in HISTORY_DSN",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	list.Flags().IntVar(&historyLimit, "limit", 20, "maximum sessions to list (0 = all)")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session and optionally extract its document snapshots",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	show.Flags().StringVar(&historyBefore, "before", "", "write the document as it was before the session to this path")
	show.Flags().StringVar(&historyAfter, "after", "", "write the tuned document to this path")

	cmd.AddCommand(list, show)
	return cmd
}

func historyStore(cmd *cobra.Command) (history.Store, error) {
	cfg, _, err := setup(cmd, nil)
	if err != nil {
		return nil, err
	}
	if cfg.HistoryDSN == "" {
		return nil, fmt.Errorf("HISTORY_DSN is not set")
	}
	return history.Open(cmd.Context(), cfg.HistoryDSN)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := historyStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	list, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	report.New(os.Stdout, report.DefaultWidth).History(list)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	store, err := historyStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	rec, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	report.New(os.Stdout, report.DefaultWidth).Record(rec)

	if historyBefore == "" && historyAfter == "" {
		return nil
	}
	before, after, err := rec.Documents()
	if err != nil {
		return err
	}
	if historyBefore != "" {
		if err := storyworld.Save(historyBefore, before); err != nil {
			return err
		}
	}
	if historyAfter != "" {
		if err := storyworld.Save(historyAfter, after); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/services/queue"
	pkgqueue "github.com/jwebster45206/storyworld-balancer/pkg/queue"
)

var enqueueFlags runFlags

func enqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <storyworld.json>...",
		Short: "Queue balance jobs for cmd/worker",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEnqueue,
	}
	enqueueFlags.register(cmd, true)
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the state of a queued balance job",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
}

func jobQueue(cmd *cobra.Command, cfg *config.Config, log *slog.Logger) (*queue.Client, *queue.JobQueue, error) {
	if cfg.RedisURL == "" {
		return nil, nil, fmt.Errorf("REDIS_URL is not set")
	}
	client, err := queue.NewClient(cmd.Context(), cfg.RedisURL, log)
	if err != nil {
		return nil, nil, err
	}
	return client, queue.NewJobQueue(client), nil
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, &enqueueFlags)
	if err != nil {
		return err
	}
	client, jobs, err := jobQueue(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	flags := cmd.Flags()
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		job := pkgqueue.NewJob(path)
		if flags.Changed("runs") {
			job.WithRunCount(cfg.Balance.RunCount)
		}
		if flags.Changed("iterations") {
			job.WithMaxIterations(cfg.Balance.MaxIterations)
		}
		if flags.Changed("seed") {
			job.WithSeed(cfg.Balance.Seed)
		}
		if err := jobs.Enqueue(cmd.Context(), job); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", arg, err)
		}
		log.Debug("Job enqueued", "job_id", job.ID.String(), "path", path)
		fmt.Fprintf(os.Stdout, "%s\t%s\n", job.ID, path)
	}

	depth, err := jobs.Depth(cmd.Context())
	if err == nil {
		fmt.Fprintf(os.Stdout, "queue depth: %d\n", depth)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	client, jobs, err := jobQueue(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := jobs.Status(cmd.Context(), id)
	if err != nil {
		return err
	}
	if status == nil {
		return fmt.Errorf("unknown job %s", id)
	}
	fmt.Fprintf(os.Stdout, "%s\t%s\n", status.JobID, status.Status)
	if status.SessionID != "" {
		fmt.Fprintf(os.Stdout, "session: %s\n", status.SessionID)
	}
	if status.Outcome != "" {
		fmt.Fprintf(os.Stdout, "outcome: %s\n", status.Outcome)
	}
	if status.Error != "" {
		fmt.Fprintf(os.Stdout, "error:   %s\n", status.Error)
	}
	fmt.Fprintf(os.Stdout, "updated: %s\n", status.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

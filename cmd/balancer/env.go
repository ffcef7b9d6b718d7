package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/logger"
	"github.com/jwebster45206/storyworld-balancer/internal/services"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

var configPath string

// runFlags are the run parameters shared by simulate, balance and enqueue.
// Only flags the user set override the config file.
type runFlags struct {
	runs       int
	iterations int
	seed       int64
	workers    int
	ceiling    int
	strict     bool
	lateSpools []string
}

func (f *runFlags) register(cmd *cobra.Command, withIterations bool) {
	cmd.Flags().IntVarP(&f.runs, "runs", "n", 0, "episodes per simulation")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "base seed")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel episode workers (0 = all CPUs)")
	cmd.Flags().IntVar(&f.ceiling, "step-ceiling", 0, "moves before an episode times out")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "treat legacy script nodes as malformed")
	cmd.Flags().StringSliceVar(&f.lateSpools, "late-spool", nil, "spool id or name whose encounters are late-stage (repeatable)")
	if withIterations {
		cmd.Flags().IntVar(&f.iterations, "iterations", 0, "maximum tuning iterations")
	}
}

func (f *runFlags) apply(cmd *cobra.Command, b *config.BalanceConfig) error {
	flags := cmd.Flags()
	if flags.Changed("runs") {
		b.RunCount = f.runs
	}
	if flags.Changed("iterations") {
		b.MaxIterations = f.iterations
	}
	if flags.Changed("seed") {
		b.Seed = f.seed
	}
	if flags.Changed("workers") {
		b.Workers = f.workers
	}
	if flags.Changed("step-ceiling") {
		b.StepCeiling = f.ceiling
	}
	if flags.Changed("strict") {
		b.StrictScripts = f.strict
	}
	if flags.Changed("late-spool") {
		b.LateSpools = f.lateSpools
	}
	return b.Validate()
}

// setup loads the environment, the config file and the flag overrides
func setup(cmd *cobra.Command, flags *runFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if configPath != "" {
		b, err := config.LoadBalanceFile(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg.ConfigPath = configPath
		cfg.Balance = b
	}
	log := logger.Setup(cfg)
	if flags != nil {
		if err := flags.apply(cmd, &cfg.Balance); err != nil {
			return nil, nil, err
		}
	}
	return cfg, log, nil
}

// simulator runs rehearsals in process, through the Redis stats cache when
// REDIS_URL is set. The returned close func is never nil.
func simulator(ctx context.Context, cfg *config.Config, log *slog.Logger) (tuner.Simulator, func()) {
	sim := rehearsal.Simulator{Options: cfg.Balance.Rehearsal(log)}
	if cfg.RedisURL == "" {
		return sim, func() {}
	}
	cache, err := services.NewRedisService(cfg.RedisURL, log)
	if err == nil {
		err = cache.Ping(ctx)
		if err != nil {
			_ = cache.Close()
		}
	}
	if err != nil {
		log.Warn("Stats cache unavailable, simulating without it", "error", err)
		return sim, func() {}
	}
	cached := services.NewCachedSimulator(cache, sim, sim.Options.Episode, cfg.Balance.CacheTTL, log)
	return cached, func() { _ = cache.Close() }
}

// openHistory opens the history store named by HISTORY_DSN, or returns nil
// when none is configured
func openHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	if cfg.HistoryDSN == "" {
		return nil, nil
	}
	return history.Open(ctx, cfg.HistoryDSN)
}

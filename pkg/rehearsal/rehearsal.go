// Package rehearsal runs many seeded episodes over a storyworld and reduces
// them into distribution statistics.
package rehearsal

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"slices"
	"sort"
	"time"

	"github.com/jwebster45206/d20"
	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/storyworld-balancer/pkg/episode"
	"github.com/jwebster45206/storyworld-balancer/pkg/state"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

const maxFailureSamples = 5

// Options configures a rehearsal
type Options struct {
	Workers int // parallel workers; runtime.NumCPU() when 0
	Episode episode.Options
	Logger  *slog.Logger
}

type outcome struct {
	kind     episode.Kind
	ending   string
	turns    int
	arrivals int
	blocks   int
	secrets  []string
	entries  []state.Entry
	err      string
}

// Run plays runCount episodes. Episode i rolls its choices with a roller
// seeded from PCG(seed, i), and results are reduced in episode order, so
// the returned statistics do not depend on the worker count.
func Run(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64, opts Options) (*Statistics, error) {
	if runCount < 0 {
		return nil, fmt.Errorf("run count must not be negative: %d", runCount)
	}
	runner, err := episode.NewRunner(w, opts.Episode)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare storyworld: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > runCount && runCount > 0 {
		workers = runCount
	}

	started := time.Now()
	outcomes := make([]outcome, runCount)
	chunk := (runCount + workers - 1) / max(workers, 1)

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < runCount; lo += chunk {
		hi := min(lo+chunk, runCount)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				outcomes[i] = summarize(runner.Run(Roller(seed, i)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rehearsal cancelled: %w", err)
	}

	stats := reduce(outcomes, w.Terminals(), runner.Secrets(), seed)

	if opts.Logger != nil {
		opts.Logger.Debug("Rehearsal finished",
			"runs", runCount,
			"seed", seed,
			"workers", workers,
			"dead_ends", stats.DeadEnds,
			"timeouts", stats.Timeouts,
			"failures", stats.Failures,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
	return stats, nil
}

// Roller returns the dice roller for episode i of a rehearsal seeded with
// seed
func Roller(seed int64, i int) *d20.Roller {
	return d20.NewRoller(rand.New(rand.NewPCG(uint64(seed), uint64(i))).Int64())
}

func summarize(res episode.Result) outcome {
	o := outcome{
		kind:     res.Kind,
		ending:   res.EndingID,
		turns:    res.Turns,
		arrivals: res.LateArrivals,
		blocks:   res.LateBlocks,
		secrets:  res.SecretHits,
		entries:  res.State.Entries(),
	}
	if res.Kind == episode.Failed && res.Err != nil {
		o.err = res.Err.Error()
	}
	return o
}

func reduce(outcomes []outcome, terminals, secrets []string, seed int64) *Statistics {
	stats := &Statistics{
		RunCount:     len(outcomes),
		Seed:         seed,
		EndingCounts: make(map[string]int),
		KnownEndings: terminals,
	}
	if len(secrets) > 0 {
		stats.Secrets = secrets
		stats.SecretHits = make(map[string]int, len(secrets))
		for _, id := range secrets {
			stats.SecretHits[id] = 0
		}
	}
	props := make(map[state.Key]*PropertyStat)

	for _, o := range outcomes {
		switch o.kind {
		case episode.Ending, episode.Fallback:
			stats.EndingCounts[o.ending]++
		case episode.DeadEnd:
			stats.DeadEnds++
		case episode.Timeout:
			stats.Timeouts++
		case episode.Failed:
			stats.Failures++
			if len(stats.FailureSamples) < maxFailureSamples && !slices.Contains(stats.FailureSamples, o.err) {
				stats.FailureSamples = append(stats.FailureSamples, o.err)
			}
		}
		stats.TurnSum += o.turns
		stats.LateArrivals += o.arrivals
		stats.LateBlocks += o.blocks
		for _, id := range o.secrets {
			stats.SecretHits[id]++
		}

		for _, e := range o.entries {
			p, ok := props[e.Key]
			if !ok {
				p = &PropertyStat{Key: e.Key}
				props[e.Key] = p
			}
			p.Sum += e.Value
			p.SumSquares += e.Value * e.Value
		}
	}

	stats.Properties = make([]PropertyStat, 0, len(props))
	for _, p := range props {
		stats.Properties = append(stats.Properties, *p)
	}
	sort.Slice(stats.Properties, func(i, j int) bool {
		return state.Less(stats.Properties[i].Key, stats.Properties[j].Key)
	})
	return stats
}

// Simulator runs rehearsals with fixed options
type Simulator struct {
	Options Options
}

// Simulate runs runCount episodes of w from seed
func (s Simulator) Simulate(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64) (*Statistics, error) {
	return Run(ctx, w, runCount, seed, s.Options)
}

package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/storyworld-balancer/pkg/episode"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

const statsKeyPrefix = "rehearsal-stats:v2"

// CachedSimulator serves rehearsal statistics from a Cache, running the
// wrapped simulator only on a miss. Statistics are deterministic in
// (document, run count, seed, episode options), so those four make the key.
// Cache failures are logged and fall through to the simulator.
type CachedSimulator struct {
	cache  Cache
	next   tuner.Simulator
	scope  string
	ttl    time.Duration
	logger *slog.Logger
}

var _ tuner.Simulator = (*CachedSimulator)(nil)

// NewCachedSimulator wraps next. opts must be the episode options next runs
// with; ttl of 0 keeps entries forever.
func NewCachedSimulator(cache Cache, next tuner.Simulator, opts episode.Options, ttl time.Duration, logger *slog.Logger) *CachedSimulator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedSimulator{
		cache:  cache,
		next:   next,
		scope:  OptionsScope(opts),
		ttl:    ttl,
		logger: logger,
	}
}

// OptionsScope fingerprints the episode options that change statistics
func OptionsScope(opts episode.Options) string {
	ceiling := opts.StepCeiling
	if ceiling <= 0 {
		ceiling = episode.DefaultStepCeiling
	}
	raw := fmt.Sprintf("ceiling=%d;strict=%t;late=%s", ceiling, opts.Strict, strings.Join(opts.LateSpools, "\x1f"))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// StatsKey is the cache key for one rehearsal
func StatsKey(docHash string, runCount int, seed int64, scope string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", statsKeyPrefix, docHash, runCount, seed, scope)
}

func (c *CachedSimulator) Simulate(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64) (*rehearsal.Statistics, error) {
	docHash, err := storyworld.Hash(w)
	if err != nil {
		return nil, err
	}
	key := StatsKey(docHash, runCount, seed, c.scope)

	if stats, ok := c.lookup(ctx, key); ok {
		return stats, nil
	}

	stats, err := c.next.Simulate(ctx, w, runCount, seed)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("Failed to encode rehearsal stats for cache", "key", key, "error", err)
		return stats, nil
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache rehearsal stats", "key", key, "error", err)
	}
	return stats, nil
}

func (c *CachedSimulator) lookup(ctx context.Context, key string) (*rehearsal.Statistics, bool) {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Stats cache unavailable, simulating", "key", key, "error", err)
		return nil, false
	}
	if raw == "" {
		c.logger.Debug("Stats cache miss", "key", key)
		return nil, false
	}
	var stats rehearsal.Statistics
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		c.logger.Warn("Discarding unreadable cached stats", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("Stats cache hit", "key", key)
	return &stats, true
}

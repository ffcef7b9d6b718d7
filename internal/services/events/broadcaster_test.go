package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	opt, err := redis.ParseURL("redis://" + mr.Addr())
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestDigest(t *testing.T) {
	it := tuner.Iteration{
		Number: 2,
		Seed:   44,
		Stats: &rehearsal.Statistics{
			RunCount:     10,
			EndingCounts: map[string]int{"a": 5, "b": 3},
			DeadEnds:     2,
		},
		Issues: []balance.Issue{
			{Kind: balance.HighDeadEnd, Value: 0.2},
			{Kind: balance.Dominant, EncounterID: "a", Value: 0.5},
		},
		Adjustments: []tuner.Adjustment{{Action: tuner.ScaleThresholds, EncounterID: "a"}},
	}

	d := Digest(it)
	assert.Equal(t, 2, d.Number)
	assert.Equal(t, int64(44), d.Seed)
	assert.InDelta(t, 0.2, d.DeadEndRate, 1e-12)
	assert.Len(t, d.Issues, 2)
	assert.Equal(t, 1, d.Adjustments)
	assert.Equal(t, 5, d.EndingCounts["a"])
}

func TestBroadcaster_PublishAndSubscribe(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := Subscribe(ctx, client, nil)
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	b := NewBroadcaster(client, nil)
	id := uuid.New()
	require.NoError(t, b.PublishSessionStarted(ctx, id, "job-1", "world.json"))
	require.NoError(t, b.PublishSessionCompleted(ctx, id, tuner.Balanced))

	first := <-events
	assert.Equal(t, EventTypeSessionStarted, first.Type)
	assert.Equal(t, id.String(), first.SessionID)
	assert.Equal(t, "job-1", first.JobID)
	assert.Equal(t, "world.json", first.Path)

	second := <-events
	assert.Equal(t, EventTypeSessionCompleted, second.Type)
	assert.Equal(t, tuner.Balanced, second.Outcome)

	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c2a1e-0000-4000-8000-000000000001")
	assert.Equal(t, "balance-events:6f1c2a1e-0000-4000-8000-000000000001", Channel(id))
}

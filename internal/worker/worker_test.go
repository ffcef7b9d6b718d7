package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/services"
	"github.com/jwebster45206/storyworld-balancer/internal/services/queue"
	"github.com/jwebster45206/storyworld-balancer/internal/testworld"
	queuePkg "github.com/jwebster45206/storyworld-balancer/pkg/queue"
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupWorker(t *testing.T) (*Worker, *queue.JobQueue, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client, err := queue.NewClient(context.Background(), "redis://"+mr.Addr(), testLogger())
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	cfg := config.Defaults()
	cfg.Workers = 2
	jobs := queue.NewJobQueue(client)
	w := New(jobs, client.Redis(), cfg, testLogger(), "worker-test")
	t.Cleanup(w.Stop)
	return w, jobs, mr
}

func writeWorld(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.json")
	require.NoError(t, storyworld.Save(path, testworld.Spread([]string{"a", "b", "c", "d"}, map[string]float64{"d": 0.5})))
	return path
}

func gate(t *testing.T, path, id string) float64 {
	t.Helper()
	w, err := storyworld.Load(path)
	require.NoError(t, err)
	enc, ok := w.Encounter(id)
	require.True(t, ok)
	th := script.Thresholds(enc.Acceptability())
	require.Len(t, th, 1)
	return th[0].Value
}

func TestWorker_ProcessesJob(t *testing.T) {
	w, jobs, mr := setupWorker(t)
	store := history.NewMemoryStore()
	cache := services.NewMockCache()
	w.WithHistory(store).WithCache(cache)
	ctx := context.Background()

	path := writeWorld(t)
	job := queuePkg.NewJob(path).WithRunCount(4000).WithMaxIterations(1).WithSeed(42)
	require.NoError(t, jobs.Enqueue(ctx, job))

	require.NoError(t, w.processNextJob())

	assert.Equal(t, 0.35, gate(t, path, "d"))

	status, err := jobs.Status(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, queuePkg.StatusCompleted, status.Status)
	assert.Equal(t, string(tuner.Exhausted), status.Outcome)
	assert.NotEmpty(t, status.SessionID)

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, path, list[0].Path)
	assert.True(t, list[0].Changed)

	assert.Len(t, cache.SetCalls, 1, "one rehearsal cached")
	assert.False(t, mr.Exists(lockKey(path)), "lock released")
}

func TestWorker_RequeuesLockedDocument(t *testing.T) {
	w, jobs, mr := setupWorker(t)
	ctx := context.Background()

	path := writeWorld(t)
	require.NoError(t, mr.Set(lockKey(path), "other-worker"))

	job := queuePkg.NewJob(path).WithRunCount(100).WithMaxIterations(1)
	require.NoError(t, jobs.Enqueue(ctx, job))
	w.WithLockRetryDelay(100 * time.Millisecond)
	started := time.Now()
	require.NoError(t, w.processNextJob())
	assert.GreaterOrEqual(t, time.Since(started), 100*time.Millisecond, "backs off before the next dequeue")

	depth, err := jobs.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "job went back on the queue")

	status, err := jobs.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queuePkg.StatusQueued, status.Status)
	assert.Equal(t, 0.5, gate(t, path, "d"), "document untouched")

	got, err := mr.Get(lockKey(path))
	require.NoError(t, err)
	assert.Equal(t, "other-worker", got, "foreign lock kept")
}

func TestWorker_LockedDocumentBackoffStopsOnShutdown(t *testing.T) {
	w, jobs, mr := setupWorker(t)
	ctx := context.Background()

	path := writeWorld(t)
	require.NoError(t, mr.Set(lockKey(path), "other-worker"))
	require.NoError(t, jobs.Enqueue(ctx, queuePkg.NewJob(path)))

	w.WithLockRetryDelay(time.Minute)
	done := make(chan error, 1)
	go func() { done <- w.processNextJob() }()

	// long enough to dequeue and put the job back, far short of the delay
	time.Sleep(300 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker kept waiting after Stop")
	}
	depth, err := jobs.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestWorker_FailedJob(t *testing.T) {
	w, jobs, _ := setupWorker(t)
	ctx := context.Background()

	job := queuePkg.NewJob(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, jobs.Enqueue(ctx, job))
	assert.Error(t, w.processNextJob())

	status, err := jobs.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queuePkg.StatusFailed, status.Status)
	assert.NotEmpty(t, status.Error)
}

func TestWorker_SessionConfigOverrides(t *testing.T) {
	w, _, _ := setupWorker(t)

	base := w.sessionConfig(queuePkg.NewJob("a.json"))
	assert.Equal(t, config.Defaults().Session(), base)

	cfg := w.sessionConfig(queuePkg.NewJob("a.json").WithRunCount(10).WithMaxIterations(2).WithSeed(0))
	assert.Equal(t, 10, cfg.RunCount)
	assert.Equal(t, 2, cfg.MaxIterations)
	assert.Equal(t, int64(0), cfg.Seed)
}

func TestLockKeyIsPathStable(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, lockKey(filepath.Join(dir, "w.json")), lockKey(filepath.Join(dir, ".", "w.json")))
	assert.NotEqual(t, lockKey(filepath.Join(dir, "a.json")), lockKey(filepath.Join(dir, "b.json")))
}

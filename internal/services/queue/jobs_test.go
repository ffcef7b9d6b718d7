package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/pkg/queue"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	redisURL := "redis://" + mr.Addr()

	client, err := NewClient(context.Background(), redisURL, logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestJobQueue_EnqueueAndDequeue(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewJobQueue(client)
	ctx := context.Background()

	paths := []string{"a.json", "b.json", "c.json"}
	var ids []uuid.UUID
	for _, p := range paths {
		job := queue.NewJob(p).WithRunCount(100)
		ids = append(ids, job.ID)
		require.NoError(t, q.Enqueue(ctx, job))
	}

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	for i, p := range paths {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, p, job.Path, "jobs come out in FIFO order")
		assert.Equal(t, ids[i], job.ID)
		assert.Equal(t, 100, job.RunCount)
	}

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobQueue_EnqueueRejectsInvalidJob(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewJobQueue(client)

	err := q.Enqueue(context.Background(), queue.NewJob(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrEmptyPath)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestJobQueue_BlockingDequeue(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewJobQueue(client)
	ctx := context.Background()

	job := queue.NewJob("world.json")
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.BlockingDequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
}

func TestJobQueue_BlockingDequeueTimesOut(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewJobQueue(client)

	got, err := q.BlockingDequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobQueue_Status(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewJobQueue(client)
	ctx := context.Background()

	job := queue.NewJob("world.json")
	require.NoError(t, q.Enqueue(ctx, job))

	status, err := q.Status(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, queue.StatusQueued, status.Status)
	assert.False(t, status.UpdatedAt.IsZero())
	assert.Equal(t, statusTTL, mr.TTL(statusKey(job.ID)))

	require.NoError(t, q.SetStatus(ctx, queue.JobStatus{
		JobID:     job.ID,
		Status:    queue.StatusCompleted,
		SessionID: "s-1",
		Outcome:   "balanced",
	}))
	status, err = q.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, status.Status)
	assert.Equal(t, "balanced", status.Outcome)

	missing, err := q.Status(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobQueue_RequeueKeepsStatus(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewJobQueue(client)
	ctx := context.Background()

	job := queue.NewJob("world.json")
	require.NoError(t, q.Enqueue(ctx, job))
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.SetStatus(ctx, queue.JobStatus{JobID: got.ID, Status: queue.StatusRunning}))

	require.NoError(t, q.Requeue(ctx, got))
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	status, err := q.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusRunning, status.Status)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = NewClient(ctx, "redis://"+addr, logger)
	assert.Error(t, err)
}

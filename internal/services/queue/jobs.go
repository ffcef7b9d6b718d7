package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/storyworld-balancer/pkg/queue"
)

const (
	jobsKey   = "balance-jobs"
	statusTTL = 7 * 24 * time.Hour
)

func statusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("balance-job-status:%s", jobID.String())
}

// JobQueue is the FIFO of balance jobs shared by all workers
type JobQueue struct {
	client *Client
}

func NewJobQueue(client *Client) *JobQueue {
	return &JobQueue{client: client}
}

// Enqueue validates job, appends it to the queue and marks it queued
func (q *JobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	data, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, jobsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return q.SetStatus(ctx, queue.JobStatus{JobID: job.ID, Status: queue.StatusQueued})
}

// Requeue puts a job back at the end of the queue without touching its
// status
func (q *JobQueue) Requeue(ctx context.Context, job *queue.Job) error {
	data, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, jobsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// Dequeue removes and returns the next job, or nil when the queue is empty
func (q *JobQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	result, err := q.client.rdb.LPop(ctx, jobsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return parseJob(result)
}

// BlockingDequeue waits up to timeout for a job. It returns nil, nil when
// the wait times out or ctx ends.
func (q *JobQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, jobsKey).Result()
	if errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return parseJob(result[1])
}

func parseJob(raw string) (*queue.Job, error) {
	job, err := queue.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	return job, nil
}

// Depth returns the number of waiting jobs
func (q *JobQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, jobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// SetStatus records the job's status. Entries expire after a week.
func (q *JobQueue) SetStatus(ctx context.Context, status queue.JobStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to serialize job status: %w", err)
	}
	if err := q.client.rdb.Set(ctx, statusKey(status.JobID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

// Status returns the job's last recorded status, or nil if none is known
func (q *JobQueue) Status(ctx context.Context, jobID uuid.UUID) (*queue.JobStatus, error) {
	raw, err := q.client.rdb.Get(ctx, statusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}
	var status queue.JobStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("failed to parse job status: %w", err)
	}
	return &status, nil
}

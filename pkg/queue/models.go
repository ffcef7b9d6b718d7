// Package queue defines the balance job messages exchanged over the Redis
// job queue.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is where a job is in its lifecycle
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job asks a worker to balance the storyworld file at Path. Zero run
// parameters fall back to the worker's configuration.
type Job struct {
	ID            uuid.UUID `json:"id"`
	Path          string    `json:"path"`
	RunCount      int       `json:"run_count,omitempty"`
	MaxIterations int       `json:"max_iterations,omitempty"`
	Seed          *int64    `json:"seed,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// ErrEmptyPath rejects a job with no document
var ErrEmptyPath = errors.New("job path is required")

// NewJob creates a job for path with a fresh id
func NewJob(path string) *Job {
	return &Job{
		ID:         uuid.New(),
		Path:       path,
		EnqueuedAt: time.Now().UTC(),
	}
}

// WithRunCount overrides the worker's run count
// Returns the Job for method chaining
func (j *Job) WithRunCount(n int) *Job {
	j.RunCount = n
	return j
}

// WithMaxIterations overrides the worker's iteration limit
// Returns the Job for method chaining
func (j *Job) WithMaxIterations(n int) *Job {
	j.MaxIterations = n
	return j
}

// WithSeed overrides the worker's base seed
// Returns the Job for method chaining
func (j *Job) WithSeed(seed int64) *Job {
	j.Seed = &seed
	return j
}

// Validate checks the job can be run
func (j *Job) Validate() error {
	if j.Path == "" {
		return ErrEmptyPath
	}
	if j.RunCount < 0 {
		return fmt.Errorf("run_count must not be negative, got %d", j.RunCount)
	}
	if j.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative, got %d", j.MaxIterations)
	}
	return nil
}

// ToJSON converts the job to JSON bytes for Redis
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// FromJSON parses a job from JSON bytes
func FromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobStatus is the last known state of a job
type JobStatus struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    Status    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/logger"
	"github.com/jwebster45206/storyworld-balancer/internal/services"
	"github.com/jwebster45206/storyworld-balancer/internal/services/events"
	"github.com/jwebster45206/storyworld-balancer/internal/services/queue"
	queuePkg "github.com/jwebster45206/storyworld-balancer/pkg/queue"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

const (
	workerTimeout  = 5 * time.Second
	lockTTL        = time.Hour
	lockRetryDelay = 2 * time.Second
)

// Worker takes balance jobs off the queue and runs them. Two workers never
// balance the same file at once.
type Worker struct {
	id          string
	queue       *queue.JobQueue
	redisClient *redis.Client
	broadcaster *events.Broadcaster
	history     history.Store
	cache       services.Cache
	cfg         config.BalanceConfig
	retryDelay  time.Duration
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(jobs *queue.JobQueue, redisClient *redis.Client, cfg config.BalanceConfig, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       jobs,
		redisClient: redisClient,
		broadcaster: events.NewBroadcaster(redisClient, log),
		cfg:         cfg,
		retryDelay:  lockRetryDelay,
		log:         log.With("worker_id", workerID),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// WithHistory records every finished session in store
// Returns the Worker for method chaining
func (w *Worker) WithHistory(store history.Store) *Worker {
	w.history = store
	return w
}

// WithCache serves repeated rehearsals from cache
// Returns the Worker for method chaining
func (w *Worker) WithCache(cache services.Cache) *Worker {
	w.cache = cache
	return w
}

// WithLockRetryDelay sets how long the worker pauses after putting back a
// job whose document another worker holds
// Returns the Worker for method chaining
func (w *Worker) WithLockRetryDelay(d time.Duration) *Worker {
	w.retryDelay = d
	return w
}

// ID is the worker id used as the lock owner
func (w *Worker) ID() string {
	return w.id
}

// Start processes jobs until Stop is called
func (w *Worker) Start() error {
	w.log.Info("Worker starting")

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
			if err := w.processNextJob(); err != nil {
				w.log.Error("Error processing job", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// processNextJob pulls the next job from the queue and runs it
func (w *Worker) processNextJob() error {
	job, err := w.queue.BlockingDequeue(w.ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue job: %w", err)
	}
	if job == nil {
		return nil
	}

	log := logger.WithJob(w.log, job.ID.String())
	log.Info("Received job from queue", "path", job.Path)

	locked, err := w.acquireLock(job.Path)
	if err != nil {
		return fmt.Errorf("failed to acquire document lock: %w", err)
	}
	if !locked {
		log.Info("Document already locked, re-queueing job", "path", job.Path)
		if err := w.queue.Requeue(w.ctx, job); err != nil {
			return fmt.Errorf("failed to re-queue job: %w", err)
		}
		// pause before the next dequeue or a lone blocked job spins
		select {
		case <-w.ctx.Done():
		case <-time.After(w.retryDelay):
		}
		return nil
	}
	defer w.releaseLock(job.Path)

	return w.runJob(job, log)
}

func (w *Worker) runJob(job *queuePkg.Job, log *slog.Logger) error {
	cfg := w.sessionConfig(job)
	session := tuner.NewSession(cfg, w.simulator(log), log)
	sessionID := session.ID()

	w.setStatus(job, queuePkg.StatusRunning, sessionID, "", "")
	if err := w.broadcaster.PublishSessionStarted(w.ctx, sessionID, job.ID.String(), job.Path); err != nil {
		log.Error("Failed to publish session start", "error", err)
	}
	session.WithObserver(func(it tuner.Iteration) {
		if err := w.broadcaster.PublishIteration(w.ctx, sessionID, it); err != nil {
			log.Error("Failed to publish iteration", "error", err, "iteration", it.Number)
		}
	})

	start := time.Now()
	report, err := session.RunFile(w.ctx, job.Path)
	if err != nil {
		log.Error("Balance job failed", "error", err, "path", job.Path)
		w.setStatus(job, queuePkg.StatusFailed, sessionID, "", err.Error())
		if pubErr := w.broadcaster.PublishSessionFailed(w.ctx, sessionID, err.Error()); pubErr != nil {
			log.Error("Failed to publish failure event", "error", pubErr)
		}
		return fmt.Errorf("failed to balance %s: %w", job.Path, err)
	}

	if w.history != nil {
		rec, err := history.FromReport(job.Path, cfg, report)
		if err == nil {
			err = w.history.Save(w.ctx, rec)
		}
		if err != nil {
			log.Error("Failed to record session history", "error", err)
		}
	}

	w.setStatus(job, queuePkg.StatusCompleted, sessionID, string(report.Outcome), "")
	if err := w.broadcaster.PublishSessionCompleted(w.ctx, sessionID, report.Outcome); err != nil {
		log.Error("Failed to publish completion event", "error", err)
	}

	log.Info("Balance job completed",
		"path", job.Path,
		"outcome", report.Outcome,
		"iterations", len(report.Iterations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// sessionConfig applies the job's overrides to the worker configuration
func (w *Worker) sessionConfig(job *queuePkg.Job) tuner.Config {
	cfg := w.cfg.Session()
	if job.RunCount > 0 {
		cfg.RunCount = job.RunCount
	}
	if job.MaxIterations > 0 {
		cfg.MaxIterations = job.MaxIterations
	}
	if job.Seed != nil {
		cfg.Seed = *job.Seed
	}
	return cfg
}

func (w *Worker) simulator(log *slog.Logger) tuner.Simulator {
	sim := rehearsal.Simulator{Options: w.cfg.Rehearsal(log)}
	if w.cache == nil {
		return sim
	}
	return services.NewCachedSimulator(w.cache, sim, sim.Options.Episode, w.cfg.CacheTTL, log)
}

func (w *Worker) setStatus(job *queuePkg.Job, status queuePkg.Status, sessionID uuid.UUID, outcome, errMsg string) {
	err := w.queue.SetStatus(w.ctx, queuePkg.JobStatus{
		JobID:     job.ID,
		Status:    status,
		SessionID: sessionID.String(),
		Outcome:   outcome,
		Error:     errMsg,
	})
	if err != nil {
		w.log.Error("Failed to update job status", "error", err, "job_id", job.ID.String(), "status", status)
	}
}

// lockKey names the lock for a document. Paths are made absolute so two
// spellings of one file share a lock.
func lockKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(path))
	return "balance-lock:" + hex.EncodeToString(sum[:12])
}

// acquireLock returns true if the lock was acquired, false if another
// worker holds it
func (w *Worker) acquireLock(path string) (bool, error) {
	return w.redisClient.SetNX(w.ctx, lockKey(path), w.id, lockTTL).Result()
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// releaseLock deletes the lock only if this worker still owns it
func (w *Worker) releaseLock(path string) {
	// the worker context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, w.redisClient, []string{lockKey(path)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release document lock", "error", err, "path", path)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/logger"
	"github.com/jwebster45206/storyworld-balancer/internal/services"
	"github.com/jwebster45206/storyworld-balancer/internal/services/queue"
	"github.com/jwebster45206/storyworld-balancer/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	if cfg.RedisURL == "" {
		log.Error("REDIS_URL is required for the worker")
		os.Exit(1)
	}

	log.Info("Starting storyworld balance worker",
		"environment", cfg.Environment,
		"runs", cfg.Balance.RunCount,
		"max_iterations", cfg.Balance.MaxIterations,
		"workers", cfg.Balance.Workers)

	// Wait for Redis before taking jobs
	cache, err := services.NewRedisService(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create Redis service", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Error("Failed to close Redis service", "error", err)
		}
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer waitCancel()
	if err := cache.WaitForConnection(waitCtx); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	queueClient, err := queue.NewClient(waitCtx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	jobs := queue.NewJobQueue(queueClient)
	log.Info("Queue service initialized successfully")

	store, err := history.Open(waitCtx, cfg.HistoryDSN)
	if err != nil {
		log.Error("Failed to open history store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error("Failed to close history store", "error", err)
		}
	}()

	w := worker.New(jobs, queueClient.Redis(), cfg.Balance, log, cfg.WorkerID).
		WithCache(cache).
		WithHistory(store)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for jobs...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	log.Info("Worker exited")
}

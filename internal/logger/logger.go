package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
)

// Setup configures the global slog logger based on environment. Logs go to
// stderr so command output on stdout stays machine readable.
func Setup(cfg *config.Config) *slog.Logger {
	return New(os.Stderr, cfg)
}

// New builds a logger writing to w
func New(w io.Writer, cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	if cfg.Environment == "production" {
		// JSON format for production
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithSession adds the balance session id to logger context
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With("session_id", sessionID)
}

// WithJob adds a queued job id to logger context
func WithJob(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With("job_id", jobID)
}

// WithError adds error to logger context
func WithError(logger *slog.Logger, err error) *slog.Logger {
	return logger.With("error", err.Error())
}

// Package history persists finished balance sessions: what was run, how it
// ended and compressed snapshots of the document before and after tuning.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// ErrNotFound is returned by Get for an unknown session
var ErrNotFound = errors.New("session not found")

// Record is one stored session
type Record struct {
	SessionID   uuid.UUID       `json:"session_id"`
	Path        string          `json:"path"`
	Seed        int64           `json:"seed"`
	RunCount    int             `json:"run_count"`
	Outcome     tuner.Outcome   `json:"outcome"`
	Iterations  int             `json:"iterations"`
	FinalIssues []balance.Issue `json:"final_issues"`
	HashBefore  string          `json:"hash_before"`
	HashAfter   string          `json:"hash_after"`
	Before      []byte          `json:"-"` // zstd-compressed document
	After       []byte          `json:"-"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// Summary is the listing view of a record
type Summary struct {
	SessionID  uuid.UUID     `json:"session_id"`
	Path       string        `json:"path"`
	Outcome    tuner.Outcome `json:"outcome"`
	Iterations int           `json:"iterations"`
	Issues     int           `json:"issues"`
	Changed    bool          `json:"changed"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (r *Record) Summary() Summary {
	return Summary{
		SessionID:  r.SessionID,
		Path:       r.Path,
		Outcome:    r.Outcome,
		Iterations: r.Iterations,
		Issues:     len(r.FinalIssues),
		Changed:    r.HashBefore != r.HashAfter,
		FinishedAt: r.FinishedAt,
	}
}

// Store persists session records
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// List returns up to limit summaries, newest first; limit <= 0 means all
	List(ctx context.Context, limit int) ([]Summary, error)
	Close(ctx context.Context) error
}

// Open picks a backend from the DSN scheme: memory://, sqlite:// or
// postgres://. An empty DSN opens a memory store.
func Open(ctx context.Context, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch {
	case dsn == "" || strings.HasPrefix(dsn, "memory://"):
		s = NewMemoryStore()
	case strings.HasPrefix(dsn, "sqlite://"):
		s, err = NewSQLiteStore(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err = NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported history DSN scheme: %q", dsn)
	}
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("preparing history schema: %w", err)
	}
	return s, nil
}

// FromReport builds the record for a finished session
func FromReport(path string, cfg tuner.Config, report *tuner.Report) (*Record, error) {
	rec := &Record{
		SessionID:   report.SessionID,
		Path:        path,
		Seed:        cfg.Seed,
		RunCount:    cfg.RunCount,
		Outcome:     report.Outcome,
		Iterations:  len(report.Iterations),
		FinalIssues: report.FinalIssues(),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}
	if rec.FinalIssues == nil {
		rec.FinalIssues = []balance.Issue{}
	}

	var err error
	if rec.Before, rec.HashBefore, err = snapshot(report.Initial); err != nil {
		return nil, err
	}
	if rec.After, rec.HashAfter, err = snapshot(report.Final); err != nil {
		return nil, err
	}
	return rec, nil
}

func snapshot(w *storyworld.Storyworld) ([]byte, string, error) {
	if w == nil {
		return nil, "", nil
	}
	data, err := storyworld.Encode(w)
	if err != nil {
		return nil, "", fmt.Errorf("failed to snapshot storyworld: %w", err)
	}
	hash, err := storyworld.Hash(w)
	if err != nil {
		return nil, "", err
	}
	return Compress(data), hash, nil
}

// Documents decompresses the before and after snapshots
func (r *Record) Documents() (before, after *storyworld.Storyworld, err error) {
	if before, err = restore(r.Before); err != nil {
		return nil, nil, err
	}
	if after, err = restore(r.After); err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func restore(blob []byte) (*storyworld.Storyworld, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	data, err := Decompress(blob)
	if err != nil {
		return nil, err
	}
	return storyworld.Parse(data)
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// Compress zstd-compresses data
func Compress(data []byte) []byte {
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// Decompress reverses Compress
func Decompress(blob []byte) ([]byte, error) {
	data, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	return data, nil
}

package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

// Simulator produces rehearsal statistics for a document
type Simulator interface {
	Simulate(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64) (*rehearsal.Statistics, error)
}

var _ Simulator = rehearsal.Simulator{}

// Config holds the session parameters
type Config struct {
	RunCount      int
	MaxIterations int
	Seed          int64 // iteration k simulates with Seed+k
	Rules         balance.Rules
	Factors       Factors
}

// DefaultConfig returns the stock session parameters
func DefaultConfig() Config {
	return Config{
		RunCount:      10000,
		MaxIterations: 10,
		Seed:          42,
		Rules:         balance.DefaultRules(),
		Factors:       DefaultFactors(),
	}
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.RunCount <= 0 {
		return fmt.Errorf("run_count must be positive, got %d", c.RunCount)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	return c.Factors.Validate()
}

// Outcome is why a session stopped
type Outcome string

const (
	Balanced  Outcome = "balanced"  // no issues left
	Stalled   Outcome = "stalled"   // issues left but none adjustable
	Exhausted Outcome = "exhausted" // max iterations reached
)

// Iteration is one simulate, analyze, tune round
type Iteration struct {
	Number      int                   `json:"number"`
	Seed        int64                 `json:"seed"`
	Stats       *rehearsal.Statistics `json:"stats"`
	Issues      []balance.Issue       `json:"issues"`
	Adjustments []Adjustment          `json:"adjustments"`
}

// Report is the result of a session
type Report struct {
	SessionID  uuid.UUID              `json:"session_id"`
	Outcome    Outcome                `json:"outcome"`
	Preflight  []Adjustment           `json:"preflight,omitempty"`
	Iterations []Iteration            `json:"iterations"`
	Initial    *storyworld.Storyworld `json:"-"`
	Final      *storyworld.Storyworld `json:"-"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// FinalIssues are the issues found by the last simulation
func (r *Report) FinalIssues() []balance.Issue {
	if len(r.Iterations) == 0 {
		return nil
	}
	return r.Iterations[len(r.Iterations)-1].Issues
}

// Adjusted reports whether the pre-flight or any iteration changed the
// document
func (r *Report) Adjusted() bool {
	if len(r.Preflight) > 0 {
		return true
	}
	for _, it := range r.Iterations {
		if len(it.Adjustments) > 0 {
			return true
		}
	}
	return false
}

// Session runs the balance loop. Iterations are strictly sequential; each
// one simulates the document produced by the previous one.
type Session struct {
	id        uuid.UUID
	cfg       Config
	sim       Simulator
	tuner     *Tuner
	logger    *slog.Logger
	observers []func(Iteration)
}

// NewSession creates a session with a fresh id
func NewSession(cfg Config, sim Simulator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.New()
	logger = logger.With("session_id", id.String())
	return &Session{
		id:     id,
		cfg:    cfg,
		sim:    sim,
		tuner:  New(cfg.Factors, logger),
		logger: logger,
	}
}

// WithObserver registers fn to be called after every iteration
// Returns the Session for method chaining
func (s *Session) WithObserver(fn func(Iteration)) *Session {
	s.observers = append(s.observers, fn)
	return s
}

// ID is the session id
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Run balances w and returns the report. w itself is not modified; the
// tuned document is Report.Final.
func (s *Session) Run(ctx context.Context, w *storyworld.Storyworld) (*Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if _, err := w.StartEncounter(); err != nil {
		return nil, err
	}

	report := &Report{
		SessionID: s.id,
		Outcome:   Exhausted,
		Initial:   w,
		Final:     w,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Info("Balance session started",
		"runs", s.cfg.RunCount,
		"max_iterations", s.cfg.MaxIterations,
		"seed", s.cfg.Seed,
	)

	current, preflight, err := s.tuner.Preflight(w)
	if err != nil {
		return nil, fmt.Errorf("pre-flight: %w", err)
	}
	report.Preflight = preflight

	for k := 1; k <= s.cfg.MaxIterations; k++ {
		seed := s.cfg.Seed + int64(k)
		stats, err := s.sim.Simulate(ctx, current, s.cfg.RunCount, seed)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", k, err)
		}
		issues := balance.Analyze(stats, s.cfg.Rules)
		it := Iteration{Number: k, Seed: seed, Stats: stats, Issues: issues}

		if len(issues) == 0 {
			report.Outcome = Balanced
			s.record(report, it)
			break
		}

		tuned, adjustments, err := s.tuner.Tune(current, issues)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", k, err)
		}
		it.Adjustments = adjustments
		s.record(report, it)

		if len(adjustments) == 0 {
			report.Outcome = Stalled
			break
		}
		current = tuned
	}

	report.Final = current
	report.FinishedAt = time.Now().UTC()
	s.logger.Info("Balance session finished",
		"outcome", report.Outcome,
		"iterations", len(report.Iterations),
		"remaining_issues", len(report.FinalIssues()),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

func (s *Session) record(report *Report, it Iteration) {
	report.Iterations = append(report.Iterations, it)
	s.logger.Info("Iteration complete",
		"iteration", it.Number,
		"seed", it.Seed,
		"issues", len(it.Issues),
		"adjustments", len(it.Adjustments),
		"dead_end_rate", it.Stats.DeadEndRate(),
		"effective_endings", it.Stats.EffectiveEndings(),
	)
	for _, issue := range it.Issues {
		s.logger.Debug("Balance issue", "iteration", it.Number, "issue", issue.String())
	}
	for _, fn := range s.observers {
		fn(it)
	}
}

// ErrNoDocumentPath is returned by RunFile for an empty path
var ErrNoDocumentPath = errors.New("storyworld path is required")

// RunFile loads the document at path, balances it and writes the result
// back to the same path. The file is only written when the loop finishes;
// a failed session leaves it untouched.
func (s *Session) RunFile(ctx context.Context, path string) (*Report, error) {
	if path == "" {
		return nil, ErrNoDocumentPath
	}
	w, err := storyworld.Load(path)
	if err != nil {
		return nil, err
	}
	report, err := s.Run(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := storyworld.Save(path, report.Final); err != nil {
		return nil, fmt.Errorf("failed to save balanced storyworld: %w", err)
	}
	s.logger.Info("Storyworld saved", "path", path, "adjusted", report.Adjusted())
	return report, nil
}

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// PostgresStore keeps records in a shared postgres database so every
// worker writes to one history
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS balance_sessions (
    session_id   UUID PRIMARY KEY,
    path         TEXT NOT NULL,
    seed         BIGINT NOT NULL,
    run_count    INTEGER NOT NULL,
    outcome      TEXT NOT NULL,
    iterations   INTEGER NOT NULL,
    final_issues JSONB NOT NULL DEFAULT '[]',
    hash_before  TEXT NOT NULL DEFAULT '',
    hash_after   TEXT NOT NULL DEFAULT '',
    before_doc   BYTEA,
    after_doc    BYTEA,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_balance_sessions_finished ON balance_sessions (finished_at DESC);
`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating postgres schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, r *Record) error {
	issues, err := json.Marshal(r.FinalIssues)
	if err != nil {
		return fmt.Errorf("encoding final issues: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO balance_sessions (session_id, path, seed, run_count, outcome, iterations,
    final_issues, hash_before, hash_after, before_doc, after_doc, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (session_id) DO UPDATE SET
    outcome = EXCLUDED.outcome,
    iterations = EXCLUDED.iterations,
    final_issues = EXCLUDED.final_issues,
    hash_after = EXCLUDED.hash_after,
    after_doc = EXCLUDED.after_doc,
    finished_at = EXCLUDED.finished_at`,
		r.SessionID.String(), r.Path, r.Seed, r.RunCount, string(r.Outcome), r.Iterations,
		string(issues), r.HashBefore, r.HashAfter, r.Before, r.After, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", r.SessionID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var (
		r            Record
		sid, outcome string
		issues       []byte
	)
	err := p.pool.QueryRow(ctx, `
SELECT session_id::text, path, seed, run_count, outcome, iterations, final_issues::text,
    hash_before, hash_after, before_doc, after_doc, started_at, finished_at
FROM balance_sessions WHERE session_id = $1`, id.String()).Scan(
		&sid, &r.Path, &r.Seed, &r.RunCount, &outcome, &r.Iterations, &issues,
		&r.HashBefore, &r.HashAfter, &r.Before, &r.After, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if r.SessionID, err = uuid.Parse(sid); err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	r.Outcome = tuner.Outcome(outcome)
	if err := json.Unmarshal(issues, &r.FinalIssues); err != nil {
		return nil, fmt.Errorf("decoding final issues: %w", err)
	}
	return &r, nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `
SELECT session_id::text, path, outcome, iterations, jsonb_array_length(final_issues),
    hash_before <> hash_after, finished_at
FROM balance_sessions ORDER BY finished_at DESC, session_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sm           Summary
			sid, outcome string
		)
		if err := rows.Scan(&sid, &sm.Path, &outcome, &sm.Iterations, &sm.Issues, &sm.Changed, &sm.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sm.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sm.Outcome = tuner.Outcome(outcome)
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

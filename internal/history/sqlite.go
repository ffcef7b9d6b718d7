package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// SQLiteStore keeps records in a local sqlite file
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a sqlite:// DSN, e.g. sqlite://./history.db or
// sqlite://:memory:
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	driverDSN, err := parseSQLiteDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if driverDSN == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func parseSQLiteDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "sqlite://") {
		return "", fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
	}
	rest := strings.TrimPrefix(dsn, "sqlite://")
	if rest == "" {
		return "", fmt.Errorf("sqlite DSN has no path")
	}
	if rest == ":memory:" {
		return rest, nil
	}
	path, query, _ := strings.Cut(rest, "?")
	path, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("unescaping path: %w", err)
	}
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	if query != "" {
		return path + "?" + query, nil
	}
	return path, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		path         TEXT NOT NULL,
		seed         INTEGER NOT NULL,
		run_count    INTEGER NOT NULL,
		outcome      TEXT NOT NULL,
		iterations   INTEGER NOT NULL,
		final_issues TEXT NOT NULL DEFAULT '[]',
		hash_before  TEXT NOT NULL DEFAULT '',
		hash_after   TEXT NOT NULL DEFAULT '',
		before_doc   BLOB,
		after_doc    BLOB,
		started_at   TEXT NOT NULL,
		finished_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions (finished_at);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, r *Record) error {
	issues, err := json.Marshal(r.FinalIssues)
	if err != nil {
		return fmt.Errorf("encoding final issues: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO sessions (session_id, path, seed, run_count, outcome, iterations,
		final_issues, hash_before, hash_after, before_doc, after_doc, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (session_id) DO UPDATE SET
		outcome = excluded.outcome,
		iterations = excluded.iterations,
		final_issues = excluded.final_issues,
		hash_after = excluded.hash_after,
		after_doc = excluded.after_doc,
		finished_at = excluded.finished_at`,
		r.SessionID.String(), r.Path, r.Seed, r.RunCount, string(r.Outcome), r.Iterations,
		string(issues), r.HashBefore, r.HashAfter, r.Before, r.After,
		formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", r.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT session_id, path, seed, run_count, outcome, iterations, final_issues,
		hash_before, hash_after, before_doc, after_doc, started_at, finished_at
	FROM sessions WHERE session_id = ?`, id.String())

	var (
		r                 Record
		sid, outcome      string
		issues            string
		started, finished string
	)
	err := row.Scan(&sid, &r.Path, &r.Seed, &r.RunCount, &outcome, &r.Iterations, &issues,
		&r.HashBefore, &r.HashAfter, &r.Before, &r.After, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if r.SessionID, err = uuid.Parse(sid); err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	r.Outcome = tuner.Outcome(outcome)
	if err := json.Unmarshal([]byte(issues), &r.FinalIssues); err != nil {
		return nil, fmt.Errorf("decoding final issues: %w", err)
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `
	SELECT session_id, path, outcome, iterations, json_array_length(final_issues),
		hash_before != hash_after, finished_at
	FROM sessions ORDER BY finished_at DESC, session_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sm                Summary
			sid, outcome, fin string
		)
		if err := rows.Scan(&sid, &sm.Path, &outcome, &sm.Iterations, &sm.Issues, &sm.Changed, &fin); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sm.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sm.Outcome = tuner.Outcome(outcome)
		if sm.FinishedAt, err = parseTime(fin); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// sqlite has no time type; fixed-width UTC text sorts chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

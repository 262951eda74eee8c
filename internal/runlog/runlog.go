// Package runlog persists a journal of sandbox command executions in a
// local sqlite database, so `workyard status` and postmortems can see
// what an agent actually ran.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.jetify.com/typeid"
	_ "modernc.org/sqlite"

	"github.com/workyardhq/workyard/internal/paths"
	"github.com/workyardhq/workyard/internal/sandbox"
)

// Entry is one journaled execution.
type Entry struct {
	RunID      string
	SandboxID  string
	Backend    string
	Command    string
	Args       []string
	CWD        string
	ExitCode   int
	Success    bool
	TimedOut   bool
	StartedAt  time.Time
	DurationMS int64
}

type Options struct {
	// DBPath overrides the default journal location under the state dir.
	DBPath string
	Now    func() time.Time
}

type Journal struct {
	dbPath string
	now    func() time.Time

	mu sync.Mutex
}

func New(opts Options) (*Journal, error) {
	dbPath := strings.TrimSpace(opts.DBPath)
	if dbPath == "" {
		var err error
		dbPath, err = paths.RunJournalDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve run journal path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create run journal directory for %q: %w", dbPath, err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	j := &Journal{dbPath: dbPath, now: now}
	if err := j.initDB(context.Background()); err != nil {
		return nil, err
	}
	return j, nil
}

// Record journals one execution result and returns the assigned run ID.
func (j *Journal) Record(ctx context.Context, sandboxID, backend, command string, args []string, cwd string, result sandbox.Result) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		RunID:      newRunID(),
		SandboxID:  sandboxID,
		Backend:    backend,
		Command:    command,
		Args:       slices.Clone(args),
		CWD:        cwd,
		ExitCode:   result.ExitCode,
		Success:    result.Success,
		TimedOut:   result.TimedOut,
		StartedAt:  j.now().UTC().Add(-result.Duration),
		DurationMS: result.Duration.Milliseconds(),
	}

	db, err := sql.Open("sqlite", j.dbPath)
	if err != nil {
		return Entry{}, fmt.Errorf("open run journal %q: %w", j.dbPath, err)
	}
	defer db.Close()

	argsJSON, err := marshalArgs(entry.Args)
	if err != nil {
		return Entry{}, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id,
			sandbox_id,
			backend,
			command,
			args_json,
			cwd,
			exit_code,
			success,
			timed_out,
			started_at_unix_ms,
			duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.RunID,
		entry.SandboxID,
		entry.Backend,
		entry.Command,
		argsJSON,
		entry.CWD,
		entry.ExitCode,
		boolToInt(entry.Success),
		boolToInt(entry.TimedOut),
		entry.StartedAt.UnixMilli(),
		entry.DurationMS,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("journal run %s: %w", entry.RunID, err)
	}
	return entry, nil
}

// Recent returns the newest entries, most recent first. A non-positive
// limit returns everything.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, `
		SELECT run_id, sandbox_id, backend, command, args_json, cwd,
			exit_code, success, timed_out, started_at_unix_ms, duration_ms
		FROM runs
		ORDER BY started_at_unix_ms DESC, run_id DESC
	`, nil, limit)
}

// BySandbox returns every journaled run for one sandbox, newest first.
func (j *Journal) BySandbox(ctx context.Context, sandboxID string) ([]Entry, error) {
	return j.query(ctx, `
		SELECT run_id, sandbox_id, backend, command, args_json, cwd,
			exit_code, success, timed_out, started_at_unix_ms, duration_ms
		FROM runs
		WHERE sandbox_id = ?
		ORDER BY started_at_unix_ms DESC, run_id DESC
	`, []any{sandboxID}, 0)
}

// Prune deletes entries older than the cutoff and reports how many rows
// were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	db, err := sql.Open("sqlite", j.dbPath)
	if err != nil {
		return 0, fmt.Errorf("open run journal %q: %w", j.dbPath, err)
	}
	defer db.Close()

	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE started_at_unix_ms < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune run journal: %w", err)
	}
	return res.RowsAffected()
}

func (j *Journal) query(ctx context.Context, stmt string, args []any, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	db, err := sql.Open("sqlite", j.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run journal %q: %w", j.dbPath, err)
	}
	defer db.Close()

	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query run journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry           Entry
			argsJSON        string
			success         int
			timedOut        int
			startedAtUnixMS int64
		)
		if err := rows.Scan(
			&entry.RunID,
			&entry.SandboxID,
			&entry.Backend,
			&entry.Command,
			&argsJSON,
			&entry.CWD,
			&entry.ExitCode,
			&success,
			&timedOut,
			&startedAtUnixMS,
			&entry.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan run journal row: %w", err)
		}
		entry.Success = success != 0
		entry.TimedOut = timedOut != 0
		entry.StartedAt = time.UnixMilli(startedAtUnixMS).UTC()
		if entry.Args, err = unmarshalArgs(argsJSON); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run journal: %w", err)
	}
	return entries, nil
}

func (j *Journal) initDB(ctx context.Context) error {
	db, err := sql.Open("sqlite", j.dbPath)
	if err != nil {
		return fmt.Errorf("open run journal %q: %w", j.dbPath, err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			sandbox_id TEXT NOT NULL,
			backend TEXT NOT NULL,
			command TEXT NOT NULL,
			args_json TEXT NOT NULL,
			cwd TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			success INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			started_at_unix_ms INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_sandbox ON runs(sandbox_id);
	`)
	if err != nil {
		return fmt.Errorf("initialise run journal schema: %w", err)
	}
	return nil
}

func newRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		return fmt.Sprintf("run_%d", time.Now().UnixNano())
	}
	return id.String()
}

func marshalArgs(args []string) (string, error) {
	b, err := json.Marshal(slices.Clone(args))
	if err != nil {
		return "", fmt.Errorf("marshal run args: %w", err)
	}
	return string(b), nil
}

func unmarshalArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse run args: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package ledger provides an opt-in SQLite registry of created scratch
// directories. The core handle in the root package keeps no on-disk state;
// the ledger exists so ops tooling (the sweeper, the CLI) can garbage-collect
// directories whose creating process died without closing them.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one registered scratch directory.
type Entry struct {
	ID        string
	Path      string
	Prefix    string
	PID       int
	CreatedAt time.Time
}

// Ledger is a SQLite-backed registry. Safe for concurrent use.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the ledger database at dbPath.
// Use ":memory:" for an in-memory ledger in tests.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scratch_dirs (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		prefix TEXT NOT NULL,
		pid INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_created_at ON scratch_dirs(created_at);
	CREATE INDEX IF NOT EXISTS idx_prefix ON scratch_dirs(prefix);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record registers a scratch directory. Missing fields get defaults: a fresh
// ID, the current process PID and the current time. A re-created path
// replaces its previous row.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PID == 0 {
		e.PID = os.Getpid()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO scratch_dirs (id, path, prefix, pid, created_at) VALUES (?, ?, ?, ?, ?)",
		e.ID, e.Path, e.Prefix, e.PID, e.CreatedAt.Unix(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// Remove deletes the row for path. Removing an unknown path is not an error.
func (l *Ledger) Remove(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx, "DELETE FROM scratch_dirs WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Lookup returns the entry for path, if registered.
func (l *Ledger) Lookup(ctx context.Context, path string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRowContext(ctx,
		"SELECT id, path, prefix, pid, created_at FROM scratch_dirs WHERE path = ?", path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query entry: %w", err)
	}
	return e, true, nil
}

// OlderThan returns all entries created before cutoff, oldest first.
func (l *Ledger) OlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		"SELECT id, path, prefix, pid, created_at FROM scratch_dirs WHERE created_at < ? ORDER BY created_at",
		cutoff.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// All returns every registered entry, oldest first.
func (l *Ledger) All(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		"SELECT id, path, prefix, pid, created_at FROM scratch_dirs ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var createdAt int64
	if err := row.Scan(&e.ID, &e.Path, &e.Prefix, &e.PID, &createdAt); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

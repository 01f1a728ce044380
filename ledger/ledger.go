// Package ledger records batch outcomes in a SQLite database so repeated
// runs over a tree of artifacts can be compared.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/pyrecon/decompiler"
	"github.com/chazu/pyrecon/report"
)

// ErrNotFound indicates no entry exists for a path.
var ErrNotFound = errors.New("no ledger entry")

// Status classifies an outcome.
type Status string

const (
	Clean   Status = "clean"   // no placeholders
	Partial Status = "partial" // placeholders emitted
	Failed  Status = "failed"  // artifact rejected or unreadable
)

// Entry is one recorded outcome.
type Entry struct {
	ID           string
	Path         string
	Output       string
	Revision     string
	Hash         string
	Placeholders int
	Status       Status
	Error        string
	RecordedAt   time.Time
}

// Ledger is a SQLite-backed outcome store. It is safe for concurrent use.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS outcomes (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		output TEXT NOT NULL,
		revision TEXT NOT NULL,
		hash TEXT NOT NULL,
		placeholders INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS outcomes_path ON outcomes (path, recorded_at)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Record stores a batch outcome.
func (l *Ledger) Record(ctx context.Context, o *decompiler.Outcome) error {
	e := Entry{Path: o.Path, Output: o.Output, RecordedAt: time.Now()}
	switch {
	case o.Err != nil:
		e.ID = uuid.NewString()
		e.Status = Failed
		e.Error = o.Err.Error()
	default:
		res := o.Result
		e.ID = res.ID.String()
		e.Revision = res.Revision
		e.Hash = report.FormatHash(res.Hash)
		e.Placeholders = res.Placeholders()
		e.Status = Clean
		if e.Placeholders > 0 {
			e.Status = Partial
		}
	}
	return l.Put(ctx, e)
}

// Put stores e, replacing an entry with the same ID.
func (l *Ledger) Put(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO outcomes
			(id, path, output, revision, hash, placeholders, status, error, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.Output, e.Revision, e.Hash, e.Placeholders, string(e.Status), e.Error,
		e.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving outcome: %w", err)
	}
	return nil
}

const selectEntry = `SELECT id, path, output, revision, hash, placeholders, status, error, recorded_at FROM outcomes`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var status string
	var at int64
	err := s.Scan(&e.ID, &e.Path, &e.Output, &e.Revision, &e.Hash, &e.Placeholders, &status, &e.Error, &at)
	e.Status = Status(status)
	e.RecordedAt = time.Unix(0, at)
	return e, err
}

// Latest returns the most recent entry for path.
func (l *Ledger) Latest(ctx context.Context, path string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, selectEntry+" WHERE path = ? ORDER BY recorded_at DESC LIMIT 1", path)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w for %s", ErrNotFound, path)
		}
		return Entry{}, fmt.Errorf("querying outcome: %w", err)
	}
	return e, nil
}

// Entries returns every entry, oldest first.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntry+" ORDER BY recorded_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary counts entries by status.
func (l *Ledger) Summary(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM outcomes GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

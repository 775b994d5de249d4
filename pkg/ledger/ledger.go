// Package ledger records hashed-secret access attempts for rate
// limiting. The ledger is deliberately unencrypted and lives outside
// any vault's trust boundary: it must be readable before any secret is
// known, and compromising it reveals only one-way hashes and
// timestamps, never vault contents or plaintext secrets.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kesuzuki/pinvault/pkg/crypto"

	_ "modernc.org/sqlite"
)

const (
	// FileMode is applied to the ledger database file.
	FileMode = 0600
	// DirMode is applied to the ledger's parent directory.
	DirMode = 0700
)

// Ledger is an append-only record of access attempts, backed by its own
// SQLite database, separate from every vault store. Entries are never
// updated or deleted; the distinct-count query is always computed on
// read.
type Ledger struct {
	mu  sync.Mutex
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone whose calendar-day boundaries bound
// the attempt window. Defaults to the local zone.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// Open opens (creating if needed) the attempt ledger at path.
func Open(path string, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return nil, fmt.Errorf("ledger: failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY,
			secret_hash TEXT NOT NULL,
			attempted_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to create attempts table: %w", err)
	}
	if _, err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_attempts_at ON attempts(attempted_at)",
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to create idx_attempts_at: %w", err)
	}

	if err := os.Chmod(path, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to set ledger permissions: %w", err)
	}

	l := &Ledger{
		db:  db,
		loc: time.Local,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LogAttempt appends an attempt record for the given secret. Only the
// one-way hash of the secret is stored.
func (l *Ledger) LogAttempt(secret string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hash := crypto.HashSecret(secret)
	if _, err := l.db.Exec(
		"INSERT INTO attempts (secret_hash, attempted_at) VALUES (?, ?)",
		hash, l.now().UTC(),
	); err != nil {
		return fmt.Errorf("ledger: failed to append attempt: %w", err)
	}
	return nil
}

// DistinctAttemptsInWindow counts distinct secret hashes among records
// whose timestamp falls within the current calendar-day window.
// Retrying the same secret any number of times contributes one; only
// trying different secrets grows the count.
func (l *Ledger) DistinctAttemptsInWindow() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var count int
	err := l.db.QueryRow(
		"SELECT COUNT(DISTINCT secret_hash) FROM attempts WHERE attempted_at >= ?",
		l.windowStart().UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledger: failed to count attempts: %w", err)
	}
	return count, nil
}

// AttemptCount returns the total number of records ever appended. The
// ledger never deletes, so this only grows.
func (l *Ledger) AttemptCount() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var count int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM attempts").Scan(&count); err != nil {
		return 0, fmt.Errorf("ledger: failed to count records: %w", err)
	}
	return count, nil
}

// WindowReset returns the instant the current attempt window rolls
// over: the start of the next calendar day in the configured zone.
func (l *Ledger) WindowReset() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.windowStart().AddDate(0, 0, 1)
}

// windowStart returns midnight of the current calendar day. Callers
// must hold l.mu.
func (l *Ledger) windowStart() time.Time {
	now := l.now().In(l.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
}

// Close releases the ledger database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	if err != nil {
		return fmt.Errorf("ledger: failed to close database: %w", err)
	}
	return nil
}

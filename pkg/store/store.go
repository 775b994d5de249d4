// Package store implements the encrypted-at-rest storage engine backing
// each vault: one SQLite database per store, with all entry data
// encrypted under a random DEK that is itself encrypted under an
// Argon2id key derived from the caller's secret.
//
// Opening a store does not verify the secret. Decryption only actually
// executes on the first read, so callers must issue Probe before any
// entry operation; a wrong secret surfaces there as
// crypto.ErrDecryptionFailed.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kesuzuki/pinvault/pkg/crypto"

	_ "modernc.org/sqlite"
)

const (
	// FileMode is applied to store database files.
	FileMode = 0600
	// DirMode is applied to the directory holding store files.
	DirMode = 0700

	// MaxNameLength is the maximum entry name length in bytes.
	MaxNameLength = 256
	// MaxBodySize is the maximum entry body size in bytes (1 MB).
	MaxBodySize = 1024 * 1024

	// nameKeyInfo separates the entry-name HMAC key from the DEK proper.
	nameKeyInfo = "pinvault-entry-name-v1"
)

// Errors
var (
	ErrSealed        = errors.New("store: key not verified, call Probe first")
	ErrClosed        = errors.New("store: store is closed")
	ErrEntryNotFound = errors.New("store: entry not found")
	ErrNameTooLong   = errors.New("store: entry name too long")
	ErrNameEmpty     = errors.New("store: entry name is empty")
	ErrBodyTooLarge  = errors.New("store: entry body too large")
	ErrKeyRowMissing = errors.New("store: key material not found in database")
)

// Entry is a single named, encrypted record held by a store.
type Entry struct {
	Name       string     // Entry name (encrypted at rest)
	Body       []byte     // Entry body (encrypted at rest, nil on list results)
	Pinned     bool       // Plaintext flag, kept queryable
	ArchivedAt *time.Time // Set when the entry is archived
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is an open handle to one encrypted store. A Store is created
// sealed; Probe verifies the secret and unseals it. Close is safe to
// call more than once.
type Store struct {
	mu      sync.Mutex
	path    string
	db      *sql.DB
	secret  []byte // Held only until Probe succeeds, then wiped
	dek     []byte // Data encryption key, nil while sealed
	nameKey []byte
	closed  bool
}

// OpenOrCreate opens the store at path, creating a new empty store keyed
// by secret when no file exists there. The secret is NOT verified here;
// the returned handle is sealed until Probe succeeds.
func OpenOrCreate(path, secret string) (*Store, error) {
	_, statErr := os.Stat(path)
	creating := os.IsNotExist(statErr)
	if statErr != nil && !creating {
		return nil, fmt.Errorf("store: failed to stat %s: %w", path, statErr)
	}

	if creating {
		if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
			return nil, fmt.Errorf("store: failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single-connection mode keeps SQLite from returning "database is
	// locked" under the serialized access pattern the vault manager
	// already guarantees.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to set busy timeout: %w", err)
	}

	s := &Store{
		path:   path,
		db:     db,
		secret: []byte(secret),
	}

	if creating {
		if err := s.bootstrap(); err != nil {
			db.Close()
			_ = os.Remove(path)
			return nil, err
		}
		if err := os.Chmod(path, FileMode); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: failed to set database permissions: %w", err)
		}
	}

	return s, nil
}

// bootstrap writes the key material of a brand-new store: a fresh salt,
// a fresh DEK, and the DEK encrypted under the secret-derived KEK.
func (s *Store) bootstrap() error {
	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	dek, err := crypto.NewKey()
	if err != nil {
		return err
	}

	kek := crypto.DeriveKey(s.secret, salt)
	encryptedDEK, nonce, err := crypto.Encrypt(kek, dek)
	crypto.SecureWipe(kek)
	crypto.SecureWipe(dek)
	if err != nil {
		return fmt.Errorf("store: failed to encrypt DEK: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS store_keys (
			id INTEGER PRIMARY KEY,
			salt BLOB NOT NULL,
			encrypted_dek BLOB NOT NULL,
			dek_nonce BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: failed to create store_keys table: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO store_keys (id, salt, encrypted_dek, dek_nonce, created_at) VALUES (1, ?, ?, ?, ?)",
		salt, encryptedDEK, nonce, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("store: failed to save key material: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit key material: %w", err)
	}
	return nil
}

// Probe forces decryption to execute: it reads the encrypted DEK and
// decrypts it with the key derived from the secret this handle was
// opened with. A wrong secret returns crypto.ErrDecryptionFailed. On
// success the store is unsealed and the in-memory secret copy is wiped.
func (s *Store) Probe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.dek != nil {
		return nil
	}

	var salt, encryptedDEK, nonce []byte
	err := s.db.QueryRow(
		"SELECT salt, encrypted_dek, dek_nonce FROM store_keys WHERE id = 1",
	).Scan(&salt, &encryptedDEK, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrKeyRowMissing
		}
		return fmt.Errorf("store: failed to read key material: %w", err)
	}

	kek := crypto.DeriveKey(s.secret, salt)
	dek, err := crypto.Decrypt(kek, encryptedDEK, nonce)
	crypto.SecureWipe(kek)
	if err != nil {
		// crypto.ErrDecryptionFailed passes through unwrapped so the
		// vault manager can classify it.
		return err
	}

	nameKey, err := crypto.DeriveSubkey(dek, nameKeyInfo)
	if err != nil {
		crypto.SecureWipe(dek)
		return err
	}

	s.dek = dek
	s.nameKey = nameKey
	crypto.SecureWipe(s.secret)
	s.secret = nil
	return nil
}

// Path returns the filesystem path of the store database.
func (s *Store) Path() string {
	return s.path
}

// Close wipes the key material and releases the database. It is safe to
// call more than once; later calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.secret != nil {
		crypto.SecureWipe(s.secret)
		s.secret = nil
	}
	if s.dek != nil {
		crypto.SecureWipe(s.dek)
		s.dek = nil
	}
	if s.nameKey != nil {
		crypto.SecureWipe(s.nameKey)
		s.nameKey = nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	return nil
}

// encryptWithNonce encrypts data under the DEK and prepends the nonce,
// combining both into a single blob for storage.
func (s *Store) encryptWithNonce(plaintext []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(s.dek, plaintext)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// decryptWithNonce decrypts a blob produced by encryptWithNonce.
func (s *Store) decryptWithNonce(blob []byte) ([]byte, error) {
	if len(blob) < crypto.NonceLength {
		return nil, fmt.Errorf("store: invalid encrypted data: too short")
	}
	return crypto.Decrypt(s.dek, blob[crypto.NonceLength:], blob[:crypto.NonceLength])
}

func validateName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// PutEntry saves or updates an entry, upserting on the keyed name hash.
func (s *Store) PutEntry(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.dek == nil {
		return ErrSealed
	}
	if err := validateName(entry.Name); err != nil {
		return err
	}
	if len(entry.Body) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes exceeds maximum of %d bytes",
			ErrBodyTooLarge, len(entry.Body), MaxBodySize)
	}

	nameHash := crypto.HMACName(s.nameKey, entry.Name)

	encryptedName, err := s.encryptWithNonce([]byte(entry.Name))
	if err != nil {
		return fmt.Errorf("store: failed to encrypt entry name: %w", err)
	}
	encryptedBody, err := s.encryptWithNonce(entry.Body)
	if err != nil {
		return fmt.Errorf("store: failed to encrypt entry body: %w", err)
	}

	var archivedAt sql.NullTime
	if entry.ArchivedAt != nil {
		archivedAt = sql.NullTime{Time: *entry.ArchivedAt, Valid: true}
	}

	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO entries (name_hash, encrypted_name, encrypted_body, pinned, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name_hash) DO UPDATE SET
			encrypted_name = excluded.encrypted_name,
			encrypted_body = excluded.encrypted_body,
			pinned = excluded.pinned,
			archived_at = excluded.archived_at,
			updated_at = excluded.updated_at
	`, nameHash, encryptedName, encryptedBody, entry.Pinned, archivedAt, now, now); err != nil {
		return fmt.Errorf("store: failed to save entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

// GetEntry retrieves a complete entry by name.
func (s *Store) GetEntry(name string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.dek == nil {
		return nil, ErrSealed
	}

	nameHash := crypto.HMACName(s.nameKey, name)

	var encryptedBody []byte
	var pinned bool
	var archivedAt sql.NullTime
	var createdAt, updatedAt time.Time

	err := s.db.QueryRow(`
		SELECT encrypted_body, pinned, archived_at, created_at, updated_at
		FROM entries WHERE name_hash = ?`,
		nameHash,
	).Scan(&encryptedBody, &pinned, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("store: failed to read entry: %w", err)
	}

	body, err := s.decryptWithNonce(encryptedBody)
	if err != nil {
		return nil, fmt.Errorf("store: failed to decrypt entry body: %w", err)
	}

	entry := &Entry{
		Name:      name,
		Body:      body,
		Pinned:    pinned,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if archivedAt.Valid {
		entry.ArchivedAt = &archivedAt.Time
	}
	return entry, nil
}

// ListEntries returns all entries ordered by creation time, with names
// decrypted but bodies left out.
func (s *Store) ListEntries() ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.dek == nil {
		return nil, ErrSealed
	}

	rows, err := s.db.Query(`
		SELECT encrypted_name, pinned, archived_at, created_at, updated_at
		FROM entries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var encryptedName []byte
		var pinned bool
		var archivedAt sql.NullTime
		var createdAt, updatedAt time.Time

		if err := rows.Scan(&encryptedName, &pinned, &archivedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan row: %w", err)
		}

		nameBytes, err := s.decryptWithNonce(encryptedName)
		if err != nil {
			return nil, fmt.Errorf("store: failed to decrypt entry name: %w", err)
		}

		entry := &Entry{
			Name:      string(nameBytes),
			Pinned:    pinned,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		}
		if archivedAt.Valid {
			entry.ArchivedAt = &archivedAt.Time
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating rows: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes an entry by name.
func (s *Store) DeleteEntry(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.dek == nil {
		return ErrSealed
	}

	nameHash := crypto.HMACName(s.nameKey, name)

	result, err := s.db.Exec("DELETE FROM entries WHERE name_hash = ?", nameHash)
	if err != nil {
		return fmt.Errorf("store: failed to delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

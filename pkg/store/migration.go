package store

import (
	"database/sql"
	"fmt"
)

// Schema version constants. Version 0 means no data schema has been
// applied yet (a freshly bootstrapped store holds only key material).
// Schema changes are additive only: older builds must remain able to
// read stores migrated by newer-but-compatible builds.
const (
	// SchemaVersion1 creates the base entries table.
	SchemaVersion1 = 1
	// SchemaVersion2 adds the pinned column.
	SchemaVersion2 = 2
	// SchemaVersion3 adds the archived_at column and an updated-at index.
	SchemaVersion3 = 3
	// CurrentSchemaVersion is the schema version this build writes.
	CurrentSchemaVersion = SchemaVersion3
)

// Version returns the schema version currently recorded in the store.
// A store with no schema_version table has version 0.
func (s *Store) Version() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return schemaVersion(s.db)
}

func schemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the store from its recorded schema version to
// CurrentSchemaVersion, applying each intermediate version exactly once,
// strictly in increasing order. Each step runs in its own transaction
// and is safe to re-run against a version that was never recorded as
// applied. Any step failing is fatal for the open operation; there is
// no partial-migration recovery.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	version, err := schemaVersion(s.db)
	if err != nil {
		return err
	}

	if version < SchemaVersion1 {
		if err := migrateToV1(s.db); err != nil {
			return fmt.Errorf("store: migration to v1 failed: %w", err)
		}
	}
	if version < SchemaVersion2 {
		if err := migrateToV2(s.db); err != nil {
			return fmt.Errorf("store: migration to v2 failed: %w", err)
		}
	}
	if version < SchemaVersion3 {
		if err := migrateToV3(s.db); err != nil {
			return fmt.Errorf("store: migration to v3 failed: %w", err)
		}
	}
	return nil
}

// migrateToV1 creates the base entries table and the schema_version
// bookkeeping table.
func migrateToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY,
			name_hash TEXT UNIQUE NOT NULL,
			encrypted_name BLOB NOT NULL,
			encrypted_body BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}

	if err := recordVersion(tx, SchemaVersion1); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// migrateToV2 adds the pinned column. The flag is stored in plaintext
// so pinned entries can be queried without decryption.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	columns, err := tableColumns(tx, "entries")
	if err != nil {
		return fmt.Errorf("failed to get table columns: %w", err)
	}

	if !columns["pinned"] {
		if _, err := tx.Exec("ALTER TABLE entries ADD COLUMN pinned INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("failed to add pinned column: %w", err)
		}
	}

	if err := recordVersion(tx, SchemaVersion2); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// migrateToV3 adds the archived_at column and an index on updated_at.
func migrateToV3(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	columns, err := tableColumns(tx, "entries")
	if err != nil {
		return fmt.Errorf("failed to get table columns: %w", err)
	}

	if !columns["archived_at"] {
		if _, err := tx.Exec("ALTER TABLE entries ADD COLUMN archived_at TIMESTAMP"); err != nil {
			return fmt.Errorf("failed to add archived_at column: %w", err)
		}
	}

	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_at)"); err != nil {
		return fmt.Errorf("failed to create idx_entries_updated: %w", err)
	}

	if err := recordVersion(tx, SchemaVersion3); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// recordVersion writes a schema version inside an open migration
// transaction, creating the bookkeeping table on first use.
func recordVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// tableColumns returns a map of column names for a table, used by
// migrations to stay idempotent under re-runs.
func tableColumns(tx *sql.Tx, tableName string) (map[string]bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

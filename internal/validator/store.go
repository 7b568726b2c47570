package validator

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is the persistent, cross-restart cache of owner validation
// results. It exists so that opening a large manifest doesn't start every
// session with a cold forge cache.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates a SQLite database at dbPath. If the existing
// database has an incompatible schema, it is deleted and recreated rather
// than left to fail every query.
func OpenStore(dbPath string) (*Store, error) {
	store, err := openStore(dbPath)
	if err != nil {
		if isSchemaMismatch(err) {
			if rmErr := os.Remove(dbPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("remove incompatible cache: %w", rmErr)
			}
			os.Remove(dbPath + "-wal")
			os.Remove(dbPath + "-shm")
			return openStore(dbPath)
		}
		return nil, err
	}
	return store, nil
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "SQL logic error")
}

func openStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	escapedPath := strings.ReplaceAll(dbPath, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escapedPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadAll reads every cached Record from the store, for hydrating the
// in-memory cache at startup.
func (s *Store) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, status, display_name, reason, fetched_at, checksum
		FROM owner_validations
	`)
	if err != nil {
		return nil, fmt.Errorf("load owner records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		row, err := scanOwnerRow(rows)
		var mismatch *checksumMismatchError
		if errors.As(err, &mismatch) {
			log.Printf("[validator] %v, demoting to unknown", err)
			records = append(records, row)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	return records, rows.Err()
}

// UpsertBatch persists a batch of Records inside a single transaction, the
// unit of work a refresh cycle writes back.
func (s *Store) UpsertBatch(ctx context.Context, records []Record) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO owner_validations (owner, status, display_name, reason, fetched_at, checksum)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(owner) DO UPDATE SET
				status = excluded.status,
				display_name = excluded.display_name,
				reason = excluded.reason,
				fetched_at = excluded.fetched_at,
				checksum = excluded.checksum
		`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			row := recordToRow(r)
			if _, err := stmt.ExecContext(ctx, row.owner, row.status, row.displayName, row.reason, row.fetchedAt, row.checksum); err != nil {
				return fmt.Errorf("upsert owner %s: %w", r.Owner, err)
			}
		}
		return nil
	})
}

// RecordRefreshRun logs a completed refresh batch for observability in the
// refresh_runs table.
func (s *Store) RecordRefreshRun(ctx context.Context, batchID string, started time.Time, ownerCount int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (batch_id, started_at, finished_at, owner_count, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			owner_count = excluded.owner_count,
			error = excluded.error
	`, batchID, started, time.Now(), ownerCount, errText)
	if err != nil {
		return fmt.Errorf("record refresh run: %w", err)
	}
	return nil
}

// Package sqlite persists state entries in a single SQLite key/value table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Storage is a SQLite-backed state backend. Multi-key saves commit together.
type Storage struct {
	db *sql.DB
}

// Open creates the database file if needed and applies migrations.
func Open(dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite.Open: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	// One writer keeps sqlite from reporting SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	return &Storage{db: db}, nil
}

// Close closes the database handle.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the value stored under key.
func (s *Storage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite.Load: %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Save upserts every entry inside one transaction.
func (s *Storage) Save(ctx context.Context, entries map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.Save: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, string(value), now)
		if err != nil {
			return fmt.Errorf("sqlite.Save: upsert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.Save: commit: %w", err)
	}
	return nil
}

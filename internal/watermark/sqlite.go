package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const watermarkName = "last_processed_time"

// SQLiteStore keeps the watermark in a single row of a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("create db dir: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	// One connection serializes writers and avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("set busy timeout: %w", err)}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, &PersistenceError{Op: "get", Err: errors.New("store is not initialized")}
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM watermark WHERE name = ?", watermarkName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &PersistenceError{Op: "get", Err: err}
	}

	ts, err := parseTime(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, ts time.Time) error {
	if s == nil || s.db == nil {
		return &PersistenceError{Op: "set", Err: errors.New("store is not initialized")}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermark (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, watermarkName, formatTime(ts), formatTime(time.Now()))
	if err != nil {
		return &PersistenceError{Op: "set", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return &PersistenceError{Op: "reset", Err: errors.New("store is not initialized")}
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM watermark WHERE name = ?", watermarkName); err != nil {
		return &PersistenceError{Op: "reset", Err: err}
	}
	return nil
}

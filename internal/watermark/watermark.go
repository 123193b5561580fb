// Package watermark persists the publication time of the newest feed entry
// that has been notified.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ErrMalformed is returned by Get when the persisted value cannot be parsed.
var ErrMalformed = errors.New("malformed watermark")

// Store holds a single optional timestamp.
//
// Get reports ok == false when no watermark has been recorded or it was reset.
// Set replaces the value atomically: concurrent readers observe either the old
// or the new value. Reset is idempotent.
type Store interface {
	Get(ctx context.Context) (ts time.Time, ok bool, err error)
	Set(ctx context.Context, ts time.Time) error
	Reset(ctx context.Context) error
	Close() error
}

// PersistenceError reports a failed read or write of the backing storage.
type PersistenceError struct {
	Op  string // open, get, set, reset
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("watermark %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Open initializes the store selected by driver.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverFile, "":
		return OpenFile(path)
	case DriverSQLite, "sqlite3":
		return OpenSQLite(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown watermark driver %q", driver)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// isoNaive matches timestamps written without a zone offset; they are read as UTC.
const isoNaive = "2006-01-02T15:04:05.999999999"

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation(isoNaive, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	return ts, nil
}

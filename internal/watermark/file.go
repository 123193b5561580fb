package watermark

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore keeps the watermark as a single RFC 3339 line in a text file.
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers never see a partial value.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

func OpenFile(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "open", Err: err}
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Get(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &PersistenceError{Op: "get", Err: err}
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return time.Time{}, false, nil
	}
	ts, err := parseTime(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func (s *FileStore) Set(_ context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, []byte(formatTime(ts)+"\n")); err != nil {
		return &PersistenceError{Op: "set", Err: err}
	}
	return nil
}

func (s *FileStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &PersistenceError{Op: "reset", Err: err}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package watermark

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. State is lost on exit.
type MemoryStore struct {
	mu  sync.RWMutex
	ts  time.Time
	set bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ts, s.set, nil
}

func (s *MemoryStore) Set(_ context.Context, ts time.Time) error {
	s.mu.Lock()
	s.ts, s.set = ts.UTC(), true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.ts, s.set = time.Time{}, false
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

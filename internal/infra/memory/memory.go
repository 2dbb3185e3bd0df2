// Package memory is a map-backed state backend. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
)

// Storage keeps state entries in memory and is safe for concurrent use.
type Storage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// New creates an empty Storage.
func New() *Storage {
	return &Storage{entries: make(map[string][]byte)}
}

// Load returns a copy of the value stored under key.
func (s *Storage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Save stores every entry, replacing existing values.
func (s *Storage) Save(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range entries {
		s.entries[k] = append([]byte(nil), v...)
	}
	return nil
}

// Keys lists the stored keys in order.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }

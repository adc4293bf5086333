// store.go — Key/value storage backends for persisted state.
// Every value carries the time it was written so stale per-conversation keys can
// be expired.
package persistence

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Entry is a stored value and its write time.
type Entry struct {
	Value     []byte
	UpdatedAt time.Time
}

// KeyInfo describes one stored key without its value.
type KeyInfo struct {
	Key       string
	UpdatedAt time.Time
}

// Store is a durable key/value map.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, value []byte, at time.Time) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]KeyInfo, error)
	Close() error
}

// ============================================
// MemoryStore
// ============================================

// MemoryStore keeps everything in process memory. Used for ephemeral runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{Value: append([]byte(nil), e.Value...), UpdatedAt: e.UpdatedAt}, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{Value: append([]byte(nil), value...), UpdatedAt: at}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]KeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KeyInfo, 0)
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KeyInfo{Key: k, UpdatedAt: e.UpdatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

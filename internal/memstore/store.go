package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/vk/chunkgrid/internal/snapshot"
)

// Store is an in-memory implementation of snapshot.Store.
type Store struct {
	mu      sync.RWMutex
	records []snapshot.Record
	saves   int
}

var _ snapshot.Store = (*Store)(nil)

// New creates a new, empty in-memory snapshot store.
func New() *Store {
	return &Store{}
}

// Load returns a copy of the last saved snapshot.
func (s *Store) Load(ctx context.Context) ([]snapshot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records), nil
}

// Save replaces the stored snapshot. The records are copied, so callers may
// reuse the slice.
func (s *Store) Save(ctx context.Context, records []snapshot.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = cloneRecords(records)
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cloneRecords(in []snapshot.Record) []snapshot.Record {
	if in == nil {
		return nil
	}
	out := make([]snapshot.Record, len(in))
	for i, r := range in {
		r.Parents = slices.Clone(r.Parents)
		r.Children = slices.Clone(r.Children)
		out[i] = r
	}
	return out
}

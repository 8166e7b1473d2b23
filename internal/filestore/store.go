// Package filestore persists snapshots as a YAML document on local disk.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/fsutil"
	"github.com/vk/chunkgrid/internal/snapshot"
	"gopkg.in/yaml.v3"
)

// document is the on-disk layout.
type document struct {
	Expid string            `yaml:"expid"`
	Jobs  []snapshot.Record `yaml:"jobs"`
}

// Store keeps one experiment's snapshot in a single file. Saves write a
// temporary file in the same directory and rename it over the target, so a
// crash never leaves a half-written snapshot behind.
type Store struct {
	mu    sync.RWMutex
	path  string
	expid string
}

var _ snapshot.Store = (*Store)(nil)

// New returns a store writing to path.
func New(path, expid string) *Store {
	return &Store{path: path, expid: expid}
}

// Load reads the snapshot. A missing file is an empty snapshot.
func (s *Store) Load(ctx context.Context) ([]snapshot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		ctxlog.FromContext(ctx).Debug("No snapshot file yet.", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", s.path, err)
	}
	if doc.Expid != "" && doc.Expid != s.expid {
		return nil, fmt.Errorf("snapshot %s belongs to experiment %q, not %q", s.path, doc.Expid, s.expid)
	}
	return doc.Jobs, nil
}

// Save writes records atomically.
func (s *Store) Save(ctx context.Context, records []snapshot.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(document{Expid: s.expid, Jobs: records})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Snapshot saved.", "path", s.path, "jobs", len(records))
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

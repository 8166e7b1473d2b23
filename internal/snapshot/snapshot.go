// Package snapshot defines the persisted form of a job collection and the
// interface every storage backend implements.
//
// # Purpose
//
// A snapshot captures what a restarted scheduler needs to resume an
// experiment: each job's status, retry bookkeeping, remote id and its place
// in the dependency graph. Job definitions themselves are regenerated from
// configuration; only the mutable state is restored by name.
//
// # Backends
//
//   - memstore: in-process, for tests and dry runs
//   - filestore: a YAML file replaced atomically
//   - pgstore: a Postgres table keyed by (expid, name)
//   - etcdstore: one etcd key per job under an experiment prefix
//
// A backend holding nothing for the experiment loads as an empty snapshot,
// never as an error.
package snapshot

import (
	"context"
	"time"

	"github.com/vk/chunkgrid/internal/job"
)

// Record is the persisted state of one job.
type Record struct {
	Name      string     `json:"name" yaml:"name"`
	Section   string     `json:"section" yaml:"section"`
	Status    job.Status `json:"status" yaml:"status"`
	FailCount int        `json:"fail_count" yaml:"fail_count"`
	Date      time.Time  `json:"date,omitzero" yaml:"date,omitempty"`
	Member    string     `json:"member,omitempty" yaml:"member,omitempty"`
	Chunk     int        `json:"chunk,omitempty" yaml:"chunk,omitempty"`
	Split     int        `json:"split,omitempty" yaml:"split,omitempty"`
	RemoteID  string     `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	Packed    bool       `json:"packed,omitempty" yaml:"packed,omitempty"`
	Parents   []string   `json:"parents,omitempty" yaml:"parents,omitempty"`
	Children  []string   `json:"children,omitempty" yaml:"children,omitempty"`
}

// FromJob captures the current state of j.
func FromJob(j *job.Job) Record {
	r := Record{
		Name:      j.Name,
		Section:   j.Section,
		Status:    j.Status(),
		FailCount: j.FailCount,
		Date:      j.Date(),
		Member:    j.Member(),
		Chunk:     j.Chunk(),
		Split:     j.Split(),
		RemoteID:  j.ID,
		Packed:    j.Packed,
	}
	for _, p := range j.Parents() {
		r.Parents = append(r.Parents, p.Name)
	}
	for _, c := range j.Children() {
		r.Children = append(r.Children, c.Name)
	}
	return r
}

// Store persists snapshots of one experiment.
//
// Implementations must be safe for use by one writer and concurrent readers.
type Store interface {
	// Load returns the last saved snapshot, or an empty one.
	Load(ctx context.Context) ([]Record, error)
	// Save replaces the stored snapshot with records.
	Save(ctx context.Context, records []Record) error
	Close() error
}

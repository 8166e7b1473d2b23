// Package joblist owns the complete job collection of an experiment. It
// generates the jobs of every section, wires their dependencies into the
// graph, keeps the graph minimal, and runs the per-tick retry and promotion
// policy.
//
// A JobList is not safe for concurrent use. The scheduler is its only
// writer; readers must be serialized with the scheduler's ticks.
package joblist

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/jobdict"
	"github.com/vk/chunkgrid/internal/snapshot"
)

// ErrCyclicDependency is returned by Generate when the declared dependencies
// form a cycle.
var ErrCyclicDependency = errors.New("cyclic dependency")

// JobList is the job collection of one experiment.
type JobList struct {
	model     *config.Model
	arena     *job.Arena
	dict      *jobdict.Dict
	platforms map[string]job.Platform
}

// New creates an empty collection. platforms maps platform names to their
// implementations and may be nil.
func New(model *config.Model, platforms map[string]job.Platform) *JobList {
	arena := job.NewArena()
	return &JobList{
		model:     model,
		arena:     arena,
		dict:      jobdict.New(model, arena, platforms),
		platforms: platforms,
	}
}

// Arena exposes the arena holding the jobs and their graph.
func (l *JobList) Arena() *job.Arena { return l.arena }

// Model returns the configuration the list was generated from.
func (l *JobList) Model() *config.Model { return l.model }

// Expid returns the experiment id.
func (l *JobList) Expid() string { return l.model.Experiment.ID }

// GenerateOptions controls Generate.
type GenerateOptions struct {
	// New ignores Previous and builds the genealogy from configuration.
	New bool
	// Previous is the last saved snapshot. When set and New is false, the
	// saved statuses and graph replace the generated ones.
	Previous []snapshot.Record
}

// Generate creates every job and links them. On a fresh generation the
// dependency keys are resolved, jobs without a template are bypassed, the
// graph is reduced and parentless jobs become READY. When restoring, the
// saved graph and state are applied instead.
func (l *JobList) Generate(ctx context.Context, opts GenerateOptions) error {
	logger := ctxlog.FromContext(ctx)

	if err := l.dict.Populate(ctx); err != nil {
		return err
	}

	if !opts.New && len(opts.Previous) > 0 {
		if err := l.restore(ctx, opts.Previous); err != nil {
			return err
		}
		logger.Info("Job list restored from snapshot.", "expid", l.Expid(), "jobs", l.Len())
		return nil
	}

	if err := l.addDependencies(ctx); err != nil {
		return err
	}
	if err := l.updateGenealogy(ctx); err != nil {
		return err
	}
	logger.Info("Job list generated.", "expid", l.Expid(), "jobs", l.Len(), "edges", len(l.arena.Graph().Edges()))
	return nil
}

// updateGenealogy drops jobs without a template, reduces the graph and
// promotes parentless WAITING jobs to READY.
func (l *JobList) updateGenealogy(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, j := range l.arena.Jobs() {
		if j.File == "" {
			logger.Debug("Removing job without template.", "job", j.Name)
			if err := l.remove(j); err != nil {
				return err
			}
		}
	}

	if err := l.arena.Graph().DetectCycles(); err != nil {
		return fmt.Errorf("%w: %w", ErrCyclicDependency, err)
	}
	removed, err := l.arena.Graph().TransitiveReduction()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCyclicDependency, err)
	}
	logger.Debug("Graph reduced.", "edges_removed", removed)

	for _, j := range l.arena.Jobs() {
		if j.Status() == job.Waiting && !j.HasParents() {
			j.SetStatus(job.Ready)
		}
	}
	return nil
}

// remove drops j from the collection. Its parents are linked directly to
// its children so the ordering they imposed survives.
func (l *JobList) remove(j *job.Job) error {
	parents := j.Parents()
	for _, child := range j.Children() {
		if err := child.AddParent(parents...); err != nil {
			return err
		}
	}
	return l.arena.Remove(j)
}

// restore applies a saved snapshot. Jobs the snapshot does not know were
// removed in an earlier run and are dropped again; the saved parent lists
// replace the generated edges.
func (l *JobList) restore(ctx context.Context, records []snapshot.Record) error {
	logger := ctxlog.FromContext(ctx)

	byName := make(map[string]snapshot.Record, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	for _, j := range l.arena.Jobs() {
		if _, ok := byName[j.Name]; !ok {
			if err := l.arena.Remove(j); err != nil {
				return err
			}
		}
	}

	for _, r := range records {
		j, ok := l.arena.ByName(r.Name)
		if !ok {
			logger.Warn("Snapshot names a job the configuration no longer generates.", "job", r.Name)
			continue
		}
		j.SetStatus(r.Status)
		j.FailCount = r.FailCount
		j.ID = r.RemoteID
		j.Packed = r.Packed
		for _, name := range r.Parents {
			p, ok := l.arena.ByName(name)
			if !ok {
				continue
			}
			if err := j.AddParent(p); err != nil {
				return err
			}
		}
	}

	if err := l.arena.Graph().DetectCycles(); err != nil {
		return fmt.Errorf("%w: %w", ErrCyclicDependency, err)
	}
	return nil
}

// Snapshot captures the state of every job in insertion order.
func (l *JobList) Snapshot() []snapshot.Record {
	jobs := l.arena.Jobs()
	out := make([]snapshot.Record, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, snapshot.FromJob(j))
	}
	return out
}

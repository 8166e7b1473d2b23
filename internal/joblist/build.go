package joblist

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/dependency"
	"github.com/vk/chunkgrid/internal/job"
)

// parseKeys parses the dependency keys of one section. Keys naming an
// undeclared section are logged and dropped.
func (l *JobList) parseKeys(ctx context.Context, section string, keys []string) ([]dependency.Dependency, error) {
	logger := ctxlog.FromContext(ctx)
	out := make([]dependency.Dependency, 0, len(keys))
	for _, key := range keys {
		d, err := dependency.Parse(key, l.model)
		if errors.Is(err, dependency.ErrUndefinedSection) {
			logger.Warn("Ignoring dependency on an undefined section.", "section", section, "dependency", key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", section, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// addDependencies resolves the dependency keys of every section for each
// of its jobs and adds the resulting edges.
func (l *JobList) addDependencies(ctx context.Context) error {
	for _, s := range l.model.Sections {
		deps, err := l.parseKeys(ctx, s.Name, s.Dependencies)
		if err != nil {
			return err
		}
		for _, j := range l.dict.Jobs(s.Name) {
			for _, d := range deps {
				if err := l.link(j, d); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// link adds the parents one dependency key gives j.
func (l *JobList) link(j *job.Job, d dependency.Dependency) error {
	axes := l.dict.Axes()
	target, ok := dependency.Resolve(axes, j.Coordinate(), d)
	if !ok {
		return nil
	}

	if dependency.Honored(d, target.Chunk) {
		parents := dependency.SelectSplits(l.dict.Lookup(d.Section, target), j.Split(), d)
		if err := addParents(j, parents); err != nil {
			return err
		}
	}

	// The window is taken around the resolved target, not around j, so
	// offset keys keep their lag.
	if j.Wait && j.Frequency > 1 {
		for _, c := range dependency.FrequencyWindow(axes, target, j.Frequency) {
			if err := addParents(j, l.dict.Lookup(d.Section, c)); err != nil {
				return err
			}
		}
	}
	return nil
}

// addParents links parents to j, skipping j itself: a clamped forward
// offset may resolve to the job's own coordinate.
func addParents(j *job.Job, parents []*job.Job) error {
	for _, p := range parents {
		if p == j {
			continue
		}
		if err := j.AddParent(p); err != nil {
			return err
		}
	}
	return nil
}

// Package jobdict instantiates the jobs of every section over the
// experiment axes and indexes them by (section, date, member, chunk) so the
// dependency builder can find parents.
package jobdict

import (
	"context"
	"fmt"
	"maps"

	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
)

// key addresses an index slot. Fields a section does not replicate over are
// always zero.
type key struct {
	section string
	date    int64
	member  string
	chunk   int
}

type entry struct {
	at   coord.Coordinate
	jobs []*job.Job
}

// Dict creates and indexes jobs.
type Dict struct {
	model      *config.Model
	axes       coord.Axes
	arena      *job.Arena
	platforms  map[string]job.Platform
	dateFormat string

	index   map[key][]*job.Job
	entries map[string][]entry
	// bySection keeps every section's jobs in creation order.
	bySection map[string][]*job.Job
}

// New prepares a Dict that adds its jobs to arena. platforms maps platform
// names to implementations; a missing entry leaves Job.Platform nil.
func New(model *config.Model, arena *job.Arena, platforms map[string]job.Platform) *Dict {
	axes := model.Axes()
	format := model.Experiment.DateFormat
	if format == "" {
		format = coord.DateFormatFor(axes.Dates)
	}
	return &Dict{
		model:      model,
		axes:       axes,
		arena:      arena,
		platforms:  platforms,
		dateFormat: format,
		index:      make(map[key][]*job.Job),
		entries:    make(map[string][]entry),
		bySection:  make(map[string][]*job.Job),
	}
}

// Axes returns the experiment axes the jobs were created over.
func (d *Dict) Axes() coord.Axes { return d.axes }

// DateFormat returns the format used for dates in job names.
func (d *Dict) DateFormat() string { return d.dateFormat }

// Populate creates the jobs of every section in declaration order.
func (d *Dict) Populate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, s := range d.model.Sections {
		var err error
		switch s.Running {
		case coord.RunOnce:
			err = d.createOnce(s)
		case coord.RunDate:
			err = d.createDates(s)
		case coord.RunMember:
			err = d.createMembers(s)
		case coord.RunChunk:
			err = d.createChunks(s)
		}
		if err != nil {
			return fmt.Errorf("creating jobs of section %s: %w", s.Name, err)
		}
		logger.Debug("Created section jobs.", "section", s.Name, "running", s.Running, "count", len(d.bySection[s.Name]))
	}
	return nil
}

func (d *Dict) createOnce(s *config.Section) error {
	j, err := d.build(s, coord.Coordinate{})
	if err != nil {
		return err
	}
	d.register(s, coord.Coordinate{}, j)
	return nil
}

// selected reports whether the count-th element (1-based) of a sequence of
// length n gets a job at the given frequency. The last element always does.
func selected(count, n, frequency int) bool {
	return count%frequency == 0 || count == n
}

func (d *Dict) createDates(s *config.Section) error {
	for i, date := range d.axes.Dates {
		if !selected(i+1, len(d.axes.Dates), s.Frequency) {
			continue
		}
		c := coord.Coordinate{Date: date}
		j, err := d.build(s, c)
		if err != nil {
			return err
		}
		d.register(s, c, j)
	}
	return nil
}

func (d *Dict) createMembers(s *config.Section) error {
	for _, date := range d.axes.Dates {
		for i, member := range d.axes.Members {
			if !selected(i+1, len(d.axes.Members), s.Frequency) {
				continue
			}
			c := coord.Coordinate{Date: date, Member: member}
			j, err := d.build(s, c)
			if err != nil {
				return err
			}
			d.register(s, c, j)
		}
	}
	return nil
}

// chunkSelected applies delay and frequency to the count-th chunk.
func (d *Dict) chunkSelected(s *config.Section, count, chunk int) bool {
	if s.Delay != -1 && s.Delay >= chunk {
		return false
	}
	return selected(count, len(d.axes.Chunks), s.Frequency)
}

func (d *Dict) createChunks(s *config.Section) error {
	switch s.Synchronize {
	case coord.SyncDate:
		// One job per chunk, shared by every date and member.
		for i, chunk := range d.axes.Chunks {
			if !d.chunkSelected(s, i+1, chunk) {
				continue
			}
			jobs, err := d.buildSplits(s, coord.Coordinate{Chunk: chunk})
			if err != nil {
				return err
			}
			for _, date := range d.axes.Dates {
				for _, member := range d.axes.Members {
					d.register(s, coord.Coordinate{Date: date, Member: member, Chunk: chunk}, jobs...)
				}
			}
		}
	case coord.SyncMember:
		// One job per date and chunk, shared by every member.
		for _, date := range d.axes.Dates {
			for i, chunk := range d.axes.Chunks {
				if !d.chunkSelected(s, i+1, chunk) {
					continue
				}
				jobs, err := d.buildSplits(s, coord.Coordinate{Date: date, Chunk: chunk})
				if err != nil {
					return err
				}
				for _, member := range d.axes.Members {
					d.register(s, coord.Coordinate{Date: date, Member: member, Chunk: chunk}, jobs...)
				}
			}
		}
	default:
		for _, date := range d.axes.Dates {
			for _, member := range d.axes.Members {
				for i, chunk := range d.axes.Chunks {
					if !d.chunkSelected(s, i+1, chunk) {
						continue
					}
					c := coord.Coordinate{Date: date, Member: member, Chunk: chunk}
					jobs, err := d.buildSplits(s, c)
					if err != nil {
						return err
					}
					d.register(s, c, jobs...)
				}
			}
		}
	}
	return nil
}

// buildSplits creates one job at c, or one per split when the section is
// split.
func (d *Dict) buildSplits(s *config.Section, c coord.Coordinate) ([]*job.Job, error) {
	if s.Splits <= 0 {
		j, err := d.build(s, c)
		if err != nil {
			return nil, err
		}
		return []*job.Job{j}, nil
	}
	jobs := make([]*job.Job, 0, s.Splits)
	for split := 1; split <= s.Splits; split++ {
		sc := c
		sc.Split = split
		j, err := d.build(s, sc)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (d *Dict) build(s *config.Section, c coord.Coordinate) (*job.Job, error) {
	e := d.model.Experiment
	j := job.New(job.Name(e.ID, d.dateFormat, s.Name, c), s.Name, c)

	typeName := s.Type
	if typeName == "" {
		typeName = e.DefaultJobType
	}
	typ, err := job.ParseType(typeName)
	if err != nil {
		return nil, err
	}
	j.Type = typ
	j.Priority = s.Priority
	j.File = s.File
	j.Running = s.Running
	j.Frequency = s.Frequency
	j.Wait = s.Wait
	j.Delay = s.Delay
	j.Synchronize = s.Synchronize
	j.Splits = s.Splits
	j.RerunOnly = s.RerunOnly
	j.Retrials = d.model.RetrialsOf(s)
	j.PlatformName = d.model.PlatformOf(s)
	j.Platform = d.platforms[j.PlatformName]
	j.Processors = s.Processors
	j.Threads = s.Threads
	j.Tasks = s.Tasks
	j.Wallclock = s.Wallclock
	j.Memory = s.Memory
	j.Queue = s.Queue
	j.Parameters = maps.Clone(s.Parameters)

	if err := d.arena.Add(j); err != nil {
		return nil, err
	}
	d.bySection[s.Name] = append(d.bySection[s.Name], j)
	return j, nil
}

func (d *Dict) register(s *config.Section, c coord.Coordinate, jobs ...*job.Job) {
	k := d.keyFor(s.Name, s.Running, c)
	d.index[k] = append(d.index[k], jobs...)
	d.entries[s.Name] = append(d.entries[s.Name], entry{at: c, jobs: jobs})
}

func (d *Dict) keyFor(section string, running coord.Running, c coord.Coordinate) key {
	k := key{section: section}
	if running >= coord.RunDate && c.HasDate() {
		k.date = c.Date.Unix()
	}
	if running >= coord.RunMember {
		k.member = c.Member
	}
	if running >= coord.RunChunk {
		k.chunk = c.Chunk
	}
	return k
}

// Jobs returns every job of section in creation order.
func (d *Dict) Jobs(section string) []*job.Job {
	return d.bySection[section]
}

// Lookup returns the jobs of section at c. Coordinates the section does not
// run over are ignored, and absent fields of c match every value. Results
// are in creation order without duplicates.
func (d *Dict) Lookup(section string, c coord.Coordinate) []*job.Job {
	s, ok := d.model.Section(section)
	if !ok {
		return nil
	}
	complete := (s.Running < coord.RunDate || c.HasDate()) &&
		(s.Running < coord.RunMember || c.HasMember()) &&
		(s.Running < coord.RunChunk || c.HasChunk())
	if complete {
		return d.live(d.index[d.keyFor(section, s.Running, c)])
	}

	var out []*job.Job
	seen := make(map[*job.Job]bool)
	for _, e := range d.entries[section] {
		if s.Running >= coord.RunDate && c.HasDate() && !e.at.Date.Equal(c.Date) {
			continue
		}
		if s.Running >= coord.RunMember && c.HasMember() && e.at.Member != c.Member {
			continue
		}
		if s.Running >= coord.RunChunk && c.HasChunk() && e.at.Chunk != c.Chunk {
			continue
		}
		for _, j := range e.jobs {
			if !seen[j] {
				seen[j] = true
				out = append(out, j)
			}
		}
	}
	return d.live(out)
}

// live drops jobs that were removed from the arena since generation.
func (d *Dict) live(jobs []*job.Job) []*job.Job {
	out := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Index() >= 0 {
			out = append(out, j)
		}
	}
	return out
}

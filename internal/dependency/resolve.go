// Package dependency turns dependency keys such as `SIM-1` or
// `POST[1:3]+2` into the coordinates of the parent jobs they point at.
//
// Offsets move along one axis, chosen from the target section's running
// type and the coordinates the dependent job has. A backward offset that
// falls off the start of its axis drops the dependency. A forward offset
// past the end degrades to the furthest valid position instead.
package dependency

import (
	"slices"

	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/job"
)

// Sign of a relative dependency. Zero means the dependency has no offset.
type Sign byte

const (
	NoSign Sign = 0
	Minus  Sign = '-'
	Plus   Sign = '+'
)

// Dependency is a parsed dependency key.
type Dependency struct {
	Key      string
	Section  string
	Sign     Sign
	Distance int
	// Splits restricts the parents to these split numbers. Nil means no
	// selector was given.
	Splits []int
	// Running and Delay are copied from the target section.
	Running coord.Running
	Delay   int
}

type axis int

const (
	axisNone axis = iota
	axisDate
	axisMember
	axisChunk
)

func (d Dependency) axisFor(c coord.Coordinate) axis {
	switch {
	case d.Running == coord.RunChunk && c.HasChunk():
		return axisChunk
	case c.HasMember() && (d.Running == coord.RunChunk || d.Running == coord.RunMember):
		return axisMember
	case c.HasDate() && d.Running != coord.RunOnce:
		return axisDate
	}
	return axisNone
}

// Resolve returns the coordinate that d points at from c, with the split
// cleared. ok is false when the dependency does not apply to c.
func Resolve(axes coord.Axes, c coord.Coordinate, d Dependency) (coord.Coordinate, bool) {
	target := c.WithoutSplit()
	if d.Sign == NoSign {
		return target, true
	}

	switch d.axisFor(c) {
	case axisChunk:
		i, ok := shift(axes.ChunkIndex(c.Chunk), len(axes.Chunks), d)
		if !ok {
			return target, false
		}
		target.Chunk = axes.Chunks[i]
	case axisMember:
		i, ok := shift(axes.MemberIndex(c.Member), len(axes.Members), d)
		if !ok {
			return target, false
		}
		target.Member = axes.Members[i]
	case axisDate:
		i, ok := shift(axes.DateIndex(c.Date), len(axes.Dates), d)
		if !ok {
			return target, false
		}
		target.Date = axes.Dates[i]
	}
	return target, true
}

// shift applies the offset to index on an axis of length n.
func shift(index, n int, d Dependency) (int, bool) {
	if index < 0 {
		return 0, false
	}
	switch d.Sign {
	case Minus:
		if index < d.Distance {
			return 0, false
		}
		return index - d.Distance, true
	case Plus:
		for step := d.Distance; step >= 0; step-- {
			if index+step < n {
				return index + step, true
			}
		}
	}
	return index, true
}

// Honored applies the target section's delay: the edge only exists when the
// section has no delay or the resolved chunk lies beyond it.
func Honored(d Dependency, chunk int) bool {
	return d.Delay == -1 || chunk > d.Delay
}

// SelectSplits narrows the candidate parents of a split-aware dependency.
// A job with its own split takes the parent with the same split; otherwise
// the selector, when present, picks the allowed splits. Parents without
// splits are returned unchanged.
func SelectSplits(parents []*job.Job, jobSplit int, d Dependency) []*job.Job {
	if len(parents) == 0 || parents[0].Split() == 0 {
		return parents
	}
	if jobSplit != 0 {
		for _, p := range parents {
			if p.Split() == jobSplit {
				return []*job.Job{p}
			}
		}
		return nil
	}
	if d.Splits == nil {
		return parents
	}
	var out []*job.Job
	for _, p := range parents {
		if slices.Contains(d.Splits, p.Split()) {
			out = append(out, p)
		}
	}
	return out
}

// FrequencyWindow returns the coordinates preceding c inside its
// frequency window. A job that waits on a section running every frequency
// steps depends on all earlier instances of the current window as well. c is
// the resolved parent coordinate, which carries the same axes as the
// dependent job. The window is chosen on the chunk axis when c has a chunk,
// then member, then date.
func FrequencyWindow(axes coord.Axes, c coord.Coordinate, frequency int) []coord.Coordinate {
	if frequency <= 1 {
		return nil
	}
	var index int
	switch {
	case c.HasChunk():
		index = axes.ChunkIndex(c.Chunk)
	case c.HasMember():
		index = axes.MemberIndex(c.Member)
	case c.HasDate():
		index = axes.DateIndex(c.Date)
	default:
		return nil
	}
	if index < 0 {
		return nil
	}

	window := (index + 1) % frequency
	if window == 0 {
		window = frequency
	}
	var out []coord.Coordinate
	for distance := 1; distance < window; distance++ {
		i := index - distance
		if i < 0 {
			break
		}
		prev := c.WithoutSplit()
		switch {
		case c.HasChunk():
			prev.Chunk = axes.Chunks[i]
		case c.HasMember():
			prev.Member = axes.Members[i]
		default:
			prev.Date = axes.Dates[i]
		}
		out = append(out, prev)
	}
	return out
}

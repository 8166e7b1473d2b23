// Package job defines the unit of work the scheduler manages: its identity,
// coordinates, lifecycle status, retry bookkeeping and resources, plus the
// state machine that reacts to status reports from a platform.
//
// Jobs live in an Arena. Parents and children are not stored on the job
// itself; they are read from the arena's graph, so adding or removing an
// edge is always visible from both ends.
package job

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/remote"
)

// Platform is what a job needs from the machine it runs on.
type Platform interface {
	Name() string
	// Cancel asks the batch system to drop the remote job. Callers do not
	// wait for the cancellation to take effect.
	Cancel(ctx context.Context, remoteID string) error
	// QueueReason returns why the batch system is holding the job, for
	// example "(QOSMaxWallDurationPerJobLimit)".
	QueueReason(ctx context.Context, remoteID string) (string, error)
	// CompletedMarker reports whether the job left its completion marker.
	CompletedMarker(ctx context.Context, jobName string) (bool, error)
	// StatFile reads the job's start and end times.
	StatFile(ctx context.Context, jobName string) (remote.Stat, error)
	// MoveFile renames a file inside the remote log directory.
	MoveFile(ctx context.Context, src, dst string) error
}

// Logs names a job's output and error files.
type Logs struct {
	Out string
	Err string
}

// Attempt records one submission of a job.
type Attempt struct {
	Submit time.Time
	Start  time.Time
	End    time.Time
	Status Status
}

// Job is a single generated task of an experiment.
type Job struct {
	Name string
	// ID is the identifier the batch system assigned at submission.
	ID       string
	Section  string
	Type     Type
	Priority int

	coord coord.Coordinate

	// File is the job's script template. Jobs without one are dropped from
	// the graph and their parents linked straight to their children.
	File        string
	Running     coord.Running
	Delay       int
	Synchronize coord.Synchronize
	Frequency   int
	Wait        bool
	Splits      int
	RerunOnly   bool

	status    Status
	FailCount int
	Retrials  int
	Packed    bool

	PlatformName string
	Platform     Platform
	Processors   int
	Threads      int
	Tasks        int
	Wallclock    time.Duration
	Memory       string
	Queue        string
	Parameters   map[string]string

	LocalLogs  Logs
	RemoteLogs Logs
	Attempts   []Attempt

	arena *Arena
	index int
}

// New creates a WAITING job at c. The coordinate cannot be changed later.
func New(name, section string, c coord.Coordinate) *Job {
	return &Job{
		Name:      name,
		Section:   section,
		coord:     c,
		Delay:     -1,
		Frequency: 1,
		status:    Waiting,
		index:     -1,
	}
}

// Name builds the canonical job name: expid, then each populated coordinate,
// then the section.
func Name(expid, dateFormat, section string, c coord.Coordinate) string {
	parts := []string{expid}
	if c.HasDate() {
		parts = append(parts, coord.FormatDate(c.Date, dateFormat))
	}
	if c.HasMember() {
		parts = append(parts, c.Member)
	}
	if c.HasChunk() {
		parts = append(parts, strconv.Itoa(c.Chunk))
	}
	if c.HasSplit() {
		parts = append(parts, strconv.Itoa(c.Split))
	}
	parts = append(parts, section)
	return strings.Join(parts, "_")
}

func (j *Job) Coordinate() coord.Coordinate { return j.coord }
func (j *Job) Date() time.Time              { return j.coord.Date }
func (j *Job) Member() string               { return j.coord.Member }
func (j *Job) Chunk() int                   { return j.coord.Chunk }
func (j *Job) Split() int                   { return j.coord.Split }

// Index is the job's slot in its arena, or -1 when detached.
func (j *Job) Index() int { return j.index }

func (j *Job) Status() Status { return j.status }

// SetStatus changes the status without consulting the platform. The retry
// policy and reruns use it; platform reports go through UpdateStatus.
func (j *Job) SetStatus(s Status) { j.status = s }

func (j *Job) String() string {
	return fmt.Sprintf("%s (%s)", j.Name, j.status)
}

// Parents returns the jobs j depends on, in arena order.
func (j *Job) Parents() []*Job {
	if j.arena == nil {
		return nil
	}
	return j.arena.resolve(j.arena.graph.Dependencies(j.index))
}

// Children returns the jobs depending on j, in arena order.
func (j *Job) Children() []*Job {
	if j.arena == nil {
		return nil
	}
	return j.arena.resolve(j.arena.graph.Dependents(j.index))
}

// HasParent reports whether p is a direct parent of j.
func (j *Job) HasParent(p *Job) bool {
	return j.arena != nil && j.arena.graph.HasEdge(p.index, j.index)
}

// HasParents reports whether j has at least one parent.
func (j *Job) HasParents() bool {
	return j.arena != nil && len(j.arena.graph.Dependencies(j.index)) > 0
}

// AddParent links every p as a parent of j. Both jobs must be in the same
// arena and a job cannot be its own parent.
func (j *Job) AddParent(parents ...*Job) error {
	for _, p := range parents {
		if j.arena == nil || p.arena != j.arena {
			return fmt.Errorf("cannot link %s to %s: jobs are not in the same arena", p.Name, j.Name)
		}
		if err := j.arena.graph.AddEdge(p.index, j.index); err != nil {
			return fmt.Errorf("cannot link %s to %s: %w", p.Name, j.Name, err)
		}
	}
	return nil
}

// DeleteParent removes the edge p -> j.
func (j *Job) DeleteParent(p *Job) {
	if j.arena == nil || p.arena != j.arena {
		return
	}
	j.arena.graph.RemoveEdge(p.index, j.index)
}

// ParentsCompleted reports whether every parent is COMPLETED.
func (j *Job) ParentsCompleted() bool {
	for _, p := range j.Parents() {
		if p.status != Completed {
			return false
		}
	}
	return true
}

// MarkSubmitted records a successful submission under remoteID.
func (j *Job) MarkSubmitted(remoteID string, packed bool) {
	j.ID = remoteID
	j.Packed = packed
	j.status = Submitted
	j.Attempts = append(j.Attempts, Attempt{Submit: j.now(), Status: Submitted})
}

func (j *Job) now() time.Time {
	if j.arena != nil {
		return j.arena.now()
	}
	return time.Now()
}

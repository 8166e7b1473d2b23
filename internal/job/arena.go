package job

import (
	"fmt"
	"time"

	"github.com/vk/chunkgrid/internal/dag"
)

// Arena owns a set of jobs and the graph that links them. A job's index in
// the arena is also its node id in the graph, so parent and child sets are
// always read from a single adjacency structure.
type Arena struct {
	graph *dag.Graph
	jobs  []*Job
	now   func() time.Time
}

// NewArena creates an empty arena using the wall clock.
func NewArena() *Arena {
	return &Arena{graph: dag.New(), now: time.Now}
}

// SetClock replaces the clock used for start, end and submit times.
func (a *Arena) SetClock(now func() time.Time) {
	a.now = now
}

// Now returns the arena clock's current time.
func (a *Arena) Now() time.Time {
	return a.now()
}

// Graph exposes the underlying dependency graph.
func (a *Arena) Graph() *dag.Graph {
	return a.graph
}

// Add registers j and assigns its index. Names must be unique.
func (a *Arena) Add(j *Job) error {
	if j.arena != nil {
		return fmt.Errorf("job %s already belongs to an arena", j.Name)
	}
	if _, ok := a.graph.ID(j.Name); ok {
		return fmt.Errorf("duplicate job name %s", j.Name)
	}
	id := a.graph.AddNode(j.Name)
	if id != len(a.jobs) {
		return fmt.Errorf("arena out of sync with graph: got id %d for slot %d", id, len(a.jobs))
	}
	a.jobs = append(a.jobs, j)
	j.arena = a
	j.index = id
	return nil
}

// Remove unlinks j from every parent and child and frees its slot.
func (a *Arena) Remove(j *Job) error {
	if j.arena != a {
		return fmt.Errorf("job %s does not belong to this arena", j.Name)
	}
	if err := a.graph.RemoveNode(j.index); err != nil {
		return err
	}
	a.jobs[j.index] = nil
	j.arena = nil
	j.index = -1
	return nil
}

// Job returns the job at index, or nil.
func (a *Arena) Job(index int) *Job {
	if index < 0 || index >= len(a.jobs) {
		return nil
	}
	return a.jobs[index]
}

// ByName looks a live job up by name.
func (a *Arena) ByName(name string) (*Job, bool) {
	id, ok := a.graph.ID(name)
	if !ok {
		return nil, false
	}
	return a.jobs[id], true
}

// Jobs returns the live jobs in insertion order.
func (a *Arena) Jobs() []*Job {
	out := make([]*Job, 0, a.graph.Len())
	for _, j := range a.jobs {
		if j != nil {
			out = append(out, j)
		}
	}
	return out
}

func (a *Arena) resolve(ids []int) []*Job {
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if j := a.Job(id); j != nil {
			out = append(out, j)
		}
	}
	return out
}

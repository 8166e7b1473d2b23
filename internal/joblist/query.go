package joblist

import (
	"cmp"
	"slices"

	"github.com/vk/chunkgrid/internal/job"
)

// Every status query takes a platform name; "" matches all platforms.

func (l *JobList) filter(platform string, statuses ...job.Status) []*job.Job {
	var out []*job.Job
	for _, j := range l.arena.Jobs() {
		if platform != "" && j.PlatformName != platform {
			continue
		}
		if slices.Contains(statuses, j.Status()) {
			out = append(out, j)
		}
	}
	return out
}

func (l *JobList) Waiting(platform string) []*job.Job   { return l.filter(platform, job.Waiting) }
func (l *JobList) Ready(platform string) []*job.Job     { return l.filter(platform, job.Ready) }
func (l *JobList) Submitted(platform string) []*job.Job { return l.filter(platform, job.Submitted) }
func (l *JobList) Queuing(platform string) []*job.Job   { return l.filter(platform, job.Queuing) }
func (l *JobList) Running(platform string) []*job.Job   { return l.filter(platform, job.Running) }
func (l *JobList) Completed(platform string) []*job.Job { return l.filter(platform, job.Completed) }
func (l *JobList) Failed(platform string) []*job.Job    { return l.filter(platform, job.Failed) }
func (l *JobList) Unknown(platform string) []*job.Job   { return l.filter(platform, job.Unknown) }
func (l *JobList) Suspended(platform string) []*job.Job { return l.filter(platform, job.Suspended) }

// InQueue returns the jobs the platforms hold: submitted, queuing, running
// or unknown.
func (l *JobList) InQueue(platform string) []*job.Job {
	return l.filter(platform, job.Submitted, job.Queuing, job.Running, job.Unknown)
}

// NotInQueue returns READY and WAITING jobs.
func (l *JobList) NotInQueue(platform string) []*job.Job {
	return l.filter(platform, job.Ready, job.Waiting)
}

// Finished returns COMPLETED and FAILED jobs.
func (l *JobList) Finished(platform string) []*job.Job {
	return l.filter(platform, job.Completed, job.Failed)
}

// Active returns the in-queue jobs plus the READY ones.
func (l *JobList) Active(platform string) []*job.Job {
	return l.filter(platform, job.Submitted, job.Queuing, job.Running, job.Unknown, job.Ready)
}

// Uncompleted returns every job that is not COMPLETED.
func (l *JobList) Uncompleted(platform string) []*job.Job {
	return l.filter(platform, job.Waiting, job.Ready, job.Submitted, job.Queuing, job.Running, job.Failed, job.Unknown, job.Suspended)
}

// Unsubmitted returns the jobs that never reached the platform or have to
// go back to it: WAITING, READY, FAILED and SUSPENDED.
func (l *JobList) Unsubmitted(platform string) []*job.Job {
	return l.filter(platform, job.Waiting, job.Ready, job.Failed, job.Suspended)
}

// InQueueGroupedByID groups the in-queue jobs of platform by remote id.
// Jobs sharing an id were submitted together in one wrapper.
func (l *JobList) InQueueGroupedByID(platform string) map[string][]*job.Job {
	out := make(map[string][]*job.Job)
	for _, j := range l.InQueue(platform) {
		out[j.ID] = append(out[j.ID], j)
	}
	return out
}

// JobByName looks a job up by name.
func (l *JobList) JobByName(name string) (*job.Job, bool) {
	return l.arena.ByName(name)
}

// Jobs returns every job in generation order.
func (l *JobList) Jobs() []*job.Job { return l.arena.Jobs() }

// Len returns the number of jobs.
func (l *JobList) Len() int { return l.arena.Graph().Len() }

func (l *JobList) sorted(cmpFn func(a, b *job.Job) int) []*job.Job {
	jobs := l.arena.Jobs()
	slices.SortStableFunc(jobs, cmpFn)
	return jobs
}

// SortByName returns the jobs ordered by name.
func (l *JobList) SortByName() []*job.Job {
	return l.sorted(func(a, b *job.Job) int { return cmp.Compare(a.Name, b.Name) })
}

// SortByID returns the jobs ordered by remote id.
func (l *JobList) SortByID() []*job.Job {
	return l.sorted(func(a, b *job.Job) int { return cmp.Compare(a.ID, b.ID) })
}

// SortByStatus returns the jobs ordered by status.
func (l *JobList) SortByStatus() []*job.Job {
	return l.sorted(func(a, b *job.Job) int { return cmp.Compare(a.Status(), b.Status()) })
}

// SortByType returns the jobs ordered by script type.
func (l *JobList) SortByType() []*job.Job {
	return l.sorted(func(a, b *job.Job) int { return cmp.Compare(a.Type, b.Type) })
}

package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/joblist"
	"github.com/vk/chunkgrid/internal/wrapper"
)

// Scheduler is the single writer of a job list.
type Scheduler struct {
	mu sync.RWMutex

	list      *joblist.JobList
	platforms map[string]Platform
	names     []string
	// wrappers holds the live wrappers by remote id.
	wrappers map[string]*wrapper.Job
	opts     Options
	now      func() time.Time
}

// New creates a scheduler over a generated list. Every job's platform must
// be in platforms.
func New(list *joblist.JobList, platforms map[string]Platform, opts Options) (*Scheduler, error) {
	for _, j := range list.Jobs() {
		if _, ok := platforms[j.PlatformName]; !ok {
			return nil, fmt.Errorf("job %s runs on platform %q, which is not configured", j.Name, j.PlatformName)
		}
	}
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	slices.Sort(names)

	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		list:      list,
		platforms: platforms,
		names:     names,
		wrappers:  make(map[string]*wrapper.Job),
		opts:      opts,
		now:       now,
	}, nil
}

// RunID identifies this scheduler's events.
func (s *Scheduler) RunID() uuid.UUID { return s.opts.RunID }

// View runs fn with the job list under the read lock. fn must not keep
// references to jobs after it returns.
func (s *Scheduler) View(fn func(l *joblist.JobList)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.list)
}

// Run ticks until the experiment is over or ctx is cancelled. It returns
// nil when every job ended, ErrStalled when WAITING jobs can never run, and
// the first tick error otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for tick := 1; ; tick++ {
		res, err := s.Tick(ctx)
		if err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		logger.Info("Tick finished.", "tick", tick, "polled", res.Polled, "submitted", res.Submitted, "packages", res.Packages, "changes", res.Events, "active", res.Active)

		if done, blocked := s.finished(); done {
			if blocked > 0 {
				return fmt.Errorf("%w: %d jobs wait on parents that will not complete", ErrStalled, blocked)
			}
			logger.Info("All jobs finished.", "expid", s.list.Expid())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.Interval):
		}
	}
}

// finished reports whether no job can change state any more, and how many
// jobs are left WAITING.
func (s *Scheduler) finished() (bool, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.list.Active("")) > 0 {
		return false, 0
	}
	for _, j := range s.list.Failed("") {
		if j.FailCount <= j.Retrials {
			return false, 0
		}
	}
	waiting := s.list.Waiting("")
	for _, j := range waiting {
		if j.ParentsCompleted() {
			return false, 0
		}
	}
	return true, len(waiting)
}

// packagesOf returns the READY jobs of a platform split into packages,
// highest priority first.
func (s *Scheduler) packagesOf(name string) []wrapper.Package {
	ready := s.list.Ready(name)
	slices.SortStableFunc(ready, func(a, b *job.Job) int { return b.Priority - a.Priority })

	model := s.list.Model()
	cfg := model.Platforms[name]
	if model.Wrapper == nil || cfg == nil || !cfg.AllowWrappers {
		return wrapper.Build(wrapper.Vertical, wrapper.Limits{}, ready)
	}
	policy, err := wrapper.ParsePolicy(model.Wrapper.Type)
	if err != nil {
		return wrapper.Build(wrapper.Vertical, wrapper.Limits{}, ready)
	}
	return wrapper.Build(policy, wrapper.Limits{
		Wraps:         model.Wraps,
		MaxWrapped:    model.Wrapper.MaxWrapped,
		MaxWallclock:  cfg.MaxWallclock,
		MaxProcessors: cfg.MaxProcessors,
	}, ready)
}

// slots returns how many more packages a platform accepts this tick, or -1
// for no limit.
func (s *Scheduler) slots(name string) int {
	cfg := s.list.Model().Platforms[name]
	if cfg == nil {
		return -1
	}
	free := -1
	if cfg.TotalJobs > 0 {
		free = max(0, cfg.TotalJobs-len(s.list.InQueueGroupedByID(name)))
	}
	if cfg.MaxWaitingJobs > 0 {
		waiting := 0
		for _, jobs := range s.list.InQueueGroupedByID(name) {
			if !slices.ContainsFunc(jobs, func(j *job.Job) bool {
				return j.Status() != job.Submitted && j.Status() != job.Queuing
			}) {
				waiting++
			}
		}
		w := max(0, cfg.MaxWaitingJobs-waiting)
		if free < 0 || w < free {
			free = w
		}
	}
	return free
}

// Package wrapper bundles several jobs into one remote submission and
// tracks the inner jobs of a running bundle through a single status poll.
package wrapper

import (
	"context"
	"time"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/remote"
)

// Platform is the remote side a wrapper needs.
type Platform interface {
	job.Platform
	// Status returns the scheduler status of a remote job.
	Status(ctx context.Context, remoteID string) (job.Status, error)
	// InnerStats reads the stat file of every named job in one remote
	// command. Jobs that have not started yet may be missing from the
	// result.
	InnerStats(ctx context.Context, names []string) (map[string]remote.Stat, error)
}

// Job is a submitted wrapper and the inner jobs it runs.
type Job struct {
	Name     string
	ID       string
	Policy   Policy
	Jobs     []*job.Job
	Platform Platform

	status job.Status
	// started holds the observed start time of inner jobs that are running.
	started map[*job.Job]time.Time
	// idle is set when the platform reported the wrapper RUNNING while no
	// inner job had started.
	idle      bool
	lastCheck time.Time
	now       func() time.Time
}

// New creates a wrapper for a submitted package.
func New(name, remoteID string, policy Policy, platform Platform, jobs []*job.Job) *Job {
	return &Job{
		Name:     name,
		ID:       remoteID,
		Policy:   policy,
		Jobs:     jobs,
		Platform: platform,
		status:   job.Submitted,
		started:  make(map[*job.Job]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for wallclock checks.
func (w *Job) SetClock(now func() time.Time) { w.now = now }

// Status returns the last status applied to the wrapper itself.
func (w *Job) Status() job.Status { return w.status }

// Done reports whether every inner job reached COMPLETED or FAILED.
func (w *Job) Done() bool {
	for _, j := range w.Jobs {
		if !j.Status().Finished() {
			return false
		}
	}
	return true
}

// Due reports whether at least interval has passed since the last
// CheckStatus. A zero interval is always due.
func (w *Job) Due(interval time.Duration) bool {
	return interval <= 0 || w.lastCheck.IsZero() || w.now().Sub(w.lastCheck) >= interval
}

// CheckStatus applies the wrapper status reported by the platform and
// propagates it to the inner jobs.
func (w *Job) CheckStatus(ctx context.Context, s job.Status) {
	logger := ctxlog.FromContext(ctx).With("wrapper", w.Name, "id", w.ID)
	w.lastCheck = w.now()

	if s != w.status && s == job.Queuing {
		reason, err := w.Platform.QueueReason(ctx, w.ID)
		if err != nil {
			logger.Warn("Could not read queue reason.", "error", err)
		} else if job.CancelWorthy(reason) {
			logger.Error("Wrapper will be cancelled and its jobs set to FAILED.", "reason", reason)
			w.fail(ctx)
			return
		}
	}
	w.status = s

	switch s {
	case job.Failed, job.Unknown:
		w.status = job.Failed
		w.cancel(ctx)
		w.checkUnfinished(ctx)
	case job.Completed:
		w.completeRunning(ctx)
		w.checkUnfinished(ctx)
	case job.Running:
		w.checkInner(ctx)
	}
}

// checkInner polls the inner jobs of a running wrapper.
func (w *Job) checkInner(ctx context.Context) {
	logger := ctxlog.FromContext(ctx).With("wrapper", w.Name)

	if !w.pollStarts(ctx) {
		return
	}
	if w.enforceWallclock(ctx) {
		return
	}

	if len(w.started) > 0 || w.Done() {
		w.idle = false
		return
	}

	s, err := w.Platform.Status(ctx, w.ID)
	if err != nil {
		logger.Warn("Could not re-query wrapper status.", "error", err)
		return
	}
	switch s {
	case job.Running:
		if w.idle {
			logger.Error("No inner jobs are running in the wrapper. Cancelling.")
			w.fail(ctx)
			return
		}
		w.idle = true
	case job.Completed:
		logger.Info("Wrapper completed. Setting running jobs to COMPLETED.")
		w.status = job.Completed
		w.completeRunning(ctx)
		w.checkUnfinished(ctx)
	default:
		w.status = s
	}
}

// pollStarts reads the stat files of unfinished inner jobs. Newly started
// jobs become RUNNING; jobs with an end time are checked against their
// completion marker. It returns false when the poll failed.
func (w *Job) pollStarts(ctx context.Context) bool {
	logger := ctxlog.FromContext(ctx).With("wrapper", w.Name)

	unfinished := w.unfinished()
	if len(unfinished) == 0 {
		return true
	}
	names := make([]string, 0, len(unfinished))
	for _, j := range unfinished {
		names = append(names, j.Name)
	}

	stats, err := w.Platform.InnerStats(ctx, names)
	if err != nil {
		if !remote.IsTransient(err) {
			logger.Error("Inner job poll failed.", "error", err)
		} else {
			logger.Warn("Inner job poll failed, retrying next tick.", "error", err)
		}
		return false
	}

	for _, j := range unfinished {
		st := stats[j.Name]
		if !st.Started() {
			continue
		}
		if _, ok := w.started[j]; !ok {
			logger.Info("Inner job started.", "job", j.Name, "start", st.Start)
			w.started[j] = st.Start
			j.UpdateStatus(ctx, job.Running)
		}
		if st.Finished() {
			logger.Info("Inner job finished.", "job", j.Name, "end", st.End)
			w.finish(ctx, j)
		}
	}
	return true
}

// enforceWallclock fails inner jobs that ran longer than their wallclock.
// It returns true when the whole wrapper was cancelled.
func (w *Job) enforceWallclock(ctx context.Context) bool {
	logger := ctxlog.FromContext(ctx).With("wrapper", w.Name)
	now := w.now()
	for _, j := range w.Jobs {
		start, ok := w.started[j]
		if !ok || j.Wallclock <= 0 || now.Sub(start) <= j.Wallclock {
			continue
		}
		if w.Policy.cancelsOnOverrun() {
			logger.Error("Inner job exceeded its wallclock. Cancelling the wrapper.", "job", j.Name, "wallclock", j.Wallclock)
			w.fail(ctx)
			return true
		}
		logger.Error("Inner job exceeded its wallclock. Setting it to FAILED.", "job", j.Name, "wallclock", j.Wallclock)
		w.finish(ctx, j)
	}
	return false
}

// fail cancels the wrapper and settles every unfinished inner job by its
// completion marker.
func (w *Job) fail(ctx context.Context) {
	w.status = job.Failed
	w.cancel(ctx)
	w.checkUnfinished(ctx)
}

// Abandon cancels the remote wrapper unless the platform already reported
// it finished. It is called for wrappers whose inner jobs were all settled
// outside a status poll.
func (w *Job) Abandon(ctx context.Context) {
	if w.status.Finished() {
		return
	}
	w.cancel(ctx)
}

func (w *Job) cancel(ctx context.Context) {
	ctxlog.FromContext(ctx).Info("Cancelling wrapper.", "wrapper", w.Name, "id", w.ID)
	if err := w.Platform.Cancel(ctx, w.ID); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to cancel wrapper.", "wrapper", w.Name, "id", w.ID, "error", err)
	}
}

func (w *Job) finish(ctx context.Context, j *job.Job) {
	j.CheckFinished(ctx)
	delete(w.started, j)
}

// checkUnfinished settles every inner job that has not finished. A failure
// may cascade to later inner jobs, so each one is rechecked in turn.
func (w *Job) checkUnfinished(ctx context.Context) {
	for _, j := range w.Jobs {
		if !j.Status().Finished() {
			w.finish(ctx, j)
		}
	}
}

// completeRunning forces every RUNNING inner job to COMPLETED.
func (w *Job) completeRunning(ctx context.Context) {
	for _, j := range w.Jobs {
		if j.Status() == job.Running {
			delete(w.started, j)
			j.Finish(ctx, job.Completed)
		}
	}
}

func (w *Job) unfinished() []*job.Job {
	var out []*job.Job
	for _, j := range w.Jobs {
		if !j.Status().Finished() {
			out = append(out, j)
		}
	}
	return out
}

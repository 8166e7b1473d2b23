package job

import (
	"context"
	"strings"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/remote"
)

// fatalQueueReasons are Slurm pending reasons that can never clear on their
// own. A job held for one of them is cancelled.
var fatalQueueReasons = map[string]struct{}{
	"AssociationJobLimit":           {},
	"AssociationResourceLimit":      {},
	"AssociationTimeLimit":          {},
	"BadConstraints":                {},
	"QOSMaxCpuMinutesPerJobLimit":   {},
	"QOSMaxWallDurationPerJobLimit": {},
	"QOSMaxNodePerJobLimit":         {},
	"DependencyNeverSatisfied":      {},
	"QOSMaxMemoryPerJob":            {},
	"QOSMaxMemoryPerNode":           {},
	"QOSMaxMemoryMinutesPerJob":     {},
	"QOSMaxNodeMinutesPerJob":       {},
	"InactiveLimit":                 {},
	"JobLaunchFailure":              {},
	"NonZeroExitCode":               {},
	"PartitionNodeLimit":            {},
	"PartitionTimeLimit":            {},
	"SystemFailure":                 {},
	"TimeLimit":                     {},
	"QOSUsageThreshold":             {},
}

// CancelWorthy reports whether a queue reason means the job will never
// start. The reason may be wrapped in parentheses as squeue prints it.
func CancelWorthy(reason string) bool {
	r := strings.TrimSpace(reason)
	if open := strings.Index(r, "("); open >= 0 {
		if end := strings.Index(r[open:], ")"); end > 0 {
			r = r[open+1 : open+end]
		}
	}
	if r == "" {
		return false
	}
	if strings.Contains(r, "Invalid") {
		return true
	}
	_, ok := fatalQueueReasons[r]
	return ok
}

// UpdateStatus applies a status reported by the platform:
//
//   - COMPLETED is only accepted when the completion marker exists;
//     otherwise the job keeps its current status.
//   - QUEUING with a fatal queue reason cancels the job and fails it.
//   - FAILED and UNKNOWN turn into COMPLETED when the marker exists.
//     Otherwise every descendant still owned by the platform is failed.
//
// Entering RUNNING opens the attempt's start time and entering COMPLETED,
// FAILED or UNKNOWN closes it.
func (j *Job) UpdateStatus(ctx context.Context, s Status) {
	logger := ctxlog.FromContext(ctx).With("job", j.Name)
	prev := j.status

	switch s {
	case Completed:
		if !j.completed(ctx) {
			logger.Warn("Platform reported completion but no completion marker was found.", "status", prev)
			return
		}
		j.status = Completed
	case Queuing:
		j.status = Queuing
		if reason := j.queueReason(ctx); CancelWorthy(reason) {
			logger.Warn("Job can never leave the queue, cancelling it.", "reason", reason)
			j.cancel(ctx)
			j.UpdateStatus(ctx, Failed)
			return
		}
	case Failed, Unknown:
		if j.completed(ctx) {
			logger.Info("Job reported as failed left a completion marker.", "reported", s)
			j.status = Completed
		} else {
			j.status = s
			j.cascadeFailure(ctx)
		}
	default:
		j.status = s
	}

	if j.status != prev {
		logger.Debug("Job status changed.", "from", prev, "to", j.status)
		j.recordTimes(ctx, prev)
	}
}

// Finish moves the job to s without consulting the completion marker and
// closes its attempt. Wrappers use it when the whole bundle has ended.
func (j *Job) Finish(ctx context.Context, s Status) {
	prev := j.status
	j.status = s
	if prev != s {
		j.recordTimes(ctx, prev)
	}
}

// CheckFinished resolves a job whose execution ended: COMPLETED when the
// completion marker exists, FAILED otherwise.
func (j *Job) CheckFinished(ctx context.Context) {
	if j.completed(ctx) {
		j.UpdateStatus(ctx, Completed)
		return
	}
	j.UpdateStatus(ctx, Failed)
}

// cascadeFailure fails, breadth first, every descendant that the platform
// still owns.
func (j *Job) cascadeFailure(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	seen := make(map[int]bool)
	queue := j.Children()
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if seen[c.index] {
			continue
		}
		seen[c.index] = true
		if c.status.InQueue() {
			logger.Info("Failing descendant of failed job.", "job", c.Name, "failed_parent", j.Name, "was", c.status)
			prev := c.status
			c.status = Failed
			c.recordTimes(ctx, prev)
		}
		queue = append(queue, c.Children()...)
	}
}

func (j *Job) recordTimes(ctx context.Context, prev Status) {
	switch j.status {
	case Running, Completed, Failed, Unknown:
	default:
		return
	}

	stat := j.stat(ctx)
	a := j.openAttempt()
	if prev != Running && a.Start.IsZero() {
		a.Start = stat.Start
		if a.Start.IsZero() {
			a.Start = j.now()
		}
	}
	a.Status = j.status
	if j.status == Running {
		return
	}
	a.End = stat.End
	if a.End.IsZero() {
		a.End = j.now()
	}
	j.syncLogs(ctx)
}

// openAttempt returns the attempt still in progress, starting one when the
// job was never marked as submitted.
func (j *Job) openAttempt() *Attempt {
	if n := len(j.Attempts); n > 0 && j.Attempts[n-1].End.IsZero() {
		return &j.Attempts[n-1]
	}
	j.Attempts = append(j.Attempts, Attempt{})
	return &j.Attempts[len(j.Attempts)-1]
}

func (j *Job) syncLogs(ctx context.Context) {
	if j.Platform == nil || j.RemoteLogs == j.LocalLogs || j.RemoteLogs == (Logs{}) {
		return
	}
	logger := ctxlog.FromContext(ctx).With("job", j.Name)
	for _, pair := range [][2]string{{j.RemoteLogs.Out, j.LocalLogs.Out}, {j.RemoteLogs.Err, j.LocalLogs.Err}} {
		if pair[0] == "" || pair[1] == "" {
			continue
		}
		if err := j.Platform.MoveFile(ctx, pair[0], pair[1]); err != nil {
			logger.Warn("Could not rename job log.", "from", pair[0], "to", pair[1], "error", err)
			return
		}
	}
	j.RemoteLogs = j.LocalLogs
}

func (j *Job) completed(ctx context.Context) bool {
	if j.Platform == nil {
		return false
	}
	ok, err := j.Platform.CompletedMarker(ctx, j.Name)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Could not check completion marker.", "job", j.Name, "error", err, "transient", remote.IsTransient(err))
		return false
	}
	return ok
}

func (j *Job) queueReason(ctx context.Context) string {
	if j.Platform == nil || j.ID == "" {
		return ""
	}
	reason, err := j.Platform.QueueReason(ctx, j.ID)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Could not read queue reason.", "job", j.Name, "error", err)
		return ""
	}
	return reason
}

func (j *Job) cancel(ctx context.Context) {
	if j.Platform == nil || j.ID == "" {
		return
	}
	if err := j.Platform.Cancel(ctx, j.ID); err != nil {
		ctxlog.FromContext(ctx).Error("Cancel request failed.", "job", j.Name, "remote_id", j.ID, "error", err)
	}
}

func (j *Job) stat(ctx context.Context) remote.Stat {
	if j.Platform == nil {
		return remote.Stat{}
	}
	s, err := j.Platform.StatFile(ctx, j.Name)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("No status file for job.", "job", j.Name, "error", err)
		return remote.Stat{}
	}
	return s
}

package joblist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
)

// UpdateList runs the retry and promotion policy over the collection and
// reports whether any job changed. The experiment's update file, when
// configured and present, is applied first.
//
// FAILED jobs with retries left go back to READY, or WAITING while a parent
// is not COMPLETED. COMPLETED synchronized jobs whose parents are not all
// COMPLETED go back to WAITING. WAITING jobs whose parents are all
// COMPLETED become READY.
//
// FailCount stops at Retrials+1 once a job has exhausted its retrials
// rather than growing on every call; the increment that crosses the limit
// still reports a change so the final count is persisted.
func (l *JobList) UpdateList(ctx context.Context) bool {
	logger := ctxlog.FromContext(ctx)
	changed := false

	if path := l.model.Experiment.UpdateFile; path != "" {
		applied, err := l.ApplyUpdateFile(ctx, path)
		if err != nil {
			logger.Error("Failed to apply update file.", "path", path, "error", err)
		}
		changed = changed || applied
	}

	for _, j := range l.Failed("") {
		if j.FailCount > j.Retrials {
			continue
		}
		j.FailCount++
		changed = true
		if j.FailCount > j.Retrials {
			logger.Info("Job exhausted its retrials.", "job", j.Name, "fail_count", j.FailCount)
			continue
		}
		j.Packed = false
		if j.ParentsCompleted() {
			j.SetStatus(job.Ready)
			logger.Debug("Resetting job to READY for retrial.", "job", j.Name, "fail_count", j.FailCount)
		} else {
			j.SetStatus(job.Waiting)
			logger.Debug("Resetting job to WAITING for parents completion.", "job", j.Name, "fail_count", j.FailCount)
		}
	}

	for _, j := range l.Completed("") {
		if j.Synchronize != coord.SyncNone && !j.ParentsCompleted() {
			j.SetStatus(job.Waiting)
			logger.Debug("Resetting synchronized job to WAITING.", "job", j.Name)
			changed = true
		}
	}

	for _, j := range l.Waiting("") {
		if j.ParentsCompleted() {
			j.SetStatus(job.Ready)
			logger.Debug("Job is READY, all parents completed.", "job", j.Name)
			changed = true
		}
	}
	return changed
}

// ApplyUpdateFile sets job statuses from a file of `NAME STATUS` lines and
// resets the fail count of every job it names. The file is then renamed
// with a timestamp suffix so it is applied once. A missing file is not an
// error.
func (l *JobList) ApplyUpdateFile(ctx context.Context, path string) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening update file: %w", err)
	}

	logger.Info("Loading updated list.", "path", path)
	changed := false
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			logger.Warn("Skipping malformed update line.", "path", path, "line", line)
			continue
		}
		j, ok := l.arena.ByName(fields[0])
		if !ok {
			logger.Warn("Update file names an unknown job.", "job", fields[0])
			continue
		}
		s, err := job.ParseStatus(fields[1])
		if err != nil {
			logger.Warn("Skipping update line.", "path", path, "line", line, "error", err)
			continue
		}
		j.SetStatus(s)
		j.FailCount = 0
		changed = true
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return changed, fmt.Errorf("reading update file: %w", scanErr)
	}

	done := path + "_" + l.arena.Now().Format("20060102_1504")
	if err := os.Rename(path, done); err != nil {
		return changed, fmt.Errorf("archiving update file: %w", err)
	}
	return changed, nil
}

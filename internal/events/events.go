// Package events reports job status changes to observers. The scheduler
// diffs statuses around every tick and hands the resulting events to a
// Publisher; publishing never influences scheduling.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
)

// Event is one status transition of one job.
type Event struct {
	ID      uuid.UUID  `json:"id"`
	RunID   uuid.UUID  `json:"run_id"`
	Job     string     `json:"job"`
	Section string     `json:"section"`
	From    job.Status `json:"from"`
	To      job.Status `json:"to"`
	At      time.Time  `json:"at"`
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
	Close() error
}

// Statuses captures the current status of every job by name.
func Statuses(jobs []*job.Job) map[string]job.Status {
	out := make(map[string]job.Status, len(jobs))
	for _, j := range jobs {
		out[j.Name] = j.Status()
	}
	return out
}

// Diff returns one event per job whose status differs from before, in the
// order of jobs. Jobs missing from before are not reported.
func Diff(runID uuid.UUID, at time.Time, before map[string]job.Status, jobs []*job.Job) []Event {
	var out []Event
	for _, j := range jobs {
		prev, ok := before[j.Name]
		if !ok || prev == j.Status() {
			continue
		}
		out = append(out, Event{
			ID:      uuid.New(),
			RunID:   runID,
			Job:     j.Name,
			Section: j.Section,
			From:    prev,
			To:      j.Status(),
			At:      at,
		})
	}
	return out
}

// LogPublisher writes every event to the context logger.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, events []Event) error {
	logger := ctxlog.FromContext(ctx)
	for _, e := range events {
		logger.Info("Job status changed.", "job", e.Job, "section", e.Section, "from", e.From, "to", e.To, "event_id", e.ID)
	}
	return nil
}

func (LogPublisher) Close() error { return nil }

// Multi fans events out to several publishers. Every publisher gets every
// batch even when an earlier one fails.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events []Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

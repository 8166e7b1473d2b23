package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vk/chunkgrid/internal/events"
	"github.com/vk/chunkgrid/internal/snapshot"
	"github.com/vk/chunkgrid/internal/wrapper"
)

// ErrStalled is returned by Run when nothing is left to run but jobs are
// still WAITING on parents that failed for good.
var ErrStalled = errors.New("experiment stalled")

// Platform is everything the scheduler needs from a remote machine.
type Platform interface {
	wrapper.Platform
	// Submit queues a package and returns its remote id.
	Submit(ctx context.Context, pkg wrapper.Package) (string, error)
}

// Options configures a Scheduler. Every field is optional.
type Options struct {
	// Store receives a snapshot after every tick that changed something.
	Store snapshot.Store
	// Publisher receives the status changes of every tick.
	Publisher events.Publisher
	// RunID tags published events. A random id is used when zero.
	RunID uuid.UUID
	// Interval is the pause between ticks in Run.
	Interval time.Duration
	// Clock overrides time.Now for event timestamps and wrapper checks.
	Clock func() time.Time
}

// TickResult summarizes one tick.
type TickResult struct {
	// Polled counts the remote ids queried.
	Polled int
	// Packages and Submitted count submissions and the jobs in them.
	Packages  int
	Submitted int
	// Events counts status changes.
	Events int
	// Saved reports whether a snapshot was written.
	Saved bool
	// Active counts jobs that are READY or owned by a platform afterwards.
	Active int
}

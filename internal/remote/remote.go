// Package remote defines what the scheduler needs to know about failures and
// status files coming back from an execution platform, independent of any
// particular transport.
package remote

import (
	"errors"
	"time"
)

var (
	// ErrTransient marks a failure that may go away on the next poll: a
	// dropped connection, a timed-out command or output that could not be
	// parsed.
	ErrTransient = errors.New("transient platform error")
	// ErrFatal marks a failure that retrying will not fix, such as rejected
	// credentials or a missing experiment directory.
	ErrFatal = errors.New("fatal platform error")
)

// IsTransient reports whether err should be retried on the next tick.
// Errors that carry no classification are treated as transient.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrFatal)
}

// Stat is the content of a job's status file: the first line holds the start
// time and the second, once written, the end time.
type Stat struct {
	Start time.Time
	End   time.Time
}

func (s Stat) Started() bool  { return !s.Start.IsZero() }
func (s Stat) Finished() bool { return !s.End.IsZero() }

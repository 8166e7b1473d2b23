package job

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job.
type Status int

const (
	Waiting Status = iota
	Ready
	Submitted
	Queuing
	Running
	Completed
	Failed
	Unknown
	Suspended
)

var statusNames = [...]string{
	Waiting:   "WAITING",
	Ready:     "READY",
	Submitted: "SUBMITTED",
	Queuing:   "QUEUING",
	Running:   "RUNNING",
	Completed: "COMPLETED",
	Failed:    "FAILED",
	Unknown:   "UNKNOWN",
	Suspended: "SUSPENDED",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus is the inverse of String and ignores case.
func ParseStatus(s string) (Status, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range statusNames {
		if name == up {
			return Status(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown job status %q", s)
}

// InQueue reports whether the platform currently owns the job.
func (s Status) InQueue() bool {
	switch s {
	case Submitted, Queuing, Running, Unknown:
		return true
	}
	return false
}

// Finished reports whether the job reached COMPLETED or FAILED.
func (s Status) Finished() bool {
	return s == Completed || s == Failed
}

// MarshalText lets statuses appear by name in YAML and JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Type is the script flavour of a job. The scheduler carries it for the
// script generator and never branches on it.
type Type int

const (
	Bash Type = iota
	Python
	R
)

func (t Type) String() string {
	switch t {
	case Python:
		return "python"
	case R:
		return "r"
	default:
		return "bash"
	}
}

// ParseType accepts bash, python or r. An empty string means bash.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bash":
		return Bash, nil
	case "python":
		return Python, nil
	case "r":
		return R, nil
	}
	return Bash, fmt.Errorf("unknown job type %q", s)
}

package sshplatform

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/remote"
)

// mapState translates a Slurm job state into a job status.
func mapState(state string) job.Status {
	switch state {
	case "COMPLETED":
		return job.Completed
	case "RUNNING":
		return job.Running
	case "PENDING", "CONFIGURING":
		return job.Queuing
	case "FAILED", "CANCELLED", "TIMEOUT", "NODE_FAIL", "OUT_OF_MEMORY":
		return job.Failed
	default:
		return job.Unknown
	}
}

// firstField returns the first word of the first non-empty line, so that
// "CANCELLED by 1234" reads as CANCELLED.
func firstField(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			return strings.TrimSuffix(f[0], "+")
		}
	}
	return ""
}

// parseSubmitID extracts the job id from sbatch output.
func parseSubmitID(out string) (string, error) {
	const prefix = "Submitted batch job "
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			id := strings.TrimSpace(rest)
			if _, err := strconv.Atoi(id); err == nil {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("%w: unexpected sbatch output %q", remote.ErrTransient, strings.TrimSpace(out))
}

// parseStat reads epoch seconds: the start time, then the end time once
// the job has finished.
func parseStat(fields []string) (remote.Stat, error) {
	var s remote.Stat
	for i, f := range fields {
		if i > 1 {
			break
		}
		sec, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return remote.Stat{}, fmt.Errorf("%w: bad stat value %q", remote.ErrTransient, f)
		}
		t := time.Unix(sec, 0).UTC()
		if i == 0 {
			s.Start = t
		} else {
			s.End = t
		}
	}
	return s, nil
}

// parseInnerStats reads lines of "NAME [START [END]]". Lines that cannot be
// parsed are skipped, which leaves the job looking not started.
func parseInnerStats(out string) map[string]remote.Stat {
	stats := make(map[string]remote.Stat)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		s, err := parseStat(fields[1:])
		if err != nil {
			continue
		}
		stats[fields[0]] = s
	}
	return stats
}

// Package coord models the experiment axes (start dates, ensemble members
// and chunks) and the coordinate tuple every generated job carries.
//
// A Coordinate uses zero values for absent fields: a zero Date, an empty
// Member, and Chunk or Split equal to 0. Chunks and splits are numbered from
// 1, so 0 is never a real value on those axes.
package coord

import (
	"fmt"
	"strings"
	"time"
)

// Running tells which axes a section is replicated over.
type Running int

const (
	RunOnce Running = iota
	RunDate
	RunMember
	RunChunk
)

func (r Running) String() string {
	switch r {
	case RunDate:
		return "date"
	case RunMember:
		return "member"
	case RunChunk:
		return "chunk"
	default:
		return "once"
	}
}

// ParseRunning accepts once, date, member or chunk in any case. An empty
// string means once.
func ParseRunning(s string) (Running, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "once":
		return RunOnce, nil
	case "date", "startdate":
		return RunDate, nil
	case "member":
		return RunMember, nil
	case "chunk":
		return RunChunk, nil
	}
	return RunOnce, fmt.Errorf("unknown running type %q", s)
}

// Synchronize collapses a chunk section across members or across both
// members and dates.
type Synchronize int

const (
	SyncNone Synchronize = iota
	SyncMember
	SyncDate
)

func (s Synchronize) String() string {
	switch s {
	case SyncMember:
		return "member"
	case SyncDate:
		return "date"
	default:
		return ""
	}
}

// ParseSynchronize accepts "", "member" or "date".
func ParseSynchronize(s string) (Synchronize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SyncNone, nil
	case "member":
		return SyncMember, nil
	case "date":
		return SyncDate, nil
	}
	return SyncNone, fmt.Errorf("unknown synchronize value %q", s)
}

// Coordinate is the position of a job in the experiment space.
type Coordinate struct {
	Date   time.Time
	Member string
	Chunk  int
	Split  int
}

func (c Coordinate) HasDate() bool   { return !c.Date.IsZero() }
func (c Coordinate) HasMember() bool { return c.Member != "" }
func (c Coordinate) HasChunk() bool  { return c.Chunk != 0 }
func (c Coordinate) HasSplit() bool  { return c.Split != 0 }

// Equal compares populated fields only.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.Date.Equal(o.Date) && c.Member == o.Member && c.Chunk == o.Chunk && c.Split == o.Split
}

// WithoutSplit returns c with the split cleared.
func (c Coordinate) WithoutSplit() Coordinate {
	c.Split = 0
	return c
}

// Axes holds the three ordered coordinate sequences of an experiment.
type Axes struct {
	Dates   []time.Time
	Members []string
	Chunks  []int
}

// DateIndex returns the position of d in Dates, or -1.
func (a Axes) DateIndex(d time.Time) int {
	for i, x := range a.Dates {
		if x.Equal(d) {
			return i
		}
	}
	return -1
}

// MemberIndex returns the position of m in Members, or -1.
func (a Axes) MemberIndex(m string) int {
	for i, x := range a.Members {
		if x == m {
			return i
		}
	}
	return -1
}

// ChunkIndex returns the position of c in Chunks, or -1.
func (a Axes) ChunkIndex(c int) int {
	for i, x := range a.Chunks {
		if x == c {
			return i
		}
	}
	return -1
}

// ChunkRange returns num consecutive chunk numbers starting at ini.
func ChunkRange(ini, num int) []int {
	if num <= 0 {
		return nil
	}
	chunks := make([]int, num)
	for i := range chunks {
		chunks[i] = ini + i
	}
	return chunks
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/dependency"
)

// Model is the unified, format-agnostic representation of an experiment.
type Model struct {
	Experiment *Experiment
	// Wrapper is nil when jobs are always submitted one by one.
	Wrapper   *Wrapper
	Platforms map[string]*Platform
	// Sections keeps declaration order, which is also generation order.
	Sections []*Section
}

// Experiment holds the experiment-wide settings.
type Experiment struct {
	ID              string
	StartDates      []time.Time
	Members         []string
	NumChunks       int
	ChunkIni        int
	DateFormat      string
	Retrials        int
	DefaultJobType  string
	DefaultPlatform string
	// UpdateFile, when set, is checked every tick for manual status changes.
	UpdateFile  string
	SafetySleep time.Duration
}

// Wrapper configures how ready jobs are bundled into one submission.
type Wrapper struct {
	Type       string
	Sections   []string
	MaxWrapped int
	// CheckTime is the minimum interval between two status polls of the
	// same wrapper. Zero polls every tick.
	CheckTime time.Duration
}

// Platform describes a remote machine.
type Platform struct {
	Name           string
	Type           string
	Host           string
	User           string
	Port           int
	IdentityFile   string
	RemoteDir      string
	MaxWaitingJobs int
	TotalJobs      int
	MaxProcessors  int
	MaxWallclock   time.Duration
	AllowWrappers  bool
}

// Section is one job type of the experiment.
type Section struct {
	Name              string
	File              string
	Running           coord.Running
	Frequency         int
	Wait              bool
	Delay             int
	Synchronize       coord.Synchronize
	Splits            int
	RerunOnly         bool
	Dependencies      []string
	RerunDependencies []string
	Platform          string
	Type              string
	Processors        int
	Threads           int
	Tasks             int
	Wallclock         time.Duration
	Memory            string
	Queue             string
	// Retrials overrides the experiment default when set.
	Retrials   *int
	Priority   int
	Parameters map[string]string
}

// Axes returns the experiment's date, member and chunk sequences.
func (m *Model) Axes() coord.Axes {
	return coord.Axes{
		Dates:   m.Experiment.StartDates,
		Members: m.Experiment.Members,
		Chunks:  coord.ChunkRange(m.Experiment.ChunkIni, m.Experiment.NumChunks),
	}
}

// Section looks a section up by name.
func (m *Model) Section(name string) (*Section, bool) {
	for _, s := range m.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// SectionNames returns the section names in declaration order.
func (m *Model) SectionNames() []string {
	out := make([]string, 0, len(m.Sections))
	for _, s := range m.Sections {
		out = append(out, s.Name)
	}
	return out
}

// SplitsOf returns the split count of a section, or 0 when it is not split
// or not declared.
func (m *Model) SplitsOf(name string) int {
	if s, ok := m.Section(name); ok {
		return s.Splits
	}
	return 0
}

// SectionInfo implements dependency.Sections.
func (m *Model) SectionInfo(name string) (dependency.SectionInfo, bool) {
	s, ok := m.Section(name)
	if !ok {
		return dependency.SectionInfo{}, false
	}
	return dependency.SectionInfo{Running: s.Running, Delay: s.Delay, Splits: s.Splits}, true
}

// RetrialsOf returns the number of retries allowed for a section.
func (m *Model) RetrialsOf(s *Section) int {
	if s.Retrials != nil {
		return *s.Retrials
	}
	return m.Experiment.Retrials
}

// PlatformOf returns the platform name a section runs on.
func (m *Model) PlatformOf(s *Section) string {
	if s.Platform != "" {
		return s.Platform
	}
	return m.Experiment.DefaultPlatform
}

// Wraps reports whether jobs of section are eligible for wrapping.
func (m *Model) Wraps(section string) bool {
	if m.Wrapper == nil {
		return false
	}
	for _, s := range m.Wrapper.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Validate checks cross references and value ranges.
func (m *Model) Validate() error {
	if m.Experiment == nil {
		return fmt.Errorf("%w: missing experiment block", ErrInvalid)
	}
	e := m.Experiment
	if e.ID == "" {
		return fmt.Errorf("%w: experiment id cannot be empty", ErrInvalid)
	}
	if e.NumChunks > 0 && e.ChunkIni < 1 {
		return fmt.Errorf("%w: chunk_ini must be at least 1, got %d", ErrInvalid, e.ChunkIni)
	}
	if e.Retrials < 0 {
		return fmt.Errorf("%w: retrials cannot be negative", ErrInvalid)
	}

	seen := make(map[string]bool)
	for _, s := range m.Sections {
		if seen[s.Name] {
			return fmt.Errorf("%w: job section %q declared twice", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if strings.ContainsAny(s.Name, "+-[] ") {
			return fmt.Errorf("%w: job section name %q cannot contain '+', '-', spaces or brackets", ErrInvalid, s.Name)
		}
		if s.Frequency < 1 {
			return fmt.Errorf("%w: job section %q: frequency must be at least 1", ErrInvalid, s.Name)
		}
		if s.Splits < 0 {
			return fmt.Errorf("%w: job section %q: splits cannot be negative", ErrInvalid, s.Name)
		}
		if p := m.PlatformOf(s); p != "" && len(m.Platforms) > 0 {
			if _, ok := m.Platforms[p]; !ok {
				return fmt.Errorf("%w: job section %q uses undeclared platform %q", ErrInvalid, s.Name, p)
			}
		}
	}

	if m.Wrapper != nil {
		switch m.Wrapper.Type {
		case "vertical", "horizontal", "vertical-mixed", "vertical-horizontal", "horizontal-vertical":
		default:
			return fmt.Errorf("%w: unknown wrapper type %q", ErrInvalid, m.Wrapper.Type)
		}
		for _, name := range m.Wrapper.Sections {
			if !seen[name] {
				return fmt.Errorf("%w: wrapper lists undeclared job section %q", ErrInvalid, name)
			}
		}
	}
	return nil
}

// ParseWallclock reads a wallclock limit written as HH:MM.
func ParseWallclock(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: wallclock %q must be HH:MM", ErrInvalid, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: wallclock %q has invalid hours", ErrInvalid, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: wallclock %q has invalid minutes", ErrInvalid, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

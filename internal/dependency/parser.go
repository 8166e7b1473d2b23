package dependency

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/chunkgrid/internal/coord"
)

// ErrUndefinedSection is returned when a dependency names a section the
// experiment does not declare.
var ErrUndefinedSection = errors.New("dependency on undefined section")

// keyRegex matches `SECTION`, `SECTION-N`, `SECTION+N`, each optionally
// carrying a split selector such as `SECTION[1,3:5]-1`.
var keyRegex = regexp.MustCompile(`^([A-Za-z0-9_.]+)(?:\[([0-9,:\s]*)\])?(?:([+-])(\d+))?$`)

// SectionInfo is what the parser needs to know about the target section.
type SectionInfo struct {
	Running coord.Running
	Delay   int
	Splits  int
}

// Sections looks sections up by name.
type Sections interface {
	SectionInfo(name string) (SectionInfo, bool)
}

// Parse reads a dependency key and completes it with the running type,
// delay and split count of the section it names.
func Parse(key string, sections Sections) (Dependency, error) {
	matches := keyRegex.FindStringSubmatch(strings.TrimSpace(key))
	if matches == nil {
		return Dependency{}, fmt.Errorf("invalid dependency %q", key)
	}

	dep := Dependency{Key: key, Section: matches[1]}
	info, ok := sections.SectionInfo(dep.Section)
	if !ok {
		return Dependency{}, fmt.Errorf("%w: %q in %q", ErrUndefinedSection, dep.Section, key)
	}
	dep.Running = info.Running
	dep.Delay = info.Delay

	if matches[3] != "" {
		dep.Sign = Sign(matches[3][0])
		n, err := strconv.Atoi(matches[4])
		if err != nil {
			// Unreachable due to regex `\d+`
			return Dependency{}, fmt.Errorf("internal error parsing distance of %q: %w", key, err)
		}
		dep.Distance = n
	}

	if matches[2] != "" || strings.Contains(key, "[") {
		splits, err := parseSplits(matches[2], info.Splits)
		if err != nil {
			return Dependency{}, fmt.Errorf("invalid split selector in %q: %w", key, err)
		}
		dep.Splits = splits
	}
	return dep, nil
}

// parseSplits expands a selector like "1,3:5" into explicit split numbers.
// Range ends are clamped to max and single values above max are dropped.
func parseSplits(sel string, max int) ([]int, error) {
	splits := []int{}
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, isRange := strings.Cut(part, ":"); isRange {
			from, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, err
			}
			to, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, err
			}
			to = min(to, max)
			for s := from; s <= to; s++ {
				splits = append(splits, s)
			}
			continue
		}
		s, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		if s <= max {
			splits = append(splits, s)
		}
	}
	return splits, nil
}

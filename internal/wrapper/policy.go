package wrapper

import (
	"fmt"
	"strings"
)

// Policy is the shape of the wrappers the packager builds.
type Policy int

const (
	// Vertical chains consecutive jobs of one section.
	Vertical Policy = iota
	// Horizontal runs ready jobs of one section side by side.
	Horizontal
	// VerticalMixed chains consecutive jobs of any wrapped section.
	VerticalMixed
	// VerticalHorizontal and HorizontalVertical run several vertical
	// chains side by side.
	VerticalHorizontal
	HorizontalVertical
)

var policyNames = map[Policy]string{
	Vertical:           "vertical",
	Horizontal:         "horizontal",
	VerticalMixed:      "vertical-mixed",
	VerticalHorizontal: "vertical-horizontal",
	HorizontalVertical: "horizontal-vertical",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy reads a wrapper type as written in configuration.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return Vertical, fmt.Errorf("unknown wrapper type %q", s)
}

// cancelsOnOverrun reports whether one inner job exceeding its wallclock
// takes the whole wrapper down.
func (p Policy) cancelsOnOverrun() bool {
	return p == Vertical || p == Horizontal
}

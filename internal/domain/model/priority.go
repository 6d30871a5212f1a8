package model

import (
	"fmt"
	"strings"
)

// Priority orders events across the bus and processor lanes.
// Values are spaced so intermediate classes can be added without renumbering.
type Priority int32

const (
	PriorityLow      Priority = 10
	PriorityNormal   Priority = 20
	PriorityHigh     Priority = 30
	PriorityCritical Priority = 40
)

// Lanes lists every priority class from most to least urgent.
// Index positions double as lane indexes for queue arrays.
var Lanes = [...]Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// LaneCount is the number of dedicated priority lanes.
const LaneCount = len(Lanes)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int32(p))
	}
}

// Valid reports whether p is one of the four known classes.
func (p Priority) Valid() bool {
	return p.Lane() >= 0
}

// Lane returns the index of p inside Lanes, or -1 for unknown values.
func (p Priority) Lane() int {
	for i, l := range Lanes {
		if l == p {
			return i
		}
	}
	return -1
}

// ParsePriority accepts the lowercase class names produced by String.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

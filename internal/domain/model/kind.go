package model

import (
	"fmt"
	"strings"
)

// EventKind is the closed discriminator for the concrete event families
// flowing through the core. Routing decisions use lookup tables keyed by
// kind instead of inspecting payload shapes.
type EventKind int16

const (
	KindGeneric EventKind = iota
	KindMarketData
	KindAnalysis
	KindTradingSignal
	KindAlert
	KindSystem
	KindError
)

var kindNames = [...]string{
	KindGeneric:       "generic",
	KindMarketData:    "market_data",
	KindAnalysis:      "analysis",
	KindTradingSignal: "trading_signal",
	KindAlert:         "alert",
	KindSystem:        "system",
	KindError:         "error",
}

// [CLASSIFICATION_TABLE]
// Default priority applied when the producer does not set one explicitly.
var kindPriority = map[EventKind]Priority{
	KindGeneric:       PriorityNormal,
	KindMarketData:    PriorityHigh,
	KindAnalysis:      PriorityHigh,
	KindTradingSignal: PriorityCritical,
	KindAlert:         PriorityNormal,
	KindSystem:        PriorityLow,
	KindError:         PriorityNormal,
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int16(k))
}

// DefaultPriority returns the lane an event of this kind lands on by default.
func (k EventKind) DefaultPriority() Priority {
	if p, ok := kindPriority[k]; ok {
		return p
	}
	return PriorityNormal
}

// ParseKind maps a wire name back to its kind. Empty input means generic.
func ParseKind(s string) (EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindGeneric, nil
	}
	for k, name := range kindNames {
		if name == s {
			return EventKind(k), nil
		}
	}
	return KindGeneric, fmt.Errorf("unknown event kind %q", s)
}

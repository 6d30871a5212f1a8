// Package topic implements the dot-separated routing keys used for event types
// and the wildcard patterns subscribers register against them.
//
// Pattern rules:
//   - "*" or "**" on its own matches every type.
//   - "**" as a segment matches zero or more segments.
//   - Any other segment is a shell glob confined to one segment ("market_*", "ticker?").
package topic

import (
	"path"
	"strings"
)

const (
	Separator      = "."
	WildcardSingle = "*"
	WildcardMulti  = "**"
)

// IsPattern reports whether s needs wildcard matching rather than an exact lookup.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// Match reports whether eventType satisfies pattern.
// Malformed glob segments never match.
func Match(pattern, eventType string) bool {
	if pattern == WildcardSingle || pattern == WildcardMulti {
		return true
	}
	if !IsPattern(pattern) {
		return pattern == eventType
	}
	return matchSegments(strings.Split(eventType, Separator), strings.Split(pattern, Separator))
}

func matchSegments(typ, pattern []string) bool {
	ti, pi := 0, 0
	for pi < len(pattern) {
		if pattern[pi] == WildcardMulti {
			// [BACKTRACK] try every possible split of the remaining segments
			for ; ti <= len(typ); ti++ {
				if matchSegments(typ[ti:], pattern[pi+1:]) {
					return true
				}
			}
			return false
		}
		if ti >= len(typ) {
			return false
		}
		ok, err := path.Match(pattern[pi], typ[ti])
		if err != nil || !ok {
			return false
		}
		ti++
		pi++
	}
	return ti == len(typ)
}

// Package severity defines the four-level urgency scale used by every
// Safe Shield finding.
//
// Levels are totally ordered: CRITICAL is the most urgent and OK the least.
// Lower priority numbers sort first.
package severity

import "strings"

// Level is the urgency of a single finding.
type Level string

const (
	Critical Level = "CRITICAL"
	Warn     Level = "WARN"
	Info     Level = "INFO"
	OK       Level = "OK"
)

// Display titles shown for an overall verdict at each level.
const (
	TitleCritical = "Risk detected"
	TitleWarn     = "Issues found"
	TitleInfo     = "Review details"
	TitleOK       = "Checks passed"
)

// AllLevels returns every level, most urgent first.
func AllLevels() []Level {
	return []Level{Critical, Warn, Info, OK}
}

// String returns the string representation of the level.
func (l Level) String() string {
	return string(l)
}

// Priority returns the sort key of the level. Lower is more urgent.
// Unrecognised levels sort after OK.
func (l Level) Priority() int {
	switch l {
	case Critical:
		return 0
	case Warn:
		return 1
	case Info:
		return 2
	case OK:
		return 3
	default:
		return 4
	}
}

// Title returns the fixed verdict title for the level.
func (l Level) Title() string {
	switch l {
	case Critical:
		return TitleCritical
	case Warn:
		return TitleWarn
	case Info:
		return TitleInfo
	case OK:
		return TitleOK
	default:
		return ""
	}
}

// IsValid reports whether l is one of the four known levels.
func (l Level) IsValid() bool {
	return l.Priority() < 4
}

// IsMoreUrgentThan reports whether l sorts strictly before other.
func (l Level) IsMoreUrgentThan(other Level) bool {
	return l.Priority() < other.Priority()
}

// Compare returns:
//
//	-1 if a is more urgent than b
//	 0 if they are equal
//	+1 if a is less urgent than b
func Compare(a, b Level) int {
	pa, pb := a.Priority(), b.Priority()
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

// Parse normalises a case-insensitive level name.
func Parse(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", false
	}
	return l, true
}

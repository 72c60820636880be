package analysis

import (
	"sort"

	"github.com/mbd888/safeshield/internal/severity"
)

// SortBySeverity returns a new slice ordered most urgent first.
// Equal severities keep their input order. The input is never modified.
func SortBySeverity(results []Result) []Result {
	out := make([]Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return severity.Compare(out[i].Severity, out[j].Severity) < 0
	})
	return out
}

// PrimaryResult returns the most urgent result. The first of several equally
// urgent results wins. ok is false for a nil or empty input.
func PrimaryResult(results []Result) (primary Result, ok bool) {
	for i, r := range results {
		if i == 0 || severity.Compare(r.Severity, primary.Severity) < 0 {
			primary = r
		}
	}
	return primary, len(results) > 0
}

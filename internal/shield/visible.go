package shield

import (
	"github.com/mbd888/safeshield/internal/analysis"
)

// PrimaryResults keeps the most urgent finding of every present group for a
// single address and returns them most urgent first. Groups with no findings
// are skipped.
func PrimaryResults(groups analysis.GroupResults) []analysis.Result {
	primaries := make([]analysis.Result, 0, len(groups))
	for _, group := range groups.Groups() {
		if primary, ok := analysis.PrimaryResult(groups[group]); ok {
			primaries = append(primaries, primary)
		}
	}
	return analysis.SortBySeverity(primaries)
}

// VisibleResults is what the user sees for a result map: the per-group
// primaries of the only address, or the consolidated summary when several
// addresses are involved.
func VisibleResults(results analysis.RecipientResults, d *Descriptions) []analysis.Result {
	switch len(results) {
	case 0:
		return []analysis.Result{}
	case 1:
		for _, entry := range results {
			return PrimaryResults(entry.Groups)
		}
	}
	return analysis.SortBySeverity(ConsolidateResults(results, d).All())
}

// VisibleThreatResults flattens threat findings for display, most urgent first.
func VisibleThreatResults(threat analysis.ThreatResults) []analysis.Result {
	var all []analysis.Result
	for _, addr := range threat.Keys() {
		all = append(all, threat[addr].All()...)
	}
	return analysis.SortBySeverity(all)
}

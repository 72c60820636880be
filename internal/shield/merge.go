// Package shield is the Safe Shield aggregation engine.
//
// It merges findings from independent sources (backend analysis, address
// book, on-chain activity, threat vendor), selects what to surface for one
// or many addresses and derives a single overall verdict. Everything except
// Service is pure: functions take values, return freshly allocated values and
// never modify their inputs, so they can be re-run on every update.
package shield

import (
	"sort"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/status"
)

// MergeRecipientResults unions the backend results with the single-verdict
// address book and activity checks, keyed by checksummed address.
//
// The backend map is the base. ADDRESS_BOOK and then RECIPIENT_ACTIVITY are
// written as one-element slices, creating the address entry when needed.
// Later sources overwrite a group but never remove one. Nil inputs
// contribute nothing. Inputs are not modified.
func MergeRecipientResults(
	backend analysis.RecipientResults,
	addressBook map[string]analysis.Result,
	activity map[string]analysis.Result,
) analysis.RecipientResults {
	merged := make(analysis.RecipientResults, len(backend))

	for _, addr := range backend.Keys() {
		key := analysis.Checksum(addr)
		incoming := backend[addr].Clone()
		existing, ok := merged[key]
		if !ok {
			if incoming.Groups == nil {
				incoming.Groups = analysis.GroupResults{}
			}
			merged[key] = incoming
			continue
		}
		// Two casings of the same account: union group by group.
		existing.IsSafe = existing.IsSafe || incoming.IsSafe
		for group, results := range incoming.Groups {
			existing.Groups[group] = results
		}
		merged[key] = existing
	}

	upsertSingle(merged, addressBook, status.GroupAddressBook)
	upsertSingle(merged, activity, status.GroupRecipientActivity)

	return merged
}

func upsertSingle(merged analysis.RecipientResults, source map[string]analysis.Result, group status.Group) {
	addrs := make([]string, 0, len(source))
	for addr := range source {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		key := analysis.Checksum(addr)
		entry, ok := merged[key]
		if !ok || entry.Groups == nil {
			entry.Groups = analysis.GroupResults{}
		}
		entry.Groups[group] = []analysis.Result{source[addr].Clone()}
		merged[key] = entry
	}
}

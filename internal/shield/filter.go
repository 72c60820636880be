package shield

import (
	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/status"
)

// FilterNonSafeRecipients returns the addresses that still need an on-chain
// activity lookup: not flagged as Safes and not already carrying any
// RECIPIENT_ACTIVITY entry (a FAILED entry counts as present).
//
// Addresses come back checksummed in ascending key order.
func FilterNonSafeRecipients(backend analysis.RecipientResults) []string {
	var out []string
	seen := make(map[string]bool, len(backend))
	for _, addr := range backend.Keys() {
		entry := backend[addr]
		if entry.IsSafe || entry.Groups.Has(status.GroupRecipientActivity) {
			continue
		}
		key := analysis.Checksum(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

package shield

import (
	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/status"
)

// codeBucket collects the per-address primaries sharing one status code.
type codeBucket struct {
	code    status.Code
	members []analysis.Result
}

// ConsolidateResults collapses the findings of many addresses into at most
// one result per group.
//
// Each address contributes its primary result per group, tagged with the
// address. Primaries are bucketed by (group, code); every bucket becomes one
// result that borrows severity and title from its first member and gets a
// count-aware description. Within a group only the most urgent bucket
// survives. Groups nobody contributed to are omitted.
func ConsolidateResults(results analysis.RecipientResults, d *Descriptions) analysis.GroupResults {
	if d == nil {
		d = DefaultDescriptions()
	}

	addrs := results.Keys()
	total := len(addrs)

	buckets := make(map[status.Group][]*codeBucket)
	for _, addr := range addrs {
		groups := results[addr].Groups
		for _, group := range groups.Groups() {
			primary, ok := analysis.PrimaryResult(groups[group])
			if !ok {
				continue
			}
			tagged := primary.WithAddresses(addr)
			bucket := findBucket(buckets[group], primary.Type)
			if bucket == nil {
				bucket = &codeBucket{code: primary.Type}
				buckets[group] = append(buckets[group], bucket)
			}
			bucket.members = append(bucket.members, tagged)
		}
	}

	out := make(analysis.GroupResults, len(buckets))
	for group, groupBuckets := range buckets {
		consolidated := make([]analysis.Result, 0, len(groupBuckets))
		for _, bucket := range groupBuckets {
			consolidated = append(consolidated, consolidateBucket(bucket, total, d))
		}
		primary, ok := analysis.PrimaryResult(consolidated)
		if !ok {
			continue
		}
		out[group] = analysis.SortBySeverity([]analysis.Result{primary})
	}
	return out
}

func findBucket(buckets []*codeBucket, code status.Code) *codeBucket {
	for _, b := range buckets {
		if b.code == code {
			return b
		}
	}
	return nil
}

func consolidateBucket(bucket *codeBucket, total int, d *Descriptions) analysis.Result {
	first := bucket.members[0]
	n := len(bucket.members)

	var addrs []string
	seen := make(map[string]bool, n)
	for _, m := range bucket.members {
		for _, a := range m.Addresses {
			if !seen[a] {
				seen[a] = true
				addrs = append(addrs, a)
			}
		}
	}

	out := first.Clone()
	out.Description = d.Describe(bucket.code, n, total, first.Description)
	out.Addresses = addrs
	return out
}

// Package analysis holds the Safe Shield result model: the atomic finding
// record and the address-keyed maps every source produces.
//
// Values in this package are treated as immutable. Every transform returns
// freshly allocated maps and slices; use Clone before handing a value to code
// that may modify it.
package analysis

import (
	"sort"

	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
)

// Result is a single finding.
type Result struct {
	Severity    severity.Level `json:"severity"`
	Type        status.Code    `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`

	// Issues buckets free-form issue lines by severity (threat findings).
	Issues map[severity.Level][]string `json:"issues,omitempty"`

	// Before and After describe copy-change findings (e.g. mastercopy).
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`

	// Addresses back-references the addresses a consolidated result covers.
	Addresses []string `json:"addresses,omitempty"`
}

// New creates a plain finding.
func New(level severity.Level, code status.Code, title, description string) Result {
	return Result{
		Severity:    level,
		Type:        code,
		Title:       title,
		Description: description,
	}
}

// Failed creates the FAILED finding a source emits when its check could not run.
func Failed(title, description string) Result {
	return New(severity.Warn, status.Failed, title, description)
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := r
	if r.Issues != nil {
		out.Issues = make(map[severity.Level][]string, len(r.Issues))
		for level, lines := range r.Issues {
			out.Issues[level] = append([]string(nil), lines...)
		}
	}
	if r.Addresses != nil {
		out.Addresses = append([]string(nil), r.Addresses...)
	}
	return out
}

// WithAddresses returns a copy of r carrying the given back-references.
func (r Result) WithAddresses(addrs ...string) Result {
	out := r.Clone()
	out.Addresses = append([]string(nil), addrs...)
	return out
}

// GroupResults maps a status group to its findings.
//
// A missing key means the group produced nothing; an empty slice means the
// group was checked and has nothing to report. Both render as "no finding".
type GroupResults map[status.Group][]Result

// Clone returns a deep copy that keeps the missing/empty distinction.
func (g GroupResults) Clone() GroupResults {
	if g == nil {
		return nil
	}
	out := make(GroupResults, len(g))
	for group, results := range g {
		out[group] = cloneResults(results)
	}
	return out
}

// Has reports whether the group key is present, even with an empty slice.
func (g GroupResults) Has(group status.Group) bool {
	_, ok := g[group]
	return ok
}

// Groups returns the present group keys in canonical taxonomy order.
// Unknown groups follow in lexical order.
func (g GroupResults) Groups() []status.Group {
	out := make([]status.Group, 0, len(g))
	seen := make(map[status.Group]bool, len(g))
	for _, group := range status.Groups() {
		if _, ok := g[group]; ok {
			out = append(out, group)
			seen[group] = true
		}
	}
	var extra []status.Group
	for group := range g {
		if !seen[group] {
			extra = append(extra, group)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// All flattens every finding in canonical group order.
func (g GroupResults) All() []Result {
	var out []Result
	for _, group := range g.Groups() {
		out = append(out, g[group]...)
	}
	return out
}

// AddressResults is the per-address payload the backend returns.
type AddressResults struct {
	// IsSafe marks the address as a smart-contract wallet itself.
	IsSafe bool
	Groups GroupResults
}

// Clone returns a deep copy of a.
func (a AddressResults) Clone() AddressResults {
	return AddressResults{IsSafe: a.IsSafe, Groups: a.Groups.Clone()}
}

// RecipientResults maps a checksummed address to its findings. Contract
// analysis uses the same shape.
type RecipientResults map[string]AddressResults

// ContractResults is the contract-analysis view of RecipientResults.
type ContractResults = RecipientResults

// Clone returns a deep copy of r.
func (r RecipientResults) Clone() RecipientResults {
	if r == nil {
		return nil
	}
	out := make(RecipientResults, len(r))
	for addr, a := range r {
		out[addr] = a.Clone()
	}
	return out
}

// Keys returns the address keys in ascending order.
func (r RecipientResults) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ThreatResults maps an address (normally the Safe) to its threat findings.
type ThreatResults map[string]GroupResults

// Keys returns the address keys in ascending order.
func (t ThreatResults) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneResults(results []Result) []Result {
	if results == nil {
		return nil
	}
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out
}

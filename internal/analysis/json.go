package analysis

import (
	"bytes"
	"encoding/json"

	"github.com/mbd888/safeshield/internal/status"
)

const isSafeKey = "isSafe"

// UnmarshalJSON decodes a threat group map leniently. Upstream payloads are
// not always well formed, so:
//   - a group holding an array keeps every member that decodes as a result
//   - a group holding a single result object becomes a one-element slice
//   - a group holding anything else (null, string, number) is dropped
//
// Decoding never fails on a malformed group value.
func (g *GroupResults) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(GroupResults, len(raw))
	for key, value := range raw {
		if results, ok := decodeGroupValue(value, true); ok {
			out[status.Group(key)] = results
		}
	}
	*g = out
	return nil
}

// MarshalJSON flattens the address payload into one object: the optional
// isSafe flag next to the group keys, matching the backend wire shape.
func (a AddressResults) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(a.Groups)+1)
	if a.IsSafe {
		flat[isSafeKey] = true
	}
	for group, results := range a.Groups {
		if results == nil {
			results = []Result{}
		}
		flat[string(group)] = results
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat backend shape. A non-boolean isSafe is
// treated as absent. Group values must be arrays; anything else, a lone
// result object included, is skipped.
func (a *AddressResults) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := AddressResults{Groups: make(GroupResults, len(raw))}
	for key, value := range raw {
		if key == isSafeKey {
			var isSafe bool
			if json.Unmarshal(value, &isSafe) == nil {
				out.IsSafe = isSafe
			}
			continue
		}
		if results, ok := decodeGroupValue(value, false); ok {
			out.Groups[status.Group(key)] = results
		}
	}
	*a = out
	return nil
}

// decodeGroupValue decodes one group. allowObject accepts a single result
// object in place of an array, which only threat payloads use.
func decodeGroupValue(value json.RawMessage, allowObject bool) ([]Result, bool) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, false
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false
		}
		results := make([]Result, 0, len(items))
		for _, item := range items {
			if r, ok := decodeResult(item); ok {
				results = append(results, r)
			}
		}
		return results, true
	case '{':
		if !allowObject {
			return nil, false
		}
		r, ok := decodeResult(trimmed)
		if !ok {
			return nil, false
		}
		return []Result{r}, true
	default:
		return nil, false
	}
}

// resultShape holds the keys an object needs to count as a result.
type resultShape struct {
	Severity    *string `json:"severity"`
	Type        *string `json:"type"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s resultShape) complete() bool {
	return s.Severity != nil && *s.Severity != "" &&
		s.Type != nil && *s.Type != "" &&
		s.Title != nil && s.Description != nil
}

// decodeResult accepts an object carrying severity, type, title and
// description. Title and description may be empty strings but must be
// present.
func decodeResult(item json.RawMessage) (Result, bool) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{}, false
	}
	var shape resultShape
	if err := json.Unmarshal(trimmed, &shape); err != nil || !shape.complete() {
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Result{}, false
	}
	return r, true
}

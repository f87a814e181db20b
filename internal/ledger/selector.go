package ledger

import "encoding/json"

// Selector describes an indexed query over stored JSON documents:
// top-level field equality, $in membership, and $exists presence checks.
type Selector struct {
	Equals map[string]string
	In     map[string][]string
	Exists []string
}

// Matches evaluates the selector against a raw document. Stores without a
// real secondary index (the in-memory one) use it as the scan predicate.
func (s Selector) Matches(doc []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	for field, want := range s.Equals {
		if stringField(fields, field) != want {
			return false
		}
	}
	for field, values := range s.In {
		got := stringField(fields, field)
		found := false
		for _, want := range values {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, field := range s.Exists {
		raw, ok := fields[field]
		if !ok || string(raw) == "null" {
			return false
		}
	}
	return true
}

func stringField(fields map[string]json.RawMessage, field string) string {
	raw, ok := fields[field]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

// Package codec marshals documents into canonical JSON: object keys sorted
// recursively, no insignificant whitespace. Independent executions of the
// same write must produce byte-identical ledger entries, otherwise replicas
// disagree on state hashes.
package codec

import (
	"bytes"
	"encoding/json"
)

// Marshal encodes v deterministically. It round-trips through generic maps
// because encoding/json writes map keys in sorted order at every level.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Unmarshal decodes a stored document into v.
func Unmarshal(doc []byte, v interface{}) error {
	return json.Unmarshal(doc, v)
}

// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package record

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Header is a single metadata entry carried alongside a record.
type Header struct {
	Key   string
	Value string
}

// Headers is the ordered metadata mapping attached to a record. Bus
// publishers emit headers in a meaningful order and the historian exposes
// them in arrival order, so a plain map is not enough: JSON round-trips
// must preserve insertion order. Lookups are linear, which is fine for
// the handful of entries a record carries.
type Headers []Header

// NewHeaders builds Headers from alternating key, value strings.
// An unpaired trailing key is ignored.
func NewHeaders(pairs ...string) Headers {
	h := make(Headers, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

// HeadersFromMap builds Headers from a plain map, ordering entries by the
// given key order. Keys missing from the map are skipped; map entries not
// named in order are appended afterwards in map iteration order.
func HeadersFromMap(m map[string]string, order ...string) Headers {
	h := make(Headers, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if v, ok := m[k]; ok {
			h = append(h, Header{Key: k, Value: v})
			seen[k] = true
		}
	}
	for k, v := range m {
		if !seen[k] {
			h = append(h, Header{Key: k, Value: v})
		}
	}
	return h
}

// Get returns the value for key and whether it is present.
func (h Headers) Get(key string) (string, bool) {
	for _, e := range h {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key in place, or appends a new entry.
func (h *Headers) Set(key, value string) {
	for i, e := range *h {
		if e.Key == key {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Key: key, Value: value})
}

// Keys returns the header keys in order.
func (h Headers) Keys() []string {
	keys := make([]string, len(h))
	for i, e := range h {
		keys[i] = e.Key
	}
	return keys
}

// Map returns an unordered copy of the headers.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, e := range h {
		m[e.Key] = e.Value
	}
	return m
}

// MarshalJSON encodes the headers as a JSON object in insertion order.
func (h Headers) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order as written.
// Values must be strings; headers are a string-to-string mapping.
func (h *Headers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("headers: expected object, got %v", tok)
	}

	out := Headers{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("headers: non-string key %v", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		val, ok := valTok.(string)
		if !ok {
			return fmt.Errorf("headers: value for %q is not a string", key)
		}

		out = append(out, Header{Key: key, Value: val})
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("headers: %w", err)
	}

	*h = out
	return nil
}

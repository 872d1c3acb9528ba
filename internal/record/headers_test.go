// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package record

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestHeaders_GetSet(t *testing.T) {
	h := Headers{}
	if _, ok := h.Get("missing"); ok {
		t.Error("Expected missing key to report absent")
	}

	h.Set("TimeStamp", "2015-11-17 21:24:10.189393+00:00")
	h.Set("Source", "platform")

	v, ok := h.Get("TimeStamp")
	if !ok || v != "2015-11-17 21:24:10.189393+00:00" {
		t.Errorf("Get(TimeStamp) = %q, %v", v, ok)
	}

	// Set on an existing key replaces in place, not append.
	h.Set("TimeStamp", "2016-01-01 00:00:00+00:00")
	if len(h) != 2 {
		t.Fatalf("Expected 2 entries after replace, got %d", len(h))
	}
	v, _ = h.Get("TimeStamp")
	if v != "2016-01-01 00:00:00+00:00" {
		t.Errorf("Expected replaced value, got %q", v)
	}
}

func TestNewHeaders(t *testing.T) {
	h := NewHeaders("a", "1", "b", "2", "a", "3")
	if len(h) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(h))
	}
	if v, _ := h.Get("a"); v != "3" {
		t.Errorf("Expected later pair to replace, got %q", v)
	}

	// Unpaired trailing key is dropped.
	h = NewHeaders("a", "1", "orphan")
	if len(h) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(h))
	}
}

func TestHeaders_MarshalPreservesOrder(t *testing.T) {
	h := NewHeaders("zebra", "1", "apple", "2", "mango", "3")

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"zebra":"1","apple":"2","mango":"3"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestHeaders_UnmarshalPreservesOrder(t *testing.T) {
	input := `{"zebra":"1","apple":"2","mango":"3"}`

	var h Headers
	if err := json.Unmarshal([]byte(input), &h); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	wantKeys := []string{"zebra", "apple", "mango"}
	gotKeys := h.Keys()
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("Expected %d keys, got %d", len(wantKeys), len(gotKeys))
	}
	for i, k := range wantKeys {
		if gotKeys[i] != k {
			t.Errorf("Key[%d] = %q, want %q", i, gotKeys[i], k)
		}
	}
}

func TestHeaders_RoundTrip(t *testing.T) {
	h := NewHeaders(
		"TimeStamp", "2015-11-17 21:24:10.189393+00:00",
		"Date", "2015-11-17 21:24:10.189393+00:00",
		"SynchronizedTimeStamp", "2015-11-17 21:24:10.189393+00:00",
	)

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back Headers
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(back) != len(h) {
		t.Fatalf("Expected %d entries, got %d", len(h), len(back))
	}
	for i := range h {
		if back[i] != h[i] {
			t.Errorf("Entry[%d] = %+v, want %+v", i, back[i], h[i])
		}
	}
}

func TestHeaders_UnmarshalRejectsNonString(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"number value", `{"a":1}`},
		{"object value", `{"a":{"b":"c"}}`},
		{"array value", `{"a":["b"]}`},
		{"bool value", `{"a":true}`},
		{"not an object", `["a","b"]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var h Headers
			if err := json.Unmarshal([]byte(tc.input), &h); err == nil {
				t.Errorf("Expected error for %s", tc.input)
			}
		})
	}
}

func TestHeaders_UnmarshalNull(t *testing.T) {
	h := NewHeaders("a", "1")
	if err := json.Unmarshal([]byte(`null`), &h); err != nil {
		t.Fatalf("Unmarshal null failed: %v", err)
	}
	if h != nil {
		t.Errorf("Expected nil headers, got %v", h)
	}
}

func TestHeaders_MarshalEmpty(t *testing.T) {
	data, err := json.Marshal(Headers{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Marshal empty = %s, want {}", data)
	}
}

func TestHeadersFromMap(t *testing.T) {
	m := map[string]string{"a": "1", "b": "2", "c": "3"}

	h := HeadersFromMap(m, "c", "a", "missing")
	if len(h) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(h))
	}
	if h[0].Key != "c" || h[1].Key != "a" {
		t.Errorf("Expected ordered keys c, a first, got %v", h.Keys())
	}
	// The unordered remainder still lands.
	if v, ok := h.Get("b"); !ok || v != "2" {
		t.Errorf("Expected b=2 appended, got %q, %v", v, ok)
	}
}

func TestHeaders_Map(t *testing.T) {
	h := NewHeaders("a", "1", "b", "2")
	m := h.Map()
	if len(m) != 2 || m["a"] != "1" || m["b"] != "2" {
		t.Errorf("Map() = %v", m)
	}
}

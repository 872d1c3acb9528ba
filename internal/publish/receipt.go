// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package publish

import (
	"sync"
)

// Receipt collects acknowledgments from a Sink during one publish attempt.
// The scheduler seals the receipt the moment the attempt concludes, so a
// sink that acknowledges after its deadline cannot purge records out from
// under a later attempt.
type Receipt struct {
	mu      sync.Mutex
	sealed  bool
	all     bool
	handled []uint64
	seen    map[uint64]bool
}

// NewReceipt creates an empty receipt for one publish attempt.
func NewReceipt() *Receipt {
	return &Receipt{seen: make(map[uint64]bool)}
}

// ReportHandled records that the backend durably stored the given records.
// Repeated ids are counted once; calls after the attempt concluded are
// ignored.
func (r *Receipt) ReportHandled(ids ...uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	for _, id := range ids {
		if r.seen[id] {
			continue
		}
		r.seen[id] = true
		r.handled = append(r.handled, id)
	}
}

// ReportAllHandled records that the backend durably stored the whole batch.
func (r *Receipt) ReportAllHandled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.all = true
}

// AllHandled reports whether the sink acknowledged the whole batch.
func (r *Receipt) AllHandled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all
}

// HandledIDs returns the individually acknowledged ids in report order.
func (r *Receipt) HandledIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.handled))
	copy(out, r.handled)
	return out
}

// seal freezes the receipt; acknowledgments arriving later are dropped.
func (r *Receipt) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

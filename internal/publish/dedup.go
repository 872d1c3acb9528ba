// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package publish

import (
	"github.com/annalist-io/annalist/internal/record"
)

// FilterDuplicates suppresses records that announce an observation already
// present earlier in the batch. Two records are duplicates when they share
// a topic and a timestamp; payload differences do not make them distinct.
// The first occurrence is retained and later ones are dropped, so a replayed
// capture never overrides the reading that arrived first.
//
// The returned survivors preserve the input order. duplicateOf maps each
// suppressed id to the id of the retained record it duplicated, which the
// scheduler needs to purge duplicates when their representative is
// acknowledged.
func FilterDuplicates(batch []*record.Record) (survivors []*record.Record, duplicateOf map[uint64]uint64) {
	survivors = make([]*record.Record, 0, len(batch))
	duplicateOf = make(map[uint64]uint64)
	retained := make(map[string]uint64, len(batch))

	for _, rec := range batch {
		key := rec.IdentityKey()
		if keeper, ok := retained[key]; ok {
			duplicateOf[rec.ID] = keeper
			continue
		}
		retained[key] = rec.ID
		survivors = append(survivors, rec)
	}

	return survivors, duplicateOf
}

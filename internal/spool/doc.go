// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package spool provides the durable backup cache between ingest and the
// historian backend, built on BadgerDB.
//
// Every captured record is persisted here before any publish attempt, so
// records survive process crashes, power failures, and backend outages.
// Records are only removed after the backend acknowledges them.
//
// # Architecture
//
// The spool sits between capture and publishing:
//
//	Capture → Insert (ACID, fsync) → drain → publish → ack → Remove
//	                                              ↓ (on failure)
//	                                   records preserved for retry
//
// # Components
//
//   - Spool: append-and-delete record store with monotonic ids
//   - Compactor: background BadgerDB value log maintenance
//
// # Ordering
//
// Insert assigns ids 1, 2, 3, … in arrival order; the id counter is
// committed in the same transaction as the record, so the sequence has no
// gaps and survives restarts. Keys embed the id big-endian, which makes
// BadgerDB's key order the id order: NextBatch drains oldest-first without
// sorting.
//
// # Usage
//
//	cfg := spool.DefaultConfig()
//	cfg.Path = "/data/spool"
//
//	s, err := spool.Open(&cfg)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	id, err := s.Insert(ctx, rec)        // durable write
//	batch, err := s.NextBatch(ctx, 1000) // oldest records, non-destructive
//	err = s.Remove(ctx, ackedIDs)        // after backend acknowledgment
package spool

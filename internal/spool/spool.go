// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package spool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/record"
)

// Key layout. Record keys embed the id big-endian so BadgerDB's
// lexicographic key order equals id order; the counter key lives under a
// different prefix and is never touched by record iteration.
const (
	recordKeyPrefix = "r:"
	counterKey      = "m:last_id"
)

// removeChunkSize bounds the number of deletes per transaction so bulk
// acknowledgments never exceed BadgerDB's transaction size limit.
const removeChunkSize = 1000

func recordKey(id uint64) []byte {
	key := make([]byte, len(recordKeyPrefix)+8)
	copy(key, recordKeyPrefix)
	binary.BigEndian.PutUint64(key[len(recordKeyPrefix):], id)
	return key
}

// Spool is the durable backup cache. Records are inserted with fsync
// before capture returns, drained oldest-first for publishing, and removed
// only after the historian backend acknowledges them.
type Spool struct {
	db     *badger.DB
	config Config

	// writeMu serializes id assignment so the counter and the records land
	// in one transaction and the id sequence has no gaps.
	writeMu sync.Mutex
	lastID  atomic.Uint64

	// Statistics
	totalInserts atomic.Int64
	totalRemoves atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open creates or reopens a spool at the configured path. Reopening yields
// every record not yet removed and continues the id sequence without reuse.
func Open(cfg *Config) (*Spool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spool config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumCompactors = cfg.NumCompactors

	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.BlockCacheSize > 0 {
		opts.BlockCacheSize = cfg.BlockCacheSize
	}
	if cfg.IndexCacheSize > 0 {
		opts.IndexCacheSize = cfg.IndexCacheSize
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Spool{
		db:     db,
		config: *cfg,
	}

	if err := s.loadCounter(); err != nil {
		if cerr := db.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Spool close after failed open")
		}
		return nil, err
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Uint64("last_id", s.lastID.Load()).
		Msg("Spool opened")
	return s, nil
}

// loadCounter restores the last assigned id after a restart.
func (s *Spool) loadCounter() error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(counterKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get id counter: %w", err)
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("id counter has %d bytes, want 8", len(val))
			}
			s.lastID.Store(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if err != nil {
		return &StorageError{Op: "open", Err: err}
	}
	return nil
}

// Insert durably writes one record and returns its assigned id.
// Ids start at 1 and increase by one per inserted record.
func (s *Spool) Insert(ctx context.Context, rec *record.Record) (uint64, error) {
	if rec == nil {
		return 0, ErrNilRecord
	}
	ids, err := s.InsertBatch(ctx, []*record.Record{rec})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertBatch durably writes a group of records in one transaction and
// returns their assigned ids in order. Either every record in the group is
// persisted or none is; the id counter advances only on commit.
func (s *Spool) InsertBatch(ctx context.Context, recs []*record.Record) ([]uint64, error) {
	start := time.Now()
	defer func() {
		RecordSpoolInsertLatency(time.Since(start).Seconds())
	}()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSpoolClosed
	}
	s.mu.RUnlock()

	if len(recs) == 0 {
		return nil, nil
	}
	for _, r := range recs {
		if r == nil {
			return nil, ErrNilRecord
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base := s.lastID.Load()
	ids := make([]uint64, len(recs))
	encoded := make([][]byte, len(recs))

	var err error
	for i, r := range recs {
		r.ID = base + uint64(i) + 1
		ids[i] = r.ID
		encoded[i], err = record.Encode(r)
		if err != nil {
			break
		}
	}
	if err != nil {
		// Ids were never committed; restore the unassigned state.
		for _, r := range recs {
			r.ID = 0
		}
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for i := range ids {
			if err := txn.Set(recordKey(ids[i]), encoded[i]); err != nil {
				return fmt.Errorf("set record %d: %w", ids[i], err)
			}
		}
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], ids[len(ids)-1])
		if err := txn.Set([]byte(counterKey), ctr[:]); err != nil {
			return fmt.Errorf("set id counter: %w", err)
		}
		return nil
	})
	if err != nil {
		for _, r := range recs {
			r.ID = 0
		}
		RecordSpoolInsertFailure()
		return nil, &StorageError{Op: "insert", Err: err}
	}

	s.lastID.Store(ids[len(ids)-1])
	s.totalInserts.Add(int64(len(recs)))
	RecordSpoolInsert(len(recs))

	return ids, nil
}

// NextBatch returns up to limit records in ascending id order without
// removing them. The read runs in a snapshot transaction, so a batch is
// repeatable while publishing is in flight even as new records arrive.
func (s *Spool) NextBatch(ctx context.Context, limit int) ([]*record.Record, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSpoolClosed
	}
	s.mu.RUnlock()

	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	var out []*record.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			// Check for context cancellation
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			err := item.Value(func(val []byte) error {
				rec, derr := record.Decode(val)
				if derr != nil {
					return derr
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Spool skipping undecodable record")
				continue
			}
		}
		return nil
	})

	if err != nil {
		return nil, &StorageError{Op: "next_batch", Err: err}
	}
	return out, nil
}

// Remove deletes the given ids. Missing ids are ignored, so retrying a
// partially applied removal is safe.
func (s *Spool) Remove(ctx context.Context, ids []uint64) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSpoolClosed
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += removeChunkSize {
		end := start + removeChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		select {
		case <-ctx.Done():
			return &StorageError{Op: "remove", Err: ctx.Err()}
		default:
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			for _, id := range ids[start:end] {
				if err := txn.Delete(recordKey(id)); err != nil {
					return fmt.Errorf("delete record %d: %w", id, err)
				}
			}
			return nil
		})
		if err != nil {
			return &StorageError{Op: "remove", Err: err}
		}
	}

	s.totalRemoves.Add(int64(len(ids)))
	RecordSpoolRemove(len(ids))

	return nil
}

// Depth returns the number of spooled records awaiting acknowledgment.
func (s *Spool) Depth(ctx context.Context) (int64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrSpoolClosed
	}
	s.mu.RUnlock()

	var count int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			count++
		}
		return nil
	})

	if err != nil {
		return 0, &StorageError{Op: "depth", Err: err}
	}
	return count, nil
}

// Stats returns current spool statistics and refreshes the depth and size
// gauges.
func (s *Spool) Stats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return Stats{}
	}

	depth, err := s.Depth(context.Background())
	if err != nil {
		logging.Warn().Err(err).Msg("Spool stats failed to count records")
		// Continue with zero depth
	}

	lsm, vlog := s.db.Size()
	dbSize := lsm + vlog

	stats := Stats{
		Depth:        depth,
		LastID:       s.lastID.Load(),
		TotalInserts: s.totalInserts.Load(),
		TotalRemoves: s.totalRemoves.Load(),
		DBSizeBytes:  dbSize,
	}

	UpdateSpoolDepth(depth)
	UpdateSpoolDBSize(dbSize)

	return stats
}

// Stats contains spool metrics for monitoring.
type Stats struct {
	// Depth is the number of spooled records awaiting acknowledgment.
	Depth int64

	// LastID is the most recently assigned record id.
	LastID uint64

	// TotalInserts is the number of records inserted since open.
	TotalInserts int64

	// TotalRemoves is the number of records removed since open.
	TotalRemoves int64

	// DBSizeBytes is the estimated database size.
	DBSizeBytes int64
}

// RunGC triggers BadgerDB value log garbage collection. It reclaims space
// from removed records; live records are never touched.
func (s *Spool) RunGC() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSpoolClosed
	}
	s.mu.RUnlock()

	start := time.Now()
	defer func() {
		RecordSpoolGCLatency(time.Since(start).Seconds())
		RecordSpoolGCRun()
	}()

	// Run GC until no more cleanup is possible
	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}

	return nil
}

// Close gracefully shuts down the spool with a configurable timeout.
// If the database doesn't close within the configured CloseTimeout,
// Close returns with an error to prevent indefinite hangs.
func (s *Spool) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	logging.Info().Msg("Closing spool")

	// Use a channel to implement timeout
	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Spool closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

// StorageError wraps a storage failure with the operation that hit it.
// Storage failures are fatal to the affected operation and surface to the
// caller; a record that cannot be durably written is never silently dropped.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "spool " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Errors
var (
	// ErrSpoolClosed is returned when the spool is closed.
	ErrSpoolClosed = fmt.Errorf("spool is closed")

	// ErrNilRecord is returned when a nil record is passed to Insert.
	ErrNilRecord = fmt.Errorf("record cannot be nil")

	// ErrInvalidLimit is returned when NextBatch is called with a
	// non-positive limit.
	ErrInvalidLimit = fmt.Errorf("limit must be positive")
)

package kv

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/events"
	"github.com/cuemby/hutch/pkg/metrics"
)

// Snapshot is a read-only view pinned at the sequence it was created
// with. Entries overwritten afterwards stay readable through retained
// versions until the snapshot is dropped.
type Snapshot struct {
	db      *DB
	seq     uint64
	dropped bool
}

// Snapshot pins a read-only view at the current youngest sequence.
func (db *DB) Snapshot() (*Snapshot, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	s := &Snapshot{db: db, seq: db.youngest.Load()}
	db.snaps[s] = struct{}{}
	metrics.SnapshotsTotal.Set(float64(len(db.snaps)))
	db.broker.Publish(&events.Event{Type: events.EventSnapshotCreated, Sequence: s.seq})
	return s, nil
}

// Snapshots lists the live snapshots.
func (db *DB) Snapshots() []*Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Snapshot, 0, len(db.snaps))
	for s := range db.snaps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Drop releases the snapshot; versions only it could see become
// collectable.
func (s *Snapshot) Drop() {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.dropped {
		return
	}
	s.dropped = true
	delete(db.snaps, s)
	metrics.SnapshotsTotal.Set(float64(len(db.snaps)))
	db.broker.Publish(&events.Event{Type: events.EventSnapshotDropped, Sequence: s.seq})
}

// Sequence returns the pinned sequence number.
func (s *Snapshot) Sequence() uint64 {
	return s.seq
}

func (s *Snapshot) usable() error {
	if s == nil || s.dropped {
		return ErrUninitialized
	}
	return nil
}

// Read fetches a batch of entries as of the snapshot.
func (s *Snapshot) Read(tasks ReadTasks, opts ReadOptions, a *arena.Arena) (ReadResult, error) {
	if err := s.usable(); err != nil {
		return ReadResult{}, err
	}
	if a == nil {
		return ReadResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}
	metrics.ReadsTotal.WithLabelValues("snapshot").Add(float64(tasks.Count))

	db := s.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ReadResult{}, ErrClosed
	}

	opts.DontWatch = true // snapshots never watch
	return db.readLocked(tasks, opts, a, func(c *collection, key Key) ([]byte, bool, error) {
		return db.stateAt(c, key, s.seq)
	})
}

// snapAscend visits entries visible at the snapshot with keys in
// [min, max) in ascending order. It merges the substrate's current keys
// (filtered by visibility) with keys whose visible state survives only in
// retained versions.
func (s *Snapshot) snapAscend(c *collection, min, max uint64, fn func(key Key, value []byte) bool) error {
	db := s.db

	// Keys whose current version postdates the snapshot resolve through
	// history; collect the ones with a visible present version.
	type revived struct {
		key   Key
		value []byte
	}
	var extras []revived
	for key, meta := range c.index {
		if key < min || key >= max || meta.seq <= s.seq {
			continue
		}
		for i := len(meta.history) - 1; i >= 0; i-- {
			if v := meta.history[i]; v.seq <= s.seq {
				if !v.tombstone {
					extras = append(extras, revived{key: key, value: v.value})
				}
				break
			}
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].key < extras[j].key })

	ei := 0
	stopped := false
	err := db.sub.Ascend(c.store, min, max, func(key uint64, value []byte) bool {
		for ei < len(extras) && extras[ei].key < key {
			if !fn(extras[ei].key, extras[ei].value) {
				stopped = true
				return false
			}
			ei++
		}
		if meta := c.index[key]; meta != nil && meta.seq > s.seq {
			// Either invisible or already emitted through extras.
			if ei < len(extras) && extras[ei].key == key {
				if !fn(extras[ei].key, extras[ei].value) {
					stopped = true
					return false
				}
				ei++
			}
			return true
		}
		if !fn(key, value) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil || stopped {
		return err
	}
	for ; ei < len(extras); ei++ {
		if !fn(extras[ei].key, extras[ei].value) {
			return nil
		}
	}
	return nil
}

// Scan returns up to Limit ascending keys per task, as of the snapshot.
func (s *Snapshot) Scan(tasks ScanTasks, a *arena.Arena) (ScanResult, error) {
	if err := s.usable(); err != nil {
		return ScanResult{}, err
	}
	if a == nil {
		return ScanResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}
	metrics.ScansTotal.Add(float64(tasks.Count))

	db := s.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ScanResult{}, ErrClosed
	}

	return db.scanLocked(tasks, a, func(c *collection, min, max uint64, limit uint32, emit func(Key)) error {
		remaining := limit
		return s.snapAscend(c, min, max, func(key Key, _ []byte) bool {
			if remaining == 0 {
				return false
			}
			emit(key)
			remaining--
			return remaining > 0
		})
	})
}

// Sample returns a uniform sample of up to Limit keys per collection, as
// of the snapshot, in ascending order.
func (s *Snapshot) Sample(tasks SampleTasks, a *arena.Arena) (ScanResult, error) {
	if err := s.usable(); err != nil {
		return ScanResult{}, err
	}
	if a == nil {
		return ScanResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}

	db := s.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ScanResult{}, ErrClosed
	}

	offsets := a.Lengths(tasks.Count + 1)
	counts := a.Lengths(tasks.Count)
	var keys []uint64

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return ScanResult{}, err
		}
		offsets[i] = uint32(len(keys))
		limit := int(tasks.Limits.At(i))
		if limit == 0 {
			continue
		}

		reservoir := make([]uint64, 0, limit)
		seen := 0
		err = s.snapAscend(c, 0, KeyUnknown, func(key Key, _ []byte) bool {
			if len(reservoir) < limit {
				reservoir = append(reservoir, key)
			} else if j := rand.Intn(seen + 1); j < limit {
				reservoir[j] = key
			}
			seen++
			return true
		})
		if err != nil {
			return ScanResult{}, err
		}
		sort.Slice(reservoir, func(x, y int) bool { return reservoir[x] < reservoir[y] })
		keys = append(keys, reservoir...)
		counts[i] = uint32(len(reservoir))
	}
	offsets[tasks.Count] = uint32(len(keys))

	out := a.Keys(len(keys))
	copy(out, keys)
	return ScanResult{Offsets: offsets, Counts: counts, Keys: out}, nil
}

// Measure estimates ranges as of the snapshot; with no staging every min
// and max pair coincides.
func (s *Snapshot) Measure(tasks MeasureTasks, a *arena.Arena) ([]Estimate, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	db := s.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}

	out := make([]Estimate, tasks.Count)
	const perEntryOverhead = 12

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return nil, err
		}
		var count, bytes uint64
		err = s.snapAscend(c, tasks.MinKeys.At(i), tasks.MaxKeys.At(i), func(_ Key, value []byte) bool {
			count++
			bytes += uint64(len(value))
			return true
		})
		if err != nil {
			return nil, err
		}
		est := &out[i]
		est.CardinalityMin = count
		est.CardinalityMax = count
		est.BytesValuesMin = bytes
		est.BytesValuesMax = bytes
		est.BytesOnDiskMin = count*perEntryOverhead + bytes
		est.BytesOnDiskMax = count*perEntryOverhead + bytes
	}
	return out, nil
}

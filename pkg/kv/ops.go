package kv

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/metrics"
	"github.com/cuemby/hutch/pkg/substrate"
)

// Read fetches a batch of entries from the HEAD state.
func (db *DB) Read(tasks ReadTasks, opts ReadOptions, a *arena.Arena) (ReadResult, error) {
	if a == nil {
		return ReadResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}
	t := metrics.NewTimer()
	defer t.ObserveDuration(metrics.ReadDuration)
	metrics.ReadsTotal.WithLabelValues("head").Add(float64(tasks.Count))

	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ReadResult{}, ErrClosed
	}

	return db.readLocked(tasks, opts, a, func(c *collection, key Key) ([]byte, bool, error) {
		v, _, present, err := db.headState(c, key)
		return v, present, err
	})
}

// readLocked drives the shared output discipline over a state resolver.
func (db *DB) readLocked(
	tasks ReadTasks,
	opts ReadOptions,
	a *arena.Arena,
	state func(c *collection, key Key) ([]byte, bool, error),
) (ReadResult, error) {

	presences := a.Bitmap(tasks.Count)
	lengths := a.Lengths(tasks.Count)
	offsets := a.Lengths(tasks.Count + 1)
	tape := a.Tape()
	start := len(tape.Contents())
	total := uint32(0)

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return ReadResult{}, err
		}
		v, present, err := state(c, tasks.Keys.At(i))
		if err != nil {
			return ReadResult{}, err
		}
		offsets[i] = total
		if !present {
			lengths[i] = LengthMissing
			continue
		}
		presences.Set(i)
		lengths[i] = uint32(len(v))
		total += uint32(len(v))
		if !opts.SkipValues {
			tape.Push(v)
		}
	}
	offsets[tasks.Count] = total

	out := ReadResult{}
	if !opts.SkipPresences {
		out.Presences = presences
	}
	if !opts.SkipLengths {
		out.Lengths = lengths
	}
	if !opts.SkipOffsets {
		out.Offsets = offsets
	}
	if !opts.SkipValues {
		out.Values = tape.Contents()[start:]
	}
	return out, nil
}

// Write applies a batch of upserts and deletes directly to HEAD. Each
// task is stamped with a fresh sequence number in input order.
func (db *DB) Write(tasks WriteTasks, opts WriteOptions) error {
	t := metrics.NewTimer()
	defer t.ObserveDuration(metrics.WriteDuration)
	metrics.WritesTotal.WithLabelValues("head").Add(float64(tasks.Count))

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	muts := make([]substrate.Mutation, 0, tasks.Count)
	type stamped struct {
		c    *collection
		key  Key
		seq  uint64
		tomb bool
	}
	stamps := make([]stamped, 0, tasks.Count)

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return err
		}
		key := tasks.Keys.At(i)
		val := tasks.Values.At(i)
		seq := db.youngest.Add(1)
		db.captureVersion(c, key, seq)
		muts = append(muts, substrate.Mutation{Store: c.store, Key: key, Value: val})
		stamps = append(stamps, stamped{c: c, key: key, seq: seq, tomb: val == nil})
	}

	if err := db.sub.Apply(muts, opts.Flush || db.opts.SyncWrites); err != nil {
		return fmt.Errorf("failed to apply writes: %w", err)
	}
	for _, s := range stamps {
		db.stamp(s.c, s.key, s.seq, s.tomb)
	}
	metrics.YoungestSequence.Set(float64(db.youngest.Load()))
	return nil
}

// Scan returns up to Limit ascending keys per task from [MinKey, MaxKey).
func (db *DB) Scan(tasks ScanTasks, a *arena.Arena) (ScanResult, error) {
	if a == nil {
		return ScanResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}
	metrics.ScansTotal.Add(float64(tasks.Count))

	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ScanResult{}, ErrClosed
	}

	return db.scanLocked(tasks, a, func(c *collection, min, max uint64, limit uint32, emit func(Key)) error {
		remaining := limit
		return db.sub.Ascend(c.store, min, max, func(key uint64, _ []byte) bool {
			if remaining == 0 {
				return false
			}
			emit(key)
			remaining--
			return remaining > 0
		})
	})
}

// scanLocked drives the shared scan output discipline over a key source.
func (db *DB) scanLocked(
	tasks ScanTasks,
	a *arena.Arena,
	scan func(c *collection, min, max uint64, limit uint32, emit func(Key)) error,
) (ScanResult, error) {

	offsets := a.Lengths(tasks.Count + 1)
	counts := a.Lengths(tasks.Count)
	var keys []uint64

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return ScanResult{}, err
		}
		offsets[i] = uint32(len(keys))
		limit := tasks.Limits.At(i)
		if limit == 0 {
			continue
		}
		before := len(keys)
		err = scan(c, tasks.MinKeys.At(i), tasks.MaxKeys.At(i), limit, func(k Key) {
			keys = append(keys, k)
		})
		if err != nil {
			return ScanResult{}, err
		}
		counts[i] = uint32(len(keys) - before)
	}
	offsets[tasks.Count] = uint32(len(keys))

	out := a.Keys(len(keys))
	copy(out, keys)
	return ScanResult{Offsets: offsets, Counts: counts, Keys: out}, nil
}

// Sample returns a uniform sample of up to Limit keys per collection,
// in ascending order.
func (db *DB) Sample(tasks SampleTasks, a *arena.Arena) (ScanResult, error) {
	if a == nil {
		return ScanResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}

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

		// Reservoir sampling over the ascending key stream.
		reservoir := make([]uint64, 0, limit)
		seen := 0
		err = db.sub.Ascend(c.store, 0, KeyUnknown, func(key uint64, _ []byte) bool {
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

// Measure estimates cardinality and byte footprint over key ranges.
func (db *DB) Measure(tasks MeasureTasks, a *arena.Arena) ([]Estimate, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	return db.measureLocked(tasks, nil)
}

// measureLocked computes estimates; txn may be nil. The min side covers
// committed state, the max side adds transaction staging.
func (db *DB) measureLocked(tasks MeasureTasks, txn *Txn) ([]Estimate, error) {
	out := make([]Estimate, tasks.Count)
	const perEntryOverhead = 12 // key + length record in the .kv layout

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return nil, err
		}
		min, max := tasks.MinKeys.At(i), tasks.MaxKeys.At(i)

		var count, bytes uint64
		err = db.sub.Ascend(c.store, min, max, func(_ uint64, value []byte) bool {
			count++
			bytes += uint64(len(value))
			return true
		})
		if err != nil {
			return nil, err
		}

		var stagedCount, stagedBytes, removed uint64
		if txn != nil {
			txn.ascendStaged(c.id, min, max, func(_ Key, value []byte) bool {
				stagedCount++
				stagedBytes += uint64(len(value))
				return true
			})
			removed = uint64(len(txn.removed))
		}

		est := &out[i]
		est.CardinalityMin = count
		est.CardinalityMax = count + stagedCount
		est.BytesValuesMin = bytes
		est.BytesValuesMax = bytes + stagedBytes
		est.BytesOnDiskMin = est.CardinalityMin*perEntryOverhead + est.BytesValuesMin
		est.BytesOnDiskMax = (est.CardinalityMax+removed)*perEntryOverhead + est.BytesValuesMax
	}
	return out, nil
}

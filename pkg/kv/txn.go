package kv

import (
	"fmt"

	"github.com/google/btree"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/events"
	"github.com/cuemby/hutch/pkg/metrics"
	"github.com/cuemby/hutch/pkg/substrate"
)

// TxnState tracks the transaction lifecycle.
type TxnState int

const (
	// TxnActive accepts reads, writes, and commit.
	TxnActive TxnState = iota
	// TxnCommitted finished successfully; Restart makes it active again.
	TxnCommitted
	// TxnAborted hit a conflict or error; staging is retained for
	// diagnostics until Restart or Free.
	TxnAborted
	// TxnFreed is terminal.
	TxnFreed
)

// TxnOptions configures transaction begin.
type TxnOptions struct {
	// Sequence overrides the assigned sequence number, for deterministic
	// replay. Zero assigns youngest+1.
	Sequence uint64
}

// CommitOptions configures transaction commit.
type CommitOptions struct {
	// Flush makes the commit return only after the state is durable.
	Flush bool
}

// stagedEntry is one upserted value in a transaction's private write set,
// ordered by (collection, key) so scans can merge it with HEAD.
type stagedEntry struct {
	ck    colKey
	value []byte
}

func stagedLess(a, b stagedEntry) bool {
	if a.ck.col != b.ck.col {
		return a.ck.col < b.ck.col
	}
	return a.ck.key < b.ck.key
}

// Txn is an optimistic transaction: reads record observed sequences,
// writes stage privately, and Commit installs everything atomically after
// conflict checks. A Txn is not safe for concurrent use.
type Txn struct {
	db    *DB
	state TxnState
	seq   uint64

	// watched maps read entries to their observed sequence (zero for
	// entries never written; a tombstone's own sequence for deleted ones).
	// removed and staged are disjoint by construction.
	watched map[colKey]uint64
	staged  *btree.BTreeG[stagedEntry]
	removed map[colKey]struct{}
}

// Begin starts a transaction pinned at the next sequence number (or an
// explicitly supplied one).
func (db *DB) Begin(opts TxnOptions) (*Txn, error) {
	db.mu.RLock()
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	t := &Txn{
		db:      db,
		state:   TxnActive,
		watched: map[colKey]uint64{},
		staged:  btree.NewG(16, stagedLess),
		removed: map[colKey]struct{}{},
	}
	t.assignSequence(opts)
	return t, nil
}

func (t *Txn) assignSequence(opts TxnOptions) {
	if opts.Sequence != 0 {
		t.seq = opts.Sequence
		return
	}
	t.seq = t.db.youngest.Add(1)
}

// Restart re-begins a committed or aborted transaction in place,
// clearing all staging.
func (t *Txn) Restart(opts TxnOptions) error {
	switch t.state {
	case TxnFreed:
		return ErrUninitialized
	case TxnActive:
		return fmt.Errorf("%w: transaction still active", ErrArgs)
	}
	t.watched = map[colKey]uint64{}
	t.staged.Clear(false)
	t.removed = map[colKey]struct{}{}
	t.assignSequence(opts)
	t.state = TxnActive
	return nil
}

// Free aborts and releases the transaction. Safe in any state.
func (t *Txn) Free() {
	t.state = TxnFreed
	t.watched = nil
	t.staged = nil
	t.removed = nil
}

// Sequence returns the transaction's pinned sequence number.
func (t *Txn) Sequence() uint64 {
	return t.seq
}

// State returns the lifecycle state.
func (t *Txn) State() TxnState {
	return t.state
}

func (t *Txn) active() error {
	switch t.state {
	case TxnActive:
		return nil
	case TxnFreed:
		return ErrUninitialized
	default:
		return fmt.Errorf("%w: transaction not active", ErrArgs)
	}
}

// Read resolves a batch through the transaction: tombstones hide entries,
// staged writes win over HEAD, and HEAD reads are recorded in the watch
// set unless DontWatch is given.
func (t *Txn) Read(tasks ReadTasks, opts ReadOptions, a *arena.Arena) (ReadResult, error) {
	if err := t.active(); err != nil {
		return ReadResult{}, err
	}
	if a == nil {
		return ReadResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}
	metrics.ReadsTotal.WithLabelValues("txn").Add(float64(tasks.Count))

	db := t.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ReadResult{}, ErrClosed
	}
	youngest := db.youngest.Load()

	return db.readLocked(tasks, opts, a, func(c *collection, key Key) ([]byte, bool, error) {
		ck := colKey{col: c.id, key: key}
		if _, rm := t.removed[ck]; rm {
			return nil, false, nil
		}
		if e, ok := t.staged.Get(stagedEntry{ck: ck}); ok {
			return e.value, true, nil
		}
		v, seq, present, err := db.headState(c, key)
		if err != nil {
			return nil, false, err
		}
		if entryOverwritten(seq, t.seq, youngest) {
			return nil, false, fmt.Errorf("%w: entry overwritten since transaction began", ErrConflict)
		}
		if !opts.DontWatch {
			t.watched[ck] = seq
		}
		return v, present, nil
	})
}

// Write stages a batch of upserts and tombstones in the transaction.
func (t *Txn) Write(tasks WriteTasks, _ WriteOptions) error {
	if err := t.active(); err != nil {
		return err
	}
	metrics.WritesTotal.WithLabelValues("txn").Add(float64(tasks.Count))

	db := t.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}

	for i := 0; i < tasks.Count; i++ {
		c, err := db.col(tasks.Collections.At(i))
		if err != nil {
			return err
		}
		ck := colKey{col: c.id, key: tasks.Keys.At(i)}
		val := tasks.Values.At(i)
		if val == nil {
			// Write-after-tombstone collapses: the key lives in exactly
			// one of the two sets.
			t.staged.Delete(stagedEntry{ck: ck})
			t.removed[ck] = struct{}{}
			continue
		}
		cp := make([]byte, len(val))
		copy(cp, val)
		delete(t.removed, ck)
		t.staged.ReplaceOrInsert(stagedEntry{ck: ck, value: cp})
	}
	return nil
}

// ascendStaged visits staged upserts of one collection with keys in
// [min, max) in ascending key order.
func (t *Txn) ascendStaged(col CollectionID, min, max Key, fn func(key Key, value []byte) bool) {
	t.staged.AscendRange(
		stagedEntry{ck: colKey{col: col, key: min}},
		stagedEntry{ck: colKey{col: col, key: max}},
		func(e stagedEntry) bool {
			return fn(e.ck.key, e.value)
		},
	)
}

// Scan merges HEAD keys with the transaction's staging: staged upserts
// appear, tombstoned keys do not, and a key staged over a HEAD entry
// appears once.
func (t *Txn) Scan(tasks ScanTasks, a *arena.Arena) (ScanResult, error) {
	if err := t.active(); err != nil {
		return ScanResult{}, err
	}
	if a == nil {
		return ScanResult{}, fmt.Errorf("%w: nil arena", ErrUninitialized)
	}
	metrics.ScansTotal.Add(float64(tasks.Count))

	db := t.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ScanResult{}, ErrClosed
	}

	return db.scanLocked(tasks, a, func(c *collection, min, max uint64, limit uint32, emit func(Key)) error {
		head := make([]uint64, 0, limit)
		err := db.sub.Ascend(c.store, min, max, func(key uint64, _ []byte) bool {
			if _, rm := t.removed[colKey{col: c.id, key: key}]; rm {
				return true
			}
			head = append(head, key)
			return uint32(len(head)) < limit
		})
		if err != nil {
			return err
		}

		staged := make([]uint64, 0, limit)
		t.ascendStaged(c.id, min, max, func(key Key, _ []byte) bool {
			staged = append(staged, key)
			return uint32(len(staged)) < limit
		})

		// Ordered union; on ties the staged key stands in for both.
		emitted := uint32(0)
		hi, si := 0, 0
		for emitted < limit && (hi < len(head) || si < len(staged)) {
			switch {
			case hi == len(head) || (si < len(staged) && staged[si] <= head[hi]):
				if hi < len(head) && staged[si] == head[hi] {
					hi++
				}
				emit(staged[si])
				si++
			default:
				emit(head[hi])
				hi++
			}
			emitted++
		}
		return nil
	})
}

// Measure estimates ranges as seen by the transaction: the max side
// includes staged upserts and counts tombstones against disk footprint.
func (t *Txn) Measure(tasks MeasureTasks, a *arena.Arena) ([]Estimate, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	db := t.db
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	return db.measureLocked(tasks, t)
}

// Commit runs the optimistic protocol under the exclusive HEAD lock:
// watch checks, self-commit and overwrite guards, then atomic install.
// On success the transaction resets and reports its sequence number; on
// conflict it aborts with staging retained for inspection.
func (t *Txn) Commit(opts CommitOptions) (uint64, error) {
	if err := t.active(); err != nil {
		return 0, err
	}
	timer := metrics.NewTimer()

	db := t.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrClosed
	}
	youngest := db.youngest.Load()

	// 1. Watch check: every observed entry must be unchanged. A plain
	// sequence mismatch aborts, regardless of who stamped it: commits
	// are not ordered by their sequence numbers, so the overwrite test
	// alone would miss an older-sequence transaction committing later.
	for ck, observed := range t.watched {
		c, err := db.col(ck.col)
		if err != nil {
			return 0, t.abort(err)
		}
		if cur := metaSeq(c, ck.key); cur != observed {
			return 0, t.abort(fmt.Errorf("%w: watched entry %d/%d changed", ErrConflict, ck.col, ck.key))
		}
	}

	// 2+3. Self-commit and overwrite guards over the mutation set.
	guard := func(ck colKey) error {
		c, err := db.col(ck.col)
		if err != nil {
			return err
		}
		cur := metaSeq(c, ck.key)
		if cur == 0 {
			return nil
		}
		if cur == t.seq {
			return fmt.Errorf("%w: entry %d/%d", ErrDoubleCommit, ck.col, ck.key)
		}
		if entryOverwritten(cur, t.seq, youngest) {
			return fmt.Errorf("%w: entry %d/%d collides with newer write", ErrConflict, ck.col, ck.key)
		}
		return nil
	}
	var guardErr error
	t.staged.Ascend(func(e stagedEntry) bool {
		guardErr = guard(e.ck)
		return guardErr == nil
	})
	if guardErr != nil {
		return 0, t.abort(guardErr)
	}
	for ck := range t.removed {
		if err := guard(ck); err != nil {
			return 0, t.abort(err)
		}
	}

	// 4. Install: preserve snapshot-visible versions, then apply the
	// batch to the substrate before stamping metadata, so a substrate
	// failure leaves HEAD untouched.
	type stamped struct {
		c    *collection
		key  Key
		tomb bool
	}
	muts := make([]substrate.Mutation, 0, t.staged.Len()+len(t.removed))
	stamps := make([]stamped, 0, cap(muts))

	t.staged.Ascend(func(e stagedEntry) bool {
		c := db.cols[e.ck.col]
		db.captureVersion(c, e.ck.key, t.seq)
		muts = append(muts, substrate.Mutation{Store: c.store, Key: e.ck.key, Value: e.value})
		stamps = append(stamps, stamped{c: c, key: e.ck.key})
		return true
	})
	for ck := range t.removed {
		c := db.cols[ck.col]
		db.captureVersion(c, ck.key, t.seq)
		muts = append(muts, substrate.Mutation{Store: c.store, Key: ck.key, Value: nil})
		stamps = append(stamps, stamped{c: c, key: ck.key, tomb: true})
	}

	if err := db.sub.Apply(muts, opts.Flush || db.opts.SyncWrites); err != nil {
		return 0, t.abort(fmt.Errorf("failed to install transaction: %w", err))
	}
	for _, s := range stamps {
		db.stamp(s.c, s.key, t.seq, s.tomb)
	}
	db.advanceYoungest(t.seq)

	// 5+6. Reset for reuse.
	seq := t.seq
	t.watched = map[colKey]uint64{}
	t.staged.Clear(false)
	t.removed = map[colKey]struct{}{}
	t.state = TxnCommitted

	timer.ObserveDuration(metrics.CommitDuration)
	metrics.CommitsTotal.Inc()
	db.broker.Publish(&events.Event{Type: events.EventTxnCommitted, Sequence: seq})
	return seq, nil
}

// abort moves the transaction to the aborted state, keeping its staging
// for diagnostics, and passes the cause through.
func (t *Txn) abort(cause error) error {
	t.state = TxnAborted
	if Kind(cause) == "conflict" {
		metrics.ConflictsTotal.Inc()
		t.db.broker.Publish(&events.Event{Type: events.EventTxnConflicted, Sequence: t.seq})
	} else if Kind(cause) == "double_commit" {
		metrics.DoubleCommitsTotal.Inc()
	}
	return cause
}

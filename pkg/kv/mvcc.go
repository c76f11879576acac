package kv

// entryMeta is the MVCC state of one entry. The substrate holds the
// current value; this records its sequence, whether the current state is
// a tombstone, and any prior versions still visible to live snapshots.
// A key missing from the index altogether has sequence zero.
type entryMeta struct {
	seq       uint64
	tombstone bool
	history   []version // ascending by seq
}

// version is a retained prior state of an entry. A nil value with
// tombstone set means the entry was absent at that point.
type version struct {
	seq       uint64
	tombstone bool
	value     []byte
}

// entryOverwritten solves the problem of modulo arithmetic over the
// sequence counter. It stays correct when youngest has wrapped past the
// transaction's sequence, so youngest may compare smaller than txnSeq.
func entryOverwritten(entrySeq, txnSeq, youngest uint64) bool {
	if txnSeq <= youngest {
		return entrySeq >= txnSeq && entrySeq <= youngest
	}
	return entrySeq >= txnSeq || entrySeq <= youngest
}

// metaSeq reports the current sequence of an entry, zero when unseen.
func metaSeq(c *collection, key Key) uint64 {
	if m, ok := c.index[key]; ok {
		return m.seq
	}
	return 0
}

// headState resolves the current committed state of an entry. Requires at
// least a shared lock. The returned value is owned by the caller.
func (db *DB) headState(c *collection, key Key) (value []byte, seq uint64, present bool, err error) {
	meta := c.index[key]
	if meta != nil && meta.tombstone {
		return nil, meta.seq, false, nil
	}
	v, ok, err := db.sub.Get(c.store, key)
	if err != nil {
		return nil, 0, false, err
	}
	if meta != nil {
		seq = meta.seq
	}
	if !ok {
		return nil, seq, false, nil
	}
	return v, seq, true, nil
}

// captureVersion preserves the current state of an entry before it is
// overwritten with newSeq, if any live snapshot can still see it. Must be
// called under the exclusive lock, before the substrate mutation lands.
func (db *DB) captureVersion(c *collection, key Key, newSeq uint64) {
	meta := c.index[key]
	if len(db.snaps) == 0 {
		if meta != nil {
			meta.history = nil
		}
		return
	}

	maxSnap := uint64(0)
	minSnap := ^uint64(0)
	for s := range db.snaps {
		if s.seq > maxSnap {
			maxSnap = s.seq
		}
		if s.seq < minSnap {
			minSnap = s.seq
		}
	}

	curSeq := uint64(0)
	curTomb := false
	if meta != nil {
		curSeq, curTomb = meta.seq, meta.tombstone
	}

	// The current version needs preserving only if some snapshot sees it.
	if maxSnap >= curSeq && curSeq != newSeq {
		var val []byte
		tomb := curTomb
		if !tomb {
			v, ok, err := db.sub.Get(c.store, key)
			if err != nil || !ok {
				tomb = true
			} else {
				val = v
			}
		}
		if meta == nil {
			meta = &entryMeta{}
			c.index[key] = meta
		}
		meta.history = append(meta.history, version{seq: curSeq, tombstone: tomb, value: val})
	}

	if meta != nil {
		meta.history = pruneHistory(meta.history, newSeq, minSnap)
	}
}

// pruneHistory drops versions no live snapshot can see: a version is dead
// once its successor's sequence is not newer than the oldest live
// snapshot. nextSeq is the sequence about to become current.
func pruneHistory(hist []version, nextSeq, minSnap uint64) []version {
	if len(hist) == 0 {
		return hist
	}
	keep := hist[:0]
	for i, v := range hist {
		succ := nextSeq
		if i+1 < len(hist) {
			succ = hist[i+1].seq
		}
		if succ > minSnap && v.seq <= minSnap || v.seq > minSnap {
			// Visible to the oldest snapshot, or newer than it (some
			// younger snapshot may still need it).
			keep = append(keep, v)
		}
	}
	return keep
}

// stamp records the new current state of an entry after its substrate
// mutation has been applied. Must be called under the exclusive lock.
func (db *DB) stamp(c *collection, key Key, seq uint64, tombstone bool) {
	meta := c.index[key]
	if meta == nil {
		meta = &entryMeta{}
		c.index[key] = meta
	}
	meta.seq = seq
	meta.tombstone = tombstone
}

// stateAt resolves the state of an entry as seen by a snapshot pinned at
// snapSeq. Requires at least a shared lock.
func (db *DB) stateAt(c *collection, key Key, snapSeq uint64) (value []byte, present bool, err error) {
	meta := c.index[key]
	if meta == nil || meta.seq <= snapSeq {
		// The current version was committed before the snapshot.
		if meta != nil && meta.tombstone {
			return nil, false, nil
		}
		v, ok, err := db.sub.Get(c.store, key)
		if err != nil || !ok {
			return nil, false, err
		}
		return v, true, nil
	}

	// Walk retained versions, newest visible first.
	for i := len(meta.history) - 1; i >= 0; i-- {
		if v := meta.history[i]; v.seq <= snapSeq {
			if v.tombstone {
				return nil, false, nil
			}
			out := make([]byte, len(v.value))
			copy(out, v.value)
			return out, true, nil
		}
	}
	return nil, false, nil
}

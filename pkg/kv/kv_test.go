package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/stride"
)

func openTestDB(t *testing.T, opts Options) *DB {
	t.Helper()
	db, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeOne(t *testing.T, store Store, col CollectionID, key Key, value []byte) {
	t.Helper()
	err := store.Write(WriteTasks{
		Collections: stride.Repeat(col),
		Keys:        stride.Over([]Key{key}),
		Values:      stride.OverBytes([][]byte{value}),
		Count:       1,
	}, WriteOptions{})
	require.NoError(t, err)
}

func readOne(t *testing.T, src Source, col CollectionID, key Key) (present bool, value []byte, length uint32) {
	t.Helper()
	a := arena.New()
	res, err := src.Read(ReadTasks{
		Collections: stride.Repeat(col),
		Keys:        stride.Over([]Key{key}),
		Count:       1,
	}, ReadOptions{}, a)
	require.NoError(t, err)
	return res.Presences.Get(0), res.Values, res.Lengths[0]
}

func TestWriteReadRoundTrip(t *testing.T) {
	db := openTestDB(t, Options{})

	// Scenario: write (main, 7, "abc"), read it back.
	writeOne(t, db, Main, 7, []byte("abc"))

	present, value, length := readOne(t, db, Main, 7)
	assert.True(t, present)
	assert.Equal(t, uint32(3), length)
	assert.Equal(t, []byte("abc"), value)
}

func TestEmptyValueDistinctFromDelete(t *testing.T) {
	db := openTestDB(t, Options{})

	writeOne(t, db, Main, 1, []byte{})
	present, _, length := readOne(t, db, Main, 1)
	assert.True(t, present, "empty value must be present")
	assert.Equal(t, uint32(0), length)

	writeOne(t, db, Main, 1, nil)
	present, _, length = readOne(t, db, Main, 1)
	assert.False(t, present, "deleted value must be absent")
	assert.Equal(t, LengthMissing, length)
}

func TestReadOutputDiscipline(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 1, []byte("xy"))
	writeOne(t, db, Main, 3, []byte("zzzz"))

	a := arena.New()
	res, err := db.Read(ReadTasks{
		Collections: stride.Repeat(Main),
		Keys:        stride.Over([]Key{1, 2, 3}),
		Count:       3,
	}, ReadOptions{}, a)
	require.NoError(t, err)

	assert.True(t, res.Presences.Get(0))
	assert.False(t, res.Presences.Get(1))
	assert.True(t, res.Presences.Get(2))

	assert.Equal(t, []uint32{0, 2, 2, 6}, []uint32(res.Offsets))
	assert.Equal(t, uint32(2), res.Lengths[0])
	assert.Equal(t, LengthMissing, res.Lengths[1])
	assert.Equal(t, uint32(4), res.Lengths[2])
	assert.Equal(t, []byte("xyzzzz"), res.Values)

	// Absent entries contribute zero bytes; offsets deltas match lengths.
	for i := 0; i < 3; i++ {
		want := res.Lengths[i]
		if want == LengthMissing {
			want = 0
		}
		assert.Equal(t, want, res.Offsets[i+1]-res.Offsets[i], "task %d", i)
	}
}

func TestTxnConflictOnConcurrentWrite(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 7, []byte("old"))

	// Scenario: T1 reads, T2 overwrites, T1 commits -> CONFLICT.
	t1, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	present, _, _ := readOne(t, t1, Main, 7)
	require.True(t, present)

	t2, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, t2, Main, 7, []byte("xyz"))
	_, err = t2.Commit(CommitOptions{})
	require.NoError(t, err)

	_, err = t1.Commit(CommitOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, TxnAborted, t1.State())
	assert.Equal(t, "conflict", Kind(err))
}

func TestTxnCommitAndTombstone(t *testing.T) {
	db := openTestDB(t, Options{})

	// Scenario: T1 writes, commits; T2 deletes, commits; key reads absent.
	t1, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, t1, Main, 7, []byte("abc"))

	// Staged write is invisible at HEAD until commit.
	present, _, _ := readOne(t, db, Main, 7)
	assert.False(t, present)

	seq1, err := t1.Commit(CommitOptions{})
	require.NoError(t, err)
	assert.NotZero(t, seq1)

	present, value, _ := readOne(t, db, Main, 7)
	assert.True(t, present)
	assert.Equal(t, []byte("abc"), value)

	t2, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, t2, Main, 7, nil)

	// The tombstone hides the entry inside the transaction already.
	present, _, _ = readOne(t, t2, Main, 7)
	assert.False(t, present)

	seq2, err := t2.Commit(CommitOptions{})
	require.NoError(t, err)
	assert.Greater(t, seq2, seq1)

	present, _, length := readOne(t, db, Main, 7)
	assert.False(t, present)
	assert.Equal(t, LengthMissing, length)
}

func TestTxnReadYourOwnWrites(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 1, []byte("head"))

	txn, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, txn, Main, 1, []byte("staged"))

	present, value, _ := readOne(t, txn, Main, 1)
	assert.True(t, present)
	assert.Equal(t, []byte("staged"), value)
}

func TestDontWatchSkipsConflict(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 7, []byte("old"))

	t1, err := db.Begin(TxnOptions{})
	require.NoError(t, err)

	a := arena.New()
	_, err = t1.Read(ReadTasks{
		Collections: stride.Repeat(Main),
		Keys:        stride.Over([]Key{7}),
		Count:       1,
	}, ReadOptions{DontWatch: true}, a)
	require.NoError(t, err)

	writeOne(t, db, Main, 7, []byte("new"))

	writeOne(t, t1, Main, 99, []byte("unrelated"))
	_, err = t1.Commit(CommitOptions{})
	assert.NoError(t, err, "unwatched read must not conflict")
}

func TestDoubleCommitGuard(t *testing.T) {
	db := openTestDB(t, Options{})

	txn, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	seq := txn.Sequence()
	writeOne(t, txn, Main, 5, []byte("v1"))
	_, err = txn.Commit(CommitOptions{})
	require.NoError(t, err)

	// Re-begin with the same explicit sequence and touch the same entry.
	require.NoError(t, txn.Restart(TxnOptions{Sequence: seq}))
	writeOne(t, txn, Main, 5, []byte("v2"))
	_, err = txn.Commit(CommitOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDoubleCommit)
}

func TestTxnStateMachine(t *testing.T) {
	db := openTestDB(t, Options{})

	txn, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	assert.Equal(t, TxnActive, txn.State())

	_, err = txn.Commit(CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, TxnCommitted, txn.State())

	// Reads are rejected outside ACTIVE.
	a := arena.New()
	_, err = txn.Read(ReadTasks{Count: 0}, ReadOptions{}, a)
	assert.ErrorIs(t, err, ErrArgs)

	require.NoError(t, txn.Restart(TxnOptions{}))
	assert.Equal(t, TxnActive, txn.State())

	txn.Free()
	assert.Equal(t, TxnFreed, txn.State())
	_, err = txn.Commit(CommitOptions{})
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestScanBasics(t *testing.T) {
	db := openTestDB(t, Options{})
	for _, k := range []Key{2, 4, 6, 8, 10} {
		writeOne(t, db, Main, k, []byte("v"))
	}

	a := arena.New()
	res, err := db.Scan(ScanTasks{
		Collections: stride.Repeat(Main),
		MinKeys:     stride.Over([]Key{0, 4, 0}),
		MaxKeys:     stride.Over([]Key{KeyUnknown, 8, KeyUnknown}),
		Limits:      stride.Over([]uint32{10, 10, 0}),
		Count:       3,
	}, a)
	require.NoError(t, err)

	assert.Equal(t, uint32(5), res.Counts[0])
	assert.Equal(t, []uint64{2, 4, 6, 8, 10}, res.Keys[res.Offsets[0]:res.Offsets[1]])

	// Half-open interval excludes the max key.
	assert.Equal(t, uint32(2), res.Counts[1])
	assert.Equal(t, []uint64{4, 6}, res.Keys[res.Offsets[1]:res.Offsets[2]])

	// Limit 0 yields zero keys and a stable trailing offset.
	assert.Equal(t, uint32(0), res.Counts[2])
	assert.Equal(t, res.Offsets[2], res.Offsets[3])
}

func TestScanMergesTxnStaging(t *testing.T) {
	db := openTestDB(t, Options{})
	for _, k := range []Key{1, 3, 5} {
		writeOne(t, db, Main, k, []byte("head"))
	}

	txn, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, txn, Main, 2, []byte("staged")) // new key
	writeOne(t, txn, Main, 3, []byte("staged")) // overwrites head key
	writeOne(t, txn, Main, 5, nil)              // tombstone

	a := arena.New()
	res, err := txn.Scan(ScanTasks{
		Collections: stride.Repeat(Main),
		MinKeys:     stride.Repeat(Key(0)),
		MaxKeys:     stride.Repeat(KeyUnknown),
		Limits:      stride.Repeat(uint32(16)),
		Count:       1,
	}, a)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3}, res.Keys[:res.Counts[0]])
}

func TestSnapshotIsolation(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 1, []byte("v1"))
	writeOne(t, db, Main, 2, []byte("gone"))

	snap, err := db.Snapshot()
	require.NoError(t, err)

	// Overwrite, delete, and insert after the snapshot.
	writeOne(t, db, Main, 1, []byte("v2"))
	writeOne(t, db, Main, 2, nil)
	writeOne(t, db, Main, 3, []byte("new"))

	present, value, _ := readOne(t, snap, Main, 1)
	assert.True(t, present)
	assert.Equal(t, []byte("v1"), value, "snapshot must see the old version")

	present, value, _ = readOne(t, snap, Main, 2)
	assert.True(t, present)
	assert.Equal(t, []byte("gone"), value, "snapshot must see deleted entries")

	present, _, _ = readOne(t, snap, Main, 3)
	assert.False(t, present, "snapshot must not see later inserts")

	// HEAD sees the new world.
	present, value, _ = readOne(t, db, Main, 1)
	assert.True(t, present)
	assert.Equal(t, []byte("v2"), value)

	// Snapshot scans resolve versions too.
	a := arena.New()
	res, err := snap.Scan(ScanTasks{
		Collections: stride.Repeat(Main),
		MinKeys:     stride.Repeat(Key(0)),
		MaxKeys:     stride.Repeat(KeyUnknown),
		Limits:      stride.Repeat(uint32(16)),
		Count:       1,
	}, a)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, res.Keys[:res.Counts[0]])

	snap.Drop()
	_, err = snap.Read(ReadTasks{Count: 0}, ReadOptions{}, arena.New())
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestSnapshotList(t *testing.T) {
	db := openTestDB(t, Options{})
	s1, err := db.Snapshot()
	require.NoError(t, err)
	writeOne(t, db, Main, 1, []byte("x"))
	s2, err := db.Snapshot()
	require.NoError(t, err)

	snaps := db.Snapshots()
	require.Len(t, snaps, 2)
	assert.LessOrEqual(t, snaps[0].Sequence(), snaps[1].Sequence())

	s1.Drop()
	s2.Drop()
	assert.Empty(t, db.Snapshots())
}

func TestCollections(t *testing.T) {
	db := openTestDB(t, Options{})

	id, err := db.CreateCollection("graph")
	require.NoError(t, err)
	assert.NotZero(t, id)

	// Idempotent create.
	again, err := db.CreateCollection("graph")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = db.CreateCollection("")
	assert.ErrorIs(t, err, ErrArgs)
	_, err = db.CreateCollection("bad\x00name")
	assert.ErrorIs(t, err, ErrArgs)

	// Entries are namespaced per collection.
	writeOne(t, db, Main, 1, []byte("main"))
	writeOne(t, db, id, 1, []byte("graph"))
	_, value, _ := readOne(t, db, id, 1)
	assert.Equal(t, []byte("graph"), value)

	ids, names, err := db.Collections()
	require.NoError(t, err)
	assert.Equal(t, []CollectionID{Main, id}, ids)
	assert.Equal(t, []string{"", "graph"}, names)

	// The main collection handle cannot be dropped.
	err = db.DropCollection(Main, DropEverything)
	assert.ErrorIs(t, err, ErrArgs)

	require.NoError(t, db.DropCollection(id, DropEverything))
	ids, _, err = db.Collections()
	require.NoError(t, err)
	assert.Equal(t, []CollectionID{Main}, ids)
}

func TestDropModes(t *testing.T) {
	db := openTestDB(t, Options{})
	id, err := db.CreateCollection("c")
	require.NoError(t, err)
	writeOne(t, db, id, 1, []byte("abc"))

	// VALUES_ONLY keeps keys with empty values.
	require.NoError(t, db.DropCollection(id, DropValuesOnly))
	present, _, length := readOne(t, db, id, 1)
	assert.True(t, present)
	assert.Equal(t, uint32(0), length)

	// KEYS_AND_VALUES removes entries, keeps the handle.
	require.NoError(t, db.DropCollection(id, DropKeysAndValues))
	present, _, _ = readOne(t, db, id, 1)
	assert.False(t, present)
	ids, _, err := db.Collections()
	require.NoError(t, err)
	assert.Contains(t, ids, id)
}

func TestMeasure(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 1, []byte("aaaa"))
	writeOne(t, db, Main, 2, []byte("bb"))

	a := arena.New()
	est, err := db.Measure(MeasureTasks{
		Collections: stride.Repeat(Main),
		MinKeys:     stride.Repeat(Key(0)),
		MaxKeys:     stride.Repeat(KeyUnknown),
		Count:       1,
	}, a)
	require.NoError(t, err)
	require.Len(t, est, 1)
	assert.Equal(t, uint64(2), est[0].CardinalityMin)
	assert.Equal(t, uint64(6), est[0].BytesValuesMin)
	assert.GreaterOrEqual(t, est[0].BytesOnDiskMin, est[0].BytesValuesMin)

	// A transaction widens the max side.
	txn, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, txn, Main, 3, []byte("cc"))
	est, err = txn.Measure(MeasureTasks{
		Collections: stride.Repeat(Main),
		MinKeys:     stride.Repeat(Key(0)),
		MaxKeys:     stride.Repeat(KeyUnknown),
		Count:       1,
	}, a)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), est[0].CardinalityMin)
	assert.Equal(t, uint64(3), est[0].CardinalityMax)
	assert.Equal(t, uint64(8), est[0].BytesValuesMax)
}

func TestSample(t *testing.T) {
	db := openTestDB(t, Options{})
	for k := Key(0); k < 100; k++ {
		writeOne(t, db, Main, k, []byte("v"))
	}

	a := arena.New()
	res, err := db.Sample(SampleTasks{
		Collections: stride.Repeat(Main),
		Limits:      stride.Repeat(uint32(10)),
		Count:       1,
	}, a)
	require.NoError(t, err)
	require.Equal(t, uint32(10), res.Counts[0])

	sample := res.Keys[:10]
	for i := 1; i < len(sample); i++ {
		assert.Less(t, sample[i-1], sample[i], "sample must be ascending and distinct")
	}
}

func TestWriteBatchLastWins(t *testing.T) {
	db := openTestDB(t, Options{})

	err := db.Write(WriteTasks{
		Collections: stride.Repeat(Main),
		Keys:        stride.Over([]Key{1, 1, 1}),
		Values:      stride.OverBytes([][]byte{[]byte("a"), nil, []byte("c")}),
		Count:       3,
	}, WriteOptions{})
	require.NoError(t, err)

	present, value, _ := readOne(t, db, Main, 1)
	assert.True(t, present)
	assert.Equal(t, []byte("c"), value)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	for _, engine := range []string{"memory", "bolt"} {
		t.Run(engine, func(t *testing.T) {
			opts := Options{Dir: t.TempDir(), Engine: engine}
			db, err := Open(opts)
			require.NoError(t, err)
			id, err := db.CreateCollection("named")
			require.NoError(t, err)
			writeOne(t, db, Main, 7, []byte("abc"))
			writeOne(t, db, id, 8, []byte("def"))
			require.NoError(t, db.Close())

			db2 := openTestDB(t, opts)
			// Sequences reset on reload; data survives.
			assert.Zero(t, db2.YoungestSequence())
			present, value, _ := readOne(t, db2, Main, 7)
			assert.True(t, present)
			assert.Equal(t, []byte("abc"), value)

			ids, names, err := db2.Collections()
			require.NoError(t, err)
			require.Equal(t, []string{"", "named"}, names)
			present, value, _ = readOne(t, db2, ids[1], 8)
			assert.True(t, present)
			assert.Equal(t, []byte("def"), value)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{ErrConflict, "conflict"},
		{ErrDoubleCommit, "double_commit"},
		{ErrArgs, "args_wrong"},
		{ErrArgsCombo, "args_combo"},
		{ErrCorruption, "corruption"},
		{ErrUninitialized, "uninitialized"},
		{errors.New("anything"), "unknown"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Kind(tt.err))
	}
}

func TestEntryOverwritten(t *testing.T) {
	tests := []struct {
		name                    string
		entry, txnSeq, youngest uint64
		want                    bool
	}{
		{"untouched", 0, 5, 10, false},
		{"written after txn", 7, 5, 10, true},
		{"written before txn", 3, 5, 10, false},
		{"exactly at txn", 5, 5, 10, true},
		{"wrapped, entry young", 1, ^uint64(0) - 1, 2, true},
		{"wrapped, entry old", ^uint64(0) - 5, ^uint64(0) - 1, 2, false},
		{"wrapped, entry pre-wrap", ^uint64(0), ^uint64(0) - 1, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entryOverwritten(tt.entry, tt.txnSeq, tt.youngest)
			assert.Equal(t, tt.want, got)
		})
	}
}

package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/events"
	"github.com/cuemby/hutch/pkg/stride"
)

func TestConcurrentWritersDisjointKeys(t *testing.T) {
	db := openTestDB(t, Options{})

	const writers = 8
	const perWriter = 200

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		base := Key(w) << 32
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				err := db.Write(WriteTasks{
					Collections: stride.Repeat(Main),
					Keys:        stride.Over([]Key{base + Key(i)}),
					Values:      stride.RepeatBytes([]byte("v")),
					Count:       1,
				}, WriteOptions{})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	a := arena.New()
	est, err := db.Measure(MeasureTasks{
		Collections: stride.Repeat(Main),
		MinKeys:     stride.Repeat(Key(0)),
		MaxKeys:     stride.Repeat(KeyUnknown),
		Count:       1,
	}, a)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers*perWriter), est[0].CardinalityMin)
	assert.Equal(t, uint64(writers*perWriter), db.YoungestSequence())
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 1, []byte("start"))

	var g errgroup.Group
	stop := make(chan struct{})

	g.Go(func() error {
		defer close(stop)
		for i := 0; i < 500; i++ {
			err := db.Write(WriteTasks{
				Collections: stride.Repeat(Main),
				Keys:        stride.Over([]Key{1}),
				Values:      stride.RepeatBytes([]byte("value")),
				Count:       1,
			}, WriteOptions{})
			if err != nil {
				return err
			}
		}
		return nil
	})

	for r := 0; r < 4; r++ {
		g.Go(func() error {
			a := arena.New()
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				a.Reset()
				res, err := db.Read(ReadTasks{
					Collections: stride.Repeat(Main),
					Keys:        stride.Over([]Key{1}),
					Count:       1,
				}, ReadOptions{}, a)
				if err != nil {
					return err
				}
				if !res.Presences.Get(0) {
					t.Error("key vanished during overwrites")
					return nil
				}
			}
		})
	}
	require.NoError(t, g.Wait())
}

func TestOnlyOneOfRacingTxnsCommits(t *testing.T) {
	db := openTestDB(t, Options{})
	writeOne(t, db, Main, 7, []byte("base"))

	const contenders = 8
	results := make([]error, contenders)
	txns := make([]*Txn, contenders)

	// All transactions read the same entry, then try to update it.
	for i := 0; i < contenders; i++ {
		txn, err := db.Begin(TxnOptions{})
		require.NoError(t, err)
		txns[i] = txn
		a := arena.New()
		_, err = txn.Read(ReadTasks{
			Collections: stride.Repeat(Main),
			Keys:        stride.Over([]Key{7}),
			Count:       1,
		}, ReadOptions{}, a)
		require.NoError(t, err)
	}

	var g errgroup.Group
	for i := 0; i < contenders; i++ {
		g.Go(func() error {
			err := txns[i].Write(WriteTasks{
				Collections: stride.Repeat(Main),
				Keys:        stride.Over([]Key{7}),
				Values:      stride.RepeatBytes([]byte("mine")),
				Count:       1,
			}, WriteOptions{})
			if err != nil {
				results[i] = err
				return nil
			}
			_, results[i] = txns[i].Commit(CommitOptions{})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	committed := 0
	for _, err := range results {
		if err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, committed, "exactly one contender must win")
}

func TestCommitPublishesEvent(t *testing.T) {
	db := openTestDB(t, Options{})
	sub := db.Events().Subscribe()

	txn, err := db.Begin(TxnOptions{})
	require.NoError(t, err)
	writeOne(t, txn, Main, 1, []byte("x"))
	seq, err := txn.Commit(CommitOptions{})
	require.NoError(t, err)

	for {
		ev, ok := <-sub
		require.True(t, ok, "broker closed before commit event")
		if ev.Type == events.EventTxnCommitted {
			assert.Equal(t, seq, ev.Sequence)
			return
		}
	}
}

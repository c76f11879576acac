package kv

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/hutch/pkg/events"
	"github.com/cuemby/hutch/pkg/log"
	"github.com/cuemby/hutch/pkg/metrics"
	"github.com/cuemby/hutch/pkg/substrate"
)

// Options configures a database instance.
type Options struct {
	// Dir is the data directory. Empty means a purely in-memory database
	// (memory engine only).
	Dir string `yaml:"dir"`

	// Engine selects the substrate: "memory" (default) or "bolt".
	Engine string `yaml:"engine"`

	// SyncWrites flushes after every head-mode write batch and commit,
	// as if every call carried the flush option.
	SyncWrites bool `yaml:"sync_writes"`
}

// collection pairs a substrate store with its MVCC bookkeeping. The
// substrate holds current values; index carries sequence numbers,
// tombstones, and versions retained for live snapshots.
type collection struct {
	id    CollectionID
	name  string
	store string
	index map[Key]*entryMeta
}

// DB is a database instance: the owner of collections, the HEAD state,
// and the commit clock. All methods are safe for concurrent use.
type DB struct {
	id     string
	opts   Options
	sub    substrate.Substrate
	broker *events.Broker
	logger zerolog.Logger

	// youngest is the sequence of the most recent update; advanced on
	// every head write task, transaction begin, and commit.
	youngest atomic.Uint64

	mu        sync.RWMutex
	closed    bool
	cols      map[CollectionID]*collection
	colByName map[string]CollectionID
	nextCol   CollectionID
	snaps     map[*Snapshot]struct{}
}

// Open creates or loads a database according to opts.
func Open(opts Options) (*DB, error) {
	var sub substrate.Substrate
	var err error
	switch opts.Engine {
	case "", "memory":
		sub, err = substrate.NewMemoryStore(opts.Dir)
	case "bolt":
		if opts.Dir == "" {
			return nil, fmt.Errorf("%w: bolt engine requires a data directory", ErrArgs)
		}
		sub, err = substrate.NewBoltStore(opts.Dir)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrArgs, opts.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open substrate: %w", err)
	}

	db := &DB{
		id:        uuid.New().String(),
		opts:      opts,
		sub:       sub,
		broker:    events.NewBroker(),
		logger:    log.WithComponent("kv"),
		cols:      map[CollectionID]*collection{},
		colByName: map[string]CollectionID{},
		nextCol:   1,
		snaps:     map[*Snapshot]struct{}{},
	}
	db.cols[Main] = &collection{id: Main, index: map[Key]*entryMeta{}}

	// Register pre-existing stores as named collections.
	names, err := sub.Stores()
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			continue
		}
		id := db.nextCol
		db.nextCol++
		db.cols[id] = &collection{id: id, name: name, store: name, index: map[Key]*entryMeta{}}
		db.colByName[name] = id
	}

	db.broker.Start()
	metrics.CollectionsTotal.Set(float64(len(db.cols)))
	db.logger.Info().
		Str("database", db.id).
		Str("engine", engineName(opts.Engine)).
		Int("collections", len(db.cols)).
		Msg("database opened")
	return db, nil
}

func engineName(e string) string {
	if e == "" {
		return "memory"
	}
	return e
}

// Events returns the database's event broker.
func (db *DB) Events() *events.Broker {
	return db.broker
}

// Close flushes and releases the database. Outstanding
// transactions and snapshots become unusable.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	db.closed = true
	db.mu.Unlock()

	db.broker.Stop()
	if err := db.sub.Close(); err != nil {
		return fmt.Errorf("failed to close substrate: %w", err)
	}
	db.logger.Info().Str("database", db.id).Msg("database closed")
	return nil
}

// Flush forces all state to durable storage.
func (db *DB) Flush() error {
	t := metrics.NewTimer()
	if err := db.sub.Flush(); err != nil {
		return err
	}
	t.ObserveDuration(metrics.FlushDuration)
	db.broker.Publish(&events.Event{Type: events.EventFlushed})
	return nil
}

// YoungestSequence returns the sequence of the most recent update.
func (db *DB) YoungestSequence() uint64 {
	return db.youngest.Load()
}

// advanceYoungest raises the commit clock to at least seq.
func (db *DB) advanceYoungest(seq uint64) {
	for {
		cur := db.youngest.Load()
		if cur >= seq || db.youngest.CompareAndSwap(cur, seq) {
			metrics.YoungestSequence.Set(float64(db.youngest.Load()))
			return
		}
	}
}

// CreateCollection returns the identifier of the named collection,
// creating it if needed. Names must be non-empty without embedded NUL.
func (db *DB) CreateCollection(name string) (CollectionID, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return 0, fmt.Errorf("%w: invalid collection name", ErrArgs)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrClosed
	}
	if id, ok := db.colByName[name]; ok {
		return id, nil
	}
	if err := db.sub.CreateStore(name); err != nil {
		return 0, fmt.Errorf("failed to create store: %w", err)
	}
	id := db.nextCol
	db.nextCol++
	db.cols[id] = &collection{id: id, name: name, store: name, index: map[Key]*entryMeta{}}
	db.colByName[name] = id

	metrics.CollectionsTotal.Set(float64(len(db.cols)))
	db.broker.Publish(&events.Event{Type: events.EventCollectionCreated, Collection: name})
	db.logger.Debug().Str("collection", name).Uint64("id", uint64(id)).Msg("collection created")
	return id, nil
}

// DropCollection removes collection contents according to mode.
func (db *DB) DropCollection(id CollectionID, mode DropMode) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	col, ok := db.cols[id]
	if !ok {
		return fmt.Errorf("%w: unknown collection %d", ErrArgs, id)
	}
	if id == Main && mode == DropEverything {
		return fmt.Errorf("%w: cannot drop the main collection handle", ErrArgs)
	}

	switch mode {
	case DropValuesOnly:
		var muts []substrate.Mutation
		err := db.sub.Ascend(col.store, 0, KeyUnknown, func(key uint64, _ []byte) bool {
			muts = append(muts, substrate.Mutation{Store: col.store, Key: key, Value: []byte{}})
			return true
		})
		if err != nil {
			return err
		}
		for _, m := range muts {
			seq := db.youngest.Add(1)
			db.captureVersion(col, m.Key, seq)
			db.stamp(col, m.Key, seq, false)
		}
		if err := db.sub.Apply(muts, db.opts.SyncWrites); err != nil {
			return fmt.Errorf("failed to clear values: %w", err)
		}
	case DropKeysAndValues, DropEverything:
		var muts []substrate.Mutation
		err := db.sub.Ascend(col.store, 0, KeyUnknown, func(key uint64, _ []byte) bool {
			muts = append(muts, substrate.Mutation{Store: col.store, Key: key, Value: nil})
			return true
		})
		if err != nil {
			return err
		}
		for _, m := range muts {
			seq := db.youngest.Add(1)
			db.captureVersion(col, m.Key, seq)
			db.stamp(col, m.Key, seq, true)
		}
		if err := db.sub.Apply(muts, db.opts.SyncWrites); err != nil {
			return fmt.Errorf("failed to clear entries: %w", err)
		}
		if mode == DropEverything {
			if err := db.sub.DropStore(col.store); err != nil {
				return fmt.Errorf("failed to drop store: %w", err)
			}
			delete(db.cols, id)
			delete(db.colByName, col.name)
		}
	default:
		return fmt.Errorf("%w: unknown drop mode %d", ErrArgs, mode)
	}

	metrics.CollectionsTotal.Set(float64(len(db.cols)))
	db.broker.Publish(&events.Event{Type: events.EventCollectionDropped, Collection: col.name})
	return nil
}

// Collections lists identifiers and names, main first, then named
// collections sorted by name.
func (db *DB) Collections() ([]CollectionID, []string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, nil, ErrClosed
	}

	names := make([]string, 0, len(db.colByName))
	for name := range db.colByName {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make([]CollectionID, 0, len(names)+1)
	listed := make([]string, 0, len(names)+1)
	ids = append(ids, Main)
	listed = append(listed, "")
	for _, name := range names {
		ids = append(ids, db.colByName[name])
		listed = append(listed, name)
	}
	return ids, listed, nil
}

// col resolves an identifier under a lock the caller already holds.
func (db *DB) col(id CollectionID) (*collection, error) {
	c, ok := db.cols[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %d", ErrArgs, id)
	}
	return c, nil
}

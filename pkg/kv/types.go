package kv

import (
	"math"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/stride"
)

// Key is a 64-bit entry identifier within a collection.
type Key = uint64

const (
	// KeyUnknown is the reserved sentinel meaning "no such key". No valid
	// entry ever uses it, which also makes it a safe exclusive scan bound.
	KeyUnknown Key = math.MaxUint64

	// LengthMissing marks an absent value in length outputs.
	LengthMissing uint32 = math.MaxUint32
)

// CollectionID identifies a collection. Zero is the always-present main
// collection; named collections receive opaque non-zero identifiers.
type CollectionID uint64

// Main is the identifier of the default collection.
const Main CollectionID = 0

// DropMode selects how much of a collection Drop removes.
type DropMode int

const (
	// DropValuesOnly empties every value but keeps keys and the handle.
	DropValuesOnly DropMode = iota
	// DropKeysAndValues removes all entries but keeps the handle.
	DropKeysAndValues
	// DropEverything removes entries and the collection handle itself.
	// The main collection cannot be dropped this way.
	DropEverything
)

// colKey locates an entry: the unit of watching, staging, and versioning.
type colKey struct {
	col CollectionID
	key Key
}

// ReadTasks addresses a batch of entries.
type ReadTasks struct {
	Collections stride.Series[CollectionID]
	Keys        stride.Series[Key]
	Count       int
}

// ReadOptions controls watching and which outputs are produced. Skipped
// outputs cost nothing beyond a dummy allocation.
type ReadOptions struct {
	// DontWatch suppresses conflict tracking for transactional reads.
	DontWatch bool

	SkipPresences bool
	SkipOffsets   bool
	SkipLengths   bool
	SkipValues    bool
}

// ReadResult holds arena-backed read outputs. Absent entries have
// presence bit 0, length LengthMissing, and contribute no value bytes.
// Offsets carries Count+1 elements; the last equals len(Values).
type ReadResult struct {
	Presences arena.Bitmap
	Offsets   []uint32
	Lengths   []uint32
	Values    []byte
}

// WriteTasks describes a batch of upserts and deletes. A nil value is a
// tombstone; an empty one stores a present zero-length entry.
type WriteTasks struct {
	Collections stride.Series[CollectionID]
	Keys        stride.Series[Key]
	Values      stride.Bytes
	Count       int
}

// WriteOptions controls durability of head-mode writes.
type WriteOptions struct {
	// Flush makes the call return only after the new state is durable.
	Flush bool
}

// ScanTasks describes bounded ascending key scans: up to Limit keys from
// [MinKey, MaxKey) per task.
type ScanTasks struct {
	Collections stride.Series[CollectionID]
	MinKeys     stride.Series[Key]
	MaxKeys     stride.Series[Key]
	Limits      stride.Series[uint32]
	Count       int
}

// ScanResult holds arena-backed scan outputs. Keys for task i occupy
// Keys[Offsets[i]:Offsets[i]+Counts[i]]; Offsets carries Count+1 elements.
type ScanResult struct {
	Offsets []uint32
	Counts  []uint32
	Keys    []uint64
}

// SampleTasks requests uniform key samples of up to Limit keys per task.
type SampleTasks struct {
	Collections stride.Series[CollectionID]
	Limits      stride.Series[uint32]
	Count       int
}

// MeasureTasks requests cardinality and size estimates over key ranges.
type MeasureTasks struct {
	Collections stride.Series[CollectionID]
	MinKeys     stride.Series[Key]
	MaxKeys     stride.Series[Key]
	Count       int
}

// Estimate bounds the cardinality and footprint of one measured range.
// The max side includes entries staged in the measuring transaction.
type Estimate struct {
	CardinalityMin uint64
	CardinalityMax uint64
	BytesValuesMin uint64
	BytesValuesMax uint64
	BytesOnDiskMin uint64
	BytesOnDiskMax uint64
}

// Source is the read surface shared by databases, transactions, and
// snapshots. The document and graph engines accept any Source.
type Source interface {
	Read(tasks ReadTasks, opts ReadOptions, a *arena.Arena) (ReadResult, error)
	Scan(tasks ScanTasks, a *arena.Arena) (ScanResult, error)
	Measure(tasks MeasureTasks, a *arena.Arena) ([]Estimate, error)
}

// Store is a Source that also accepts writes: a database (head mode) or a
// transaction (staged).
type Store interface {
	Source
	Write(tasks WriteTasks, opts WriteOptions) error
}

var (
	_ Store  = (*DB)(nil)
	_ Store  = (*Txn)(nil)
	_ Source = (*Snapshot)(nil)
)

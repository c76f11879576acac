/*
Package substrate provides pluggable ordered storage for the Hutch core.

The transactional engine in pkg/kv consumes the Substrate interface:
ordered storage over 8-byte unsigned keys with per-entry byte values,
partitioned into named sub-stores (one per collection, "" for the main
one). Two engines implement it:

	┌──────────────────── SUBSTRATE ───────────────────────┐
	│                                                       │
	│  ┌─────────────────────────────────────────┐         │
	│  │            Substrate interface           │         │
	│  │  CreateStore / DropStore / Stores        │         │
	│  │  Get / Apply(batch, flush) / Ascend      │         │
	│  │  Flush / Close                           │         │
	│  └───────────┬─────────────────┬───────────┘         │
	│              │                 │                      │
	│  ┌───────────▼──────┐  ┌───────▼────────────┐        │
	│  │   MemoryStore     │  │    BoltStore       │        │
	│  │  - google/btree   │  │  - bbolt file      │        │
	│  │    per store      │  │  - bucket/store    │        │
	│  │  - <name>.kv      │  │  - big-endian keys │        │
	│  │    persistence    │  │  - fsync on Flush  │        │
	│  └──────────────────┘  └────────────────────┘        │
	└───────────────────────────────────────────────────────┘

MemoryStore is the reference engine: each store is a B-tree ordered by
key, optionally persisted as one "<name>.kv" file per store in a data
directory (loaded on open, written on Flush/Close). The file layout is a
u32 entry count followed by (u64 key, u32 length, bytes) records,
little-endian. Tombstoned entries are never persisted, and sequence
numbers are not part of the format: reopening a database restarts its
MVCC clock at zero.

BoltStore maps every store to a bbolt bucket and encodes keys big-endian
so the bucket's lexicographic order equals numeric key order. Batches
apply in a single bolt transaction; durability is deferred to explicit
flushes, matching the engine-level flush option.

MVCC bookkeeping (sequence numbers, tombstones, retained snapshot
versions) deliberately lives above this interface, in pkg/kv: substrates
hold only the current committed value of each key.
*/
package substrate

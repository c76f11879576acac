/*
Package kv implements Hutch's transactional key-value core.

A database owns named collections of 64-bit keys mapping to optional byte
values, an MVCC commit clock, and the HEAD state shared by every reader.
Three handle types expose the batched operations:

	┌───────────────────── KV CORE ─────────────────────────┐
	│                                                        │
	│   *DB ───────── head reads/writes, scans, samples,     │
	│     │           measures, collection management        │
	│     │                                                  │
	│     ├── Begin ──► *Txn    optimistic transaction:      │
	│     │             reads watch sequences, writes stage  │
	│     │             privately, Commit installs all-or-   │
	│     │             nothing under the HEAD lock          │
	│     │                                                  │
	│     └── Snapshot ─► *Snapshot   read-only view pinned  │
	│                     at a sequence; overwritten entries │
	│                     stay readable via retained         │
	│                     versions until dropped             │
	│                                                        │
	│   substrate.Substrate ── current values, ordered keys  │
	│   collection.index ───── sequences, tombstones,        │
	│                          retained versions             │
	└────────────────────────────────────────────────────────┘

# Concurrency

A single reader/writer lock guards HEAD metadata: reads, scans, measures,
and snapshot resolution hold it shared; head writes, commits, and
collection management hold it exclusively. Transaction handles are not
safe for concurrent use; everything else is.

# Sequences and conflicts

Every committed entry carries the sequence number of the commit that
produced it. Transactions pin youngest+1 at begin; commit aborts with
ErrConflict when a watched or mutated entry changed since, and with
ErrDoubleCommit when the transaction's own sequence is already installed.
The overwrite test is modulo-safe, so a wrapped commit clock does not
produce false negatives.

# Batched surface

All operations take task batches described by stride series, write their
outputs into a caller-owned arena, and report absence through presence
bits and the LengthMissing sentinel rather than errors. The document and
graph modalities in pkg/docs and pkg/graph sit entirely on this surface
through the Source and Store interfaces.
*/
package kv

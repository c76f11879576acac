/*
Package arena provides caller-owned scratch memory for batched operations.

Every batched read, scan, gather, or edge lookup in Hutch writes its
outputs into an Arena supplied by the caller: presence bitmaps, offset and
length arrays, and packed value bytes. Allocations are bump-allocated from
reusable chunks and stay valid until Reset, which recycles all memory at
once. This gives request-scoped lifetime management without per-value heap
traffic: the caller resets the arena between batches and reuses it.

The Tape accumulates variable-length outputs in the packed layout the
engines expose: a contiguous contents buffer plus offset and length
arrays, with offsets carrying a trailing terminator equal to the total
size. Bitmap is the LSB-first bit vector used for presence, validity,
conversion, and collision outputs.
*/
package arena

/*
Package stride describes batched task inputs without forcing a layout.

All public Hutch operations take batches of tasks. Each task parameter —
collection, key, value, limit, role — arrives as a Series that is either
backed by a slice (one element per task) or by a single repeating scalar.
Callers addressing many keys in one collection pass Repeat(col) and
Over(keys); callers writing one value to many keys pass RepeatBytes. The
engines index series uniformly and never require contiguous input.
*/
package stride

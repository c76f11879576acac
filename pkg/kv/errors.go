package kv

import "errors"

// Error kinds of the storage engine. Callers classify failures with
// errors.Is; wrapped context never hides the kind.
var (
	// ErrArgs reports malformed input: an unknown format, an invalid
	// path expression, an unknown collection, and similar.
	ErrArgs = errors.New("invalid argument")

	// ErrArgsCombo reports inputs that are individually valid but
	// inconsistent together, such as a field selector combined with a
	// whole-document patch format.
	ErrArgsCombo = errors.New("inconsistent argument combination")

	// ErrOutOfMemory reports an allocator failure.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrUninitialized reports a nil or freed handle.
	ErrUninitialized = errors.New("uninitialized handle")

	// ErrCorruption reports a stored value that fails invariant decode,
	// such as a truncated adjacency header.
	ErrCorruption = errors.New("corrupted value")

	// ErrConflict reports an optimistic-concurrency conflict at read or
	// commit time.
	ErrConflict = errors.New("transaction conflict")

	// ErrDoubleCommit reports a transaction sequence committed twice
	// without an intervening begin.
	ErrDoubleCommit = errors.New("sequence committed twice")

	// ErrMissingFeature reports an option this build does not implement.
	ErrMissingFeature = errors.New("feature not implemented")

	// ErrClosed reports use of a closed database.
	ErrClosed = errors.New("database closed")
)

// Kind maps an error to its taxonomy name, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrArgs):
		return "args_wrong"
	case errors.Is(err, ErrArgsCombo):
		return "args_combo"
	case errors.Is(err, ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, ErrUninitialized):
		return "uninitialized"
	case errors.Is(err, ErrCorruption):
		return "corruption"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDoubleCommit):
		return "double_commit"
	case errors.Is(err, ErrMissingFeature):
		return "missing_feature"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "unknown"
	}
}

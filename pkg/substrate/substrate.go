package substrate

// Mutation is one batched change: a nil Value deletes the key, any other
// value (including empty) replaces it.
type Mutation struct {
	Store string
	Key   uint64
	Value []byte
}

// Substrate is the contract the transactional core consumes: ordered
// storage over 8-byte unsigned keys with per-entry byte values, organized
// into named sub-stores. The main collection maps to the store named "".
//
// Implementations must keep keys in ascending order for Ascend and apply
// mutation batches atomically where the backing medium supports it.
type Substrate interface {
	// CreateStore ensures a sub-store exists.
	CreateStore(name string) error

	// DropStore removes a sub-store and all of its entries.
	DropStore(name string) error

	// Stores lists existing sub-store names, including "" for the main one.
	Stores() ([]string, error)

	// Get returns the value for key and whether it is present. The
	// returned bytes are a copy owned by the caller.
	Get(store string, key uint64) ([]byte, bool, error)

	// Apply installs a batch of puts and deletes. When flush is set the
	// call returns only after the new state is durable.
	Apply(muts []Mutation, flush bool) error

	// Ascend visits entries with keys in [min, max) in ascending order
	// until fn returns false. Values passed to fn are only valid for the
	// duration of the call.
	Ascend(store string, min, max uint64, fn func(key uint64, value []byte) bool) error

	// Flush forces all pending state to durable storage.
	Flush() error

	// Close releases the substrate; for persistent engines this flushes.
	Close() error
}

package substrate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// bucketPrefix namespaces collection buckets; the main store ("") maps to
// the bare prefix, which keeps every bucket name non-empty.
var bucketPrefix = []byte("kv:")

// BoltStore is a bbolt-backed substrate: one database file, one bucket per
// sub-store, keys encoded big-endian so bolt's lexicographic order matches
// numeric key order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the substrate database in dir. Commits
// are written without fsync; durability is requested per-batch or via
// Flush, mirroring the engine-level flush option.
func NewBoltStore(dir string) (*BoltStore, error) {
	dbPath := filepath.Join(dir, "hutch.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(""))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create main bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func bucketName(store string) []byte {
	return append(append([]byte{}, bucketPrefix...), store...)
}

func storeName(bucket []byte) (string, bool) {
	if !bytes.HasPrefix(bucket, bucketPrefix) {
		return "", false
	}
	return string(bucket[len(bucketPrefix):]), true
}

func encodeKey(key uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], key)
	return buf[:]
}

// CreateStore ensures a bucket exists for the sub-store.
func (s *BoltStore) CreateStore(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(name))
		return err
	})
}

// DropStore deletes the sub-store's bucket.
func (s *BoltStore) DropStore(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(bucketName(name))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// Stores lists sub-store names from the bucket registry.
func (s *BoltStore) Stores() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(bucket []byte, _ *bolt.Bucket) error {
			if name, ok := storeName(bucket); ok {
				names = append(names, name)
			}
			return nil
		})
	})
	return names, err
}

// Get returns a copy of the value for key.
func (s *BoltStore) Get(store string, key uint64) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(store))
		if b == nil {
			return fmt.Errorf("unknown store %q", store)
		}
		data := b.Get(encodeKey(key))
		if data == nil {
			return nil
		}
		// Copy: bolt data is only valid during the transaction.
		out = make([]byte, len(data))
		copy(out, data)
		found = true
		return nil
	})
	return out, found, err
}

// Apply installs a batch of puts and deletes in one bolt transaction.
func (s *BoltStore) Apply(muts []Mutation, flush bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, m := range muts {
			b := tx.Bucket(bucketName(m.Store))
			if b == nil {
				return fmt.Errorf("unknown store %q", m.Store)
			}
			if m.Value == nil {
				if err := b.Delete(encodeKey(m.Key)); err != nil {
					return err
				}
			} else if err := b.Put(encodeKey(m.Key), m.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if flush {
		return s.Flush()
	}
	return nil
}

// Ascend visits entries with keys in [min, max) in ascending order.
func (s *BoltStore) Ascend(store string, min, max uint64, fn func(key uint64, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(store))
		if b == nil {
			return fmt.Errorf("unknown store %q", store)
		}
		c := b.Cursor()
		limit := encodeKey(max)
		for k, v := c.Seek(encodeKey(min)); k != nil && bytes.Compare(k, limit) < 0; k, v = c.Next() {
			if !fn(binary.BigEndian.Uint64(k), v) {
				return nil
			}
		}
		return nil
	})
}

// Flush fsyncs the database file.
func (s *BoltStore) Flush() error {
	return s.db.Sync()
}

// Close flushes and closes the database.
func (s *BoltStore) Close() error {
	if err := s.db.Sync(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Package storage provides the persistent key-value store backing the
// ledger state, built on Pebble. Multi-key changesets commit through a
// single atomic batch so a failed operation leaves no partial writes.
package storage

import (
	"github.com/cockroachdb/pebble"
)

// Op is one write of an atomic changeset. When Delete is set the key is
// removed and Value is ignored.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Store is a Pebble-backed key-value store. Every write is synced to
// disk before the call returns: a committed ledger operation must
// survive a crash.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20), // 32 MB cache
		MemTableSize:                16 << 20,                  // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get retrieves the value for the given key. Returns nil if the key
// does not exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// the value is invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Has reports whether the key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// Set stores a single key-value pair.
func (s *Store) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// Delete removes a key from the store.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// Apply commits a changeset atomically: either every op is applied or
// none is.
func (s *Store) Apply(ops []Op) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		if op.Delete {
			if err := batch.Delete(op.Key, nil); err != nil {
				return err
			}
			continue
		}
		if err := batch.Set(op.Key, op.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// IteratePrefix calls fn for each key-value pair with the given prefix,
// in lexicographic key order. A nil prefix visits the whole store. If
// fn returns an error, iteration stops and the error is returned.
func (s *Store) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(key, value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is empty or all 0xFF
// (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

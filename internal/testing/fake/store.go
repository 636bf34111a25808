package fake

import (
	"bytes"
	"sort"

	"go.dedis.ch/contest/core/store"
)

// InMemorySnapshot is a fake implementation of a store snapshot.
//
// - implements store.Snapshot
type InMemorySnapshot struct {
	values    map[string][]byte
	ErrRead   error
	ErrWrite  error
	ErrDelete error
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values: make(map[string][]byte),
	}
}

// NewBadSnapshot creates a new empty snapshot that will always return an error.
func NewBadSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values:    make(map[string][]byte),
		ErrRead:   fakeErr,
		ErrWrite:  fakeErr,
		ErrDelete: fakeErr,
	}
}

// Get implements store.Snapshot.
func (snap *InMemorySnapshot) Get(key []byte) ([]byte, error) {
	return snap.values[string(key)], snap.ErrRead
}

// Scan implements store.Snapshot. Keys are visited in lexicographic order.
func (snap *InMemorySnapshot) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if snap.ErrRead != nil {
		return snap.ErrRead
	}

	keys := make([]string, 0, len(snap.values))
	for key := range snap.values {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	for _, key := range keys {
		err := fn([]byte(key), snap.values[key])
		if err != nil {
			return err
		}
	}

	return nil
}

// Set implements store.Snapshot.
func (snap *InMemorySnapshot) Set(key, value []byte) error {
	snap.values[string(key)] = value

	return snap.ErrWrite
}

// Delete implements store.Snapshot.
func (snap *InMemorySnapshot) Delete(key []byte) error {
	delete(snap.values, string(key))

	return snap.ErrDelete
}

// Len returns the number of keys stored in the snapshot.
func (snap *InMemorySnapshot) Len() int {
	return len(snap.values)
}

var _ store.Snapshot = (*InMemorySnapshot)(nil)

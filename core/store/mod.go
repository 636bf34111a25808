// Package store defines the primitives of a simple key/value storage.
//
// The ledger only ever touches the storage through a snapshot that lives as
// long as the storage transaction of a single instruction.
package store

// Readable is the interface for a readable store.
type Readable interface {
	// Get returns the value of the key, or nil if the key is not set.
	Get(key []byte) ([]byte, error)

	// Scan iterates over the keys sharing the prefix in ascending order. The
	// iteration stops when the callback returns an error.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// Writable is the interface for a writable store.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Snapshot is a state of the store that can be read and write independently. A
// write is applied only to the snapshot reference.
type Snapshot interface {
	Readable
	Writable
}

// Transaction is a generic interface that store implementations can use to
// provide atomicity.
type Transaction interface {
	// OnCommit adds a callback to be executed after the transaction
	// successfully commits.
	OnCommit(func())
}

package kv

import (
	"go.dedis.ch/contest/core/store"
	"golang.org/x/xerrors"
)

var errReadOnly = xerrors.New("read-only snapshot")

// bucketSnapshot is a store snapshot backed by a bucket of an open
// transaction. It must not be used once the transaction is closed.
//
// - implements store.Snapshot
type bucketSnapshot struct {
	bucket Bucket
}

// NewSnapshot returns a snapshot that reads and writes the bucket.
func NewSnapshot(bucket Bucket) store.Snapshot {
	return bucketSnapshot{bucket: bucket}
}

// Get implements store.Readable. It returns a copy of the value so that it
// survives the transaction.
func (s bucketSnapshot) Get(key []byte) ([]byte, error) {
	value := s.bucket.Get(key)
	if value == nil {
		return nil, nil
	}

	res := make([]byte, len(value))
	copy(res, value)

	return res, nil
}

// Scan implements store.Readable.
func (s bucketSnapshot) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return s.bucket.Scan(prefix, fn)
}

// Set implements store.Writable.
func (s bucketSnapshot) Set(key, value []byte) error {
	return s.bucket.Set(key, value)
}

// Delete implements store.Writable.
func (s bucketSnapshot) Delete(key []byte) error {
	return s.bucket.Delete(key)
}

// emptySnapshot is the snapshot of a bucket that does not exist yet. Every
// read returns nothing and writes are refused.
//
// - implements store.Snapshot
type emptySnapshot struct{}

// NewEmptySnapshot returns a snapshot without any key, to be used when a
// read-only transaction does not find the bucket.
func NewEmptySnapshot() store.Snapshot {
	return emptySnapshot{}
}

// Get implements store.Readable. It always returns nil.
func (emptySnapshot) Get([]byte) ([]byte, error) {
	return nil, nil
}

// Scan implements store.Readable. It never calls the callback.
func (emptySnapshot) Scan([]byte, func(key, value []byte) error) error {
	return nil
}

// Set implements store.Writable. It always fails.
func (emptySnapshot) Set([]byte, []byte) error {
	return errReadOnly
}

// Delete implements store.Writable. It always fails.
func (emptySnapshot) Delete([]byte) error {
	return errReadOnly
}

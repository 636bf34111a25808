package kv

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"golang.org/x/xerrors"
)

// pebbleDB is an adapter of the KV store using pebble. Buckets are emulated by
// prefixing the keys with the length-prefixed bucket name, and a marker key
// made of the prefix alone records that a bucket exists.
//
// Writable transactions are indexed batches committed with a sync write, so
// that either every write of the transaction is persisted or none is. They are
// serialized with a lock to offer the same isolation as bbolt.
//
// - implements kv.DB
type pebbleDB struct {
	sync.Mutex

	db *pebble.DB
}

// NewPebble opens a pebble database in the given directory. An empty path
// opens an in-memory database.
func NewPebble(path string) (DB, error) {
	opts := &pebble.Options{}

	if path == "" {
		opts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return &pebbleDB{db: db}, nil
}

// View implements kv.DB. It executes the read-only transaction against a
// point-in-time snapshot of the database.
func (db *pebbleDB) View(fn func(ReadableTx) error) error {
	snap := db.db.NewSnapshot()
	defer snap.Close()

	return fn(pebbleTx{reader: snap})
}

// Update implements kv.DB. It executes the writable transaction in an indexed
// batch which is only committed if the function succeeds.
func (db *pebbleDB) Update(fn func(WritableTx) error) error {
	db.Lock()
	defer db.Unlock()

	batch := db.db.NewIndexedBatch()
	defer batch.Close()

	tx := pebbleTx{
		reader: batch,
		batch:  batch,
		hooks:  &[]func(){},
	}

	err := fn(tx)
	if err != nil {
		return err
	}

	err = batch.Commit(pebble.Sync)
	if err != nil {
		return xerrors.Errorf("failed to commit: %v", err)
	}

	for _, hook := range *tx.hooks {
		hook()
	}

	return nil
}

// Close implements kv.DB. It closes the database.
func (db *pebbleDB) Close() error {
	return db.db.Close()
}

// pebbleReader is the common part of a pebble snapshot and an indexed batch.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// pebbleTx is a transaction over a snapshot or an indexed batch.
//
// - implements kv.ReadableTx
// - implements kv.WritableTx
type pebbleTx struct {
	reader pebbleReader
	batch  *pebble.Batch
	hooks  *[]func()
}

// GetBucket implements kv.ReadableTx. It returns the bucket if the marker key
// exists, otherwise nil.
func (tx pebbleTx) GetBucket(name []byte) Bucket {
	prefix := bucketPrefix(name)

	value, err := get(tx.reader, prefix)
	if err != nil || value == nil {
		return nil
	}

	return pebbleBucket{tx: tx, prefix: prefix}
}

// GetBucketOrCreate implements kv.WritableTx. It returns the bucket and
// creates the marker key when it does not exist yet.
func (tx pebbleTx) GetBucketOrCreate(name []byte) (Bucket, error) {
	if len(name) == 0 {
		return nil, xerrors.New("failed to create bucket: bucket name required")
	}

	if tx.batch == nil {
		return nil, xerrors.New("failed to create bucket: read-only transaction")
	}

	prefix := bucketPrefix(name)

	err := tx.batch.Set(prefix, []byte{1}, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create bucket: %v", err)
	}

	return pebbleBucket{tx: tx, prefix: prefix}, nil
}

// OnCommit implements store.Transaction. It registers a callback executed after
// the batch is committed.
func (tx pebbleTx) OnCommit(fn func()) {
	if tx.hooks != nil {
		*tx.hooks = append(*tx.hooks, fn)
	}
}

// pebbleBucket is a view of the keys of the database that share the bucket
// prefix.
//
// - implements kv.Bucket
type pebbleBucket struct {
	tx     pebbleTx
	prefix []byte
}

// Get implements kv.Bucket. It returns the value associated to the key.
func (b pebbleBucket) Get(key []byte) []byte {
	value, err := get(b.tx.reader, b.key(key))
	if err != nil {
		return nil
	}

	return value
}

// Set implements kv.Bucket. It sets the provided key to the value.
func (b pebbleBucket) Set(key, value []byte) error {
	if len(key) == 0 {
		return xerrors.New("key required")
	}

	if b.tx.batch == nil {
		return xerrors.New("read-only transaction")
	}

	return b.tx.batch.Set(b.key(key), value, nil)
}

// Delete implements kv.Bucket. It deletes the key from the bucket.
func (b pebbleBucket) Delete(key []byte) error {
	if b.tx.batch == nil {
		return xerrors.New("read-only transaction")
	}

	return b.tx.batch.Delete(b.key(key), nil)
}

// ForEach implements kv.Bucket. It iterates over the whole bucket in the key
// order.
func (b pebbleBucket) ForEach(fn func(k, v []byte) error) error {
	return b.iterate(nil, fn)
}

// Scan implements kv.Bucket. It iterates over the keys matching the prefix.
func (b pebbleBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	err := b.iterate(prefix, fn)
	if err != nil {
		return xerrors.Errorf("callback failed: %v", err)
	}

	return nil
}

func (b pebbleBucket) iterate(prefix []byte, fn func(k, v []byte) error) error {
	lower := b.key(prefix)

	iter, err := b.tx.reader.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd(lower),
	})
	if err != nil {
		return xerrors.Errorf("failed to create iterator: %v", err)
	}

	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		if bytes.Equal(key, b.prefix) {
			// Bucket marker.
			continue
		}

		err = fn(key[len(b.prefix):], iter.Value())
		if err != nil {
			return err
		}
	}

	return iter.Error()
}

func (b pebbleBucket) key(key []byte) []byte {
	buffer := make([]byte, 0, len(b.prefix)+len(key))
	buffer = append(buffer, b.prefix...)

	return append(buffer, key...)
}

func get(reader pebbleReader, key []byte) ([]byte, error) {
	value, closer, err := reader.Get(key)
	if xerrors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	defer closer.Close()

	res := make([]byte, len(value))
	copy(res, value)

	return res, nil
}

func bucketPrefix(name []byte) []byte {
	prefix := make([]byte, 2, 2+len(name))
	binary.LittleEndian.PutUint16(prefix, uint16(len(name)))

	return append(prefix, name...)
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)

	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil
}

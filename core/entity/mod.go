// Package entity implements the typed records of the ledger stored at derived
// addresses.
//
// A record is serialized with an 8-byte discriminator, the first bytes of
// sha256("account:<Name>"), followed by the Borsh encoding of its fields. The
// discriminator protects a reader against a record of another kind living at
// the address it expects.
//
// The store only ever works on the snapshot of the storage transaction that
// runs the current instruction, which makes the writes of an instruction atomic.
package entity

import (
	"bytes"
	"crypto/sha256"
	"reflect"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/store"
	"golang.org/x/xerrors"
)

// DiscriminatorSize is the size of the prefix identifying the kind of a record.
const DiscriminatorSize = 8

// Record is a typed value stored at an address. Its exported fields are
// encoded in declaration order.
type Record interface {
	// AccountName returns the name of the kind of record.
	AccountName() string
}

// Discriminator returns the prefix of the records of the given kind.
func Discriminator(name string) []byte {
	digest := sha256.Sum256([]byte("account:" + name))
	return digest[:DiscriminatorSize]
}

// Encode returns the discriminator followed by the Borsh encoding of the
// record.
func Encode(rec Record) ([]byte, error) {
	buffer := new(bytes.Buffer)
	buffer.Write(Discriminator(rec.AccountName()))

	// The encoder works on the value of the record rather than its pointer.
	err := bin.NewBorshEncoder(buffer).Encode(reflect.Indirect(reflect.ValueOf(rec)).Interface())
	if err != nil {
		return nil, xerrors.Errorf("failed to encode %s: %v", rec.AccountName(), err)
	}

	return buffer.Bytes(), nil
}

// Decode populates the record from the data. It fails if the discriminator
// does not match the kind of the record.
func Decode(data []byte, rec Record) error {
	if !IsKind(data, rec.AccountName()) {
		return xerrors.Errorf("data is not a %s", rec.AccountName())
	}

	err := bin.NewBorshDecoder(data[DiscriminatorSize:]).Decode(rec)
	if err != nil {
		return xerrors.Errorf("failed to decode %s: %v", rec.AccountName(), err)
	}

	return nil
}

// IsKind returns true if the data holds a record of the given kind.
func IsKind(data []byte, name string) bool {
	return len(data) >= DiscriminatorSize &&
		bytes.Equal(data[:DiscriminatorSize], Discriminator(name))
}

// Store provides the create, read and mutate primitives over a snapshot.
type Store struct {
	snap store.Snapshot
}

// NewStore returns a store working on the snapshot.
func NewStore(snap store.Snapshot) Store {
	return Store{snap: snap}
}

// Exists returns true if a record of any kind lives at the address.
func (s Store) Exists(addr address.Address) (bool, error) {
	data, err := s.snap.Get(addr[:])
	if err != nil {
		return false, xerrors.Errorf("failed to read account: %v", err)
	}

	return data != nil, nil
}

// Create stores the record at the address. It fails with AlreadyExists if the
// address is occupied.
func (s Store) Create(addr address.Address, rec Record) error {
	found, err := s.Exists(addr)
	if err != nil {
		return err
	}

	if found {
		return xerrors.Errorf("account %s: %w", addr, execution.ErrAlreadyExists)
	}

	return s.write(addr, rec)
}

// Read populates the record with the value stored at the address. It fails
// with NotFound if the address is empty or holds a record of another kind.
func (s Store) Read(addr address.Address, rec Record) error {
	data, err := s.snap.Get(addr[:])
	if err != nil {
		return xerrors.Errorf("failed to read account: %v", err)
	}

	if data == nil {
		return xerrors.Errorf("account %s: %w", addr, execution.ErrNotFound)
	}

	if !IsKind(data, rec.AccountName()) {
		return xerrors.Errorf("account %s is not a %s: %w", addr, rec.AccountName(), execution.ErrNotFound)
	}

	err = Decode(data, rec)
	if err != nil {
		return xerrors.Errorf("corrupted account %s: %v", addr, err)
	}

	return nil
}

// Mutate reads the record at the address, applies the function and writes the
// result back. Nothing is written if the function fails.
func (s Store) Mutate(addr address.Address, rec Record, fn func() error) error {
	err := s.Read(addr, rec)
	if err != nil {
		return err
	}

	err = fn()
	if err != nil {
		return err
	}

	return s.write(addr, rec)
}

// ForEach calls the function for every record of the kind of the given record.
// The record is populated before each call, in ascending address order.
func (s Store) ForEach(rec Record, fn func(addr address.Address) error) error {
	return s.snap.Scan(nil, func(key, value []byte) error {
		if len(key) != len(address.Address{}) || !IsKind(value, rec.AccountName()) {
			return nil
		}

		err := Decode(value, rec)
		if err != nil {
			return xerrors.Errorf("corrupted account %x: %v", key, err)
		}

		return fn(solana.PublicKeyFromBytes(key))
	})
}

func (s Store) write(addr address.Address, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	err = s.snap.Set(addr[:], data)
	if err != nil {
		return xerrors.Errorf("failed to write account: %v", err)
	}

	return nil
}

// Package ordering defines the interface of the ordering service. The
// high-level purpose of this service is to apply the instructions one after
// the other and to confirm the outcome of each of them.
//
// A confirmation is signed by the key of the service. The confirmations of the
// accepted instructions form a chain: each one commits to the hash of the
// previous one so that a client can detect a ledger that rewrites its
// history.
package ordering

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/store"
	"go.dedis.ch/contest/core/txn"
	"go.dedis.ch/contest/crypto"
	"golang.org/x/xerrors"
)

// GenesisHash is the previous hash of the very first confirmation.
var GenesisHash = make([]byte, 32)

// Confirmation is the outcome of an instruction as stated by the ordering
// service.
type Confirmation struct {
	// Index is the height of the ledger after an accepted instruction, or the
	// height it would have had for a rejected one.
	Index uint64

	// ID is the digest of the instruction.
	ID []byte

	Accepted bool

	// Code and Name identify the failure of a rejected instruction. A zero
	// code means the instruction was accepted.
	Code uint32
	Name string

	Message string

	CommittedAt time.Time

	// Previous is the hash of the confirmation of the previous accepted
	// instruction, or GenesisHash for the first one.
	Previous []byte

	// Hash is the fingerprint of the confirmation, and Signature is the
	// signature of the hash by the ordering service.
	Hash      []byte
	Signature []byte
}

// Fingerprint writes a deterministic binary representation of the
// confirmation. The message, the hash and the signature are excluded.
func (c Confirmation) Fingerprint(w io.Writer) error {
	buffer := make([]byte, 8+4+1+8)
	binary.LittleEndian.PutUint64(buffer, c.Index)
	binary.LittleEndian.PutUint32(buffer[8:], c.Code)

	if c.Accepted {
		buffer[12] = 1
	}

	binary.LittleEndian.PutUint64(buffer[13:], uint64(c.CommittedAt.UnixNano()))

	for _, field := range [][]byte{buffer, c.Previous, c.ID, []byte(c.Name)} {
		_, err := w.Write(field)
		if err != nil {
			return xerrors.Errorf("couldn't write confirmation: %v", err)
		}
	}

	return nil
}

// Verify checks that the hash matches the content of the confirmation and
// that the signature is valid for the given public key.
func (c Confirmation) Verify(f crypto.HashFactory, pubkey crypto.PublicKey, sigs crypto.SignatureFactory) error {
	h := f.New()

	err := c.Fingerprint(h)
	if err != nil {
		return xerrors.Errorf("failed to fingerprint: %v", err)
	}

	if string(h.Sum(nil)) != string(c.Hash) {
		return xerrors.New("hash does not match the confirmation")
	}

	sig, err := sigs.FromBytes(c.Signature)
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	err = pubkey.Verify(c.Hash, sig)
	if err != nil {
		return xerrors.Errorf("verify failed: %v", err)
	}

	return nil
}

// Event is the event emitted after each instruction.
type Event struct {
	Confirmation
}

// Service is the interface of an ordering service. It provides the primitives
// to apply instructions in order and to read the resulting state.
type Service interface {
	// Submit applies the instruction and blocks until its confirmation is
	// available or the context is done. A rejected instruction returns a
	// confirmation, an error means the instruction could not be processed.
	Submit(ctx context.Context, tx txn.Transaction) (Confirmation, error)

	// GetReceipt returns the confirmation of the accepted instruction with the
	// given digest.
	GetReceipt(id []byte) (Confirmation, error)

	// GetNonce returns the number of instructions of the identity that have
	// been accepted.
	GetNonce(ident access.Identity) (uint64, error)

	// View runs the function against the latest committed state.
	View(fn func(snap store.Snapshot) error) error

	// GetPublicKey returns the key that signs the confirmations.
	GetPublicKey() crypto.PublicKey

	// Watch returns a channel populated with the confirmations until the
	// context is done.
	Watch(ctx context.Context) <-chan Event

	Close() error
}

// Err returns nil for an accepted instruction, otherwise an error that wraps
// the failure of the taxonomy when the code is known.
func (c Confirmation) Err() error {
	if c.Accepted {
		return nil
	}

	cause := execution.FromCode(c.Code)
	if cause == nil {
		return xerrors.Errorf("instruction rejected: %s", c.Message)
	}

	return xerrors.Errorf("%s: %w", c.Message, cause)
}

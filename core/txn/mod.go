// Package txn defines the abstraction of the instructions.
//
// An instruction is a contract input. It is uniquely identifiable via a digest
// and it is created by an identity that the contracts use for access control.
// Besides its arguments, an instruction names the accounts it touches. The
// ledger derives those accounts on its own and refuses the instruction when
// they differ.
//
// The manager helps to create instructions as the nonce needs to be unique for
// two identical instructions to have different digests.
package txn

import (
	"io"

	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
)

// Transaction is what triggers a contract execution by passing it as part of
// the input.
type Transaction interface {
	// Fingerprint writes a deterministic binary representation of the
	// instruction.
	Fingerprint(w io.Writer) error

	// GetID returns the unique identifier for the transaction.
	GetID() []byte

	// GetNonce returns the nonce of the transaction.
	GetNonce() uint64

	// GetIdentity returns the identity that created the transaction.
	GetIdentity() access.Identity

	// GetArg is a getter for the arguments of the transaction.
	GetArg(key string) []byte

	// GetAccount returns the address of the named account and true if it is
	// set, otherwise false.
	GetAccount(name string) (address.Address, bool)
}

// Arg is a generic argument that can be stored in a transaction.
type Arg struct {
	Key   string
	Value []byte
}

// Account is a named address an instruction touches.
type Account struct {
	Name    string
	Address address.Address
}

// Manager is a manager to create transaction. It can help creating
// transactions when some information is required like the current nonce.
type Manager interface {
	Make(accounts []Account, args ...Arg) (Transaction, error)

	Sync() error
}

// Package access defines the identities that can sign instructions and the
// checks the contracts perform on them.
package access

import (
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/crypto"
	"golang.org/x/xerrors"
)

// Identity is an abstraction to uniquely identify a signer. The address of an
// identity is the owner stored in the records it creates.
type Identity interface {
	crypto.PublicKey

	// GetAddress returns the ledger address the identity owns.
	GetAddress() address.Address
}

// Match returns nil if the identity owns the expected address, otherwise an
// error wrapping the given kind.
func Match(kind error, ident Identity, expected address.Address) error {
	if ident == nil {
		return xerrors.Errorf("missing identity: %w", kind)
	}

	if !ident.GetAddress().Equals(expected) {
		return xerrors.Errorf("%s is not %s: %w", ident.GetAddress(), expected, kind)
	}

	return nil
}

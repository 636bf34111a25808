// Package crypto defines the cryptographic primitives used by the ledger.
//
// Two schemes implement the abstraction: the wallet scheme (standard ed25519,
// the keys participants sign their instructions with) and the schnorr scheme
// the sequencer uses to sign its confirmations.
package crypto

import (
	"encoding"
	"hash"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler

	// Verify returns nil if the signature matches the message for this public
	// key.
	Verify(msg []byte, sig Signature) error

	// Equal returns true if the other object is the same public key.
	Equal(other interface{}) bool
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler

	// Equal returns true if the other signature is the same.
	Equal(other Signature) bool
}

// PublicKeyFactory is a factory to create public keys.
type PublicKeyFactory interface {
	FromBytes(data []byte) (PublicKey, error)
}

// SignatureFactory is a factory to create signatures.
type SignatureFactory interface {
	FromBytes(data []byte) (Signature, error)
}

// Signer provides the primitives to sign and verify signatures.
type Signer interface {
	encoding.BinaryMarshaler

	GetPublicKeyFactory() PublicKeyFactory
	GetSignatureFactory() SignatureFactory
	GetPublicKey() PublicKey
	Sign(msg []byte) (Signature, error)
}

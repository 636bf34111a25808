// Package wallet implements the signer of the participants of the ledger.
//
// A wallet is a standard ed25519 key pair. Its public key is also the address
// of the participant, from which the addresses of its profile, quiz states and
// vote receipts are derived. Wallets are stored in the keygen format, a JSON
// array of the 64 bytes of the private key.
package wallet

import (
	"bytes"
	"encoding/json"

	"github.com/gagliardetto/solana-go"
	"go.dedis.ch/contest/crypto"
	"golang.org/x/xerrors"
)

// Algorithm is the name of the signature scheme of the wallets.
const Algorithm = "ED25519"

const privateKeySize = 64

// PublicKey is the public key of a wallet. It doubles as the address of the
// owner.
//
// - implements crypto.PublicKey
type PublicKey struct {
	key solana.PublicKey
}

// NewPublicKey returns the public key of the address.
func NewPublicKey(key solana.PublicKey) PublicKey {
	return PublicKey{key: key}
}

// GetAddress returns the address of the owner of the public key.
func (pk PublicKey) GetAddress() solana.PublicKey {
	return pk.key
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the 32 bytes of
// the key.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return pk.key.Bytes(), nil
}

// MarshalText implements encoding.TextMarshaler. It returns the base58
// representation of the key.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.key.String()), nil
}

// Verify implements crypto.PublicKey. It returns nil if the signature matches
// the message for this public key.
func (pk PublicKey) Verify(msg []byte, sig crypto.Signature) error {
	signature, ok := sig.(Signature)
	if !ok {
		return xerrors.Errorf("invalid signature type '%T'", sig)
	}

	if !signature.sig.Verify(pk.key, msg) {
		return xerrors.Errorf("signature does not match key %s", pk.key)
	}

	return nil
}

// Equal implements crypto.PublicKey. It returns true if the other public key
// is the same.
func (pk PublicKey) Equal(other interface{}) bool {
	pubkey, ok := other.(PublicKey)
	if !ok {
		return false
	}

	return pubkey.key.Equals(pk.key)
}

// String implements fmt.Stringer.
func (pk PublicKey) String() string {
	return pk.key.String()
}

// Signature is an ed25519 signature produced by a wallet.
//
// - implements crypto.Signature
type Signature struct {
	sig solana.Signature
}

// NewSignature returns the signature wrapping the raw one.
func NewSignature(sig solana.Signature) Signature {
	return Signature{sig: sig}
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the 64 bytes of
// the signature.
func (s Signature) MarshalBinary() ([]byte, error) {
	return append([]byte{}, s.sig[:]...), nil
}

// Equal implements crypto.Signature.
func (s Signature) Equal(other crypto.Signature) bool {
	o, ok := other.(Signature)
	if !ok {
		return false
	}

	return bytes.Equal(s.sig[:], o.sig[:])
}

// String implements fmt.Stringer. It returns the base58 representation of the
// signature.
func (s Signature) String() string {
	return s.sig.String()
}

// publicKeyFactory creates wallet public keys from their bytes.
//
// - implements crypto.PublicKeyFactory
type publicKeyFactory struct{}

// NewPublicKeyFactory returns a new instance of the factory.
func NewPublicKeyFactory() crypto.PublicKeyFactory {
	return publicKeyFactory{}
}

// FromBytes implements crypto.PublicKeyFactory.
func (publicKeyFactory) FromBytes(data []byte) (crypto.PublicKey, error) {
	if len(data) != solana.PublicKeyLength {
		return nil, xerrors.Errorf("invalid key length %d", len(data))
	}

	return PublicKey{key: solana.PublicKeyFromBytes(data)}, nil
}

// signatureFactory creates wallet signatures from their bytes.
//
// - implements crypto.SignatureFactory
type signatureFactory struct{}

// NewSignatureFactory returns a new instance of the factory.
func NewSignatureFactory() crypto.SignatureFactory {
	return signatureFactory{}
}

// FromBytes implements crypto.SignatureFactory.
func (signatureFactory) FromBytes(data []byte) (crypto.Signature, error) {
	var sig solana.Signature
	if len(data) != len(sig) {
		return nil, xerrors.Errorf("invalid signature length %d", len(data))
	}

	copy(sig[:], data)

	return Signature{sig: sig}, nil
}

// Signer is the wallet of a participant.
//
// - implements crypto.Signer
type Signer struct {
	key solana.PrivateKey
}

// NewSigner returns a new random wallet.
func NewSigner() (Signer, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Signer{}, xerrors.Errorf("failed to generate key: %v", err)
	}

	return Signer{key: key}, nil
}

// NewSignerFromBytes restores the wallet from its keygen representation.
func NewSignerFromBytes(data []byte) (Signer, error) {
	var values []int

	err := json.Unmarshal(data, &values)
	if err != nil {
		return Signer{}, xerrors.Errorf("failed to decode keygen file: %v", err)
	}

	if len(values) != privateKeySize {
		return Signer{}, xerrors.Errorf("invalid key length %d", len(values))
	}

	key := make(solana.PrivateKey, privateKeySize)
	for i, v := range values {
		if v < 0 || v > 255 {
			return Signer{}, xerrors.Errorf("invalid byte %d at index %d", v, i)
		}

		key[i] = byte(v)
	}

	return Signer{key: key}, nil
}

// GetAddress returns the address of the wallet.
func (s Signer) GetAddress() solana.PublicKey {
	return s.key.PublicKey()
}

// GetPublicKeyFactory implements crypto.Signer.
func (s Signer) GetPublicKeyFactory() crypto.PublicKeyFactory {
	return publicKeyFactory{}
}

// GetSignatureFactory implements crypto.Signer.
func (s Signer) GetSignatureFactory() crypto.SignatureFactory {
	return signatureFactory{}
}

// GetPublicKey implements crypto.Signer.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{key: s.key.PublicKey()}
}

// Sign implements crypto.Signer.
func (s Signer) Sign(msg []byte) (crypto.Signature, error) {
	sig, err := s.key.Sign(msg)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	return Signature{sig: sig}, nil
}

// MarshalBinary implements crypto.Signer. It returns the keygen
// representation of the wallet.
func (s Signer) MarshalBinary() ([]byte, error) {
	values := make([]int, len(s.key))
	for i, b := range s.key {
		values[i] = int(b)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode keygen file: %v", err)
	}

	return data, nil
}

// Generator generates new wallets for a file loader.
//
// - implements loader.Generator
type Generator struct{}

// Generate implements loader.Generator.
func (Generator) Generate() ([]byte, error) {
	signer, err := NewSigner()
	if err != nil {
		return nil, err
	}

	return signer.MarshalBinary()
}

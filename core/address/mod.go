// Package address implements the deterministic derivation of the storage
// addresses of the ledger.
//
// An address is derived from a list of seeds, a literal tag followed by the
// identities and counters the entity depends on, and from the program
// identifier that acts as the namespace. The derivation is the Solana program
// derived address algorithm: the result is guaranteed to be off the ed25519
// curve, so that no private key can ever sign for it. The ledger uses this
// property to own the minting authority.
//
// Because the same seeds always give the same address and the entity store
// refuses to create a record at an occupied address, the derivation is what
// makes votes and quiz attempts happen at most once.
package address

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

var curve = suites.MustFind("Ed25519")

// Address is the location of an entity in the ledger. It uses the same
// representation as an identity, 32 bytes displayed in base58.
type Address = solana.PublicKey

// DefaultProgramID is the namespace used when none is configured.
var DefaultProgramID = solana.MustPublicKeyFromBase58("2Hg6qeZGBsMPDDM1RY65Ucwk5JbLrF3D3P9qdYbEfmSU")

// Literal tags of the entity kinds.
const (
	TagProfile       = "profile"
	TagMintAuthority = "mint_authority"
	TagMint          = "mint"
	TagQuizConfig    = "quiz_config"
	TagQuizState     = "quiz_state"
	TagVote          = "vote"
)

// Deriver derives the addresses of a single program.
type Deriver struct {
	program solana.PublicKey
}

// NewDeriver returns a deriver for the given program identifier.
func NewDeriver(program solana.PublicKey) Deriver {
	return Deriver{
		program: program,
	}
}

// GetProgram returns the program identifier that namespaces the addresses.
func (d Deriver) GetProgram() solana.PublicKey {
	return d.program
}

// Derive returns the address and the canonical bump seed for the given seeds.
// It fails for more than 15 seeds or a seed longer than 32 bytes. The seeds are
// hashed as a plain concatenation, so that two lists are distinct only if their
// concatenations differ. The kinds below never share a concatenation as each
// has either its own tag or its own length.
func (d Deriver) Derive(seeds ...[]byte) (Address, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, d.program)
	if err != nil {
		return Address{}, 0, xerrors.Errorf("failed to derive address: %v", err)
	}

	return addr, bump, nil
}

// Profile returns the address of the profile of the owner.
func (d Deriver) Profile(owner solana.PublicKey) (Address, error) {
	return d.address([]byte(TagProfile), owner.Bytes())
}

// MintAuthority returns the address that owns the minting rights once they
// have been delegated to the ledger.
func (d Deriver) MintAuthority() (Address, error) {
	return d.address([]byte(TagMintAuthority))
}

// Mint returns the address of the reward token mint.
func (d Deriver) Mint() (Address, error) {
	return d.address([]byte(TagMint))
}

// QuizConfig returns the address of the singleton quiz configuration.
func (d Deriver) QuizConfig() (Address, error) {
	return d.address([]byte(TagQuizConfig))
}

// QuizState returns the address of the quiz attempt of the participant for the
// given version.
func (d Deriver) QuizState(participant solana.PublicKey, version uint64) (Address, error) {
	return d.address([]byte(TagQuizState), participant.Bytes(), EncodeVersion(version))
}

// VoteReceipt returns the address of the receipt proving that the voter voted
// for the submission.
func (d Deriver) VoteReceipt(voter, submission solana.PublicKey) (Address, error) {
	return d.address([]byte(TagVote), voter.Bytes(), submission.Bytes())
}

func (d Deriver) address(seeds ...[]byte) (Address, error) {
	addr, _, err := d.Derive(seeds...)
	if err != nil {
		return Address{}, err
	}

	return addr, nil
}

// EncodeVersion returns the seed representation of a version counter, 8 bytes
// in little endian.
func EncodeVersion(version uint64) []byte {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, version)

	return buffer
}

// Parse returns the address of its base58 representation.
func Parse(text string) (Address, error) {
	addr, err := solana.PublicKeyFromBase58(text)
	if err != nil {
		return Address{}, xerrors.Errorf("malformed address '%s': %v", text, err)
	}

	return addr, nil
}

// IsOnCurve returns true if the address is a point of the ed25519 curve, which
// means it may be the public key of a wallet. Derived addresses never are.
func IsOnCurve(addr Address) bool {
	return curve.Point().UnmarshalBinary(addr[:]) == nil
}

package address

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestDeriver_Derive(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	require.Equal(t, DefaultProgramID, d.GetProgram())

	addr1, bump1, err := d.Derive([]byte("a"), []byte("b"))
	require.NoError(t, err)

	addr2, bump2, err := d.Derive([]byte("a"), []byte("b"))
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Equal(t, bump1, bump2)

	addr3, _, err := d.Derive([]byte("a"), []byte("c"))
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr3)

	// The seeds are concatenated without length prefix.
	addr6, _, err := d.Derive([]byte("ab"))
	require.NoError(t, err)
	require.Equal(t, addr1, addr6)

	other := NewDeriver(solana.SystemProgramID)
	addr4, _, err := other.Derive([]byte("a"), []byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr4)

	// The canonical bump must reproduce the same address.
	addr5, err := solana.CreateProgramAddress([][]byte{[]byte("a"), []byte("b"), {bump1}}, DefaultProgramID)
	require.NoError(t, err)
	require.Equal(t, addr1, addr5)
}

func TestDeriver_Derive_BadSeeds(t *testing.T) {
	d := NewDeriver(DefaultProgramID)

	_, _, err := d.Derive(bytes.Repeat([]byte{1}, 33))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to derive address: ")

	seeds := make([][]byte, 16)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}

	_, _, err = d.Derive(seeds...)
	require.Error(t, err)
}

func TestDeriver_Kinds(t *testing.T) {
	d := NewDeriver(DefaultProgramID)

	alice := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0xaa}, 32))
	bob := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0xbb}, 32))

	profile, err := d.Profile(alice)
	require.NoError(t, err)

	expected, _, err := d.Derive([]byte("profile"), alice.Bytes())
	require.NoError(t, err)
	require.Equal(t, expected, profile)

	authority, err := d.MintAuthority()
	require.NoError(t, err)

	mint, err := d.Mint()
	require.NoError(t, err)

	config, err := d.QuizConfig()
	require.NoError(t, err)

	state1, err := d.QuizState(alice, 1)
	require.NoError(t, err)

	state2, err := d.QuizState(alice, 2)
	require.NoError(t, err)

	stateBob, err := d.QuizState(bob, 1)
	require.NoError(t, err)

	receipt, err := d.VoteReceipt(alice, bob)
	require.NoError(t, err)

	reverse, err := d.VoteReceipt(bob, alice)
	require.NoError(t, err)

	all := []Address{profile, authority, mint, config, state1, state2, stateBob, receipt, reverse}
	seen := map[Address]struct{}{}

	for _, addr := range all {
		seen[addr] = struct{}{}
	}

	require.Len(t, seen, len(all))
}

func TestEncodeVersion(t *testing.T) {
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, EncodeVersion(1))
	require.Equal(t, []byte{0, 1, 0, 0, 0, 0, 0, 0}, EncodeVersion(256))
}

func TestParse(t *testing.T) {
	addr, err := Parse(DefaultProgramID.String())
	require.NoError(t, err)
	require.Equal(t, DefaultProgramID, addr)

	_, err = Parse("not-base58!")
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed address 'not-base58!': ")
}

func TestIsOnCurve(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	require.True(t, IsOnCurve(key.PublicKey()))

	derived, err := NewDeriver(DefaultProgramID).MintAuthority()
	require.NoError(t, err)

	require.False(t, IsOnCurve(derived))
}

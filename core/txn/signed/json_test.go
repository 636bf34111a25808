package signed

import (
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/contest/crypto"
	"go.dedis.ch/contest/internal/testing/fake"
)

func TestTransaction_MarshalJSON(t *testing.T) {
	signer := newSigner(t)
	addr := makeAddress(t, "submission")

	tx, err := NewTransaction(7, identity(signer),
		WithArg("title", []byte("Asturias")),
		WithAccount("submission", addr))
	require.NoError(t, err)

	_, err = json.Marshal(tx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "signature is missing")

	require.NoError(t, tx.Sign(signer))

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	m := TransactionJSON{}
	require.NoError(t, json.Unmarshal(data, &m))
	require.Equal(t, uint64(7), m.Nonce)
	require.Equal(t, []byte("Asturias"), m.Args["title"])
	require.Equal(t, addr.String(), m.Accounts["submission"])
	require.Equal(t, signer.GetAddress().String(), m.Identity)

	tx.sig = fake.NewBadSignature()
	_, err = json.Marshal(tx)
	require.Error(t, err)
	require.Contains(t, err.Error(), fake.Err("failed to encode signature"))

	tx.sig = fake.Signature{}
	tx.pubkey = fake.NewBadPublicKey()
	_, err = json.Marshal(tx)
	require.Error(t, err)
	require.Contains(t, err.Error(), fake.Err("failed to encode public key"))
}

func TestTransactionFactory_TransactionOf(t *testing.T) {
	signer := newSigner(t)
	addr := makeAddress(t, "submission")

	tx, err := NewTransaction(7, identity(signer),
		WithArg("title", []byte("Asturias")),
		WithAccount("submission", addr))
	require.NoError(t, err)
	require.NoError(t, tx.Sign(signer))

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	fac := NewTransactionFactory()

	decoded, err := fac.TransactionOf(data)
	require.NoError(t, err)
	require.Equal(t, tx.GetID(), decoded.GetID())
	require.True(t, tx.GetSignature().Equal(decoded.GetSignature()))

	found, ok := decoded.GetAccount("submission")
	require.True(t, ok)
	require.Equal(t, addr, found)

	_, err = fac.TransactionOf([]byte("{"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal: ")

	_, err = fac.TransactionOf([]byte(`{"identity":"0OIl"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed identity: ")

	_, err = fac.TransactionOf([]byte(`{"identity":"2"}`))
	require.EqualError(t, err, "failed to decode public key: invalid key length 1")

	ident := base58.Encode(addr[:])

	_, err = fac.TransactionOf([]byte(`{"identity":"` + ident + `"}`))
	require.EqualError(t, err, "signature is missing")

	_, err = fac.TransactionOf([]byte(`{"identity":"` + ident + `","signature":"0"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed signature: ")

	_, err = fac.TransactionOf([]byte(`{"identity":"` + ident + `","signature":"2"}`))
	require.EqualError(t, err, "failed to decode signature: invalid signature length 1")

	m := TransactionJSON{}
	require.NoError(t, json.Unmarshal(data, &m))

	m.Accounts["submission"] = "not-an-address"
	bad, err := json.Marshal(m)
	require.NoError(t, err)

	_, err = fac.TransactionOf(bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "account 'submission': malformed address")

	m.Accounts["submission"] = addr.String()
	m.Nonce = 8
	bad, err = json.Marshal(m)
	require.NoError(t, err)

	_, err = fac.TransactionOf(bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create tx: invalid signature: ")

	fac = NewTransactionFactoryWith(fake.NewPublicKeyFactory(fake.PublicKey{}), fake.NewSignatureFactory(fake.Signature{}))
	decoded, err = fac.TransactionOf(data)
	require.NoError(t, err)
	require.Equal(t, fake.PublicKey{}, decoded.GetIdentity())

	fac = NewTransactionFactoryWith(badKeyFactory{}, fake.NewSignatureFactory(fake.Signature{}))
	_, err = fac.TransactionOf(data)
	require.EqualError(t, err, "invalid identity of type 'signed.badPublicKey'")
}

// -----------------------------------------------------------------------------
// Utility functions

type badKeyFactory struct{}

func (badKeyFactory) FromBytes([]byte) (crypto.PublicKey, error) {
	return badPublicKey{}, nil
}

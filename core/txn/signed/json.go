package signed

import (
	"encoding/json"

	"github.com/mr-tron/base58"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/crypto"
	"go.dedis.ch/contest/crypto/wallet"
	"golang.org/x/xerrors"
)

// TransactionJSON is the JSON message of a transaction. Binary arguments are
// encoded in base64 while the accounts, the identity and the signature use
// base58 like the wallets do.
type TransactionJSON struct {
	Nonce     uint64            `json:"nonce"`
	Args      map[string][]byte `json:"args,omitempty"`
	Accounts  map[string]string `json:"accounts,omitempty"`
	Identity  string            `json:"identity"`
	Signature string            `json:"signature"`
}

// MarshalJSON implements json.Marshaler. It fails if the transaction is not
// signed.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	if t.sig == nil {
		return nil, xerrors.New("signature is missing")
	}

	sig, err := t.sig.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode signature: %v", err)
	}

	pubkey, err := t.pubkey.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode public key: %v", err)
	}

	accounts := make(map[string]string, len(t.accounts))
	for name, addr := range t.accounts {
		accounts[name] = addr.String()
	}

	m := TransactionJSON{
		Nonce:     t.nonce,
		Args:      t.args,
		Accounts:  accounts,
		Identity:  base58.Encode(pubkey),
		Signature: base58.Encode(sig),
	}

	return json.Marshal(m)
}

// TransactionFactory is a factory to deserialize transactions.
type TransactionFactory struct {
	pubkeyFac   crypto.PublicKeyFactory
	sigFac      crypto.SignatureFactory
	hashFactory crypto.HashFactory
}

// NewTransactionFactory returns a new factory for instructions signed by
// wallets.
func NewTransactionFactory() TransactionFactory {
	return TransactionFactory{
		pubkeyFac:   wallet.NewPublicKeyFactory(),
		sigFac:      wallet.NewSignatureFactory(),
		hashFactory: crypto.NewSha256Factory(),
	}
}

// NewTransactionFactoryWith returns a factory using the given key and signature
// factories.
func NewTransactionFactoryWith(pk crypto.PublicKeyFactory, sig crypto.SignatureFactory) TransactionFactory {
	return TransactionFactory{
		pubkeyFac:   pk,
		sigFac:      sig,
		hashFactory: crypto.NewSha256Factory(),
	}
}

// TransactionOf populates the transaction from the JSON data if appropriate,
// otherwise it returns an error. The signature is verified.
func (f TransactionFactory) TransactionOf(data []byte) (*Transaction, error) {
	m := TransactionJSON{}

	err := json.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	rawKey, err := base58.Decode(m.Identity)
	if err != nil {
		return nil, xerrors.Errorf("malformed identity: %v", err)
	}

	pubkey, err := f.pubkeyFac.FromBytes(rawKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode public key: %v", err)
	}

	ident, ok := pubkey.(access.Identity)
	if !ok {
		return nil, xerrors.Errorf("invalid identity of type '%T'", pubkey)
	}

	if m.Signature == "" {
		return nil, xerrors.New("signature is missing")
	}

	rawSig, err := base58.Decode(m.Signature)
	if err != nil {
		return nil, xerrors.Errorf("malformed signature: %v", err)
	}

	sig, err := f.sigFac.FromBytes(rawSig)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode signature: %v", err)
	}

	opts := make([]TransactionOption, 0, len(m.Args)+len(m.Accounts)+2)
	for key, value := range m.Args {
		opts = append(opts, WithArg(key, value))
	}

	for name, text := range m.Accounts {
		addr, err := address.Parse(text)
		if err != nil {
			return nil, xerrors.Errorf("account '%s': %v", name, err)
		}

		opts = append(opts, WithAccount(name, addr))
	}

	opts = append(opts, WithHashFactory(f.hashFactory), WithSignature(sig))

	tx, err := NewTransaction(m.Nonce, ident, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	return tx, nil
}

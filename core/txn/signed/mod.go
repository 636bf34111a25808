// Package signed is an implementation of the transaction abstraction.
//
// It uses a signature to make sure the identity owns the instruction. The nonce
// only makes two identical instructions distinct. A replay of an accepted
// instruction is detected by the sequencer with the digest.
package signed

import (
	"encoding/binary"
	"io"
	"sort"

	"go.dedis.ch/contest"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/txn"
	"go.dedis.ch/contest/crypto"
	"golang.org/x/xerrors"
)

// Transaction is a signed instruction naming the accounts it touches.
//
// - implements txn.Transaction
type Transaction struct {
	nonce    uint64
	args     map[string][]byte
	accounts map[string]address.Address
	pubkey   access.Identity
	sig      crypto.Signature
	hash     []byte
}

type template struct {
	Transaction

	hashFactory crypto.HashFactory
}

// TransactionOption is the type of options to create a transaction.
type TransactionOption func(*template)

// WithArg is an option to set an argument with the key and the value.
func WithArg(key string, value []byte) TransactionOption {
	return func(tmpl *template) {
		tmpl.args[key] = value
	}
}

// WithAccount is an option to name an account of the instruction.
func WithAccount(name string, addr address.Address) TransactionOption {
	return func(tmpl *template) {
		tmpl.accounts[name] = addr
	}
}

// WithSignature is an option to set a valid signature. The signature will be
// verified against the identity.
func WithSignature(sig crypto.Signature) TransactionOption {
	return func(tmpl *template) {
		tmpl.sig = sig
	}
}

// WithHashFactory is an option to set a different hash factory when creating a
// transaction.
func WithHashFactory(f crypto.HashFactory) TransactionOption {
	return func(tmpl *template) {
		tmpl.hashFactory = f
	}
}

// NewTransaction creates a new transaction with the provided nonce.
func NewTransaction(nonce uint64, pk access.Identity, opts ...TransactionOption) (*Transaction, error) {
	tmpl := template{
		Transaction: Transaction{
			nonce:    nonce,
			pubkey:   pk,
			args:     make(map[string][]byte),
			accounts: make(map[string]address.Address),
		},
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	h := tmpl.hashFactory.New()
	err := tmpl.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	tmpl.hash = h.Sum(nil)

	if tmpl.sig != nil {
		err := tmpl.pubkey.Verify(tmpl.hash, tmpl.sig)
		if err != nil {
			return nil, xerrors.Errorf("invalid signature: %v", err)
		}
	}

	return &tmpl.Transaction, nil
}

// GetID implements txn.Transaction. It returns the ID of the transaction.
func (t *Transaction) GetID() []byte {
	return t.hash
}

// GetNonce implements txn.Transaction. It returns the nonce of the transaction.
func (t *Transaction) GetNonce() uint64 {
	return t.nonce
}

// GetIdentity implements txn.Transaction. It returns the identity that signs
// the transaction.
func (t *Transaction) GetIdentity() access.Identity {
	return t.pubkey
}

// GetSignature returns the signature of the transaction.
func (t *Transaction) GetSignature() crypto.Signature {
	return t.sig
}

// GetArgs returns the sorted list of arguments available.
func (t *Transaction) GetArgs() []string {
	return sortedKeys(t.args)
}

// GetArg implements txn.Transaction. It returns the value of the argument if it
// is set, otherwise nil.
func (t *Transaction) GetArg(key string) []byte {
	return t.args[key]
}

// GetAccounts returns the sorted list of the names of the accounts.
func (t *Transaction) GetAccounts() []string {
	return sortedKeys(t.accounts)
}

// GetAccount implements txn.Transaction. It returns the address of the named
// account if it is set.
func (t *Transaction) GetAccount(name string) (address.Address, bool) {
	addr, found := t.accounts[name]
	return addr, found
}

// Sign signs the transaction and stores the signature.
func (t *Transaction) Sign(signer crypto.Signer) error {
	if len(t.hash) == 0 {
		return xerrors.New("missing digest in transaction")
	}

	if !signer.GetPublicKey().Equal(t.pubkey) {
		return xerrors.New("mismatch signer and identity")
	}

	sig, err := signer.Sign(t.hash)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	t.sig = sig

	return nil
}

// Verify returns nil if the transaction carries a signature of its identity.
func (t *Transaction) Verify() error {
	if t.sig == nil {
		return xerrors.New("signature is missing")
	}

	err := t.pubkey.Verify(t.hash, t.sig)
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	return nil
}

// Fingerprint implements txn.Transaction. It writes a deterministic binary
// representation of the transaction. Arguments and accounts are written in
// sorted order, each element prefixed with its length.
func (t *Transaction) Fingerprint(w io.Writer) error {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, t.nonce)

	_, err := w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write nonce: %v", err)
	}

	for _, key := range sortedKeys(t.args) {
		_, err = w.Write(appendField(appendField(nil, []byte(key)), t.args[key]))
		if err != nil {
			return xerrors.Errorf("couldn't write arg: %v", err)
		}
	}

	for _, name := range sortedKeys(t.accounts) {
		addr := t.accounts[name]

		_, err = w.Write(append(appendField(nil, []byte(name)), addr[:]...))
		if err != nil {
			return xerrors.Errorf("couldn't write account: %v", err)
		}
	}

	buffer, err = t.pubkey.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal public key: %v", err)
	}

	_, err = w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write public key: %v", err)
	}

	return nil
}

func appendField(buffer, field []byte) []byte {
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(len(field)))
	return append(buffer, field...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make(sort.StringSlice, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Sort(keys)

	return keys
}

// Client is the interface the manager is using to get the nonce of an identity.
// It allows a local implementation, or through a network client.
type Client interface {
	GetNonce(access.Identity) (uint64, error)
}

// TransactionManager is a manager to create signed transactions. It manages the
// nonce by itself and it can be synchronized with the number of instructions
// the ledger accepted from the identity.
//
// - implements txn.Manager
type TransactionManager struct {
	client  Client
	signer  crypto.Signer
	nonce   uint64
	hashFac crypto.HashFactory
}

// NewManager creates a new transaction manager.
//
// - implements txn.Manager
func NewManager(signer crypto.Signer, client Client) *TransactionManager {
	return &TransactionManager{
		client:  client,
		signer:  signer,
		nonce:   0,
		hashFac: crypto.NewSha256Factory(),
	}
}

// Make implements txn.Manager. It creates a transaction populated with the
// accounts and the arguments.
func (mgr *TransactionManager) Make(accounts []txn.Account, args ...txn.Arg) (txn.Transaction, error) {
	ident, ok := mgr.signer.GetPublicKey().(access.Identity)
	if !ok {
		return nil, xerrors.Errorf("invalid identity '%T'", mgr.signer.GetPublicKey())
	}

	opts := make([]TransactionOption, 0, len(accounts)+len(args)+1)
	for _, acc := range accounts {
		opts = append(opts, WithAccount(acc.Name, acc.Address))
	}

	for _, arg := range args {
		opts = append(opts, WithArg(arg.Key, arg.Value))
	}

	opts = append(opts, WithHashFactory(mgr.hashFac))

	tx, err := NewTransaction(mgr.nonce, ident, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	err = tx.Sign(mgr.signer)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	mgr.nonce++

	return tx, nil
}

// Sync implements txn.Manager. It fetches the next nonce of the signer.
func (mgr *TransactionManager) Sync() error {
	ident, ok := mgr.signer.GetPublicKey().(access.Identity)
	if !ok {
		return xerrors.Errorf("invalid identity '%T'", mgr.signer.GetPublicKey())
	}

	nonce, err := mgr.client.GetNonce(ident)
	if err != nil {
		return xerrors.Errorf("client: %v", err)
	}

	mgr.nonce = nonce

	contest.Logger.Debug().Uint64("nonce", nonce).Msg("manager synchronized")

	return nil
}

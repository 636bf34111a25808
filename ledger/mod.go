// Package ledger assembles the storage, the contracts and the sequencer into a
// node, and provides the reads of the committed state.
//
// A node is the single writer of its database. The instructions are applied
// by the sequencer while the reads are served from read-only transactions, so
// that a read always observes the state after a whole instruction.
package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.dedis.ch/contest/contracts/contest"
	"go.dedis.ch/contest/contracts/quiz"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
	"go.dedis.ch/contest/core/execution/native"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/core/ordering/serial"
	"go.dedis.ch/contest/core/store"
	"go.dedis.ch/contest/core/store/kv"
	"go.dedis.ch/contest/core/txn"
	"go.dedis.ch/contest/crypto"
	"golang.org/x/xerrors"
)

// Config is the configuration of the storage of a node.
type Config struct {
	// Path is the location of the database. An empty path with the pebble
	// engine opens an in-memory database.
	Path string

	Engine kv.Engine

	// Program is the namespace of the derived addresses.
	Program solana.PublicKey

	QueueSize int
}

// Node is a ledger node.
type Node struct {
	deriver  address.Deriver
	builder  Builder
	db       kv.DB
	ordering *serial.Service
}

// Open opens the database of the configuration and starts a node on it. The
// signer signs the confirmations.
func Open(cfg Config, signer crypto.Signer, opts ...serial.Option) (*Node, error) {
	db, err := kv.Open(cfg.Engine, cfg.Path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open database: %v", err)
	}

	if cfg.QueueSize > 0 {
		opts = append(opts, serial.WithQueueSize(cfg.QueueSize))
	}

	program := cfg.Program
	if program.IsZero() {
		program = address.DefaultProgramID
	}

	node, err := NewNode(db, address.NewDeriver(program), signer, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	return node, nil
}

// NewNode starts a node on an open database. The node takes the ownership of
// the database.
func NewNode(db kv.DB, deriver address.Deriver, signer crypto.Signer, opts ...serial.Option) (*Node, error) {
	exec := native.NewExecution()
	token.RegisterContract(exec, token.NewContract(deriver))
	contest.RegisterContract(exec, contest.NewContract(deriver))
	quiz.RegisterContract(exec, quiz.NewContract(deriver))

	srvc, err := serial.NewService(db, exec, signer, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to start sequencer: %v", err)
	}

	node := &Node{
		deriver:  deriver,
		builder:  NewBuilder(deriver),
		db:       db,
		ordering: srvc,
	}

	return node, nil
}

// GetDeriver returns the deriver of the addresses of the node.
func (n *Node) GetDeriver() address.Deriver {
	return n.deriver
}

// GetBuilder returns the builder of the instructions of the node.
func (n *Node) GetBuilder() Builder {
	return n.builder
}

// GetOrdering returns the sequencer of the node.
func (n *Node) GetOrdering() *serial.Service {
	return n.ordering
}

// Apply creates the instruction with the manager and waits for its
// confirmation. A rejected instruction returns its confirmation along with
// the error, and the manager is synchronized again as the nonce was not
// consumed.
func (n *Node) Apply(ctx context.Context, mgr txn.Manager, in Instruction) (ordering.Confirmation, error) {
	tx, err := mgr.Make(in.Accounts, in.Args...)
	if err != nil {
		return ordering.Confirmation{}, xerrors.Errorf("failed to make tx: %v", err)
	}

	conf, err := n.ordering.Submit(ctx, tx)
	if err != nil {
		return conf, xerrors.Errorf("failed to submit: %v", err)
	}

	if !conf.Accepted {
		err = mgr.Sync()
		if err != nil {
			return conf, xerrors.Errorf("failed to sync manager: %v", err)
		}
	}

	return conf, conf.Err()
}

// Read runs the function with a store of the latest committed state.
func (n *Node) Read(fn func(st entity.Store) error) error {
	return n.ordering.View(func(snap store.Snapshot) error {
		return fn(entity.NewStore(snap))
	})
}

// Close stops the sequencer and closes the database.
func (n *Node) Close() error {
	err := n.ordering.Close()
	if err != nil {
		return xerrors.Errorf("failed to close sequencer: %v", err)
	}

	err = n.db.Close()
	if err != nil {
		return xerrors.Errorf("failed to close database: %v", err)
	}

	return nil
}

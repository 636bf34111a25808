// Package controller implements the initializer that runs the ledger of a node
// and the administration commands executed by the daemon.
//
// The administration instructions are signed by the admin wallet of the node,
// which is created in the config folder the first time the node starts.
package controller

import (
	"context"
	"path/filepath"
	"sync"

	"go.dedis.ch/contest"
	"go.dedis.ch/contest/cli"
	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/core/store/kv"
	"go.dedis.ch/contest/core/txn/signed"
	"go.dedis.ch/contest/crypto/ed25519"
	"go.dedis.ch/contest/crypto/loader"
	"go.dedis.ch/contest/crypto/wallet"
	"go.dedis.ch/contest/ledger"
	"golang.org/x/xerrors"
)

const (
	defaultDBName        = "ledger.db"
	defaultSequencerName = "sequencer.key"
	defaultAdminName     = "admin.key"
)

// NewController returns a new initializer of the ledger.
func NewController() node.Initializer {
	return minimal{}
}

// minimal is an initializer that opens the ledger when the node starts.
//
// - implements node.Initializer
type minimal struct{}

// SetCommands implements node.Initializer. It sets the flags of the storage and
// the administration commands.
func (m minimal) SetCommands(builder node.Builder) {
	builder.SetStartFlags(
		cli.StringFlag{
			Name:   "db",
			Usage:  "path to the database (default <config>/" + defaultDBName + ")",
			EnvVar: "CONTEST_DB",
		},
		cli.StringFlag{
			Name:   "engine",
			Usage:  "storage engine: bolt or pebble (default bolt)",
			EnvVar: "CONTEST_ENGINE",
		},
		cli.StringFlag{
			Name:   "program",
			Usage:  "program id namespacing the derived addresses",
			EnvVar: "CONTEST_PROGRAM",
		},
		cli.IntFlag{
			Name:   "queue",
			Usage:  "number of instructions waiting for the sequencer",
			EnvVar: "CONTEST_QUEUE",
		},
		cli.StringFlag{
			Name:   "sequencer-key",
			Usage:  "path to the key signing the confirmations (default <config>/" + defaultSequencerName + ")",
			EnvVar: "CONTEST_SEQUENCER_KEY",
		},
		cli.StringFlag{
			Name:   "admin-key",
			Usage:  "path to the admin wallet (default <config>/" + defaultAdminName + ")",
			EnvVar: "CONTEST_ADMIN_KEY",
		},
	)

	setLedgerCommands(builder)
	setMintCommands(builder)
	setSubmissionCommands(builder)
	setQuizCommands(builder)
}

// OnStart implements node.Initializer. It opens the ledger and injects it.
func (m minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	dir := flags.Path("config")

	cfg := ledger.Config{
		Path:      pathOrDefault(flags.Path("db"), dir, defaultDBName),
		Engine:    kv.Engine(flags.String("engine")),
		QueueSize: flags.Int("queue"),
	}

	program := flags.String("program")
	if program != "" {
		addr, err := address.Parse(program)
		if err != nil {
			return xerrors.Errorf("invalid program: %v", err)
		}

		cfg.Program = addr
	}

	seqPath := pathOrDefault(flags.Path("sequencer-key"), dir, defaultSequencerName)

	data, err := loader.NewFileLoader(seqPath).LoadOrCreate(ed25519.Generator{})
	if err != nil {
		return xerrors.Errorf("failed to load sequencer key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return xerrors.Errorf("failed to decode sequencer key: %v", err)
	}

	adminPath := pathOrDefault(flags.Path("admin-key"), dir, defaultAdminName)

	data, err = loader.NewFileLoader(adminPath).LoadOrCreate(wallet.Generator{})
	if err != nil {
		return xerrors.Errorf("failed to load admin key: %v", err)
	}

	adminSigner, err := wallet.NewSignerFromBytes(data)
	if err != nil {
		return xerrors.Errorf("failed to decode admin key: %v", err)
	}

	n, err := ledger.Open(cfg, signer)
	if err != nil {
		return xerrors.Errorf("failed to open ledger: %v", err)
	}

	mgr := signed.NewManager(adminSigner, n.GetOrdering())

	err = mgr.Sync()
	if err != nil {
		n.Close()
		return xerrors.Errorf("failed to sync admin: %v", err)
	}

	inj.Inject(n)
	inj.Inject(&admin{signer: adminSigner, mgr: mgr})

	contest.Logger.Info().
		Str("db", cfg.Path).
		Stringer("program", n.GetDeriver().GetProgram()).
		Stringer("admin", adminSigner.GetAddress()).
		Msg("ledger started")

	return nil
}

// OnStop implements node.Initializer. It closes the ledger.
func (m minimal) OnStop(inj node.Injector) error {
	n, err := node.Resolve[*ledger.Node](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	err = n.Close()
	if err != nil {
		return xerrors.Errorf("failed to close ledger: %v", err)
	}

	return nil
}

// admin is the wallet of the node signing the administration instructions.
type admin struct {
	sync.Mutex

	signer wallet.Signer
	mgr    *signed.TransactionManager
}

// apply signs the instruction and waits for its confirmation. The manager is
// not safe for concurrent use.
func (a *admin) apply(ctx context.Context, n *ledger.Node, in ledger.Instruction) (ordering.Confirmation, error) {
	a.Lock()
	defer a.Unlock()

	return n.Apply(ctx, a.mgr, in)
}

func pathOrDefault(path, dir, name string) string {
	if path != "" {
		return path
	}

	return filepath.Join(dir, name)
}

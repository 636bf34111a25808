package controller

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/rs/xid"
	"go.dedis.ch/contest/cli"
	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/core/txn/signed"
	"go.dedis.ch/contest/crypto/loader"
	"go.dedis.ch/contest/crypto/wallet"
	"go.dedis.ch/contest/ledger"
	"go.dedis.ch/contest/ledger/api"
	"golang.org/x/xerrors"
)

const (
	defaultURL     = "http://127.0.0.1:8080"
	defaultKey     = "wallet.key"
	defaultTimeout = 30 * time.Second
)

func commonFlags(flags ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		cli.StringFlag{
			Name:   "url",
			Usage:  "url of the node",
			Value:  defaultURL,
			EnvVar: "CONTEST_URL",
		},
		cli.StringFlag{
			Name:   "key",
			Usage:  "path to the wallet",
			Value:  defaultKey,
			EnvVar: "CONTEST_KEY",
		},
	}, flags...)
}

func setClientCommands(builder node.Builder, p participant) {
	cmd := builder.SetCommand("client")
	cmd.SetDescription("take part in the contest and the quiz through the API of a node")

	sub := cmd.SetSubCommand("key")
	sub.SetDescription("create the wallet, or print its address if it exists")
	sub.SetFlags(commonFlags()...)
	sub.SetAction(p.key)

	sub = cmd.SetSubCommand("submit")
	sub.SetDescription("create a submission owned by the wallet")
	sub.SetFlags(commonFlags(
		cli.StringFlag{
			Name:     "title",
			Usage:    "title of the submission",
			Required: true,
		},
		cli.StringFlag{
			Name:  "media",
			Usage: "identifier of the media (default a random one)",
		},
		cli.StringFlag{
			Name:  "address",
			Usage: "address of the submission (default a random one)",
		},
	)...)
	sub.SetAction(p.submit)

	sub = cmd.SetSubCommand("update")
	sub.SetDescription("rename a submission of the wallet")
	sub.SetFlags(commonFlags(
		cli.StringFlag{
			Name:     "address",
			Usage:    "address of the submission",
			Required: true,
		},
		cli.StringFlag{
			Name:     "title",
			Usage:    "title of the submission",
			Required: true,
		},
		cli.StringFlag{
			Name:     "media",
			Usage:    "identifier of the media",
			Required: true,
		},
	)...)
	sub.SetAction(p.update)

	sub = cmd.SetSubCommand("vote")
	sub.SetDescription("vote for a submission")
	sub.SetFlags(commonFlags(
		cli.StringFlag{
			Name:     "submission",
			Usage:    "address of the submission",
			Required: true,
		},
	)...)
	sub.SetAction(p.vote)

	sub = cmd.SetSubCommand("quiz")
	sub.SetDescription("record the result of the current quiz")
	sub.SetFlags(commonFlags(
		cli.IntFlag{
			Name:     "total",
			Usage:    "number of questions",
			Required: true,
		},
		cli.IntFlag{
			Name:     "correct",
			Usage:    "number of correct answers",
			Required: true,
		},
	)...)
	sub.SetAction(p.quiz)

	sub = cmd.SetSubCommand("balance")
	sub.SetDescription("print the balance of an owner")
	sub.SetFlags(commonFlags(
		cli.StringFlag{
			Name:  "owner",
			Usage: "address of the owner (default the wallet)",
		},
	)...)
	sub.SetAction(p.balance)

	sub = cmd.SetSubCommand("leaderboard")
	sub.SetDescription("print the attempts of the quiz ranked by score")
	sub.SetFlags(commonFlags(
		cli.IntFlag{
			Name:  "version",
			Usage: "version of the quiz (default the current one)",
		},
	)...)
	sub.SetAction(p.leaderboard)
}

// participant implements the commands signed by a local wallet.
type participant struct {
	out io.Writer
}

// session is the state shared by the commands of a participant.
type session struct {
	client  *api.Client
	signer  wallet.Signer
	mgr     *signed.TransactionManager
	builder ledger.Builder
}

func (p participant) key(flags cli.Flags) error {
	signer, err := loadWallet(flags)
	if err != nil {
		return err
	}

	fmt.Fprintln(p.out, signer.GetAddress())

	return nil
}

func (p participant) submit(flags cli.Flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	s, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	media := flags.String("media")
	if media == "" {
		media = xid.New().String()
	}

	text := flags.String("address")

	var addr address.Address

	if text == "" {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return xerrors.Errorf("failed to generate address: %v", err)
		}

		addr = key.PublicKey()
	} else {
		addr, err = address.Parse(text)
		if err != nil {
			return err
		}
	}

	conf, err := s.client.Apply(ctx, s.mgr, s.builder.CreateSubmission(addr, flags.String("title"), media))
	if err != nil {
		return xerrors.Errorf("failed to create submission: %w", err)
	}

	fmt.Fprintf(p.out, "submission %s with media %s\n", addr, media)
	printConfirmation(p.out, conf)

	return nil
}

func (p participant) update(flags cli.Flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	s, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	addr, err := address.Parse(flags.String("address"))
	if err != nil {
		return err
	}

	in := s.builder.UpdateSubmission(addr, flags.String("title"), flags.String("media"))

	conf, err := s.client.Apply(ctx, s.mgr, in)
	if err != nil {
		return xerrors.Errorf("failed to update submission: %w", err)
	}

	printConfirmation(p.out, conf)

	return nil
}

func (p participant) vote(flags cli.Flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	s, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	addr, err := address.Parse(flags.String("submission"))
	if err != nil {
		return err
	}

	sub, err := s.client.GetSubmission(ctx, addr)
	if err != nil {
		return xerrors.Errorf("failed to read submission: %w", err)
	}

	in, err := s.builder.Vote(s.signer.GetAddress(), addr, sub.Owner)
	if err != nil {
		return err
	}

	conf, err := s.client.Apply(ctx, s.mgr, in)
	if err != nil {
		return xerrors.Errorf("failed to vote: %w", err)
	}

	printConfirmation(p.out, conf)

	return nil
}

func (p participant) quiz(flags cli.Flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	total, correct := flags.Int("total"), flags.Int("correct")
	if total < 0 || correct < 0 {
		return xerrors.Errorf("invalid score %d/%d", correct, total)
	}

	s, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	config, err := s.client.GetQuizConfig(ctx)
	if err != nil {
		return xerrors.Errorf("failed to read quiz: %w", err)
	}

	in, err := s.builder.CompleteQuiz(s.signer.GetAddress(), config.Version, uint64(total), uint64(correct))
	if err != nil {
		return err
	}

	conf, err := s.client.Apply(ctx, s.mgr, in)
	if err != nil {
		return xerrors.Errorf("failed to complete quiz: %w", err)
	}

	printConfirmation(p.out, conf)

	return nil
}

func (p participant) balance(flags cli.Flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client := api.NewClient(flags.String("url"))

	var owner address.Address

	text := flags.String("owner")
	if text == "" {
		signer, err := loadWallet(flags)
		if err != nil {
			return err
		}

		owner = signer.GetAddress()
	} else {
		var err error

		owner, err = address.Parse(text)
		if err != nil {
			return err
		}
	}

	profile, err := client.GetProfile(ctx, owner)
	if err != nil {
		return xerrors.Errorf("failed to read profile: %w", err)
	}

	fmt.Fprintf(p.out, "%s has %d tokens", profile.Owner, profile.Balance)

	return nil
}

func (p participant) leaderboard(flags cli.Flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client := api.NewClient(flags.String("url"))

	states, err := client.GetLeaderboard(ctx, uint64(flags.Int("version")))
	if err != nil {
		return xerrors.Errorf("failed to read leaderboard: %w", err)
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "RANK\tPARTICIPANT\tSCORE\tPASSED")

	for i, state := range states {
		fmt.Fprintf(w, "\n%d\t%s\t%d/%d\t%t", i+1, state.Participant,
			state.Correct, state.Total, state.Passed())
	}

	return w.Flush()
}

// loadWallet reads the wallet of the flags, or creates it when the file does
// not exist.
func loadWallet(flags cli.Flags) (wallet.Signer, error) {
	data, err := loader.NewFileLoader(flags.String("key")).LoadOrCreate(wallet.Generator{})
	if err != nil {
		return wallet.Signer{}, xerrors.Errorf("failed to load wallet: %v", err)
	}

	signer, err := wallet.NewSignerFromBytes(data)
	if err != nil {
		return wallet.Signer{}, xerrors.Errorf("failed to decode wallet: %v", err)
	}

	return signer, nil
}

// newSession loads the wallet and synchronizes its nonce with the node. The
// builder uses the program announced by the node.
func newSession(ctx context.Context, flags cli.Flags) (session, error) {
	signer, err := loadWallet(flags)
	if err != nil {
		return session{}, err
	}

	client := api.NewClient(flags.String("url"))

	info, err := client.GetInfo(ctx)
	if err != nil {
		return session{}, xerrors.Errorf("failed to reach node: %v", err)
	}

	program, err := address.Parse(info.Program)
	if err != nil {
		return session{}, xerrors.Errorf("invalid program: %v", err)
	}

	mgr := signed.NewManager(signer, client)

	err = mgr.Sync()
	if err != nil {
		return session{}, xerrors.Errorf("failed to sync: %v", err)
	}

	s := session{
		client:  client,
		signer:  signer,
		mgr:     mgr,
		builder: ledger.NewBuilder(address.NewDeriver(program)),
	}

	return s, nil
}

func printConfirmation(out io.Writer, conf ordering.Confirmation) {
	fmt.Fprintf(out, "accepted at index %d: %s", conf.Index, base58.Encode(conf.ID))
}

package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mr-tron/base58"
	"go.dedis.ch/contest/cli"
	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/ledger"
	"golang.org/x/xerrors"
)

const defaultDecimals = 9

func setLedgerCommands(builder node.Builder) {
	cmd := builder.SetCommand("ledger")
	cmd.SetDescription("inspect the ledger")

	sub := cmd.SetSubCommand("info")
	sub.SetDescription("print the program, the admin and the height of the ledger")
	sub.SetAction(builder.MakeAction(infoAction{}))

	cmd = builder.SetCommand("profile")
	cmd.SetDescription("inspect the balances")

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("print the balance of an owner")
	sub.SetFlags(cli.StringFlag{
		Name:     "owner",
		Usage:    "address of the owner",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(profileAction{}))
}

func setMintCommands(builder node.Builder) {
	cmd := builder.SetCommand("mint")
	cmd.SetDescription("manage the reward token")

	sub := cmd.SetSubCommand("init")
	sub.SetDescription("create the mint, held by the admin")
	sub.SetFlags(cli.IntFlag{
		Name:  "decimals",
		Usage: "number of decimals of the token",
		Value: defaultDecimals,
	})
	sub.SetAction(builder.MakeAction(mintInitAction{}))

	sub = cmd.SetSubCommand("transfer")
	sub.SetDescription("delegate the issuance of the token to the ledger")
	sub.SetAction(builder.MakeAction(mintTransferAction{}))

	sub = cmd.SetSubCommand("info")
	sub.SetDescription("print the mint")
	sub.SetAction(builder.MakeAction(mintInfoAction{}))
}

func setSubmissionCommands(builder node.Builder) {
	cmd := builder.SetCommand("submission")
	cmd.SetDescription("inspect the contest")

	sub := cmd.SetSubCommand("list")
	sub.SetDescription("print the submissions, the most voted first")
	sub.SetAction(builder.MakeAction(listAction{}))

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("print a submission")
	sub.SetFlags(cli.StringFlag{
		Name:     "address",
		Usage:    "address of the submission",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(showAction{}))

	cmd = builder.SetCommand("backfill")
	cmd.SetDescription("mint the rewards of the votes cast before the delegation")
	cmd.SetFlags(
		cli.StringFlag{
			Name:  "submission",
			Usage: "address of the submission",
		},
		cli.BoolFlag{
			Name:  "all",
			Usage: "backfill every submission with votes",
		},
	)
	cmd.SetAction(builder.MakeAction(backfillAction{}))
}

func setQuizCommands(builder node.Builder) {
	cmd := builder.SetCommand("quiz")
	cmd.SetDescription("manage the quiz")

	sub := cmd.SetSubCommand("init")
	sub.SetDescription("create the quiz administered by the admin")
	sub.SetAction(builder.MakeAction(quizInitAction{}))

	sub = cmd.SetSubCommand("reset")
	sub.SetDescription("bump the version so that everyone can take the quiz again")
	sub.SetAction(builder.MakeAction(quizResetAction{}))

	sub = cmd.SetSubCommand("status")
	sub.SetDescription("print the quiz")
	sub.SetAction(builder.MakeAction(quizStatusAction{}))

	sub = cmd.SetSubCommand("leaderboard")
	sub.SetDescription("print the attempts ranked by score")
	sub.SetFlags(cli.IntFlag{
		Name:  "version",
		Usage: "version of the quiz (default the current one)",
	})
	sub.SetAction(builder.MakeAction(leaderboardAction{}))
}

// infoAction prints the description of the ledger.
//
// - implements node.ActionTemplate
type infoAction struct{}

// Execute implements node.ActionTemplate.
func (infoAction) Execute(ctx node.Context) error {
	n, adm, err := resolve(ctx)
	if err != nil {
		return err
	}

	height, head, err := n.GetOrdering().GetHeight()
	if err != nil {
		return xerrors.Errorf("failed to read height: %v", err)
	}

	return printTable(ctx.Out, func(w io.Writer) {
		fmt.Fprintf(w, "program\t%s\n", n.GetDeriver().GetProgram())
		fmt.Fprintf(w, "admin\t%s\n", adm.signer.GetAddress())
		fmt.Fprintf(w, "sequencer\t%s\n", n.GetOrdering().GetPublicKey())
		fmt.Fprintf(w, "height\t%d\n", height)
		fmt.Fprintf(w, "head\t%s", base58.Encode(head))
	})
}

// profileAction prints the balance of an owner.
//
// - implements node.ActionTemplate
type profileAction struct{}

// Execute implements node.ActionTemplate.
func (profileAction) Execute(ctx node.Context) error {
	n, _, err := resolve(ctx)
	if err != nil {
		return err
	}

	owner, err := address.Parse(ctx.Flags.String("owner"))
	if err != nil {
		return err
	}

	profile, err := n.GetProfile(owner)
	if err != nil {
		return xerrors.Errorf("failed to read profile: %w", err)
	}

	fmt.Fprintf(ctx.Out, "%s has %d tokens", profile.Owner, profile.Balance)

	return nil
}

// mintInitAction creates the mint.
//
// - implements node.ActionTemplate
type mintInitAction struct{}

// Execute implements node.ActionTemplate.
func (mintInitAction) Execute(ctx node.Context) error {
	n, adm, err := resolve(ctx)
	if err != nil {
		return err
	}

	decimals := ctx.Flags.Int("decimals")
	if decimals < 0 || decimals > 255 {
		return xerrors.Errorf("invalid decimals %d", decimals)
	}

	in, err := n.GetBuilder().InitMint(uint8(decimals))
	if err != nil {
		return err
	}

	return apply(ctx, n, adm, in)
}

// mintTransferAction delegates the issuance to the ledger.
//
// - implements node.ActionTemplate
type mintTransferAction struct{}

// Execute implements node.ActionTemplate.
func (mintTransferAction) Execute(ctx node.Context) error {
	n, adm, err := resolve(ctx)
	if err != nil {
		return err
	}

	in, err := n.GetBuilder().TransferMintAuthority()
	if err != nil {
		return err
	}

	return apply(ctx, n, adm, in)
}

// mintInfoAction prints the mint.
//
// - implements node.ActionTemplate
type mintInfoAction struct{}

// Execute implements node.ActionTemplate.
func (mintInfoAction) Execute(ctx node.Context) error {
	n, _, err := resolve(ctx)
	if err != nil {
		return err
	}

	info, err := n.GetMint()
	if err != nil {
		return xerrors.Errorf("failed to read mint: %w", err)
	}

	return printTable(ctx.Out, func(w io.Writer) {
		fmt.Fprintf(w, "address\t%s\n", info.Address)
		fmt.Fprintf(w, "authority\t%s\n", info.Authority)
		fmt.Fprintf(w, "delegated\t%t\n", info.Delegated)
		fmt.Fprintf(w, "decimals\t%d\n", info.Decimals)
		fmt.Fprintf(w, "supply\t%d (%d base units)", info.Supply, info.SupplyUnits)
	})
}

// listAction prints the submissions.
//
// - implements node.ActionTemplate
type listAction struct{}

// Execute implements node.ActionTemplate.
func (listAction) Execute(ctx node.Context) error {
	n, _, err := resolve(ctx)
	if err != nil {
		return err
	}

	entries, err := n.ListSubmissions()
	if err != nil {
		return xerrors.Errorf("failed to list submissions: %v", err)
	}

	return printTable(ctx.Out, func(w io.Writer) {
		fmt.Fprint(w, "ADDRESS\tOWNER\tTITLE\tMEDIA\tVOTES")

		for _, entry := range entries {
			fmt.Fprintf(w, "\n%s\t%s\t%s\t%s\t%d", entry.Address, entry.Owner,
				entry.Title, entry.MediaID, entry.VoteCount)
		}
	})
}

// showAction prints a submission.
//
// - implements node.ActionTemplate
type showAction struct{}

// Execute implements node.ActionTemplate.
func (showAction) Execute(ctx node.Context) error {
	n, _, err := resolve(ctx)
	if err != nil {
		return err
	}

	addr, err := address.Parse(ctx.Flags.String("address"))
	if err != nil {
		return err
	}

	sub, err := n.GetSubmission(addr)
	if err != nil {
		return xerrors.Errorf("failed to read submission: %w", err)
	}

	fmt.Fprintf(ctx.Out, "%q (%s) by %s has %d votes", sub.Title, sub.MediaID, sub.Owner, sub.VoteCount)

	return nil
}

// backfillAction mints the missing rewards of one or every submission. The
// submissions without votes are skipped.
//
// - implements node.ActionTemplate
type backfillAction struct{}

// Execute implements node.ActionTemplate.
func (backfillAction) Execute(ctx node.Context) error {
	n, adm, err := resolve(ctx)
	if err != nil {
		return err
	}

	text := ctx.Flags.String("submission")
	all := ctx.Flags.Bool("all")

	if all == (text != "") {
		return xerrors.New("expect either a submission or --all")
	}

	if !all {
		addr, err := address.Parse(text)
		if err != nil {
			return err
		}

		sub, err := n.GetSubmission(addr)
		if err != nil {
			return xerrors.Errorf("failed to read submission: %w", err)
		}

		in, err := n.GetBuilder().Backfill(addr, sub.Owner)
		if err != nil {
			return err
		}

		return apply(ctx, n, adm, in)
	}

	entries, err := n.ListSubmissions()
	if err != nil {
		return xerrors.Errorf("failed to list submissions: %v", err)
	}

	report := new(bytes.Buffer)
	done, failed := 0, 0

	for _, entry := range entries {
		if entry.VoteCount == 0 {
			continue
		}

		in, err := n.GetBuilder().Backfill(entry.Address, entry.Owner)
		if err == nil {
			_, err = adm.apply(context.Background(), n, in)
		}

		if err != nil {
			failed++
			fmt.Fprintf(report, "%s: %v\n", entry.Address, err)
			continue
		}

		done++
	}

	fmt.Fprintf(report, "backfilled %d submissions, %d failed", done, failed)
	ctx.Out.Write(report.Bytes())

	if failed > 0 {
		return xerrors.Errorf("%d backfills failed", failed)
	}

	return nil
}

// quizInitAction creates the quiz.
//
// - implements node.ActionTemplate
type quizInitAction struct{}

// Execute implements node.ActionTemplate.
func (quizInitAction) Execute(ctx node.Context) error {
	n, adm, err := resolve(ctx)
	if err != nil {
		return err
	}

	in, err := n.GetBuilder().InitQuiz()
	if err != nil {
		return err
	}

	return apply(ctx, n, adm, in)
}

// quizResetAction bumps the version of the quiz.
//
// - implements node.ActionTemplate
type quizResetAction struct{}

// Execute implements node.ActionTemplate.
func (quizResetAction) Execute(ctx node.Context) error {
	n, adm, err := resolve(ctx)
	if err != nil {
		return err
	}

	in, err := n.GetBuilder().ResetQuiz()
	if err != nil {
		return err
	}

	return apply(ctx, n, adm, in)
}

// quizStatusAction prints the quiz.
//
// - implements node.ActionTemplate
type quizStatusAction struct{}

// Execute implements node.ActionTemplate.
func (quizStatusAction) Execute(ctx node.Context) error {
	n, _, err := resolve(ctx)
	if err != nil {
		return err
	}

	config, err := n.GetQuizConfig()
	if err != nil {
		return xerrors.Errorf("failed to read quiz: %w", err)
	}

	states, err := n.GetLeaderboard(config.Version)
	if err != nil {
		return xerrors.Errorf("failed to read leaderboard: %v", err)
	}

	passed := 0
	for _, state := range states {
		if state.Passed() {
			passed++
		}
	}

	fmt.Fprintf(ctx.Out, "version %d administered by %s: %d attempts, %d passed",
		config.Version, config.Admin, len(states), passed)

	return nil
}

// leaderboardAction prints the attempts of a version.
//
// - implements node.ActionTemplate
type leaderboardAction struct{}

// Execute implements node.ActionTemplate.
func (leaderboardAction) Execute(ctx node.Context) error {
	n, _, err := resolve(ctx)
	if err != nil {
		return err
	}

	version := uint64(ctx.Flags.Int("version"))
	if version == 0 {
		config, err := n.GetQuizConfig()
		if err != nil {
			return xerrors.Errorf("failed to read quiz: %w", err)
		}

		version = config.Version
	}

	states, err := n.GetLeaderboard(version)
	if err != nil {
		return xerrors.Errorf("failed to read leaderboard: %v", err)
	}

	return printTable(ctx.Out, func(w io.Writer) {
		fmt.Fprint(w, "RANK\tPARTICIPANT\tSCORE\tPASSED")

		for i, state := range states {
			fmt.Fprintf(w, "\n%d\t%s\t%d/%d\t%t", i+1, state.Participant,
				state.Correct, state.Total, state.Passed())
		}
	})
}

// printTable aligns the columns and writes the table at once, as each write
// to the daemon output becomes a line of the client.
func printTable(out io.Writer, fn func(w io.Writer)) error {
	buf := new(bytes.Buffer)

	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fn(w)

	err := w.Flush()
	if err != nil {
		return xerrors.Errorf("failed to align: %v", err)
	}

	_, err = out.Write(buf.Bytes())

	return err
}

func resolve(ctx node.Context) (*ledger.Node, *admin, error) {
	n, err := node.Resolve[*ledger.Node](ctx.Injector)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	adm, err := node.Resolve[*admin](ctx.Injector)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to resolve admin: %v", err)
	}

	return n, adm, nil
}

func apply(ctx node.Context, n *ledger.Node, adm *admin, in ledger.Instruction) error {
	conf, err := adm.apply(context.Background(), n, in)
	if err != nil {
		return err
	}

	printConfirmation(ctx.Out, conf)

	return nil
}

func printConfirmation(out io.Writer, conf ordering.Confirmation) {
	fmt.Fprintf(out, "accepted at index %d: %s", conf.Index, base58.Encode(conf.ID))
}

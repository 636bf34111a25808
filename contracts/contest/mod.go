// Package contest implements the native contract of the submissions and the
// votes.
//
// A participant creates a submission at a fresh address of their choice. Any
// participant can then vote once for it: the vote creates a receipt at an
// address derived from the voter and the submission, increments the vote count
// and mints the reward of the vote to the owner of the submission, all within
// the same instruction.
package contest

import (
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/execution/native"
	"go.dedis.ch/contest/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the contest contract. This interface helps
// in testing the contract.
type commands interface {
	createSubmission(snap store.Snapshot, step execution.Step) error
	updateSubmission(snap store.Snapshot, step execution.Step) error
	vote(snap store.Snapshot, step execution.Step) error
	backfill(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/contest.Contest"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "contest:command"

	// TitleArg is the argument's name in the transaction that contains the
	// title of the submission.
	TitleArg = "contest:title"

	// MediaIDArg is the argument's name in the transaction that contains the
	// media identifier of the submission.
	MediaIDArg = "contest:media_id"

	// SubmissionAccount is the name of the account of the submission.
	SubmissionAccount = "submission"

	// VoteReceiptAccount is the name of the account of the vote receipt.
	VoteReceiptAccount = "vote_receipt"

	// PerformerAccount is the name of the account of the owner of the
	// submission.
	PerformerAccount = "performer"

	// PerformerProfileAccount is the name of the account of the profile of the
	// performer.
	PerformerProfileAccount = "performer_profile"

	// UserProfileAccount is the name of the account of the profile of the
	// voter.
	UserProfileAccount = "user_profile"

	// VoteReward is the number of tokens minted to the performer for each vote.
	VoteReward = 3
)

// Command defines a type of command for the contest contract.
type Command string

const (
	// CmdCreateSubmission defines the command to create a submission.
	CmdCreateSubmission Command = "CREATE_SUBMISSION"

	// CmdUpdateSubmission defines the command to change the title and the
	// media of a submission.
	CmdUpdateSubmission Command = "UPDATE_SUBMISSION"

	// CmdVote defines the command to vote for a submission.
	CmdVote Command = "VOTE"

	// CmdBackfill defines the command to mint the rewards of the votes a
	// performer has not received.
	CmdBackfill Command = "BACKFILL"
)

// RegisterContract registers the contest contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(c)
}

// Contract is the native contract of the submissions and the votes.
//
// - implements native.Contract
type Contract struct {
	deriver address.Deriver
	minter  token.Minter

	// cmd provides the commands executions
	cmd commands
}

// NewContract creates a new contest contract for the program of the deriver.
func NewContract(deriver address.Deriver) Contract {
	contract := Contract{
		deriver: deriver,
		minter:  token.NewMinter(deriver),
	}

	contract.cmd = contestCommand{Contract: &contract}

	return contract
}

// UID implements native.Contract.
func (c Contract) UID() string {
	return ContractName
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) error {
	cmd := step.Current.GetArg(CmdArg)
	if len(cmd) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg: %w", CmdArg, execution.ErrInvalidArgument)
	}

	switch Command(cmd) {
	case CmdCreateSubmission:
		err := c.cmd.createSubmission(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to CREATE_SUBMISSION: %w", err)
		}
	case CmdUpdateSubmission:
		err := c.cmd.updateSubmission(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to UPDATE_SUBMISSION: %w", err)
		}
	case CmdVote:
		err := c.cmd.vote(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to VOTE: %w", err)
		}
	case CmdBackfill:
		err := c.cmd.backfill(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to BACKFILL: %w", err)
		}
	default:
		return xerrors.Errorf("unknown command %s: %w", cmd, execution.ErrInvalidArgument)
	}

	return nil
}

// contestCommand implements the commands of the contest contract
//
// - implements commands
type contestCommand struct {
	*Contract
}

// createSubmission implements commands. It creates a submission owned by the
// caller with no vote.
func (c contestCommand) createSubmission(snap store.Snapshot, step execution.Step) error {
	addr, err := native.GetAccount(step, SubmissionAccount)
	if err != nil {
		return err
	}

	// A derived address could otherwise be squatted by a submission.
	if !address.IsOnCurve(addr) {
		return xerrors.Errorf("submission %s is a derived address: %w", addr, execution.ErrInvalidAccount)
	}

	title, mediaID, err := getContent(step)
	if err != nil {
		return err
	}

	ident := step.Current.GetIdentity()
	if ident == nil {
		return xerrors.Errorf("missing identity: %w", execution.ErrUnauthorized)
	}

	sub := &Submission{
		Owner:   ident.GetAddress(),
		Title:   title,
		MediaID: mediaID,
	}

	err = entity.NewStore(snap).Create(addr, sub)
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "contest").
		Stringer("submission", addr).
		Stringer("owner", sub.Owner).
		Msgf("submission '%s' created", title)

	return nil
}

// updateSubmission implements commands. It changes the title and the media of
// a submission of the caller.
func (c contestCommand) updateSubmission(snap store.Snapshot, step execution.Step) error {
	addr, err := native.GetAccount(step, SubmissionAccount)
	if err != nil {
		return err
	}

	title, mediaID, err := getContent(step)
	if err != nil {
		return err
	}

	sub := &Submission{}

	err = entity.NewStore(snap).Mutate(addr, sub, func() error {
		err := access.Match(execution.ErrNotContestant, step.Current.GetIdentity(), sub.Owner)
		if err != nil {
			return err
		}

		sub.Title = title
		sub.MediaID = mediaID

		return nil
	})
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "contest").
		Stringer("submission", addr).
		Msgf("submission renamed to '%s'", title)

	return nil
}

// vote implements commands. It records the vote of the caller for the
// submission and rewards the performer.
func (c contestCommand) vote(snap store.Snapshot, step execution.Step) error {
	ident := step.Current.GetIdentity()
	if ident == nil {
		return xerrors.Errorf("missing identity: %w", execution.ErrUnauthorized)
	}

	voter := ident.GetAddress()

	addr, sub, performer, err := c.readPerformer(snap, step)
	if err != nil {
		return err
	}

	receiptAddr, err := c.deriver.VoteReceipt(voter, addr)
	if err != nil {
		return err
	}

	userProfile, err := c.deriver.Profile(voter)
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, VoteReceiptAccount, receiptAddr)
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, UserProfileAccount, userProfile)
	if err != nil {
		return err
	}

	st := entity.NewStore(snap)

	err = st.Create(receiptAddr, &VoteReceipt{})
	if xerrors.Is(err, execution.ErrAlreadyExists) {
		// Derived addresses are off the curve, only a receipt can live there.
		return xerrors.Errorf("%s voted for %s: %w", voter, addr, execution.ErrAlreadyVoted)
	}
	if err != nil {
		return err
	}

	err = st.Mutate(addr, sub, func() error {
		sub.VoteCount, err = execution.CheckedAdd(sub.VoteCount, 1)
		return err
	})
	if err != nil {
		return err
	}

	_, err = c.minter.MintTo(st, performer, VoteReward)
	if err != nil {
		return err
	}

	_, _, err = c.minter.EnsureProfile(st, voter)
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "contest").
		Stringer("submission", addr).
		Stringer("voter", voter).
		Uint64("votes", sub.VoteCount).
		Msg("vote recorded")

	return nil
}

// backfill implements commands. It mints the difference between the rewards
// the votes of the submission are worth and the balance of the performer.
func (c contestCommand) backfill(snap store.Snapshot, step execution.Step) error {
	addr, sub, performer, err := c.readPerformer(snap, step)
	if err != nil {
		return err
	}

	expected, err := execution.CheckedMul(sub.VoteCount, VoteReward)
	if err != nil {
		return err
	}

	st := entity.NewStore(snap)

	profile, _, err := c.minter.EnsureProfile(st, performer)
	if err != nil {
		return err
	}

	if profile.Balance >= expected {
		contest.Logger.Debug().
			Str("contract", "contest").
			Stringer("submission", addr).
			Msg("nothing to backfill")

		return nil
	}

	shortfall := expected - profile.Balance

	_, err = c.minter.MintTo(st, performer, shortfall)
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "contest").
		Stringer("submission", addr).
		Stringer("performer", performer).
		Uint64("amount", shortfall).
		Msg("tokens backfilled")

	return nil
}

// readPerformer reads the submission and verifies that the performer account
// is its owner, and that the performer profile account is derived from it.
func (c contestCommand) readPerformer(snap store.Snapshot, step execution.Step) (
	address.Address, *Submission, address.Address, error) {

	addr, err := native.GetAccount(step, SubmissionAccount)
	if err != nil {
		return addr, nil, address.Address{}, err
	}

	performer, err := native.GetAccount(step, PerformerAccount)
	if err != nil {
		return addr, nil, performer, err
	}

	sub := &Submission{}

	err = entity.NewStore(snap).Read(addr, sub)
	if err != nil {
		return addr, nil, performer, err
	}

	if !sub.Owner.Equals(performer) {
		return addr, nil, performer, xerrors.Errorf("performer %s does not own %s: %w",
			performer, addr, execution.ErrUnauthorized)
	}

	profile, err := c.deriver.Profile(performer)
	if err != nil {
		return addr, nil, performer, err
	}

	err = native.RequireAccount(step, PerformerProfileAccount, profile)
	if err != nil {
		return addr, nil, performer, err
	}

	return addr, sub, performer, nil
}

func getContent(step execution.Step) (string, string, error) {
	title, err := native.GetArg(step, TitleArg)
	if err != nil {
		return "", "", err
	}

	if len(title) > MaxTitleLength {
		return "", "", xerrors.Errorf("title is longer than %d bytes: %w",
			MaxTitleLength, execution.ErrInvalidArgument)
	}

	mediaID, err := native.GetArg(step, MediaIDArg)
	if err != nil {
		return "", "", err
	}

	if len(mediaID) > MaxMediaIDLength {
		return "", "", xerrors.Errorf("media id is longer than %d bytes: %w",
			MaxMediaIDLength, execution.ErrInvalidArgument)
	}

	return string(title), string(mediaID), nil
}

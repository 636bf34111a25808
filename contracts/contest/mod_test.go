package contest

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/execution/native"
	"go.dedis.ch/contest/core/store"
	"go.dedis.ch/contest/core/txn/signed"
	"go.dedis.ch/contest/crypto/wallet"
	"go.dedis.ch/contest/internal/testing/fake"
)

var deriver = address.NewDeriver(address.DefaultProgramID)

func TestRecords_Discriminator(t *testing.T) {
	require.Equal(t, []byte{254, 14, 34, 50, 170, 36, 60, 191},
		entity.Discriminator(Submission{}.AccountName()))
	require.Equal(t, []byte{104, 20, 204, 252, 45, 84, 37, 195},
		entity.Discriminator(VoteReceipt{}.AccountName()))
}

func TestExecute(t *testing.T) {
	contract := NewContract(deriver)
	require.Equal(t, ContractName, contract.UID())

	err := contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)

	contract.cmd = fakeCmd{err: fake.GetError()}

	for _, cmd := range []string{"CREATE_SUBMISSION", "UPDATE_SUBMISSION", "VOTE", "BACKFILL"} {
		err = contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}, withCmd(cmd)))
		require.EqualError(t, err, fake.Err("failed to "+cmd))
	}

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}, withCmd("fake")))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)
	require.Contains(t, err.Error(), "unknown command fake")

	contract.cmd = fakeCmd{}
	err = contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}, withCmd("VOTE")))
	require.NoError(t, err)
}

func TestRegisterContract(t *testing.T) {
	exec := native.NewExecution()
	RegisterContract(exec, NewContract(deriver))

	require.Equal(t, []string{ContractName}, exec.GetContracts())
}

func TestCommand_CreateSubmission(t *testing.T) {
	cmd := newCommand()
	owner := newIdentity(t)
	addr := newSubmissionAddress(t)
	snap := fake.NewSnapshot()

	err := cmd.createSubmission(snap, makeStep(t, owner, withTitle("Asturias"), withMedia("abc123")))
	require.ErrorIs(t, err, execution.ErrInvalidAccount)

	mint := mustAddr(deriver.Mint())
	err = cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, mint), withTitle("Asturias"), withMedia("abc123")))
	require.ErrorIs(t, err, execution.ErrInvalidAccount)
	require.Contains(t, err.Error(), "is a derived address")

	err = cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr)))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)

	err = cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle(string(make([]byte, MaxTitleLength+1))), withMedia("abc123")))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)
	require.Contains(t, err.Error(), "title is longer than 50 bytes")

	err = cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle("Asturias"), withMedia("abcdefghijklmnopqrstu")))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)
	require.Contains(t, err.Error(), "media id is longer than 20 bytes")

	err = cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle("Asturias"), withMedia("abc123")))
	require.NoError(t, err)

	sub, err := GetSubmission(entity.NewStore(snap), addr)
	require.NoError(t, err)
	require.Equal(t, Submission{Owner: owner.GetAddress(), Title: "Asturias", MediaID: "abc123"}, *sub)

	err = cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle("Granada"), withMedia("def456")))
	require.ErrorIs(t, err, execution.ErrAlreadyExists)
}

func TestCommand_UpdateSubmission(t *testing.T) {
	cmd := newCommand()
	owner := newIdentity(t)
	other := newIdentity(t)
	addr := newSubmissionAddress(t)
	snap := fake.NewSnapshot()

	err := cmd.updateSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle("Granada"), withMedia("def456")))
	require.ErrorIs(t, err, execution.ErrNotFound)

	createSubmission(t, cmd, snap, owner, addr)
	setVotes(t, snap, addr, 7)

	err = cmd.updateSubmission(snap, makeStep(t, other, withAccount(SubmissionAccount, addr),
		withTitle("Granada"), withMedia("def456")))
	require.ErrorIs(t, err, execution.ErrNotContestant)

	err = cmd.updateSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle("Granada"), withMedia("def456")))
	require.NoError(t, err)

	sub, err := GetSubmission(entity.NewStore(snap), addr)
	require.NoError(t, err)
	require.Equal(t, Submission{Owner: owner.GetAddress(), Title: "Granada", MediaID: "def456", VoteCount: 7}, *sub)
}

func TestCommand_Vote_Scenario(t *testing.T) {
	cmd := newCommand()
	performer := newIdentity(t)
	voter := newIdentity(t)
	addr := newSubmissionAddress(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	createSubmission(t, cmd, snap, performer, addr)

	err := cmd.vote(snap, makeVote(t, voter, addr, performer.GetAddress()))
	require.NoError(t, err)

	st := entity.NewStore(snap)

	sub, err := GetSubmission(st, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sub.VoteCount)
	require.Equal(t, uint64(VoteReward), balanceOf(t, snap, performer.GetAddress()))
	require.Equal(t, uint64(0), balanceOf(t, snap, voter.GetAddress()))

	found, err := st.Exists(mustAddr(deriver.VoteReceipt(voter.GetAddress(), addr)))
	require.NoError(t, err)
	require.True(t, found)

	err = cmd.vote(snap, makeVote(t, voter, addr, performer.GetAddress()))
	require.ErrorIs(t, err, execution.ErrAlreadyVoted)

	sub, err = GetSubmission(st, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sub.VoteCount)
	require.Equal(t, uint64(VoteReward), balanceOf(t, snap, performer.GetAddress()))
}

func TestCommand_Vote_Failures(t *testing.T) {
	cmd := newCommand()
	performer := newIdentity(t)
	voter := newIdentity(t)
	addr := newSubmissionAddress(t)

	snap := fake.NewSnapshot()

	err := cmd.vote(snap, makeVote(t, voter, addr, performer.GetAddress()))
	require.ErrorIs(t, err, execution.ErrNotFound)

	createSubmission(t, cmd, snap, performer, addr)

	err = cmd.vote(snap, makeVote(t, voter, addr, voter.GetAddress()))
	require.ErrorIs(t, err, execution.ErrUnauthorized)
	require.Contains(t, err.Error(), "does not own")

	err = cmd.vote(snap, makeStep(t, voter, withAccount(SubmissionAccount, addr),
		withAccount(PerformerAccount, performer.GetAddress())))
	require.ErrorIs(t, err, execution.ErrInvalidAccount)
	require.Contains(t, err.Error(), "'performer_profile' is missing")

	bad := makeStep(t, voter,
		withAccount(SubmissionAccount, addr),
		withAccount(PerformerAccount, performer.GetAddress()),
		withAccount(PerformerProfileAccount, mustAddr(deriver.Profile(performer.GetAddress()))),
		withAccount(VoteReceiptAccount, mustAddr(deriver.VoteReceipt(performer.GetAddress(), addr))),
		withAccount(UserProfileAccount, mustAddr(deriver.Profile(voter.GetAddress()))))
	err = cmd.vote(snap, bad)
	require.ErrorIs(t, err, execution.ErrInvalidAccount)
	require.Contains(t, err.Error(), "'vote_receipt'")

	bad = makeStep(t, voter,
		withAccount(SubmissionAccount, addr),
		withAccount(PerformerAccount, performer.GetAddress()),
		withAccount(PerformerProfileAccount, mustAddr(deriver.Profile(performer.GetAddress()))),
		withAccount(VoteReceiptAccount, mustAddr(deriver.VoteReceipt(voter.GetAddress(), addr))),
		withAccount(UserProfileAccount, mustAddr(deriver.Profile(performer.GetAddress()))))
	err = cmd.vote(snap, bad)
	require.ErrorIs(t, err, execution.ErrInvalidAccount)
	require.Contains(t, err.Error(), "'user_profile'")

	// The mint does not exist yet, so the reward cannot be issued.
	err = cmd.vote(snap, makeVote(t, voter, addr, performer.GetAddress()))
	require.ErrorIs(t, err, execution.ErrNotFound)

	initMint(t, snap)
	setVotes(t, snap, addr, math.MaxUint64)

	voter2 := newIdentity(t)
	err = cmd.vote(snap, makeVote(t, voter2, addr, performer.GetAddress()))
	require.ErrorIs(t, err, execution.ErrOverflow)
}

func TestCommand_Vote_Self(t *testing.T) {
	cmd := newCommand()
	performer := newIdentity(t)
	addr := newSubmissionAddress(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	createSubmission(t, cmd, snap, performer, addr)

	err := cmd.vote(snap, makeVote(t, performer, addr, performer.GetAddress()))
	require.NoError(t, err)
	require.Equal(t, uint64(VoteReward), balanceOf(t, snap, performer.GetAddress()))
}

func TestCommand_Backfill(t *testing.T) {
	cmd := newCommand()
	performer := newIdentity(t)
	addr := newSubmissionAddress(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	createSubmission(t, cmd, snap, performer, addr)

	// Votes cast before the rewards existed.
	setVotes(t, snap, addr, 4)

	step := makeStep(t, newIdentity(t),
		withAccount(SubmissionAccount, addr),
		withAccount(PerformerAccount, performer.GetAddress()),
		withAccount(PerformerProfileAccount, mustAddr(deriver.Profile(performer.GetAddress()))))

	err := cmd.backfill(snap, step)
	require.NoError(t, err)
	require.Equal(t, uint64(4*VoteReward), balanceOf(t, snap, performer.GetAddress()))

	err = cmd.backfill(snap, step)
	require.NoError(t, err)
	require.Equal(t, uint64(4*VoteReward), balanceOf(t, snap, performer.GetAddress()))

	mint, err := token.NewMinter(deriver).GetMint(entity.NewStore(snap))
	require.NoError(t, err)
	require.Equal(t, uint64(4*VoteReward), mint.Supply)

	setVotes(t, snap, addr, math.MaxUint64)
	err = cmd.backfill(snap, step)
	require.ErrorIs(t, err, execution.ErrOverflow)

	err = cmd.backfill(snap, makeStep(t, performer,
		withAccount(SubmissionAccount, addr),
		withAccount(PerformerAccount, newIdentity(t).GetAddress())))
	require.ErrorIs(t, err, execution.ErrUnauthorized)
}

func TestListSubmissions(t *testing.T) {
	cmd := newCommand()
	snap := fake.NewSnapshot()

	votes := map[address.Address]uint64{}
	for i := 0; i < 5; i++ {
		addr := newSubmissionAddress(t)
		createSubmission(t, cmd, snap, newIdentity(t), addr)
		setVotes(t, snap, addr, uint64(i%3))
		votes[addr] = uint64(i % 3)
	}

	require.NoError(t, entity.NewStore(snap).Create(mustAddr(deriver.Mint()), &token.Mint{}))

	entries, err := ListSubmissions(entity.NewStore(snap))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for i, entry := range entries {
		require.Equal(t, votes[entry.Address], entry.VoteCount)

		if i > 0 {
			require.GreaterOrEqual(t, entries[i-1].VoteCount, entry.VoteCount)
		}
	}

	_, err = ListSubmissions(entity.NewStore(fake.NewBadSnapshot()))
	require.Error(t, err)
}

// -----------------------------------------------------------------------------
// Utility functions

func newCommand() contestCommand {
	contract := NewContract(deriver)
	return contestCommand{Contract: &contract}
}

func newIdentity(t *testing.T) access.Identity {
	signer, err := wallet.NewSigner()
	require.NoError(t, err)

	return signer.GetPublicKey().(access.Identity)
}

func newSubmissionAddress(t *testing.T) address.Address {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	return key.PublicKey()
}

func mustAddr(addr address.Address, err error) address.Address {
	if err != nil {
		panic(err)
	}

	return addr
}

func withCmd(cmd string) signed.TransactionOption {
	return signed.WithArg(CmdArg, []byte(cmd))
}

func withAccount(name string, addr address.Address) signed.TransactionOption {
	return signed.WithAccount(name, addr)
}

func withTitle(title string) signed.TransactionOption {
	return signed.WithArg(TitleArg, []byte(title))
}

func withMedia(mediaID string) signed.TransactionOption {
	return signed.WithArg(MediaIDArg, []byte(mediaID))
}

func makeStep(t *testing.T, ident access.Identity, opts ...signed.TransactionOption) execution.Step {
	tx, err := signed.NewTransaction(0, ident, opts...)
	require.NoError(t, err)

	return execution.Step{Current: tx}
}

func makeVote(t *testing.T, voter access.Identity, addr, performer address.Address) execution.Step {
	return makeStep(t, voter,
		withAccount(SubmissionAccount, addr),
		withAccount(VoteReceiptAccount, mustAddr(deriver.VoteReceipt(voter.GetAddress(), addr))),
		withAccount(PerformerAccount, performer),
		withAccount(PerformerProfileAccount, mustAddr(deriver.Profile(performer))),
		withAccount(UserProfileAccount, mustAddr(deriver.Profile(voter.GetAddress()))))
}

func createSubmission(t *testing.T, cmd contestCommand, snap store.Snapshot, owner access.Identity, addr address.Address) {
	err := cmd.createSubmission(snap, makeStep(t, owner, withAccount(SubmissionAccount, addr),
		withTitle("Asturias"), withMedia("abc123")))
	require.NoError(t, err)
}

func setVotes(t *testing.T, snap store.Snapshot, addr address.Address, votes uint64) {
	sub := &Submission{}
	err := entity.NewStore(snap).Mutate(addr, sub, func() error {
		sub.VoteCount = votes
		return nil
	})
	require.NoError(t, err)
}

func initMint(t *testing.T, snap store.Snapshot) {
	mint := &token.Mint{Authority: mustAddr(deriver.MintAuthority()), Decimals: 9}
	require.NoError(t, entity.NewStore(snap).Create(mustAddr(deriver.Mint()), mint))
}

func balanceOf(t *testing.T, snap store.Snapshot, owner address.Address) uint64 {
	profile, err := token.NewMinter(deriver).GetProfile(entity.NewStore(snap), owner)
	require.NoError(t, err)

	return profile.Balance
}

type fakeCmd struct {
	err error
}

func (c fakeCmd) createSubmission(snap store.Snapshot, step execution.Step) error {
	return c.err
}

func (c fakeCmd) updateSubmission(snap store.Snapshot, step execution.Step) error {
	return c.err
}

func (c fakeCmd) vote(snap store.Snapshot, step execution.Step) error {
	return c.err
}

func (c fakeCmd) backfill(snap store.Snapshot, step execution.Step) error {
	return c.err
}

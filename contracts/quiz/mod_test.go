package quiz

import (
	"math"
	"strconv"
	"testing"

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
	require.Equal(t, []byte{250, 219, 202, 113, 218, 145, 175, 236},
		entity.Discriminator(Config{}.AccountName()))
	require.Equal(t, []byte{222, 255, 111, 89, 226, 46, 27, 9},
		entity.Discriminator(State{}.AccountName()))
}

func TestExecute(t *testing.T) {
	contract := NewContract(deriver)
	require.Equal(t, ContractName, contract.UID())

	err := contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)

	contract.cmd = fakeCmd{err: fake.GetError()}

	for _, cmd := range []string{"INIT_CONFIG", "RESET_VERSION", "COMPLETE"} {
		err = contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}, withCmd(cmd)))
		require.EqualError(t, err, fake.Err("failed to "+cmd))
	}

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}, withCmd("fake")))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)

	contract.cmd = fakeCmd{}
	err = contract.Execute(fake.NewSnapshot(), makeStep(t, fake.PublicKey{}, withCmd("COMPLETE")))
	require.NoError(t, err)
}

func TestRegisterContract(t *testing.T) {
	exec := native.NewExecution()
	RegisterContract(exec, NewContract(deriver))

	require.Equal(t, []string{ContractName}, exec.GetContracts())
}

func TestCommand_InitConfig(t *testing.T) {
	cmd := newCommand()
	admin := newIdentity(t)
	snap := fake.NewSnapshot()

	err := cmd.initConfig(snap, makeStep(t, admin))
	require.ErrorIs(t, err, execution.ErrInvalidAccount)

	err = cmd.initConfig(snap, makeStep(t, admin, withConfig()))
	require.NoError(t, err)

	config, err := NewReader(deriver).GetConfig(entity.NewStore(snap))
	require.NoError(t, err)
	require.Equal(t, Config{Admin: admin.GetAddress(), Version: 1}, *config)

	err = cmd.initConfig(snap, makeStep(t, newIdentity(t), withConfig()))
	require.ErrorIs(t, err, execution.ErrAlreadyExists)

	err = cmd.initConfig(fake.NewBadSnapshot(), makeStep(t, admin, withConfig()))
	require.EqualError(t, err, fake.Err("failed to read account"))
}

func TestCommand_ResetVersion(t *testing.T) {
	cmd := newCommand()
	admin := newIdentity(t)
	snap := fake.NewSnapshot()

	err := cmd.resetVersion(snap, makeStep(t, admin, withConfig()))
	require.ErrorIs(t, err, execution.ErrNotFound)

	initConfig(t, cmd, snap, admin)

	err = cmd.resetVersion(snap, makeStep(t, newIdentity(t), withConfig()))
	require.ErrorIs(t, err, execution.ErrUnauthorized)

	err = cmd.resetVersion(snap, makeStep(t, admin, withConfig()))
	require.NoError(t, err)

	config, err := NewReader(deriver).GetConfig(entity.NewStore(snap))
	require.NoError(t, err)
	require.Equal(t, uint64(2), config.Version)

	setVersion(t, snap, math.MaxUint64)

	err = cmd.resetVersion(snap, makeStep(t, admin, withConfig()))
	require.ErrorIs(t, err, execution.ErrOverflow)
}

func TestCommand_Complete_Pass(t *testing.T) {
	cmd := newCommand()
	participant := newIdentity(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	initConfig(t, cmd, snap, newIdentity(t))

	err := cmd.complete(snap, makeAttempt(t, participant, 1, 5, 4))
	require.NoError(t, err)

	state, err := NewReader(deriver).GetState(entity.NewStore(snap), participant.GetAddress(), 1)
	require.NoError(t, err)
	require.Equal(t, State{
		Participant:   participant.GetAddress(),
		Version:       1,
		Total:         5,
		Correct:       4,
		Completed:     true,
		TokensAwarded: true,
	}, *state)
	require.Equal(t, uint64(1), balanceOf(t, snap, participant.GetAddress()))

	err = cmd.complete(snap, makeAttempt(t, participant, 1, 5, 5))
	require.ErrorIs(t, err, execution.ErrAlreadyCompleted)
	require.Equal(t, uint64(1), balanceOf(t, snap, participant.GetAddress()))
}

func TestCommand_Complete_Fail(t *testing.T) {
	cmd := newCommand()
	participant := newIdentity(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	initConfig(t, cmd, snap, newIdentity(t))

	err := cmd.complete(snap, makeAttempt(t, participant, 1, 5, 3))
	require.NoError(t, err)

	state, err := NewReader(deriver).GetState(entity.NewStore(snap), participant.GetAddress(), 1)
	require.NoError(t, err)
	require.True(t, state.Completed)
	require.False(t, state.Passed())
	require.Equal(t, uint64(0), balanceOf(t, snap, participant.GetAddress()))

	mint, err := token.NewMinter(deriver).GetMint(entity.NewStore(snap))
	require.NoError(t, err)
	require.Equal(t, uint64(0), mint.Supply)
}

func TestCommand_Complete_AfterReset(t *testing.T) {
	cmd := newCommand()
	admin := newIdentity(t)
	participant := newIdentity(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	initConfig(t, cmd, snap, admin)

	err := cmd.complete(snap, makeAttempt(t, participant, 1, 5, 3))
	require.NoError(t, err)

	err = cmd.resetVersion(snap, makeStep(t, admin, withConfig()))
	require.NoError(t, err)

	// The accounts of the previous version are rejected.
	err = cmd.complete(snap, makeAttempt(t, participant, 1, 5, 5))
	require.ErrorIs(t, err, execution.ErrInvalidAccount)

	err = cmd.complete(snap, makeAttempt(t, participant, 2, 5, 5))
	require.NoError(t, err)

	reader := NewReader(deriver)

	old, err := reader.GetState(entity.NewStore(snap), participant.GetAddress(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(3), old.Correct)
	require.False(t, old.Passed())

	state, err := reader.GetState(entity.NewStore(snap), participant.GetAddress(), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(5), state.Correct)
	require.True(t, state.Passed())

	require.Equal(t, uint64(1), balanceOf(t, snap, participant.GetAddress()))
}

func TestCommand_Complete_Failures(t *testing.T) {
	cmd := newCommand()
	participant := newIdentity(t)
	snap := fake.NewSnapshot()

	err := cmd.complete(snap, makeAttempt(t, participant, 1, 5, 4))
	require.ErrorIs(t, err, execution.ErrNotFound)

	initConfig(t, cmd, snap, newIdentity(t))

	err = cmd.complete(snap, makeAttempt(t, participant, 1, 0, 0))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)
	require.Contains(t, err.Error(), "quiz without question")

	err = cmd.complete(snap, makeAttempt(t, participant, 1, 5, 6))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)
	require.Contains(t, err.Error(), "6 correct answers out of 5")

	err = cmd.complete(snap, makeAttempt(t, participant, 1, math.MaxUint64, 1))
	require.ErrorIs(t, err, execution.ErrOverflow)

	err = cmd.complete(snap, makeStep(t, participant, withConfig(),
		withAccount(StateAccount, mustAddr(deriver.QuizState(participant.GetAddress(), 1))),
		withAccount(UserProfileAccount, mustAddr(deriver.Profile(participant.GetAddress()))),
		signed.WithArg(TotalArg, []byte("five")),
		signed.WithArg(CorrectArg, []byte("4"))))
	require.ErrorIs(t, err, execution.ErrInvalidArgument)
	require.Contains(t, err.Error(), "malformed 'quiz:total'")

	err = cmd.complete(snap, makeStep(t, participant, withConfig(),
		withAccount(StateAccount, mustAddr(deriver.QuizState(participant.GetAddress(), 1))),
		withAccount(UserProfileAccount, mustAddr(deriver.Profile(newIdentity(t).GetAddress())))))
	require.ErrorIs(t, err, execution.ErrInvalidAccount)
	require.Contains(t, err.Error(), "'user_profile'")

	// A passing attempt cannot be rewarded without the mint.
	err = cmd.complete(snap, makeAttempt(t, participant, 1, 5, 4))
	require.ErrorIs(t, err, execution.ErrNotFound)
}

func TestIsPassing(t *testing.T) {
	cases := []struct {
		total   uint64
		correct uint64
		passed  bool
	}{
		{5, 4, true},
		{5, 3, false},
		{10, 8, true},
		{10, 7, false},
		{3, 3, true},
		{1, 0, false},
		{math.MaxUint64, math.MaxUint64, true},
		{math.MaxUint64, math.MaxUint64/10*8 + 3, false},
		{math.MaxUint64, math.MaxUint64/10*8 + 4, true},
		{math.MaxUint64 / 2, 1, false},
	}

	for _, c := range cases {
		require.Equal(t, c.passed, IsPassing(c.total, c.correct), "%d/%d", c.correct, c.total)
	}
}

func TestReader_Leaderboard(t *testing.T) {
	cmd := newCommand()
	admin := newIdentity(t)

	snap := fake.NewSnapshot()
	initMint(t, snap)
	initConfig(t, cmd, snap, admin)

	scores := []struct{ total, correct uint64 }{{5, 3}, {10, 8}, {4, 4}, {5, 4}, {2, 1}}
	for _, score := range scores {
		err := cmd.complete(snap, makeAttempt(t, newIdentity(t), 1, score.total, score.correct))
		require.NoError(t, err)
	}

	require.NoError(t, cmd.resetVersion(snap, makeStep(t, admin, withConfig())))
	require.NoError(t, cmd.complete(snap, makeAttempt(t, newIdentity(t), 2, 5, 5)))

	board, err := NewReader(deriver).Leaderboard(entity.NewStore(snap), 1)
	require.NoError(t, err)
	require.Len(t, board, 5)

	correct := make([]uint64, len(board))
	for i, state := range board {
		correct[i] = state.Correct
	}
	require.Equal(t, []uint64{8, 4, 4, 3, 1}, correct)

	// 4/4 and 4/5 both pass.
	require.True(t, board[1].Passed())
	require.True(t, board[2].Passed())
	require.False(t, board[3].Passed())

	board, err = NewReader(deriver).Leaderboard(entity.NewStore(snap), 2)
	require.NoError(t, err)
	require.Len(t, board, 1)

	_, err = NewReader(deriver).Leaderboard(entity.NewStore(fake.NewBadSnapshot()), 1)
	require.Error(t, err)
}

func TestReader_PassedFirstOnTie(t *testing.T) {
	snap := fake.NewSnapshot()
	st := entity.NewStore(snap)

	failed := newIdentity(t).GetAddress()
	passed := newIdentity(t).GetAddress()

	require.NoError(t, st.Create(mustAddr(deriver.QuizState(failed, 1)),
		&State{Participant: failed, Version: 1, Total: 10, Correct: 4, Completed: true}))
	require.NoError(t, st.Create(mustAddr(deriver.QuizState(passed, 1)),
		&State{Participant: passed, Version: 1, Total: 5, Correct: 4, Completed: true, TokensAwarded: true}))

	board, err := NewReader(deriver).Leaderboard(st, 1)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, passed, board[0].Participant)
	require.Equal(t, failed, board[1].Participant)
}

// -----------------------------------------------------------------------------
// Utility functions

func newCommand() quizCommand {
	contract := NewContract(deriver)
	return quizCommand{Contract: &contract}
}

func newIdentity(t *testing.T) access.Identity {
	signer, err := wallet.NewSigner()
	require.NoError(t, err)

	return signer.GetPublicKey().(access.Identity)
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

func withConfig() signed.TransactionOption {
	return signed.WithAccount(ConfigAccount, mustAddr(deriver.QuizConfig()))
}

func makeStep(t *testing.T, ident access.Identity, opts ...signed.TransactionOption) execution.Step {
	tx, err := signed.NewTransaction(0, ident, opts...)
	require.NoError(t, err)

	return execution.Step{Current: tx}
}

func makeAttempt(t *testing.T, participant access.Identity, version, total, correct uint64) execution.Step {
	return makeStep(t, participant,
		withConfig(),
		withAccount(StateAccount, mustAddr(deriver.QuizState(participant.GetAddress(), version))),
		withAccount(UserProfileAccount, mustAddr(deriver.Profile(participant.GetAddress()))),
		signed.WithArg(TotalArg, []byte(strconv.FormatUint(total, 10))),
		signed.WithArg(CorrectArg, []byte(strconv.FormatUint(correct, 10))))
}

func initConfig(t *testing.T, cmd quizCommand, snap store.Snapshot, admin access.Identity) {
	require.NoError(t, cmd.initConfig(snap, makeStep(t, admin, withConfig())))
}

func setVersion(t *testing.T, snap store.Snapshot, version uint64) {
	config := &Config{}
	err := entity.NewStore(snap).Mutate(mustAddr(deriver.QuizConfig()), config, func() error {
		config.Version = version
		return nil
	})
	require.NoError(t, err)
}

func initMint(t *testing.T, snap store.Snapshot) {
	mint := &token.Mint{Authority: mustAddr(deriver.MintAuthority())}
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

func (c fakeCmd) initConfig(snap store.Snapshot, step execution.Step) error {
	return c.err
}

func (c fakeCmd) resetVersion(snap store.Snapshot, step execution.Step) error {
	return c.err
}

func (c fakeCmd) complete(snap store.Snapshot, step execution.Step) error {
	return c.err
}

package controller

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/contest/cli/node"
	"go.dedis.ch/contest/contracts/contest"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/txn/signed"
	"go.dedis.ch/contest/crypto/wallet"
	"go.dedis.ch/contest/ledger"
)

func TestMinimal_SetCommands(t *testing.T) {
	builder := node.NewBuilder()

	NewController().SetCommands(builder)

	require.NotNil(t, builder.Build())
}

func TestMinimal_OnStart(t *testing.T) {
	dir := t.TempDir()

	inj := node.NewInjector()

	err := NewController().OnStart(node.FlagSet{"config": dir}, inj)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dir, defaultDBName))
	require.FileExists(t, filepath.Join(dir, defaultSequencerName))
	require.FileExists(t, filepath.Join(dir, defaultAdminName))

	var adm *admin
	require.NoError(t, inj.Resolve(&adm))

	require.NoError(t, NewController().OnStop(inj))

	// The keys are loaded again on restart.
	inj = node.NewInjector()

	err = NewController().OnStart(node.FlagSet{"config": dir}, inj)
	require.NoError(t, err)

	var again *admin
	require.NoError(t, inj.Resolve(&again))
	require.Equal(t, adm.signer.GetAddress(), again.signer.GetAddress())

	require.NoError(t, NewController().OnStop(inj))
}

func TestMinimal_OnStart_Failures(t *testing.T) {
	dir := t.TempDir()

	err := NewController().OnStart(node.FlagSet{"config": dir, "program": "abc"}, node.NewInjector())
	require.Regexp(t, "^invalid program: ", err)

	bad := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("[1,2]"), 0600))

	err = NewController().OnStart(node.FlagSet{"config": dir, "admin-key": bad}, node.NewInjector())
	require.EqualError(t, err, "failed to decode admin key: invalid key length 2")

	err = NewController().OnStart(node.FlagSet{"config": dir, "engine": "fake"}, node.NewInjector())
	require.EqualError(t, err, "failed to open ledger: failed to open database: unknown engine 'fake'")
}

func TestMinimal_OnStop(t *testing.T) {
	err := NewController().OnStop(node.NewInjector())
	require.Regexp(t, "^failed to resolve ledger: ", err)
}

func TestActions_Mint(t *testing.T) {
	ctx, _ := newContext(t)

	out := run(t, ctx, mintInitAction{}, node.FlagSet{"decimals": 6})
	require.Regexp(t, "^accepted at index 1: ", out)

	out = run(t, ctx, mintTransferAction{}, nil)
	require.Regexp(t, "^accepted at index 2: ", out)

	out = run(t, ctx, mintInfoAction{}, nil)
	require.Contains(t, out, "delegated  true")
	require.Contains(t, out, "decimals   6")

	ctx.Flags = node.FlagSet{"decimals": 6}

	err := mintInitAction{}.Execute(ctx)
	require.ErrorIs(t, err, execution.ErrAlreadyExists)

	ctx.Flags = node.FlagSet{"decimals": 300}

	err = mintInitAction{}.Execute(ctx)
	require.EqualError(t, err, "invalid decimals 300")
}

func TestActions_Backfill(t *testing.T) {
	ctx, n := newContext(t)

	performer := newWallet(t)
	voter := newWallet(t)

	sub := newSubmissionAddress(t)
	empty := newSubmissionAddress(t)

	applyAs(t, n, performer, n.GetBuilder().CreateSubmission(sub, "Asturias", "abc123"))
	applyAs(t, n, performer, n.GetBuilder().CreateSubmission(empty, "Granada", "def456"))

	run(t, ctx, mintInitAction{}, node.FlagSet{"decimals": 9})
	run(t, ctx, mintTransferAction{}, nil)

	vote, err := n.GetBuilder().Vote(voter.GetAddress(), sub, performer.GetAddress())
	require.NoError(t, err)
	applyAs(t, n, voter, vote)

	// The reward is already minted so the backfill mints nothing.
	out := run(t, ctx, backfillAction{}, node.FlagSet{"all": true})
	require.Equal(t, "backfilled 1 submissions, 0 failed", out)

	profile, err := n.GetProfile(performer.GetAddress())
	require.NoError(t, err)
	require.Equal(t, uint64(contest.VoteReward), profile.Balance)

	out = run(t, ctx, backfillAction{}, node.FlagSet{"submission": sub.String()})
	require.Regexp(t, "^accepted at index ", out)

	ctx.Flags = node.FlagSet{}
	err = backfillAction{}.Execute(ctx)
	require.EqualError(t, err, "expect either a submission or --all")

	ctx.Flags = node.FlagSet{"all": true, "submission": sub.String()}
	err = backfillAction{}.Execute(ctx)
	require.EqualError(t, err, "expect either a submission or --all")

	out = run(t, ctx, listAction{}, nil)
	require.Contains(t, out, sub.String())
	require.Contains(t, out, empty.String())

	out = run(t, ctx, showAction{}, node.FlagSet{"address": sub.String()})
	require.Equal(t, `"Asturias" (abc123) by `+performer.GetAddress().String()+" has 1 votes", out)

	out = run(t, ctx, profileAction{}, node.FlagSet{"owner": performer.GetAddress().String()})
	require.Equal(t, performer.GetAddress().String()+" has 3 tokens", out)
}

func TestActions_Quiz(t *testing.T) {
	ctx, n := newContext(t)

	ctx.Flags = node.FlagSet{}
	err := quizStatusAction{}.Execute(ctx)
	require.ErrorIs(t, err, execution.ErrNotFound)

	run(t, ctx, quizInitAction{}, nil)

	participant := newWallet(t)

	in, err := n.GetBuilder().CompleteQuiz(participant.GetAddress(), 1, 5, 3)
	require.NoError(t, err)
	applyAs(t, n, participant, in)

	out := run(t, ctx, quizStatusAction{}, nil)
	require.Regexp(t, "^version 1 administered by .*: 1 attempts, 0 passed$", out)

	out = run(t, ctx, leaderboardAction{}, nil)
	require.Contains(t, out, participant.GetAddress().String())
	require.Contains(t, out, "3/5")

	run(t, ctx, quizResetAction{}, nil)

	out = run(t, ctx, leaderboardAction{}, nil)
	require.NotContains(t, out, participant.GetAddress().String())

	out = run(t, ctx, leaderboardAction{}, node.FlagSet{"version": 1})
	require.Contains(t, out, participant.GetAddress().String())

	out = run(t, ctx, infoAction{}, nil)
	require.Contains(t, out, "height     3")
}

func TestActions_Unresolved(t *testing.T) {
	ctx := node.Context{
		Injector: node.NewInjector(),
		Flags:    node.FlagSet{},
		Out:      new(bytes.Buffer),
	}

	err := infoAction{}.Execute(ctx)
	require.Regexp(t, "^failed to resolve ledger: ", err)
}

// -----------------------------------------------------------------------------
// Utility functions

func newContext(t *testing.T) (node.Context, *ledger.Node) {
	inj := node.NewInjector()

	err := NewController().OnStart(node.FlagSet{"config": t.TempDir(), "engine": "pebble"}, inj)
	require.NoError(t, err)

	t.Cleanup(func() {
		NewController().OnStop(inj)
	})

	var n *ledger.Node
	require.NoError(t, inj.Resolve(&n))

	ctx := node.Context{
		Injector: inj,
		Flags:    node.FlagSet{},
		Out:      new(bytes.Buffer),
	}

	return ctx, n
}

func run(t *testing.T, ctx node.Context, action node.ActionTemplate, flags node.FlagSet) string {
	out := new(bytes.Buffer)

	if flags == nil {
		flags = node.FlagSet{}
	}

	ctx.Flags = flags
	ctx.Out = out

	err := action.Execute(ctx)
	require.NoError(t, err)

	return out.String()
}

func newWallet(t *testing.T) wallet.Signer {
	signer, err := wallet.NewSigner()
	require.NoError(t, err)

	return signer
}

func applyAs(t *testing.T, n *ledger.Node, signer wallet.Signer, in ledger.Instruction) {
	mgr := signed.NewManager(signer, n.GetOrdering())
	require.NoError(t, mgr.Sync())

	conf, err := n.Apply(context.Background(), mgr, in)
	require.NoError(t, err)
	require.True(t, conf.Accepted)
}

func newSubmissionAddress(t *testing.T) solana.PublicKey {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	return key.PublicKey()
}

package ledger

import (
	"strconv"

	"go.dedis.ch/contest/contracts/contest"
	"go.dedis.ch/contest/contracts/quiz"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/execution/native"
	"go.dedis.ch/contest/core/txn"
)

// Instruction is the content of an instruction before it is signed.
type Instruction struct {
	Accounts []txn.Account
	Args     []txn.Arg
}

// Builder creates the instructions of the contracts with the accounts the
// ledger expects.
type Builder struct {
	deriver address.Deriver
}

// NewBuilder returns a builder for the program of the deriver.
func NewBuilder(deriver address.Deriver) Builder {
	return Builder{deriver: deriver}
}

// InitMint returns the instruction that creates the mint.
func (b Builder) InitMint(decimals uint8) (Instruction, error) {
	mint, err := b.deriver.Mint()
	if err != nil {
		return Instruction{}, err
	}

	return newInstruction(token.ContractName, token.CmdArg, string(token.CmdInitMint)).
		withAccount(token.MintAccount, mint).
		withArg(token.DecimalsArg, strconv.FormatUint(uint64(decimals), 10)), nil
}

// TransferMintAuthority returns the instruction that delegates the issuance to
// the ledger.
func (b Builder) TransferMintAuthority() (Instruction, error) {
	mint, err := b.deriver.Mint()
	if err != nil {
		return Instruction{}, err
	}

	authority, err := b.deriver.MintAuthority()
	if err != nil {
		return Instruction{}, err
	}

	return newInstruction(token.ContractName, token.CmdArg, string(token.CmdTransferAuthority)).
		withAccount(token.MintAccount, mint).
		withAccount(token.MintAuthorityAccount, authority), nil
}

// CreateSubmission returns the instruction that creates a submission at the
// address.
func (b Builder) CreateSubmission(addr address.Address, title, mediaID string) Instruction {
	return newInstruction(contest.ContractName, contest.CmdArg, string(contest.CmdCreateSubmission)).
		withAccount(contest.SubmissionAccount, addr).
		withArg(contest.TitleArg, title).
		withArg(contest.MediaIDArg, mediaID)
}

// UpdateSubmission returns the instruction that changes the content of a
// submission.
func (b Builder) UpdateSubmission(addr address.Address, title, mediaID string) Instruction {
	return newInstruction(contest.ContractName, contest.CmdArg, string(contest.CmdUpdateSubmission)).
		withAccount(contest.SubmissionAccount, addr).
		withArg(contest.TitleArg, title).
		withArg(contest.MediaIDArg, mediaID)
}

// Vote returns the instruction of the voter for the submission of the
// performer.
func (b Builder) Vote(voter, submission, performer address.Address) (Instruction, error) {
	receipt, err := b.deriver.VoteReceipt(voter, submission)
	if err != nil {
		return Instruction{}, err
	}

	performerProfile, err := b.deriver.Profile(performer)
	if err != nil {
		return Instruction{}, err
	}

	userProfile, err := b.deriver.Profile(voter)
	if err != nil {
		return Instruction{}, err
	}

	return newInstruction(contest.ContractName, contest.CmdArg, string(contest.CmdVote)).
		withAccount(contest.SubmissionAccount, submission).
		withAccount(contest.VoteReceiptAccount, receipt).
		withAccount(contest.PerformerAccount, performer).
		withAccount(contest.PerformerProfileAccount, performerProfile).
		withAccount(contest.UserProfileAccount, userProfile), nil
}

// Backfill returns the instruction that mints the missing rewards of the
// submission of the performer.
func (b Builder) Backfill(submission, performer address.Address) (Instruction, error) {
	profile, err := b.deriver.Profile(performer)
	if err != nil {
		return Instruction{}, err
	}

	return newInstruction(contest.ContractName, contest.CmdArg, string(contest.CmdBackfill)).
		withAccount(contest.SubmissionAccount, submission).
		withAccount(contest.PerformerAccount, performer).
		withAccount(contest.PerformerProfileAccount, profile), nil
}

// InitQuiz returns the instruction that creates the quiz configuration.
func (b Builder) InitQuiz() (Instruction, error) {
	return b.quizConfig(quiz.CmdInitConfig)
}

// ResetQuiz returns the instruction that bumps the version of the quiz.
func (b Builder) ResetQuiz() (Instruction, error) {
	return b.quizConfig(quiz.CmdResetVersion)
}

// CompleteQuiz returns the instruction that records the score of the
// participant for the version.
func (b Builder) CompleteQuiz(participant address.Address, version, total, correct uint64) (Instruction, error) {
	in, err := b.quizConfig(quiz.CmdComplete)
	if err != nil {
		return in, err
	}

	state, err := b.deriver.QuizState(participant, version)
	if err != nil {
		return in, err
	}

	profile, err := b.deriver.Profile(participant)
	if err != nil {
		return in, err
	}

	return in.withAccount(quiz.StateAccount, state).
		withAccount(quiz.UserProfileAccount, profile).
		withArg(quiz.TotalArg, strconv.FormatUint(total, 10)).
		withArg(quiz.CorrectArg, strconv.FormatUint(correct, 10)), nil
}

func (b Builder) quizConfig(cmd quiz.Command) (Instruction, error) {
	config, err := b.deriver.QuizConfig()
	if err != nil {
		return Instruction{}, err
	}

	return newInstruction(quiz.ContractName, quiz.CmdArg, string(cmd)).
		withAccount(quiz.ConfigAccount, config), nil
}

func newInstruction(contract, cmdArg, cmd string) Instruction {
	return Instruction{
		Args: []txn.Arg{
			{Key: native.ContractArg, Value: []byte(contract)},
			{Key: cmdArg, Value: []byte(cmd)},
		},
	}
}

func (in Instruction) withAccount(name string, addr address.Address) Instruction {
	in.Accounts = append(in.Accounts, txn.Account{Name: name, Address: addr})
	return in
}

func (in Instruction) withArg(key, value string) Instruction {
	in.Args = append(in.Args, txn.Arg{Key: key, Value: []byte(value)})
	return in
}

// Package quiz implements the native contract of the quiz.
//
// The question bank lives outside of the ledger which only records the score
// of an attempt. An attempt is stored at an address derived from the
// participant and the current version, so that it happens once per version. A
// passing score is rewarded by minting a token in the same instruction.
package quiz

import (
	"math/bits"

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

// commands defines the commands of the quiz contract. This interface helps in
// testing the contract.
type commands interface {
	initConfig(snap store.Snapshot, step execution.Step) error
	resetVersion(snap store.Snapshot, step execution.Step) error
	complete(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/contest.Quiz"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "quiz:command"

	// TotalArg is the argument's name in the transaction that contains the
	// number of questions of the attempt.
	TotalArg = "quiz:total"

	// CorrectArg is the argument's name in the transaction that contains the
	// number of correct answers of the attempt.
	CorrectArg = "quiz:correct"

	// ConfigAccount is the name of the account of the configuration.
	ConfigAccount = "quiz_config"

	// StateAccount is the name of the account of the attempt.
	StateAccount = "quiz_state"

	// UserProfileAccount is the name of the account of the profile of the
	// participant.
	UserProfileAccount = "user_profile"

	// Reward is the number of tokens minted for a passing attempt.
	Reward = 1

	// PassPercentage is the smallest share of correct answers, in percent,
	// that passes the quiz.
	PassPercentage = 80
)

// Command defines a type of command for the quiz contract.
type Command string

const (
	// CmdInitConfig defines the command to create the configuration.
	CmdInitConfig Command = "INIT_CONFIG"

	// CmdResetVersion defines the command to start a new version of the quiz.
	CmdResetVersion Command = "RESET_VERSION"

	// CmdComplete defines the command to record an attempt.
	CmdComplete Command = "COMPLETE"
)

// RegisterContract registers the quiz contract to the given execution service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(c)
}

// Contract is the native contract of the quiz.
//
// - implements native.Contract
type Contract struct {
	deriver address.Deriver
	minter  token.Minter

	// cmd provides the commands executions
	cmd commands
}

// NewContract creates a new quiz contract for the program of the deriver.
func NewContract(deriver address.Deriver) Contract {
	contract := Contract{
		deriver: deriver,
		minter:  token.NewMinter(deriver),
	}

	contract.cmd = quizCommand{Contract: &contract}

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
	case CmdInitConfig:
		err := c.cmd.initConfig(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to INIT_CONFIG: %w", err)
		}
	case CmdResetVersion:
		err := c.cmd.resetVersion(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to RESET_VERSION: %w", err)
		}
	case CmdComplete:
		err := c.cmd.complete(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to COMPLETE: %w", err)
		}
	default:
		return xerrors.Errorf("unknown command %s: %w", cmd, execution.ErrInvalidArgument)
	}

	return nil
}

// quizCommand implements the commands of the quiz contract
//
// - implements commands
type quizCommand struct {
	*Contract
}

// initConfig implements commands. It creates the configuration at the first
// version, administrated by the caller.
func (c quizCommand) initConfig(snap store.Snapshot, step execution.Step) error {
	addr, err := c.configAddress(step)
	if err != nil {
		return err
	}

	ident := step.Current.GetIdentity()
	if ident == nil {
		return xerrors.Errorf("missing identity: %w", execution.ErrUnauthorized)
	}

	config := &Config{
		Admin:   ident.GetAddress(),
		Version: 1,
	}

	err = entity.NewStore(snap).Create(addr, config)
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "quiz").
		Stringer("admin", config.Admin).
		Msg("quiz initialized")

	return nil
}

// resetVersion implements commands. It increments the version so that the
// previous attempts no longer count.
func (c quizCommand) resetVersion(snap store.Snapshot, step execution.Step) error {
	addr, err := c.configAddress(step)
	if err != nil {
		return err
	}

	config := &Config{}

	err = entity.NewStore(snap).Mutate(addr, config, func() error {
		err := access.Match(execution.ErrUnauthorized, step.Current.GetIdentity(), config.Admin)
		if err != nil {
			return err
		}

		config.Version, err = execution.CheckedAdd(config.Version, 1)
		return err
	})
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "quiz").
		Uint64("version", config.Version).
		Msg("quiz version reset")

	return nil
}

// complete implements commands. It records the score of the caller for the
// current version and mints the reward if the attempt passes.
func (c quizCommand) complete(snap store.Snapshot, step execution.Step) error {
	ident := step.Current.GetIdentity()
	if ident == nil {
		return xerrors.Errorf("missing identity: %w", execution.ErrUnauthorized)
	}

	participant := ident.GetAddress()

	configAddr, err := c.configAddress(step)
	if err != nil {
		return err
	}

	st := entity.NewStore(snap)

	config := &Config{}

	err = st.Read(configAddr, config)
	if err != nil {
		return err
	}

	stateAddr, err := c.deriver.QuizState(participant, config.Version)
	if err != nil {
		return err
	}

	profileAddr, err := c.deriver.Profile(participant)
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, StateAccount, stateAddr)
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, UserProfileAccount, profileAddr)
	if err != nil {
		return err
	}

	total, err := native.GetUintArg(step, TotalArg, 64)
	if err != nil {
		return err
	}

	correct, err := native.GetUintArg(step, CorrectArg, 64)
	if err != nil {
		return err
	}

	if total == 0 {
		return xerrors.Errorf("quiz without question: %w", execution.ErrInvalidArgument)
	}

	if correct > total {
		return xerrors.Errorf("%d correct answers out of %d: %w", correct, total, execution.ErrInvalidArgument)
	}

	passed := IsPassing(total, correct)

	state := &State{
		Participant:   participant,
		Version:       config.Version,
		Total:         total,
		Correct:       correct,
		Completed:     true,
		TokensAwarded: passed,
	}

	err = st.Create(stateAddr, state)
	if xerrors.Is(err, execution.ErrAlreadyExists) {
		return xerrors.Errorf("%s took version %d: %w", participant, config.Version, execution.ErrAlreadyCompleted)
	}
	if err != nil {
		return err
	}

	if passed {
		_, err = c.minter.MintTo(st, participant, Reward)
	} else {
		_, _, err = c.minter.EnsureProfile(st, participant)
	}
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "quiz").
		Stringer("participant", participant).
		Uint64("version", config.Version).
		Bool("passed", passed).
		Msgf("quiz completed with %d/%d", correct, total)

	return nil
}

func (c quizCommand) configAddress(step execution.Step) (address.Address, error) {
	addr, err := c.deriver.QuizConfig()
	if err != nil {
		return addr, err
	}

	err = native.RequireAccount(step, ConfigAccount, addr)
	if err != nil {
		return addr, err
	}

	return addr, nil
}

// IsPassing returns true if the share of correct answers reaches the pass
// percentage. The products are compared on 128 bits.
func IsPassing(total, correct uint64) bool {
	lhi, llo := bits.Mul64(correct, 100)
	rhi, rlo := bits.Mul64(total, PassPercentage)

	return lhi > rhi || (lhi == rhi && llo >= rlo)
}

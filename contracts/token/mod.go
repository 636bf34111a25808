// Package token implements the native contract of the reward token.
//
// The mint is created by an operator who then hands the issuance authority
// over to an address derived from a literal seed. Nobody owns the key of such
// an address, so from then on only the contracts of the ledger can issue
// tokens, through the Minter.
package token

import (
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/execution/native"
	"go.dedis.ch/contest/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the token contract. This interface helps in
// testing the contract.
type commands interface {
	initMint(snap store.Snapshot, step execution.Step) error
	transferAuthority(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/contest.Token"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "token:command"

	// DecimalsArg is the argument's name in the transaction that contains the
	// number of decimals of the token.
	DecimalsArg = "token:decimals"

	// MintAccount is the name of the account of the mint.
	MintAccount = "mint"

	// MintAuthorityAccount is the name of the account of the derived authority.
	MintAuthorityAccount = "mint_authority"

	// MaxDecimals is the largest number of decimals such that one token in
	// base units fits in 64 bits.
	MaxDecimals = 19
)

// Command defines a type of command for the token contract.
type Command string

const (
	// CmdInitMint defines the command to create the mint.
	CmdInitMint Command = "INIT_MINT"

	// CmdTransferAuthority defines the command to delegate the issuance to the
	// ledger.
	CmdTransferAuthority Command = "TRANSFER_AUTHORITY"
)

// RegisterContract registers the token contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(c)
}

// Contract is the native contract managing the mint.
//
// - implements native.Contract
type Contract struct {
	deriver address.Deriver

	// cmd provides the commands executions
	cmd commands
}

// NewContract creates a new token contract for the program of the deriver.
func NewContract(deriver address.Deriver) Contract {
	contract := Contract{
		deriver: deriver,
	}

	contract.cmd = tokenCommand{Contract: &contract}

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
	case CmdInitMint:
		err := c.cmd.initMint(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to INIT_MINT: %w", err)
		}
	case CmdTransferAuthority:
		err := c.cmd.transferAuthority(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to TRANSFER_AUTHORITY: %w", err)
		}
	default:
		return xerrors.Errorf("unknown command %s: %w", cmd, execution.ErrInvalidArgument)
	}

	return nil
}

// tokenCommand implements the commands of the token contract
//
// - implements commands
type tokenCommand struct {
	*Contract
}

// initMint implements commands. It creates the mint held by the caller.
func (c tokenCommand) initMint(snap store.Snapshot, step execution.Step) error {
	mintAddr, err := c.deriver.Mint()
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, MintAccount, mintAddr)
	if err != nil {
		return err
	}

	decimals, err := native.GetUintArg(step, DecimalsArg, 8)
	if err != nil {
		return err
	}

	if decimals > MaxDecimals {
		return xerrors.Errorf("%d decimals is more than %d: %w",
			decimals, MaxDecimals, execution.ErrInvalidArgument)
	}

	ident := step.Current.GetIdentity()
	if ident == nil {
		return xerrors.Errorf("missing identity: %w", execution.ErrUnauthorized)
	}

	mint := &Mint{
		Authority: ident.GetAddress(),
		Decimals:  uint8(decimals),
	}

	err = entity.NewStore(snap).Create(mintAddr, mint)
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "token").
		Stringer("authority", mint.Authority).
		Uint8("decimals", mint.Decimals).
		Msg("mint created")

	return nil
}

// transferAuthority implements commands. It moves the issuance authority from
// the caller to the derived authority address.
func (c tokenCommand) transferAuthority(snap store.Snapshot, step execution.Step) error {
	mintAddr, err := c.deriver.Mint()
	if err != nil {
		return err
	}

	authority, err := c.deriver.MintAuthority()
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, MintAccount, mintAddr)
	if err != nil {
		return err
	}

	err = native.RequireAccount(step, MintAuthorityAccount, authority)
	if err != nil {
		return err
	}

	mint := &Mint{}

	err = entity.NewStore(snap).Mutate(mintAddr, mint, func() error {
		err := access.Match(execution.ErrUnauthorized, step.Current.GetIdentity(), mint.Authority)
		if err != nil {
			return err
		}

		mint.Authority = authority

		return nil
	})
	if err != nil {
		return err
	}

	contest.Logger.Info().
		Str("contract", "token").
		Stringer("authority", authority).
		Msg("mint authority delegated")

	return nil
}

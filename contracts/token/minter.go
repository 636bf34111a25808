package token

import (
	"github.com/gagliardetto/solana-go"
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
	"go.dedis.ch/contest/core/execution"
	"golang.org/x/xerrors"
)

// Minter issues tokens on behalf of the derived mint authority. It is used by
// the other contracts inside their own instruction.
type Minter struct {
	deriver address.Deriver
}

// NewMinter returns a minter for the program of the deriver.
func NewMinter(deriver address.Deriver) Minter {
	return Minter{deriver: deriver}
}

// MintTo credits the amount to the profile of the owner and adds it to the
// supply. The profile is created when absent. It fails with Unauthorized if the
// authority has not been delegated to the ledger, and with Overflow if the
// balance or the supply would exceed 64 bits.
func (m Minter) MintTo(st entity.Store, owner solana.PublicKey, amount uint64) (*UserProfile, error) {
	mintAddr, err := m.deriver.Mint()
	if err != nil {
		return nil, err
	}

	authority, err := m.deriver.MintAuthority()
	if err != nil {
		return nil, err
	}

	mint := &Mint{}

	err = st.Mutate(mintAddr, mint, func() error {
		if !mint.Authority.Equals(authority) {
			return xerrors.Errorf("mint authority is not delegated: %w", execution.ErrUnauthorized)
		}

		mint.Supply, err = execution.CheckedAdd(mint.Supply, amount)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to update mint: %w", err)
	}

	profile, err := m.credit(st, owner, amount)
	if err != nil {
		return nil, err
	}

	contest.Logger.Debug().
		Str("contract", "token").
		Stringer("owner", owner).
		Uint64("amount", amount).
		Uint64("balance", profile.Balance).
		Msg("tokens minted")

	return profile, nil
}

// credit adds the amount to the balance of the owner without touching the
// mint. The profile is created when absent.
func (m Minter) credit(st entity.Store, owner solana.PublicKey, amount uint64) (*UserProfile, error) {
	profile, profileAddr, err := m.EnsureProfile(st, owner)
	if err != nil {
		return nil, err
	}

	err = st.Mutate(profileAddr, profile, func() error {
		profile.Balance, err = execution.CheckedAdd(profile.Balance, amount)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to credit profile: %w", err)
	}

	return profile, nil
}

// EnsureProfile returns the profile of the owner, after creating it with an
// empty balance if absent.
func (m Minter) EnsureProfile(st entity.Store, owner solana.PublicKey) (*UserProfile, address.Address, error) {
	addr, err := m.deriver.Profile(owner)
	if err != nil {
		return nil, addr, err
	}

	profile := &UserProfile{}

	err = st.Read(addr, profile)
	if err == nil {
		return profile, addr, nil
	}

	if !xerrors.Is(err, execution.ErrNotFound) {
		return nil, addr, err
	}

	found, err := st.Exists(addr)
	if err != nil {
		return nil, addr, err
	}

	if found {
		return nil, addr, xerrors.Errorf("account %s is not a profile: %w", addr, execution.ErrInvalidAccount)
	}

	profile = &UserProfile{Owner: owner}

	err = st.Create(addr, profile)
	if err != nil {
		return nil, addr, err
	}

	return profile, addr, nil
}

// GetMint returns the mint record.
func (m Minter) GetMint(st entity.Store) (*Mint, error) {
	addr, err := m.deriver.Mint()
	if err != nil {
		return nil, err
	}

	mint := &Mint{}

	err = st.Read(addr, mint)
	if err != nil {
		return nil, err
	}

	return mint, nil
}

// GetProfile returns the profile of the owner.
func (m Minter) GetProfile(st entity.Store, owner solana.PublicKey) (*UserProfile, error) {
	addr, err := m.deriver.Profile(owner)
	if err != nil {
		return nil, err
	}

	profile := &UserProfile{}

	err = st.Read(addr, profile)
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// IsDelegated returns true if the issuance belongs to the ledger.
func (m Minter) IsDelegated(mint *Mint) bool {
	authority, err := m.deriver.MintAuthority()

	return err == nil && mint.Authority.Equals(authority)
}

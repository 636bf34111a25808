package token

import (
	"github.com/gagliardetto/solana-go"
	"go.dedis.ch/contest/core/execution"
)

// Mint is the singleton record of the reward token.
//
// - implements entity.Record
type Mint struct {
	// Authority is the address allowed to issue tokens. It is the creator of
	// the mint until the authority is delegated to the ledger.
	Authority solana.PublicKey
	Supply    uint64
	Decimals  uint8
}

// AccountName implements entity.Record.
func (Mint) AccountName() string {
	return "Mint"
}

// UserProfile is the balance of a participant. It is created the first time the
// participant is credited, or the first time they vote.
//
// - implements entity.Record
type UserProfile struct {
	Owner   solana.PublicKey
	Balance uint64
}

// AccountName implements entity.Record.
func (UserProfile) AccountName() string {
	return "UserProfile"
}

// BaseUnits returns the amount expressed in the smallest unit of the token.
func BaseUnits(amount uint64, decimals uint8) (uint64, error) {
	var err error

	for i := uint8(0); i < decimals; i++ {
		amount, err = execution.CheckedMul(amount, 10)
		if err != nil {
			return 0, err
		}
	}

	return amount, nil
}

package ledger

import (
	"go.dedis.ch/contest/contracts/contest"
	"go.dedis.ch/contest/contracts/quiz"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
)

// MintInfo is the mint and the amounts of the token in base units.
type MintInfo struct {
	Address   address.Address
	Delegated bool
	token.Mint

	// SupplyUnits is the supply in base units, or zero when it does not fit.
	SupplyUnits uint64
}

// GetMint returns the mint of the reward token.
func (n *Node) GetMint() (MintInfo, error) {
	var info MintInfo

	addr, err := n.deriver.Mint()
	if err != nil {
		return info, err
	}

	minter := token.NewMinter(n.deriver)

	err = n.Read(func(st entity.Store) error {
		mint, err := minter.GetMint(st)
		if err != nil {
			return err
		}

		info = MintInfo{
			Address:   addr,
			Delegated: minter.IsDelegated(mint),
			Mint:      *mint,
		}

		units, err := token.BaseUnits(mint.Supply, mint.Decimals)
		if err == nil {
			info.SupplyUnits = units
		}

		return nil
	})

	return info, err
}

// GetProfile returns the profile of the owner.
func (n *Node) GetProfile(owner address.Address) (*token.UserProfile, error) {
	var profile *token.UserProfile

	err := n.Read(func(st entity.Store) error {
		var err error
		profile, err = token.NewMinter(n.deriver).GetProfile(st, owner)
		return err
	})

	return profile, err
}

// GetSubmission returns the submission at the address.
func (n *Node) GetSubmission(addr address.Address) (*contest.Submission, error) {
	var sub *contest.Submission

	err := n.Read(func(st entity.Store) error {
		var err error
		sub, err = contest.GetSubmission(st, addr)
		return err
	})

	return sub, err
}

// ListSubmissions returns the submissions, the most voted first.
func (n *Node) ListSubmissions() ([]contest.Entry, error) {
	var entries []contest.Entry

	err := n.Read(func(st entity.Store) error {
		var err error
		entries, err = contest.ListSubmissions(st)
		return err
	})

	return entries, err
}

// GetQuizConfig returns the configuration of the quiz.
func (n *Node) GetQuizConfig() (*quiz.Config, error) {
	var config *quiz.Config

	err := n.Read(func(st entity.Store) error {
		var err error
		config, err = quiz.NewReader(n.deriver).GetConfig(st)
		return err
	})

	return config, err
}

// GetQuizState returns the attempt of the participant for the version.
func (n *Node) GetQuizState(participant address.Address, version uint64) (*quiz.State, error) {
	var state *quiz.State

	err := n.Read(func(st entity.Store) error {
		var err error
		state, err = quiz.NewReader(n.deriver).GetState(st, participant, version)
		return err
	})

	return state, err
}

// GetLeaderboard returns the attempts of the version ranked by score.
func (n *Node) GetLeaderboard(version uint64) ([]quiz.State, error) {
	var states []quiz.State

	err := n.Read(func(st entity.Store) error {
		var err error
		states, err = quiz.NewReader(n.deriver).Leaderboard(st, version)
		return err
	})

	return states, err
}

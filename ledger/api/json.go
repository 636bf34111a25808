package api

import (
	"time"

	"github.com/mr-tron/base58"
	"go.dedis.ch/contest/contracts/contest"
	"go.dedis.ch/contest/contracts/quiz"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/ledger"
	"golang.org/x/xerrors"
)

// ErrorJSON is the body of a failed request. The code and the name are set
// when the failure is one of the ledger errors.
type ErrorJSON struct {
	Error     string `json:"error"`
	Code      uint32 `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ConfirmationJSON is the JSON message of a confirmation. The binary fields are
// encoded in base58.
type ConfirmationJSON struct {
	Index       uint64    `json:"index"`
	ID          string    `json:"id"`
	Accepted    bool      `json:"accepted"`
	Code        uint32    `json:"code,omitempty"`
	Name        string    `json:"name,omitempty"`
	Message     string    `json:"message,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
	Previous    string    `json:"previous"`
	Hash        string    `json:"hash"`
	Signature   string    `json:"signature"`
}

// InfoJSON describes the node.
type InfoJSON struct {
	Program   string `json:"program"`
	Sequencer string `json:"sequencer"`
	Height    uint64 `json:"height"`
	Head      string `json:"head"`
}

// NonceJSON is the number of accepted instructions of an identity.
type NonceJSON struct {
	Identity string `json:"identity"`
	Nonce    uint64 `json:"nonce"`
}

// MintJSON is the mint of the reward token.
type MintJSON struct {
	Address     string `json:"address"`
	Authority   string `json:"authority"`
	Delegated   bool   `json:"delegated"`
	Supply      uint64 `json:"supply"`
	Decimals    uint8  `json:"decimals"`
	SupplyUnits uint64 `json:"supply_units"`
}

// ProfileJSON is the balance of a participant.
type ProfileJSON struct {
	Owner   string `json:"owner"`
	Balance uint64 `json:"balance"`
}

// SubmissionJSON is an entry of the contest.
type SubmissionJSON struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	Title     string `json:"title"`
	MediaID   string `json:"media_id"`
	VoteCount uint64 `json:"vote_count"`
}

// QuizJSON is the configuration of the quiz.
type QuizJSON struct {
	Admin   string `json:"admin"`
	Version uint64 `json:"version"`
}

// AttemptJSON is the attempt of a participant for a version of the quiz.
type AttemptJSON struct {
	Participant   string `json:"participant"`
	Version       uint64 `json:"version"`
	Total         uint64 `json:"total"`
	Correct       uint64 `json:"correct"`
	Completed     bool   `json:"completed"`
	TokensAwarded bool   `json:"tokens_awarded"`
	Passed        bool   `json:"passed"`
}

func newConfirmationJSON(conf ordering.Confirmation) ConfirmationJSON {
	return ConfirmationJSON{
		Index:       conf.Index,
		ID:          base58.Encode(conf.ID),
		Accepted:    conf.Accepted,
		Code:        conf.Code,
		Name:        conf.Name,
		Message:     conf.Message,
		CommittedAt: conf.CommittedAt,
		Previous:    base58.Encode(conf.Previous),
		Hash:        base58.Encode(conf.Hash),
		Signature:   base58.Encode(conf.Signature),
	}
}

// Confirmation returns the confirmation of the message.
func (m ConfirmationJSON) Confirmation() (ordering.Confirmation, error) {
	conf := ordering.Confirmation{
		Index:       m.Index,
		Accepted:    m.Accepted,
		Code:        m.Code,
		Name:        m.Name,
		Message:     m.Message,
		CommittedAt: m.CommittedAt,
	}

	fields := []struct {
		name string
		text string
		dst  *[]byte
	}{
		{"id", m.ID, &conf.ID},
		{"previous", m.Previous, &conf.Previous},
		{"hash", m.Hash, &conf.Hash},
		{"signature", m.Signature, &conf.Signature},
	}

	for _, field := range fields {
		data, err := base58.Decode(field.text)
		if err != nil {
			return conf, xerrors.Errorf("malformed %s: %v", field.name, err)
		}

		*field.dst = data
	}

	return conf, nil
}

func newMintJSON(info ledger.MintInfo) MintJSON {
	return MintJSON{
		Address:     info.Address.String(),
		Authority:   info.Authority.String(),
		Delegated:   info.Delegated,
		Supply:      info.Supply,
		Decimals:    info.Decimals,
		SupplyUnits: info.SupplyUnits,
	}
}

// MintInfo returns the mint of the message.
func (m MintJSON) MintInfo() (ledger.MintInfo, error) {
	addr, err := address.Parse(m.Address)
	if err != nil {
		return ledger.MintInfo{}, xerrors.Errorf("address: %v", err)
	}

	authority, err := address.Parse(m.Authority)
	if err != nil {
		return ledger.MintInfo{}, xerrors.Errorf("authority: %v", err)
	}

	info := ledger.MintInfo{
		Address:   addr,
		Delegated: m.Delegated,
		Mint: token.Mint{
			Authority: authority,
			Supply:    m.Supply,
			Decimals:  m.Decimals,
		},
		SupplyUnits: m.SupplyUnits,
	}

	return info, nil
}

func newProfileJSON(profile *token.UserProfile) ProfileJSON {
	return ProfileJSON{
		Owner:   profile.Owner.String(),
		Balance: profile.Balance,
	}
}

// Profile returns the profile of the message.
func (m ProfileJSON) Profile() (*token.UserProfile, error) {
	owner, err := address.Parse(m.Owner)
	if err != nil {
		return nil, xerrors.Errorf("owner: %v", err)
	}

	return &token.UserProfile{Owner: owner, Balance: m.Balance}, nil
}

func newSubmissionJSON(addr address.Address, sub contest.Submission) SubmissionJSON {
	return SubmissionJSON{
		Address:   addr.String(),
		Owner:     sub.Owner.String(),
		Title:     sub.Title,
		MediaID:   sub.MediaID,
		VoteCount: sub.VoteCount,
	}
}

// Entry returns the submission of the message along with its address.
func (m SubmissionJSON) Entry() (contest.Entry, error) {
	addr, err := address.Parse(m.Address)
	if err != nil {
		return contest.Entry{}, xerrors.Errorf("address: %v", err)
	}

	owner, err := address.Parse(m.Owner)
	if err != nil {
		return contest.Entry{}, xerrors.Errorf("owner: %v", err)
	}

	entry := contest.Entry{
		Address: addr,
		Submission: contest.Submission{
			Owner:     owner,
			Title:     m.Title,
			MediaID:   m.MediaID,
			VoteCount: m.VoteCount,
		},
	}

	return entry, nil
}

func newQuizJSON(config *quiz.Config) QuizJSON {
	return QuizJSON{
		Admin:   config.Admin.String(),
		Version: config.Version,
	}
}

// Config returns the configuration of the message.
func (m QuizJSON) Config() (*quiz.Config, error) {
	admin, err := address.Parse(m.Admin)
	if err != nil {
		return nil, xerrors.Errorf("admin: %v", err)
	}

	return &quiz.Config{Admin: admin, Version: m.Version}, nil
}

func newAttemptJSON(state quiz.State) AttemptJSON {
	return AttemptJSON{
		Participant:   state.Participant.String(),
		Version:       state.Version,
		Total:         state.Total,
		Correct:       state.Correct,
		Completed:     state.Completed,
		TokensAwarded: state.TokensAwarded,
		Passed:        state.Passed(),
	}
}

// State returns the attempt of the message.
func (m AttemptJSON) State() (*quiz.State, error) {
	participant, err := address.Parse(m.Participant)
	if err != nil {
		return nil, xerrors.Errorf("participant: %v", err)
	}

	state := &quiz.State{
		Participant:   participant,
		Version:       m.Version,
		Total:         m.Total,
		Correct:       m.Correct,
		Completed:     m.Completed,
		TokensAwarded: m.TokensAwarded,
	}

	return state, nil
}

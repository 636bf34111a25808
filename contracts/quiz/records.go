package quiz

import "github.com/gagliardetto/solana-go"

// Config is the singleton configuration of the quiz. The version is bumped by
// the admin to let every participant take the quiz again.
//
// - implements entity.Record
type Config struct {
	Admin   solana.PublicKey
	Version uint64
}

// AccountName implements entity.Record.
func (Config) AccountName() string {
	return "QuizConfig"
}

// State is the terminal attempt of a participant for a version of the quiz.
//
// - implements entity.Record
type State struct {
	Participant   solana.PublicKey
	Version       uint64
	Total         uint64
	Correct       uint64
	Completed     bool
	TokensAwarded bool
}

// AccountName implements entity.Record.
func (State) AccountName() string {
	return "QuizState"
}

// Passed returns true if the attempt earned the reward.
func (s State) Passed() bool {
	return s.TokensAwarded
}

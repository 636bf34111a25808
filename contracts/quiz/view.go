package quiz

import (
	"sort"

	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
)

// Reader reads the quiz records of a program.
type Reader struct {
	deriver address.Deriver
}

// NewReader returns a reader for the program of the deriver.
func NewReader(deriver address.Deriver) Reader {
	return Reader{deriver: deriver}
}

// GetConfig returns the configuration of the quiz.
func (r Reader) GetConfig(st entity.Store) (*Config, error) {
	addr, err := r.deriver.QuizConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{}

	err = st.Read(addr, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// GetState returns the attempt of the participant for the version.
func (r Reader) GetState(st entity.Store, participant address.Address, version uint64) (*State, error) {
	addr, err := r.deriver.QuizState(participant, version)
	if err != nil {
		return nil, err
	}

	state := &State{}

	err = st.Read(addr, state)
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Leaderboard returns the attempts of a version, the most correct answers
// first and the passing attempts before the failing ones on a tie.
func (r Reader) Leaderboard(st entity.Store, version uint64) ([]State, error) {
	states := []State{}
	state := &State{}

	err := st.ForEach(state, func(addr address.Address) error {
		if state.Version == version {
			states = append(states, *state)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(states, func(i, j int) bool {
		if states[i].Correct != states[j].Correct {
			return states[i].Correct > states[j].Correct
		}

		return states[i].Passed() && !states[j].Passed()
	})

	return states, nil
}

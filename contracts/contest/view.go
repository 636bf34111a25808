package contest

import (
	"sort"

	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/entity"
)

// Entry is a submission and its address.
type Entry struct {
	Address address.Address
	Submission
}

// GetSubmission returns the submission at the address.
func GetSubmission(st entity.Store, addr address.Address) (*Submission, error) {
	sub := &Submission{}

	err := st.Read(addr, sub)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// ListSubmissions returns every submission sorted by vote count, the most voted
// first. Ties are ordered by address.
func ListSubmissions(st entity.Store) ([]Entry, error) {
	entries := []Entry{}
	sub := &Submission{}

	err := st.ForEach(sub, func(addr address.Address) error {
		entries = append(entries, Entry{Address: addr, Submission: *sub})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].VoteCount > entries[j].VoteCount
	})

	return entries, nil
}

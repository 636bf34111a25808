package contest

import "github.com/gagliardetto/solana-go"

const (
	// MaxTitleLength is the largest title of a submission, in bytes.
	MaxTitleLength = 50

	// MaxMediaIDLength is the largest media identifier of a submission, in
	// bytes.
	MaxMediaIDLength = 20
)

// Submission is an entry of the contest.
//
// - implements entity.Record
type Submission struct {
	Owner     solana.PublicKey
	Title     string
	MediaID   string
	VoteCount uint64
}

// AccountName implements entity.Record.
func (Submission) AccountName() string {
	return "SubmissionAccount"
}

// VoteReceipt proves that a voter voted for a submission. Its address is what
// matters, it has no content.
//
// - implements entity.Record
type VoteReceipt struct{}

// AccountName implements entity.Record.
func (VoteReceipt) AccountName() string {
	return "VoteReceipt"
}

package execution

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Error is a named failure of an instruction. The code and the name are stable
// so that a client can react on the kind of failure, for instance to tell a
// participant that they already voted.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

var (
	// ErrAlreadyExists is returned when a record is created at an occupied
	// address, or when an instruction is replayed.
	ErrAlreadyExists = &Error{Code: 3000, Name: "AlreadyExists", Msg: "Account already exists."}

	// ErrNotFound is returned when an absent address is read or mutated.
	ErrNotFound = &Error{Code: 3012, Name: "NotFound", Msg: "Account does not exist."}

	// ErrNotContestant is returned when a submission is updated by someone
	// else than its owner.
	ErrNotContestant = &Error{Code: 6000, Name: "NotContestant", Msg: "Only the original contestant can update this submission."}

	// ErrOverflow is returned when an unsigned counter would exceed its range.
	ErrOverflow = &Error{Code: 6001, Name: "Overflow", Msg: "Arithmetic overflow occurred."}

	// ErrUnauthorized is returned when the caller fails an ownership, admin or
	// authority check.
	ErrUnauthorized = &Error{Code: 6002, Name: "Unauthorized", Msg: "Only the admin can perform this action."}

	// ErrAlreadyVoted is returned when the voter already voted for the
	// submission.
	ErrAlreadyVoted = &Error{Code: 6003, Name: "AlreadyVoted", Msg: "The user already voted for this submission."}

	// ErrAlreadyCompleted is returned when the participant already took the
	// quiz of the current version.
	ErrAlreadyCompleted = &Error{Code: 6004, Name: "AlreadyCompleted", Msg: "The user already completed the quiz for this version."}

	// ErrInvalidArgument is returned when an argument is missing, malformed
	// or out of bounds.
	ErrInvalidArgument = &Error{Code: 6005, Name: "InvalidArgument", Msg: "Invalid instruction argument."}

	// ErrInvalidAccount is returned when a named account does not match the
	// address the ledger derives for it.
	ErrInvalidAccount = &Error{Code: 6006, Name: "InvalidAccount", Msg: "Account does not match the expected address."}
)

var taxonomy = []*Error{
	ErrAlreadyExists,
	ErrNotFound,
	ErrNotContestant,
	ErrOverflow,
	ErrUnauthorized,
	ErrAlreadyVoted,
	ErrAlreadyCompleted,
	ErrInvalidArgument,
	ErrInvalidAccount,
}

// Error implements error. It returns the name and the message.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// Is implements the interface used by errors.Is. Two errors are the same when
// they share the code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)

	return ok && other.Code == e.Code
}

// FromCode returns the error of the taxonomy with the given code, or nil if
// the code is unknown.
func FromCode(code uint32) *Error {
	for _, e := range taxonomy {
		if e.Code == code {
			return e
		}
	}

	return nil
}

// FromName returns the error of the taxonomy with the given name, or nil if the
// name is unknown.
func FromName(name string) *Error {
	for _, e := range taxonomy {
		if e.Name == name {
			return e
		}
	}

	return nil
}

// Cause returns the error of the taxonomy wrapped in the error chain, or nil if
// there is none.
func Cause(err error) *Error {
	var e *Error
	if xerrors.As(err, &e) {
		return e
	}

	return nil
}

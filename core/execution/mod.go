// Package execution defines the service that executes an instruction against
// a snapshot of the ledger, and the taxonomy of the failures an instruction can
// end with.
package execution

import (
	"go.dedis.ch/contest/core/store"
	"go.dedis.ch/contest/core/txn"
)

// Step is a context of execution. It contains the instruction being executed.
type Step struct {
	Current txn.Transaction
}

// Result is the result of an instruction execution.
type Result struct {
	// Accepted is the success state of the instruction.
	Accepted bool

	// Message gives a chance to the execution to explain why an instruction
	// has failed.
	Message string

	// Err is the domain error the instruction ended with, or nil when it was
	// accepted or when the failure is not part of the taxonomy.
	Err *Error
}

// Service is the execution service that defines the primitives to execute an
// instruction.
type Service interface {
	// Execute must apply the instruction to the snapshot and return the result
	// of it. An error is returned only for failures unrelated to the
	// instruction itself.
	Execute(snap store.Snapshot, step Step) (Result, error)
}

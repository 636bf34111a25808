// Package native implements an execution service to run native contracts.
//
// A native contract is written in Go and packaged with the application. The
// instruction names the contract with the contract argument, and each contract
// dispatches on its own command argument.
package native

import (
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/store"
	"golang.org/x/xerrors"
)

const (
	// ContractArg is the argument key in the transaction to look up a contract.
	ContractArg = "go.dedis.ch/contest.ContractArg"
)

// Contract is the interface to implement to register a contract that will be
// executed natively.
type Contract interface {
	// Execute applies the instruction. A failure of the instruction itself
	// must wrap an error of the execution taxonomy, any other error is
	// considered a failure of the ledger.
	Execute(store.Snapshot, execution.Step) error

	// UID returns the unique name of the contract.
	UID() string
}

// Service is an execution service for packaged applications. Those
// applications have complete access to the snapshot and can directly update
// it.
//
// - implements execution.Service
type Service struct {
	contracts map[string]Contract
}

// NewExecution returns a new native execution. The given service will be
// executed for every incoming transaction.
func NewExecution() *Service {
	return &Service{
		contracts: map[string]Contract{},
	}
}

// Set stores the contract using its UID as the key. A transaction can trigger
// this contract by using the same name as the contract argument. It panics if
// a contract is already registered under the name.
func (ns *Service) Set(contract Contract) {
	name := contract.UID()

	_, found := ns.contracts[name]
	if found {
		panic("contract '" + name + "' already registered")
	}

	ns.contracts[name] = contract
}

// GetContracts returns the names of the registered contracts.
func (ns *Service) GetContracts() []string {
	names := make([]string, 0, len(ns.contracts))
	for name := range ns.contracts {
		names = append(names, name)
	}

	return names
}

// Execute implements execution.Service. It uses the executor to process the
// incoming transaction and return the result.
func (ns *Service) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	name := string(step.Current.GetArg(ContractArg))

	contract := ns.contracts[name]
	if contract == nil {
		err := xerrors.Errorf("unknown contract '%s': %w", name, execution.ErrInvalidArgument)

		return reject(err), nil
	}

	err := contract.Execute(snap, step)
	if err != nil {
		if execution.Cause(err) == nil {
			return execution.Result{}, xerrors.Errorf("contract '%s' failed: %v", name, err)
		}

		contest.Logger.Debug().
			Str("contract", name).
			Err(err).
			Msg("instruction refused")

		return reject(err), nil
	}

	return execution.Result{Accepted: true}, nil
}

func reject(err error) execution.Result {
	return execution.Result{
		Accepted: false,
		Message:  err.Error(),
		Err:      execution.Cause(err),
	}
}

package native

import (
	"strconv"

	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/execution"
	"golang.org/x/xerrors"
)

// GetArg returns the value of the argument, or an InvalidArgument error if it
// is missing.
func GetArg(step execution.Step, key string) ([]byte, error) {
	value := step.Current.GetArg(key)
	if len(value) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg: %w", key, execution.ErrInvalidArgument)
	}

	return value, nil
}

// GetUintArg returns the argument parsed as a decimal unsigned integer of the
// given bit size.
func GetUintArg(step execution.Step, key string, bitSize int) (uint64, error) {
	value, err := GetArg(step, key)
	if err != nil {
		return 0, err
	}

	num, err := strconv.ParseUint(string(value), 10, bitSize)
	if err != nil {
		return 0, xerrors.Errorf("malformed '%s' (%v): %w", key, err, execution.ErrInvalidArgument)
	}

	return num, nil
}

// GetAccount returns the address of the named account, or an InvalidAccount
// error if the instruction does not name it.
func GetAccount(step execution.Step, name string) (address.Address, error) {
	addr, found := step.Current.GetAccount(name)
	if !found {
		return address.Address{}, xerrors.Errorf("account '%s' is missing: %w", name, execution.ErrInvalidAccount)
	}

	return addr, nil
}

// RequireAccount returns nil if the named account is the expected address,
// otherwise an InvalidAccount error.
func RequireAccount(step execution.Step, name string, expected address.Address) error {
	addr, err := GetAccount(step, name)
	if err != nil {
		return err
	}

	if !addr.Equals(expected) {
		return xerrors.Errorf("account '%s' is %s instead of %s: %w",
			name, addr, expected, execution.ErrInvalidAccount)
	}

	return nil
}

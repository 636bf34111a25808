package execution

import (
	"math/bits"

	"golang.org/x/xerrors"
)

// CheckedAdd returns the sum of the counters, or an Overflow error if it does
// not fit in 64 bits.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, xerrors.Errorf("%d + %d: %w", a, b, ErrOverflow)
	}

	return sum, nil
}

// CheckedMul returns the product of the counters, or an Overflow error if it
// does not fit in 64 bits.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, xerrors.Errorf("%d * %d: %w", a, b, ErrOverflow)
	}

	return lo, nil
}

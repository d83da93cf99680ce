package core

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow is returned when a total no longer fits in 64 bits.
var ErrAmountOverflow = errors.New("amount overflow")

// Sum is a 256-bit accumulator for 64-bit amounts. Intermediate totals never
// wrap; only the final conversion back to uint64 can fail.
type Sum struct {
	v uint256.Int
}

func NewSum(amounts ...uint64) *Sum {
	s := &Sum{}
	for _, a := range amounts {
		s.Add(a)
	}
	return s
}

func (s *Sum) Add(amount uint64) *Sum {
	s.v.Add(&s.v, uint256.NewInt(amount))
	return s
}

func (s *Sum) AddSum(other *Sum) *Sum {
	s.v.Add(&s.v, &other.v)
	return s
}

// Cmp compares two sums and returns -1, 0 or +1.
func (s *Sum) Cmp(other *Sum) int {
	return s.v.Cmp(&other.v)
}

// Sub returns s - other, saturating at zero.
func (s *Sum) Sub(other *Sum) *Sum {
	out := &Sum{}
	if s.v.Cmp(&other.v) <= 0 {
		return out
	}
	out.v.Sub(&s.v, &other.v)
	return out
}

func (s *Sum) IsZero() bool {
	return s.v.IsZero()
}

// Uint64 returns the total, or ErrAmountOverflow when it does not fit.
func (s *Sum) Uint64() (uint64, error) {
	if !s.v.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return s.v.Uint64(), nil
}

func (s *Sum) String() string {
	return s.v.Dec()
}

// AddAmounts adds a and b, failing instead of wrapping.
func AddAmounts(a, b uint64) (uint64, error) {
	return NewSum(a, b).Uint64()
}

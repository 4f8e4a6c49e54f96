package flow

import (
	"fmt"
	"math/rand/v2"
)

// AmountPolicy draws the demo airtime amount uniformly from the multiples of
// Step within [Min, Max].
type AmountPolicy struct {
	Min  int64
	Max  int64
	Step int64

	intN func(n int64) int64
}

// NewAmountPolicy validates the bounds and returns a policy backed by math/rand/v2.
func NewAmountPolicy(min, max, step int64) (AmountPolicy, error) {
	if step <= 0 {
		return AmountPolicy{}, fmt.Errorf("amount step must be positive, got %d", step)
	}
	if min <= 0 || max < min {
		return AmountPolicy{}, fmt.Errorf("invalid amount range %d-%d", min, max)
	}
	if min%step != 0 {
		return AmountPolicy{}, fmt.Errorf("amount min %d is not a multiple of step %d", min, step)
	}

	return AmountPolicy{Min: min, Max: max, Step: step, intN: rand.Int64N}, nil
}

// Draw returns Min + Step*k for a uniform k.
func (p AmountPolicy) Draw() int64 {
	slots := (p.Max-p.Min)/p.Step + 1
	intN := p.intN
	if intN == nil {
		intN = rand.Int64N
	}
	return p.Min + p.Step*intN(slots)
}

// Contains reports whether amount is a value Draw can produce.
func (p AmountPolicy) Contains(amount int64) bool {
	return amount >= p.Min && amount <= p.Max && (amount-p.Min)%p.Step == 0
}

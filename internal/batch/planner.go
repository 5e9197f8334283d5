package batch

import (
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlanner produces a lazy, finite sequence of randomly-valued transfer
// amounts between a minimum and a maximum, rendered with a fixed number of
// fractional digits. The sequence is not restartable.
type AmountPlanner struct {
	lo        *big.Int
	span      *big.Int
	precision int
	remaining int
	rnd       *rand.Rand
}

// NewAmountPlanner validates the bounds and prepares a sequence of length count.
// Bounds are inclusive; min == max degenerates to that value.
func NewAmountPlanner(min, max string, precision, count int) (*AmountPlanner, error) {
	if precision < 0 {
		return nil, fmt.Errorf("precision must not be negative")
	}
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative")
	}
	minDec, err := decimal.NewFromString(min)
	if err != nil {
		return nil, fmt.Errorf("parse min amount %q: %w", min, err)
	}
	maxDec, err := decimal.NewFromString(max)
	if err != nil {
		return nil, fmt.Errorf("parse max amount %q: %w", max, err)
	}
	if minDec.GreaterThan(maxDec) {
		return nil, fmt.Errorf("min amount %s exceeds max amount %s", min, max)
	}

	// Scale both bounds to integers at the requested precision. The lower
	// bound rounds up and the upper bound rounds down so every drawn value
	// stays inside [min, max] after rendering.
	lo := minDec.Shift(int32(precision)).Ceil().BigInt()
	hi := maxDec.Shift(int32(precision)).Floor().BigInt()
	if lo.Cmp(hi) > 0 {
		return nil, fmt.Errorf("no amount between %s and %s is representable with %d decimal places", min, max, precision)
	}

	return &AmountPlanner{
		lo:        lo,
		span:      new(big.Int).Sub(hi, lo),
		precision: precision,
		remaining: count,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Next returns the next planned amount, or ok=false once the sequence is
// exhausted. The value always carries exactly the configured number of
// fractional digits.
func (p *AmountPlanner) Next() (string, bool) {
	if p.remaining <= 0 {
		return "", false
	}
	p.remaining--

	n := new(big.Int).Set(p.lo)
	if p.span.Sign() > 0 {
		bound := new(big.Int).Add(p.span, big.NewInt(1))
		n.Add(n, new(big.Int).Rand(p.rnd, bound))
	}
	return decimal.NewFromBigInt(n, -int32(p.precision)).StringFixed(int32(p.precision)), true
}

// Remaining reports how many amounts are left in the sequence.
func (p *AmountPlanner) Remaining() int {
	return p.remaining
}

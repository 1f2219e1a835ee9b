// Package money holds exact minor-unit currency amounts.
package money

import (
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"math"
	"math/bits"
	"strings"
)

// MinorDigits is the number of minor-unit digits for every supported currency (kobo, cents).
const MinorDigits = 2

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrOverflow         = errors.New("amount out of range")
)

// Money is an amount in minor units. It never carries a float.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

func Zero(currency string) Money { return New(0, currency) }

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	sum := m.Amount + o.Amount
	if (o.Amount > 0 && sum < m.Amount) || (o.Amount < 0 && sum > m.Amount) {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrOverflow, m.Amount, o.Amount)
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	diff := m.Amount - o.Amount
	if (o.Amount > 0 && diff > m.Amount) || (o.Amount < 0 && diff < m.Amount) {
		return Money{}, fmt.Errorf("%w: %d - %d", ErrOverflow, m.Amount, o.Amount)
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// Mul multiplies by a line-item quantity.
func (m Money) Mul(qty int) (Money, error) {
	a, q := m.Amount, int64(qty)
	hi, lo := bits.Mul64(abs(a), abs(q))
	if hi != 0 || lo > math.MaxInt64 {
		return Money{}, fmt.Errorf("%w: %d x %d", ErrOverflow, a, q)
	}
	r := int64(lo)
	if (a < 0) != (q < 0) {
		r = -r
	}
	return Money{Amount: r, Currency: m.Currency}, nil
}

func abs(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// Bps returns floor(m * bps / 10000) for non-negative m and 0 <= bps <= 10000, used for
// platform fees. The split keeps the intermediate product in range.
func (m Money) Bps(bps int) Money {
	b := int64(bps)
	return Money{Amount: m.Amount/10000*b + m.Amount%10000*b/10000, Currency: m.Currency}
}

// Sum adds amounts of one currency. An empty slice sums to zero in the given currency.
func Sum(currency string, ms ...Money) (Money, error) {
	total := Zero(currency)
	for _, m := range ms {
		var err error
		if total, err = total.Add(m); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// Decimal renders the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -MinorDigits)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MinorDigits) + " " + m.Currency
}

// ParseMajor parses a major-unit string ("1250.50") into minor units.
// More than MinorDigits fractional digits is rejected rather than rounded.
func ParseMajor(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	minor := d.Shift(MinorDigits)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("amount %q has more than %d decimal places", s, MinorDigits)
	}
	return New(minor.IntPart(), currency), nil
}

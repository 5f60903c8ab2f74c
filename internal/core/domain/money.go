package domain

import (
	"fmt"
	"strings"
)

// MaxPixAmountCents is the Pix per-transfer ceiling (R$ 20,000.00).
const MaxPixAmountCents int64 = 2_000_000

// Zero is the zero money value.
var Zero = Money{}

// Money is an exact amount in minor units (cents). Storing integers
// eliminates binary-float drift; all core arithmetic uses this type.
type Money struct {
	Cents int64 `json:"cents"`
}

// NewMoney creates a Money from minor units.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// MoneyFromString parses a major-unit decimal string ("100.50") into Money,
// rounding half-up to 2 decimal places.
func MoneyFromString(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrAmountEmpty
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return Zero, ErrAmountMalformed
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}

	var units int64
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return Zero, ErrAmountMalformed
		}
		d := int64(r - '0')
		if units > (maxInt64-d)/10 {
			return Zero, ErrAmountOverflow
		}
		units = units*10 + d
	}

	// Two fractional digits carry into cents; the third rounds half-up.
	var frac int64
	for i, r := range fracPart {
		if r < '0' || r > '9' {
			return Zero, ErrAmountMalformed
		}
		switch {
		case i < 2:
			frac = frac*10 + int64(r-'0')
		case i == 2:
			if r >= '5' {
				frac++
			}
		}
	}
	if len(fracPart) == 1 {
		frac *= 10
	}

	if units > (maxInt64-frac)/100 {
		return Zero, ErrAmountOverflow
	}
	cents := units*100 + frac
	if neg {
		cents = -cents
	}
	return Money{Cents: cents}, nil
}

const maxInt64 = int64(^uint64(0) >> 1)

// Add returns m+other, failing on int64 overflow.
func (m Money) Add(other Money) (Money, error) {
	sum := m.Cents + other.Cents
	if (other.Cents > 0 && sum < m.Cents) || (other.Cents < 0 && sum > m.Cents) {
		return Zero, ErrAmountOverflow
	}
	return Money{Cents: sum}, nil
}

// Subtract returns m-other, failing on int64 overflow.
func (m Money) Subtract(other Money) (Money, error) {
	diff := m.Cents - other.Cents
	if (other.Cents < 0 && diff < m.Cents) || (other.Cents > 0 && diff > m.Cents) {
		return Zero, ErrAmountOverflow
	}
	return Money{Cents: diff}, nil
}

// Multiply returns m*n, failing on int64 overflow.
func (m Money) Multiply(n int64) (Money, error) {
	if m.Cents == 0 || n == 0 {
		return Zero, nil
	}
	product := m.Cents * n
	if product/n != m.Cents {
		return Zero, ErrAmountOverflow
	}
	return Money{Cents: product}, nil
}

// Negate returns -m.
func (m Money) Negate() Money {
	return Money{Cents: -m.Cents}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Compare returns -1, 0, or +1.
func (m Money) Compare(other Money) int {
	switch {
	case m.Cents < other.Cents:
		return -1
	case m.Cents > other.Cents:
		return 1
	default:
		return 0
	}
}

func (m Money) LessThan(other Money) bool    { return m.Cents < other.Cents }
func (m Money) GreaterThan(other Money) bool { return m.Cents > other.Cents }

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// Float64 returns the amount in major units (reais) for response bodies.
func (m Money) Float64() float64 {
	return float64(m.Cents) / 100
}

// String renders the display form, e.g. "R$ 20.50". The magnitude is
// taken as unsigned so math.MinInt64 renders exactly.
func (m Money) String() string {
	sign := ""
	mag := uint64(m.Cents)
	if m.Cents < 0 {
		sign = "-"
		mag = -mag
	}
	return fmt.Sprintf("%sR$ %d.%02d", sign, mag/100, mag%100)
}

// ValidatePix checks the amount against the Pix transfer rules: strictly
// positive and at most maxCents (MaxPixAmountCents when maxCents <= 0).
func (m Money) ValidatePix(maxCents int64) error {
	if maxCents <= 0 {
		maxCents = MaxPixAmountCents
	}
	if m.Cents <= 0 {
		return ErrAmountNotPositive
	}
	if m.Cents > maxCents {
		return ErrAmountAboveLimit
	}
	return nil
}

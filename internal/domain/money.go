package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an immutable, currency-tagged, non-negative decimal amount.
// The zero value is not a valid Money; build one with NewMoney or MoneyFromString.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney validates amount and currency. The currency is trimmed and upper-cased.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return Money{}, ErrInvalidCurrency
	}
	return Money{amount: amount, currency: code}, nil
}

// MoneyFromString parses a decimal amount such as "19.99"
func MoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, amount)
	}
	return NewMoney(d, currency)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the upper-case currency code
func (m Money) Currency() string {
	return m.currency
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// Add returns m + other
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns m - other; the result must not be negative
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrNegativeResult, m, other)
	}
	return Money{amount: result, currency: m.currency}, nil
}

// Multiply returns m × factor; factor must be non-negative
func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidFactor, factor)
	}
	return Money{amount: m.amount.Mul(factor), currency: m.currency}, nil
}

// Equals compares amount by decimal value and currency exactly
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String renders "100.00 USD"
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// SumMoney folds list with Add
func SumMoney(list []Money) (Money, error) {
	if len(list) == 0 {
		return Money{}, ErrEmptyList
	}

	total := list[0]
	for _, m := range list[1:] {
		var err error
		if total, err = total.Add(m); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

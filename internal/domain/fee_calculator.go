package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LateFeeSchedule describes the fee charged when an invoice passes its due date
type LateFeeSchedule struct {
	// Rate is applied to the invoice total, e.g. 0.05 for five percent
	Rate decimal.Decimal
	// Minimum is the floor in the invoice currency
	Minimum     decimal.Decimal
	Description string
}

// DefaultLateFeeSchedule charges 5% of the total with no floor
func DefaultLateFeeSchedule() LateFeeSchedule {
	return LateFeeSchedule{
		Rate:        decimal.RequireFromString("0.05"),
		Minimum:     decimal.Zero,
		Description: "Late payment fee",
	}
}

// FeeCalculator computes late fee lines from a schedule
type FeeCalculator struct {
	schedule LateFeeSchedule
}

// NewFeeCalculator creates a new fee calculator
func NewFeeCalculator(schedule LateFeeSchedule) (*FeeCalculator, error) {
	if schedule.Rate.IsNegative() || schedule.Minimum.IsNegative() {
		return nil, fmt.Errorf("%w: late fee rate and minimum must be non-negative", ErrValidation)
	}
	if schedule.Description == "" {
		schedule.Description = DefaultLateFeeSchedule().Description
	}
	return &FeeCalculator{schedule: schedule}, nil
}

// LateFee returns max(total × rate, minimum) rounded to cents, as a single line in the
// invoice currency.
func (c *FeeCalculator) LateFee(invoice *Invoice) (InvoiceItem, error) {
	total := invoice.Total()

	amount := total.Amount().Mul(c.schedule.Rate).Round(2)
	if amount.LessThan(c.schedule.Minimum) {
		amount = c.schedule.Minimum
	}

	price, err := NewMoney(amount, total.Currency())
	if err != nil {
		return InvoiceItem{}, err
	}
	return NewInvoiceItem(c.schedule.Description, decimal.NewFromInt(1), price)
}

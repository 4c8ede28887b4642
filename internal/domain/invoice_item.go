package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// InvoiceItem is an immutable invoice line
type InvoiceItem struct {
	description string
	quantity    decimal.Decimal
	unitPrice   Money
	total       Money
}

// NewInvoiceItem validates the line and computes its total
func NewInvoiceItem(description string, quantity decimal.Decimal, unitPrice Money) (InvoiceItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return InvoiceItem{}, fmt.Errorf("%w: description is required", ErrInvalidItem)
	}
	if !quantity.IsPositive() {
		return InvoiceItem{}, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidItem)
	}
	if unitPrice.currency == "" {
		return InvoiceItem{}, fmt.Errorf("%w: unit price is required", ErrInvalidItem)
	}

	total, err := unitPrice.Multiply(quantity)
	if err != nil {
		return InvoiceItem{}, err
	}

	return InvoiceItem{
		description: description,
		quantity:    quantity,
		unitPrice:   unitPrice,
		total:       total,
	}, nil
}

// Description returns the line description
func (i InvoiceItem) Description() string { return i.description }

// Quantity returns the line quantity
func (i InvoiceItem) Quantity() decimal.Decimal { return i.quantity }

// UnitPrice returns the price of one unit
func (i InvoiceItem) UnitPrice() Money { return i.unitPrice }

// Total returns unitPrice × quantity
func (i InvoiceItem) Total() Money { return i.total }

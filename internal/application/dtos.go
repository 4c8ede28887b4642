package application

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/services/invoice-service/internal/domain"
)

// InvoiceItemInput describes one line in a command. Amounts are decimal strings.
type InvoiceItemInput struct {
	Description string `json:"description" binding:"required,max=500,safe_string"`
	Quantity    string `json:"quantity" binding:"required,positive"`
	UnitPrice   string `json:"unitPrice" binding:"required,decimal"`
	Currency    string `json:"currency" binding:"required,currency"`
}

// CreateInvoiceCommand represents command to create an invoice
type CreateInvoiceCommand struct {
	ClientID        string             `json:"clientId" binding:"required,max=100"`
	Items           []InvoiceItemInput `json:"items" binding:"required,min=1,dive"`
	DueDate         time.Time          `json:"dueDate" binding:"required"`
	Notes           string             `json:"notes" binding:"max=2000"`
	PaymentMethodID string             `json:"paymentMethodId" binding:"max=100"`
}

// CancelInvoiceCommand represents command to cancel an invoice
type CancelInvoiceCommand struct {
	Reason string `json:"reason" binding:"max=500"`
}

// RetryInvoiceCommand represents command to retry a failed invoice
type RetryInvoiceCommand struct {
	PaymentMethodID string `json:"paymentMethodId" binding:"max=100"`
}

// UpdateDueDateCommand represents command to move the due date
type UpdateDueDateCommand struct {
	DueDate time.Time `json:"dueDate" binding:"required"`
}

// UpdateNotesCommand represents command to replace invoice notes
type UpdateNotesCommand struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// MoneyDTO represents an amount with its currency
type MoneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// InvoiceItemDTO represents an invoice line
type InvoiceItemDTO struct {
	Description string   `json:"description"`
	Quantity    string   `json:"quantity"`
	UnitPrice   MoneyDTO `json:"unitPrice"`
	Total       MoneyDTO `json:"total"`
}

// InvoiceDTO represents an invoice response
type InvoiceDTO struct {
	InvoiceID     string           `json:"invoiceId"`
	ClientID      string           `json:"clientId"`
	Status        string           `json:"status"`
	Items         []InvoiceItemDTO `json:"items"`
	Total         MoneyDTO         `json:"total"`
	DueDate       time.Time        `json:"dueDate"`
	Notes         string           `json:"notes,omitempty"`
	CancelReason  string           `json:"cancelReason,omitempty"`
	FailureReason string           `json:"failureReason,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	AuthorizedAt  *time.Time       `json:"authorizedAt,omitempty"`
	PaidAt        *time.Time       `json:"paidAt,omitempty"`
	FailedAt      *time.Time       `json:"failedAt,omitempty"`
	CanceledAt    *time.Time       `json:"canceledAt,omitempty"`
	Version       int64            `json:"version"`
}

// InvoiceListResponse wraps a list of invoices
type InvoiceListResponse struct {
	Data  []InvoiceDTO `json:"data"`
	Count int          `json:"count"`
}

// LateFeeSweepResult summarizes one overdue sweep
type LateFeeSweepResult struct {
	AsOf     time.Time         `json:"asOf"`
	Scanned  int               `json:"scanned"`
	Applied  int               `json:"applied"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// ToDomainItem validates an item input and builds the domain line
func ToDomainItem(in InvoiceItemInput) (domain.InvoiceItem, error) {
	quantity, err := decimal.NewFromString(in.Quantity)
	if err != nil {
		return domain.InvoiceItem{}, fmt.Errorf("%w: quantity %q is not a decimal", domain.ErrInvalidItem, in.Quantity)
	}
	price, err := domain.MoneyFromString(in.UnitPrice, in.Currency)
	if err != nil {
		return domain.InvoiceItem{}, err
	}
	return domain.NewInvoiceItem(in.Description, quantity, price)
}

func toMoneyDTO(m domain.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount().StringFixed(2), Currency: m.Currency()}
}

// ToInvoiceDTO converts domain invoice to DTO
func ToInvoiceDTO(inv *domain.Invoice) *InvoiceDTO {
	items := inv.Items()
	itemDTOs := make([]InvoiceItemDTO, len(items))
	for i, item := range items {
		itemDTOs[i] = InvoiceItemDTO{
			Description: item.Description(),
			Quantity:    item.Quantity().String(),
			UnitPrice:   toMoneyDTO(item.UnitPrice()),
			Total:       toMoneyDTO(item.Total()),
		}
	}

	return &InvoiceDTO{
		InvoiceID:     inv.ID(),
		ClientID:      inv.ClientID(),
		Status:        string(inv.Status()),
		Items:         itemDTOs,
		Total:         toMoneyDTO(inv.Total()),
		DueDate:       inv.DueDate().Value(),
		Notes:         inv.Notes(),
		CancelReason:  inv.CancelReason(),
		FailureReason: inv.FailureReason(),
		CreatedAt:     inv.CreatedAt(),
		UpdatedAt:     inv.UpdatedAt(),
		AuthorizedAt:  inv.AuthorizedAt(),
		PaidAt:        inv.PaidAt(),
		FailedAt:      inv.FailedAt(),
		CanceledAt:    inv.CanceledAt(),
		Version:       inv.Version(),
	}
}

// ToInvoiceListResponse converts a slice of invoices
func ToInvoiceListResponse(invoices []*domain.Invoice) *InvoiceListResponse {
	data := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		data[i] = *ToInvoiceDTO(inv)
	}
	return &InvoiceListResponse{Data: data, Count: len(data)}
}

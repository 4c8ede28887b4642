package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/services/invoice-service/internal/domain"
)

// invoiceDocument is the stored form of an invoice. Decimals are kept as strings so
// amounts round-trip exactly.
type invoiceDocument struct {
	ID            string         `bson:"_id"`
	ClientID      string         `bson:"clientId"`
	Items         []itemDocument `bson:"items"`
	TotalAmount   string         `bson:"totalAmount"`
	Currency      string         `bson:"currency"`
	Status        string         `bson:"status"`
	DueDate       time.Time      `bson:"dueDate"`
	CreatedAt     time.Time      `bson:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt"`
	PaidAt        *time.Time     `bson:"paidAt,omitempty"`
	CanceledAt    *time.Time     `bson:"canceledAt,omitempty"`
	AuthorizedAt  *time.Time     `bson:"authorizedAt,omitempty"`
	FailedAt      *time.Time     `bson:"failedAt,omitempty"`
	Notes         string         `bson:"notes,omitempty"`
	CancelReason  string         `bson:"cancelReason,omitempty"`
	FailureReason string         `bson:"failureReason,omitempty"`
	Version       int64          `bson:"version"`
}

type itemDocument struct {
	Description string `bson:"description"`
	Quantity    string `bson:"quantity"`
	UnitPrice   string `bson:"unitPrice"`
	Currency    string `bson:"currency"`
	Total       string `bson:"total"`
}

func toDocument(inv *domain.Invoice, version int64) invoiceDocument {
	items := inv.Items()
	itemDocs := make([]itemDocument, len(items))
	for i, item := range items {
		itemDocs[i] = itemDocument{
			Description: item.Description(),
			Quantity:    item.Quantity().String(),
			UnitPrice:   item.UnitPrice().Amount().String(),
			Currency:    item.UnitPrice().Currency(),
			Total:       item.Total().Amount().String(),
		}
	}

	return invoiceDocument{
		ID:            inv.ID(),
		ClientID:      inv.ClientID(),
		Items:         itemDocs,
		TotalAmount:   inv.Total().Amount().String(),
		Currency:      inv.Total().Currency(),
		Status:        string(inv.Status()),
		DueDate:       inv.DueDate().Value(),
		CreatedAt:     inv.CreatedAt(),
		UpdatedAt:     inv.UpdatedAt(),
		PaidAt:        inv.PaidAt(),
		CanceledAt:    inv.CanceledAt(),
		AuthorizedAt:  inv.AuthorizedAt(),
		FailedAt:      inv.FailedAt(),
		Notes:         inv.Notes(),
		CancelReason:  inv.CancelReason(),
		FailureReason: inv.FailureReason(),
		Version:       version,
	}
}

// toDomain rebuilds the aggregate; the stored total is ignored and recomputed from items
func (d invoiceDocument) toDomain() (*domain.Invoice, error) {
	items := make([]domain.InvoiceItem, len(d.Items))
	for i, doc := range d.Items {
		quantity, err := decimal.NewFromString(doc.Quantity)
		if err != nil {
			return nil, fmt.Errorf("invoice %s item %d: bad quantity %q: %w", d.ID, i, doc.Quantity, err)
		}
		price, err := domain.MoneyFromString(doc.UnitPrice, doc.Currency)
		if err != nil {
			return nil, fmt.Errorf("invoice %s item %d: %w", d.ID, i, err)
		}
		item, err := domain.NewInvoiceItem(doc.Description, quantity, price)
		if err != nil {
			return nil, fmt.Errorf("invoice %s item %d: %w", d.ID, i, err)
		}
		items[i] = item
	}

	return domain.ReconstituteInvoice(domain.InvoiceSnapshot{
		ID:            d.ID,
		ClientID:      d.ClientID,
		Items:         items,
		Status:        domain.InvoiceStatus(d.Status),
		DueDate:       domain.DueDateFromStorage(d.DueDate),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		PaidAt:        d.PaidAt,
		CanceledAt:    d.CanceledAt,
		AuthorizedAt:  d.AuthorizedAt,
		FailedAt:      d.FailedAt,
		Notes:         d.Notes,
		CancelReason:  d.CancelReason,
		FailureReason: d.FailureReason,
		Version:       d.Version,
	})
}

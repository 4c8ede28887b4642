package domain

import (
	"context"
	"time"
)

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// Save inserts or updates an invoice. It fails with ErrConcurrentModification when
	// the stored version no longer matches invoice.Version().
	Save(ctx context.Context, invoice *Invoice) error

	// FindByID retrieves an invoice by ID; (nil, nil) when absent
	FindByID(ctx context.Context, invoiceID string) (*Invoice, error)

	// FindOverdue retrieves pending invoices due before asOf
	FindOverdue(ctx context.Context, asOf time.Time) ([]*Invoice, error)

	// FindByClientAndStatus retrieves a client's invoices; an empty status matches all
	FindByClientAndStatus(ctx context.Context, clientID string, status InvoiceStatus) ([]*Invoice, error)
}

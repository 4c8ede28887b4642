package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
	"github.com/wms-platform/services/invoice-service/pkg/tracing"
)

// InvoiceService handles invoice use cases. Each mutating use case loads the aggregate,
// calls one aggregate method, saves, then publishes the drained events in order.
type InvoiceService struct {
	repo    domain.InvoiceRepository
	bus     EventBus
	ids     IdGenerator
	fees    *domain.FeeCalculator
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewInvoiceService creates a new InvoiceService. m may be nil.
func NewInvoiceService(
	repo domain.InvoiceRepository,
	bus EventBus,
	ids IdGenerator,
	fees *domain.FeeCalculator,
	logger *logging.Logger,
	m *metrics.Metrics,
) *InvoiceService {
	return &InvoiceService{
		repo:    repo,
		bus:     bus,
		ids:     ids,
		fees:    fees,
		logger:  logger.WithComponent("invoice-service"),
		metrics: m,
		tracer:  otel.Tracer("invoice-service/application"),
	}
}

// CreateInvoice creates a pending invoice and publishes the Created integration event
func (s *InvoiceService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*InvoiceDTO, error) {
	items := make([]domain.InvoiceItem, 0, len(cmd.Items))
	for _, in := range cmd.Items {
		item, err := ToDomainItem(in)
		if err != nil {
			return nil, mapError(err)
		}
		items = append(items, item)
	}

	dueDate, err := domain.NewDueDate(cmd.DueDate)
	if err != nil {
		return nil, mapError(err)
	}

	invoice, err := domain.NewInvoice(s.ids.Generate(), cmd.ClientID, items, dueDate, cmd.Notes)
	if err != nil {
		return nil, mapError(err)
	}

	if err := s.persistAndPublish(ctx, invoice, func(events []domain.DomainEvent) []domain.DomainEvent {
		return toIntegrationEvents(events, cmd.PaymentMethodID)
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordInvoiceCreated(invoice.Total().Currency())
	}
	s.logger.WithContext(ctx).WithInvoice(invoice.ID()).Info("Invoice created",
		"clientId", invoice.ClientID(),
		"total", invoice.Total().String(),
		"itemCount", invoice.ItemCount(),
	)

	return ToInvoiceDTO(invoice), nil
}

// GetInvoice retrieves an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID string) (*InvoiceDTO, error) {
	invoice, err := s.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return ToInvoiceDTO(invoice), nil
}

// ListClientInvoices lists a client's invoices, optionally filtered by status
func (s *InvoiceService) ListClientInvoices(ctx context.Context, clientID, status string) (*InvoiceListResponse, error) {
	var filter domain.InvoiceStatus
	if status != "" {
		parsed, err := domain.ParseInvoiceStatus(status)
		if err != nil {
			return nil, mapError(err)
		}
		filter = parsed
	}

	invoices, err := s.repo.FindByClientAndStatus(ctx, clientID, filter)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list invoices: %w", err))
	}
	return ToInvoiceListResponse(invoices), nil
}

// AddItem appends a line to a pending invoice
func (s *InvoiceService) AddItem(ctx context.Context, invoiceID string, in InvoiceItemInput) (*InvoiceDTO, error) {
	item, err := ToDomainItem(in)
	if err != nil {
		return nil, mapError(err)
	}
	return s.execute(ctx, invoiceID, "add item", func(inv *domain.Invoice) error {
		return inv.AddItem(item)
	}, nil)
}

// RemoveItem removes the line at index from a pending invoice
func (s *InvoiceService) RemoveItem(ctx context.Context, invoiceID string, index int) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "remove item", func(inv *domain.Invoice) error {
		return inv.RemoveItem(index)
	}, nil)
}

// UpdateDueDate moves the due date of a pending invoice
func (s *InvoiceService) UpdateDueDate(ctx context.Context, invoiceID string, at time.Time) (*InvoiceDTO, error) {
	dueDate, err := domain.NewDueDate(at)
	if err != nil {
		return nil, mapError(err)
	}
	return s.execute(ctx, invoiceID, "update due date", func(inv *domain.Invoice) error {
		return inv.UpdateDueDate(dueDate)
	}, nil)
}

// UpdateNotes replaces the notes of an invoice in any status
func (s *InvoiceService) UpdateNotes(ctx context.Context, invoiceID, notes string) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "update notes", func(inv *domain.Invoice) error {
		inv.UpdateNotes(notes)
		return nil
	}, nil)
}

// Cancel cancels an invoice that is not paid
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID string, at time.Time, reason string) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "cancel", func(inv *domain.Invoice) error {
		return inv.Cancel(at, reason)
	}, nil)
}

// Retry moves a failed invoice back to pending and publishes the Retried integration event
func (s *InvoiceService) Retry(ctx context.Context, invoiceID, paymentMethodID string) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "retry", func(inv *domain.Invoice) error {
		return inv.Retry()
	}, func(events []domain.DomainEvent) []domain.DomainEvent {
		return toIntegrationEvents(events, paymentMethodID)
	})
}

// MarkAsAuthorized records a payment authorization
func (s *InvoiceService) MarkAsAuthorized(ctx context.Context, invoiceID string, at time.Time) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "authorize", func(inv *domain.Invoice) error {
		return inv.MarkAsAuthorized(at)
	}, nil)
}

// MarkAsFailed records a payment failure
func (s *InvoiceService) MarkAsFailed(ctx context.Context, invoiceID, reason string) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "fail", func(inv *domain.Invoice) error {
		return inv.MarkAsFailed(reason)
	}, nil)
}

// MarkAsPaid captures an authorized invoice
func (s *InvoiceService) MarkAsPaid(ctx context.Context, invoiceID string, at time.Time) (*InvoiceDTO, error) {
	return s.execute(ctx, invoiceID, "pay", func(inv *domain.Invoice) error {
		return inv.MarkAsPaid(at)
	}, nil)
}

// Capture settles an authorized invoice; it is MarkAsPaid under the payment provider's name
func (s *InvoiceService) Capture(ctx context.Context, invoiceID string, at time.Time) (*InvoiceDTO, error) {
	return s.MarkAsPaid(ctx, invoiceID, at)
}

// ListOverdue returns pending invoices due before asOf
func (s *InvoiceService) ListOverdue(ctx context.Context, asOf time.Time) (*InvoiceListResponse, error) {
	invoices, err := s.repo.FindOverdue(ctx, asOf)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to find overdue invoices: %w", err))
	}
	return ToInvoiceListResponse(invoices), nil
}

// ApplyLateFees charges the late fee on every pending invoice due before asOf.
// A failure on one invoice is recorded in the result and does not stop the sweep.
func (s *InvoiceService) ApplyLateFees(ctx context.Context, asOf time.Time) (*LateFeeSweepResult, error) {
	if s.fees == nil {
		return nil, mapError(fmt.Errorf("%w: no late fee schedule configured", domain.ErrValidation))
	}

	invoices, err := s.repo.FindOverdue(ctx, asOf)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to find overdue invoices: %w", err))
	}

	result := &LateFeeSweepResult{AsOf: asOf, Scanned: len(invoices)}
	for _, invoice := range invoices {
		applied, err := s.applyLateFee(ctx, invoice)
		switch {
		case err != nil:
			result.Failed++
			if result.Failures == nil {
				result.Failures = make(map[string]string)
			}
			result.Failures[invoice.ID()] = err.Error()
			s.logger.WithContext(ctx).WithInvoice(invoice.ID()).WithError(err).Warn("Late fee not applied")
		case applied:
			result.Applied++
		default:
			result.Skipped++
		}
	}

	s.logger.WithContext(ctx).Info("Overdue sweep finished",
		"asOf", asOf,
		"scanned", result.Scanned,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *InvoiceService) applyLateFee(ctx context.Context, invoice *domain.Invoice) (bool, error) {
	fee, err := s.fees.LateFee(invoice)
	if err != nil {
		return false, err
	}
	applied, err := invoice.ApplyLateFee(fee)
	if err != nil || !applied {
		return false, err
	}
	if err := s.persistAndPublish(ctx, invoice, nil); err != nil {
		return false, err
	}

	if s.metrics != nil {
		s.metrics.RecordLateFeeApplied()
		s.metrics.RecordInvoiceTransition(string(invoice.Status()))
	}
	return true, nil
}

func (s *InvoiceService) load(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get invoice: %w", err))
	}
	if invoice == nil {
		return nil, notFound(invoiceID)
	}
	return invoice, nil
}

func (s *InvoiceService) execute(
	ctx context.Context,
	invoiceID, operation string,
	mutate func(*domain.Invoice) error,
	mapEvents func([]domain.DomainEvent) []domain.DomainEvent,
) (*InvoiceDTO, error) {
	var dto *InvoiceDTO
	err := tracing.TracedVoidOperation(ctx, s.tracer, "invoice."+operation, func(ctx context.Context) error {
		log := s.logger.WithContext(ctx).WithInvoice(invoiceID)

		invoice, err := s.load(ctx, invoiceID)
		if err != nil {
			return err
		}

		previous := invoice.Status()
		if err := mutate(invoice); err != nil {
			log.WithError(err).Warn("Invoice operation rejected", "operation", operation, "status", previous)
			return mapError(err)
		}

		if err := s.persistAndPublish(ctx, invoice, mapEvents); err != nil {
			return err
		}

		if s.metrics != nil && invoice.Status() != previous {
			s.metrics.RecordInvoiceTransition(string(invoice.Status()))
		}
		log.Info("Invoice updated", "operation", operation, "status", invoice.Status(),
			"version", invoice.Version(), "traceId", tracing.GetTraceID(ctx))

		dto = ToInvoiceDTO(invoice)
		return nil
	}, tracing.InvoiceSpanAttributes(operation, invoiceID)...)
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// persistAndPublish saves the invoice, then drains and publishes its events
func (s *InvoiceService) persistAndPublish(
	ctx context.Context,
	invoice *domain.Invoice,
	mapEvents func([]domain.DomainEvent) []domain.DomainEvent,
) error {
	log := s.logger.WithContext(ctx).WithInvoice(invoice.ID())

	if err := s.repo.Save(ctx, invoice); err != nil {
		log.WithError(err).Error("Failed to save invoice")
		return mapError(fmt.Errorf("failed to save invoice: %w", err))
	}

	events := invoice.PullDomainEvents()
	if len(events) == 0 {
		return nil
	}
	if mapEvents != nil {
		events = mapEvents(events)
	}

	if err := s.bus.Publish(ctx, events); err != nil {
		log.WithError(err).Error("Failed to publish invoice events", "eventCount", len(events))
		return transportError(err)
	}
	return nil
}

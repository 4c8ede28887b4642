package domain

import (
	"fmt"
	"strings"
	"time"
)

// now is the domain clock; tests replace it
var now = func() time.Time { return time.Now().UTC() }

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "PENDING"
	InvoiceStatusLate       InvoiceStatus = "LATE"
	InvoiceStatusAuthorized InvoiceStatus = "AUTHORIZED"
	InvoiceStatusPaid       InvoiceStatus = "PAID"
	InvoiceStatusFailed     InvoiceStatus = "FAILED"
	InvoiceStatusCanceled   InvoiceStatus = "CANCELED"
)

// IsValid checks if the status is one of the known statuses
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusLate, InvoiceStatusAuthorized,
		InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusCanceled:
		return true
	}
	return false
}

// ParseInvoiceStatus accepts any casing
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// Invoice is the aggregate root. Its fields change only through the methods below,
// which record domain events in an internal buffer drained by PullDomainEvents.
type Invoice struct {
	id       string
	clientID string
	items    []InvoiceItem
	total    Money
	status   InvoiceStatus
	dueDate  DueDate

	createdAt    time.Time
	updatedAt    time.Time
	paidAt       *time.Time
	canceledAt   *time.Time
	authorizedAt *time.Time
	failedAt     *time.Time

	notes         string
	cancelReason  string
	failureReason string

	version int64

	domainEvents []DomainEvent
}

// NewInvoice creates a pending invoice and records InvoiceCreatedEvent
func NewInvoice(id, clientID string, items []InvoiceItem, dueDate DueDate, notes string) (*Invoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrClientRequired
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	totals := make([]Money, len(items))
	for idx, item := range items {
		totals[idx] = item.Total()
	}
	total, err := SumMoney(totals)
	if err != nil {
		return nil, err
	}

	createdAt := now()
	invoice := &Invoice{
		id:        id,
		clientID:  clientID,
		items:     append([]InvoiceItem(nil), items...),
		total:     total,
		status:    InvoiceStatusPending,
		dueDate:   dueDate,
		createdAt: createdAt,
		updatedAt: createdAt,
		notes:     notes,
	}

	invoice.addDomainEvent(&InvoiceCreatedEvent{
		InvoiceID:  id,
		ClientID:   clientID,
		Amount:     total.Amount(),
		Currency:   total.Currency(),
		DueDate:    dueDate.Value(),
		ItemCount:  len(items),
		OccurredOn: createdAt,
	})

	return invoice, nil
}

// InvoiceSnapshot carries persisted invoice state back into the aggregate
type InvoiceSnapshot struct {
	ID            string
	ClientID      string
	Items         []InvoiceItem
	Status        InvoiceStatus
	DueDate       DueDate
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	CanceledAt    *time.Time
	AuthorizedAt  *time.Time
	FailedAt      *time.Time
	Notes         string
	CancelReason  string
	FailureReason string
	Version       int64
}

// ReconstituteInvoice rebuilds a stored invoice. It records no events and recomputes
// the total from the items.
func ReconstituteInvoice(s InvoiceSnapshot) (*Invoice, error) {
	if len(s.Items) == 0 {
		return nil, ErrNoItems
	}
	if !s.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}

	totals := make([]Money, len(s.Items))
	for idx, item := range s.Items {
		totals[idx] = item.Total()
	}
	total, err := SumMoney(totals)
	if err != nil {
		return nil, err
	}

	return &Invoice{
		id:            s.ID,
		clientID:      s.ClientID,
		items:         append([]InvoiceItem(nil), s.Items...),
		total:         total,
		status:        s.Status,
		dueDate:       s.DueDate,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
		paidAt:        s.PaidAt,
		canceledAt:    s.CanceledAt,
		authorizedAt:  s.AuthorizedAt,
		failedAt:      s.FailedAt,
		notes:         s.Notes,
		cancelReason:  s.CancelReason,
		failureReason: s.FailureReason,
		version:       s.Version,
	}, nil
}

func (i *Invoice) ID() string               { return i.id }
func (i *Invoice) ClientID() string         { return i.clientID }
func (i *Invoice) Total() Money             { return i.total }
func (i *Invoice) Status() InvoiceStatus    { return i.status }
func (i *Invoice) DueDate() DueDate         { return i.dueDate }
func (i *Invoice) CreatedAt() time.Time     { return i.createdAt }
func (i *Invoice) UpdatedAt() time.Time     { return i.updatedAt }
func (i *Invoice) PaidAt() *time.Time       { return i.paidAt }
func (i *Invoice) CanceledAt() *time.Time   { return i.canceledAt }
func (i *Invoice) AuthorizedAt() *time.Time { return i.authorizedAt }
func (i *Invoice) FailedAt() *time.Time     { return i.failedAt }
func (i *Invoice) Notes() string            { return i.notes }
func (i *Invoice) CancelReason() string     { return i.cancelReason }
func (i *Invoice) FailureReason() string    { return i.failureReason }
func (i *Invoice) Version() int64           { return i.version }
func (i *Invoice) Items() []InvoiceItem     { return append([]InvoiceItem(nil), i.items...) }
func (i *Invoice) ItemCount() int           { return len(i.items) }

// SetVersion is called by the repository after a successful save
func (i *Invoice) SetVersion(version int64) {
	i.version = version
}

// AddItem appends a line to a pending invoice
func (i *Invoice) AddItem(item InvoiceItem) error {
	if err := i.ensureModifiable("add item to"); err != nil {
		return err
	}

	total, err := i.total.Add(item.Total())
	if err != nil {
		return err
	}

	i.items = append(i.items, item)
	i.total = total
	i.touch()

	i.addDomainEvent(&InvoiceItemAddedEvent{
		InvoiceID:   i.id,
		Description: item.Description(),
		Quantity:    item.Quantity(),
		LineTotal:   item.Total().Amount(),
		NewTotal:    total.Amount(),
		Currency:    total.Currency(),
		OccurredOn:  i.updatedAt,
	})
	return nil
}

// RemoveItem removes the line at index from a pending invoice. The last line cannot be removed.
func (i *Invoice) RemoveItem(index int) error {
	if err := i.ensureModifiable("remove item from"); err != nil {
		return err
	}
	if index < 0 || index >= len(i.items) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(i.items))
	}
	if len(i.items) == 1 {
		return ErrLastItem
	}

	removed := i.items[index]
	total, err := i.total.Subtract(removed.Total())
	if err != nil {
		return err
	}

	i.items = append(i.items[:index:index], i.items[index+1:]...)
	i.total = total
	i.touch()

	i.addDomainEvent(&InvoiceItemRemovedEvent{
		InvoiceID:   i.id,
		Index:       index,
		Description: removed.Description(),
		LineTotal:   removed.Total().Amount(),
		NewTotal:    total.Amount(),
		Currency:    total.Currency(),
		OccurredOn:  i.updatedAt,
	})
	return nil
}

// UpdateDueDate replaces the due date of a pending invoice
func (i *Invoice) UpdateDueDate(dueDate DueDate) error {
	if err := i.ensureModifiable("change due date of"); err != nil {
		return err
	}
	i.dueDate = dueDate
	i.touch()
	return nil
}

// UpdateNotes replaces the notes; allowed in every status
func (i *Invoice) UpdateNotes(notes string) {
	i.notes = notes
	i.touch()
}

// ApplyLateFee appends fee and moves a pending invoice to LATE.
// It reports false without changes for any other status.
func (i *Invoice) ApplyLateFee(fee InvoiceItem) (bool, error) {
	if i.status != InvoiceStatusPending {
		return false, nil
	}

	total, err := i.total.Add(fee.Total())
	if err != nil {
		return false, err
	}

	i.items = append(i.items, fee)
	i.total = total
	i.status = InvoiceStatusLate
	i.touch()
	return true, nil
}

// MarkAsAuthorized records a payment authorization
func (i *Invoice) MarkAsAuthorized(at time.Time) error {
	switch i.status {
	case InvoiceStatusPending, InvoiceStatusLate, InvoiceStatusFailed:
	default:
		return transitionError("authorize", i.status)
	}

	authorizedAt := at.UTC()
	i.status = InvoiceStatusAuthorized
	i.authorizedAt = &authorizedAt
	i.touch()
	return nil
}

// MarkAsPaid captures an authorized invoice
func (i *Invoice) MarkAsPaid(at time.Time) error {
	if i.status != InvoiceStatusAuthorized {
		return transitionError("pay", i.status)
	}

	paidAt := at.UTC()
	i.status = InvoiceStatusPaid
	i.paidAt = &paidAt
	i.touch()

	i.addDomainEvent(&InvoicePaidEvent{
		InvoiceID:  i.id,
		ClientID:   i.clientID,
		Amount:     i.total.Amount(),
		Currency:   i.total.Currency(),
		PaidAt:     paidAt,
		OccurredOn: i.updatedAt,
	})
	return nil
}

// MarkAsFailed records a payment failure
func (i *Invoice) MarkAsFailed(reason string) error {
	switch i.status {
	case InvoiceStatusPaid, InvoiceStatusCanceled, InvoiceStatusFailed:
		return transitionError("fail", i.status)
	}

	i.status = InvoiceStatusFailed
	i.touch()
	failedAt := i.updatedAt
	i.failedAt = &failedAt
	i.failureReason = reason

	i.addDomainEvent(&InvoiceFailedEvent{
		InvoiceID:  i.id,
		ClientID:   i.clientID,
		Reason:     reason,
		FailedAt:   failedAt,
		OccurredOn: failedAt,
	})
	return nil
}

// Cancel cancels any invoice that is not paid. Canceling twice is a no-op.
func (i *Invoice) Cancel(at time.Time, reason string) error {
	switch i.status {
	case InvoiceStatusPaid:
		return transitionError("cancel", i.status)
	case InvoiceStatusCanceled:
		return nil
	}

	canceledAt := at.UTC()
	i.status = InvoiceStatusCanceled
	i.canceledAt = &canceledAt
	i.cancelReason = reason
	i.touch()

	i.addDomainEvent(&InvoiceCanceledEvent{
		InvoiceID:  i.id,
		ClientID:   i.clientID,
		Reason:     reason,
		CanceledAt: canceledAt,
		OccurredOn: i.updatedAt,
	})
	return nil
}

// Retry moves a failed invoice back to pending
func (i *Invoice) Retry() error {
	if i.status != InvoiceStatusFailed {
		return transitionError("retry", i.status)
	}

	i.status = InvoiceStatusPending
	i.touch()

	i.addDomainEvent(&InvoiceRetriedEvent{
		InvoiceID:  i.id,
		ClientID:   i.clientID,
		Amount:     i.total.Amount(),
		Currency:   i.total.Currency(),
		OccurredOn: i.updatedAt,
	})
	return nil
}

// IsOverdue reports whether an unsettled invoice is past its due date
func (i *Invoice) IsOverdue(at time.Time) bool {
	return (i.status == InvoiceStatusPending || i.status == InvoiceStatusLate) && i.dueDate.IsBefore(at)
}

// PullDomainEvents returns the recorded events and clears the buffer
func (i *Invoice) PullDomainEvents() []DomainEvent {
	events := i.domainEvents
	i.domainEvents = nil
	return events
}

func (i *Invoice) ensureModifiable(op string) error {
	if i.status != InvoiceStatusPending {
		return transitionError(op, i.status)
	}
	return nil
}

func (i *Invoice) touch() {
	i.updatedAt = now()
}

func (i *Invoice) addDomainEvent(event DomainEvent) {
	i.domainEvents = append(i.domainEvents, event)
}

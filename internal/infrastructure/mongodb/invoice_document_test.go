package mongodb

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/services/invoice-service/internal/domain"
)

func testInvoice(t *testing.T) *domain.Invoice {
	t.Helper()
	price, err := domain.MoneyFromString("19.99", "usd")
	require.NoError(t, err)
	item, err := domain.NewInvoiceItem("Widget", decimal.RequireFromString("2.5"), price)
	require.NoError(t, err)
	dueDate, err := domain.NewDueDate(time.Now().Add(72 * time.Hour))
	require.NoError(t, err)
	inv, err := domain.NewInvoice("inv-42", "client-7", []domain.InvoiceItem{item}, dueDate, "first order")
	require.NoError(t, err)
	inv.PullDomainEvents()
	return inv
}

func TestInvoiceDocumentRoundTrip(t *testing.T) {
	inv := testInvoice(t)
	require.NoError(t, inv.MarkAsFailed("insufficient funds"))

	doc := toDocument(inv, 3)
	assert.Equal(t, "inv-42", doc.ID)
	assert.Equal(t, "49.975", doc.TotalAmount)
	assert.Equal(t, "USD", doc.Currency)
	assert.Equal(t, "FAILED", doc.Status)
	assert.Equal(t, int64(3), doc.Version)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "2.5", doc.Items[0].Quantity)

	restored, err := doc.toDomain()
	require.NoError(t, err)
	assert.True(t, restored.Total().Equals(inv.Total()))
	assert.Equal(t, domain.InvoiceStatusFailed, restored.Status())
	assert.Equal(t, "insufficient funds", restored.FailureReason())
	assert.Equal(t, "first order", restored.Notes())
	assert.Equal(t, int64(3), restored.Version())
	assert.Empty(t, restored.PullDomainEvents())
}

func TestInvoiceDocumentRejectsCorruptItems(t *testing.T) {
	doc := toDocument(testInvoice(t), 1)
	doc.Items[0].Quantity = "lots"

	_, err := doc.toDomain()
	assert.Error(t, err)

	doc = toDocument(testInvoice(t), 1)
	doc.Status = "ARCHIVED"
	_, err = doc.toDomain()
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestBuildClientFilter(t *testing.T) {
	filter := buildClientFilter("client-7", domain.InvoiceStatusPaid)
	assert.Equal(t, "client-7", filter["clientId"])
	assert.Equal(t, "PAID", filter["status"])

	filter = buildClientFilter("client-7", "")
	assert.NotContains(t, filter, "status")
}

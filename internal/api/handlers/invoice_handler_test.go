package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/middleware"
)

type memoryInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
	saveErr  error
}

func (r *memoryInvoiceRepo) Save(_ context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	invoice.SetVersion(invoice.Version() + 1)
	r.invoices[invoice.ID()] = invoice
	return nil
}

func (r *memoryInvoiceRepo) FindByID(_ context.Context, invoiceID string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoices[invoiceID], nil
}

func (r *memoryInvoiceRepo) FindOverdue(context.Context, time.Time) ([]*domain.Invoice, error) {
	return nil, nil
}

func (r *memoryInvoiceRepo) FindByClientAndStatus(_ context.Context, clientID string, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Invoice
	for _, inv := range r.invoices {
		if inv.ClientID() == clientID && (status == "" || inv.Status() == status) {
			result = append(result, inv)
		}
	}
	return result, nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, []domain.DomainEvent) error { return nil }

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "inv-" + strconv.Itoa(s.n)
}

func newTestRouter(t *testing.T) (*gin.Engine, *memoryInvoiceRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := logging.DefaultConfig("invoice-service")
	cfg.Output = io.Discard
	logger := logging.New(cfg)

	repo := &memoryInvoiceRepo{invoices: make(map[string]*domain.Invoice)}
	fees, err := domain.NewFeeCalculator(domain.DefaultLateFeeSchedule())
	require.NoError(t, err)
	service := application.NewInvoiceService(repo, nopBus{}, &sequenceIDs{}, fees, logger, nil)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig("invoice-service", logger.Logger))
	NewInvoiceHandler(service, logger).RegisterRoutes(router.Group("/api/v1"))
	return router, repo
}

func makeRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type invoiceEnvelope struct {
	Data application.InvoiceDTO `json:"data"`
}

func decodeInvoice(t *testing.T, rec *httptest.ResponseRecorder) application.InvoiceDTO {
	t.Helper()
	var env invoiceEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.APIErrorResponse {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func createBody() map[string]any {
	return map[string]any{
		"clientId": "client-1",
		"items": []map[string]any{
			{"description": "Consulting", "quantity": "2", "unitPrice": "50.00", "currency": "USD"},
		},
		"dueDate":         time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
		"paymentMethodId": "pm-1",
	}
}

func createInvoice(t *testing.T, router *gin.Engine) application.InvoiceDTO {
	t.Helper()
	rec := makeRequest(router, http.MethodPost, "/api/v1/invoices", createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeInvoice(t, rec)
}

func TestInvoiceHandlerCreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	created := createInvoice(t, router)
	assert.Equal(t, "inv-1", created.InvoiceID)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, application.MoneyDTO{Amount: "100.00", Currency: "USD"}, created.Total)

	rec := makeRequest(router, http.MethodGet, "/api/v1/invoices/inv-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.InvoiceID, decodeInvoice(t, rec).InvoiceID)

	rec = makeRequest(router, http.MethodGet, "/api/v1/invoices/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", decodeError(t, rec).Code)
}

func TestInvoiceHandlerCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing client", func(b map[string]any) { delete(b, "clientId") }, "clientId"},
		{"no items", func(b map[string]any) { b["items"] = []map[string]any{} }, "items"},
		{"bad currency", func(b map[string]any) {
			b["items"] = []map[string]any{{"description": "x", "quantity": "1", "unitPrice": "1", "currency": "DOLLARS"}}
		}, "items[0].currency"},
		{"zero quantity", func(b map[string]any) {
			b["items"] = []map[string]any{{"description": "x", "quantity": "0", "unitPrice": "1", "currency": "USD"}}
		}, "items[0].quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, repo := newTestRouter(t)
			body := createBody()
			tt.mutate(body)

			rec := makeRequest(router, http.MethodPost, "/api/v1/invoices", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			assert.Contains(t, resp.Details, tt.field)
			assert.Empty(t, repo.invoices)
		})
	}
}

func TestInvoiceHandlerCreatePastDueDate(t *testing.T) {
	router, _ := newTestRouter(t)
	body := createBody()
	body["dueDate"] = time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)

	rec := makeRequest(router, http.MethodPost, "/api/v1/invoices", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoiceHandlerItems(t *testing.T) {
	router, _ := newTestRouter(t)
	createInvoice(t, router)

	rec := makeRequest(router, http.MethodPost, "/api/v1/invoices/inv-1/items", map[string]any{
		"description": "Support", "quantity": "1", "unitPrice": "25.50", "currency": "usd",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "125.50", decodeInvoice(t, rec).Total.Amount)

	rec = makeRequest(router, http.MethodDelete, "/api/v1/invoices/inv-1/items/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decodeInvoice(t, rec)
	assert.Equal(t, "25.50", inv.Total.Amount)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Support", inv.Items[0].Description)

	rec = makeRequest(router, http.MethodDelete, "/api/v1/invoices/inv-1/items/0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "last item cannot be removed")

	rec = makeRequest(router, http.MethodDelete, "/api/v1/invoices/inv-1/items/9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = makeRequest(router, http.MethodDelete, "/api/v1/invoices/inv-1/items/first", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoiceHandlerCancel(t *testing.T) {
	router, repo := newTestRouter(t)
	createInvoice(t, router)

	rec := makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/cancel", map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decodeInvoice(t, rec)
	assert.Equal(t, "CANCELED", inv.Status)
	assert.Equal(t, "duplicate", inv.CancelReason)
	assert.NotNil(t, inv.CanceledAt)

	rec = makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "cancel is idempotent")

	rec = makeRequest(router, http.MethodPost, "/api/v1/invoices/inv-1/items", map[string]any{
		"description": "Late add", "quantity": "1", "unitPrice": "1", "currency": "USD",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeError(t, rec).Code)
	assert.Equal(t, 1, repo.invoices["inv-1"].ItemCount())
}

func TestInvoiceHandlerRetry(t *testing.T) {
	router, repo := newTestRouter(t)
	createInvoice(t, router)

	rec := makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, repo.invoices["inv-1"].MarkAsFailed("card declined"))

	rec = makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/retry", map[string]any{"paymentMethodId": "pm-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", decodeInvoice(t, rec).Status)
}

func TestInvoiceHandlerDueDateAndNotes(t *testing.T) {
	router, _ := newTestRouter(t)
	createInvoice(t, router)

	due := time.Now().Add(60 * 24 * time.Hour).UTC().Truncate(time.Second)
	rec := makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/due-date", map[string]any{
		"dueDate": due.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeInvoice(t, rec).DueDate.Equal(due))

	rec = makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/due-date", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-1/notes", map[string]any{"notes": "net 60"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "net 60", decodeInvoice(t, rec).Notes)
}

func TestInvoiceHandlerListClientInvoices(t *testing.T) {
	router, _ := newTestRouter(t)
	createInvoice(t, router)
	createInvoice(t, router)
	makeRequest(router, http.MethodPut, "/api/v1/invoices/inv-2/cancel", nil)

	var list application.InvoiceListResponse

	rec := makeRequest(router, http.MethodGet, "/api/v1/clients/client-1/invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rec = makeRequest(router, http.MethodGet, "/api/v1/clients/client-1/invoices?status=CANCELED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "inv-2", list.Data[0].InvoiceID)

	rec = makeRequest(router, http.MethodGet, "/api/v1/clients/client-1/invoices?status=ARCHIVED", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoiceHandlerSaveFailure(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.saveErr = assert.AnError

	rec := makeRequest(router, http.MethodPost, "/api/v1/invoices", createBody())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

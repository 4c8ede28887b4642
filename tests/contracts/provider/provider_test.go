package provider_test

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pact "github.com/pact-foundation/pact-go/v2/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/services/invoice-service/internal/api/handlers"
	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/internal/infrastructure/idgen"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/middleware"
)

const (
	providerInvoiceID = "inv-001"
	providerClientID  = "client-001"
)

// stateStore is the in-memory repository the provider states seed
type stateStore struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
}

func (s *stateStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = make(map[string]*domain.Invoice)
}

func (s *stateStore) put(invoice *domain.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[invoice.ID()] = invoice
}

func (s *stateStore) Save(_ context.Context, invoice *domain.Invoice) error {
	invoice.SetVersion(invoice.Version() + 1)
	s.put(invoice)
	return nil
}

func (s *stateStore) FindByID(_ context.Context, invoiceID string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[invoiceID], nil
}

func (s *stateStore) FindOverdue(_ context.Context, asOf time.Time) ([]*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Invoice
	for _, inv := range s.invoices {
		if inv.Status() == domain.InvoiceStatusPending && inv.DueDate().IsBefore(asOf) {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (s *stateStore) FindByClientAndStatus(_ context.Context, clientID string, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Invoice
	for _, inv := range s.invoices {
		if inv.ClientID() == clientID && (status == "" || inv.Status() == status) {
			result = append(result, inv)
		}
	}
	return result, nil
}

type discardBus struct{}

func (discardBus) Publish(context.Context, []domain.DomainEvent) error { return nil }

func seededInvoice(id string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	price, err := domain.MoneyFromString("50.00", "USD")
	if err != nil {
		return nil, err
	}
	item, err := domain.NewInvoiceItem("Consulting", decimal.NewFromInt(2), price)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshot := domain.InvoiceSnapshot{
		ID:        id,
		ClientID:  providerClientID,
		Items:     []domain.InvoiceItem{item},
		Status:    status,
		DueDate:   domain.DueDateFromStorage(now.Add(30 * 24 * time.Hour)),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	switch status {
	case domain.InvoiceStatusPaid:
		snapshot.AuthorizedAt = &now
		snapshot.PaidAt = &now
	case domain.InvoiceStatusFailed:
		snapshot.FailedAt = &now
		snapshot.FailureReason = "card declined"
	}
	return domain.ReconstituteInvoice(snapshot)
}

func seedState(store *stateStore, status domain.InvoiceStatus) pact.StateHandlerFunc {
	return func(setup bool, _ pact.ProviderState) (pact.ProviderStateResponse, error) {
		store.reset()
		if !setup || status == "" {
			return nil, nil
		}
		invoice, err := seededInvoice(providerInvoiceID, status)
		if err != nil {
			return nil, err
		}
		store.put(invoice)
		return pact.ProviderStateResponse{"invoiceId": providerInvoiceID, "clientId": providerClientID}, nil
	}
}

func newProviderRouter(t *testing.T, store *stateStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logConfig := logging.DefaultConfig("invoice-service")
	logConfig.Output = io.Discard
	logger := logging.New(logConfig)

	fees, err := domain.NewFeeCalculator(domain.DefaultLateFeeSchedule())
	require.NoError(t, err)
	service := application.NewInvoiceService(store, discardBus{}, idgen.UUIDGenerator{}, fees, logger, nil)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig("invoice-service", logger.Logger))
	router.GET("/health", middleware.HealthCheck("invoice-service"))
	handlers.NewInvoiceHandler(service, logger).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestPactProvider(t *testing.T) {
	if testing.Short() {
		t.Skip("provider verification skipped in short mode")
	}

	pactDir := os.Getenv("PACT_DIR")
	if pactDir == "" {
		pactDir = "../../../contracts/pacts"
	}
	absPactDir, err := filepath.Abs(pactDir)
	require.NoError(t, err)

	if _, err := os.Stat(absPactDir); os.IsNotExist(err) {
		t.Skip("No pacts found - run consumer tests first")
	}

	store := &stateStore{}
	store.reset()

	server := httptest.NewServer(newProviderRouter(t, store))
	defer server.Close()

	verifier := pact.NewVerifier()

	err = verifier.VerifyProvider(t, pact.VerifyRequest{
		Provider:        "invoice-service",
		ProviderBaseURL: server.URL,
		PactDirs:        []string{absPactDir},
		StateHandlers: map[string]pact.StateHandlerFunc{
			"no invoices exist":         seedState(store, ""),
			"a pending invoice exists":  seedState(store, domain.InvoiceStatusPending),
			"a failed invoice exists":   seedState(store, domain.InvoiceStatusFailed),
			"a paid invoice exists":     seedState(store, domain.InvoiceStatusPaid),
			"invoices exist for client": seedState(store, domain.InvoiceStatusPending),
		},
	})
	require.NoError(t, err)
}

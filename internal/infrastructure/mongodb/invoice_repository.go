package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/tracing"
)

// InvoiceCollection is the collection invoices are stored in
const InvoiceCollection = "invoices"

// InvoiceRepository implements domain.InvoiceRepository
type InvoiceRepository struct {
	collection *mongo.Collection
	tracer     trace.Tracer
}

// NewInvoiceRepository creates a new InvoiceRepository
func NewInvoiceRepository(db *mongo.Database) *InvoiceRepository {
	return &InvoiceRepository{
		collection: db.Collection(InvoiceCollection),
		tracer:     otel.Tracer("invoice-service/mongodb"),
	}
}

// EnsureIndexes creates the indexes the queries depend on
func (r *InvoiceRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "clientId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("idx_clientId_status_createdAt"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "dueDate", Value: 1},
			},
			Options: options.Index().SetName("idx_status_dueDate"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	return nil
}

// Save inserts a new invoice (version 0) or replaces the stored one when its version
// still matches. On success the invoice carries the new version.
func (r *InvoiceRepository) Save(ctx context.Context, invoice *domain.Invoice) error {
	attrs := tracing.DatabaseSpanAttributes("mongodb", r.collection.Database().Name(), "save", InvoiceCollection)
	return tracing.TracedVoidOperation(ctx, r.tracer, "mongodb.invoices.save", func(ctx context.Context) error {
		return r.save(ctx, invoice)
	}, attrs...)
}

func (r *InvoiceRepository) save(ctx context.Context, invoice *domain.Invoice) error {
	current := invoice.Version()
	doc := toDocument(invoice, current+1)

	if current == 0 {
		if _, err := r.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: invoice %s already exists", domain.ErrConcurrentModification, invoice.ID())
			}
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		invoice.SetVersion(doc.Version)
		return nil
	}

	filter := bson.M{"_id": invoice.ID(), "version": current}
	result, err := r.collection.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: invoice %s is no longer at version %d", domain.ErrConcurrentModification, invoice.ID(), current)
	}

	invoice.SetVersion(doc.Version)
	return nil
}

// FindByID retrieves an invoice by ID
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	var doc invoiceDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": invoiceID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain()
}

// FindOverdue retrieves pending invoices due before asOf, oldest due date first
func (r *InvoiceRepository) FindOverdue(ctx context.Context, asOf time.Time) ([]*domain.Invoice, error) {
	filter := bson.M{
		"status":  string(domain.InvoiceStatusPending),
		"dueDate": bson.M{"$lt": asOf},
	}
	opts := options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}})
	return r.findMany(ctx, filter, opts)
}

// FindByClientAndStatus retrieves a client's invoices, newest first
func (r *InvoiceRepository) FindByClientAndStatus(ctx context.Context, clientID string, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findMany(ctx, buildClientFilter(clientID, status), opts)
}

func buildClientFilter(clientID string, status domain.InvoiceStatus) bson.M {
	filter := bson.M{"clientId": clientID}
	if status != "" {
		filter["status"] = string(status)
	}
	return filter
}

func (r *InvoiceRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Invoice, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []invoiceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	invoices := make([]*domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoice, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, nil
}

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/wms-platform/services/invoice-service/internal/domain"
)

func invoiceBSON(t *testing.T, inv *domain.Invoice, version int64) bson.D {
	t.Helper()
	raw, err := bson.Marshal(toDocument(inv, version))
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func TestInvoiceRepository_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create indexes", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.EnsureIndexes(context.Background()))
	})
}

func TestInvoiceRepository_Save(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert new invoice", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		inv := testInvoice(t)

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.Save(context.Background(), inv))
		assert.Equal(t, int64(1), inv.Version())
	})

	mt.Run("insert duplicate id", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		inv := testInvoice(t)

		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		err := repo.Save(context.Background(), inv)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, int64(0), inv.Version())
	})

	mt.Run("update matching version", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		inv := testInvoice(t)
		inv.SetVersion(4)

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(t, repo.Save(context.Background(), inv))
		assert.Equal(t, int64(5), inv.Version())
	})

	mt.Run("update stale version", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		inv := testInvoice(t)
		inv.SetVersion(4)

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		err := repo.Save(context.Background(), inv)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, int64(4), inv.Version())
	})
}

func TestInvoiceRepository_Queries(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find by id", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		ns := mt.DB.Name() + "." + InvoiceCollection
		inv := testInvoice(t)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, invoiceBSON(t, inv, 2)))
		found, err := repo.FindByID(context.Background(), "inv-42")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "client-7", found.ClientID())
		assert.Equal(t, int64(2), found.Version())
		assert.True(t, found.Total().Equals(inv.Total()))
	})

	mt.Run("find by id absent", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		ns := mt.DB.Name() + "." + InvoiceCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		found, err := repo.FindByID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	mt.Run("find overdue and by client", func(mt *mtest.T) {
		repo := NewInvoiceRepository(mt.DB)
		ns := mt.DB.Name() + "." + InvoiceCollection
		ctx := context.Background()
		inv := testInvoice(t)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, invoiceBSON(t, inv, 1)))
		overdue, err := repo.FindOverdue(ctx, time.Now().Add(96*time.Hour))
		require.NoError(t, err)
		require.Len(t, overdue, 1)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		filter := started.Command.Lookup("filter").Document()
		assert.Equal(t, "PENDING", filter.Lookup("status").StringValue())

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			invoiceBSON(t, inv, 1),
			invoiceBSON(t, inv, 3),
		))
		list, err := repo.FindByClientAndStatus(ctx, "client-7", "")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

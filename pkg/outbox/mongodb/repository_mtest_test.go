package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/wms-platform/services/invoice-service/pkg/outbox"
)

func TestOutboxRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save, find and mark", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)
		ctx := context.Background()
		ns := mt.DB.Name() + "." + DefaultCollectionName

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.EnsureIndexes(ctx))

		require.NoError(t, repo.SaveAll(ctx, nil))

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.SaveAll(ctx, []*outbox.OutboxEvent{
			{ID: "evt-1", AggregateID: "inv-1", EventType: "invoice.created", MaxRetries: 10},
			{ID: "evt-2", AggregateID: "inv-1", EventType: "invoice.paid", MaxRetries: 10},
		}))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "evt-1"},
				{Key: "aggregateId", Value: "inv-1"},
				{Key: "eventType", Value: "invoice.created"},
				{Key: "createdAt", Value: time.Now()},
				{Key: "maxRetries", Value: 10},
			},
		))
		events, err := repo.FindUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt-1", events[0].ID)

		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		require.NoError(t, repo.MarkPublished(ctx, "evt-1"))

		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		require.NoError(t, repo.IncrementRetry(ctx, "evt-2", "broker down"))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "evt-1"}, {Key: "aggregateId", Value: "inv-1"}},
			bson.D{{Key: "_id", Value: "evt-2"}, {Key: "aggregateId", Value: "inv-1"}},
		))
		byAggregate, err := repo.FindByAggregateID(ctx, "inv-1")
		require.NoError(t, err)
		assert.Len(t, byAggregate, 2)
	})

	mt.Run("update of missing event", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)

		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}, {Key: "nModified", Value: 0}})
		err := repo.MarkPublished(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query"}))
		_, err := repo.FindUnpublished(context.Background(), 10)
		assert.Error(t, err)
	})
}

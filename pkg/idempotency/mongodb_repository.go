package idempotency

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const processedMessagesCollection = "processed_messages"

// MongoMessageRepository implements MessageRepository using MongoDB
type MongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository creates a new MongoDB-backed message repository
func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		collection: db.Collection(processedMessagesCollection),
	}
}

// MarkProcessed marks a message as processed
func (r *MongoMessageRepository) MarkProcessed(ctx context.Context, msg *ProcessedMessage) error {
	if _, err := r.collection.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrMessageAlreadyProcessed
		}
		return fmt.Errorf("failed to record processed message: %w", err)
	}
	return nil
}

// IsProcessed checks if a message has been processed
func (r *MongoMessageRepository) IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error) {
	filter := bson.M{
		"messageId":     messageID,
		"topic":         topic,
		"consumerGroup": consumerGroup,
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to look up processed message: %w", err)
	}

	return count > 0, nil
}

// EnsureIndexes creates the uniqueness and expiry indexes
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "messageId", Value: 1},
				{Key: "topic", Value: 1},
				{Key: "consumerGroup", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_msg_topic_group"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

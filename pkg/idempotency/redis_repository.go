package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "invoice:processed:"

// RedisMessageRepository implements MessageRepository on Redis keys with a TTL
type RedisMessageRepository struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisMessageRepository creates a repository on an existing client
func NewRedisMessageRepository(client redis.Cmdable, keyPrefix string) *RedisMessageRepository {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisMessageRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisMessageRepository) key(messageID, topic, consumerGroup string) string {
	return r.keyPrefix + consumerGroup + ":" + topic + ":" + messageID
}

// MarkProcessed stores the message id with SETNX so concurrent consumers cannot both win
func (r *RedisMessageRepository) MarkProcessed(ctx context.Context, msg *ProcessedMessage) error {
	ttl := msg.TTL()
	if ttl <= 0 {
		ttl = DefaultRetentionPeriod
	}

	key := r.key(msg.MessageID, msg.Topic, msg.ConsumerGroup)
	created, err := r.client.SetNX(ctx, key, msg.ProcessedAt.Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to record processed message: %w", err)
	}
	if !created {
		return ErrMessageAlreadyProcessed
	}
	return nil
}

// IsProcessed checks if a message has been processed
func (r *RedisMessageRepository) IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.key(messageID, topic, consumerGroup)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up processed message: %w", err)
	}
	return exists > 0, nil
}

// EnsureIndexes verifies connectivity; Redis needs no schema
func (r *RedisMessageRepository) EnsureIndexes(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

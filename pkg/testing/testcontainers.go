package testing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBContainer wraps a testcontainers MongoDB instance
type MongoDBContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
}

// NewMongoDBContainer creates a new MongoDB testcontainer
func NewMongoDBContainer(ctx context.Context) (*MongoDBContainer, error) {
	mongoContainer, err := mongodb.Run(ctx,
		"mongo:6",
		mongodb.WithUsername("test"),
		mongodb.WithPassword("test"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &MongoDBContainer{
		Container: mongoContainer,
		URI:       uri,
	}, nil
}

// Close terminates the MongoDB container
func (m *MongoDBContainer) Close(ctx context.Context) error {
	if m.Container != nil {
		return m.Container.Terminate(ctx)
	}
	return nil
}

// GetClient creates a MongoDB client connected to the test container
func (m *MongoDBContainer) GetClient(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// RedisContainer wraps a generic Redis testcontainer
type RedisContainer struct {
	Container testcontainers.Container
	Addr      string
}

// NewRedisContainer creates a new Redis testcontainer
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &RedisContainer{
		Container: container,
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
	}, nil
}

// GetClient creates a Redis client connected to the test container
func (r *RedisContainer) GetClient(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: r.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Close terminates the Redis container
func (r *RedisContainer) Close(ctx context.Context) error {
	if r.Container != nil {
		return r.Container.Terminate(ctx)
	}
	return nil
}

// TestEnvironment holds all test containers
type TestEnvironment struct {
	MongoDB *MongoDBContainer
	Redis   *RedisContainer
}

// NewTestEnvironment starts MongoDB and, when includeRedis is set, Redis
func NewTestEnvironment(ctx context.Context, includeRedis bool) (*TestEnvironment, error) {
	env := &TestEnvironment{}

	mongoContainer, err := NewMongoDBContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongodb container: %w", err)
	}
	env.MongoDB = mongoContainer

	if includeRedis {
		redisContainer, err := NewRedisContainer(ctx)
		if err != nil {
			_ = mongoContainer.Close(ctx)
			return nil, fmt.Errorf("failed to create redis container: %w", err)
		}
		env.Redis = redisContainer
	}

	return env, nil
}

// Close terminates all containers in the test environment
func (e *TestEnvironment) Close(ctx context.Context) error {
	var errs []error

	if e.MongoDB != nil {
		if err := e.MongoDB.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if e.Redis != nil {
		if err := e.Redis.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing test environment: %w", errors.Join(errs...))
	}
	return nil
}

// Package queue moves artifact documents and stitched outputs through the
// message broker.
//
// This package defines small produce/consume interfaces with a Redis-backed
// implementation: each topic is a Redis list, producers LPUSH and consumers
// BRPOP, so independent workers share one topic without coordination. A
// message that fails processing is never re-published; failure handling is
// the worker's concern.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stitchkb/stitchkb/pkg/errors"
)

// pollTimeout bounds each blocking pop so consumers notice context
// cancellation promptly.
const pollTimeout = 2 * time.Second

// Consumer receives raw message bodies from one topic.
type Consumer interface {
	// Consume blocks until a message arrives or ctx is done.
	Consume(ctx context.Context) ([]byte, error)
}

// Producer publishes raw message bodies to one topic.
type Producer interface {
	Publish(ctx context.Context, body []byte) error
}

// RedisConfig configures the broker connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to the broker and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeQueue, "redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "connecting to redis at %s", cfg.Addr)
	}
	return client, nil
}

// RedisTopic is one named Redis list acting as a topic.
type RedisTopic struct {
	client *redis.Client
	key    string
}

var (
	_ Consumer = (*RedisTopic)(nil)
	_ Producer = (*RedisTopic)(nil)
)

// NewRedisTopic binds a topic name to a client.
func NewRedisTopic(client *redis.Client, key string) *RedisTopic {
	return &RedisTopic{client: client, key: key}
}

// Consume implements Consumer.
func (t *RedisTopic) Consume(ctx context.Context) ([]byte, error) {
	for {
		res, err := t.client.BRPop(ctx, pollTimeout, t.key).Result()
		switch {
		case err == redis.Nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(errors.ErrCodeQueue, err, "consuming from %q", t.key)
		}
		// BRPOP returns [key, value].
		return []byte(res[1]), nil
	}
}

// Publish implements Producer.
func (t *RedisTopic) Publish(ctx context.Context, body []byte) error {
	if err := t.client.LPush(ctx, t.key, body).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "publishing to %q", t.key)
	}
	return nil
}

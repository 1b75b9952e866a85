package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

// RedisQueue stores entries as JSON strings in a Redis list.
// RPUSH, LPOP and LLEN are each atomic on the server.
type RedisQueue[T any] struct {
	client *goredis.Client
	key    string
	logger logging.Logger
}

var _ core.Queue[int] = (*RedisQueue[int])(nil)

func NewRedisClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisQueue uses the list "<prefix>:<name>".
func NewRedisQueue[T any](client *goredis.Client, prefix, name string, logger logging.Logger) *RedisQueue[T] {
	key := name
	if prefix != "" {
		key = prefix + ":" + name
	}
	return &RedisQueue[T]{client: client, key: key, logger: logger}
}

func (q *RedisQueue[T]) PushBack(ctx context.Context, item T) (int, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("redis queue %s: encode entry: %w", q.key, err)
	}
	n, err := q.client.RPush(ctx, q.key, body).Result()
	if err != nil {
		return 0, fmt.Errorf("redis queue %s: push: %w", q.key, err)
	}
	return int(n), nil
}

// PopFront skips entries that do not decode into T, the same way the JSON
// file queues do when loading. LPOP has already removed them.
func (q *RedisQueue[T]) PopFront(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		body, err := q.client.LPop(ctx, q.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return zero, false, nil
		}
		if err != nil {
			return zero, false, fmt.Errorf("redis queue %s: pop: %w", q.key, err)
		}

		item, err := decodeEntry[T](body)
		if err != nil {
			q.logger.Warn("Skipping undecodable queue entry", "key", q.key, "entry", string(body), "error", err)
			continue
		}
		return item, true, nil
	}
}

func (q *RedisQueue[T]) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis queue %s: len: %w", q.key, err)
	}
	return int(n), nil
}

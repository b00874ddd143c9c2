package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"media-task-queue/internal/config"
	"media-task-queue/internal/models"
)

// blockInterval bounds each BLPOP so a canceled context is noticed even if
// the server ignores the in-flight command.
const blockInterval = 2 * time.Second

// RedisQueue keeps JSON-encoded entries in a single redis list, letting
// several processes share one FIFO. LPOP/RPUSH on one key preserves global
// enqueue order.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	key := cfg.QueueKey
	if key == "" {
		key = "queue:tasks"
	}
	return &RedisQueue{client: client, key: key}
}

// NewRedisQueueWithClient wires an existing client, used by tests.
func NewRedisQueueWithClient(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, e models.QueueEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("rpush entry: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (models.QueueEntry, error) {
	for {
		res, err := q.client.BLPop(ctx, blockInterval, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.QueueEntry{}, ctxErr
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.QueueEntry{}, ctxErr
			}
			return models.QueueEntry{}, fmt.Errorf("blpop entry: %w", err)
		}
		// res is [key, value].
		if len(res) < 2 {
			return models.QueueEntry{}, fmt.Errorf("unexpected blpop reply of length %d", len(res))
		}
		var e models.QueueEntry
		if err := json.Unmarshal([]byte(res[1]), &e); err != nil {
			return models.QueueEntry{}, fmt.Errorf("unmarshal entry: %w", err)
		}
		return e, nil
	}
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen: %w", err)
	}
	return int(n), nil
}

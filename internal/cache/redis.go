// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list finished games are pushed to.
const DefaultQueueName = "trivia_results"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ResultQueue is the producer side of the game results archive.
type ResultQueue struct {
	rdb   *redis.Client
	queue string
}

// NewResultQueue pushes to the named list, or DefaultQueueName when empty.
func NewResultQueue(rdb *redis.Client, queue string) *ResultQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &ResultQueue{rdb: rdb, queue: queue}
}

// Name returns the list key.
func (q *ResultQueue) Name() string { return q.queue }

// PublishGameResult serializes the result and appends it to the queue.
func (q *ResultQueue) PublishGameResult(ctx context.Context, result models.GameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal GameResult: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Pop blocks for up to timeout waiting for the next result. It returns
// (nil, nil) when the wait times out.
func (q *ResultQueue) Pop(ctx context.Context, timeout time.Duration) (*models.GameResult, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}

	// res[0] is the list name and res[1] the payload.
	var result models.GameResult
	if err := json.Unmarshal([]byte(res[1]), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return &result, nil
}

// ErrBadRecord marks a queue entry that could not be decoded. The entry has
// already been removed from the list.
var ErrBadRecord = errors.New("invalid game result record")

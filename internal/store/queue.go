package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const snapshotQueueKey = "queue:snapshot"

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisQueue is a FIFO list of snapshot jobs.
type RedisQueue struct {
	rdb *redis.Client
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Push(ctx context.Context, id string) error {
	return q.rdb.LPush(ctx, snapshotQueueKey, id).Err()
}

// Pop waits for a job (blocking until one arrives or ctx is done)
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	result, err := q.rdb.BRPop(ctx, 0, snapshotQueueKey).Result()
	if err != nil {
		return "", err
	}
	return result[1], nil
}

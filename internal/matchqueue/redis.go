package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// DefaultKey is the Redis list shared by cooperating instances.
const DefaultKey = "signaling:waiting"

// RedisQueue is the cross-instance waiting queue backed by a Redis list:
// RPUSH on declare, LPOP on match, LREM for idempotent removal.
//
// Every call goes through a circuit breaker. When Redis is down the breaker
// opens and each operation fails fast with ErrUnavailable, which the
// matchmaker treats as an empty queue.
type RedisQueue struct {
	rdb     redis.UniversalClient
	key     string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(rdb redis.UniversalClient, key string, logger *slog.Logger) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	q := &RedisQueue{rdb: rdb, key: key, logger: logger}
	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "matchqueue",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("waiting queue breaker state changed",
				"from", from.String(), "to", to.String())
		},
	})
	return q
}

func (q *RedisQueue) Push(ctx context.Context, id uuid.UUID) error {
	_, err := q.breaker.Execute(func() (any, error) {
		return nil, q.rdb.RPush(ctx, q.key, id.String()).Err()
	})
	if err != nil {
		return q.degrade("push", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (uuid.UUID, bool, error) {
	val, err := q.breaker.Execute(func() (any, error) {
		return q.rdb.LPop(ctx, q.key).Result()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, q.degrade("pop", err)
	}

	id, parseErr := uuid.Parse(val.(string))
	if parseErr != nil {
		// Foreign junk in the shared list; consume and move on.
		q.logger.Warn("discarding malformed waiting queue entry", "entry", val)
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (q *RedisQueue) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := q.breaker.Execute(func() (any, error) {
		return nil, q.rdb.LRem(ctx, q.key, 0, id.String()).Err()
	})
	if err != nil {
		return q.degrade("remove", err)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.breaker.Execute(func() (any, error) {
		return q.rdb.LLen(ctx, q.key).Result()
	})
	if err != nil {
		return 0, q.degrade("len", err)
	}
	return int(n.(int64)), nil
}

// Ping reports store reachability for health checks.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) degrade(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

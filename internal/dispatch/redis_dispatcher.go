package dispatch

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream consumed by the pipeline worker pool.
const DefaultStream = "pipeline:stream"

// RedisDispatcher enqueues tasks onto a Redis stream. The stream is capped so
// a stalled worker pool cannot grow it without bound.
type RedisDispatcher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisDispatcher(rdb *redis.Client, stream string) *RedisDispatcher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisDispatcher{rdb: rdb, stream: stream, maxLen: 10000}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, t Task) error {
	if t.Kind == "" || t.UserID == "" {
		return errors.New("dispatch: kind and user_id are required")
	}
	return d.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: d.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":    t.Kind,
			"user_id": t.UserID,
		},
	}).Err()
}

package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PipelineCounters are the per-user counters driving threshold-triggered
// jobs. All operations are atomic per call; state is partitioned by user so
// no cross-user coordination exists.
type PipelineCounters interface {
	// IncrTotal bumps the lifetime message counter and returns it.
	IncrTotal(ctx context.Context, userID string) (int64, error)
	// IncrSinceChunk bumps the messages-since-last-chunk-summary counter.
	IncrSinceChunk(ctx context.Context, userID string) (int64, error)
	SinceChunk(ctx context.Context, userID string) (int64, error)
	ResetSinceChunk(ctx context.Context, userID string) error
	// IncrChunks bumps the un-aggregated chunk summary counter.
	IncrChunks(ctx context.Context, userID string) (int64, error)
	Chunks(ctx context.Context, userID string) (int64, error)
	ResetChunks(ctx context.Context, userID string) error
}

// UsageCounters back the usage limiter: a per-day send counter that expires
// at midnight UTC, and a fractional token balance for metered tiers.
type UsageCounters interface {
	DailyCount(ctx context.Context, userID string, day time.Time) (int64, error)
	// IncrDaily bumps today's counter, setting the end-of-day expiry on
	// first touch, and returns the new value.
	IncrDaily(ctx context.Context, userID string, day time.Time) (int64, error)
	TokenBalance(ctx context.Context, userID string) (float64, error)
	SetTokenBalance(ctx context.Context, userID string, balance float64) error
	// DecrTokens subtracts amount from the balance and returns the result.
	DecrTokens(ctx context.Context, userID string, amount float64) (float64, error)
}

// Counters implements both counter families over one Redis client.
type Counters struct {
	rdb *goredis.Client
}

func NewCounters(rdb *goredis.Client) *Counters { return &Counters{rdb: rdb} }

var (
	_ PipelineCounters = (*Counters)(nil)
	_ UsageCounters    = (*Counters)(nil)
)

func totalKey(u string) string      { return "chat:" + u + ":count" }
func sinceChunkKey(u string) string { return "chat:" + u + ":since_chunk" }
func chunksKey(u string) string     { return "chat:" + u + ":chunks" }
func tokensKey(u string) string     { return "tokens:" + u }

func dailyKey(u string, day time.Time) string {
	return "usage:" + u + ":" + day.UTC().Format("2006-01-02")
}

func (c *Counters) IncrTotal(ctx context.Context, userID string) (int64, error) {
	return c.rdb.Incr(ctx, totalKey(userID)).Result()
}

func (c *Counters) IncrSinceChunk(ctx context.Context, userID string) (int64, error) {
	return c.rdb.Incr(ctx, sinceChunkKey(userID)).Result()
}

func (c *Counters) SinceChunk(ctx context.Context, userID string) (int64, error) {
	n, err := c.rdb.Get(ctx, sinceChunkKey(userID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Counters) ResetSinceChunk(ctx context.Context, userID string) error {
	return c.rdb.Set(ctx, sinceChunkKey(userID), 0, 0).Err()
}

func (c *Counters) IncrChunks(ctx context.Context, userID string) (int64, error) {
	return c.rdb.Incr(ctx, chunksKey(userID)).Result()
}

func (c *Counters) Chunks(ctx context.Context, userID string) (int64, error) {
	n, err := c.rdb.Get(ctx, chunksKey(userID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Counters) ResetChunks(ctx context.Context, userID string) error {
	return c.rdb.Set(ctx, chunksKey(userID), 0, 0).Err()
}

func (c *Counters) DailyCount(ctx context.Context, userID string, day time.Time) (int64, error) {
	n, err := c.rdb.Get(ctx, dailyKey(userID, day)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Counters) IncrDaily(ctx context.Context, userID string, day time.Time) (int64, error) {
	key := dailyKey(userID, day)
	endOfDay := day.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, endOfDay)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *Counters) TokenBalance(ctx context.Context, userID string) (float64, error) {
	v, err := c.rdb.Get(ctx, tokensKey(userID)).Float64()
	if err == goredis.Nil {
		return 0, nil
	}
	return v, err
}

func (c *Counters) SetTokenBalance(ctx context.Context, userID string, balance float64) error {
	return c.rdb.Set(ctx, tokensKey(userID), balance, 0).Err()
}

func (c *Counters) DecrTokens(ctx context.Context, userID string, amount float64) (float64, error) {
	return c.rdb.IncrByFloat(ctx, tokensKey(userID), -amount).Result()
}

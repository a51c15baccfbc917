package redis

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"

	"github.com/everbloom-ai/everbloom/internal/models"
)

// MessageLog is the append-only per-user chat log backed by a Redis list.
// Newest entries sit at the head; the tail is trimmed at the retention cap.
type MessageLog interface {
	// Append pushes m to the head of the user's log, trims the tail beyond
	// the cap, and returns the new log length.
	Append(ctx context.Context, userID string, m models.Message) (int64, error)
	// Page returns up to pageSize messages for display: page 0 is the most
	// recent slice, and messages within a page are ordered oldest-first.
	Page(ctx context.Context, userID string, page, pageSize int) (msgs []models.Message, hasMore bool, err error)
	// RecentN returns the n most recent messages, oldest-first.
	RecentN(ctx context.Context, userID string, n int) ([]models.Message, error)
	// Len returns the current log length.
	Len(ctx context.Context, userID string) (int64, error)
}

const (
	// RetentionCap bounds how many raw messages are kept per user.
	RetentionCap = 500
	// MaxRetrievable bounds the total messages reachable through paging,
	// regardless of actual log length.
	MaxRetrievable = 300
)

type messageLog struct {
	rdb *goredis.Client
}

func NewMessageLog(rdb *goredis.Client) MessageLog {
	return &messageLog{rdb: rdb}
}

func logKey(userID string) string { return "chat:" + userID + ":log" }

func (r *messageLog) Append(ctx context.Context, userID string, m models.Message) (int64, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}

	key := logKey(userID)
	pipe := r.rdb.TxPipeline()
	push := pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, RetentionCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	n := push.Val()
	if n > RetentionCap {
		n = RetentionCap
	}
	return n, nil
}

func (r *messageLog) Page(ctx context.Context, userID string, page, pageSize int) ([]models.Message, bool, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 30
	}

	start := page * pageSize
	if start >= MaxRetrievable {
		return nil, false, nil
	}
	stop := start + pageSize - 1
	if stop >= MaxRetrievable {
		stop = MaxRetrievable - 1
	}

	raw, err := r.rdb.LRange(ctx, logKey(userID), int64(start), int64(stop)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	msgs := decodeReversed(raw)

	length, err := r.rdb.LLen(ctx, logKey(userID)).Result()
	if err != nil {
		return msgs, false, nil
	}
	reachable := length
	if reachable > MaxRetrievable {
		reachable = MaxRetrievable
	}
	hasMore := int64(stop+1) < reachable
	return msgs, hasMore, nil
}

func (r *messageLog) RecentN(ctx context.Context, userID string, n int) ([]models.Message, error) {
	if n <= 0 {
		n = 5
	}
	raw, err := r.rdb.LRange(ctx, logKey(userID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return decodeReversed(raw), nil
}

func (r *messageLog) Len(ctx context.Context, userID string) (int64, error) {
	return r.rdb.LLen(ctx, logKey(userID)).Result()
}

// decodeReversed turns a head-first LRANGE result into oldest-first messages,
// skipping entries that no longer parse.
func decodeReversed(raw []string) []models.Message {
	msgs := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.Message
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alekspetrov/taskboard/internal/board"
)

// Deduper guards against sending the same reminder twice when the process
// dies between delivery and MarkReminderSent, or when several bot instances
// share one board.
type Deduper interface {
	// Claim records key and reports whether this caller is the first.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later cycle may retry.
	Release(ctx context.Context, key string) error
}

// ClaimKey identifies one armed reminder. Every re-arm bumps the task's
// reminder generation and so produces a new key, even when the due date and
// lead time end up where they were.
func ClaimKey(t board.Task) string {
	var due int64
	if t.DueDate != nil {
		due = t.DueDate.Unix()
	}
	lead := -1
	if t.RemindMeInMinutes != nil {
		lead = *t.RemindMeInMinutes
	}
	return fmt.Sprintf("reminder:%s:%d:%d:%d", t.ID, t.ReminderGeneration, due, lead)
}

// DefaultDedupeTTL keeps claims long enough to outlive any realistic restart.
const DefaultDedupeTTL = 7 * 24 * time.Hour

// RedisDeduper stores claim keys in Redis so all instances see them.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Claim implements Deduper with SETNX.
func (r *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, key, 1, r.ttl).Result()
}

// Release implements Deduper.
func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWaitlist stores per-course waitlists as Redis lists.
type RedisWaitlist struct {
	client redis.Cmdable
	prefix string
	runID  string
	ttl    time.Duration
}

// NewRedisWaitlist constructs a waitlist scoped to one run.
func NewRedisWaitlist(client redis.Cmdable, prefix, runID string, ttl time.Duration) *RedisWaitlist {
	return &RedisWaitlist{client: client, prefix: prefix, runID: runID, ttl: ttl}
}

// Append pushes the student and returns the list length as their position.
func (w *RedisWaitlist) Append(ctx context.Context, courseID, studentID string) (int, error) {
	key := WaitlistKey(w.prefix, w.runID, courseID)
	position, err := w.client.RPush(ctx, key, studentID).Result()
	if err != nil {
		return 0, fmt.Errorf("append waitlist %s: %w", courseID, err)
	}
	if position == 1 && w.ttl > 0 {
		if err := w.client.Expire(ctx, key, w.ttl).Err(); err != nil {
			return int(position), fmt.Errorf("expire waitlist %s: %w", courseID, err)
		}
	}
	return int(position), nil
}

// Entries returns the waitlist in arrival order.
func (w *RedisWaitlist) Entries(ctx context.Context, courseID string) ([]string, error) {
	entries, err := w.client.LRange(ctx, WaitlistKey(w.prefix, w.runID, courseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read waitlist %s: %w", courseID, err)
	}
	return entries, nil
}

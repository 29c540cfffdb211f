package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

// reserveScript decrements a seat counter only while it is positive.
// Returns 1 when a seat was taken, 0 when the course is full.
var reserveScript = redis.NewScript(`
local seats = redis.call("GET", KEYS[1])
if not seats then
  return redis.error_reply("missing seat counter")
end
if tonumber(seats) > 0 then
  redis.call("DECR", KEYS[1])
  return 1
end
return 0
`)

// SeatKey namespaces a course's seat counter by run.
func SeatKey(prefix, runID, courseID string) string {
	return fmt.Sprintf("%s:%s:seats:%s", prefix, runID, courseID)
}

// WaitlistKey namespaces a course's waitlist by run.
func WaitlistKey(prefix, runID, courseID string) string {
	return fmt.Sprintf("%s:%s:waitlist:%s", prefix, runID, courseID)
}

// RedisSeatLedger keeps seat counters in Redis so several processes can share
// one ledger.
type RedisSeatLedger struct {
	client redis.Cmdable
	prefix string
	runID  string
}

// NewRedisSeatLedger seeds one counter per course with the given TTL.
func NewRedisSeatLedger(ctx context.Context, client redis.Cmdable, prefix, runID string, courses []models.Course, ttl time.Duration) (*RedisSeatLedger, error) {
	ledger := &RedisSeatLedger{client: client, prefix: prefix, runID: runID}
	if len(courses) == 0 {
		return ledger, nil
	}

	pipe := client.Pipeline()
	for _, course := range courses {
		capacity := course.Capacity
		if capacity < 0 {
			capacity = 0
		}
		pipe.Set(ctx, SeatKey(prefix, runID, course.ID), capacity, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("seed seat ledger: %w", err)
	}
	return ledger, nil
}

// Reserve atomically takes a seat if one is left.
func (l *RedisSeatLedger) Reserve(ctx context.Context, courseID string) (models.ReserveResult, error) {
	taken, err := reserveScript.Run(ctx, l.client, []string{SeatKey(l.prefix, l.runID, courseID)}).Int()
	if err != nil {
		return models.ReserveFull, fmt.Errorf("reserve seat %s: %w", courseID, err)
	}
	if taken == 1 {
		return models.ReserveReserved, nil
	}
	return models.ReserveFull, nil
}

// Remaining reads the current seat counter.
func (l *RedisSeatLedger) Remaining(ctx context.Context, courseID string) (int, error) {
	n, err := l.client.Get(ctx, SeatKey(l.prefix, l.runID, courseID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s is not in the seat ledger", courseID))
		}
		return 0, fmt.Errorf("read seats %s: %w", courseID, err)
	}
	return n, nil
}

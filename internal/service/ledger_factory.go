package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/repository"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
)

// LedgerFactory builds the per-run seat ledger and waitlist.
type LedgerFactory interface {
	Build(ctx context.Context, runID string, courses []models.Course) (SeatLedger, Waitlist, error)
	Backend() string
}

// MemoryLedgerFactory keeps seats and waitlists in process.
type MemoryLedgerFactory struct{}

// Build seeds fresh in-memory structures for the run.
func (MemoryLedgerFactory) Build(_ context.Context, _ string, courses []models.Course) (SeatLedger, Waitlist, error) {
	return NewMemorySeatLedger(courses), NewMemoryWaitlist(courses), nil
}

// Backend names the factory.
func (MemoryLedgerFactory) Backend() string { return config.LedgerMemory }

// RedisLedgerFactory stores seats and waitlists in Redis keyed by run id.
type RedisLedgerFactory struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisLedgerFactory constructs a factory over an existing client.
func NewRedisLedgerFactory(client redis.Cmdable, cfg config.RedisConfig) *RedisLedgerFactory {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "loadsim"
	}
	return &RedisLedgerFactory{client: client, prefix: prefix, ttl: cfg.KeyTTL}
}

// Build seeds one seat counter per course under the run's namespace.
func (f *RedisLedgerFactory) Build(ctx context.Context, runID string, courses []models.Course) (SeatLedger, Waitlist, error) {
	ledger, err := repository.NewRedisSeatLedger(ctx, f.client, f.prefix, runID, courses, f.ttl)
	if err != nil {
		return nil, nil, err
	}
	return ledger, repository.NewRedisWaitlist(f.client, f.prefix, runID, f.ttl), nil
}

// Backend names the factory.
func (f *RedisLedgerFactory) Backend() string { return config.LedgerRedis }

// LedgerFactoryFor selects a factory for the configured backend. The Redis
// client is required only for the redis backend.
func LedgerFactoryFor(backend string, client redis.Cmdable, cfg config.RedisConfig) (LedgerFactory, error) {
	switch backend {
	case "", config.LedgerMemory:
		return MemoryLedgerFactory{}, nil
	case config.LedgerRedis:
		if client == nil {
			return nil, fmt.Errorf("redis ledger requires a redis client")
		}
		return NewRedisLedgerFactory(client, cfg), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

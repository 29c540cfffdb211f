package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
)

func TestLedgerFactoryForMemory(t *testing.T) {
	factory, err := LedgerFactoryFor("", nil, config.RedisConfig{})
	require.NoError(t, err)
	assert.Equal(t, config.LedgerMemory, factory.Backend())

	ledger, waitlist, err := factory.Build(context.Background(), "run-1", []models.Course{{ID: "c1", Capacity: 1}})
	require.NoError(t, err)
	result, err := ledger.Reserve(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ReserveReserved, result)

	pos, err := waitlist.Append(context.Background(), "c1", "STU000001")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestLedgerFactoryForRejectsBadBackends(t *testing.T) {
	_, err := LedgerFactoryFor(config.LedgerRedis, nil, config.RedisConfig{})
	assert.Error(t, err)

	_, err = LedgerFactoryFor("etcd", nil, config.RedisConfig{})
	assert.Error(t, err)
}

func TestRedisLedgerFactorySurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	factory, err := LedgerFactoryFor(config.LedgerRedis, client, config.RedisConfig{})
	require.NoError(t, err)
	assert.Equal(t, config.LedgerRedis, factory.Backend())

	_, _, err = factory.Build(context.Background(), "run-1", []models.Course{{ID: "c1", Capacity: 3}})
	assert.Error(t, err)
}

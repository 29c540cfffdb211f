package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

func TestMemorySeatLedgerConcurrentReserve(t *testing.T) {
	const capacity, callers = 37, 500
	ledger := NewMemorySeatLedger([]models.Course{{ID: "c1", Capacity: capacity}})

	var reserved atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := ledger.Reserve(context.Background(), "c1")
			if err == nil && result == models.ReserveReserved {
				reserved.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(capacity), reserved.Load())
	remaining, err := ledger.Remaining(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestMemorySeatLedgerNeverNegative(t *testing.T) {
	ledger := NewMemorySeatLedger([]models.Course{{ID: "c1", Capacity: 1}, {ID: "c2", Capacity: -4}})

	first, err := ledger.Reserve(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ReserveReserved, first)

	for i := 0; i < 3; i++ {
		result, err := ledger.Reserve(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, models.ReserveFull, result)
	}

	result, err := ledger.Reserve(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, models.ReserveFull, result)

	assert.Equal(t, map[string]int{"c1": 0, "c2": 0}, ledger.Snapshot())
}

func TestMemorySeatLedgerUnknownCourse(t *testing.T) {
	ledger := NewMemorySeatLedger(nil)

	_, err := ledger.Reserve(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = ledger.Remaining(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMemoryWaitlistPositions(t *testing.T) {
	waitlist := NewMemoryWaitlist([]models.Course{{ID: "c1"}})

	pos, err := waitlist.Append(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	pos, err = waitlist.Append(context.Background(), "c1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	assert.Equal(t, []string{"s1", "s2"}, waitlist.Entries("c1"))

	_, err = waitlist.Append(context.Background(), "c9", "s1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Nil(t, waitlist.Entries("c9"))
}

package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestMap_PreservesOrderAndIsolatesFailures(t *testing.T) {
	keys := []string{"AAPL", "BAD", "MSFT", "PANIC", "NVDA"}

	results := Map(context.Background(), keys, Options{Limit: 3}, func(ctx context.Context, key string) (int, error) {
		switch key {
		case "BAD":
			return 0, errors.New("provider 500")
		case "PANIC":
			panic("nil chain")
		}
		return len(key), nil
	})

	require.Len(t, results, len(keys))
	for i, r := range results {
		assert.Equal(t, keys[i], r.Key)
	}
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 4, results[0].Value)
	assert.EqualError(t, results[1].Err, "provider 500")
	assert.NoError(t, results[2].Err)
	assert.ErrorContains(t, results[3].Err, "panicked")
	assert.Equal(t, 4, results[4].Value)

	values, failures := Split(results)
	assert.Len(t, values, 3)
	assert.Len(t, failures, 2)
	assert.Contains(t, failures, "BAD")
	assert.Contains(t, failures, "PANIC")
}

func TestMap_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = string(rune('A' + i))
	}

	Map(context.Background(), keys, Options{Limit: 4}, func(ctx context.Context, key string) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestMap_CancelledContextMarksUnstartedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Map(ctx, []string{"A", "B"}, Options{Limit: 1}, func(ctx context.Context, key string) (int, error) {
		return 1, nil
	})

	for _, r := range results {
		if r.Err != nil {
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	}
}

func TestMap_WithLimiter(t *testing.T) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	results := Map(context.Background(), []string{"A", "B", "C"}, Options{Limit: 2, Limiter: limiter},
		func(ctx context.Context, key string) (string, error) { return key + key, nil })

	values, failures := Split(results)
	assert.Empty(t, failures)
	assert.Equal(t, "BB", values["B"])
}

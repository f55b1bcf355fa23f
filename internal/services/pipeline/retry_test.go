package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	p := NewRetryPolicy(0)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.InitialBackoff)

	p = NewRetryPolicy(5)
	assert.Equal(t, 5, p.MaxAttempts)
}

func TestBackoffGrowthAndJitter(t *testing.T) {
	p := RetryPolicy{
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}

	for attempt, base := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		for i := 0; i < 50; i++ {
			backoff := p.Backoff(attempt)
			assert.GreaterOrEqual(t, backoff, time.Duration(float64(base)*0.75))
			assert.LessOrEqual(t, backoff, time.Duration(float64(base)*1.25))
		}
	}

	// growth is capped
	capped := p.Backoff(10)
	assert.LessOrEqual(t, capped, time.Duration(float64(30*time.Second)*1.25))
}

func TestExecuteWithRetry_SucceedsEventually(t *testing.T) {
	calls := 0
	err := fastPolicy(3).ExecuteWithRetry(context.Background(), arbor.NewLogger(), "op", nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_Exhausts(t *testing.T) {
	boom := errors.New("persistent failure")
	calls := 0
	err := fastPolicy(3).ExecuteWithRetry(context.Background(), arbor.NewLogger(), "op", nil, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_AbortStopsRetrying(t *testing.T) {
	fatal := errors.New("target closed")
	calls := 0
	err := fastPolicy(3).ExecuteWithRetry(context.Background(), arbor.NewLogger(), "op",
		func(err error) bool { return errors.Is(err, fatal) },
		func() error {
			calls++
			return fatal
		})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "unrecoverable errors never retry")
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Minute, // would stall without cancellation
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := policy.ExecuteWithRetry(ctx, arbor.NewLogger(), "op", nil, func() error {
		return errors.New("always failing")
	})
	require.ErrorIs(t, err, context.Canceled)
}

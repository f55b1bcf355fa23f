package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines retry behavior with exponential backoff for detail
// page fetches.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// NewRetryPolicy returns the default detail-fetch policy: three attempts
// with a doubling backoff starting at two seconds.
func NewRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return RetryPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff computes the wait before retrying after attempt (0-based), with
// ±25% jitter so parallel workers do not retry in lockstep.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.Multiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// ExecuteWithRetry runs fn until it succeeds, the attempts are exhausted,
// abort reports an unrecoverable error, or ctx is done. op names the
// operation for logs.
func (p RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, op string, abort func(error) bool, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if abort != nil && abort(lastErr) {
			logger.Debug().
				Str("op", op).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Unrecoverable error, not retrying")
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		backoff := p.Backoff(attempt)
		logger.Debug().
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	logger.Warn().
		Str("op", op).
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")
	return lastErr
}

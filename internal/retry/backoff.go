// Package retry provides a reusable, clock-injectable exponential backoff
// helper shared by the connection pool's reconnect logic and the Oracle
// writer's batch retry logic.
package retry

import (
	"context"
	"time"
)

// Sleeper abstracts time.Sleep/time.After so tests can inject a fake clock
// instead of waiting out real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps for real, honoring context cancellation.
type RealSleeper struct{}

// Sleep blocks for d or until ctx is done, whichever comes first.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn up to len(delays)+1 times. Between attempts it sleeps for the
// next entry of delays via sleeper. It returns nil on the first success, and
// the last error if every attempt (including retries) fails. shouldRetry, if
// non-nil, is consulted after each failure; returning false aborts further
// attempts immediately (used to distinguish retryable Oracle-class errors
// from everything else, per the writer's retry policy).
func Do(ctx context.Context, sleeper Sleeper, delays []time.Duration, shouldRetry func(error) bool, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= len(delays) {
			return lastErr
		}
		if err := sleeper.Sleep(ctx, delays[attempt]); err != nil {
			return err
		}
	}
}

// OracleBackoff is the [1s, 2s, 4s] sequence named in the Oracle writer's
// retry policy: up to 3 retries after the initial attempt.
var OracleBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// PoolReconnectBackoff is the [5s, 10s, 20s] sequence named in the
// connection pool's reconnect-with-backoff policy.
var PoolReconnectBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

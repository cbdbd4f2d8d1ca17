// Package backoffutil centralizes the bounded exponential backoff policy
// spec §7 mandates for transient infrastructure errors (Kafka unavailable,
// LinkDB timeout): base 0.5s, cap 10s, at most 5 attempts.
package backoffutil

import (
	"context"
	"time"

	"github.com/grafana/dskit/backoff"
)

// DefaultConfig is the spec §7 retry policy.
func DefaultConfig() backoff.Config {
	return backoff.Config{
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		MaxRetries: 5,
	}
}

// Do retries fn under DefaultConfig until it succeeds, the context is
// cancelled, or retries are exhausted. The last error is returned on
// exhaustion so the caller can surface it as an operational error and mark
// any in-progress connection FAILED per spec §7.
func Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return DoWithConfig(ctx, DefaultConfig(), fn)
}

// DoWithConfig is Do with an explicit backoff policy, for components that
// need a tighter loop in tests.
func DoWithConfig(ctx context.Context, cfg backoff.Config, fn func(ctx context.Context) error) error {
	b := backoff.New(ctx, cfg)
	var lastErr error
	for b.Ongoing() {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		b.Wait()
	}
	if lastErr != nil {
		return lastErr
	}
	return b.Err()
}

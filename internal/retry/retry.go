// Package retry implements the §6 retry adapter: given a policy and an
// attempt function, invoke the attempt repeatedly until it stops
// returning a retriable error or the budget is exhausted. The public
// filelock package always retries through Do; it has no option for
// plugging in a different scheduler.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cerrato-dev/filelock/internal/lockerrors"
)

// Policy mirrors the configuration table in §6.
type Policy struct {
	Retries    int
	MinTimeout time.Duration
	MaxTimeout time.Duration
	Factor     float64
}

// DefaultPolicy matches the library's zero-retries default; callers set
// Retries > 0 to opt into retrying at all.
func DefaultPolicy() Policy {
	return Policy{Retries: 0, MinTimeout: 100 * time.Millisecond, MaxTimeout: 1 * time.Second, Factor: 2}
}

// Do runs attempt up to policy.Retries+1 times, backing off between
// attempts whenever attempt's error is retriable per lockerrors.Retryable.
// A non-retriable error returns immediately, bypassing the remaining
// budget, matching §6's "non-retriable errors bypass the retry machinery".
func Do(ctx context.Context, policy Policy, attempt func() error) error {
	if policy.Retries <= 0 {
		return attempt()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.MinTimeout
	b.MaxInterval = policy.MaxTimeout
	b.Multiplier = policy.Factor
	b.MaxElapsedTime = 0

	bounded := backoff.WithMaxRetries(b, uint64(policy.Retries))
	withCtx := backoff.WithContext(bounded, ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if !lockerrors.Retryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, withCtx)

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
		return ctxErr
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

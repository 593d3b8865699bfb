// Package retry applies the pipeline's retry policy: bounded exponential
// backoff with jitter for retryable failures, immediate surfacing for data
// errors.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsarka/samradar/internal/errs"
)

// Policy bounds a retried operation.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries uint64
	// Initial is the first backoff interval. Jitter is applied by the
	// backoff implementation's randomization factor.
	Initial time.Duration
}

// DefaultPolicy matches the storage-write contract: one retry with backoff
// before surfacing.
var DefaultPolicy = Policy{MaxRetries: 1, Initial: 500 * time.Millisecond}

// Do runs op under the policy. Non-retryable errors short-circuit.
func Do(ctx context.Context, p Policy, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		bo.InitialInterval = p.Initial
	}

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !errs.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx))
}

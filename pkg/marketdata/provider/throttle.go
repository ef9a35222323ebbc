package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/rxtech-lab/edgefinder/internal/types"
)

const defaultMaxRetries = 3

// ThrottledProvider decorates a Provider with request pacing and retry.
// Remote market data APIs rate-limit aggressively; every fetch first waits on
// the shared limiter, then retries transient failures with exponential
// backoff.
type ThrottledProvider struct {
	inner      Provider
	limiter    *rate.Limiter
	maxRetries uint64
}

// Compile-time interface check.
var _ Provider = (*ThrottledProvider)(nil)

// NewThrottledProvider wraps inner with a limiter of requestsPerSecond.
func NewThrottledProvider(inner Provider, requestsPerSecond float64) *ThrottledProvider {
	return &ThrottledProvider{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		maxRetries: defaultMaxRetries,
	}
}

// Name returns the wrapped provider's type.
func (t *ThrottledProvider) Name() ProviderType {
	return t.inner.Name()
}

// FetchDailyBars paces and retries the wrapped fetch.
func (t *ThrottledProvider) FetchDailyBars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	var bars []types.Bar

	operation := func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		fetched, err := t.inner.FetchDailyBars(ctx, instrument, start, end)
		if err != nil {
			return err
		}

		bars = fetched

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.maxRetries),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return bars, nil
}

package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
)

// Retrier wraps a Client with bounded retry and exponential backoff.
// Only transient failures are retried; permanent ones propagate
// immediately. The zero value is not usable, construct with NewRetrier.
type Retrier struct {
	client      Client
	maxAttempts int
	base        time.Duration
}

// NewRetrier builds a Retrier issuing at most maxAttempts calls with the
// wait between attempts starting at base and doubling each time.
func NewRetrier(client Client, maxAttempts int, base time.Duration) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{client: client, maxAttempts: maxAttempts, base: base}
}

// RunReport implements Client.
func (r *Retrier) RunReport(ctx context.Context, ds dataset.Dataset, start, end time.Time) ([]Row, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.base
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 10 * r.base

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		rows, err := r.client.RunReport(ctx, ds, start, end)
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if !Transient(err) {
			return nil, &Error{Kind: Permanent, Dataset: ds.ID, Attempts: attempt, cause: err}
		}
		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, &Error{Kind: Permanent, Dataset: ds.ID, Attempts: attempt, cause: ctx.Err()}
		case <-time.After(bo.NextBackOff()):
		}
	}

	return nil, &Error{Kind: Exhausted, Dataset: ds.ID, Attempts: r.maxAttempts, cause: lastErr}
}

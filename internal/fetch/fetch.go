// Package fetch retrieves tabular report data from the GA4 Data API,
// classifying failures and retrying the transient ones with exponential
// backoff.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
)

// Row is one report row: the day it belongs to, the dimension key formed
// by the non-date dimensions (empty for date-only reports), and the
// measure values in the dataset's measure column order.
type Row struct {
	Date         time.Time
	DimensionKey string
	Measures     []float64
}

// Client issues one logical report request per dataset per date range.
type Client interface {
	RunReport(ctx context.Context, ds dataset.Dataset, start, end time.Time) ([]Row, error)
}

// ErrorKind distinguishes why a fetch gave up.
type ErrorKind string

const (
	// Permanent failures (auth, malformed request, non-429 4xx) are not
	// retried.
	Permanent ErrorKind = "permanent"
	// Exhausted means every allowed attempt failed transiently.
	Exhausted ErrorKind = "exhausted"
)

// Error is the terminal failure of a fetch, after classification and any
// retries.
type Error struct {
	Kind     ErrorKind
	Dataset  string
	Attempts int
	cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed (%s after %d attempt(s)): %v",
		e.Dataset, e.Kind, e.Attempts, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPError carries the status of a failed API call so it can be
// classified.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ga4 api returned %d: %s", e.Status, e.Body)
}

// Transient reports whether err is worth retrying: rate limiting (429)
// and server-side errors (5xx). Client errors and cancelled contexts are
// permanent. Everything else, network failures included, is treated as
// transient, matching the source API's guidance to retry on unknown
// failures.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}

	return true
}

// Package syncer orchestrates one incremental sync run: per dataset it
// resolves the missing date range, fetches it, validates the result and
// writes it to the warehouse before advancing the watermark.
package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aniketwaliyan/ga4-warehouse/internal/config"
	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
	"github.com/aniketwaliyan/ga4-warehouse/internal/daterange"
	"github.com/aniketwaliyan/ga4-warehouse/internal/fetch"
	"github.com/aniketwaliyan/ga4-warehouse/internal/warehouse"
)

// Result is the terminal outcome of one dataset's sync.
type Result struct {
	Dataset string
	From    time.Time
	To      time.Time
	Rows    int
	Err     error
}

// UpToDate reports a no-op: the dataset's watermark already covers the
// cutoff, nothing was fetched or written.
func (r Result) UpToDate() bool {
	return r.Err == nil && r.Rows == 0
}

// Summary aggregates a whole run.
type Summary struct {
	Results []Result
	// Fatal is set when the run aborted before any dataset was attempted,
	// e.g. on a configuration error.
	Fatal error
}

// Failed returns the datasets that ended in failure.
func (s Summary) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// OK reports whether the whole run succeeded.
func (s Summary) OK() bool {
	return s.Fatal == nil && len(s.Failed()) == 0
}

// Runner drives the sync state machine for a set of datasets.
// Datasets never share failures: one dataset's error skips only that
// dataset, committed data of the others stays durable.
type Runner struct {
	cfg      *config.Config
	datasets []dataset.Dataset
	client   fetch.Client
	store    *warehouse.DB
	logger   *log.Logger

	// Now is the reference clock for range resolution, overridable in
	// tests.
	Now func() time.Time
}

// New builds a Runner. The client is expected to already carry retry
// behavior (see fetch.NewRetrier).
func New(cfg *config.Config, datasets []dataset.Dataset, client fetch.Client, store *warehouse.DB, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Runner{
		cfg:      cfg,
		datasets: datasets,
		client:   client,
		store:    store,
		logger:   logger,
		Now:      time.Now,
	}
}

// Run executes one sync pass over all datasets. Datasets run sequentially
// unless cfg.Parallel is set; the warehouse serializes concurrent writers
// through its transactions, and backoff waits in one dataset never block
// another.
func (r *Runner) Run(ctx context.Context) Summary {
	today := r.Now()

	// A backfill start beyond the cutoff can never produce a valid range
	// for any dataset; abort before any fetch.
	if _, err := daterange.Resolve(nil, r.cfg.BackfillStart, today, r.cfg.ReportingLagDays); err != nil {
		r.logger.Printf("Run aborted: %v", err)
		return Summary{Fatal: err}
	}

	summary := Summary{Results: make([]Result, len(r.datasets))}

	if r.cfg.Parallel {
		var wg sync.WaitGroup
		for i, ds := range r.datasets {
			wg.Add(1)
			go func(i int, ds dataset.Dataset) {
				defer wg.Done()
				summary.Results[i] = r.syncDataset(ctx, ds, today)
			}(i, ds)
		}
		wg.Wait()
	} else {
		for i, ds := range r.datasets {
			summary.Results[i] = r.syncDataset(ctx, ds, today)
		}
	}

	for _, res := range summary.Results {
		switch {
		case res.Err != nil:
			r.logger.Printf("Dataset %s FAILED: %v", res.Dataset, res.Err)
		case res.UpToDate():
			r.logger.Printf("Dataset %s up to date", res.Dataset)
		default:
			r.logger.Printf("Dataset %s synced %d rows for %s..%s",
				res.Dataset, res.Rows,
				daterange.FormatDay(res.From), daterange.FormatDay(res.To))
		}
	}
	return summary
}

// syncDataset walks one dataset through the state machine:
// resolve range -> fetch -> validate -> write -> advance watermark.
// Every failure is terminal for this dataset only; the watermark is never
// touched unless the write durably committed.
func (r *Runner) syncDataset(ctx context.Context, ds dataset.Dataset, today time.Time) Result {
	res := Result{Dataset: ds.ID}

	wm, ok, err := r.store.Watermark(ctx, ds.ID)
	if err != nil {
		res.Err = err
		return res
	}
	var watermark *time.Time
	if ok {
		watermark = &wm
	}

	days, err := daterange.Resolve(watermark, r.cfg.BackfillStart, today, r.cfg.ReportingLagDays)
	if err != nil {
		res.Err = err
		return res
	}
	if len(days) == 0 {
		r.logger.Printf("Dataset %s: watermark %s already at cutoff, nothing to fetch",
			ds.ID, formatWatermark(watermark))
		return res
	}

	res.From, res.To = days[0], days[len(days)-1]
	r.logger.Printf("Dataset %s: fetching %s..%s (%d day(s))",
		ds.ID, daterange.FormatDay(res.From), daterange.FormatDay(res.To), len(days))

	rows, err := r.client.RunReport(ctx, ds, res.From, res.To)
	if err != nil {
		res.Err = err
		var fetchErr *fetch.Error
		if errors.As(err, &fetchErr) {
			r.logger.Printf("Dataset %s: fetch gave up after %d attempt(s): %v",
				ds.ID, fetchErr.Attempts, fetchErr.Unwrap())
		}
		return res
	}
	r.logger.Printf("Dataset %s: fetched %d rows", ds.ID, len(rows))

	if err := r.store.WriteDataset(ctx, ds, res.From, res.To, rows); err != nil {
		res.Err = err
		var emptyErr *warehouse.EmptyDatasetError
		if errors.As(err, &emptyErr) {
			r.logger.Printf("WARNING: dataset %s: empty result for non-empty range, watermark untouched", ds.ID)
		}
		return res
	}

	if err := r.store.AdvanceWatermark(ctx, ds.ID, res.To); err != nil {
		res.Err = err
		return res
	}
	res.Rows = len(rows)
	r.logger.Printf("Dataset %s: watermark advanced to %s", ds.ID, daterange.FormatDay(res.To))
	return res
}

func formatWatermark(wm *time.Time) string {
	if wm == nil {
		return "(none)"
	}
	return daterange.FormatDay(*wm)
}

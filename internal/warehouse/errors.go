package warehouse

import (
	"fmt"
	"time"

	"github.com/aniketwaliyan/ga4-warehouse/internal/daterange"
)

// EmptyDatasetError rejects a write of zero rows for a non-empty requested
// range. An empty result for days the source should already have finalized
// is an anomaly; writing nothing and advancing the watermark would silently
// hide a gap.
type EmptyDatasetError struct {
	Dataset string
	From    time.Time
	To      time.Time
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("dataset %s returned no rows for %s..%s",
		e.Dataset, daterange.FormatDay(e.From), daterange.FormatDay(e.To))
}

// StorageError wraps a failed warehouse operation. The enclosing
// transaction has been rolled back by the time it is returned.
type StorageError struct {
	Op      string
	Dataset string
	cause   error
}

func (e *StorageError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("storage %s failed for dataset %s: %v", e.Op, e.Dataset, e.cause)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.cause)
}

func (e *StorageError) Unwrap() error { return e.cause }

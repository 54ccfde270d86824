// Package daterange computes the set of missing days between a dataset's
// sync watermark and the newest day considered final by the source.
package daterange

import (
	"fmt"
	"time"
)

// DayFormat is the ISO-8601 date layout used throughout the warehouse.
const DayFormat = "2006-01-02"

// ConfigError reports an impossible range request, such as a backfill
// start beyond the cutoff. It aborts the whole run rather than a single
// dataset.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO-8601 date (2006-01-02) into a UTC day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDay renders a day as an ISO-8601 date string.
func FormatDay(t time.Time) string {
	return t.Format(DayFormat)
}

// Resolve returns the ordered, contiguous days a dataset is missing.
//
// The range starts the day after the watermark (or at backfillStart when
// no watermark exists) and ends at today minus lagDays inclusive. Days
// newer than the cutoff are excluded because the source still treats them
// as provisional.
//
// An empty slice means the dataset is already up to date. An error is
// returned only when the configured backfill start lies beyond the cutoff,
// which indicates a misconfiguration rather than a no-op.
func Resolve(watermark *time.Time, backfillStart, today time.Time, lagDays int) ([]time.Time, error) {
	cutoff := Day(today).AddDate(0, 0, -lagDays)

	var start time.Time
	if watermark != nil {
		start = Day(*watermark).AddDate(0, 0, 1)
	} else {
		start = Day(backfillStart)
		if start.After(cutoff) {
			return nil, &ConfigError{msg: fmt.Sprintf(
				"backfill start %s is after cutoff %s (lag %dd)",
				FormatDay(start), FormatDay(cutoff), lagDays)}
		}
	}

	if start.After(cutoff) {
		return nil, nil
	}

	days := make([]time.Time, 0, int(cutoff.Sub(start).Hours()/24)+1)
	for d := start; !d.After(cutoff); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

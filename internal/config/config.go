// Package config turns raw environment settings into a validated runtime
// configuration for the sync engine.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aniketwaliyan/ga4-warehouse/internal/daterange"
	"github.com/aniketwaliyan/ga4-warehouse/pkg/env"
)

// Error reports an invalid or missing configuration value. It is fatal:
// the run aborts before any fetch is issued.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// Config is the fully resolved runtime configuration.
type Config struct {
	PropertyID       string
	CredentialsPath  string
	StoragePath      string
	ExportDir        string
	BackfillStart    time.Time
	ReportingLagDays int
	MaxRetryAttempts int
	BackoffBase      time.Duration
	DatasetsFile     string
	LogFile          string
	Parallel         bool
}

// defaultBackfillDays is how far back the first run reaches when no
// explicit backfill start is configured.
const defaultBackfillDays = 30

// FromEnv validates raw environment settings and resolves defaults.
// The backfill start defaults to 30 days before now when unset.
func FromEnv(raw *env.Config, now time.Time) (*Config, error) {
	if raw.PropertyID == "" {
		return nil, &Error{Field: "GA4_PROPERTY_ID", Msg: "is required"}
	}
	if raw.CredentialsPath == "" {
		return nil, &Error{Field: "GA4_CREDENTIALS_PATH", Msg: "is required"}
	}
	if raw.StoragePath == "" {
		return nil, &Error{Field: "GA4_DB_PATH", Msg: "is required"}
	}

	backfill := daterange.Day(now).AddDate(0, 0, -defaultBackfillDays)
	if raw.BackfillStart != "" {
		parsed, err := daterange.ParseDay(raw.BackfillStart)
		if err != nil {
			return nil, &Error{Field: "GA4_BACKFILL_START", Msg: err.Error()}
		}
		backfill = parsed
	}

	lag, err := positiveInt("GA4_REPORTING_LAG_DAYS", raw.ReportingLagDays, true)
	if err != nil {
		return nil, err
	}

	attempts, err := positiveInt("GA4_MAX_RETRY_ATTEMPTS", raw.RetryAttempts, false)
	if err != nil {
		return nil, err
	}

	base, err := time.ParseDuration(raw.BackoffBase)
	if err != nil || base <= 0 {
		return nil, &Error{Field: "GA4_BACKOFF_BASE", Msg: fmt.Sprintf("invalid duration %q", raw.BackoffBase)}
	}

	return &Config{
		PropertyID:       raw.PropertyID,
		CredentialsPath:  raw.CredentialsPath,
		StoragePath:      raw.StoragePath,
		ExportDir:        raw.ExportDir,
		BackfillStart:    backfill,
		ReportingLagDays: lag,
		MaxRetryAttempts: attempts,
		BackoffBase:      base,
		DatasetsFile:     raw.DatasetsFile,
		LogFile:          raw.LogFile,
	}, nil
}

func positiveInt(field, value string, zeroOK bool) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &Error{Field: field, Msg: fmt.Sprintf("invalid integer %q", value)}
	}
	if n < 0 || (n == 0 && !zeroOK) {
		return 0, &Error{Field: field, Msg: fmt.Sprintf("must be positive, got %d", n)}
	}
	return n, nil
}

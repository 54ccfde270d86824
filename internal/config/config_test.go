package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniketwaliyan/ga4-warehouse/pkg/env"
)

func rawConfig() *env.Config {
	return &env.Config{
		PropertyID:       "123456",
		CredentialsPath:  "credentials.token",
		StoragePath:      "ga4_data.db",
		ExportDir:        ".",
		BackfillStart:    "2024-02-01",
		ReportingLagDays: "1",
		RetryAttempts:    "3",
		BackoffBase:      "1s",
		LogFile:          "ga4_warehouse.log",
	}
}

func TestFromEnv(t *testing.T) {
	now := time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)

	cfg, err := FromEnv(rawConfig(), now)
	require.NoError(t, err)

	assert.Equal(t, "123456", cfg.PropertyID)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), cfg.BackfillStart)
	assert.Equal(t, 1, cfg.ReportingLagDays)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
}

func TestFromEnvDefaultsBackfillTo30Days(t *testing.T) {
	raw := rawConfig()
	raw.BackfillStart = ""
	now := time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)

	cfg, err := FromEnv(raw, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), cfg.BackfillStart)
}

func TestFromEnvValidation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		field  string
		mutate func(*env.Config)
	}{
		{"missing property id", "GA4_PROPERTY_ID", func(c *env.Config) { c.PropertyID = "" }},
		{"missing credentials", "GA4_CREDENTIALS_PATH", func(c *env.Config) { c.CredentialsPath = "" }},
		{"missing storage path", "GA4_DB_PATH", func(c *env.Config) { c.StoragePath = "" }},
		{"bad backfill date", "GA4_BACKFILL_START", func(c *env.Config) { c.BackfillStart = "03/16/2024" }},
		{"bad lag", "GA4_REPORTING_LAG_DAYS", func(c *env.Config) { c.ReportingLagDays = "soon" }},
		{"negative lag", "GA4_REPORTING_LAG_DAYS", func(c *env.Config) { c.ReportingLagDays = "-1" }},
		{"zero attempts", "GA4_MAX_RETRY_ATTEMPTS", func(c *env.Config) { c.RetryAttempts = "0" }},
		{"bad backoff", "GA4_BACKOFF_BASE", func(c *env.Config) { c.BackoffBase = "fast" }},
		{"negative backoff", "GA4_BACKOFF_BASE", func(c *env.Config) { c.BackoffBase = "-1s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawConfig()
			tt.mutate(raw)

			_, err := FromEnv(raw, now)
			require.Error(t, err)

			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestFromEnvAllowsZeroLag(t *testing.T) {
	raw := rawConfig()
	raw.ReportingLagDays = "0"

	cfg, err := FromEnv(raw, time.Now())
	require.NoError(t, err)
	assert.Zero(t, cfg.ReportingLagDays)
}

package env

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds environment variables
type Config struct {
	// GA4
	PropertyID      string
	CredentialsPath string

	// Warehouse
	StoragePath string
	ExportDir   string

	// Sync
	BackfillStart    string
	ReportingLagDays string
	RetryAttempts    string
	BackoffBase      string
	DatasetsFile     string

	// Logging
	LogFile string
}

// Load reads environment variables, preferring a .env file in workDir
// when one exists. Variables already set in the process environment win.
func Load(workDir string) (*Config, error) {
	envFile := filepath.Join(workDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, err
		}
	}

	return &Config{
		// GA4
		PropertyID:      getEnvOrDefault("GA4_PROPERTY_ID", ""),
		CredentialsPath: getEnvOrDefault("GA4_CREDENTIALS_PATH", ""),

		// Warehouse
		StoragePath: getEnvOrDefault("GA4_DB_PATH", "ga4_data.db"),
		ExportDir:   getEnvOrDefault("GA4_EXPORT_DIR", "."),

		// Sync
		BackfillStart:    getEnvOrDefault("GA4_BACKFILL_START", ""),
		ReportingLagDays: getEnvOrDefault("GA4_REPORTING_LAG_DAYS", "1"),
		RetryAttempts:    getEnvOrDefault("GA4_MAX_RETRY_ATTEMPTS", "3"),
		BackoffBase:      getEnvOrDefault("GA4_BACKOFF_BASE", "1s"),
		DatasetsFile:     getEnvOrDefault("GA4_DATASETS_FILE", ""),

		// Logging
		LogFile: getEnvOrDefault("GA4_LOG_FILE", "ga4_warehouse.log"),
	}, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

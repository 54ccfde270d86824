// Package dataset maps logical dataset names to GA4 report definitions
// and warehouse fact tables.
package dataset

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Dataset describes one logical dataset: the GA4 dimensions and metrics
// requested from the reporting API and the fact table the results land in.
//
// The first dimension must always be "date". Any further dimensions form
// the dimension key of a fact row (e.g. page title, search term).
// Measures holds the warehouse column name for each metric, in the same
// order as Metrics.
type Dataset struct {
	ID         string   `yaml:"id"`
	Table      string   `yaml:"table"`
	Dimensions []string `yaml:"dimensions"`
	Metrics    []string `yaml:"metrics"`
	Measures   []string `yaml:"measures"`
}

// Validate checks that the dataset definition is internally consistent.
func (d Dataset) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	if d.Table == "" {
		return fmt.Errorf("dataset %s: table is required", d.ID)
	}
	if len(d.Dimensions) == 0 || d.Dimensions[0] != "date" {
		return fmt.Errorf("dataset %s: first dimension must be \"date\"", d.ID)
	}
	if len(d.Metrics) == 0 {
		return fmt.Errorf("dataset %s: at least one metric is required", d.ID)
	}
	if len(d.Measures) != len(d.Metrics) {
		return fmt.Errorf("dataset %s: measures (%d) must match metrics (%d)",
			d.ID, len(d.Measures), len(d.Metrics))
	}
	for _, m := range d.Measures {
		if !columnName.MatchString(m) {
			return fmt.Errorf("dataset %s: invalid measure column %q", d.ID, m)
		}
	}
	if !columnName.MatchString(d.Table) {
		return fmt.Errorf("dataset %s: invalid table name %q", d.ID, d.Table)
	}
	return nil
}

// Measure names and table names are interpolated into DDL, so they are
// restricted to identifier characters.
var columnName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Defaults returns the built-in dataset registry: user, content and site
// metrics, matching the warehouse's standard report set.
func Defaults() []Dataset {
	return []Dataset{
		{
			ID:         "users",
			Table:      "user_metrics",
			Dimensions: []string{"date"},
			Metrics: []string{
				"activeUsers", "sessions", "engagementRate",
				"conversions", "averageSessionDuration",
			},
			Measures: []string{
				"users", "sessions", "engagement_rate",
				"conversions", "average_session_duration",
			},
		},
		{
			ID:         "content",
			Table:      "content_metrics",
			Dimensions: []string{"date", "pageTitle"},
			Metrics: []string{
				"screenPageViews", "sessions", "engagementRate",
				"userEngagementDuration",
			},
			Measures: []string{
				"page_views", "sessions", "engagement_rate",
				"session_duration",
			},
		},
		{
			ID:         "site",
			Table:      "site_metrics",
			Dimensions: []string{"date", "searchTerm"},
			Metrics:    []string{"eventCount", "screenPageViews"},
			Measures:   []string{"clicks", "impressions"},
		},
	}
}

type registryFile struct {
	Datasets []Dataset `yaml:"datasets"`
}

// Load reads dataset definitions from a YAML file. Environment variables
// referenced as ${VAR} are interpolated before parsing. An empty path
// returns the built-in defaults.
func Load(path string) ([]Dataset, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset config: %w", err)
	}

	content := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		value := os.Getenv(match[2 : len(match)-1])
		if value == "" {
			return match
		}
		return value
	})

	var file registryFile
	if err := yaml.Unmarshal([]byte(content), &file); err != nil {
		return nil, fmt.Errorf("failed to parse dataset config: %w", err)
	}
	if len(file.Datasets) == 0 {
		return nil, fmt.Errorf("dataset config %s defines no datasets", path)
	}

	seen := make(map[string]bool, len(file.Datasets))
	for _, ds := range file.Datasets {
		if err := ds.Validate(); err != nil {
			return nil, fmt.Errorf("invalid dataset config: %w", err)
		}
		if seen[ds.ID] {
			return nil, fmt.Errorf("duplicate dataset id %q", ds.ID)
		}
		seen[ds.ID] = true
	}

	return file.Datasets, nil
}

var envVarPattern = regexp.MustCompile(`\${([^}]+)}`)

// Package export writes read-only CSV projections of the warehouse fact
// tables.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
	"github.com/aniketwaliyan/ga4-warehouse/internal/warehouse"
)

// Dataset writes one fact table to <dir>/<table>.csv and returns the file
// path. The header is date, dimension_key followed by the dataset's
// measure columns.
func Dataset(ctx context.Context, db *warehouse.DB, ds dataset.Dataset, dir string) (string, error) {
	rows, err := db.FactRows(ctx, ds)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, ds.Table+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"date", "dimension_key"}, ds.Measures...)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return path, nil
}

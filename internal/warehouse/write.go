package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
	"github.com/aniketwaliyan/ga4-warehouse/internal/daterange"
	"github.com/aniketwaliyan/ga4-warehouse/internal/fetch"
)

// WriteDataset persists one dataset's rows for the date range [from, to]
// in a single transaction: missing date dimension rows are inserted first,
// then fact rows are upserted keyed by (date, dimension_key). Re-running
// the same write leaves table contents unchanged.
//
// An empty rows slice is rejected with *EmptyDatasetError before the
// transaction starts. Any failure mid-write rolls the whole transaction
// back and surfaces as *StorageError.
func (db *DB) WriteDataset(ctx context.Context, ds dataset.Dataset, from, to time.Time, rows []fetch.Row) error {
	if len(rows) == 0 {
		return &EmptyDatasetError{Dataset: ds.ID, From: from, To: to}
	}
	for i, row := range rows {
		if len(row.Measures) != len(ds.Measures) {
			return &StorageError{Op: "write", Dataset: ds.ID, cause: fmt.Errorf(
				"row %d has %d measures, table %s has %d",
				i, len(row.Measures), ds.Table, len(ds.Measures))}
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "write", Dataset: ds.ID, cause: err}
	}
	defer tx.Rollback()

	if err := insertDates(ctx, tx, db, from, to, rows); err != nil {
		return &StorageError{Op: "write", Dataset: ds.ID, cause: err}
	}
	if err := upsertFacts(ctx, tx, db, ds, rows); err != nil {
		return &StorageError{Op: "write", Dataset: ds.ID, cause: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "write", Dataset: ds.ID, cause: err}
	}
	return nil
}

// insertDates appends every day of the requested range, plus any row date
// outside it, to the date dimension. Dates are never updated or deleted.
func insertDates(ctx context.Context, tx *sql.Tx, db *DB, from, to time.Time, rows []fetch.Row) error {
	days := make(map[string]time.Time)
	for d := daterange.Day(from); !d.After(daterange.Day(to)); d = d.AddDate(0, 0, 1) {
		days[daterange.FormatDay(d)] = d
	}
	for _, row := range rows {
		d := daterange.Day(row.Date)
		days[daterange.FormatDay(d)] = d
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(
		`INSERT INTO date_dim (date, year, month, day_of_week)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (date) DO NOTHING`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, d := range days {
		if _, err := stmt.ExecContext(ctx, key, d.Year(), int(d.Month()), d.Weekday().String()); err != nil {
			return fmt.Errorf("failed to insert date %s: %w", key, err)
		}
	}
	return nil
}

func upsertFacts(ctx context.Context, tx *sql.Tx, db *DB, ds dataset.Dataset, rows []fetch.Row) error {
	placeholders := make([]string, 0, len(ds.Measures)+2)
	updates := make([]string, 0, len(ds.Measures))
	for range ds.Measures {
		placeholders = append(placeholders, "?")
	}
	for _, m := range ds.Measures {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", m, m))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (date, dimension_key, %s)
		 VALUES (?, ?, %s)
		 ON CONFLICT (date, dimension_key) DO UPDATE SET %s`,
		ds.Table,
		strings.Join(ds.Measures, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))

	stmt, err := tx.PrepareContext(ctx, db.rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range rows {
		args := make([]interface{}, 0, len(row.Measures)+2)
		args = append(args, daterange.FormatDay(row.Date), row.DimensionKey)
		for _, m := range row.Measures {
			args = append(args, m)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert row %d into %s: %w", i, ds.Table, err)
		}
	}
	return nil
}

// Watermark returns the last fully synced date for a dataset. ok is false
// when the dataset has never completed a sync.
func (db *DB) Watermark(ctx context.Context, datasetID string) (time.Time, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT last_synced_date FROM sync_state WHERE dataset_id = ?"),
		datasetID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "watermark read", Dataset: datasetID, cause: err}
	}

	day, err := daterange.ParseDay(value)
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "watermark read", Dataset: datasetID, cause: err}
	}
	return day, true, nil
}

// AdvanceWatermark records day as the last fully synced date. The
// watermark only moves forward; a stale value is never written over a
// newer one.
func (db *DB) AdvanceWatermark(ctx context.Context, datasetID string, day time.Time) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO sync_state (dataset_id, last_synced_date)
		 VALUES (?, ?)
		 ON CONFLICT (dataset_id) DO UPDATE SET last_synced_date = excluded.last_synced_date
		 WHERE excluded.last_synced_date > sync_state.last_synced_date`),
		datasetID, daterange.FormatDay(daterange.Day(day)))
	if err != nil {
		return &StorageError{Op: "watermark advance", Dataset: datasetID, cause: err}
	}
	return nil
}

// FactRows reads back a fact table as formatted strings, ordered by date
// and dimension key: (date, dimension_key, measures...). Used by the CSV
// export and by tests comparing table contents.
func (db *DB) FactRows(ctx context.Context, ds dataset.Dataset) ([][]string, error) {
	query := fmt.Sprintf(
		"SELECT date, dimension_key, %s FROM %s ORDER BY date, dimension_key",
		strings.Join(ds.Measures, ", "), ds.Table)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &StorageError{Op: "read", Dataset: ds.ID, cause: err}
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var date, key string
		measures := make([]sql.NullFloat64, len(ds.Measures))
		scan := make([]interface{}, 0, len(measures)+2)
		scan = append(scan, &date, &key)
		for i := range measures {
			scan = append(scan, &measures[i])
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, &StorageError{Op: "read", Dataset: ds.ID, cause: err}
		}

		record := make([]string, 0, len(measures)+2)
		record = append(record, date, key)
		for _, m := range measures {
			if m.Valid {
				record = append(record, strconv.FormatFloat(m.Float64, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Dataset: ds.ID, cause: err}
	}
	return out, nil
}

// DateCount returns the number of rows in the date dimension.
func (db *DB) DateCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM date_dim").Scan(&n); err != nil {
		return 0, &StorageError{Op: "read", cause: err}
	}
	return n, nil
}

// FactCount returns the number of rows in a dataset's fact table.
func (db *DB) FactCount(ctx context.Context, ds dataset.Dataset) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", ds.Table)
	if err := db.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, &StorageError{Op: "read", Dataset: ds.ID, cause: err}
	}
	return n, nil
}

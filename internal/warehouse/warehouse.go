// Package warehouse owns the relational schema of the local analytics
// warehouse and performs all reads and writes against it.
//
// The schema is a small star: a shared date dimension, one fact table per
// dataset keyed by (date, dimension_key), and a sync_state table holding
// per-dataset watermarks. SQLite (embedded) is the default engine; a
// PostgreSQL DSN selects lib/pq instead. Both engines share the
// INSERT ... ON CONFLICT upsert dialect the write path relies on.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
)

// DB wraps the warehouse database connection.
type DB struct {
	conn   *sql.DB
	driver string
}

// Open connects to the warehouse. DSNs starting with postgres:// (or
// postgresql://) use lib/pq; anything else is treated as a SQLite file
// path. The caller must Close when done.
func Open(dsn string) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return openPostgres(dsn)
	}
	return openSQLite(dsn)
}

func openPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &DB{conn: conn, driver: "postgres"}, nil
}

func openSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}

	connStr := path
	if !strings.HasPrefix(connStr, "file:") {
		connStr = "file:" + connStr
	}
	// DSN pragmas apply to every pooled connection: WAL for concurrent
	// readers, a busy timeout so parallel dataset writes queue instead of
	// failing, and enforced foreign keys for the date dimension.
	connStr += "?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}
	return &DB{conn: conn, driver: "sqlite3"}, nil
}

// Close closes the connection, checkpointing the WAL first on SQLite.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.driver == "sqlite3" {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}
	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close warehouse: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to the $n form lib/pq expects. SQLite
// statements pass through unchanged.
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EnsureSchema creates the date dimension, sync state table and one fact
// table per dataset. Idempotent, safe to call on every run.
func (db *DB) EnsureSchema(ctx context.Context, datasets []dataset.Dataset) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS date_dim (
			date TEXT PRIMARY KEY,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			day_of_week TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			dataset_id TEXT PRIMARY KEY,
			last_synced_date TEXT NOT NULL
		)`,
	}

	for _, ds := range datasets {
		if err := ds.Validate(); err != nil {
			return &StorageError{Op: "schema", Dataset: ds.ID, cause: err}
		}
		cols := make([]string, 0, len(ds.Measures))
		for _, m := range ds.Measures {
			cols = append(cols, fmt.Sprintf("%s REAL", m))
		}
		ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date TEXT NOT NULL REFERENCES date_dim(date),
			dimension_key TEXT NOT NULL,
			%s,
			PRIMARY KEY (date, dimension_key)
		)`, ds.Table, strings.Join(cols, ",\n\t\t\t")))
		ddl = append(ddl, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_date ON %s(date)", ds.Table, ds.Table))
	}

	for _, stmt := range ddl {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "schema", cause: err}
		}
	}
	return nil
}

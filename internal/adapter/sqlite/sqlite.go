package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/schema"

	_ "modernc.org/sqlite"
)

func init() {
	adapter.Register(&sqliteDialect{SQL: adapter.SQL{
		QuoteChar: '"',
		Types: adapter.Types{
			schema.KindIdentity:  "INTEGER PRIMARY KEY AUTOINCREMENT",
			schema.KindText:      "TEXT",
			schema.KindReal:      "REAL",
			schema.KindInteger:   "INTEGER",
			schema.KindTimestamp: "TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
			schema.KindFlag:      "INTEGER",
			schema.KindKey:       "TEXT",
		},
	}})
}

// sqliteDialect implements adapter.Dialect for SQLite through the pure-Go
// modernc.org/sqlite driver.
type sqliteDialect struct {
	adapter.SQL
}

func (d *sqliteDialect) Name() string    { return "sqlite" }
func (d *sqliteDialect) Returning() bool { return false }

func (d *sqliteDialect) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}

// normalizeDSN strips common SQLite URI prefixes and sets the pragmas every
// pooled connection needs.
func normalizeDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "file:")
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// AddColumn omits the CURRENT_TIMESTAMP default, which SQLite rejects in
// ALTER TABLE.
func (d *sqliteDialect) AddColumn(table string, col schema.ColumnDef) string {
	if col.Kind == schema.KindTimestamp {
		return "ALTER TABLE " + d.Quote(table) + " ADD COLUMN " + d.Quote(col.Name) + " TIMESTAMP"
	}
	return d.SQL.AddColumn(table, col)
}

// CanDropColumn reports whether the linked SQLite is 3.35.0 or newer.
func (d *sqliteDialect) CanDropColumn(ctx context.Context, q adapter.Querier) (bool, error) {
	var version string
	if err := q.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return false, fmt.Errorf("sqlite version: %w", err)
	}
	return versionAtLeast(version, 3, 35), nil
}

func versionAtLeast(version string, major, minor int) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	gotMajor, err1 := strconv.Atoi(parts[0])
	gotMinor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}
	return gotMajor > major || (gotMajor == major && gotMinor >= minor)
}

// Columns returns column metadata for the given table using PRAGMA table_info.
func (d *sqliteDialect) Columns(ctx context.Context, q adapter.Querier, table string) ([]schema.Column, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+d.Quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("sqlite columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("sqlite columns scan: %w", err)
		}
		col := schema.Column{
			Name:     name,
			Type:     colType,
			Nullable: notNull == 0,
			IsPK:     pk > 0,
		}
		if dfltValue.Valid {
			col.Default = dfltValue.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

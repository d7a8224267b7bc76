package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/schema"
)

func init() {
	adapter.Register(&postgresDialect{SQL: adapter.SQL{
		QuoteChar: '"',
		Numbered:  true,
		Types: adapter.Types{
			schema.KindIdentity:  "BIGSERIAL PRIMARY KEY",
			schema.KindText:      "TEXT",
			schema.KindReal:      "DOUBLE PRECISION",
			schema.KindInteger:   "BIGINT",
			schema.KindTimestamp: "TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
			schema.KindFlag:      "INTEGER",
			schema.KindKey:       "TEXT",
		},
	}})
}

// postgresDialect implements adapter.Dialect for PostgreSQL through pgx's
// database/sql driver.
type postgresDialect struct {
	adapter.SQL
}

func (d *postgresDialect) Name() string    { return "postgres" }
func (d *postgresDialect) Returning() bool { return true }

func (d *postgresDialect) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres parse dsn: %w", err)
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping %s: %w", extractDBName(dsn), err)
	}
	return db, nil
}

// extractDBName parses the database name from the DSN.
func extractDBName(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err == nil && u.Scheme != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	for _, part := range strings.Fields(dsn) {
		if strings.HasPrefix(part, "dbname=") {
			return strings.TrimPrefix(part, "dbname=")
		}
	}
	return ""
}

func (d *postgresDialect) CanDropColumn(context.Context, adapter.Querier) (bool, error) {
	return true, nil
}

func (d *postgresDialect) Columns(ctx context.Context, q adapter.Querier, table string) ([]schema.Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT c.column_name,
		        c.data_type,
		        c.is_nullable,
		        COALESCE(c.column_default, ''),
		        EXISTS (
		          SELECT 1
		          FROM information_schema.table_constraints tc
		          JOIN information_schema.key_column_usage kcu
		            ON kcu.constraint_name = tc.constraint_name
		           AND kcu.table_schema    = tc.table_schema
		          WHERE tc.constraint_type = 'PRIMARY KEY'
		            AND tc.table_schema    = c.table_schema
		            AND tc.table_name      = c.table_name
		            AND kcu.column_name    = c.column_name
		        )
		 FROM information_schema.columns c
		 WHERE c.table_schema = current_schema()
		   AND c.table_name   = $1
		 ORDER BY c.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("postgres columns: %w", err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			col      schema.Column
			nullable string
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Default, &col.IsPK); err != nil {
			return nil, fmt.Errorf("postgres columns scan: %w", err)
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

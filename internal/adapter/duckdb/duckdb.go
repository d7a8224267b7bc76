package duckdb

import (
	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/schema"
)

func init() {
	adapter.Register(&duckdbDialect{SQL: adapter.SQL{
		QuoteChar: '"',
		Types: adapter.Types{
			schema.KindText:      "VARCHAR",
			schema.KindReal:      "DOUBLE",
			schema.KindInteger:   "BIGINT",
			schema.KindTimestamp: "TIMESTAMP DEFAULT current_timestamp",
			schema.KindFlag:      "INTEGER",
			schema.KindKey:       "VARCHAR",
		},
	}})
}

// duckdbDialect implements adapter.Dialect for DuckDB. Connections need the
// duckdb build tag; rendering works either way.
type duckdbDialect struct {
	adapter.SQL
}

func (d *duckdbDialect) Name() string    { return "duckdb" }
func (d *duckdbDialect) Returning() bool { return true }

func sequenceName(table string) string { return "seq_" + table }

// CreateTable backs the identity column with a per-table sequence, since
// DuckDB has no auto-increment column type.
func (d *duckdbDialect) CreateTable(table string, cols []schema.ColumnDef) []string {
	var stmts []string
	rendered := make([]schema.ColumnDef, 0, len(cols))
	for _, c := range cols {
		if c.Kind != schema.KindIdentity {
			rendered = append(rendered, c)
			continue
		}
		seq := sequenceName(table)
		stmts = append(stmts, "CREATE SEQUENCE IF NOT EXISTS "+d.Quote(seq))
		rendered = append(rendered, schema.ColumnDef{
			Name:    c.Name,
			Kind:    schema.KindInteger,
			Default: "nextval('" + seq + "')",
			Primary: true,
		})
	}
	return append(stmts, d.SQL.CreateTable(table, rendered)...)
}

func (d *duckdbDialect) DropTable(table string) []string {
	return append(d.SQL.DropTable(table), "DROP SEQUENCE IF EXISTS "+d.Quote(sequenceName(table)))
}

package storage

import (
	"context"
	"fmt"

	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/metrics"
	"github.com/sadopc/tabula/internal/schema"
)

// Table describes one physical table.
type Table struct {
	Name    string
	Columns []schema.ColumnDef
}

// TableFor builds the descriptor of a collection table: identity, the
// built-in columns, then one column per physical field in field order.
func TableFor(name string, fields []schema.Field) Table {
	cols := make([]schema.ColumnDef, 0, 1+len(schema.BookkeepingColumns)+len(fields))
	cols = append(cols, schema.IdentityColumn)
	cols = append(cols, schema.BookkeepingColumns...)
	for _, f := range fields {
		if f.Physical() {
			cols = append(cols, FieldColumn(f))
		}
	}
	return Table{Name: name, Columns: cols}
}

// FieldColumn returns the column backing a physical field.
func FieldColumn(f schema.Field) schema.ColumnDef {
	return schema.ColumnDef{Name: f.Key, Kind: f.Type.ColumnKind()}
}

// CreateTable creates t if it does not exist.
func (c *Conn) CreateTable(ctx context.Context, t Table) error {
	for _, stmt := range c.dialect.CreateTable(t.Name, t.Columns) {
		if _, err := c.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// AddColumn adds one column to an existing table.
func (c *Conn) AddColumn(ctx context.Context, table string, col schema.ColumnDef) error {
	if _, err := c.q.ExecContext(ctx, c.dialect.AddColumn(table, col)); err != nil {
		return fmt.Errorf("storage add column %s.%s: %w", table, col.Name, err)
	}
	return nil
}

// DropColumn drops a column. When the engine cannot do it, the outcome is
// decided by the drop policy.
func (c *Conn) DropColumn(ctx context.Context, table, column string) error {
	ok, err := c.dialect.CanDropColumn(ctx, c.q)
	if err != nil {
		return c.degrade(table, column, err)
	}
	if !ok {
		return c.degrade(table, column, nil)
	}
	if _, err := c.q.ExecContext(ctx, c.dialect.DropColumn(table, column)); err != nil {
		return c.degrade(table, column, err)
	}
	return nil
}

func (c *Conn) degrade(table, column string, cause error) error {
	if c.policy == DropStrict {
		return &errs.StorageError{Op: "drop column " + column, Table: table, Err: cause}
	}
	c.log.Warnw("column drop not performed, leaving physical column in place",
		"table", table,
		"column", column,
		"error", cause,
	)
	metrics.StorageDegraded.WithLabelValues("drop_column").Inc()
	return nil
}

// DropTable drops a table if it exists.
func (c *Conn) DropTable(ctx context.Context, table string) error {
	for _, stmt := range c.dialect.DropTable(table) {
		if _, err := c.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage drop table %s: %w", table, err)
		}
	}
	return nil
}

// Columns introspects a table.
func (c *Conn) Columns(ctx context.Context, table string) ([]schema.Column, error) {
	cols, err := c.dialect.Columns(ctx, c.q, table)
	if err != nil {
		return nil, fmt.Errorf("storage columns %s: %w", table, err)
	}
	return cols, nil
}

// EnsureColumns adds every column of want the table is missing and returns
// the names it added. A table without columns does not exist and yields an
// *errs.NotFoundError.
func (c *Conn) EnsureColumns(ctx context.Context, table string, want []schema.ColumnDef) ([]string, error) {
	have, err := c.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(have) == 0 {
		return nil, errs.NotFound("table", table)
	}
	present := make(map[string]bool, len(have))
	for _, col := range have {
		present[col.Name] = true
	}
	var added []string
	for _, col := range want {
		if present[col.Name] {
			continue
		}
		if err := c.AddColumn(ctx, table, col); err != nil {
			return added, err
		}
		added = append(added, col.Name)
	}
	return added, nil
}

// EnsureBuiltins adds any missing built-in column to a collection table.
func (c *Conn) EnsureBuiltins(ctx context.Context, table string) ([]string, error) {
	return c.EnsureColumns(ctx, table, schema.BookkeepingColumns)
}

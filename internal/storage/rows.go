package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/schema"
)

// Row is one stored row keyed by column name.
type Row = map[string]any

// TimeLayout is the text form timestamps are read back in.
const TimeLayout = "2006-01-02 15:04:05"

// Unique asks a write to reject values already present in Column.
type Unique struct {
	Column string
	Value  any
}

func (c *Conn) selectPrefix(table string) string {
	return "SELECT * FROM " + c.dialect.Quote(table)
}

// SelectAll returns every row, newest first.
func (c *Conn) SelectAll(ctx context.Context, table string) ([]Row, error) {
	d := c.dialect
	query := c.selectPrefix(table) + " ORDER BY " + d.Quote(schema.ColCreatedAt) + " DESC, " + d.Quote(schema.ColID) + " DESC"
	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage select %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// SelectByID returns one row or an *errs.NotFoundError.
func (c *Conn) SelectByID(ctx context.Context, table string, id int64) (Row, error) {
	query := c.selectPrefix(table) + " WHERE " + c.dialect.Quote(schema.ColID) + " = " + c.dialect.Placeholder(1)
	rows, err := c.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("storage select %s: %w", table, err)
	}
	defer rows.Close()
	found, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errs.NotFound("row", strconv.FormatInt(id, 10))
	}
	return found[0], nil
}

// Exists reports whether any row other than excludeID holds value in column.
// Pass excludeID 0 to consider every row.
func (c *Conn) Exists(ctx context.Context, table, column string, value any, excludeID int64) (bool, error) {
	d := c.dialect
	query := "SELECT 1 FROM " + d.Quote(table) + " WHERE " + d.Quote(column) + " = " + d.Placeholder(1)
	args := []any{bindValue(value)}
	if excludeID != 0 {
		query += " AND " + d.Quote(schema.ColID) + " <> " + d.Placeholder(2)
		args = append(args, excludeID)
	}
	var one int
	err := c.q.QueryRowContext(ctx, query+" LIMIT 1", args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("storage exists %s.%s: %w", table, column, err)
	}
	return true, nil
}

func (c *Conn) checkUnique(ctx context.Context, table string, u *Unique, excludeID int64) error {
	if u == nil || u.Value == nil {
		return nil
	}
	taken, err := c.Exists(ctx, table, u.Column, u.Value, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return errs.Invalid(u.Column, "an item with the title %v already exists", u.Value)
	}
	return nil
}

// Insert stores a row and returns its identity. When unique is set the
// check runs on the same connection immediately before the write.
func (c *Conn) Insert(ctx context.Context, table string, values Row, unique *Unique) (int64, error) {
	if len(values) == 0 {
		return 0, errs.Invalid("", "no values to insert")
	}
	if err := c.checkUnique(ctx, table, unique, 0); err != nil {
		return 0, err
	}

	d := c.dialect
	cols := sortedKeys(values)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = d.Quote(col)
		marks[i] = d.Placeholder(i + 1)
		args[i] = bindValue(values[col])
	}
	query := "INSERT INTO " + d.Quote(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	if d.Returning() {
		var id int64
		if err := c.q.QueryRowContext(ctx, query+" RETURNING "+d.Quote(schema.ColID), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("storage insert %s: %w", table, err)
		}
		return id, nil
	}
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("storage insert %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage insert %s: last id: %w", table, err)
	}
	return id, nil
}

// Update overwrites the given columns of one row.
func (c *Conn) Update(ctx context.Context, table string, id int64, values Row, unique *Unique) error {
	if len(values) == 0 {
		return errs.Invalid("", "no values to update")
	}
	if err := c.checkUnique(ctx, table, unique, id); err != nil {
		return err
	}

	d := c.dialect
	cols := sortedKeys(values)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = d.Quote(col) + " = " + d.Placeholder(i+1)
		args = append(args, bindValue(values[col]))
	}
	args = append(args, id)
	query := "UPDATE " + d.Quote(table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + d.Quote(schema.ColID) + " = " + d.Placeholder(len(cols)+1)

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storage update %s: %w", table, err)
	}
	return requireAffected(res, id)
}

// Delete removes one row.
func (c *Conn) Delete(ctx context.Context, table string, id int64) error {
	d := c.dialect
	query := "DELETE FROM " + d.Quote(table) + " WHERE " + d.Quote(schema.ColID) + " = " + d.Placeholder(1)
	res, err := c.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("storage delete %s: %w", table, err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report it; the statement itself succeeded.
		return nil
	}
	if n == 0 {
		return errs.NotFound("row", strconv.FormatInt(id, 10))
	}
	return nil
}

func sortedKeys(m Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bindValue maps payload values onto types every driver accepts.
func bindValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	}
	return v
}

// scanRows reads a result set into maps, normalizing driver-specific types:
// []byte becomes string and time.Time becomes UTC text in TimeLayout.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("storage columns: %w", err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("storage scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, name := range cols {
			row[name] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage rows: %w", err)
	}
	return out, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(TimeLayout)
	}
	return v
}

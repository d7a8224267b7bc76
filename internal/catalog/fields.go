package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// mutate loads a collection, lets fn edit a copy of its schema and writes the
// document back, all inside one transaction.
func (c *Catalog) mutate(ctx context.Context, id string, fn func(conn *storage.Conn, coll *schema.Collection) error) error {
	return c.store.Tx(ctx, func(conn *storage.Conn) error {
		coll, err := get(ctx, conn, id)
		if err != nil {
			return err
		}
		coll.Schema = coll.Schema.Clone()
		if err := fn(conn, &coll); err != nil {
			return err
		}
		encoded, err := encodeDocument(coll.Schema)
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, "UPDATE collections SET schema_json = ? WHERE id = ?", encoded, id); err != nil {
			return fmt.Errorf("catalog write schema %s: %w", id, err)
		}
		return nil
	})
}

// AddField appends a field. Physical fields get a new column in the same
// transaction.
func (c *Catalog) AddField(ctx context.Context, id string, in FieldInput) (schema.Field, error) {
	f, err := buildField(in)
	if err == nil {
		err = c.mutate(ctx, id, func(conn *storage.Conn, coll *schema.Collection) error {
			if err := checkKey(coll.Schema, f.Key); err != nil {
				return err
			}
			if f.Physical() {
				if err := c.addColumn(ctx, conn, coll.TableName, f); err != nil {
					return err
				}
			}
			coll.Schema.Fields = append(coll.Schema.Fields, f)
			return nil
		})
	}
	return f, c.done(audit.OpAddField, id, f.Key, err)
}

// addColumn adds the column backing f. A column left behind by an earlier
// degraded drop is reused.
func (c *Catalog) addColumn(ctx context.Context, conn *storage.Conn, table string, f schema.Field) error {
	have, err := conn.Columns(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range have {
		if col.Name == f.Key {
			c.log.Warnw("reusing orphaned physical column", "table", table, "column", f.Key)
			return nil
		}
	}
	return conn.AddColumn(ctx, table, storage.FieldColumn(f))
}

// UpdateField renames a field. For Formula fields a non-nil expression
// replaces the current one. The storage key never changes.
func (c *Catalog) UpdateField(ctx context.Context, id, key, name string, expression *string) error {
	name = strings.TrimSpace(name)
	var err error
	if name == "" {
		err = errs.Invalid("name", "field name is required")
	} else {
		err = c.mutate(ctx, id, func(_ *storage.Conn, coll *schema.Collection) error {
			_, i, ok := coll.Schema.FieldByKey(key)
			if !ok {
				return errs.NotFound("field", key)
			}
			f := &coll.Schema.Fields[i]
			f.Name = name
			if f.Type == schema.Formula && expression != nil {
				f.Expression = *expression
			}
			return nil
		})
	}
	return c.done(audit.OpUpdateField, id, key, err)
}

// DeleteField removes a non-formula field. Its column is dropped according
// to the store's drop policy: under DropStrict a failed drop aborts the
// whole change, otherwise the schema change commits first and the drop is
// attempted afterwards.
func (c *Catalog) DeleteField(ctx context.Context, id, key string) error {
	strict := c.store.Policy() == storage.DropStrict
	var (
		dropped schema.Field
		table   string
	)
	err := c.mutate(ctx, id, func(conn *storage.Conn, coll *schema.Collection) error {
		f, i, ok := coll.Schema.FieldByKey(key)
		if !ok || f.Type == schema.Formula {
			return errs.NotFound("field", key)
		}
		coll.Schema.Fields = append(coll.Schema.Fields[:i], coll.Schema.Fields[i+1:]...)
		dropped, table = f, coll.TableName
		if strict && f.Physical() {
			return conn.DropColumn(ctx, table, key)
		}
		return nil
	})
	if err == nil && !strict && dropped.Physical() {
		err = c.store.Do(ctx, func(conn *storage.Conn) error {
			return conn.DropColumn(ctx, table, key)
		})
	}
	return c.done(audit.OpDeleteField, id, key, err)
}

func isFormula(f schema.Field, name string) bool {
	return f.Type == schema.Formula && (f.Name == name || f.Key == name)
}

func formulaOps(summary bool) (add, update, del string) {
	if summary {
		return audit.OpAddSummary, audit.OpUpdateSummary, audit.OpDeleteSummary
	}
	return audit.OpAddFormula, audit.OpUpdateFormula, audit.OpDeleteFormula
}

// AddFormula appends a row-level Formula field, or a summary formula when
// summary is set.
func (c *Catalog) AddFormula(ctx context.Context, id, name, expression string, summary bool) error {
	op, _, _ := formulaOps(summary)
	name = strings.TrimSpace(name)
	if name == "" {
		return c.done(op, id, name, errs.Invalid("name", "formula name is required"))
	}
	err := c.mutate(ctx, id, func(_ *storage.Conn, coll *schema.Collection) error {
		if summary {
			if err := checkSummaryName(coll.Schema, name, -1); err != nil {
				return err
			}
			coll.Schema.SummaryFormulas = append(coll.Schema.SummaryFormulas, schema.SummaryFormula{Name: name, Expression: expression})
			return nil
		}
		f := schema.Field{Name: name, Key: schema.SafeName(name), Type: schema.Formula, Expression: expression}
		if err := checkKey(coll.Schema, f.Key); err != nil {
			return err
		}
		coll.Schema.Fields = append(coll.Schema.Fields, f)
		return nil
	})
	return c.done(op, id, name, err)
}

// UpdateFormula renames the formula called oldName and replaces its
// expression.
func (c *Catalog) UpdateFormula(ctx context.Context, id, oldName, name, expression string, summary bool) error {
	_, op, _ := formulaOps(summary)
	name = strings.TrimSpace(name)
	if name == "" {
		return c.done(op, id, oldName, errs.Invalid("name", "formula name is required"))
	}
	err := c.mutate(ctx, id, func(_ *storage.Conn, coll *schema.Collection) error {
		if summary {
			for i := range coll.Schema.SummaryFormulas {
				if coll.Schema.SummaryFormulas[i].Name == oldName {
					if err := checkSummaryName(coll.Schema, name, i); err != nil {
						return err
					}
					coll.Schema.SummaryFormulas[i] = schema.SummaryFormula{Name: name, Expression: expression}
					return nil
				}
			}
			return errs.NotFound("formula", oldName)
		}
		for i := range coll.Schema.Fields {
			if isFormula(coll.Schema.Fields[i], oldName) {
				coll.Schema.Fields[i].Name = name
				coll.Schema.Fields[i].Expression = expression
				return nil
			}
		}
		return errs.NotFound("formula", oldName)
	})
	return c.done(op, id, oldName, err)
}

// DeleteFormula removes the formula called name.
func (c *Catalog) DeleteFormula(ctx context.Context, id, name string, summary bool) error {
	_, _, op := formulaOps(summary)
	err := c.mutate(ctx, id, func(_ *storage.Conn, coll *schema.Collection) error {
		if summary {
			for i, s := range coll.Schema.SummaryFormulas {
				if s.Name == name {
					coll.Schema.SummaryFormulas = append(coll.Schema.SummaryFormulas[:i], coll.Schema.SummaryFormulas[i+1:]...)
					return nil
				}
			}
			return errs.NotFound("formula", name)
		}
		for i, f := range coll.Schema.Fields {
			if isFormula(f, name) {
				coll.Schema.Fields = append(coll.Schema.Fields[:i], coll.Schema.Fields[i+1:]...)
				return nil
			}
		}
		return errs.NotFound("formula", name)
	})
	return c.done(op, id, name, err)
}

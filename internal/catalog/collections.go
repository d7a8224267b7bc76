package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// FieldInput is a field definition as supplied by a caller. The storage key
// is always derived from Name.
type FieldInput struct {
	Name               string           `json:"name"`
	Type               schema.FieldType `json:"type"`
	TargetCollectionID string           `json:"target_collection_id,omitempty"`
	Expression         string           `json:"expression,omitempty"`
}

// NewCollection is the input of Create.
type NewCollection struct {
	Name               string                  `json:"name"`
	Fields             []FieldInput            `json:"fields"`
	Summaries          []schema.SummaryFormula `json:"summary_formulas,omitempty"`
	ParentCollectionID string                  `json:"parent_collection_id,omitempty"`
	ParentRowID        int64                   `json:"parent_item_id,omitempty"`
	ParentField        string                  `json:"parent_field,omitempty"`
}

func buildField(in FieldInput) (schema.Field, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return schema.Field{}, errs.Invalid("name", "field name is required")
	}
	ft, ok := schema.ParseFieldType(string(in.Type))
	if !ok {
		return schema.Field{}, errs.Invalid("type", "unknown field type %q for %q", in.Type, name)
	}
	f := schema.Field{Name: name, Key: schema.SafeName(name), Type: ft}
	switch ft {
	case schema.Relation:
		if in.TargetCollectionID == "" {
			return schema.Field{}, errs.Invalid("target_collection_id", "relation field %q needs a target collection", name)
		}
		f.TargetCollectionID = in.TargetCollectionID
	case schema.Formula:
		f.Expression = in.Expression
	}
	return f, nil
}

// checkKey rejects a key already used in doc or reserved for a built-in
// column.
func checkKey(doc schema.Document, key string) error {
	if schema.Reserved(key) {
		return &errs.ConflictError{Key: key, Reason: "reserved for a built-in column"}
	}
	if existing, _, ok := doc.FieldByKey(key); ok {
		return &errs.ConflictError{Key: key, Reason: fmt.Sprintf("already used by field %q", existing.Name)}
	}
	return nil
}

// checkSummaryName rejects a summary formula name already used in doc,
// ignoring the entry at index skip.
func checkSummaryName(doc schema.Document, name string, skip int) error {
	for i, s := range doc.SummaryFormulas {
		if i != skip && s.Name == name {
			return errs.Invalid("name", "a summary formula named %q already exists", name)
		}
	}
	return nil
}

// Create validates in, creates the physical table and registers the
// collection. It returns the new collection id.
func (c *Catalog) Create(ctx context.Context, in NewCollection) (string, error) {
	id, err := c.create(ctx, in)
	return id, c.done(audit.OpCreateCollection, id, in.Name, err)
}

func (c *Catalog) create(ctx context.Context, in NewCollection) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", errs.Invalid("name", "collection name is required")
	}
	if len(in.Fields) == 0 {
		return "", errs.Invalid("fields", "at least one field is required")
	}
	if (in.ParentCollectionID == "") != (in.ParentRowID == 0) {
		return "", errs.Invalid("parent", "parent collection and parent row must be set together")
	}

	var doc schema.Document
	for _, fi := range in.Fields {
		f, err := buildField(fi)
		if err != nil {
			return "", err
		}
		if err := checkKey(doc, f.Key); err != nil {
			return "", err
		}
		doc.Fields = append(doc.Fields, f)
	}
	for _, s := range in.Summaries {
		sname := strings.TrimSpace(s.Name)
		if sname == "" {
			return "", errs.Invalid("summary_formulas", "summary formula name is required")
		}
		if err := checkSummaryName(doc, sname, -1); err != nil {
			return "", err
		}
		doc.SummaryFormulas = append(doc.SummaryFormulas, schema.SummaryFormula{Name: sname, Expression: s.Expression})
	}
	encoded, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	table := schema.TableName(id)
	err = c.store.Tx(ctx, func(conn *storage.Conn) error {
		if in.ParentCollectionID != "" {
			parent, err := get(ctx, conn, in.ParentCollectionID)
			if err != nil {
				return err
			}
			if in.ParentField != "" {
				f, _, ok := parent.Schema.FieldByKey(in.ParentField)
				if !ok || f.Type != schema.NestedDatabase {
					return errs.Invalid("parent_field", "%q is not a nested database field of %q", in.ParentField, parent.Name)
				}
			}
		}
		if err := conn.CreateTable(ctx, storage.TableFor(table, doc.Fields)); err != nil {
			return err
		}
		_, err := conn.Exec(ctx,
			"INSERT INTO collections (id, name, table_name, schema_json, created_at, parent_collection_id, parent_item_id, parent_field) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			id, name, table, encoded, c.now().UTC().Format(createdLayout),
			nullString(in.ParentCollectionID), nullInt(in.ParentRowID), nullString(in.ParentField),
		)
		if err != nil {
			return fmt.Errorf("catalog register %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// Rename changes a collection's display name. The physical table keeps its
// name.
func (c *Catalog) Rename(ctx context.Context, id, name string) error {
	err := c.rename(ctx, id, name)
	return c.done(audit.OpRenameCollection, id, name, err)
}

func (c *Catalog) rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.Invalid("name", "collection name is required")
	}
	return c.store.Do(ctx, func(conn *storage.Conn) error {
		res, err := conn.Exec(ctx, "UPDATE collections SET name = ? WHERE id = ?", name, id)
		if err != nil {
			return fmt.Errorf("catalog rename %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// MySQL reports zero when the name is unchanged.
			if _, err := get(ctx, conn, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a collection together with every collection nested under
// it, children first. A failing child is logged and skipped.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.deleteTree(ctx, id, map[string]bool{})
}

func (c *Catalog) deleteTree(ctx context.Context, id string, seen map[string]bool) error {
	if seen[id] {
		return nil
	}
	seen[id] = true

	coll, err := c.Get(ctx, id)
	if err != nil {
		return c.done(audit.OpDeleteCollection, id, "", err)
	}
	children, err := c.ListNested(ctx, id)
	if err != nil {
		return c.done(audit.OpDeleteCollection, id, coll.Name, err)
	}
	for _, child := range children {
		if err := c.deleteTree(ctx, child.ID, seen); err != nil && !errs.IsNotFound(err) {
			c.log.Warnw("cascade delete failed", "parent", id, "collection", child.ID, "error", err)
		}
	}

	err = c.store.Tx(ctx, func(conn *storage.Conn) error {
		if err := conn.DropTable(ctx, coll.TableName); err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, "DELETE FROM collections WHERE id = ?", id); err != nil {
			return fmt.Errorf("catalog unregister %s: %w", id, err)
		}
		return nil
	})
	return c.done(audit.OpDeleteCollection, id, coll.Name, err)
}

// Package catalog is the durable registry of collection definitions. Each
// collection is one row of the registry table holding its schema document,
// physical table name and parent linkage.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/logging"
	"github.com/sadopc/tabula/internal/metrics"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// RegistryTable is the name of the registry table.
const RegistryTable = "collections"

// Registry column names.
const (
	colID          = "id"
	colName        = "name"
	colTableName   = "table_name"
	colSchema      = "schema_json"
	colCreatedAt   = "created_at"
	colParentID    = "parent_collection_id"
	colParentRow   = "parent_item_id"
	colParentField = "parent_field"
)

// parentColumns were added to the registry after its first release and are
// back-filled by Migrate.
var parentColumns = []schema.ColumnDef{
	{Name: colParentID, Kind: schema.KindKey},
	{Name: colParentRow, Kind: schema.KindInteger},
	{Name: colParentField, Kind: schema.KindText},
}

func registry() storage.Table {
	cols := []schema.ColumnDef{
		{Name: colID, Kind: schema.KindKey, Primary: true},
		{Name: colName, Kind: schema.KindText},
		{Name: colTableName, Kind: schema.KindKey, Unique: true},
		{Name: colSchema, Kind: schema.KindText},
		{Name: colCreatedAt, Kind: schema.KindText},
	}
	return storage.Table{Name: RegistryTable, Columns: append(cols, parentColumns...)}
}

// Creation timestamps are stored as fixed-width UTC text so they sort
// lexically on every dialect.
const (
	createdLayout = "2006-01-02 15:04:05.000000"
	parseLayout   = "2006-01-02 15:04:05.999999999"
)

// Catalog reads and mutates collection definitions.
type Catalog struct {
	store   *storage.Store
	log     *zap.SugaredLogger
	journal *audit.Journal
	now     func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Catalog) { c.log = logging.OrNop(log) }
}

// WithJournal records every mutation in j.
func WithJournal(j *audit.Journal) Option {
	return func(c *Catalog) { c.journal = j }
}

// New returns a Catalog over store. Call Migrate before first use.
func New(store *storage.Store, opts ...Option) *Catalog {
	c := &Catalog{store: store, log: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying storage.
func (c *Catalog) Store() *storage.Store { return c.store }

// done journals the outcome of a mutation and counts it when it succeeded.
func (c *Catalog) done(op, collectionID, target string, err error) error {
	c.journal.Record(op, collectionID, target, "", err)
	if err == nil {
		metrics.SchemaChanges.WithLabelValues(op).Inc()
	}
	return err
}

const selectCollections = "SELECT id, name, table_name, schema_json, created_at, parent_collection_id, parent_item_id, parent_field FROM collections"

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(s scanner) (schema.Collection, error) {
	var (
		coll                  schema.Collection
		doc, created          string
		parentID, parentField sql.NullString
		parentRow             sql.NullInt64
	)
	if err := s.Scan(&coll.ID, &coll.Name, &coll.TableName, &doc, &created, &parentID, &parentRow, &parentField); err != nil {
		return coll, err
	}
	parsed, err := decodeDocument(doc)
	if err != nil {
		return coll, fmt.Errorf("catalog: collection %s: %w", coll.ID, err)
	}
	coll.Schema = parsed
	coll.CreatedAt = parseCreated(created)
	coll.ParentCollectionID = parentID.String
	coll.ParentRowID = parentRow.Int64
	coll.ParentField = parentField.String
	return coll, nil
}

// parseCreated accepts both the registry's own layout and the RFC 3339 text
// database/sql produces when a legacy TIMESTAMP column is scanned into a
// string.
func parseCreated(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{parseLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func decodeDocument(doc string) (schema.Document, error) {
	var d schema.Document
	if strings.TrimSpace(doc) == "" {
		return schema.Document{Fields: []schema.Field{}, SummaryFormulas: []schema.SummaryFormula{}}, nil
	}
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return d, fmt.Errorf("decode schema: %w", err)
	}
	if d.Fields == nil {
		d.Fields = []schema.Field{}
	}
	if d.SummaryFormulas == nil {
		d.SummaryFormulas = []schema.SummaryFormula{}
	}
	return d, nil
}

func encodeDocument(d schema.Document) (string, error) {
	if d.Fields == nil {
		d.Fields = []schema.Field{}
	}
	if d.SummaryFormulas == nil {
		d.SummaryFormulas = []schema.SummaryFormula{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return string(b), nil
}

func query(ctx context.Context, conn *storage.Conn, where string, args ...any) ([]schema.Collection, error) {
	q := selectCollections
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := conn.Query(ctx, q+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}
	defer rows.Close()

	var out []schema.Collection
	for rows.Next() {
		coll, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog scan: %w", err)
		}
		out = append(out, coll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog rows: %w", err)
	}
	return out, nil
}

func get(ctx context.Context, conn *storage.Conn, id string) (schema.Collection, error) {
	coll, err := scanCollection(conn.QueryRow(ctx, selectCollections+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return coll, errs.NotFound("collection", id)
	}
	if err != nil {
		return coll, fmt.Errorf("catalog get %s: %w", id, err)
	}
	return coll, nil
}

// Get returns one collection.
func (c *Catalog) Get(ctx context.Context, id string) (schema.Collection, error) {
	var coll schema.Collection
	err := c.store.Do(ctx, func(conn *storage.Conn) error {
		var err error
		coll, err = get(ctx, conn, id)
		return err
	})
	return coll, err
}

// List returns every collection, newest first, with nested collections
// annotated with their parent row's title.
func (c *Catalog) List(ctx context.Context) ([]schema.Collection, error) {
	return c.list(ctx, "")
}

// ListChildrenOfRow returns the collections nested under any row with the
// given id, whatever its collection.
func (c *Catalog) ListChildrenOfRow(ctx context.Context, rowID int64) ([]schema.Collection, error) {
	return c.list(ctx, "parent_item_id = ?", rowID)
}

// ListChildren returns the collections nested under one row of one
// collection.
func (c *Catalog) ListChildren(ctx context.Context, collectionID string, rowID int64) ([]schema.Collection, error) {
	return c.list(ctx, "parent_collection_id = ? AND parent_item_id = ?", collectionID, rowID)
}

// ListNested returns every collection whose parent collection is
// collectionID, regardless of row.
func (c *Catalog) ListNested(ctx context.Context, collectionID string) ([]schema.Collection, error) {
	return c.list(ctx, "parent_collection_id = ?", collectionID)
}

func (c *Catalog) list(ctx context.Context, where string, args ...any) ([]schema.Collection, error) {
	var out []schema.Collection
	err := c.store.Do(ctx, func(conn *storage.Conn) error {
		var err error
		out, err = query(ctx, conn, where, args...)
		if err != nil {
			return err
		}
		c.enrich(ctx, conn, out)
		return nil
	})
	return out, err
}

// enrich fills ParentRowTitle on nested collections. Failures leave the
// annotation empty.
func (c *Catalog) enrich(ctx context.Context, conn *storage.Conn, colls []schema.Collection) {
	parents := map[string]schema.Collection{}
	for i := range colls {
		if !colls[i].Nested() {
			continue
		}
		pid := colls[i].ParentCollectionID
		parent, ok := parents[pid]
		if !ok {
			var err error
			parent, err = get(ctx, conn, pid)
			if err != nil {
				c.log.Debugw("parent collection unavailable", "collection", colls[i].ID, "parent", pid, "error", err)
				continue
			}
			parents[pid] = parent
		}
		title, ok := parent.Schema.TitleField()
		if !ok {
			continue
		}
		row, err := conn.SelectByID(ctx, parent.TableName, colls[i].ParentRowID)
		if err != nil {
			c.log.Debugw("parent row unavailable", "collection", colls[i].ID, "row", colls[i].ParentRowID, "error", err)
			continue
		}
		colls[i].ParentRowTitle = row[title.Key]
	}
}

package rows

import (
	"context"

	"github.com/sadopc/tabula/internal/catalog"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// CatalogLoader loads through a catalog and its store. Each call uses its
// own short-lived connection.
type CatalogLoader struct {
	cat *catalog.Catalog
}

// NewLoader returns a Loader backed by cat.
func NewLoader(cat *catalog.Catalog) *CatalogLoader {
	return &CatalogLoader{cat: cat}
}

func (l *CatalogLoader) Collection(ctx context.Context, id string) (schema.Collection, error) {
	return l.cat.Get(ctx, id)
}

func (l *CatalogLoader) Rows(ctx context.Context, coll schema.Collection) ([]storage.Row, error) {
	var out []storage.Row
	err := l.cat.Store().Do(ctx, func(conn *storage.Conn) error {
		var err error
		out, err = conn.SelectAll(ctx, coll.TableName)
		return err
	})
	return out, err
}

func (l *CatalogLoader) Row(ctx context.Context, coll schema.Collection, id int64) (storage.Row, error) {
	var out storage.Row
	err := l.cat.Store().Do(ctx, func(conn *storage.Conn) error {
		var err error
		out, err = conn.SelectByID(ctx, coll.TableName, id)
		return err
	})
	return out, err
}

func (l *CatalogLoader) Children(ctx context.Context, collectionID string, rowID int64) ([]schema.Collection, error) {
	return l.cat.ListChildren(ctx, collectionID, rowID)
}

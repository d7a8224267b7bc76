package catalog

import (
	"context"
	"strings"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/storage"
)

// Migrate brings the registry and every dynamic table up to date: it creates
// the registry if missing, back-fills the parent linkage columns and adds
// missing built-in columns to each collection table. Running it again
// changes nothing.
func (c *Catalog) Migrate(ctx context.Context) error {
	var touched []string
	err := c.store.Do(ctx, func(conn *storage.Conn) error {
		reg := registry()
		if err := conn.CreateTable(ctx, reg); err != nil {
			return err
		}
		added, err := conn.EnsureColumns(ctx, reg.Name, parentColumns)
		if err != nil {
			return err
		}
		if len(added) > 0 {
			c.log.Infow("registry columns added", "columns", added)
			touched = append(touched, RegistryTable)
		}

		colls, err := query(ctx, conn, "")
		if err != nil {
			return err
		}
		for _, coll := range colls {
			added, err := conn.EnsureBuiltins(ctx, coll.TableName)
			switch {
			case errs.IsNotFound(err):
				c.log.Warnw("collection table missing", "collection", coll.ID, "table", coll.TableName)
				continue
			case err != nil:
				c.log.Warnw("built-in columns not ensured", "collection", coll.ID, "table", coll.TableName, "error", err)
				continue
			}
			if len(added) > 0 {
				c.log.Infow("built-in columns added", "collection", coll.ID, "columns", added)
				touched = append(touched, coll.TableName)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		c.journal.Record(audit.OpMigrate, "", "", strings.Join(touched, ","), nil)
	}
	return nil
}

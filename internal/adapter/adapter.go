// Package adapter defines the storage dialects tabula can run on. Each
// dialect lives in its own package and registers itself from init.
package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sadopc/tabula/internal/schema"
)

var ErrUnknownDialect = errors.New("unknown storage adapter")

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx the dialects and
// the storage layer run statements through.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect opens connections to one storage engine and renders the SQL the
// storage layer issues against it. Identifiers are always quoted by the
// dialect; values always travel as placeholders.
type Dialect interface {
	Name() string
	Open(ctx context.Context, dsn string) (*sql.DB, error)

	Quote(ident string) string
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string

	CreateTable(table string, cols []schema.ColumnDef) []string
	AddColumn(table string, col schema.ColumnDef) string
	DropColumn(table, column string) string
	DropTable(table string) []string

	// Returning reports whether inserts should use RETURNING id instead of
	// sql.Result.LastInsertId.
	Returning() bool
	// CanDropColumn reports whether the connected engine supports
	// ALTER TABLE ... DROP COLUMN.
	CanDropColumn(ctx context.Context, q Querier) (bool, error)
	// Columns introspects a table. A missing table yields no columns.
	Columns(ctx context.Context, q Querier, table string) ([]schema.Column, error)
}

// Registry holds registered dialects by name.
var Registry = map[string]Dialect{}

// Register adds a dialect to the global registry.
func Register(d Dialect) {
	Registry[d.Name()] = d
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, error) {
	if d, ok := Registry[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownDialect, name, strings.Join(Names(), ", "))
}

// Names lists the registered dialect names, sorted.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect guesses a dialect name from a DSN's scheme or shape. It returns ""
// when nothing matches.
func Detect(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(dsn, "mysql://"), strings.Contains(dsn, "@tcp("):
		return "mysql"
	case strings.HasPrefix(dsn, "duckdb://"), strings.HasSuffix(dsn, ".duckdb"):
		return "duckdb"
	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"),
		strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"), strings.HasSuffix(dsn, ".sqlite3"):
		return "sqlite"
	}
	return ""
}

package adapter

import (
	"strconv"
	"strings"

	"github.com/sadopc/tabula/internal/schema"
)

// Types maps column kinds to a dialect's column type clause. The identity
// and timestamp clauses carry their own PRIMARY KEY / DEFAULT.
type Types map[schema.ColumnKind]string

// SQL renders the DDL shared by every dialect. Dialects embed it and
// override what differs.
type SQL struct {
	QuoteChar byte
	Numbered  bool // $1, $2, ... instead of ?
	Types     Types
	// BoundedText replaces the text type for text columns that carry a
	// default or a constraint, for engines that cannot index or default TEXT.
	BoundedText string
}

func (s SQL) Quote(ident string) string {
	q := string(s.QuoteChar)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

func (s SQL) Placeholder(n int) string {
	if s.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ColumnClause renders one column definition.
func (s SQL) ColumnClause(c schema.ColumnDef) string {
	typ := s.Types[c.Kind]
	if c.Kind == schema.KindText && s.BoundedText != "" && (c.Default != "" || c.Unique || c.Primary) {
		typ = s.BoundedText
	}
	var b strings.Builder
	b.WriteString(s.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(typ)
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.Primary {
		b.WriteString(" PRIMARY KEY")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func (s SQL) CreateTable(table string, cols []schema.ColumnDef) []string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = s.ColumnClause(c)
	}
	return []string{"CREATE TABLE IF NOT EXISTS " + s.Quote(table) + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"}
}

func (s SQL) AddColumn(table string, col schema.ColumnDef) string {
	return "ALTER TABLE " + s.Quote(table) + " ADD COLUMN " + s.ColumnClause(col)
}

func (s SQL) DropColumn(table, column string) string {
	return "ALTER TABLE " + s.Quote(table) + " DROP COLUMN " + s.Quote(column)
}

func (s SQL) DropTable(table string) []string {
	return []string{"DROP TABLE IF EXISTS " + s.Quote(table)}
}

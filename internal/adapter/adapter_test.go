package adapter

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/sadopc/tabula/internal/schema"
)

// mockDialect is a minimal dialect for testing the registry.
type mockDialect struct {
	SQL
	name string
}

func (m *mockDialect) Name() string    { return m.name }
func (m *mockDialect) Returning() bool { return false }
func (m *mockDialect) Open(context.Context, string) (*sql.DB, error) {
	return nil, errors.New("mock: not implemented")
}
func (m *mockDialect) CanDropColumn(context.Context, Querier) (bool, error) { return false, nil }
func (m *mockDialect) Columns(context.Context, Querier, string) ([]schema.Column, error) {
	return nil, nil
}

func swapRegistry(t *testing.T) {
	t.Helper()
	orig := Registry
	Registry = map[string]Dialect{}
	t.Cleanup(func() { Registry = orig })
}

func TestRegister(t *testing.T) {
	swapRegistry(t)

	Register(&mockDialect{name: "testdb"})

	got, ok := Registry["testdb"]
	if !ok {
		t.Fatal("expected dialect 'testdb' to be registered")
	}
	if got.Name() != "testdb" {
		t.Errorf("Name() = %q, want %q", got.Name(), "testdb")
	}
}

func TestGet(t *testing.T) {
	swapRegistry(t)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		Register(&mockDialect{name: name})
	}

	if _, err := Get("alpha"); err != nil {
		t.Errorf("Get(alpha) error = %v", err)
	}
	_, err := Get("zulu")
	if !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("Get(zulu) error = %v, want ErrUnknownDialect", err)
	}
	if !strings.Contains(err.Error(), "alpha, bravo, charlie") {
		t.Errorf("Get(zulu) error = %q, want sorted list of dialects", err)
	}
	if got := Names(); strings.Join(got, ",") != "alpha,bravo,charlie" {
		t.Errorf("Names() = %v", got)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://localhost/db", "postgres"},
		{"postgresql://u@h/db", "postgres"},
		{"mysql://root@localhost/db", "mysql"},
		{"root:pw@tcp(localhost:3306)/db", "mysql"},
		{"duckdb:///tmp/x.duckdb", "duckdb"},
		{"data.duckdb", "duckdb"},
		{"sqlite://tracker.db", "sqlite"},
		{"file:x.db", "sqlite"},
		{"/home/me/tracker.db", "sqlite"},
		{"notes.sqlite3", "sqlite"},
		{"something", ""},
	}
	for _, tt := range tests {
		if got := Detect(tt.dsn); got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestSQL_ColumnClause(t *testing.T) {
	s := SQL{
		QuoteChar:   '`',
		Types:       Types{schema.KindText: "TEXT", schema.KindKey: "VARCHAR(255)", schema.KindFlag: "INTEGER"},
		BoundedText: "VARCHAR(255)",
	}
	tests := []struct {
		col  schema.ColumnDef
		want string
	}{
		{schema.ColumnDef{Name: "title", Kind: schema.KindText}, "`title` TEXT"},
		{schema.ColumnDef{Name: "rule", Kind: schema.KindText, Default: "'NONE'"}, "`rule` VARCHAR(255) DEFAULT 'NONE'"},
		{schema.ColumnDef{Name: "id", Kind: schema.KindKey, Primary: true}, "`id` VARCHAR(255) PRIMARY KEY"},
		{schema.ColumnDef{Name: "t", Kind: schema.KindKey, Unique: true}, "`t` VARCHAR(255) UNIQUE"},
		{schema.ColumnDef{Name: "on", Kind: schema.KindFlag, Default: "0"}, "`on` INTEGER DEFAULT 0"},
	}
	for _, tt := range tests {
		if got := s.ColumnClause(tt.col); got != tt.want {
			t.Errorf("ColumnClause(%+v) = %q, want %q", tt.col, got, tt.want)
		}
	}
}

func TestSQL_Statements(t *testing.T) {
	s := SQL{QuoteChar: '"', Numbered: true, Types: Types{schema.KindReal: "REAL"}}

	if got := s.Placeholder(2); got != "$2" {
		t.Errorf("Placeholder(2) = %q", got)
	}
	if got := s.AddColumn("t", schema.ColumnDef{Name: "p", Kind: schema.KindReal}); got != `ALTER TABLE "t" ADD COLUMN "p" REAL` {
		t.Errorf("AddColumn() = %q", got)
	}
	if got := s.DropColumn("t", "p"); got != `ALTER TABLE "t" DROP COLUMN "p"` {
		t.Errorf("DropColumn() = %q", got)
	}
	if got := s.DropTable("t"); len(got) != 1 || got[0] != `DROP TABLE IF EXISTS "t"` {
		t.Errorf("DropTable() = %v", got)
	}
	if got := s.Quote(`a"b`); got != `"a""b"` {
		t.Errorf("Quote() = %q", got)
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/schema"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

func dialect(t *testing.T) adapter.Dialect {
	t.Helper()
	d, err := adapter.Get("sqlite")
	if err != nil {
		t.Fatalf("Get(sqlite) error: %v", err)
	}
	return d
}

func openTemp(t *testing.T) (adapter.Dialect, *sql.DB) {
	t.Helper()
	d := dialect(t)
	db, err := d.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return d, db
}

func TestSQLiteDialect_Registration(t *testing.T) {
	d := dialect(t)
	if d.Name() != "sqlite" {
		t.Errorf("registered dialect Name() = %q, want %q", d.Name(), "sqlite")
	}
	if d.Returning() {
		t.Error("Returning() = true, want false")
	}
	if got := d.Placeholder(3); got != "?" {
		t.Errorf("Placeholder(3) = %q, want ?", got)
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "sqlite:// prefix stripped",
			dsn:  "sqlite:///path/to/file.db",
			want: "/path/to/file.db?" + pragmas,
		},
		{
			name: "file: prefix stripped",
			dsn:  "file:test.db",
			want: "test.db?" + pragmas,
		},
		{
			name: "memory",
			dsn:  ":memory:",
			want: ":memory:?" + pragmas,
		},
		{
			name: "existing query",
			dsn:  "data.db?cache=shared",
			want: "data.db?cache=shared&" + pragmas,
		},
		{
			name: "caller pragmas kept",
			dsn:  "data.db?_pragma=journal_mode(WAL)",
			want: "data.db?_pragma=journal_mode(WAL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeDSN(tt.dsn); got != tt.want {
				t.Errorf("normalizeDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"3.35.0", true},
		{"3.45.1", true},
		{"4.0.0", true},
		{"3.34.1", false},
		{"2.99.0", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := versionAtLeast(tt.version, 3, 35); got != tt.want {
			t.Errorf("versionAtLeast(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestCreateTable_SQL(t *testing.T) {
	d := dialect(t)
	stmts := d.CreateTable("dyn_1", []schema.ColumnDef{
		schema.IdentityColumn,
		{Name: "title", Kind: schema.KindText},
		{Name: "rule", Kind: schema.KindText, Default: "'NONE'"},
	})
	if len(stmts) != 1 {
		t.Fatalf("CreateTable() returned %d statements, want 1", len(stmts))
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "dyn_1"`,
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"title" TEXT`,
		`"rule" TEXT DEFAULT 'NONE'`,
	} {
		if !strings.Contains(stmts[0], want) {
			t.Errorf("CreateTable() = %q, missing %q", stmts[0], want)
		}
	}
	if got := d.Quote(`we"ird`); got != `"we""ird"` {
		t.Errorf("Quote() = %q", got)
	}
}

func TestCreateAddDropColumns(t *testing.T) {
	d, db := openTemp(t)
	ctx := context.Background()

	cols := append([]schema.ColumnDef{schema.IdentityColumn}, schema.BookkeepingColumns...)
	for _, stmt := range d.CreateTable("items", cols) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if _, err := db.ExecContext(ctx, d.AddColumn("items", schema.ColumnDef{Name: "price", Kind: schema.KindReal})); err != nil {
		t.Fatalf("AddColumn error: %v", err)
	}
	// A timestamp added later must not carry a non-constant default.
	if _, err := db.ExecContext(ctx, d.AddColumn("items", schema.ColumnDef{Name: "seen_at", Kind: schema.KindTimestamp})); err != nil {
		t.Fatalf("AddColumn(timestamp) error: %v", err)
	}

	got, err := d.Columns(ctx, db, "items")
	if err != nil {
		t.Fatalf("Columns() error: %v", err)
	}
	if len(got) != 1+len(schema.BookkeepingColumns)+2 {
		t.Fatalf("Columns() returned %d columns", len(got))
	}
	if !got[0].IsPK || got[0].Name != "id" {
		t.Errorf("Column[0] = %+v, want id primary key", got[0])
	}
	if got[2].Name != schema.ColRecurrenceRule || got[2].Default != "'NONE'" {
		t.Errorf("Column[2] = %+v, want recurrence_rule default 'NONE'", got[2])
	}

	ok, err := d.CanDropColumn(ctx, db)
	if err != nil {
		t.Fatalf("CanDropColumn() error: %v", err)
	}
	if !ok {
		t.Skip("linked sqlite cannot drop columns")
	}
	if _, err := db.ExecContext(ctx, d.DropColumn("items", "price")); err != nil {
		t.Fatalf("DropColumn error: %v", err)
	}
	got, _ = d.Columns(ctx, db, "items")
	for _, c := range got {
		if c.Name == "price" {
			t.Error("price column still present after drop")
		}
	}
}

func TestColumns_MissingTable(t *testing.T) {
	d, db := openTemp(t)
	cols, err := d.Columns(context.Background(), db, "nope")
	if err != nil {
		t.Fatalf("Columns() error: %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("Columns() = %v, want none", cols)
	}
}

func TestDropTable(t *testing.T) {
	d, db := openTemp(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE gone (id INTEGER)`); err != nil {
		t.Fatal(err)
	}
	for _, stmt := range d.DropTable("gone") {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	// IF EXISTS makes a second drop harmless.
	for _, stmt := range d.DropTable("gone") {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("second drop %q: %v", stmt, err)
		}
	}
}

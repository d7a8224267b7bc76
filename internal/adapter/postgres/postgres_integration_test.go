package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/schema"
)

// Default DSN for a local PostgreSQL.
// Override with TABULA_PG_DSN env var.
const defaultTestDSN = "postgres://localhost:5432/tabula_test?sslmode=disable"

func testDSN() string {
	if dsn := os.Getenv("TABULA_PG_DSN"); dsn != "" {
		return dsn
	}
	return defaultTestDSN
}

func connectForTest(t *testing.T) (adapter.Dialect, *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := adapter.Registry["postgres"]
	db, err := d.Open(ctx, testDSN())
	if err != nil {
		t.Skipf("skipping: cannot connect to PostgreSQL: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return d, db
}

func TestIntegration_TableLifecycle(t *testing.T) {
	d, db := connectForTest(t)
	ctx := context.Background()

	const table = "tabula_it_items"
	for _, stmt := range d.DropTable(table) {
		db.ExecContext(ctx, stmt)
	}
	t.Cleanup(func() {
		for _, stmt := range d.DropTable(table) {
			db.ExecContext(context.Background(), stmt)
		}
	})

	cols := append([]schema.ColumnDef{schema.IdentityColumn}, schema.BookkeepingColumns...)
	cols = append(cols, schema.ColumnDef{Name: "title", Kind: schema.KindText})
	for _, stmt := range d.CreateTable(table, cols) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if _, err := db.ExecContext(ctx, d.AddColumn(table, schema.ColumnDef{Name: "pages", Kind: schema.KindReal})); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}

	var id int64
	err := db.QueryRowContext(ctx,
		`INSERT INTO `+d.Quote(table)+` ("title", "pages") VALUES (`+d.Placeholder(1)+`, `+d.Placeholder(2)+`) RETURNING "id"`,
		"Dune", 412.0).Scan(&id)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id <= 0 {
		t.Errorf("RETURNING id = %d", id)
	}

	if _, err := db.ExecContext(ctx, d.DropColumn(table, "pages")); err != nil {
		t.Fatalf("DropColumn: %v", err)
	}
	got, err := d.Columns(ctx, db, table)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(got) != len(cols) {
		t.Errorf("Columns() returned %d columns, want %d", len(got), len(cols))
	}
	if !got[0].IsPK {
		t.Errorf("Column[0] = %+v, want primary key", got[0])
	}
}

//go:build !duckdb

package duckdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/schema"
)

var errDisabled = errors.New("DuckDB support not compiled in. Rebuild with -tags duckdb")

func (d *duckdbDialect) Open(context.Context, string) (*sql.DB, error) {
	return nil, errDisabled
}

func (d *duckdbDialect) CanDropColumn(context.Context, adapter.Querier) (bool, error) {
	return false, errDisabled
}

func (d *duckdbDialect) Columns(context.Context, adapter.Querier, string) ([]schema.Column, error) {
	return nil, errDisabled
}

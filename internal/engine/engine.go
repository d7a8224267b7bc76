// Package engine is the application service of tabula. It combines the
// catalog, the row store and the read-time projection into the operations
// the CLI exposes: collection, field and formula management, row CRUD with
// computed values, nested collection lookup and the calendar projection.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/catalog"
	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/logging"
	"github.com/sadopc/tabula/internal/rows"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// Service implements every external operation. It holds no row data
// between calls.
type Service struct {
	cat      *catalog.Catalog
	store    *storage.Store
	compiler *formula.Compiler
	log      *zap.SugaredLogger
	journal  *audit.Journal
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = logging.OrNop(log) }
}

// WithJournal records row mutations in j.
func WithJournal(j *audit.Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithCompiler sets the expression compiler and its parse cache.
func WithCompiler(c *formula.Compiler) Option {
	return func(s *Service) { s.compiler = c }
}

// New returns a Service over cat.
func New(cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{cat: cat, store: cat.Store(), log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the underlying catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.cat }

func (s *Service) session(ctx context.Context) *rows.Session {
	opts := []rows.Option{rows.WithLogger(s.log)}
	if s.compiler != nil {
		opts = append(opts, rows.WithCompiler(s.compiler))
	}
	return rows.NewSession(ctx, rows.NewLoader(s.cat), opts...)
}

// CheckExpression parses expr without evaluating it. A syntax error is
// returned as is; formulas are still stored when it fails.
func (s *Service) CheckExpression(expr string) error {
	if s.compiler != nil {
		_, err := s.compiler.Compile(expr)
		return err
	}
	_, err := formula.Compile(expr)
	return err
}

// CreateCollection registers a new collection and creates its table.
func (s *Service) CreateCollection(ctx context.Context, in catalog.NewCollection) (string, error) {
	return s.cat.Create(ctx, in)
}

// Collections lists every collection, newest first, with parent titles
// filled in for nested ones.
func (s *Service) Collections(ctx context.Context) ([]schema.Collection, error) {
	return s.cat.List(ctx)
}

// Collection returns one collection.
func (s *Service) Collection(ctx context.Context, id string) (schema.Collection, error) {
	return s.cat.Get(ctx, id)
}

// RenameCollection changes a collection's display name.
func (s *Service) RenameCollection(ctx context.Context, id, name string) error {
	return s.cat.Rename(ctx, id, name)
}

// DeleteCollection removes a collection and everything nested under it.
func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	return s.cat.Delete(ctx, id)
}

// NestedCollections lists the collections nested under any row with the
// given id.
func (s *Service) NestedCollections(ctx context.Context, rowID int64) ([]schema.Collection, error) {
	return s.cat.ListChildrenOfRow(ctx, rowID)
}

// NestedUnder lists the collections nested under one row of one
// collection.
func (s *Service) NestedUnder(ctx context.Context, collectionID string, rowID int64) ([]schema.Collection, error) {
	return s.cat.ListChildren(ctx, collectionID, rowID)
}

// AddField appends a field and, for stored types, its column.
func (s *Service) AddField(ctx context.Context, collectionID string, in catalog.FieldInput) (schema.Field, error) {
	return s.cat.AddField(ctx, collectionID, in)
}

// UpdateField renames a field or, for formula fields, replaces the
// expression. A nil expression leaves it unchanged.
func (s *Service) UpdateField(ctx context.Context, collectionID, key, name string, expression *string) error {
	return s.cat.UpdateField(ctx, collectionID, key, name, expression)
}

// DeleteField removes a stored field and drops its column under the
// store's drop policy.
func (s *Service) DeleteField(ctx context.Context, collectionID, key string) error {
	return s.cat.DeleteField(ctx, collectionID, key)
}

// AddFormula adds a formula field, or a summary formula when summary is set.
func (s *Service) AddFormula(ctx context.Context, collectionID, name, expression string, summary bool) error {
	return s.cat.AddFormula(ctx, collectionID, name, expression, summary)
}

// UpdateFormula renames and re-expresses a formula.
func (s *Service) UpdateFormula(ctx context.Context, collectionID, oldName, name, expression string, summary bool) error {
	return s.cat.UpdateFormula(ctx, collectionID, oldName, name, expression, summary)
}

// DeleteFormula removes a formula.
func (s *Service) DeleteFormula(ctx context.Context, collectionID, name string, summary bool) error {
	return s.cat.DeleteFormula(ctx, collectionID, name, summary)
}

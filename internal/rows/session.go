// Package rows builds the read-time view over stored rows: projections that
// compute formula fields lazily, row sets that evaluate summaries, and
// handles that follow relations and nested collections.
//
// Everything is scoped to one Session, which lives for a single read. The
// session owns the in-progress marks used for cycle detection, so a cycle
// that crosses rows or collections is caught the same way as a field that
// reads itself.
package rows

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/logging"
	"github.com/sadopc/tabula/internal/metrics"
	"github.com/sadopc/tabula/internal/resolve"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// Loader fetches collections and rows on demand.
type Loader interface {
	Collection(ctx context.Context, id string) (schema.Collection, error)
	Rows(ctx context.Context, coll schema.Collection) ([]storage.Row, error)
	Row(ctx context.Context, coll schema.Collection, id int64) (storage.Row, error)
	Children(ctx context.Context, collectionID string, rowID int64) ([]schema.Collection, error)
}

// Session scopes one read.
type Session struct {
	ctx      context.Context
	loader   Loader
	compiler *formula.Compiler
	log      *zap.SugaredLogger

	inflight map[string]bool
	metas    map[string]*meta
	sets     map[string]*Set
}

// Option configures a Session.
type Option func(*Session)

// WithCompiler sets the expression compiler. The package-level compiler is
// used otherwise.
func WithCompiler(c *formula.Compiler) Option {
	return func(s *Session) { s.compiler = c }
}

// WithLogger sets the logger for load failures.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = logging.OrNop(log) }
}

// NewSession starts a read.
func NewSession(ctx context.Context, loader Loader, opts ...Option) *Session {
	s := &Session{
		ctx:      ctx,
		loader:   loader,
		log:      logging.Nop(),
		inflight: map[string]bool{},
		metas:    map[string]*meta{},
		sets:     map[string]*Set{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read loads every row of a collection.
func (s *Session) Read(id string) (*Set, error) {
	coll, err := s.loader.Collection(s.ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(coll)
}

func (s *Session) load(coll schema.Collection) (*Set, error) {
	if set, ok := s.sets[coll.ID]; ok {
		return set, nil
	}
	raw, err := s.loader.Rows(s.ctx, coll)
	if err != nil {
		return nil, fmt.Errorf("rows load %s: %w", coll.ID, err)
	}
	set := s.Wrap(coll, raw)
	s.sets[coll.ID] = set
	return set, nil
}

// Wrap builds a Set over rows already fetched for coll.
func (s *Session) Wrap(coll schema.Collection, raw []storage.Row) *Set {
	m := s.meta(coll)
	set := s.emptySet(m)
	set.items = make([]*Projection, len(raw))
	for i, r := range raw {
		set.items[i] = s.project(m, r, set)
	}
	return set
}

func (s *Session) emptySet(m *meta) *Set {
	return &Set{sess: s, meta: m, summaries: map[string]any{}}
}

// meta is the per-collection lookup state shared by all projections of one
// collection within a session.
type meta struct {
	coll      schema.Collection
	known     bool
	fields    *resolve.Resolver
	byKey     map[string]schema.Field
	summaries *resolve.SummaryIndex
}

func (s *Session) meta(coll schema.Collection) *meta {
	if m, ok := s.metas[coll.ID]; ok && coll.ID != "" {
		return m
	}
	m := &meta{
		coll:      coll,
		known:     coll.ID != "",
		fields:    resolve.New(coll.Schema.Fields),
		byKey:     make(map[string]schema.Field, len(coll.Schema.Fields)),
		summaries: resolve.NewSummaryIndex(coll.Schema.SummaryFormulas),
	}
	for _, f := range coll.Schema.Fields {
		if _, ok := m.byKey[f.Key]; !ok {
			m.byKey[f.Key] = f
		}
	}
	if coll.ID != "" {
		s.metas[coll.ID] = m
	}
	return m
}

func (s *Session) collection(id string) (schema.Collection, bool) {
	if m, ok := s.metas[id]; ok {
		return m.coll, true
	}
	coll, err := s.loader.Collection(s.ctx, id)
	if err != nil {
		s.log.Warnw("collection unavailable", "collection", id, "error", err)
		return schema.Collection{}, false
	}
	s.meta(coll)
	return coll, true
}

// evaluate runs expr under the in-progress mark key. A failure becomes an
// in-band error value, except that a cycle detected while an outer
// evaluation is still running is returned as formula.ErrCircular so the
// outermost formula reports it.
func (s *Session) evaluate(kind, key, expr string, env formula.Env) (any, bool, error) {
	if s.inflight[key] {
		metrics.FormulaEvaluations.WithLabelValues(kind, metrics.ResultCircular).Inc()
		return nil, false, formula.ErrCircular
	}
	s.inflight[key] = true
	v, err := s.run(expr, env)
	delete(s.inflight, key)

	switch {
	case err == nil:
		metrics.FormulaEvaluations.WithLabelValues(kind, metrics.ResultOK).Inc()
		return v, true, nil
	case errors.Is(err, formula.ErrCircular):
		if len(s.inflight) > 0 {
			return nil, false, err
		}
	default:
		metrics.FormulaEvaluations.WithLabelValues(kind, metrics.ResultError).Inc()
	}
	return formula.ErrorValue(err), false, nil
}

func (s *Session) run(expr string, env formula.Env) (any, error) {
	compile := formula.Compile
	if s.compiler != nil {
		compile = s.compiler.Compile
	}
	p, err := compile(expr)
	if err != nil {
		return nil, err
	}
	v, err := p.Eval(env)
	if err != nil {
		return nil, err
	}
	return formula.Normalize(v), nil
}

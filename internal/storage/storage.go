// Package storage manages the physical tables behind collections and the
// rows inside them. All SQL is rendered by the active adapter.Dialect from
// data-driven table descriptors.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/logging"
)

// DropPolicy decides what happens when the storage engine cannot drop a
// column.
type DropPolicy string

const (
	// DropBestEffort logs, counts and reports success, leaving the physical
	// column in place.
	DropBestEffort DropPolicy = "best-effort"
	// DropStrict surfaces an *errs.StorageError.
	DropStrict DropPolicy = "strict"
)

// ParseDropPolicy validates a policy name. The empty string selects
// DropBestEffort.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch DropPolicy(s) {
	case "", DropBestEffort:
		return DropBestEffort, nil
	case DropStrict:
		return DropStrict, nil
	}
	return "", fmt.Errorf("storage: unknown drop policy %q (want %s or %s)", s, DropBestEffort, DropStrict)
}

// Store owns the database handle. Work happens on a Conn obtained through Do
// or Tx, which releases it on every exit path.
type Store struct {
	db      *sql.DB
	dialect adapter.Dialect
	log     *zap.SugaredLogger
	policy  DropPolicy
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded operations.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = logging.OrNop(log) }
}

// WithDropPolicy sets the column-drop policy.
func WithDropPolicy(p DropPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// New wraps an open database handle.
func New(db *sql.DB, d adapter.Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: d, log: logging.Nop(), policy: DropBestEffort}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open looks up the named dialect, connects to dsn and wraps the handle.
func Open(ctx context.Context, dialect, dsn string, opts ...Option) (*Store, error) {
	d, err := adapter.Get(dialect)
	if err != nil {
		return nil, fmt.Errorf("storage open: %w", err)
	}
	db, err := d.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage open: %w", err)
	}
	return New(db, d, opts...), nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Dialect returns the active dialect.
func (s *Store) Dialect() adapter.Dialect { return s.dialect }

// Policy returns the active column-drop policy.
func (s *Store) Policy() DropPolicy { return s.policy }

// Do runs fn on one pooled connection and releases it afterwards.
func (s *Store) Do(ctx context.Context, fn func(c *Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("storage conn: %w", err)
	}
	defer conn.Close()
	return fn(s.bind(conn))
}

// Tx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) Tx(ctx context.Context, fn func(c *Conn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage begin: %w", err)
	}
	if err := fn(s.bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warnw("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage commit: %w", err)
	}
	return nil
}

func (s *Store) bind(q adapter.Querier) *Conn {
	return &Conn{q: q, dialect: s.dialect, log: s.log, policy: s.policy}
}

// Conn runs statements for one logical operation.
type Conn struct {
	q       adapter.Querier
	dialect adapter.Dialect
	log     *zap.SugaredLogger
	policy  DropPolicy
}

// Dialect returns the dialect statements are rendered with.
func (c *Conn) Dialect() adapter.Dialect { return c.dialect }

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func (c *Conn) Rebind(query string) string {
	if c.dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(c.dialect.Placeholder(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Exec runs a statement written with ? placeholders.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.Rebind(query), args...)
}

// Query runs a query written with ? placeholders.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.Rebind(query), args...)
}

// QueryRow runs a single-row query written with ? placeholders.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.Rebind(query), args...)
}

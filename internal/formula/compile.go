// Package formula implements the expression language used by formula fields
// and summary formulas.
//
// An expression sees exactly the bindings in Env (row and rows) plus a fixed
// set of functions: sum, count, len, length, max, min and round. Sets expose
// two methods, sort and filter. Nothing else is reachable.
package formula

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCacheSize is the number of parsed expressions kept per Compiler.
	DefaultCacheSize = 256
	// MaxExpressionLength bounds the source size accepted by Compile.
	MaxExpressionLength = 4096
)

// Program is a parsed expression, safe for concurrent evaluation.
type Program struct {
	Source string
	root   *expression
}

// Eval evaluates p against env.
func (p *Program) Eval(env Env) (any, error) {
	e := &evaluator{env: env}
	return e.expr(p.root)
}

// Compiler parses expressions and caches the result by source text.
type Compiler struct {
	parser *participle.Parser[expression]
	cache  *lru.Cache[string, *Program]
}

// NewCompiler builds a compiler holding at most cacheSize parsed programs.
// A non-positive size selects DefaultCacheSize.
func NewCompiler(cacheSize int) (*Compiler, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	parser, err := buildParser()
	if err != nil {
		return nil, fmt.Errorf("formula: build parser: %w", err)
	}
	cache, err := lru.New[string, *Program](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("formula: cache: %w", err)
	}
	return &Compiler{parser: parser, cache: cache}, nil
}

// Compile parses src. Surrounding whitespace is ignored.
func (c *Compiler) Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errorf("empty expression")
	}
	if len(src) > MaxExpressionLength {
		return nil, errorf("expression too long (%d > %d bytes)", len(src), MaxExpressionLength)
	}
	if p, ok := c.cache.Get(src); ok {
		return p, nil
	}
	root, err := c.parser.ParseString("", src)
	if err != nil {
		return nil, &SyntaxError{Expr: src, Err: err}
	}
	p := &Program{Source: src, root: root}
	c.cache.Add(src, p)
	return p, nil
}

// Cached reports the number of programs currently cached.
func (c *Compiler) Cached() int { return c.cache.Len() }

var std *Compiler

func init() {
	var err error
	if std, err = NewCompiler(DefaultCacheSize); err != nil {
		panic(err)
	}
}

// Compile parses src with the package-level compiler.
func Compile(src string) (*Program, error) { return std.Compile(src) }

// Eval compiles and evaluates src with the package-level compiler.
func Eval(src string, env Env) (any, error) {
	p, err := std.Compile(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(env)
}

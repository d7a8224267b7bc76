package formula

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sadopc/tabula/internal/resolve"
)

type evaluator struct {
	env   Env
	scope map[string]any
}

func (e *evaluator) expr(x *expression) (any, error) {
	if x.If == nil {
		return e.or(x.Body)
	}
	cond, err := e.or(x.If)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return e.or(x.Body)
	}
	return e.expr(x.Else)
}

func (e *evaluator) or(x *orExpr) (any, error) {
	v, err := e.and(x.Left)
	for _, right := range x.Right {
		if err != nil || Truthy(v) {
			break
		}
		v, err = e.and(right)
	}
	return v, err
}

func (e *evaluator) and(x *andExpr) (any, error) {
	v, err := e.not(x.Left)
	for _, right := range x.Right {
		if err != nil || !Truthy(v) {
			break
		}
		v, err = e.not(right)
	}
	return v, err
}

func (e *evaluator) not(x *notExpr) (any, error) {
	if x.Not == nil {
		return e.comparison(x.Comparison)
	}
	v, err := e.not(x.Not)
	if err != nil {
		return nil, err
	}
	return !Truthy(v), nil
}

// comparison chains: a < b < c means a < b and b < c, with b evaluated once.
func (e *evaluator) comparison(x *comparison) (any, error) {
	left, err := e.additive(x.Left)
	if err != nil || len(x.Ops) == 0 {
		return left, err
	}
	for _, op := range x.Ops {
		right, err := e.additive(op.Right)
		if err != nil {
			return nil, err
		}
		ok, err := compareOp(op.Op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareOp(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	}
	c, err := compare(op, a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func (e *evaluator) additive(x *additive) (any, error) {
	v, err := e.multiplicative(x.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range x.Ops {
		right, err := e.multiplicative(op.Right)
		if err != nil {
			return nil, err
		}
		if v, err = arith(op.Op, v, right); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *evaluator) multiplicative(x *multiplicative) (any, error) {
	v, err := e.unary(x.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range x.Ops {
		right, err := e.unary(op.Right)
		if err != nil {
			return nil, err
		}
		if v, err = arith(op.Op, v, right); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func arith(op string, a, b any) (any, error) {
	if op == "+" {
		switch x := a.(type) {
		case string:
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case []any:
			if y, ok := b.([]any); ok {
				out := make([]any, 0, len(x)+len(y))
				return append(append(out, x...), y...), nil
			}
		}
	}
	x, okx := number(a)
	y, oky := number(b)
	if !okx || !oky {
		return nil, errorf("unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(a), TypeName(b))
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	}
	if y == 0 {
		return nil, errorf("division by zero")
	}
	switch op {
	case "/":
		return x / y, nil
	case "//":
		return math.Floor(x / y), nil
	}
	// The result takes the sign of the divisor.
	m := math.Mod(x, y)
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m, nil
}

func (e *evaluator) unary(x *unary) (any, error) {
	if x.Operand == nil {
		return e.postfix(x.Postfix)
	}
	v, err := e.unary(x.Operand)
	if err != nil {
		return nil, err
	}
	n, ok := number(v)
	if !ok {
		return nil, errorf("bad operand type for unary %s: '%s'", x.Op, TypeName(v))
	}
	if x.Op == "-" {
		return -n, nil
	}
	return n, nil
}

func (e *evaluator) postfix(x *postfix) (any, error) {
	v, err := e.primary(x.Primary)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(x.Suffixes); i++ {
		s := x.Suffixes[i]
		switch {
		case s.Attr != nil:
			if set, ok := v.(Set); ok && isMethod(*s.Attr) && i+1 < len(x.Suffixes) && x.Suffixes[i+1].Call != nil {
				v, err = e.method(set, *s.Attr, x.Suffixes[i+1].Call)
				i++
				break
			}
			v, err = attr(v, *s.Attr)
		case s.Index != nil:
			var idx any
			if idx, err = e.expr(s.Index); err == nil {
				v, err = index(v, idx)
			}
		case s.Call != nil:
			v, err = e.call(v, s.Call)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func attr(v any, name string) (any, error) {
	r, ok := v.(Record)
	if !ok {
		return nil, errorf("'%s' object has no attribute '%s'", TypeName(v), name)
	}
	out, err := r.Attr(name)
	if err != nil {
		return nil, err
	}
	return Normalize(out), nil
}

func index(v, idx any) (any, error) {
	if r, ok := v.(Record); ok {
		if key, ok := idx.(string); ok {
			return attr(r, key)
		}
	}
	var seq []any
	switch x := v.(type) {
	case []any:
		seq = x
	case Set:
		seq = x.Items()
	case string:
		runes := []rune(x)
		i, err := position(idx, len(runes), "string")
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	default:
		return nil, errorf("'%s' object is not subscriptable", TypeName(v))
	}
	i, err := position(idx, len(seq), TypeName(v))
	if err != nil {
		return nil, err
	}
	return seq[i], nil
}

func position(idx any, n int, kind string) (int, error) {
	f, ok := number(idx)
	if !ok || f != math.Trunc(f) {
		return 0, errorf("%s indices must be integers, not '%s'", kind, TypeName(idx))
	}
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, errorf("%s index out of range", kind)
	}
	return i, nil
}

func (e *evaluator) args(c *call) ([]any, error) {
	out := make([]any, 0, len(c.Args))
	for _, a := range c.Args {
		if a.Lambda != nil {
			return nil, errorf("a lambda is only accepted by filter()")
		}
		v, err := e.expr(a.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *evaluator) call(v any, c *call) (any, error) {
	b, ok := v.(*builtin)
	if !ok {
		return nil, errorf("'%s' object is not callable", TypeName(v))
	}
	args, err := e.args(c)
	if err != nil {
		return nil, err
	}
	return b.fn(args)
}

func isMethod(name string) bool { return name == "sort" || name == "filter" }

func (e *evaluator) method(set Set, name string, c *call) (any, error) {
	if name == "filter" {
		if len(c.Args) != 1 || c.Args[0].Lambda == nil {
			return nil, errorf("filter() takes one predicate, such as r => r.Pages > 100")
		}
		l := c.Args[0].Lambda
		return set.Filter(func(item any) (bool, error) {
			inner := &evaluator{env: e.env, scope: bind(e.scope, l.name(), item)}
			v, err := inner.expr(l.Body)
			return Truthy(v), err
		})
	}

	args, err := e.args(c)
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, errorf("sort() takes 1 or 2 arguments (%d given)", len(args))
	}
	field, ok := args[0].(string)
	if !ok {
		return nil, errorf("sort(): field name must be a string, not '%s'", TypeName(args[0]))
	}
	ascending := true
	if len(args) == 2 {
		ascending = Truthy(args[1])
	}
	return set.Sort(field, ascending)
}

func bind(scope map[string]any, name string, v any) map[string]any {
	out := make(map[string]any, len(scope)+1)
	for k, x := range scope {
		out[k] = x
	}
	out[name] = v
	return out
}

func (e *evaluator) primary(x *primary) (any, error) {
	switch {
	case x.Number != nil:
		return *x.Number, nil
	case x.String != nil:
		return unquote(*x.String)
	case x.Bool != nil:
		return bool(*x.Bool), nil
	case x.None:
		return nil, nil
	case x.Ident != nil:
		return e.lookup(*x.Ident)
	}
	return e.expr(x.Group)
}

func (e *evaluator) lookup(name string) (any, error) {
	if v, ok := e.scope[name]; ok {
		return v, nil
	}
	switch name {
	case "row":
		if e.env.Row != nil {
			return e.env.Row, nil
		}
	case "rows":
		if e.env.Rows != nil {
			return e.env.Rows, nil
		}
	}
	if b, ok := builtins[name]; ok {
		return b, nil
	}
	if hint := resolve.Suggest(name, e.names()); hint != "" {
		return nil, errorf("name '%s' is not defined; did you mean '%s'?", name, hint)
	}
	return nil, errorf("name '%s' is not defined", name)
}

func (e *evaluator) names() []string {
	var out []string
	for k := range e.scope {
		out = append(out, k)
	}
	if e.env.Row != nil {
		out = append(out, "row")
	}
	if e.env.Rows != nil {
		out = append(out, "rows")
	}
	return append(out, Functions()...)
}

func unquote(raw string) (string, error) {
	quote := raw[0]
	s := raw[1 : len(raw)-1]
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		// Either quote may be escaped inside either kind of string.
		if len(s) >= 2 && s[0] == '\\' && (s[1] == '\'' || s[1] == '"') {
			b.WriteByte(s[1])
			s = s[2:]
			continue
		}
		c, multibyte, tail, err := strconv.UnquoteChar(s, quote)
		if err != nil {
			return "", errorf("invalid string literal %s", raw)
		}
		if c < utf8.RuneSelf || !multibyte {
			b.WriteByte(byte(c))
		} else {
			b.WriteRune(c)
		}
		s = tail
	}
	return b.String(), nil
}

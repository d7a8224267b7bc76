package formula

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// ErrCircular is returned when a formula reads a value that is still being
// computed higher up the same evaluation.
var ErrCircular = errors.New("Circular reference")

// EvalError is a runtime failure inside an expression: an unknown name, a
// type mismatch, division by zero.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func errorf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// SyntaxError reports an expression that does not parse.
type SyntaxError struct {
	Expr string
	Err  error
}

func (e *SyntaxError) Error() string { return "invalid syntax: " + e.Err.Error() }

func (e *SyntaxError) Unwrap() error { return e.Err }

// ErrorValue renders err as the in-band value stored on a field or summary.
func ErrorValue(err error) string { return "Err: " + err.Error() }

// Record is a value with named attributes, such as a row.
type Record interface {
	Attr(name string) (any, error)
}

// Set is an ordered sequence of records. Attr on a Set returns a column of
// per-record values or a summary result.
type Set interface {
	Record
	Items() []any
	Sort(field string, ascending bool) (Set, error)
	Filter(keep func(item any) (bool, error)) (Set, error)
}

// Env holds the bindings visible to one evaluation. Row is nil for summary
// formulas.
type Env struct {
	Row  Record
	Rows Set
}

// Normalize converts host values read from storage into the value domain of
// the language: nil, float64, string, bool, []any, Record, Set.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05")
	}
	return v
}

// TypeName names the type of v as it appears in error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case *builtin:
		return "function"
	case Set:
		return "rows"
	case Record:
		return "row"
	}
	return fmt.Sprintf("%T", v)
}

// Truthy reports the boolean value of v: null, zero, empty strings and empty
// sequences are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case Set:
		return len(x.Items()) > 0
	}
	return true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Equal compares two values. Numbers and booleans compare numerically; lists
// compare element-wise; records compare by identity.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func compare(op string, a, b any) (int, error) {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, errorf("'%s' not supported between instances of '%s' and '%s'", op, TypeName(a), TypeName(b))
}

// Format renders v the way it appears in text output.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return x
	case []any:
		out := "["
		for i, e := range x {
			if i > 0 {
				out += ", "
			}
			out += Format(e)
		}
		return out + "]"
	}
	return fmt.Sprint(v)
}

package formula

import (
	"math"
	"sort"
)

type builtin struct {
	name string
	fn   func(args []any) (any, error)
}

var builtins = map[string]*builtin{}

func init() {
	for _, b := range []*builtin{
		{name: "sum", fn: builtinSum},
		{name: "len", fn: builtinLen("len")},
		{name: "count", fn: builtinLen("count")},
		{name: "length", fn: builtinLen("length")},
		{name: "max", fn: builtinExtreme("max", 1)},
		{name: "min", fn: builtinExtreme("min", -1)},
		{name: "round", fn: builtinRound},
	} {
		builtins[b.name] = b
	}
}

// Functions lists the function names an expression may call, sorted.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods lists the methods callable on a set of rows.
func Methods() []string { return []string{"filter", "sort"} }

func iterate(fn string, v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case Set:
		return x.Items(), nil
	}
	return nil, errorf("%s(): '%s' object is not iterable", fn, TypeName(v))
}

func builtinSum(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errorf("sum() takes 1 or 2 arguments (%d given)", len(args))
	}
	items, err := iterate("sum", args[0])
	if err != nil {
		return nil, err
	}
	var total any = 0.0
	if len(args) == 2 {
		total = args[1]
	}
	for _, item := range items {
		if total, err = arith("+", total, item); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func builtinLen(name string) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, errorf("%s() takes exactly one argument (%d given)", name, len(args))
		}
		switch x := args[0].(type) {
		case string:
			return float64(len([]rune(x))), nil
		case []any:
			return float64(len(x)), nil
		case Set:
			return float64(len(x.Items())), nil
		}
		return nil, errorf("object of type '%s' has no len()", TypeName(args[0]))
	}
}

// builtinExtreme implements max (sign 1) and min (sign -1). A single
// argument is iterated; several arguments are compared directly.
func builtinExtreme(name string, sign int) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		items := args
		switch len(args) {
		case 0:
			return nil, errorf("%s expected at least 1 argument, got 0", name)
		case 1:
			var err error
			if items, err = iterate(name, args[0]); err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, errorf("%s() arg is an empty sequence", name)
			}
		}
		best := items[0]
		for _, item := range items[1:] {
			op := ">"
			if sign < 0 {
				op = "<"
			}
			c, err := compare(op, item, best)
			if err != nil {
				return nil, err
			}
			if c*sign > 0 {
				best = item
			}
		}
		return best, nil
	}
}

func builtinRound(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errorf("round() takes 1 or 2 arguments (%d given)", len(args))
	}
	x, ok := number(args[0])
	if !ok {
		return nil, errorf("type '%s' doesn't define round()", TypeName(args[0]))
	}
	digits := 0.0
	if len(args) == 2 && args[1] != nil {
		d, ok := number(args[1])
		if !ok || d != math.Trunc(d) {
			return nil, errorf("round(): ndigits must be an integer, not '%s'", TypeName(args[1]))
		}
		digits = d
	}
	if digits == 0 {
		return math.RoundToEven(x), nil
	}
	p := math.Pow(10, digits)
	return math.RoundToEven(x*p) / p, nil
}

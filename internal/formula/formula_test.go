package formula

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

type fakeRow map[string]any

func (r fakeRow) Attr(name string) (any, error) {
	if err, ok := r[name].(error); ok {
		return nil, err
	}
	return r[name], nil
}

type fakeSet []fakeRow

func (s fakeSet) Attr(name string) (any, error) {
	out := make([]any, len(s))
	for i, r := range s {
		v, err := r.Attr(name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s fakeSet) Items() []any {
	out := make([]any, len(s))
	for i, r := range s {
		out[i] = r
	}
	return out
}

func (s fakeSet) Sort(field string, ascending bool) (Set, error) {
	out := append(fakeSet(nil), s...)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i][field].(float64)
		b, _ := out[j][field].(float64)
		if ascending {
			return a < b
		}
		return a > b
	})
	return out, nil
}

func (s fakeSet) Filter(keep func(item any) (bool, error)) (Set, error) {
	var out fakeSet
	for _, r := range s {
		ok, err := keep(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func books() fakeSet {
	return fakeSet{
		{"Title": "Dune", "Pages": 412.0},
		{"Title": "Emma", "Pages": 200.0},
	}
}

func rowEnv() Env {
	rows := books()
	return Env{Row: rows[0], Rows: rows}
}

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"1 + 2 * 3", 7.0},
		{"(1 + 2) * 3", 9.0},
		{"7 / 2", 3.5},
		{"7 // 2", 3.0},
		{"-7 % 3", 2.0},
		{"-(2 + 3)", -5.0},
		{"1.5e2", 150.0},
		{`'a' + "b"`, "ab"},
		{`"it\'s"`, "it's"},
		{"true + 1", 2.0},
		{"2 > 1 and 3", 3.0},
		{"0 or 'x'", "x"},
		{"none or 0", 0.0},
		{"not 0", true},
		{"not 1 == 1", false},
		{"1 < 2 < 3", true},
		{"3 > 2 > 2", false},
		{"'b' >= 'a'", true},
		{"null == None", true},
		{"1 == '1'", false},
		{"'long' if row.Pages > 300 else 'short'", "long"},
		{"round(2.5)", 2.0},
		{"round(3.5)", 4.0},
		{"round(3.14159, 2)", 3.14},
		{"max(3, 9, 1)", 9.0},
		{"min(rows.Pages)", 200.0},
		{"row.Pages * 2", 824.0},
		{"row.Missing", nil},
		{"row['Title']", "Dune"},
		{"row.Title[0]", "D"},
		{"sum(rows.Pages)", 612.0},
		{"sum(rows.Pages, 8)", 620.0},
		{"len(rows)", 2.0},
		{"count(rows)", 2.0},
		{"length(row.Title)", 4.0},
		{"rows.Pages[-1]", 200.0},
		{"len(rows.filter(r => r.Pages > 300))", 1.0},
		{"len(rows.filter(lambda r: r.Pages > 100))", 2.0},
		{"rows.filter(r => r.Title == row.Title)[0].Pages", 412.0},
		{"rows.sort('Pages')[0].Title", "Emma"},
		{"rows.sort('Pages', False)[0].Title", "Dune"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr, rowEnv())
			if err != nil {
				t.Fatalf("Eval(%q) error = %v", tt.expr, err)
			}
			if !Equal(got, tt.want) || TypeName(got) != TypeName(tt.want) {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		env  Env
		want string
	}{
		{"division", "1 / 0", rowEnv(), "division by zero"},
		{"floor division", "row.Pages // 0", rowEnv(), "division by zero"},
		{"unknown name", "foo", rowEnv(), "name 'foo' is not defined"},
		{"no import", "__import__('os')", rowEnv(), "name '__import__' is not defined"},
		{"no dunder", "row.Pages.__class__", rowEnv(), "'number' object has no attribute '__class__'"},
		{"no row in summaries", "row.Pages", Env{Rows: books()}, "name 'row' is not defined"},
		{"mixed add", "'a' + 1", rowEnv(), "unsupported operand type(s) for +: 'string' and 'number'"},
		{"mixed order", "'a' < 1", rowEnv(), "'<' not supported between instances of 'string' and 'number'"},
		{"unary", "-'a'", rowEnv(), "bad operand type for unary -: 'string'"},
		{"not callable", "row.Pages(1)", rowEnv(), "'number' object is not callable"},
		{"empty max", "max(rows.filter(r => r.Pages > 1000))", rowEnv(), "max() arg is an empty sequence"},
		{"len of number", "len(3)", rowEnv(), "object of type 'number' has no len()"},
		{"index range", "rows[5]", rowEnv(), "rows index out of range"},
		{"lambda outside filter", "sum(r => r)", rowEnv(), "a lambda is only accepted by filter()"},
		{"filter without lambda", "rows.filter(1)", rowEnv(), "filter() takes one predicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.expr, tt.env)
			if err == nil {
				t.Fatalf("Eval(%q) error = nil, want %q", tt.expr, tt.want)
			}
			var evalErr *EvalError
			if !errors.As(err, &evalErr) {
				t.Fatalf("Eval(%q) error type = %T, want *EvalError", tt.expr, err)
			}
			if !strings.HasPrefix(err.Error(), tt.want) {
				t.Errorf("Eval(%q) error = %q, want prefix %q", tt.expr, err, tt.want)
			}
		})
	}
}

func TestEval_Suggestion(t *testing.T) {
	_, err := Eval("rws", rowEnv())
	if err == nil || !strings.Contains(err.Error(), "did you mean 'rows'") {
		t.Errorf("Eval(rws) error = %v, want a rows suggestion", err)
	}
}

func TestEval_SyntaxErrors(t *testing.T) {
	for _, expr := range []string{"1 +", "x = 1", "row.", "(1", "import os"} {
		_, err := Eval(expr, rowEnv())
		var syn *SyntaxError
		if !errors.As(err, &syn) {
			t.Errorf("Eval(%q) error = %v, want *SyntaxError", expr, err)
		}
	}
}

func TestEval_CircularPropagates(t *testing.T) {
	row := fakeRow{"Self": ErrCircular}
	_, err := Eval("row.Self + 1", Env{Row: row, Rows: fakeSet{row}})
	if !errors.Is(err, ErrCircular) {
		t.Fatalf("error = %v, want ErrCircular", err)
	}
	if got := ErrorValue(err); got != "Err: Circular reference" {
		t.Errorf("ErrorValue() = %q", got)
	}
}

func TestCompile_Cache(t *testing.T) {
	c, err := NewCompiler(2)
	if err != nil {
		t.Fatalf("NewCompiler() error = %v", err)
	}
	a, err := c.Compile("row.Pages * 2")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	b, _ := c.Compile("  row.Pages * 2 ")
	if a != b {
		t.Error("Compile() did not reuse the cached program")
	}
	_, _ = c.Compile("1")
	_, _ = c.Compile("2")
	if got := c.Cached(); got != 2 {
		t.Errorf("Cached() = %d, want 2", got)
	}
	if _, err := c.Compile("1 +"); err == nil {
		t.Error("Compile(1 +) error = nil")
	}
	if got := c.Cached(); got != 2 {
		t.Errorf("Cached() after failure = %d, want 2", got)
	}
}

func TestCompile_Limits(t *testing.T) {
	if _, err := Compile("   "); err == nil {
		t.Error("Compile(blank) error = nil")
	}
	if _, err := Compile(strings.Repeat("1+", MaxExpressionLength)); err == nil {
		t.Error("Compile(oversized) error = nil")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{612.0, "612"},
		{3.25, "3.25"},
		{true, "true"},
		{"x", "x"},
		{[]any{1.0, "a", nil}, "[1, a, ]"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(int64(3)); got != 3.0 {
		t.Errorf("Normalize(int64) = %#v", got)
	}
	if got := Normalize([]byte("x")); got != "x" {
		t.Errorf("Normalize([]byte) = %#v", got)
	}
}

func TestFunctions(t *testing.T) {
	want := []string{"count", "len", "length", "max", "min", "round", "sum"}
	got := Functions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Functions() = %v, want %v", got, want)
	}
}

package formula

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// formulaLexer tokenizes the expression language. Keywords are lexed as
// identifiers and matched by literal value in the grammar.
var formulaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Number", Pattern: `\d+(\.\d+)?([eE][-+]?\d+)?`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operator", Pattern: `=>|==|!=|<=|>=|//|[-+*/%<>(),.:\[\]]`},
})

// The grammar below encodes precedence by nesting, lowest first:
// conditional, or, and, not, comparison, additive, multiplicative, unary,
// postfix (attribute, index, call), primary.
type expression struct {
	Body *orExpr     `parser:"@@"`
	If   *orExpr     `parser:"( 'if' @@"`
	Else *expression `parser:"  'else' @@ )?"`
}

type orExpr struct {
	Left  *andExpr   `parser:"@@"`
	Right []*andExpr `parser:"( 'or' @@ )*"`
}

type andExpr struct {
	Left  *notExpr   `parser:"@@"`
	Right []*notExpr `parser:"( 'and' @@ )*"`
}

type notExpr struct {
	Not        *notExpr    `parser:"  'not' @@"`
	Comparison *comparison `parser:"| @@"`
}

type comparison struct {
	Left *additive `parser:"@@"`
	Ops  []*cmpOp  `parser:"@@*"`
}

type cmpOp struct {
	Op    string    `parser:"@( '==' | '!=' | '<=' | '>=' | '<' | '>' )"`
	Right *additive `parser:"@@"`
}

type additive struct {
	Left *multiplicative `parser:"@@"`
	Ops  []*addOp        `parser:"@@*"`
}

type addOp struct {
	Op    string          `parser:"@( '+' | '-' )"`
	Right *multiplicative `parser:"@@"`
}

type multiplicative struct {
	Left *unary   `parser:"@@"`
	Ops  []*mulOp `parser:"@@*"`
}

type mulOp struct {
	Op    string `parser:"@( '*' | '//' | '/' | '%' )"`
	Right *unary `parser:"@@"`
}

type unary struct {
	Op      string   `parser:"(  @( '-' | '+' )"`
	Operand *unary   `parser:"   @@ )"`
	Postfix *postfix `parser:"| @@"`
}

type postfix struct {
	Primary  *primary  `parser:"@@"`
	Suffixes []*suffix `parser:"@@*"`
}

type suffix struct {
	Attr  *string     `parser:"  '.' @Ident"`
	Index *expression `parser:"| '[' @@ ']'"`
	Call  *call       `parser:"| @@"`
}

type call struct {
	Open bool        `parser:"@'('"`
	Args []*argument `parser:"( @@ ( ',' @@ )* )? ')'"`
}

type argument struct {
	Lambda *lambda     `parser:"  @@"`
	Expr   *expression `parser:"| @@"`
}

// lambda accepts both `x => body` and `lambda x: body`.
type lambda struct {
	Param string      `parser:"(  'lambda' @Ident ':'"`
	Arrow string      `parser:"|  @Ident '=>' )"`
	Body  *expression `parser:"@@"`
}

func (l *lambda) name() string {
	if l.Param != "" {
		return l.Param
	}
	return l.Arrow
}

type primary struct {
	Number *float64    `parser:"  @Number"`
	String *string     `parser:"| @String"`
	Bool   *boolean    `parser:"| @( 'true' | 'false' | 'True' | 'False' )"`
	None   bool        `parser:"| @( 'none' | 'null' | 'None' )"`
	Ident  *string     `parser:"| @Ident"`
	Group  *expression `parser:"| '(' @@ ')'"`
}

type boolean bool

func (b *boolean) Capture(values []string) error {
	*b = values[0] == "true" || values[0] == "True"
	return nil
}

func buildParser() (*participle.Parser[expression], error) {
	return participle.Build[expression](
		participle.Lexer(formulaLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(4),
	)
}

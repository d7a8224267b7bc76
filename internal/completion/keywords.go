package completion

import "github.com/sadopc/tabula/internal/formula"

// Keywords are the reserved words of the expression language.
var Keywords = []string{
	"if", "else", "and", "or", "not", "lambda", "true", "false", "none",
}

// RowBinding and RowsBinding are the names an expression sees.
const (
	RowBinding  = "row"
	RowsBinding = "rows"
)

// Functions returns the callable function names, sorted.
func Functions() []string {
	return formula.Functions()
}

// Methods returns the methods callable on rows.
func Methods() []string {
	return formula.Methods()
}

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter tokenises formula expressions using chroma and renders them
// with lipgloss styles from a theme. The expression language is a subset of
// Python syntax, so the Python lexer covers it.
type Highlighter struct {
	lexer chroma.Lexer
}

// NewHighlighter creates a Highlighter backed by the Python lexer.
func NewHighlighter() *Highlighter {
	l := lexers.Get("python")
	if l == nil {
		l = lexers.Fallback
	}
	// Coalesce runs of identical token types so the loop below processes
	// fewer, larger chunks.
	l = chroma.Coalesce(l)

	return &Highlighter{lexer: l}
}

// Highlight tokenises expr and returns it with every token styled. The
// unstyled text is returned when th is nil or the lexer fails.
func (h *Highlighter) Highlight(expr string, th *Theme) string {
	if th == nil || expr == "" {
		return expr
	}

	iter, err := h.lexer.Tokenise(nil, expr)
	if err != nil {
		return expr
	}

	var b strings.Builder
	b.Grow(len(expr) * 2)

	for _, tok := range iter.Tokens() {
		value := tok.Value
		if value == "" {
			continue
		}
		// The lexer terminates its input with a newline.
		if strings.HasSuffix(value, "\n") && !strings.HasSuffix(expr, "\n") {
			value = strings.TrimSuffix(value, "\n")
			if value == "" {
				continue
			}
		}

		style, ok := styleFor(tok.Type, value, th)
		if !ok {
			b.WriteString(value)
			continue
		}
		b.WriteString(style.Render(value))
	}

	return b.String()
}

// styleFor maps a chroma token type to the corresponding lipgloss.Style from
// the theme. The second return value is false when the token should pass
// through unstyled.
func styleFor(tt chroma.TokenType, value string, th *Theme) (lipgloss.Style, bool) {
	switch {
	case tt == chroma.NameBuiltin || tt == chroma.NameFunction:
		return th.Function, true
	case tt.InCategory(chroma.Keyword) || tt == chroma.OperatorWord:
		return th.Keyword, true
	case tt.InSubCategory(chroma.LiteralString):
		return th.String, true
	case tt.InSubCategory(chroma.LiteralNumber):
		return th.Number, true
	case tt == chroma.Operator:
		return th.Operator, true
	case tt == chroma.Name && (value == "row" || value == "rows"):
		return th.Identifier, true
	default:
		return lipgloss.Style{}, false
	}
}

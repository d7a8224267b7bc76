// Package completion suggests identifiers while a formula expression is
// being written.
package completion

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/sadopc/tabula/internal/resolve"
	"github.com/sadopc/tabula/internal/schema"
)

// Kind classifies a completion candidate.
type Kind int

const (
	KindKeyword Kind = iota
	KindBinding
	KindFunction
	KindMethod
	KindField
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindKeyword:
		return "keyword"
	case KindBinding:
		return "binding"
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindSummary:
		return "summary"
	}
	return "unknown"
}

// Item is one completion candidate. Label is what gets inserted.
type Item struct {
	Label  string `json:"label"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

// maxItems caps every result list.
const maxItems = 50

// Engine provides formula completion for one collection. Relation fields
// complete into their target collection when it is known.
type Engine struct {
	mu      sync.RWMutex
	coll    schema.Collection
	targets map[string]schema.Collection
	summary bool
}

// NewEngine creates a completion engine. A summary engine completes
// summary formulas, where only rows is bound.
func NewEngine(summary bool) *Engine {
	return &Engine{targets: map[string]schema.Collection{}, summary: summary}
}

// UpdateSchema sets the collection being edited and the collections its
// relation fields may point at.
func (e *Engine) UpdateSchema(coll schema.Collection, others []schema.Collection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.coll = coll
	e.targets = make(map[string]schema.Collection, len(others))
	for _, o := range others {
		e.targets[o.ID] = o
	}
}

// Complete returns completion candidates for the given text and cursor position.
func (e *Engine) Complete(text string, cursorPos int) []Item {
	if cursorPos > len(text) {
		cursorPos = len(text)
	}
	if cursorPos < 0 {
		cursorPos = 0
	}

	before := text[:cursorPos]

	// No completions inside string literals.
	if insideStringLiteral(before) {
		return nil
	}

	prefix, dotContext := extractPrefix(before)

	var items []Item
	if dotContext != "" {
		items = e.completeDotAccess(dotContext)
	} else {
		items = append(items, e.bindingCompletions()...)
		items = append(items, functionCompletions()...)
		items = append(items, keywordCompletions()...)
	}

	if prefix == "" {
		if len(items) > maxItems {
			items = items[:maxItems]
		}
		return items
	}
	return fuzzyMatch(prefix, items)
}

// extractPrefix returns the current word being typed and any dot-context.
// For "row.Pa", it returns prefix="Pa", dotContext="row".
// For "su", it returns prefix="su", dotContext="".
func extractPrefix(before string) (prefix, dotContext string) {
	i := len(before) - 1
	for i >= 0 && !isWordBreak(rune(before[i])) {
		i--
	}
	word := before[i+1:]

	if dotIdx := strings.LastIndex(word, "."); dotIdx >= 0 {
		return word[dotIdx+1:], word[:dotIdx]
	}
	return word, ""
}

// isWordBreak returns true if the rune ends an attribute path.
func isWordBreak(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
		return false
	}
	return true
}

// insideStringLiteral checks if the cursor is inside an unmatched string
// literal of either quote style.
func insideStringLiteral(before string) bool {
	var open rune
	escaped := false
	for _, ch := range before {
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && open != 0:
			escaped = true
		case open == 0 && (ch == '"' || ch == '\''):
			open = ch
		case ch == open:
			open = 0
		}
	}
	return open != 0
}

// completeDotAccess returns the attributes reachable through path, such as
// "row", "rows" or "row.Author".
func (e *Engine) completeDotAccess(path string) []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()

	parts := strings.Split(path, ".")
	switch parts[0] {
	case RowsBinding:
		if len(parts) > 1 {
			return nil
		}
		items := fieldItems(e.coll)
		items = append(items, summaryItems(e.coll)...)
		return append(items, methodCompletions()...)
	case RowBinding:
		if e.summary {
			return nil
		}
	default:
		return nil
	}

	coll := e.coll
	for _, name := range parts[1:] {
		f, ok := resolve.New(coll.Schema.Fields).Field(name)
		if !ok || f.Type != schema.Relation {
			return nil
		}
		target, ok := e.targets[f.TargetCollectionID]
		if !ok {
			return nil
		}
		coll = target
	}
	return fieldItems(coll)
}

// identRe matches display names usable directly after a dot.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// attrLabel returns the spelling of name that parses as an attribute. Names
// with spaces or punctuation fall back to key, which the resolver maps back
// to the same field.
func attrLabel(name, key string) string {
	if identRe.MatchString(name) {
		return name
	}
	return key
}

func fieldItems(coll schema.Collection) []Item {
	items := make([]Item, 0, len(coll.Schema.Fields))
	for _, f := range coll.Schema.Fields {
		label := attrLabel(f.Name, f.Key)
		detail := string(f.Type)
		if f.Name != label {
			detail = f.Name + " - " + detail
		}
		items = append(items, Item{Label: label, Kind: KindField, Detail: detail})
	}
	return items
}

func summaryItems(coll schema.Collection) []Item {
	items := make([]Item, 0, len(coll.Schema.SummaryFormulas))
	for _, s := range coll.Schema.SummaryFormulas {
		items = append(items, Item{Label: attrLabel(s.Name, schema.SafeName(s.Name)), Kind: KindSummary, Detail: s.Name + " - summary"})
	}
	return items
}

func (e *Engine) bindingCompletions() []Item {
	items := []Item{{Label: RowsBinding, Kind: KindBinding, Detail: "all rows of the collection"}}
	if !e.summary {
		items = append([]Item{{Label: RowBinding, Kind: KindBinding, Detail: "the current row"}}, items...)
	}
	return items
}

func keywordCompletions() []Item {
	items := make([]Item, 0, len(Keywords))
	for _, kw := range Keywords {
		items = append(items, Item{Label: kw, Kind: KindKeyword, Detail: "keyword"})
	}
	return items
}

func functionCompletions() []Item {
	fns := Functions()
	items := make([]Item, 0, len(fns))
	for _, fn := range fns {
		items = append(items, Item{Label: fn, Kind: KindFunction, Detail: "function"})
	}
	return items
}

func methodCompletions() []Item {
	ms := Methods()
	items := make([]Item, 0, len(ms))
	for _, m := range ms {
		items = append(items, Item{Label: m, Kind: KindMethod, Detail: "method"})
	}
	return items
}

// candidateLabels implements fuzzy.Source for a slice of Items.
type candidateLabels []Item

func (c candidateLabels) String(i int) string { return c[i].Label }
func (c candidateLabels) Len() int            { return len(c) }

// fuzzyMatch filters and ranks items by fuzzy matching against the prefix.
func fuzzyMatch(prefix string, items []Item) []Item {
	if len(items) == 0 {
		return nil
	}

	// Fuzzy match is case-insensitive: we lowercase both the prefix and the
	// labels for matching, but return the original labels.
	lowerPrefix := strings.ToLower(prefix)
	lowerItems := make(candidateLabels, len(items))
	for i, item := range items {
		lowerItems[i] = Item{Label: strings.ToLower(item.Label), Kind: item.Kind, Detail: item.Detail}
	}

	matches := fuzzy.FindFrom(lowerPrefix, lowerItems)

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	result := make([]Item, 0, len(matches))
	for _, m := range matches {
		result = append(result, items[m.Index])
	}
	if len(result) > maxItems {
		result = result[:maxItems]
	}
	return result
}

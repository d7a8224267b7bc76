// Package resolve maps user-facing field and summary names to canonical
// storage keys.
//
// Lookup order is fixed: exact display name, then normalized display name
// (ASCII letters and digits only, lowercased), then the key itself.
package resolve

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/sadopc/tabula/internal/schema"
)

// Normalize strips every character that is not an ASCII letter or digit and
// lowercases the rest.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		}
	}
	return b.String()
}

// Resolver resolves names against one collection's field list.
type Resolver struct {
	fields  []schema.Field
	byName  map[string]string
	byNorm  map[string]string
	byKey   map[string]schema.Field
	display []string
}

// New precomputes the lookup tables for fields. When display names repeat,
// the first field wins.
func New(fields []schema.Field) *Resolver {
	r := &Resolver{
		fields: fields,
		byName: make(map[string]string, len(fields)),
		byNorm: make(map[string]string, len(fields)),
		byKey:  make(map[string]schema.Field, len(fields)),
	}
	for _, f := range fields {
		if _, ok := r.byName[f.Name]; !ok {
			r.byName[f.Name] = f.Key
		}
		norm := Normalize(f.Name)
		if _, ok := r.byNorm[norm]; !ok {
			r.byNorm[norm] = f.Key
		}
		if _, ok := r.byKey[f.Key]; !ok {
			r.byKey[f.Key] = f
		}
		r.display = append(r.display, f.Name)
	}
	return r
}

// Key returns the canonical storage key for name. It never fails: an
// unresolvable name is returned unchanged.
func (r *Resolver) Key(name string) string {
	if key, ok := r.byName[name]; ok {
		return key
	}
	if key, ok := r.byNorm[Normalize(name)]; ok {
		return key
	}
	return name
}

// Field resolves name and returns the matching field definition.
func (r *Resolver) Field(name string) (schema.Field, bool) {
	f, ok := r.byKey[r.Key(name)]
	return f, ok
}

// Lookup resolves name through display names only, without the storage-key
// fallback.
func (r *Resolver) Lookup(name string) (string, bool) {
	if key, ok := r.byName[name]; ok {
		return key, true
	}
	key, ok := r.byNorm[Normalize(name)]
	return key, ok
}

// Fields returns the field list the resolver was built from.
func (r *Resolver) Fields() []schema.Field { return r.fields }

// Suggest returns the display name closest to name, or "" when nothing is
// similar.
func (r *Resolver) Suggest(name string) string {
	return Suggest(name, r.display)
}

// SummaryIndex resolves summary formula names with the same rules.
type SummaryIndex struct {
	byName map[string]schema.SummaryFormula
	byNorm map[string]schema.SummaryFormula
	names  []string
}

// NewSummaryIndex precomputes the lookup tables for summaries.
func NewSummaryIndex(summaries []schema.SummaryFormula) *SummaryIndex {
	idx := &SummaryIndex{
		byName: make(map[string]schema.SummaryFormula, len(summaries)),
		byNorm: make(map[string]schema.SummaryFormula, len(summaries)),
	}
	for _, s := range summaries {
		if _, ok := idx.byName[s.Name]; !ok {
			idx.byName[s.Name] = s
		}
		norm := Normalize(s.Name)
		if _, ok := idx.byNorm[norm]; !ok {
			idx.byNorm[norm] = s
		}
		idx.names = append(idx.names, s.Name)
	}
	return idx
}

// Lookup finds the summary formula for name.
func (idx *SummaryIndex) Lookup(name string) (schema.SummaryFormula, bool) {
	if s, ok := idx.byName[name]; ok {
		return s, true
	}
	s, ok := idx.byNorm[Normalize(name)]
	return s, ok
}

// Names returns the summary names in definition order.
func (idx *SummaryIndex) Names() []string { return idx.names }

// Suggest returns the candidate closest to name using fuzzy matching on the
// lowercased strings, or "" when none matches.
func Suggest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	lower := make([]string, len(candidates))
	for i, c := range candidates {
		lower[i] = strings.ToLower(c)
	}
	matches := fuzzy.Find(strings.ToLower(name), lower)
	if len(matches) == 0 {
		return ""
	}
	return candidates[matches[0].Index]
}

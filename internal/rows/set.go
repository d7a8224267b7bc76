package rows

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/resolve"
	"github.com/sadopc/tabula/internal/schema"
)

// Set is an ordered sequence of projections of one collection together with
// its summary formulas.
type Set struct {
	sess      *Session
	meta      *meta
	items     []*Projection
	summaries map[string]any
}

// Collection returns the collection the rows belong to.
func (s *Set) Collection() schema.Collection { return s.meta.coll }

// Len returns the number of rows.
func (s *Set) Len() int { return len(s.items) }

// Rows returns the projections in order.
func (s *Set) Rows() []*Projection { return s.items }

// Items implements formula.Set.
func (s *Set) Items() []any {
	out := make([]any, len(s.items))
	for i, p := range s.items {
		out[i] = p
	}
	return out
}

func (s *Set) derive(items []*Projection) *Set {
	return &Set{sess: s.sess, meta: s.meta, items: items, summaries: map[string]any{}}
}

// Attr returns a field as the list of per-row values, or the value of a
// summary formula. A set whose collection is unknown answers every field
// with an empty list.
func (s *Set) Attr(name string) (any, error) {
	if key, ok := s.fieldKey(name); ok {
		out := make([]any, len(s.items))
		for i, p := range s.items {
			v, err := p.field(s.meta.byKey[key])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	if _, ok := s.meta.summaries.Lookup(name); ok {
		return s.Summary(name)
	}
	if !s.meta.known {
		return []any{}, nil
	}
	candidates := append(append([]string{}, namesOf(s.meta)...), s.meta.summaries.Names()...)
	if hint := resolve.Suggest(name, candidates); hint != "" {
		return nil, &formula.EvalError{Msg: fmt.Sprintf("'rows' object has no attribute '%s'; did you mean '%s'?", name, hint)}
	}
	return nil, &formula.EvalError{Msg: fmt.Sprintf("'rows' object has no attribute '%s'", name)}
}

// fieldKey resolves name by display name, then as a storage key.
func (s *Set) fieldKey(name string) (string, bool) {
	if key, ok := s.meta.fields.Lookup(name); ok {
		return key, true
	}
	_, ok := s.meta.byKey[name]
	return name, ok
}

func namesOf(m *meta) []string {
	out := make([]string, 0, len(m.coll.Schema.Fields))
	for _, f := range m.coll.Schema.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Summary evaluates the named summary formula with rows bound to s. The
// result is memoized on s.
func (s *Set) Summary(name string) (any, error) {
	sf, ok := s.meta.summaries.Lookup(name)
	if !ok {
		return nil, &formula.EvalError{Msg: fmt.Sprintf("no summary formula named '%s'", name)}
	}
	if v, ok := s.summaries[sf.Name]; ok {
		return v, nil
	}
	if strings.TrimSpace(sf.Expression) == "" {
		return nil, nil
	}
	key := "summary/" + s.meta.coll.ID + "/" + sf.Name
	v, cache, err := s.sess.evaluate("summary", key, sf.Expression, formula.Env{Rows: s})
	if err != nil {
		return nil, err
	}
	if cache {
		s.summaries[sf.Name] = v
	}
	return v, nil
}

// SummaryValue is one evaluated summary formula.
type SummaryValue struct {
	Name       string `json:"name"`
	Value      any    `json:"value"`
	Expression string `json:"expression"`
}

// Summaries evaluates every summary formula of the collection in
// definition order.
func (s *Set) Summaries() []SummaryValue {
	defs := s.meta.coll.Schema.SummaryFormulas
	out := make([]SummaryValue, 0, len(defs))
	for _, sf := range defs {
		v, err := s.Summary(sf.Name)
		if err != nil {
			v = formula.ErrorValue(err)
		}
		out = append(out, SummaryValue{Name: sf.Name, Value: exportValue(v), Expression: sf.Expression})
	}
	return out
}

// Sort returns a new set ordered by field: nulls first, then numbers, then
// everything else as text. Equal keys keep their order. Descending order
// reverses the tiers.
func (s *Set) Sort(field string, ascending bool) (formula.Set, error) {
	key, _ := s.fieldKey(field)
	type keyed struct {
		tier int
		num  float64
		text string
	}
	keys := make([]keyed, len(s.items))
	for i, p := range s.items {
		var (
			v   any
			err error
		)
		if f, ok := s.meta.byKey[key]; ok {
			v, err = p.field(f)
		} else {
			v, err = p.Attr(field)
		}
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case nil:
			keys[i] = keyed{tier: 0}
		case float64:
			keys[i] = keyed{tier: 1, num: x}
		case bool:
			keys[i] = keyed{tier: 1}
			if x {
				keys[i].num = 1
			}
		default:
			keys[i] = keyed{tier: 2, text: formula.Format(x)}
		}
	}

	idx := make([]int, len(s.items))
	for i := range idx {
		idx[i] = i
	}
	less := func(a, b keyed) bool {
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.tier == 1 {
			return a.num < b.num
		}
		return a.text < b.text
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := keys[idx[i]], keys[idx[j]]
		if ascending {
			return less(a, b)
		}
		return less(b, a)
	})

	items := make([]*Projection, len(idx))
	for i, j := range idx {
		items[i] = s.items[j]
	}
	return s.derive(items), nil
}

// Filter returns a new set holding the rows keep accepts.
func (s *Set) Filter(keep func(item any) (bool, error)) (formula.Set, error) {
	var items []*Projection
	for _, p := range s.items {
		ok, err := keep(p)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, p)
		}
	}
	return s.derive(items), nil
}

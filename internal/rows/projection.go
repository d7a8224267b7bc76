package rows

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// Projection is the read-time view of one stored row. Formula fields are
// computed on first access and cached for the life of the projection.
type Projection struct {
	s    *Session
	meta *meta
	data storage.Row
	set  *Set

	// empty projections stand in for a missing relation target and read
	// text fields as "".
	empty    bool
	computed map[string]any
}

func (s *Session) project(m *meta, data storage.Row, set *Set) *Projection {
	return &Projection{s: s, meta: m, data: data, set: set, computed: map[string]any{}}
}

// ID returns the row identity, 0 for an empty projection.
func (p *Projection) ID() int64 {
	id, _ := toInt(p.data[schema.ColID])
	return id
}

// CollectionID returns the id of the collection the row belongs to.
func (p *Projection) CollectionID() string { return p.meta.coll.ID }

// Attr resolves name through the field resolver and returns the typed
// value. Unknown names read as null.
func (p *Projection) Attr(name string) (any, error) {
	key := p.meta.fields.Key(name)
	f, ok := p.meta.byKey[key]
	if !ok {
		return formula.Normalize(p.data[key]), nil
	}
	return p.field(f)
}

// Value is Attr with evaluation failures rendered in-band.
func (p *Projection) Value(name string) any {
	v, err := p.Attr(name)
	if err != nil {
		return formula.ErrorValue(err)
	}
	return v
}

func (p *Projection) field(f schema.Field) (any, error) {
	raw := p.data[f.Key]
	switch f.Type {
	case schema.Number:
		return number(raw), nil
	case schema.Text, schema.DateTime:
		if raw == nil && p.empty {
			return "", nil
		}
		return formula.Normalize(raw), nil
	case schema.Relation:
		id, _ := toInt(raw)
		return &Relation{s: p.s, target: f.TargetCollectionID, id: id}, nil
	case schema.NestedDatabase:
		return p.nested(f), nil
	case schema.Formula:
		return p.formula(f)
	}
	return formula.Normalize(raw), nil
}

func (p *Projection) formula(f schema.Field) (any, error) {
	if v, ok := p.computed[f.Key]; ok {
		return v, nil
	}
	if strings.TrimSpace(f.Expression) == "" {
		return "", nil
	}
	env := formula.Env{Row: p, Rows: p.rows()}
	key := fmt.Sprintf("row/%s/%d/%s", p.meta.coll.ID, p.ID(), f.Key)
	v, cache, err := p.s.evaluate("row", key, f.Expression, env)
	if err != nil {
		return nil, err
	}
	if cache {
		p.computed[f.Key] = v
	}
	return v, nil
}

func (p *Projection) rows() formula.Set {
	if p.set != nil {
		return p.set
	}
	return p.s.emptySet(p.meta)
}

// nested returns the rows of the collection nested under this row for f,
// or an empty set.
func (p *Projection) nested(f schema.Field) *Set {
	if child, ok := p.child(f); ok {
		set, err := p.s.load(child)
		if err == nil {
			return set
		}
		p.s.log.Warnw("nested collection unavailable", "collection", child.ID, "error", err)
	}
	return p.s.emptySet(p.s.meta(schema.Collection{}))
}

// child finds the collection nested under this row for field f. Children
// that did not record a field match any nested database field. The oldest
// match wins.
func (p *Projection) child(f schema.Field) (schema.Collection, bool) {
	if p.ID() == 0 || !p.meta.known {
		return schema.Collection{}, false
	}
	children, err := p.s.loader.Children(p.s.ctx, p.meta.coll.ID, p.ID())
	if err != nil {
		p.s.log.Warnw("nested collections unavailable", "collection", p.meta.coll.ID, "row", p.ID(), "error", err)
		return schema.Collection{}, false
	}
	for i := len(children) - 1; i >= 0; i-- {
		if c := children[i]; c.ParentField == "" || c.ParentField == f.Key {
			return c, true
		}
	}
	return schema.Collection{}, false
}

// Export returns the row keyed by storage key: identity, built-in columns,
// then every field of the schema with formulas computed. Relation fields
// export the referenced id and nested database fields the child collection
// id.
func (p *Projection) Export() map[string]any {
	out := make(map[string]any, 1+len(schema.BookkeepingColumns)+len(p.meta.coll.Schema.Fields))
	out[schema.ColID] = p.ID()
	for _, c := range schema.BookkeepingColumns {
		out[c.Name] = formula.Normalize(p.data[c.Name])
	}
	for _, f := range p.meta.coll.Schema.Fields {
		switch f.Type {
		case schema.Relation:
			if id, ok := toInt(p.data[f.Key]); ok {
				out[f.Key] = id
			} else {
				out[f.Key] = nil
			}
		case schema.NestedDatabase:
			if child, ok := p.child(f); ok {
				out[f.Key] = child.ID
			} else {
				out[f.Key] = nil
			}
		default:
			v, err := p.field(f)
			if err != nil {
				v = formula.ErrorValue(err)
			}
			out[f.Key] = exportValue(v)
		}
	}
	return out
}

// exportValue flattens values that only make sense inside an expression.
func exportValue(v any) any {
	switch x := v.(type) {
	case *Relation:
		if x.id == 0 {
			return nil
		}
		return x.id
	case *Projection:
		return x.ID()
	case *Set:
		ids := make([]any, len(x.items))
		for i, item := range x.items {
			ids[i] = item.ID()
		}
		return ids
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = exportValue(e)
		}
		return out
	}
	return v
}

// number reads a Number column: null is 0, numeric text is parsed.
func number(v any) any {
	switch x := formula.Normalize(v).(type) {
	case nil:
		return 0.0
	case float64:
		return x
	case bool:
		if x {
			return 1.0
		}
		return 0.0
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
		return x
	default:
		return x
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), x == float64(int64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	case []byte:
		return toInt(string(x))
	}
	return 0, false
}

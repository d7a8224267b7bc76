package rows

import (
	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// Relation is the value of a Relation field: a lazy handle on one row of the
// target collection. The target is loaded on first attribute access and kept
// for the life of the handle.
type Relation struct {
	s      *Session
	target string
	id     int64
	loaded *Projection
}

// TargetCollectionID returns the id of the referenced collection.
func (r *Relation) TargetCollectionID() string { return r.target }

// TargetID returns the referenced row id, 0 when unset.
func (r *Relation) TargetID() int64 { return r.id }

// Attr reads a field of the target row. A missing target reads every field
// as its type's default.
func (r *Relation) Attr(name string) (any, error) {
	return r.Resolve().Attr(name)
}

// Resolve loads the target row, or an empty projection carrying the target
// schema when the id is unset, the row is gone or loading fails.
func (r *Relation) Resolve() *Projection {
	if r.loaded != nil {
		return r.loaded
	}
	coll, ok := r.s.collection(r.target)
	if !ok {
		r.loaded = r.s.emptyProjection(r.s.meta(schema.Collection{}))
		return r.loaded
	}
	m := r.s.meta(coll)
	if r.id == 0 {
		r.loaded = r.s.emptyProjection(m)
		return r.loaded
	}
	if set, ok := r.s.sets[coll.ID]; ok {
		for _, p := range set.items {
			if p.ID() == r.id {
				r.loaded = p
				return p
			}
		}
	}
	data, err := r.s.loader.Row(r.s.ctx, coll, r.id)
	switch {
	case errs.IsNotFound(err):
		r.loaded = r.s.emptyProjection(m)
	case err != nil:
		r.s.log.Warnw("relation target unavailable", "collection", coll.ID, "row", r.id, "error", err)
		r.loaded = r.s.emptyProjection(m)
	default:
		r.loaded = r.s.project(m, data, nil)
	}
	return r.loaded
}

func (s *Session) emptyProjection(m *meta) *Projection {
	p := s.project(m, storage.Row{}, nil)
	p.empty = true
	return p
}

package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/errs"
	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/metrics"
	"github.com/sadopc/tabula/internal/resolve"
	"github.com/sadopc/tabula/internal/rows"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// Listing is the read view of a collection: every row with formula fields
// computed, keyed by storage key, and the evaluated summary formulas.
type Listing struct {
	Collection schema.Collection   `json:"collection"`
	Items      []map[string]any    `json:"items"`
	Summaries  []rows.SummaryValue `json:"summaries"`
}

// Rows reads every row of a collection, newest first.
func (s *Service) Rows(ctx context.Context, collectionID string) (*Listing, error) {
	set, err := s.session(ctx).Read(collectionID)
	if err != nil {
		return nil, err
	}
	out := &Listing{Collection: set.Collection(), Items: make([]map[string]any, 0, set.Len())}
	for _, p := range set.Rows() {
		out.Items = append(out.Items, p.Export())
	}
	out.Summaries = set.Summaries()
	return out, nil
}

// AddRow stores a new row and returns its id. Payload keys may be storage
// keys, display names or loose spellings of them; keys that match nothing
// are ignored, but at least one must match. A title already used in the
// collection is rejected.
func (s *Service) AddRow(ctx context.Context, collectionID string, payload map[string]any) (int64, error) {
	id, err := s.addRow(ctx, collectionID, payload)
	s.rowDone(audit.OpInsertRow, "insert", collectionID, id, err)
	return id, err
}

func (s *Service) addRow(ctx context.Context, collectionID string, payload map[string]any) (int64, error) {
	coll, err := s.cat.Get(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	values, err := writable(coll, payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.store.Tx(ctx, func(conn *storage.Conn) error {
		var err error
		id, err = conn.Insert(ctx, coll.TableName, values, titleConstraint(coll, values))
		return err
	})
	return id, err
}

// UpdateRow overwrites the supplied fields of one row, under the same key
// and title rules as AddRow. The row itself is excluded from the title
// check. When the title changes, collections nested under the row take the
// new title as their name.
func (s *Service) UpdateRow(ctx context.Context, collectionID string, rowID int64, payload map[string]any) error {
	err := s.updateRow(ctx, collectionID, rowID, payload)
	s.rowDone(audit.OpUpdateRow, "update", collectionID, rowID, err)
	return err
}

func (s *Service) updateRow(ctx context.Context, collectionID string, rowID int64, payload map[string]any) error {
	coll, err := s.cat.Get(ctx, collectionID)
	if err != nil {
		return err
	}
	values, err := writable(coll, payload)
	if err != nil {
		return err
	}
	unique := titleConstraint(coll, values)
	err = s.store.Tx(ctx, func(conn *storage.Conn) error {
		return conn.Update(ctx, coll.TableName, rowID, values, unique)
	})
	if err != nil {
		return err
	}
	if title, ok := coll.Schema.TitleField(); ok {
		if v, set := values[title.Key]; set {
			s.syncNestedNames(ctx, coll.ID, rowID, formula.Format(formula.Normalize(v)))
		}
	}
	return nil
}

// syncNestedNames renames the collections nested under a row. Failures are
// logged; the row update has already committed.
func (s *Service) syncNestedNames(ctx context.Context, collectionID string, rowID int64, title string) {
	if strings.TrimSpace(title) == "" {
		return
	}
	children, err := s.cat.ListChildren(ctx, collectionID, rowID)
	if err != nil {
		s.log.Warnw("nested rename skipped", "collection", collectionID, "row", rowID, "error", err)
		return
	}
	for _, child := range children {
		if child.Name == title {
			continue
		}
		if err := s.cat.Rename(ctx, child.ID, title); err != nil {
			s.log.Warnw("nested rename failed", "collection", child.ID, "error", err)
		}
	}
}

// DeleteRow removes one row after deleting every collection nested under
// it.
func (s *Service) DeleteRow(ctx context.Context, collectionID string, rowID int64) error {
	err := s.deleteRow(ctx, collectionID, rowID)
	s.rowDone(audit.OpDeleteRow, "delete", collectionID, rowID, err)
	return err
}

func (s *Service) deleteRow(ctx context.Context, collectionID string, rowID int64) error {
	coll, err := s.cat.Get(ctx, collectionID)
	if err != nil {
		return err
	}
	err = s.store.Do(ctx, func(conn *storage.Conn) error {
		_, err := conn.SelectByID(ctx, coll.TableName, rowID)
		return err
	})
	if err != nil {
		return err
	}
	children, err := s.cat.ListChildren(ctx, coll.ID, rowID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.cat.Delete(ctx, child.ID); err != nil && !errs.IsNotFound(err) {
			s.log.Warnw("cascade delete failed", "collection", child.ID, "row", rowID, "error", err)
		}
	}
	return s.store.Do(ctx, func(conn *storage.Conn) error {
		return conn.Delete(ctx, coll.TableName, rowID)
	})
}

func (s *Service) rowDone(op, label, collectionID string, rowID int64, err error) {
	target := ""
	if rowID != 0 {
		target = strconv.FormatInt(rowID, 10)
	}
	s.journal.Record(op, collectionID, target, "", err)
	if err == nil {
		metrics.RowMutations.WithLabelValues(label).Inc()
	}
}

// titleConstraint returns the uniqueness rule for the title field when the
// write sets it.
func titleConstraint(coll schema.Collection, values storage.Row) *storage.Unique {
	title, ok := coll.Schema.TitleField()
	if !ok {
		return nil
	}
	v, ok := values[title.Key]
	if !ok || v == nil {
		return nil
	}
	return &storage.Unique{Column: title.Key, Value: v}
}

// writable maps a payload onto the columns a write may set. Stored fields
// are found through the resolver; the writable built-ins match by exact
// key. Formula and nested database fields are never written.
func writable(coll schema.Collection, payload map[string]any) (storage.Row, error) {
	r := resolve.New(coll.Schema.Fields)
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	// Exact storage keys go last so they win over looser spellings.
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := isKey(coll, keys[i]), isKey(coll, keys[j])
		if ei != ej {
			return ej
		}
		return keys[i] < keys[j]
	})

	out := storage.Row{}
	for _, k := range keys {
		v := payload[k]
		if builtinWritable(k) {
			cv, err := coerceBuiltin(k, v)
			if err != nil {
				return nil, err
			}
			out[k] = cv
			continue
		}
		f, ok := r.Field(k)
		if !ok || !f.Physical() {
			continue
		}
		cv, err := coerce(f, v)
		if err != nil {
			return nil, err
		}
		out[f.Key] = cv
	}
	if len(out) == 0 {
		return nil, errs.Invalid("fields", "no valid fields provided")
	}
	return out, nil
}

func isKey(coll schema.Collection, k string) bool {
	_, _, ok := coll.Schema.FieldByKey(k)
	return ok
}

func builtinWritable(k string) bool {
	for _, b := range schema.WritableBuiltins {
		if b == k {
			return true
		}
	}
	return false
}

// coerce converts a payload value to the column type of f. Empty strings
// clear Number and Relation columns.
func coerce(f schema.Field, v any) (any, error) {
	v = formula.Normalize(v)
	switch f.Type {
	case schema.Number:
		n, ok, err := toNumber(v)
		if err != nil {
			return nil, errs.Invalid(f.Name, "%v is not a number", v)
		}
		if !ok {
			return nil, nil
		}
		return n, nil
	case schema.Relation:
		n, ok, err := toNumber(v)
		if err != nil || (ok && (n != math.Trunc(n) || n < 0)) {
			return nil, errs.Invalid(f.Name, "%v is not a row id", v)
		}
		if !ok || n == 0 {
			return nil, nil
		}
		return int64(n), nil
	}
	switch x := v.(type) {
	case nil, string:
		return x, nil
	case float64, bool:
		return formula.Format(x), nil
	}
	return nil, errs.Invalid(f.Name, "unsupported value of type %T", v)
}

func coerceBuiltin(key string, v any) (any, error) {
	v = formula.Normalize(v)
	if key == schema.ColIsAllDay {
		switch x := v.(type) {
		case nil:
			return int64(0), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case float64:
			if x != 0 {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, errs.Invalid(key, "%q is not a boolean", x)
			}
			return coerceBuiltin(key, b)
		}
		return nil, errs.Invalid(key, "unsupported value of type %T", v)
	}
	switch x := v.(type) {
	case nil, string:
		return x, nil
	case float64, bool:
		return formula.Format(x), nil
	}
	return nil, errs.Invalid(key, "unsupported value of type %T", v)
}

// toNumber reports ok=false for an absent value (nil or blank text).
func toNumber(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case bool:
		if x {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false, err
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("unsupported type %T", v)
}

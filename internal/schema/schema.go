// Package schema holds the logical data model of tabula: collections, their
// typed fields and summary formulas, and the built-in columns every physical
// table carries.
package schema

import (
	"strings"
	"time"
)

// FieldType enumerates the closed set of field types.
type FieldType string

const (
	Text           FieldType = "Text"
	Number         FieldType = "Number"
	DateTime       FieldType = "DateTime"
	Formula        FieldType = "Formula"
	Relation       FieldType = "Relation"
	NestedDatabase FieldType = "NestedDatabase"
)

// FieldTypes lists every valid field type in display order.
var FieldTypes = []FieldType{Text, Number, DateTime, Formula, Relation, NestedDatabase}

// ParseFieldType matches s case-insensitively against the known field types.
func ParseFieldType(s string) (FieldType, bool) {
	for _, ft := range FieldTypes {
		if strings.EqualFold(string(ft), strings.TrimSpace(s)) {
			return ft, true
		}
	}
	return "", false
}

// Physical reports whether fields of this type occupy a storage column.
func (t FieldType) Physical() bool {
	switch t {
	case Text, Number, DateTime, Relation:
		return true
	}
	return false
}

// ColumnKind returns the physical column kind backing the type. Only
// meaningful when Physical reports true.
func (t FieldType) ColumnKind() ColumnKind {
	switch t {
	case Number:
		return KindReal
	case Relation:
		return KindInteger
	default:
		return KindText
	}
}

// Field is one named, typed column of a collection. The JSON shape is the
// persisted schema document format.
type Field struct {
	Name               string    `json:"name"`
	Key                string    `json:"safe_name"`
	Type               FieldType `json:"type"`
	TargetCollectionID string    `json:"target_collection_id,omitempty"`
	Expression         string    `json:"expression,omitempty"`
}

// Physical reports whether the field occupies a storage column.
func (f Field) Physical() bool { return f.Type.Physical() }

// SummaryFormula is an aggregate expression evaluated over a whole row set.
type SummaryFormula struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Document is the persisted schema of one collection.
type Document struct {
	Fields          []Field          `json:"fields"`
	SummaryFormulas []SummaryFormula `json:"summary_formulas"`
}

// Clone returns a deep copy so callers can mutate it before persisting.
func (d Document) Clone() Document {
	out := Document{
		Fields:          make([]Field, len(d.Fields)),
		SummaryFormulas: make([]SummaryFormula, len(d.SummaryFormulas)),
	}
	copy(out.Fields, d.Fields)
	copy(out.SummaryFormulas, d.SummaryFormulas)
	return out
}

// FieldByKey returns the field with the given storage key and its index.
func (d Document) FieldByKey(key string) (Field, int, bool) {
	for i, f := range d.Fields {
		if f.Key == key {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// PhysicalFields returns the fields that occupy storage columns, in order.
func (d Document) PhysicalFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Physical() {
			out = append(out, f)
		}
	}
	return out
}

// TitleField returns the collection's title field: by convention the first
// field that occupies a storage column.
func (d Document) TitleField() (Field, bool) {
	for _, f := range d.Fields {
		if f.Physical() {
			return f, true
		}
	}
	return Field{}, false
}

// FirstOfType returns the first field of type t.
func (d Document) FirstOfType(t FieldType) (Field, bool) {
	for _, f := range d.Fields {
		if f.Type == t {
			return f, true
		}
	}
	return Field{}, false
}

// Collection is a user-defined logical table.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TableName string    `json:"table_name"`
	Schema    Document  `json:"schema"`
	CreatedAt time.Time `json:"created_at"`

	// Parent linkage; both set or both empty. ParentField is the key of the
	// NestedDatabase field the collection was created for, if any.
	ParentCollectionID string `json:"parent_collection_id,omitempty"`
	ParentRowID        int64  `json:"parent_item_id,omitempty"`
	ParentField        string `json:"parent_field,omitempty"`

	// ParentRowTitle is filled in by listing operations only.
	ParentRowTitle any `json:"parent_item_title,omitempty"`
}

// Nested reports whether the collection hangs under a parent row.
func (c Collection) Nested() bool {
	return c.ParentCollectionID != "" && c.ParentRowID != 0
}

// TableName derives the physical storage identifier from a collection id.
func TableName(collectionID string) string {
	return "dyn_" + strings.ReplaceAll(collectionID, "-", "_")
}

// Column represents a physical table column as reported by introspection.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Default  string
	IsPK     bool
}

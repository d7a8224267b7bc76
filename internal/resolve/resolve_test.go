package resolve

import (
	"testing"

	"github.com/sadopc/tabula/internal/schema"
)

func testFields() []schema.Field {
	return []schema.Field{
		{Name: "Title", Key: "title", Type: schema.Text},
		{Name: "Page Count", Key: "page_count", Type: schema.Number},
		{Name: "Double Pages", Key: "double_pages", Type: schema.Formula, Expression: "row.Page_Count*2"},
		{Name: "Cost ($)", Key: "cost_", Type: schema.Number},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Page Count", "pagecount"},
		{"page_count", "pagecount"},
		{"PAGE-COUNT!", "pagecount"},
		{"Cost ($)", "cost"},
		{"Çafé 2", "af2"},
		{"", ""},
		{"___", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolver_Key(t *testing.T) {
	r := New(testFields())
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"exact display name", "Page Count", "page_count"},
		{"storage key through normalization", "page_count", "page_count"},
		{"camel case", "pageCount", "page_count"},
		{"shouting", "DOUBLE PAGES", "double_pages"},
		{"punctuated", "cost", "cost_"},
		{"storage key fallback", "cost_", "cost_"},
		{"builtin passes through", "created_at", "created_at"},
		{"unknown passes through", "Nope", "Nope"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Key(tt.in); got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolver_ExactBeforeNormalized(t *testing.T) {
	// "A B" normalizes to "ab", which is also the exact display name of the
	// second field; the exact match must win.
	r := New([]schema.Field{
		{Name: "A B", Key: "a_b", Type: schema.Text},
		{Name: "ab", Key: "ab", Type: schema.Text},
	})
	if got := r.Key("ab"); got != "ab" {
		t.Errorf("Key(ab) = %q, want ab", got)
	}
	if got := r.Key("A-B"); got != "a_b" {
		t.Errorf("Key(A-B) = %q, want a_b (first normalized entry)", got)
	}
}

func TestResolver_DuplicateDisplayNames(t *testing.T) {
	r := New([]schema.Field{
		{Name: "Name", Key: "name", Type: schema.Text},
		{Name: "Name", Key: "name_2", Type: schema.Text},
	})
	if got := r.Key("Name"); got != "name" {
		t.Errorf("Key(Name) = %q, want first field", got)
	}
	if f, ok := r.Field("name_2"); !ok || f.Key != "name_2" {
		t.Errorf("Field(name_2) = %q, %v", f.Key, ok)
	}
}

func TestResolver_FieldAndLookup(t *testing.T) {
	r := New(testFields())
	f, ok := r.Field("double pages")
	if !ok || f.Type != schema.Formula {
		t.Errorf("Field(double pages) = %+v, %v", f, ok)
	}
	if _, ok := r.Field("missing"); ok {
		t.Error("Field(missing) ok = true")
	}
	if _, ok := r.Lookup("double_pages"); !ok {
		t.Error("Lookup(double_pages) ok = false; normalized names should match")
	}
	if _, ok := r.Lookup("created_at"); ok {
		t.Error("Lookup(created_at) ok = true; Lookup must not fall back to keys")
	}
}

func TestSummaryIndex(t *testing.T) {
	idx := NewSummaryIndex([]schema.SummaryFormula{
		{Name: "Total Pages", Expression: "sum(rows.Pages)"},
		{Name: "Count", Expression: "len(rows)"},
	})
	for _, in := range []string{"Total Pages", "total_pages", "TotalPages", "total-pages"} {
		s, ok := idx.Lookup(in)
		if !ok || s.Name != "Total Pages" {
			t.Errorf("Lookup(%q) = %q, %v", in, s.Name, ok)
		}
	}
	if _, ok := idx.Lookup("Average"); ok {
		t.Error("Lookup(Average) ok = true")
	}
	if got := idx.Names(); len(got) != 2 || got[1] != "Count" {
		t.Errorf("Names() = %v", got)
	}
}

func TestSuggest(t *testing.T) {
	r := New(testFields())
	if got := r.Suggest("pgcnt"); got != "Page Count" {
		t.Errorf("Suggest(pgcnt) = %q, want Page Count", got)
	}
	if got := r.Suggest("zzz"); got != "" {
		t.Errorf("Suggest(zzz) = %q, want empty", got)
	}
	if got := Suggest("", []string{"a"}); got != "" {
		t.Errorf("Suggest(empty) = %q", got)
	}
}

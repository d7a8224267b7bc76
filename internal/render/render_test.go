package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/goccy/go-json"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/completion"
	"github.com/sadopc/tabula/internal/engine"
	"github.com/sadopc/tabula/internal/rows"
	"github.com/sadopc/tabula/internal/schema"
)

// NOTE: lipgloss renders styles as no-ops when there is no TTY (such as in a
// test environment), so these tests check content and structure, not ANSI
// escape codes.

func TestThemes_AllRegistered(t *testing.T) {
	for _, name := range []string{"default", "light"} {
		th, ok := Themes[name]
		if !ok {
			t.Fatalf("expected theme %q to be registered", name)
		}
		if th.Name != name {
			t.Errorf("theme registered as %q has Name=%q", name, th.Name)
		}
	}
}

func TestGet_UnknownTheme_FallsBackToDefault(t *testing.T) {
	for _, name := range []string{"", "nonexistent"} {
		if th := Get(name); th.Name != "default" {
			t.Errorf("Get(%q).Name = %q, want default", name, th.Name)
		}
	}
	if th := Get("light"); th.Name != "light" {
		t.Errorf("Get(light).Name = %q", th.Name)
	}
}

// ---------------------------------------------------------------------------
// Highlighter
// ---------------------------------------------------------------------------

func TestHighlight(t *testing.T) {
	h := NewHighlighter()

	tests := []string{
		"sum(rows.Pages)",
		`row.Title + " (" + row.Author.Name + ")"`,
		"row.Pages * 2 if row.Pages > 100 else 0",
		"len(rows.filter(lambda r: r.Pages >= 300))",
		"None",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if got := h.Highlight(expr, Default()); got != expr {
				t.Errorf("Highlight(%q) = %q, want content preserved", expr, got)
			}
		})
	}
}

func TestHighlight_NilThemeAndEmpty(t *testing.T) {
	h := NewHighlighter()
	if got := h.Highlight("row.Pages", nil); got != "row.Pages" {
		t.Errorf("Highlight(nil theme) = %q", got)
	}
	if got := h.Highlight("", Default()); got != "" {
		t.Errorf("Highlight(empty) = %q", got)
	}
}

func TestStyleFor(t *testing.T) {
	th := Default()
	tests := []struct {
		name  string
		tt    chroma.TokenType
		value string
		want  bool
	}{
		{"builtin", chroma.NameBuiltin, "sum", true},
		{"keyword", chroma.Keyword, "lambda", true},
		{"constant", chroma.KeywordConstant, "None", true},
		{"operator_word", chroma.OperatorWord, "and", true},
		{"string", chroma.LiteralStringDouble, `"x"`, true},
		{"number", chroma.LiteralNumberInteger, "2", true},
		{"operator", chroma.Operator, "+", true},
		{"binding", chroma.Name, "rows", true},
		{"plain_name", chroma.Name, "Pages", false},
		{"punctuation", chroma.Punctuation, "(", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := styleFor(tt.tt, tt.value, th); ok != tt.want {
				t.Errorf("styleFor(%v, %q) styled = %v, want %v", tt.tt, tt.value, ok, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Renderer
// ---------------------------------------------------------------------------

func testListing() *engine.Listing {
	return &engine.Listing{
		Collection: schema.Collection{
			ID:   "c1",
			Name: "Books",
			Schema: schema.Document{
				Fields: []schema.Field{
					{Name: "Title", Key: "title", Type: schema.Text},
					{Name: "Pages", Key: "pages", Type: schema.Number},
					{Name: "Ratio", Key: "ratio", Type: schema.Formula, Expression: "row.Pages / 0"},
				},
			},
		},
		Items: []map[string]any{
			{"id": int64(2), "title": "Emma", "pages": 412.0, "ratio": "Err: division by zero"},
			{"id": int64(1), "title": "Dune", "pages": nil, "ratio": ""},
		},
		Summaries: []rows.SummaryValue{{Name: "Total", Value: 412.0, Expression: "sum(rows.Pages)"}},
	}
}

func TestListing_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, nil).Listing(testListing()); err != nil {
		t.Fatalf("Listing() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Books", "Title", "Pages", "Emma", "412", "Dune", "Err: division by zero", "Total:", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "412.0") {
		t.Errorf("numbers should render without a trailing .0:\n%s", out)
	}
}

func TestListing_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, nil, AsJSON(true))
	if !r.JSON() {
		t.Fatal("JSON() = false")
	}
	if err := r.Listing(testListing()); err != nil {
		t.Fatalf("Listing() error: %v", err)
	}

	var got struct {
		Items     []map[string]any `json:"items"`
		Summaries []struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		} `json:"summaries"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got.Items) != 2 || got.Items[0]["title"] != "Emma" {
		t.Errorf("items = %v", got.Items)
	}
	if len(got.Summaries) != 1 || got.Summaries[0].Value != 412 {
		t.Errorf("summaries = %+v", got.Summaries)
	}
}

func TestCollections(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Get("light"))

	if err := r.Collections(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no collections") {
		t.Errorf("empty registry output = %q", buf.String())
	}

	buf.Reset()
	cs := []schema.Collection{
		{ID: "a", Name: "Books"},
		{ID: "b", Name: "Dune", ParentCollectionID: "a", ParentRowID: 7, ParentRowTitle: "Dune"},
		{ID: "c", Name: "Orphan", ParentCollectionID: "a", ParentRowID: 9},
	}
	if err := r.Collections(cs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Books", "Parent", "Dune", "#9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSchema(t *testing.T) {
	var buf bytes.Buffer
	c := schema.Collection{
		ID:   "c1",
		Name: "Books",
		Schema: schema.Document{
			Fields: []schema.Field{
				{Name: "Author", Key: "author", Type: schema.Relation, TargetCollectionID: "authors"},
				{Name: "Double", Key: "double", Type: schema.Formula, Expression: "row.Pages * 2"},
			},
			SummaryFormulas: []schema.SummaryFormula{{Name: "Total", Expression: "sum(rows.Pages)"}},
		},
	}
	if err := New(&buf, nil).Schema(c); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"-> authors", "row.Pages * 2", "Summary", "sum(rows.Pages)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEventsAndCompletions(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, nil)

	if err := r.Events(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no events") {
		t.Errorf("empty events output = %q", buf.String())
	}

	buf.Reset()
	err := r.Events([]engine.Event{{ID: 1, CollectionName: "Trips", Title: "Lisbon", Date: "2026-05-01", RecurrenceRule: "NONE"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Lisbon") || !strings.Contains(buf.String(), "2026-05-01") {
		t.Errorf("events output:\n%s", buf.String())
	}

	buf.Reset()
	if err := r.Completions([]completion.Item{{Label: "sum", Kind: completion.KindFunction, Detail: "function"}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "sum") || !strings.Contains(buf.String(), "function") {
		t.Errorf("completions output = %q", buf.String())
	}
}

func TestDone(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, nil).Done("row 3 added", map[string]int64{"id": 3}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "row 3 added" {
		t.Errorf("Done() = %q", buf.String())
	}

	buf.Reset()
	if err := New(&buf, nil, AsJSON(true)).Done("row 3 added", map[string]int64{"id": 3}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"id": 3`) {
		t.Errorf("Done() JSON = %q", buf.String())
	}
}

func TestCellTruncation(t *testing.T) {
	r := New(&bytes.Buffer{}, nil, WithCellWidth(8))

	tests := []struct {
		in   string
		want string
	}{
		{"short", "short"},
		{"exactly8", "exactly8"},
		{"much longer title", "much lo…"},
		{"multi\nline  text", "multi l…"},
		{"日本語のタイトル", "日本語…"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := r.cell(tt.in); got != tt.want {
				t.Errorf("cell(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if r := New(&bytes.Buffer{}, nil, WithCellWidth(2)); r.cellWidth != DefaultCellWidth {
		t.Errorf("cell width below minimum should be ignored, got %d", r.cellWidth)
	}
}

func TestJournal(t *testing.T) {
	var buf bytes.Buffer
	entries := []audit.Entry{
		{Timestamp: time.Now(), Op: audit.OpInsertRow, CollectionID: "c1", Target: "3"},
		{Timestamp: time.Now(), Op: audit.OpDeleteRow, CollectionID: "c1", Target: "9", Detail: "row 9 not found", IsError: true},
	}
	if err := New(&buf, nil).Journal(entries); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{audit.OpInsertRow, audit.OpDeleteRow, "row 9 not found", "error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

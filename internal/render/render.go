package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"
	"github.com/mattn/go-runewidth"

	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/completion"
	"github.com/sadopc/tabula/internal/engine"
	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/schema"
)

// DefaultCellWidth caps the display width of a table cell.
const DefaultCellWidth = 40

// Renderer writes command output either as themed tables or as JSON.
type Renderer struct {
	out       io.Writer
	theme     *Theme
	hl        *Highlighter
	json      bool
	cellWidth int
}

// Option configures a Renderer.
type Option func(*Renderer)

// AsJSON switches output to indented JSON.
func AsJSON(on bool) Option {
	return func(r *Renderer) { r.json = on }
}

// WithCellWidth overrides DefaultCellWidth. Values below 4 are ignored.
func WithCellWidth(n int) Option {
	return func(r *Renderer) {
		if n >= 4 {
			r.cellWidth = n
		}
	}
}

// New creates a Renderer writing to out. A nil theme selects Default.
func New(out io.Writer, th *Theme, opts ...Option) *Renderer {
	if th == nil {
		th = Default()
	}
	r := &Renderer{out: out, theme: th, hl: NewHighlighter(), cellWidth: DefaultCellWidth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSON reports whether the renderer emits JSON.
func (r *Renderer) JSON() bool { return r.json }

func (r *Renderer) writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')
	_, err = r.out.Write(data)
	return err
}

func (r *Renderer) println(s string) error {
	_, err := fmt.Fprintln(r.out, s)
	return err
}

// Done reports a completed mutation. JSON output carries v.
func (r *Renderer) Done(msg string, v any) error {
	if r.json {
		return r.writeJSON(v)
	}
	return r.println(r.theme.SuccessText.Render(msg))
}

// Collections prints the collection registry.
func (r *Renderer) Collections(cs []schema.Collection) error {
	if r.json {
		return r.writeJSON(cs)
	}
	if len(cs) == 0 {
		return r.println(r.theme.MutedText.Render("no collections"))
	}
	rows := make([][]string, 0, len(cs))
	for _, c := range cs {
		parent := ""
		if c.Nested() {
			parent = formula.Format(c.ParentRowTitle)
			if parent == "" {
				parent = "#" + strconv.FormatInt(c.ParentRowID, 10)
			}
		}
		rows = append(rows, []string{
			c.ID,
			r.cell(c.Name),
			strconv.Itoa(len(c.Schema.Fields)),
			strconv.Itoa(len(c.Schema.SummaryFormulas)),
			r.cell(parent),
		})
	}
	return r.println(r.table([]string{"ID", "Name", "Fields", "Summaries", "Parent"}, rows))
}

// Schema prints one collection's fields and summary formulas. Formula
// expressions are syntax highlighted.
func (r *Renderer) Schema(c schema.Collection) error {
	if r.json {
		return r.writeJSON(c)
	}
	var b strings.Builder
	b.WriteString(r.theme.Title.Render(c.Name))
	b.WriteString(r.theme.MutedText.Render("  " + c.ID))
	b.WriteByte('\n')

	rows := make([][]string, 0, len(c.Schema.Fields))
	for _, f := range c.Schema.Fields {
		var extra string
		switch f.Type {
		case schema.Formula:
			extra = r.hl.Highlight(r.truncate(f.Expression), r.theme)
		case schema.Relation:
			extra = "-> " + f.TargetCollectionID
		}
		rows = append(rows, []string{r.cell(f.Name), f.Key, string(f.Type), extra})
	}
	b.WriteString(r.table([]string{"Name", "Key", "Type", "Definition"}, rows))

	if len(c.Schema.SummaryFormulas) > 0 {
		b.WriteByte('\n')
		srows := make([][]string, 0, len(c.Schema.SummaryFormulas))
		for _, s := range c.Schema.SummaryFormulas {
			srows = append(srows, []string{r.cell(s.Name), r.hl.Highlight(r.truncate(s.Expression), r.theme)})
		}
		b.WriteString(r.table([]string{"Summary", "Expression"}, srows))
	}
	return r.println(b.String())
}

// Listing prints every row of a collection followed by its summaries.
func (r *Renderer) Listing(l *engine.Listing) error {
	if r.json {
		return r.writeJSON(l)
	}
	fields := l.Collection.Schema.Fields
	headers := make([]string, 0, 1+len(fields))
	headers = append(headers, "ID")
	for _, f := range fields {
		headers = append(headers, f.Name)
	}

	rows := make([][]string, 0, len(l.Items))
	for _, item := range l.Items {
		row := make([]string, 0, len(headers))
		row = append(row, r.value(item[schema.ColID]))
		for _, f := range fields {
			row = append(row, r.value(item[f.Key]))
		}
		rows = append(rows, row)
	}

	var b strings.Builder
	b.WriteString(r.theme.Title.Render(l.Collection.Name))
	b.WriteByte('\n')
	b.WriteString(r.table(headers, rows))
	for _, s := range l.Summaries {
		b.WriteByte('\n')
		b.WriteString(r.theme.Header.Render(s.Name + ":"))
		b.WriteString(r.value(s.Value))
	}
	return r.println(b.String())
}

// Events prints the calendar projection.
func (r *Renderer) Events(events []engine.Event) error {
	if r.json {
		return r.writeJSON(events)
	}
	if len(events) == 0 {
		return r.println(r.theme.MutedText.Render("no events"))
	}
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			r.cell(ev.Date),
			r.value(ev.Title),
			r.cell(ev.CollectionName),
			ev.RecurrenceRule,
			strconv.FormatBool(ev.IsAllDay),
		})
	}
	return r.println(r.table([]string{"Date", "Title", "Collection", "Repeats", "All day"}, rows))
}

// Completions prints formula completion candidates.
func (r *Renderer) Completions(items []completion.Item) error {
	if r.json {
		return r.writeJSON(items)
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.theme.Identifier.Render(it.Label))
		b.WriteString(r.theme.MutedText.Render("  " + it.Kind.String() + "  " + it.Detail))
	}
	return r.println(b.String())
}

// Journal prints audit entries, oldest first.
func (r *Renderer) Journal(entries []audit.Entry) error {
	if r.json {
		return r.writeJSON(entries)
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "ok"
		if e.IsError {
			status = r.theme.ErrorText.Render("error")
		}
		rows = append(rows, []string{
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Op,
			e.CollectionID,
			r.cell(e.Target),
			status,
			r.cell(e.Detail),
		})
	}
	return r.println(r.table([]string{"Time", "Op", "Collection", "Target", "Status", "Detail"}, rows))
}

// Expression prints a single highlighted expression.
func (r *Renderer) Expression(expr string) error {
	if r.json {
		return r.writeJSON(map[string]string{"expression": expr})
	}
	return r.println(r.hl.Highlight(expr, r.theme))
}

// table renders headers and rows with the theme's border and cell styles.
func (r *Renderer) table(headers []string, rows [][]string) string {
	th := r.theme
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.Header
			}
			return th.Cell
		})
	return t.Render()
}

// value formats a row value for a table cell. Missing values render as a
// muted dash and evaluation errors in the error style.
func (r *Renderer) value(v any) string {
	if v == nil {
		return r.theme.Null.Render("-")
	}
	s := r.cell(formula.Format(v))
	if strings.HasPrefix(s, "Err: ") {
		return r.theme.ErrorText.Render(s)
	}
	return s
}

// cell flattens newlines and truncates s to the cell width.
func (r *Renderer) cell(s string) string {
	return r.truncate(strings.Join(strings.Fields(s), " "))
}

func (r *Renderer) truncate(s string) string {
	if runewidth.StringWidth(s) <= r.cellWidth {
		return s
	}
	return runewidth.Truncate(s, r.cellWidth, "…")
}

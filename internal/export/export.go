// Package export writes a collection listing to CSV or JSON files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sadopc/tabula/internal/engine"
	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/schema"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DetectFormat returns format if set, otherwise the format implied by the
// extension of path.
func DetectFormat(format, path string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch f {
	case FormatCSV, FormatJSON:
		return f, nil
	case "":
		return "", fmt.Errorf("export: no format given and none implied by %q", path)
	}
	return "", fmt.Errorf("export: unknown format %q", f)
}

// columns returns the header labels and the item keys of a listing: the id
// followed by every field. Nested database fields are skipped.
func columns(l *engine.Listing) (labels, keys []string) {
	labels = append(labels, schema.ColID)
	keys = append(keys, schema.ColID)
	for _, f := range l.Collection.Schema.Fields {
		if f.Type == schema.NestedDatabase {
			continue
		}
		labels = append(labels, f.Name)
		keys = append(keys, f.Key)
	}
	return labels, keys
}

// CSV writes l as CSV with a header row of field display names. Values are
// formatted the way the table output shows them; missing values are empty.
func CSV(w io.Writer, l *engine.Listing) error {
	cw := csv.NewWriter(w)

	labels, keys := columns(l)
	if err := cw.Write(labels); err != nil {
		return err
	}

	record := make([]string, len(keys))
	for _, item := range l.Items {
		for i, k := range keys {
			record[i] = formula.Format(item[k])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// JSON writes l as a JSON array of objects keyed by storage key. Values
// keep their types.
func JSON(w io.Writer, l *engine.Listing) error {
	_, keys := columns(l)
	objects := make([]map[string]any, 0, len(l.Items))
	for _, item := range l.Items {
		obj := make(map[string]any, len(keys))
		for _, k := range keys {
			obj[k] = item[k]
		}
		objects = append(objects, obj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(objects)
}

// ToFile writes l to path in the given format and returns the number of
// rows written.
func ToFile(path, format string, l *engine.Listing) (int, error) {
	format, err := DetectFormat(format, path)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		err = CSV(f, l)
	default:
		err = JSON(f, l)
	}
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	return len(l.Items), f.Close()
}

// Package audit keeps a JSON-lines journal of schema and row mutations.
package audit

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Journal operations.
const (
	OpCreateCollection = "collection.create"
	OpRenameCollection = "collection.rename"
	OpDeleteCollection = "collection.delete"
	OpAddField         = "field.add"
	OpUpdateField      = "field.update"
	OpDeleteField      = "field.delete"
	OpAddFormula       = "formula.add"
	OpUpdateFormula    = "formula.update"
	OpDeleteFormula    = "formula.delete"
	OpAddSummary       = "summary.add"
	OpUpdateSummary    = "summary.update"
	OpDeleteSummary    = "summary.delete"
	OpInsertRow        = "row.insert"
	OpUpdateRow        = "row.update"
	OpDeleteRow        = "row.delete"
	OpMigrate          = "registry.migrate"
)

// Entry is one journal record. Target names the field, formula or row the
// operation touched.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Op           string    `json:"op"`
	CollectionID string    `json:"collection_id,omitempty"`
	Target       string    `json:"target,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	IsError      bool      `json:"is_error"`
}

// Journal appends entries to a file.
type Journal struct {
	mu        sync.Mutex
	f         *os.File
	enc       *json.Encoder
	path      string
	maxSizeMB int
}

// New opens the journal at path in append mode (0o600), creating parent
// directories (0o700). If maxSizeMB > 0 the file is rotated to path+".1"
// once it exceeds that size.
func New(path string, maxSizeMB int) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &Journal{
		f:         f,
		enc:       json.NewEncoder(f),
		path:      path,
		maxSizeMB: maxSizeMB,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return f, nil
}

// Log writes e as one JSON line. A zero Timestamp is set to now. Safe for
// concurrent use; a nil Journal discards the entry.
func (j *Journal) Log(e Entry) {
	if j == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	_ = j.enc.Encode(e)

	if j.maxSizeMB > 0 {
		j.rotateIfNeeded()
	}
}

// Record logs the outcome of op. A non-nil err marks the entry as an error
// and becomes its detail.
func (j *Journal) Record(op, collectionID, target, detail string, err error) {
	if j == nil {
		return
	}
	e := Entry{Op: op, CollectionID: collectionID, Target: target, Detail: detail}
	if err != nil {
		e.IsError = true
		e.Detail = err.Error()
	}
	j.Log(e)
}

// Close closes the file. Closing a nil Journal is a no-op.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

func (j *Journal) rotateIfNeeded() {
	info, err := j.f.Stat()
	if err != nil || info.Size() < int64(j.maxSizeMB)*1024*1024 {
		return
	}
	_ = j.f.Close()
	_ = os.Rename(j.path, j.path+".1")

	f, err := openAppend(j.path)
	if err != nil {
		return
	}
	j.f = f
	j.enc = json.NewEncoder(f)
}

// Tail returns the last n entries of the journal at path, oldest first.
// Lines that do not decode are skipped. A missing file yields no entries.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		out = append(out, e)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("audit: read: %w", err)
	}
	return out, nil
}

// SanitizeDSN strips credentials from a DSN before it is logged.
func SanitizeDSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://", "mysql://", "duckdb://"} {
		if strings.HasPrefix(strings.ToLower(dsn), prefix) {
			u, err := url.Parse(dsn)
			if err != nil {
				return dsn
			}
			if u.User != nil {
				u.User = url.User("***")
			}
			return u.String()
		}
	}
	dsn = reMySQLCreds.ReplaceAllString(dsn, "***@tcp(")
	return rePGPassword.ReplaceAllString(dsn, "password=***")
}

var (
	reMySQLCreds = regexp.MustCompile(`[^@]+@tcp\(`)
	rePGPassword = regexp.MustCompile(`password=[^\s]+`)
)

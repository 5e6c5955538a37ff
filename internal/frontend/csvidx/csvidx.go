// Package csvidx loads CSV-backed value sets referenced from rule text
// (`attr = "basename" [column]`), building an ordered value index over a
// chosen column. It follows the read-whole-file-then-index approach used by
// the example corpus's CSV tooling (zboralski-unflutter's parity reports),
// adapted from writing rows to reading and indexing them.
package csvidx

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/e9rw/e9rw/internal/frontend/ast"
)

// Loader loads and caches CSV tables by basename so repeated references to
// the same table within a rule set share one parse, matching spec.md
// §4.B's "a basename is cached so repeated references share the loaded
// table" requirement.
type Loader struct {
	dir    string
	tables map[string][][]string
}

// NewLoader returns a Loader resolving "basename.csv" relative to dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, tables: make(map[string][][]string)}
}

// Build loads basename.csv (if not already cached) and returns an ordered
// value index over the given 0-based column.
func (l *Loader) Build(basename string, column int) (*ast.ValueIndex, error) {
	records, err := l.load(basename)
	if err != nil {
		return nil, err
	}

	idx := ast.NewValueIndex()
	for i, record := range records {
		if column >= len(record) {
			return nil, fmt.Errorf("csv %q: row %d has %d columns, column %d out of range", basename, i, len(record), column)
		}
		value := parseCell(record[column])
		idx.Add(value, record)
	}
	return idx, nil
}

func (l *Loader) load(basename string) ([][]string, error) {
	if records, ok := l.tables[basename]; ok {
		return records, nil
	}
	path := basename
	if !strings.HasSuffix(path, ".csv") {
		path += ".csv"
	}
	if l.dir != "" && !strings.HasPrefix(path, "/") {
		path = l.dir + "/" + path
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %q: %w", path, err)
	}

	l.tables[basename] = records
	return records, nil
}

// parseCell classifies a raw CSV cell per spec.md §4.B's "fixed set of
// recognized cell types (integer in multiple bases, string, boolean)":
// an integer (decimal/hex/binary), a boolean literal, or else a string.
func parseCell(cell string) ast.MatchValue {
	trimmed := strings.TrimSpace(cell)
	switch strings.ToLower(trimmed) {
	case "true":
		return ast.Integer(1)
	case "false":
		return ast.Integer(0)
	}
	if v, err := parseInt(trimmed); err == nil {
		return ast.Integer(v)
	}
	return ast.StringValue(trimmed)
}

func parseInt(s string) (int64, error) {
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return strconv.ParseInt(s[2:], 16, 64)
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		return strconv.ParseInt(s[2:], 2, 64)
	default:
		return strconv.ParseInt(s, 10, 64)
	}
}

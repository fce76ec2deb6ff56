// Package ingest turns supplier files into raw rows.
//
// CSV files are decoded to UTF-8 first: byte order marks are honored, and
// files without one are detected as UTF-8, EUC-JP or Shift_JIS. XLSX
// workbooks are read from their first sheet. Either way the first non-blank
// row is the header and every later non-blank row becomes a
// [mapping.RawRow] keyed by header name.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

var (
	// ErrUnsupportedFile is returned for file extensions no reader handles.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrNoHeader is returned when a file has no non-blank row.
	ErrNoHeader = errors.New("file has no header row")
)

// Table is the parsed content of one supplier file.
type Table struct {
	Headers  []string
	Rows     []mapping.RawRow
	Encoding string
	Warnings []Warning
}

// Warning is a non-fatal problem found while reading.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Options tune how files are read.
type Options struct {
	// Encoding forces the text encoding of CSV input. Empty or "auto" detects it.
	Encoding string
}

// Supported reports whether name has an extension Read can handle.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Read parses r according to the extension of name.
func Read(name string, r io.Reader, opts Options) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		return ReadCSV(r, opts)
	case ".xlsx":
		return ReadXLSX(r)
	case ".xls":
		return nil, fmt.Errorf("%w: %s (save legacy workbooks as .xlsx)", ErrUnsupportedFile, ext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string, opts Options) (*Table, error) {
	if !Supported(path) {
		return Read(path, nil, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	t, err := Read(path, f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ----------------------------------------------------------------------------
// Row assembly shared by the CSV and XLSX readers
// ----------------------------------------------------------------------------

// tableBuilder turns header and cell slices into raw rows.
type tableBuilder struct {
	table *Table
	index []string // column position -> header, "" when the column is ignored
	// keepBlank keeps empty cells as empty strings instead of omitting them.
	keepBlank bool
}

func newTableBuilder(keepBlank bool) *tableBuilder {
	return &tableBuilder{table: &Table{}, keepBlank: keepBlank}
}

// header records the header row. Blank and repeated names are ignored.
func (b *tableBuilder) header(cells []string, line int) {
	seen := make(map[string]bool, len(cells))
	b.index = make([]string, len(cells))
	for i, c := range cells {
		name := CleanHeader(c)
		switch {
		case name == "":
			continue
		case seen[name]:
			b.warn(line, fmt.Sprintf("duplicate column %q ignored", name))
			continue
		}
		seen[name] = true
		b.index[i] = name
		b.table.Headers = append(b.table.Headers, name)
	}
}

// row appends one data row. Cells beyond the header are dropped.
func (b *tableBuilder) row(cells []string, line int) {
	if len(cells) > len(b.index) {
		extra := cells[len(b.index):]
		if !isBlankRow(extra) {
			b.warn(line, fmt.Sprintf("row has %d columns, expected %d; extra columns ignored", len(cells), len(b.index)))
		}
		cells = cells[:len(b.index)]
	}

	values := make(map[string]string, len(b.index))
	for i, name := range b.index {
		if name == "" {
			continue
		}
		if i >= len(cells) {
			if b.keepBlank {
				values[name] = ""
			}
			continue
		}
		cell := CleanCell(cells[i])
		if cell == "" && !b.keepBlank {
			continue
		}
		values[name] = cell
	}
	b.table.Rows = append(b.table.Rows, mapping.NewRawRow(len(b.table.Rows)+1, values))
}

func (b *tableBuilder) warn(line int, msg string) {
	b.table.Warnings = append(b.table.Warnings, Warning{Row: line, Message: msg})
}

func (b *tableBuilder) hasHeader() bool { return b.index != nil }

// feed routes a physical row to header or row, skipping blank ones.
func (b *tableBuilder) feed(cells []string, line int) {
	if isBlankRow(cells) {
		return
	}
	if !b.hasHeader() {
		b.header(cells, line)
		return
	}
	b.row(cells, line)
}

func (b *tableBuilder) finish() (*Table, error) {
	if !b.hasHeader() || len(b.table.Headers) == 0 {
		return nil, ErrNoHeader
	}
	return b.table, nil
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package ingest

import (
	"path/filepath"
	"regexp"
	"strings"
)

// FileType selects the staging table a file is imported into.
type FileType string

const (
	FileTypeStock FileType = "stock"
	FileTypePrice FileType = "price"
)

// Valid reports whether t is a known file type.
func (t FileType) Valid() bool {
	return t == FileTypeStock || t == FileTypePrice
}

// ParseFileType accepts "stock" and "price" in any case.
func ParseFileType(s string) (FileType, bool) {
	t := FileType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// DetectFileType infers the file type from keywords in a file name:
// stock or zaiko for stock files, price or tanka for price files.
func DetectFileType(name string) (FileType, bool) {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(base, "stock"), strings.Contains(base, "zaiko"):
		return FileTypeStock, true
	case strings.Contains(base, "price"), strings.Contains(base, "tanka"):
		return FileTypePrice, true
	}
	return "", false
}

var (
	supplierPrefix = regexp.MustCompile(`^[a-zA-Z_]+`)
	typeKeyword    = regexp.MustCompile(`(?i)_(stock|zaiko|price|tanka)`)
)

// SupplierFromFileName extracts the supplier key from names such as
// "acme_stock_20240101.csv": the leading run of letters and underscores, cut
// before the file type keyword.
func SupplierFromFileName(name string) (string, bool) {
	base := filepath.Base(name)
	lead := supplierPrefix.FindString(base)
	if loc := typeKeyword.FindStringIndex(lead); loc != nil {
		lead = lead[:loc[0]]
	}
	lead = strings.Trim(lead, "_")
	return lead, lead != ""
}

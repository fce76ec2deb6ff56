package rules

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// csvHeader is the column order of exported basic rules.
const csvHeader = "supplier,file_field,db_field,type,condition,fixed_value,priority"

// utf8BOM lets spreadsheet tools detect the encoding of exported files.
const utf8BOM = "\uFEFF"

// WriteCSV writes basic rules as CSV with a BOM. Every data cell is quoted so
// leading zeros and spaces survive a round trip through a spreadsheet.
func WriteCSV(w io.Writer, rules []mapping.MappingRule) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(utf8BOM)
	bw.WriteString(csvHeader)

	for _, r := range rules {
		cells := []string{
			r.Supplier,
			r.FileField,
			r.DBField,
			r.Type,
			r.Condition,
			r.FixedValue,
			strconv.Itoa(r.Priority),
		}
		bw.WriteByte('\n')
		for i, c := range cells {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(quoteCell(c))
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func quoteCell(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ExportFileName is the download name for a supplier's exported rules.
func ExportFileName(supplier, ext string, now time.Time) string {
	return fmt.Sprintf("mapping_rules_%s_%s.%s", supplier, now.Format("2006-01-02"), ext)
}

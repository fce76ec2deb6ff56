package ingest

import "strings"

// CleanHeader normalizes a header cell: surrounding whitespace, stray byte
// order marks, Excel formula wrappers and quotes are removed.
func CleanHeader(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	s = unwrapFormula(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// CleanCell removes the Excel text-formula wrapper (="00123") that
// spreadsheet exports use to keep leading zeros. Whitespace is preserved;
// trimming is left to the supplier's rules.
func CleanCell(s string) string {
	return unwrapFormula(s)
}

func unwrapFormula(s string) string {
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		return s[2 : len(s)-1]
	}
	return s
}

package core

// convert.go turns normalized record values into the pgtype values the
// staging tables take.
//
// Supplier files are messy even after mapping: numbers arrive with currency
// symbols, thousands separators or accounting parentheses, and whole numbers
// arrive as "10.0". Empty and missing values become SQL NULL. A value that is
// present but cannot be converted is a row error, not a NULL.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/backoffice/internal/database"
	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ToPgText converts a value to pgtype.Text.
// Returns invalid if the value is missing or only whitespace.
func ToPgText(v mapping.Value) pgtype.Text {
	s := strings.TrimSpace(v.Text())
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func isBlank(v mapping.Value) bool {
	return strings.TrimSpace(v.Text()) == ""
}

// ToPgNumeric converts a value to pgtype.Numeric.
func ToPgNumeric(v mapping.Value) (pgtype.Numeric, error) {
	if isBlank(v) {
		return pgtype.Numeric{Valid: false}, nil
	}

	var s string
	switch v.Kind() {
	case mapping.KindInteger, mapping.KindDecimal:
		s = v.Text()
	default:
		s = mapping.CleanNumber(v.Text())
	}
	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{}, fmt.Errorf("invalid number %q", v.Text())
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("invalid number %q: %w", v.Text(), err)
	}
	return n, nil
}

// ToPgInt4 converts a value to pgtype.Int4. Whole decimals such as "10.0"
// are accepted; fractions are not.
func ToPgInt4(v mapping.Value) (pgtype.Int4, error) {
	if isBlank(v) {
		return pgtype.Int4{Valid: false}, nil
	}

	if i, ok := v.Int(); ok {
		return int4(i, v)
	}

	f, ok := v.Float()
	if !ok {
		parsed, err := strconv.ParseFloat(mapping.CleanNumber(v.Text()), 64)
		if err != nil {
			return pgtype.Int4{}, fmt.Errorf("invalid number %q", v.Text())
		}
		f = parsed
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return pgtype.Int4{}, fmt.Errorf("invalid number %q: not a whole number", v.Text())
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return pgtype.Int4{}, fmt.Errorf("invalid number %q: out of range", v.Text())
	}
	return pgtype.Int4{Int32: int32(f), Valid: true}, nil
}

func int4(i int64, v mapping.Value) (pgtype.Int4, error) {
	if i > math.MaxInt32 || i < math.MinInt32 {
		return pgtype.Int4{}, fmt.Errorf("invalid number %q: out of range", v.Text())
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}, nil
}

// ----------------------------------------------------------------------------
// Staging rows
// ----------------------------------------------------------------------------

// fieldError names the field a conversion failed on.
func fieldError(field string, err error) error {
	return fmt.Errorf("%s: %w", field, err)
}

// StockParams builds the stock staging row for rec. ImportNo is left for
// the session to fill in.
func StockParams(rec *mapping.Record) (database.UpsertStockParams, error) {
	p := database.UpsertStockParams{
		SupplierID:     strings.TrimSpace(rec.Get(mapping.FieldSupplierID).Text()),
		SupplierMaker:  ToPgText(rec.Get(mapping.FieldSupplierMaker)),
		SupplierPartNo: strings.TrimSpace(rec.Get(mapping.FieldSupplierPartNo).Text()),
	}

	var err error
	if p.Moq, err = ToPgInt4(rec.Get(mapping.FieldMOQ)); err != nil {
		return p, fieldError(mapping.FieldMOQ, err)
	}
	if p.Spq, err = ToPgInt4(rec.Get(mapping.FieldSPQ)); err != nil {
		return p, fieldError(mapping.FieldSPQ, err)
	}
	if p.Stock, err = ToPgInt4(rec.Get(mapping.FieldStock)); err != nil {
		return p, fieldError(mapping.FieldStock, err)
	}
	return p, nil
}

// PriceParams builds the price staging row for rec.
func PriceParams(rec *mapping.Record) (database.UpsertPriceParams, error) {
	p := database.UpsertPriceParams{
		SupplierID:     strings.TrimSpace(rec.Get(mapping.FieldSupplierID).Text()),
		SupplierMaker:  ToPgText(rec.Get(mapping.FieldSupplierMaker)),
		SupplierPartNo: strings.TrimSpace(rec.Get(mapping.FieldSupplierPartNo).Text()),
		Currency:       ToPgText(rec.Get(mapping.FieldCurrency)),
	}

	var err error
	if p.Quantity, err = ToPgInt4(rec.Get(mapping.FieldQuantity)); err != nil {
		return p, fieldError(mapping.FieldQuantity, err)
	}
	if p.Price, err = ToPgNumeric(rec.Get(mapping.FieldPrice)); err != nil {
		return p, fieldError(mapping.FieldPrice, err)
	}
	return p, nil
}

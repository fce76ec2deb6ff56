package mapping

import "fmt"

// Normalized field names the staging tables understand.
const (
	FieldSupplierID     = "supplier_id"
	FieldSupplierMaker  = "supplier_maker"
	FieldSupplierPartNo = "supplier_part_no"
	FieldMOQ            = "moq"
	FieldSPQ            = "spq"
	FieldStock          = "stock"
	FieldPrice          = "price"
	FieldCurrency       = "currency"
	FieldQuantity       = "quantity"
)

// Validator checks a normalized record before it is persisted.
type Validator struct {
	Required    []string
	NonNegative []string
}

// DefaultValidator requires the supplier key and part number and rejects
// negative stock, price, moq and spq.
func DefaultValidator() Validator {
	return Validator{
		Required:    []string{FieldSupplierID, FieldSupplierPartNo},
		NonNegative: []string{FieldStock, FieldPrice, FieldMOQ, FieldSPQ},
	}
}

// Validate returns one message per violated check, in field order.
// The record is valid when the result is empty.
func (v Validator) Validate(rec *Record) []string {
	var errs []string

	for _, f := range v.Required {
		val := rec.Get(f)
		if val.IsEmpty() {
			errs = append(errs, fmt.Sprintf("%s is required", f))
		}
	}

	for _, f := range v.NonNegative {
		if n, ok := rec.Get(f).Number(); ok && n < 0 {
			errs = append(errs, fmt.Sprintf("%s cannot be negative", f))
		}
	}

	return errs
}

// Validate checks rec with DefaultValidator and reports whether it passed.
func Validate(rec *Record) (bool, []string) {
	errs := DefaultValidator().Validate(rec)
	return len(errs) == 0, errs
}

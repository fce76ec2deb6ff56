package mapping

import (
	"encoding/json"
	"sort"
)

// RawRow is one row as read from a supplier file, keyed by the file's own
// column names. RowNo is the 1-based data row number used in error reports.
type RawRow struct {
	RowNo  int
	Fields map[string]Value
}

// NewRawRow builds a RawRow from string cells, the shape CSV readers produce.
func NewRawRow(rowNo int, cells map[string]string) RawRow {
	fields := make(map[string]Value, len(cells))
	for k, v := range cells {
		fields[k] = String(v)
	}
	return RawRow{RowNo: rowNo, Fields: fields}
}

// Get returns the value of column name, or Missing.
func (r RawRow) Get(name string) Value {
	if r.Fields == nil {
		return Missing()
	}
	return r.Fields[name]
}

// Record is a row in the normalized field-name schema. It is created and
// mutated by a single row-processing call and never shared between rows.
//
// A record produced by ApplyBasic remembers the raw row it came from so that
// advanced rules can read supplier columns no basic rule mapped. Those
// columns are visible through Lookup only and never become output fields.
type Record struct {
	RowNo  int
	fields map[string]Value
	source map[string]Value
}

// NewRecord returns an empty record tagged with rowNo.
func NewRecord(rowNo int) *Record {
	return &Record{RowNo: rowNo, fields: make(map[string]Value)}
}

// RecordFrom builds a record from already-normalized values.
func RecordFrom(rowNo int, fields map[string]Value) *Record {
	rec := NewRecord(rowNo)
	for k, v := range fields {
		rec.Set(k, v)
	}
	return rec
}

// Get returns the value of field, or Missing when it was never assigned.
func (r *Record) Get(field string) Value {
	return r.fields[field]
}

// Lookup returns field from the record, falling back to the raw column of
// the same name.
func (r *Record) Lookup(field string) Value {
	if v, ok := r.fields[field]; ok {
		return v
	}
	return r.source[field]
}

// WithSource attaches the raw columns used by Lookup.
func (r *Record) WithSource(row RawRow) *Record {
	r.source = row.Fields
	return r
}

// Has reports whether field has been assigned a non-missing value.
func (r *Record) Has(field string) bool {
	v, ok := r.fields[field]
	return ok && !v.IsMissing()
}

// Set assigns field, overwriting any earlier assignment. Assigning Missing
// removes the field.
func (r *Record) Set(field string, v Value) {
	if v.IsMissing() {
		delete(r.fields, field)
		return
	}
	r.fields[field] = v
}

// Len returns the number of assigned fields.
func (r *Record) Len() int { return len(r.fields) }

// Fields returns the assigned field names in sorted order.
func (r *Record) Fields() []string {
	names := make([]string, 0, len(r.fields))
	for k := range r.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the record's values.
func (r *Record) Map() map[string]Value {
	out := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of r.
func (r *Record) Clone() *Record {
	c := RecordFrom(r.RowNo, r.fields)
	c.source = r.source
	return c
}

// MarshalJSON renders the record as a flat JSON object.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

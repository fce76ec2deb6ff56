// Package mapping converts supplier file rows into normalized records.
//
// Rules are data, loaded per supplier by the caller and handed in as a
// [RuleSet] snapshot. The package performs no I/O and never talks to storage.
//
// # Pipeline
//
// Each raw row passes through four stages:
//
//  1. [ApplyBasic] renames columns to normalized fields, applies fixed
//     values and coerces types. Problems become warnings.
//  2. [Engine.ApplyAdvanced] runs value mappings, skip conditions,
//     calculations and text transforms in priority order. A failing rule
//     becomes an error string and the next rule still runs.
//  3. [Validator.Validate] checks required fields and non-negative numbers.
//  4. The caller persists accepted rows and logs the rest.
//
// [Processor] bundles the stages for one rule set and can process a batch of
// rows concurrently while keeping outcomes in input order.
//
// # Formulas
//
// Calculation rules never reach a general interpreter. After variables are
// substituted the text must contain only digits, operators, parentheses,
// dots and spaces; it is then parsed by [Evaluate].
package mapping

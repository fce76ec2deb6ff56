package core

// preview.go runs rules against sample data without persisting anything.
//
// The rule editors call TestBasic, TestAdvanced and TestRules with one
// hand-typed row. PreviewImport runs a whole uploaded file through the same
// Processor an import uses and reports what the import would do.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/backoffice/internal/mapping"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

// Sample is one test row as decoded from a request body.
type Sample map[string]any

func (s Sample) values() (map[string]mapping.Value, error) {
	out := make(map[string]mapping.Value, len(s))
	for k, raw := range s {
		v, err := mapping.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: sample field %q: %v", rules.ErrInvalidRule, k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s Sample) rawRow() (mapping.RawRow, error) {
	fields, err := s.values()
	if err != nil {
		return mapping.RawRow{}, err
	}
	return mapping.RawRow{RowNo: 1, Fields: fields}, nil
}

// BasicTestResult is the outcome of TestBasic.
type BasicTestResult struct {
	MappedData   *mapping.Record `json:"mapped_data"`
	Warnings     []string        `json:"warnings"`
	RulesApplied int             `json:"mapping_rules_applied"`
}

// TestBasic maps sample through the supplier's basic rules.
func (s *Service) TestBasic(ctx context.Context, supplier string, sample Sample) (BasicTestResult, error) {
	list, err := s.rules.BasicRules(ctx, strings.TrimSpace(supplier))
	if err != nil {
		return BasicTestResult{}, err
	}
	if len(list) == 0 {
		return BasicTestResult{}, fmt.Errorf("supplier %q: %w", supplier, rules.ErrNotFound)
	}
	row, err := sample.rawRow()
	if err != nil {
		return BasicTestResult{}, err
	}

	mapping.SortBasic(list)
	res := mapping.ApplyBasic(row, list)
	return BasicTestResult{
		MappedData:   res.Record,
		Warnings:     nonNil(res.Warnings),
		RulesApplied: len(list),
	}, nil
}

// AdvancedTestResult is the outcome of TestAdvanced.
type AdvancedTestResult struct {
	OriginalData  *mapping.Record `json:"original_data"`
	ProcessedData *mapping.Record `json:"processed_data"`
	ShouldSkip    bool            `json:"should_skip"`
	Errors        []string        `json:"errors"`
	RulesApplied  int             `json:"rules_applied"`
}

// TestAdvanced applies the supplier's active advanced rules to sample, which
// is taken as an already-mapped record.
func (s *Service) TestAdvanced(ctx context.Context, supplier string, sample Sample) (AdvancedTestResult, error) {
	list, err := s.rules.AdvancedRules(ctx, strings.TrimSpace(supplier))
	if err != nil {
		return AdvancedTestResult{}, err
	}
	fields, err := sample.values()
	if err != nil {
		return AdvancedTestResult{}, err
	}

	set := mapping.NewRuleSet(supplier, nil, list)
	original := mapping.RecordFrom(1, fields)
	res := mapping.NewEngine(s.logger).ApplyAdvanced(original.Clone(), set.Advanced)
	return AdvancedTestResult{
		OriginalData:  original,
		ProcessedData: res.Record,
		ShouldSkip:    res.Skip,
		Errors:        nonNil(res.Errors),
		RulesApplied:  len(set.Advanced),
	}, nil
}

// RuleTestResult is the outcome of TestRules.
type RuleTestResult struct {
	mapping.RowOutcome
	BasicRulesApplied    int `json:"basic_rules_applied"`
	AdvancedRulesApplied int `json:"advanced_rules_applied"`
}

// TestRules runs sample through basic mapping, advanced rules and
// validation exactly as an import would.
func (s *Service) TestRules(ctx context.Context, supplier string, sample Sample) (RuleTestResult, error) {
	set, err := s.loadRuleSet(ctx, supplier)
	if err != nil {
		return RuleTestResult{}, err
	}
	row, err := sample.rawRow()
	if err != nil {
		return RuleTestResult{}, err
	}

	out := s.processor(set).ProcessRow(row)
	return RuleTestResult{
		RowOutcome:           out,
		BasicRulesApplied:    len(set.Basic),
		AdvancedRulesApplied: len(set.Advanced),
	}, nil
}

// ----------------------------------------------------------------------------
// File preview
// ----------------------------------------------------------------------------

// MaxPreviewSamples caps each sample list of a preview.
const MaxPreviewSamples = 20

// RowPreview is one accepted row as it would be staged.
type RowPreview struct {
	RowNo  int             `json:"row_no"`
	Record *mapping.Record `json:"record"`
}

// ErrorPreview is one row that would be logged.
type ErrorPreview struct {
	RowNo   int      `json:"row_no"`
	Errors  []string `json:"errors"`
	Skipped bool     `json:"skipped"`
}

// PreviewResponse reports what importing a file would do.
type PreviewResponse struct {
	Summary          mapping.Summary `json:"summary"`
	Headers          []string        `json:"headers"`
	Encoding         string          `json:"encoding,omitempty"`
	UnmappedColumns  []string        `json:"unmapped_columns"`
	RowSamples       []RowPreview    `json:"row_samples"`
	ErrorSamples     []ErrorPreview  `json:"error_samples"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

// PreviewImport processes req without opening an import run.
func (s *Service) PreviewImport(ctx context.Context, req ImportRequest) (PreviewResponse, error) {
	start := time.Now()
	if err := req.validate(); err != nil {
		return PreviewResponse{}, err
	}
	set, err := s.loadRuleSet(ctx, req.Supplier)
	if err != nil {
		return PreviewResponse{}, err
	}

	outcomes, err := s.processor(set).ProcessAll(ctx, req.Table.Rows, s.workers)
	if err != nil {
		return PreviewResponse{}, fmt.Errorf("process rows: %w", err)
	}

	resp := PreviewResponse{
		Summary:         mapping.Summarize(outcomes),
		Headers:         req.Table.Headers,
		Encoding:        req.Table.Encoding,
		UnmappedColumns: unmappedColumns(req.Table.Headers, set.Basic),
		RowSamples:      []RowPreview{},
		ErrorSamples:    []ErrorPreview{},
	}
	for _, o := range outcomes {
		if o.Accepted() && len(resp.RowSamples) < MaxPreviewSamples {
			resp.RowSamples = append(resp.RowSamples, RowPreview{RowNo: o.RowNo, Record: o.Record})
		}
		if errs := o.Errors(); len(errs) > 0 && len(resp.ErrorSamples) < MaxPreviewSamples {
			resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{RowNo: o.RowNo, Errors: errs, Skipped: o.Skipped})
		}
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// unmappedColumns lists file headers no basic rule reads.
func unmappedColumns(headers []string, basic []mapping.MappingRule) []string {
	used := make(map[string]bool, len(basic))
	for _, r := range basic {
		used[r.FileField] = true
	}
	out := []string{}
	for _, h := range headers {
		if !used[h] {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package mapping

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RowOutcome is everything the import side needs to decide whether a row is
// persisted, skipped or logged as an error.
type RowOutcome struct {
	RowNo            int      `json:"row_no"`
	Record           *Record  `json:"record,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	RuleErrors       []string `json:"rule_errors,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	Skipped          bool     `json:"skipped"`
}

// Accepted reports whether the row should be persisted.
func (o RowOutcome) Accepted() bool {
	return !o.Skipped && len(o.ValidationErrors) == 0
}

// Errors returns rule errors followed by validation errors.
func (o RowOutcome) Errors() []string {
	out := make([]string, 0, len(o.RuleErrors)+len(o.ValidationErrors))
	out = append(out, o.RuleErrors...)
	return append(out, o.ValidationErrors...)
}

// Processor runs raw rows through basic mapping, advanced rules and
// validation for one rule set snapshot.
type Processor struct {
	rules     RuleSet
	engine    *Engine
	validator Validator
	prepare   func(*Record)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithValidator replaces DefaultValidator.
func WithValidator(v Validator) ProcessorOption {
	return func(p *Processor) { p.validator = v }
}

// WithLogger routes rule failures to logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.engine = NewEngine(logger) }
}

// WithDefaults assigns fields that basic mapping left unset before advanced
// rules run. Used to seed supplier_id from the supplier key.
func WithDefaults(defaults map[string]Value) ProcessorOption {
	return func(p *Processor) {
		p.prepare = func(rec *Record) {
			for k, v := range defaults {
				if !rec.Has(k) {
					rec.Set(k, v)
				}
			}
		}
	}
}

// NewProcessor creates a processor bound to rules.
func NewProcessor(rules RuleSet, opts ...ProcessorOption) *Processor {
	p := &Processor{
		rules:     rules,
		engine:    NewEngine(nil),
		validator: DefaultValidator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rules returns the snapshot the processor was built with.
func (p *Processor) Rules() RuleSet { return p.rules }

// ProcessRow maps, transforms and validates one row. Validation is not run
// on skipped rows.
func (p *Processor) ProcessRow(row RawRow) RowOutcome {
	basic := ApplyBasic(row, p.rules.Basic)
	if p.prepare != nil {
		p.prepare(basic.Record)
	}

	adv := p.engine.ApplyAdvanced(basic.Record, p.rules.Advanced)

	out := RowOutcome{
		RowNo:      row.RowNo,
		Record:     adv.Record,
		Warnings:   basic.Warnings,
		RuleErrors: adv.Errors,
		Skipped:    adv.Skip,
	}
	if !out.Skipped {
		out.ValidationErrors = p.validator.Validate(adv.Record)
	}
	return out
}

// ProcessAll processes rows with up to workers goroutines. Outcomes are
// returned in input order, so row numbers stay attributable. Cancelling ctx
// stops dispatching new rows and returns ctx.Err().
func (p *Processor) ProcessAll(ctx context.Context, rows []RawRow, workers int) ([]RowOutcome, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]RowOutcome, len(rows))

	if workers == 1 {
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = p.ProcessRow(row)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.ProcessRow(row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary counts outcomes the way the import log reports them.
type Summary struct {
	Total    int `json:"total_rows"`
	Accepted int `json:"success_rows"`
	Skipped  int `json:"skipped_rows"`
	Errors   int `json:"error_rows"`
}

// Summarize tallies outcomes. Rows with only rule errors still count as
// accepted.
func Summarize(outcomes []RowOutcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.Skipped++
		case len(o.ValidationErrors) > 0:
			s.Errors++
		default:
			s.Accepted++
		}
	}
	return s
}

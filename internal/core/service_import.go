package core

// service_import.go is the import orchestrator: one parsed file becomes one
// import run.
//
// Row policy:
//   - skipped rows are counted and never staged
//   - advanced rule errors are logged, but the row still proceeds
//   - validation errors make the row an error row; it is logged, not staged
//   - a row whose values cannot be converted for staging is an error row
//
// Everything staged or logged for the file commits in one transaction. A
// failure that stops the file rolls the transaction back and marks the run
// failed; no partial data is left behind.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/backoffice/internal/ingest"
	"github.com/JonMunkholm/backoffice/internal/mapping"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

// DefaultImportTimeout bounds one import when neither the caller nor the
// options set a deadline.
const DefaultImportTimeout = 10 * time.Minute

// MaxResultErrors caps the error entries returned in an ImportResult. The
// full list is always in the error log.
const MaxResultErrors = 100

func (r ImportRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Supplier) == "":
		return fmt.Errorf("%w: supplier is required", ErrInvalidImport)
	case !r.FileType.Valid():
		return fmt.Errorf("%w: unknown file type %q", ErrInvalidImport, r.FileType)
	case r.Table == nil:
		return fmt.Errorf("%w: no rows", ErrInvalidImport)
	}
	return nil
}

// loadRuleSet returns the supplier's rule snapshot. A supplier without
// basic rules cannot be imported.
func (s *Service) loadRuleSet(ctx context.Context, supplier string) (mapping.RuleSet, error) {
	supplier = strings.TrimSpace(supplier)
	set, err := rules.Load(ctx, s.rules, supplier)
	if err != nil {
		return mapping.RuleSet{}, fmt.Errorf("load rules for %q: %w", supplier, err)
	}
	if len(set.Basic) == 0 {
		return mapping.RuleSet{}, fmt.Errorf("supplier %q: %w", supplier, ErrNoRules)
	}
	return set, nil
}

func (s *Service) processor(set mapping.RuleSet) *mapping.Processor {
	opts := []mapping.ProcessorOption{mapping.WithLogger(s.logger)}
	if s.fillSupplierID {
		opts = append(opts, mapping.WithDefaults(map[string]mapping.Value{
			mapping.FieldSupplierID: mapping.String(set.Supplier),
		}))
	}
	return mapping.NewProcessor(set, opts...)
}

// Import runs one parsed file through the supplier's rules and stages the
// accepted rows. Row problems never fail the call; they are counted and
// logged. An error is returned only when the file as a whole failed, in
// which case the result still carries the import number if one was opened.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	start := time.Now()
	req.Supplier = strings.TrimSpace(req.Supplier)
	result := ImportResult{
		Supplier: req.Supplier,
		FileName: req.FileName,
		FileType: req.FileType,
		Status:   StatusFailed,
	}
	if err := req.validate(); err != nil {
		return result, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger := s.logger.With(append(requestAttrs(ctx),
		"supplier", req.Supplier,
		"file", req.FileName,
		"file_type", req.FileType,
	)...)

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("import rejected", "error", err, "active_imports", s.limiter.ActiveCount())
		return result, err
	}
	defer s.limiter.Release()

	set, err := s.loadRuleSet(ctx, req.Supplier)
	if err != nil {
		logger.Warn("import not started", "error", err)
		return result, err
	}

	session, err := s.imports.Begin(ctx, ImportHeader{
		Supplier: req.Supplier,
		FileName: req.FileName,
		FileType: req.FileType,
	})
	if err != nil {
		logger.Error("import not started", "error", err)
		return result, fmt.Errorf("begin import: %w", err)
	}
	result.ImportNo = session.ImportNo()
	logger = logger.With("import_no", result.ImportNo)
	logger.Info("import started", "rows", len(req.Table.Rows))

	counts, errs, err := s.runImport(ctx, session, set, req)
	if err != nil {
		if rbErr := session.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error("rollback failed", "error", rbErr)
		}
		if failErr := s.imports.Fail(context.WithoutCancel(ctx), result.ImportNo, err.Error()); failErr != nil {
			logger.Error("mark import failed", "error", failErr)
		}
		result.DurationMs = time.Since(start).Milliseconds()
		logger.Error("import failed", "error", err, "duration_ms", result.DurationMs)
		return result, err
	}

	result.Status = counts.Status
	result.Summary = mapping.Summary{
		Total:    counts.Total,
		Accepted: counts.Success,
		Skipped:  counts.Skipped,
		Errors:   counts.Errors,
	}
	result.Errors = errs
	result.DurationMs = time.Since(start).Milliseconds()

	logger.Info("import completed",
		"status", result.Status,
		"total_rows", counts.Total,
		"success_rows", counts.Success,
		"error_rows", counts.Errors,
		"skipped_rows", counts.Skipped,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// runImport processes and stages every row, then commits. It returns the
// final counts and the first MaxResultErrors logged entries.
func (s *Service) runImport(ctx context.Context, session ImportSession, set mapping.RuleSet, req ImportRequest) (ImportCounts, []ErrorEntry, error) {
	outcomes, err := s.processor(set).ProcessAll(ctx, req.Table.Rows, s.workers)
	if err != nil {
		return ImportCounts{}, nil, fmt.Errorf("process rows: %w", err)
	}

	counts := ImportCounts{Total: len(outcomes)}
	var logged []ErrorEntry
	logError := func(rowNo int, field, msg string) error {
		e := ErrorEntry{ImportNo: session.ImportNo(), RowNo: rowNo, Field: field, Message: msg}
		if len(logged) < MaxResultErrors {
			logged = append(logged, e)
		}
		return session.LogError(ctx, e)
	}

	for _, o := range outcomes {
		if o.Skipped {
			counts.Skipped++
			continue
		}

		if len(o.RuleErrors) > 0 {
			msg := "Advanced mapping errors: " + strings.Join(o.RuleErrors, ", ")
			if err := logError(o.RowNo, ErrorFieldRules, msg); err != nil {
				return ImportCounts{}, nil, fmt.Errorf("row %d: log error: %w", o.RowNo, err)
			}
		}

		if len(o.ValidationErrors) > 0 {
			counts.Errors++
			if err := logError(o.RowNo, ErrorFieldValidation, strings.Join(o.ValidationErrors, ", ")); err != nil {
				return ImportCounts{}, nil, fmt.Errorf("row %d: log error: %w", o.RowNo, err)
			}
			continue
		}

		stageErr, err := s.stage(ctx, session, req.FileType, o.Record)
		if err != nil {
			return ImportCounts{}, nil, fmt.Errorf("row %d: %w", o.RowNo, err)
		}
		if stageErr != nil {
			counts.Errors++
			if err := logError(o.RowNo, ErrorFieldStaging, stageErr.Error()); err != nil {
				return ImportCounts{}, nil, fmt.Errorf("row %d: log error: %w", o.RowNo, err)
			}
			continue
		}
		counts.Success++
	}

	counts.Status = StatusCompleted
	if counts.Errors > 0 {
		counts.Status = StatusCompletedWithErrors
	}
	if err := session.Commit(ctx, counts); err != nil {
		return ImportCounts{}, nil, err
	}
	return counts, logged, nil
}

// stage writes one accepted record. The first return is a row-level
// conversion problem; the second stops the import.
func (s *Service) stage(ctx context.Context, session ImportSession, fileType ingest.FileType, rec *mapping.Record) (rowErr, err error) {
	switch fileType {
	case ingest.FileTypeStock:
		p, convErr := StockParams(rec)
		if convErr != nil {
			return convErr, nil
		}
		return nil, session.StageStock(ctx, p)
	case ingest.FileTypePrice:
		p, convErr := PriceParams(rec)
		if convErr != nil {
			return convErr, nil
		}
		return nil, session.StagePrice(ctx, p)
	default:
		return nil, fmt.Errorf("%w: unknown file type %q", ErrInvalidImport, fileType)
	}
}

// ImportFile reads a supplier file and imports it. An empty fileType is
// detected from the name.
func (s *Service) ImportFile(ctx context.Context, supplier, path string, fileType ingest.FileType, opts ingest.Options) (ImportResult, error) {
	name := filepath.Base(path)
	if fileType == "" {
		fileType = UploadFileType(name)
	}
	table, err := ingest.ReadFile(path, opts)
	if err != nil {
		return ImportResult{Supplier: supplier, FileName: name, FileType: fileType, Status: StatusFailed}, fmt.Errorf("read %s: %w", name, err)
	}
	logTableWarnings(s.logger, name, table)

	return s.Import(ctx, ImportRequest{
		Supplier: supplier,
		FileName: name,
		FileType: fileType,
		Table:    table,
	})
}

// UploadFileType infers the type of an uploaded file from its name. Names
// without a stock keyword are price files.
func UploadFileType(name string) ingest.FileType {
	if t, ok := ingest.DetectFileType(name); ok {
		return t
	}
	return ingest.FileTypePrice
}

func logTableWarnings(logger *slog.Logger, name string, table *ingest.Table) {
	for _, w := range table.Warnings {
		logger.Warn("file warning", "file", name, "row", w.Row, "message", w.Message)
	}
}

// IsFileError reports whether err means the file itself was unusable, as
// opposed to an infrastructure failure.
func IsFileError(err error) bool {
	return errors.Is(err, ingest.ErrUnsupportedFile) ||
		errors.Is(err, ingest.ErrNoHeader) ||
		errors.Is(err, ErrFileName) ||
		errors.Is(err, ErrNoRules) ||
		errors.Is(err, ErrInvalidImport)
}

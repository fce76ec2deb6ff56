package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/backoffice/internal/database"
	"github.com/JonMunkholm/backoffice/internal/ingest"
	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// ImportStatus is the lifecycle state of one import run.
type ImportStatus string

const (
	StatusProcessing          ImportStatus = "processing"
	StatusCompleted           ImportStatus = "completed"
	StatusCompletedWithErrors ImportStatus = "completed_with_errors"
	StatusFailed              ImportStatus = "failed"
)

// Valid reports whether s is a known status.
func (s ImportStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

// ImportRecord is one row of the import history.
type ImportRecord struct {
	ImportNo     int64           `json:"import_no"`
	Supplier     string          `json:"supplier"`
	FileName     string          `json:"file_name"`
	FileType     ingest.FileType `json:"file_type"`
	TotalRows    int             `json:"total_rows"`
	SuccessRows  int             `json:"success_rows"`
	ErrorRows    int             `json:"error_rows"`
	SkippedRows  int             `json:"skipped_rows"`
	Status       ImportStatus    `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Error log kinds stored in the field column.
const (
	ErrorFieldRules      = "advanced_rules"
	ErrorFieldValidation = "validation"
	ErrorFieldStaging    = "staging"
)

// ErrorEntry is one logged row problem of an import.
type ErrorEntry struct {
	ID        int64     `json:"id"`
	ImportNo  int64     `json:"import_no"`
	RowNo     int       `json:"row_no"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"error_message"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportHeader describes the file an import session is opened for.
type ImportHeader struct {
	Supplier string
	FileName string
	FileType ingest.FileType
}

// ImportCounts are the final row counts written when a session commits.
type ImportCounts struct {
	Total   int
	Success int
	Errors  int
	Skipped int
	Status  ImportStatus
}

// ImportQuery filters the import history.
type ImportQuery struct {
	Supplier string
	Status   ImportStatus
	PageRequest
}

// PageRequest selects one page of a listing. Page is 1-based.
type PageRequest struct {
	Page int
	Size int
}

// Page bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Normalize fills defaults and clamps the page size.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of items before the page.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Size }

// Page is one page of a listing plus the total across all pages.
type Page[T any] struct {
	Items []T   `json:"data"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// ImportRepository persists import runs, their staging rows and error logs.
type ImportRepository interface {
	// Begin records a new run with status processing and opens the data
	// transaction for it. The run record survives a rollback so that a
	// failure can be reported with Fail.
	Begin(ctx context.Context, h ImportHeader) (ImportSession, error)
	Fail(ctx context.Context, importNo int64, message string) error

	GetImport(ctx context.Context, importNo int64) (ImportRecord, error)
	ListImports(ctx context.Context, q ImportQuery) (Page[ImportRecord], error)
	ListErrors(ctx context.Context, importNo int64, p PageRequest) (Page[ErrorEntry], error)

	// DeleteImport removes a finished run with its error logs and staging
	// rows. A run still processing is left alone and reported as not found.
	DeleteImport(ctx context.Context, importNo int64) error
	// Stats aggregates runs per supplier, ordered by supplier.
	Stats(ctx context.Context, q StatsQuery) ([]ImportStats, error)
}

// StatsQuery selects the runs counted by Stats.
type StatsQuery struct {
	Supplier string
	Since    time.Time
}

// ImportStats aggregates import runs. Supplier is empty for the grand total.
type ImportStats struct {
	Supplier            string `json:"supplier,omitempty"`
	TotalImports        int64  `json:"total_imports"`
	CompletedImports    int64  `json:"completed_imports"`
	CompletedWithErrors int64  `json:"completed_with_errors"`
	FailedImports       int64  `json:"failed_imports"`
	ProcessingImports   int64  `json:"processing_imports"`
	TotalRows           int64  `json:"total_rows"`
	SuccessRows         int64  `json:"success_rows"`
	ErrorRows           int64  `json:"error_rows"`
	SkippedRows         int64  `json:"skipped_rows"`
}

func (s *ImportStats) add(o ImportStats) {
	s.TotalImports += o.TotalImports
	s.CompletedImports += o.CompletedImports
	s.CompletedWithErrors += o.CompletedWithErrors
	s.FailedImports += o.FailedImports
	s.ProcessingImports += o.ProcessingImports
	s.TotalRows += o.TotalRows
	s.SuccessRows += o.SuccessRows
	s.ErrorRows += o.ErrorRows
	s.SkippedRows += o.SkippedRows
}

// countRun adds one run to s.
func (s *ImportStats) countRun(rec ImportRecord) {
	s.TotalImports++
	switch rec.Status {
	case StatusCompleted:
		s.CompletedImports++
	case StatusCompletedWithErrors:
		s.CompletedWithErrors++
	case StatusFailed:
		s.FailedImports++
	case StatusProcessing:
		s.ProcessingImports++
	}
	s.TotalRows += int64(rec.TotalRows)
	s.SuccessRows += int64(rec.SuccessRows)
	s.ErrorRows += int64(rec.ErrorRows)
	s.SkippedRows += int64(rec.SkippedRows)
}

// ImportStatistics is the statistics report: one entry per supplier plus
// the total across them.
type ImportStatistics struct {
	Since      time.Time     `json:"since"`
	BySupplier []ImportStats `json:"by_supplier"`
	Total      ImportStats   `json:"total"`
}

// ImportSession is the open data transaction of one run. Nothing staged or
// logged is visible until Commit.
type ImportSession interface {
	ImportNo() int64
	StageStock(ctx context.Context, row database.UpsertStockParams) error
	StagePrice(ctx context.Context, row database.UpsertPriceParams) error
	LogError(ctx context.Context, e ErrorEntry) error
	Commit(ctx context.Context, counts ImportCounts) error
	Rollback(ctx context.Context) error
}

// ImportRequest is one parsed file to import.
type ImportRequest struct {
	Supplier string
	FileName string
	FileType ingest.FileType
	Table    *ingest.Table
}

// ImportResult reports the outcome of one file.
type ImportResult struct {
	ImportNo   int64           `json:"import_no"`
	Supplier   string          `json:"supplier"`
	FileName   string          `json:"file_name"`
	FileType   ingest.FileType `json:"file_type"`
	Status     ImportStatus    `json:"status"`
	Summary    mapping.Summary `json:"summary"`
	Errors     []ErrorEntry    `json:"errors,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Success reports whether every row was imported or skipped.
func (r ImportResult) Success() bool {
	return r.Summary.Errors == 0
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/backoffice/internal/config"
	"github.com/JonMunkholm/backoffice/internal/ingest"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

var (
	// ErrImportNotFound is returned when an import number does not exist.
	ErrImportNotFound = errors.New("import not found")

	// ErrInvalidImport is returned for an import request missing its
	// supplier, file type or rows.
	ErrInvalidImport = errors.New("invalid import request")

	// ErrNoRules is returned when a supplier has no basic mapping rules.
	// Importing without them would fail every row validation.
	ErrNoRules = errors.New("no mapping rules for supplier")

	// ErrImportInProgress is returned when a run that is still processing
	// would be deleted.
	ErrImportInProgress = errors.New("import is still processing")

	// ErrFileName is returned when a batch file name carries no supplier
	// key or no file type keyword.
	ErrFileName = errors.New("cannot derive supplier or file type from file name")

	// ErrUnsupportedFile is returned for file extensions no reader handles.
	ErrUnsupportedFile = ingest.ErrUnsupportedFile
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// Workers bounds parallel row processing per import.
	Workers int

	// FillSupplierID seeds supplier_id with the supplier key when the
	// basic rules do not map it.
	FillSupplierID bool

	// Limiter bounds concurrent imports. A nil limiter gets the defaults.
	Limiter *ImportLimiter

	// Timeout bounds one import whose context has no deadline. Zero means
	// DefaultImportTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Service provides the rule management, rule test and import operations
// shared by the API server and the batch importer.
type Service struct {
	rules   rules.Store
	imports ImportRepository
	limiter *ImportLimiter
	logger  *slog.Logger

	workers        int
	fillSupplierID bool
	timeout        time.Duration
}

// NewService creates a Service over a rule store and an import repository.
// Pass a *rules.Cache as store to get per-supplier snapshots.
func NewService(store rules.Store, imports ImportRepository, opts Options) *Service {
	if opts.Limiter == nil {
		opts.Limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultImportTimeout
	}
	return &Service{
		rules:          store,
		imports:        imports,
		limiter:        opts.Limiter,
		logger:         opts.Logger,
		workers:        opts.Workers,
		fillSupplierID: opts.FillSupplierID,
		timeout:        opts.Timeout,
	}
}

// OptionsFromConfig builds service options from the import settings.
func OptionsFromConfig(c config.ImportConfig, logger *slog.Logger) Options {
	return Options{
		Workers:        c.Workers,
		FillSupplierID: c.FillSupplierID,
		Limiter:        NewImportLimiter(c.MaxConcurrent, c.MaxWaitTime),
		Timeout:        c.Timeout,
		Logger:         logger,
	}
}

// Limiter returns the import limiter, for health reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// CacheStats reports rule cache effectiveness when the store is a cache.
func (s *Service) CacheStats() (rules.CacheStats, bool) {
	c, ok := s.rules.(*rules.Cache)
	if !ok {
		return rules.CacheStats{}, false
	}
	return c.Stats(), true
}

// RefreshRules drops every cached rule snapshot so the next load reads the
// store. Rules edited by another process become visible without waiting for
// the cache TTL.
func (s *Service) RefreshRules() {
	if c, ok := s.rules.(*rules.Cache); ok {
		c.InvalidateAll()
	}
}

// ----------------------------------------------------------------------------
// History
// ----------------------------------------------------------------------------

// ListImports returns one page of import history, newest first.
func (s *Service) ListImports(ctx context.Context, q ImportQuery) (Page[ImportRecord], error) {
	if q.Status != "" && !q.Status.Valid() {
		return Page[ImportRecord]{}, fmt.Errorf("%w: unknown status %q", ErrInvalidImport, q.Status)
	}
	return s.imports.ListImports(ctx, q)
}

// GetImport returns one import record.
func (s *Service) GetImport(ctx context.Context, importNo int64) (ImportRecord, error) {
	return s.imports.GetImport(ctx, importNo)
}

// DefaultErrorPageSize is the error log page size when none is requested.
const DefaultErrorPageSize = 50

// ListImportErrors returns one page of an import's error log ordered by row.
func (s *Service) ListImportErrors(ctx context.Context, importNo int64, p PageRequest) (Page[ErrorEntry], error) {
	if _, err := s.imports.GetImport(ctx, importNo); err != nil {
		return Page[ErrorEntry]{}, err
	}
	if p.Size < 1 {
		p.Size = DefaultErrorPageSize
	}
	return s.imports.ListErrors(ctx, importNo, p)
}

// DeleteImport removes a finished import run together with its error log
// and staging rows.
func (s *Service) DeleteImport(ctx context.Context, importNo int64) error {
	rec, err := s.imports.GetImport(ctx, importNo)
	if err != nil {
		return err
	}
	if rec.Status == StatusProcessing {
		return fmt.Errorf("import %d: %w", importNo, ErrImportInProgress)
	}
	if err := s.imports.DeleteImport(ctx, importNo); err != nil {
		return err
	}
	s.logger.Info("import deleted", "import_no", importNo, "supplier", rec.Supplier)
	return nil
}

// DefaultStatsDays is the statistics window when none is requested.
const DefaultStatsDays = 30

// ImportStatistics aggregates the runs of the last days days, per supplier
// and in total. A supplier narrows the report to that supplier.
func (s *Service) ImportStatistics(ctx context.Context, supplier string, days int) (ImportStatistics, error) {
	if days < 1 {
		days = DefaultStatsDays
	}
	since := time.Now().AddDate(0, 0, -days)

	rows, err := s.imports.Stats(ctx, StatsQuery{Supplier: supplier, Since: since})
	if err != nil {
		return ImportStatistics{}, err
	}

	out := ImportStatistics{Since: since, BySupplier: rows}
	if out.BySupplier == nil {
		out.BySupplier = []ImportStats{}
	}
	for _, r := range rows {
		out.Total.add(r)
	}
	return out, nil
}

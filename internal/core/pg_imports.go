package core

// pg_imports.go is the PostgreSQL ImportRepository.
//
// The import_management row is written on the pool before the data
// transaction opens, so a failed run can still be marked failed after the
// transaction rolls back. Staging upserts and error logs are queued on a
// pgx.Batch and flushed every batchSize statements inside the transaction.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/backoffice/internal/database"
	"github.com/JonMunkholm/backoffice/internal/ingest"
)

// DefaultBatchSize is how many statements are queued before a flush.
const DefaultBatchSize = 500

// PGImportRepository stores import runs in PostgreSQL.
type PGImportRepository struct {
	pool      *pgxpool.Pool
	batchSize int
}

// NewPGImportRepository creates a repository over pool.
func NewPGImportRepository(pool *pgxpool.Pool, batchSize int) *PGImportRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PGImportRepository{pool: pool, batchSize: batchSize}
}

// Begin implements ImportRepository.
func (r *PGImportRepository) Begin(ctx context.Context, h ImportHeader) (ImportSession, error) {
	q := database.New(r.pool)
	importNo, err := q.InsertImport(ctx, database.InsertImportParams{
		Supplier: h.Supplier,
		FileName: pgtype.Text{String: h.FileName, Valid: h.FileName != ""},
		FileType: pgtype.Text{String: string(h.FileType), Valid: h.FileType != ""},
	})
	if err != nil {
		return nil, fmt.Errorf("insert import: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	return &pgImportSession{
		importNo:  importNo,
		tx:        tx,
		q:         q.WithTx(tx),
		batch:     &pgx.Batch{},
		batchSize: r.batchSize,
	}, nil
}

// Fail implements ImportRepository.
func (r *PGImportRepository) Fail(ctx context.Context, importNo int64, message string) error {
	if err := database.New(r.pool).FailImport(ctx, importNo, message); err != nil {
		return fmt.Errorf("mark import %d failed: %w", importNo, err)
	}
	return nil
}

// GetImport implements ImportRepository.
func (r *PGImportRepository) GetImport(ctx context.Context, importNo int64) (ImportRecord, error) {
	row, err := database.New(r.pool).GetImport(ctx, importNo)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportRecord{}, fmt.Errorf("import %d: %w", importNo, ErrImportNotFound)
	}
	if err != nil {
		return ImportRecord{}, fmt.Errorf("get import %d: %w", importNo, err)
	}
	return importFromRow(row), nil
}

// ListImports implements ImportRepository.
func (r *PGImportRepository) ListImports(ctx context.Context, q ImportQuery) (Page[ImportRecord], error) {
	p := q.PageRequest.Normalize()
	filter := database.ImportFilter{Supplier: q.Supplier, Status: string(q.Status)}
	queries := database.New(r.pool)

	total, err := queries.CountImports(ctx, filter)
	if err != nil {
		return Page[ImportRecord]{}, fmt.Errorf("count imports: %w", err)
	}
	rows, err := queries.ListImports(ctx, database.ListImportsParams{
		ImportFilter: filter,
		Limit:        int32(p.Size),
		Offset:       int32(p.Offset()),
	})
	if err != nil {
		return Page[ImportRecord]{}, fmt.Errorf("list imports: %w", err)
	}

	items := make([]ImportRecord, len(rows))
	for i, row := range rows {
		items[i] = importFromRow(row)
	}
	return Page[ImportRecord]{Items: items, Total: total, Page: p.Page, Size: p.Size}, nil
}

// ListErrors implements ImportRepository.
func (r *PGImportRepository) ListErrors(ctx context.Context, importNo int64, p PageRequest) (Page[ErrorEntry], error) {
	p = p.Normalize()
	queries := database.New(r.pool)

	total, err := queries.CountErrorLogs(ctx, importNo)
	if err != nil {
		return Page[ErrorEntry]{}, fmt.Errorf("count error logs: %w", err)
	}
	rows, err := queries.ListErrorLogs(ctx, database.ListErrorLogsParams{
		ImportNo: importNo,
		Limit:    int32(p.Size),
		Offset:   int32(p.Offset()),
	})
	if err != nil {
		return Page[ErrorEntry]{}, fmt.Errorf("list error logs: %w", err)
	}

	items := make([]ErrorEntry, len(rows))
	for i, row := range rows {
		items[i] = ErrorEntry{
			ID:        row.ID,
			ImportNo:  row.ImportNo,
			RowNo:     int(row.RowNo.Int32),
			Field:     row.Field.String,
			Message:   row.ErrorMessage.String,
			CreatedAt: row.CreatedAt.Time,
		}
	}
	return Page[ErrorEntry]{Items: items, Total: total, Page: p.Page, Size: p.Size}, nil
}

// DeleteImport implements ImportRepository.
func (r *PGImportRepository) DeleteImport(ctx context.Context, importNo int64) error {
	n, err := database.New(r.pool).DeleteImport(ctx, importNo)
	if err != nil {
		return fmt.Errorf("delete import %d: %w", importNo, err)
	}
	if n == 0 {
		return fmt.Errorf("import %d: %w", importNo, ErrImportNotFound)
	}
	return nil
}

// Stats implements ImportRepository.
func (r *PGImportRepository) Stats(ctx context.Context, q StatsQuery) ([]ImportStats, error) {
	rows, err := database.New(r.pool).ImportStatistics(ctx, database.ImportStatisticsParams{
		Since:    pgtype.Timestamptz{Time: q.Since, Valid: true},
		Supplier: q.Supplier,
	})
	if err != nil {
		return nil, fmt.Errorf("import statistics: %w", err)
	}

	out := make([]ImportStats, len(rows))
	for i, row := range rows {
		out[i] = ImportStats{
			Supplier:            row.Supplier,
			TotalImports:        row.TotalImports,
			CompletedImports:    row.CompletedImports,
			CompletedWithErrors: row.CompletedWithErrors,
			FailedImports:       row.FailedImports,
			ProcessingImports:   row.ProcessingImports,
			TotalRows:           row.TotalRows,
			SuccessRows:         row.SuccessRows,
			ErrorRows:           row.ErrorRows,
			SkippedRows:         row.SkippedRows,
		}
	}
	return out, nil
}

func importFromRow(row database.ImportManagement) ImportRecord {
	rec := ImportRecord{
		ImportNo:     row.ImportNo,
		Supplier:     row.Supplier,
		FileName:     row.FileName.String,
		FileType:     ingest.FileType(row.FileType.String),
		TotalRows:    int(row.TotalRows.Int32),
		SuccessRows:  int(row.SuccessRows.Int32),
		ErrorRows:    int(row.ErrorRows.Int32),
		SkippedRows:  int(row.SkippedRows.Int32),
		Status:       ImportStatus(row.Status),
		ErrorMessage: row.ErrorMessage.String,
		CreatedAt:    row.CreatedAt.Time,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		rec.CompletedAt = &t
	}
	return rec
}

// ----------------------------------------------------------------------------
// Session
// ----------------------------------------------------------------------------

type pgImportSession struct {
	importNo  int64
	tx        pgx.Tx
	q         *database.Queries
	batch     *pgx.Batch
	batchSize int
	done      bool
}

func (s *pgImportSession) ImportNo() int64 { return s.importNo }

func (s *pgImportSession) StageStock(ctx context.Context, row database.UpsertStockParams) error {
	row.ImportNo = s.importNo
	database.QueueUpsertStock(s.batch, row)
	return s.maybeFlush(ctx)
}

func (s *pgImportSession) StagePrice(ctx context.Context, row database.UpsertPriceParams) error {
	row.ImportNo = s.importNo
	database.QueueUpsertPrice(s.batch, row)
	return s.maybeFlush(ctx)
}

func (s *pgImportSession) LogError(ctx context.Context, e ErrorEntry) error {
	database.QueueInsertErrorLog(s.batch, database.InsertErrorLogParams{
		ImportNo:     s.importNo,
		RowNo:        pgtype.Int4{Int32: int32(e.RowNo), Valid: e.RowNo > 0},
		Field:        pgtype.Text{String: e.Field, Valid: e.Field != ""},
		ErrorMessage: pgtype.Text{String: e.Message, Valid: true},
	})
	return s.maybeFlush(ctx)
}

func (s *pgImportSession) maybeFlush(ctx context.Context) error {
	if s.batch.Len() < s.batchSize {
		return nil
	}
	return s.flush(ctx)
}

func (s *pgImportSession) flush(ctx context.Context) error {
	start := time.Now()
	n := s.batch.Len()
	if err := s.q.SendBatch(ctx, s.batch); err != nil {
		return fmt.Errorf("flush %d statements: %w", n, err)
	}
	s.batch = &pgx.Batch{}
	if n > 0 {
		slog.Debug("import batch flushed",
			"import_no", s.importNo,
			"statements", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}

func (s *pgImportSession) Commit(ctx context.Context, counts ImportCounts) error {
	if err := s.flush(ctx); err != nil {
		return err
	}
	if err := s.q.CompleteImport(ctx, database.CompleteImportParams{
		ImportNo:    s.importNo,
		TotalRows:   int32(counts.Total),
		SuccessRows: int32(counts.Success),
		ErrorRows:   int32(counts.Errors),
		SkippedRows: int32(counts.Skipped),
		Status:      string(counts.Status),
	}); err != nil {
		return fmt.Errorf("complete import: %w", err)
	}
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.done = true
	return nil
}

func (s *pgImportSession) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

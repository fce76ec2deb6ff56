package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/backoffice/internal/database"
	"github.com/JonMunkholm/backoffice/internal/ingest"
	"github.com/JonMunkholm/backoffice/internal/mapping"
)

func TestImport_RowPolicy(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	ctx := context.Background()

	res, err := env.svc.Import(ctx, ImportRequest{
		Supplier: "acme",
		FileName: "acme_stock.csv",
		FileType: ingest.FileTypeStock,
		Table:    acmeTable(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompletedWithErrors, res.Status)
	assert.Equal(t, mapping.Summary{Total: 5, Accepted: 2, Skipped: 1, Errors: 2}, res.Summary)
	assert.False(t, res.Success())
	require.NotZero(t, res.ImportNo)

	staged := env.repo.StagedStock(res.ImportNo)
	require.Len(t, staged, 2)
	assert.Equal(t, database.UpsertStockParams{
		ImportNo:       res.ImportNo,
		SupplierID:     "acme",
		SupplierMaker:  pgtype.Text{String: "SONY", Valid: true},
		SupplierPartNo: "ABC123",
		Stock:          pgtype.Int4{Int32: 10, Valid: true},
	}, staged[0])
	assert.Equal(t, "XYZ9", staged[1].SupplierPartNo)
	assert.Empty(t, env.repo.StagedPrice(res.ImportNo))

	rec, err := env.svc.GetImport(ctx, res.ImportNo)
	require.NoError(t, err)
	assert.Equal(t, StatusCompletedWithErrors, rec.Status)
	assert.Equal(t, 5, rec.TotalRows)
	assert.Equal(t, 2, rec.SuccessRows)
	assert.Equal(t, 2, rec.ErrorRows)
	assert.Equal(t, 1, rec.SkippedRows)
	assert.NotNil(t, rec.CompletedAt)

	page, err := env.svc.ListImportErrors(ctx, res.ImportNo, PageRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	assert.Equal(t, DefaultErrorPageSize, page.Size)

	byRow := map[int]ErrorEntry{}
	for _, e := range page.Items {
		byRow[e.RowNo] = e
	}
	assert.Equal(t, ErrorFieldValidation, byRow[2].Field)
	assert.Equal(t, "supplier_part_no is required", byRow[2].Message)
	assert.Equal(t, "stock cannot be negative", byRow[4].Message)
	assert.Equal(t, ErrorFieldRules, byRow[5].Field)
	assert.Contains(t, byRow[5].Message, "Advanced mapping errors: Rule 'usd to jpy' failed")
	assert.Len(t, res.Errors, 3)
}

func TestImport_AllRowsValid(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)

	table := &ingest.Table{Rows: []mapping.RawRow{
		row(1, map[string]string{"part_number": "a-1", "stock_qty": "1", "unit_price_usd": "2"}),
		row(2, map[string]string{"part_number": "a-2", "stock_qty": "2", "unit_price_usd": "3"}),
	}}
	res, err := env.svc.Import(context.Background(), ImportRequest{
		Supplier: "acme", FileName: "acme_price.csv", FileType: ingest.FileTypePrice, Table: table,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Success())

	staged := env.repo.StagedPrice(res.ImportNo)
	require.Len(t, staged, 2)
	price, err := staged[0].Price.Float64Value()
	require.NoError(t, err)
	assert.Equal(t, pgtype.Float8{Float64: 300, Valid: true}, price)
}

func TestImport_StagingConversionError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.ReplaceBasicRules(ctx, "bolt", []mapping.MappingRule{
		{FileField: "pn", DBField: mapping.FieldSupplierPartNo},
		{FileField: "qty", DBField: mapping.FieldStock},
	})
	require.NoError(t, err)

	table := &ingest.Table{Rows: []mapping.RawRow{
		row(1, map[string]string{"pn": "P1", "qty": "plenty"}),
	}}
	res, err := env.svc.Import(ctx, ImportRequest{Supplier: "bolt", FileType: ingest.FileTypeStock, Table: table})
	require.NoError(t, err)
	assert.Equal(t, mapping.Summary{Total: 1, Errors: 1}, res.Summary)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrorFieldStaging, res.Errors[0].Field)
	assert.Contains(t, res.Errors[0].Message, "stock: invalid number")
}

func TestImport_NegativeTextNumbersRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.ReplaceBasicRules(ctx, "bolt", []mapping.MappingRule{
		{FileField: "pn", DBField: mapping.FieldSupplierPartNo},
		{FileField: "qty", DBField: mapping.FieldStock},
	})
	require.NoError(t, err)

	table := &ingest.Table{Rows: []mapping.RawRow{
		row(1, map[string]string{"pn": "P1", "qty": "-5"}),
		row(2, map[string]string{"pn": "P2", "qty": "(5)"}),
		row(3, map[string]string{"pn": "P3", "qty": "5"}),
	}}
	res, err := env.svc.Import(ctx, ImportRequest{Supplier: "bolt", FileType: ingest.FileTypeStock, Table: table})
	require.NoError(t, err)
	assert.Equal(t, mapping.Summary{Total: 3, Accepted: 1, Errors: 2}, res.Summary)
	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.Equal(t, ErrorFieldValidation, e.Field)
		assert.Equal(t, "stock cannot be negative", e.Message)
	}

	staged := env.repo.StagedStock(res.ImportNo)
	require.Len(t, staged, 1)
	assert.Equal(t, "P3", staged[0].SupplierPartNo)
}

func TestImport_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Import(ctx, ImportRequest{FileType: ingest.FileTypeStock, Table: &ingest.Table{}})
	assert.ErrorIs(t, err, ErrInvalidImport)

	_, err = env.svc.Import(ctx, ImportRequest{Supplier: "acme", FileType: "bogus", Table: &ingest.Table{}})
	assert.ErrorIs(t, err, ErrInvalidImport)

	_, err = env.svc.Import(ctx, ImportRequest{Supplier: "nobody", FileType: ingest.FileTypeStock, Table: &ingest.Table{}})
	assert.ErrorIs(t, err, ErrNoRules)

	page, err := env.svc.ListImports(ctx, ImportQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "rejected requests must not open import runs")
}

func TestImport_LimiterFull(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	env.svc.limiter = NewImportLimiter(1, 10*time.Millisecond)
	require.True(t, env.svc.limiter.TryAcquire())
	defer env.svc.limiter.Release()

	_, err := env.svc.Import(context.Background(), ImportRequest{
		Supplier: "acme", FileType: ingest.FileTypeStock, Table: acmeTable(),
	})
	assert.ErrorIs(t, err, ErrTooManyImports)
}

// failingRepo fails the session commit to exercise the failure path.
type failingRepo struct {
	*MemoryImportRepository
}

func (r failingRepo) Begin(ctx context.Context, h ImportHeader) (ImportSession, error) {
	s, err := r.MemoryImportRepository.Begin(ctx, h)
	if err != nil {
		return nil, err
	}
	return failingSession{s}, nil
}

type failingSession struct {
	ImportSession
}

func (failingSession) Commit(context.Context, ImportCounts) error {
	return errors.New("connection reset by peer")
}

func TestImport_FailureMarksRunFailed(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	env.svc.imports = failingRepo{env.repo}

	res, err := env.svc.Import(context.Background(), ImportRequest{
		Supplier: "acme", FileType: ingest.FileTypeStock, Table: acmeTable(),
	})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "DB005", MapError(err).Code)

	rec, err := env.repo.GetImport(context.Background(), res.ImportNo)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "connection reset by peer", rec.ErrorMessage)
	assert.Empty(t, env.repo.StagedStock(res.ImportNo))
}

func TestImport_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Import(ctx, ImportRequest{Supplier: "acme", FileType: ingest.FileTypeStock, Table: acmeTable()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportFile(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)

	path := filepath.Join(t.TempDir(), "acme_zaiko_0101.csv")
	require.NoError(t, os.WriteFile(path, []byte("part_number,stock_qty,unit_price_usd\nab-1,4,1\n"), 0o644))

	res, err := env.svc.ImportFile(context.Background(), "acme", path, "", ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, ingest.FileTypeStock, res.FileType)
	assert.Equal(t, "acme_zaiko_0101.csv", res.FileName)
	assert.Equal(t, StatusCompleted, res.Status)

	_, err = env.svc.ImportFile(context.Background(), "acme", filepath.Join(t.TempDir(), "legacy.xls"), "", ingest.Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.True(t, IsFileError(err))
}

func TestUploadFileType(t *testing.T) {
	assert.Equal(t, ingest.FileTypeStock, UploadFileType("ACME_Stock.xlsx"))
	assert.Equal(t, ingest.FileTypeStock, UploadFileType("acme_zaiko.csv"))
	assert.Equal(t, ingest.FileTypePrice, UploadFileType("acme_tanka.csv"))
	assert.Equal(t, ingest.FileTypePrice, UploadFileType("acme.csv"))
}

func TestListImports_FilterAndPage(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Import(ctx, ImportRequest{Supplier: "acme", FileType: ingest.FileTypeStock, Table: acmeTable()})
		require.NoError(t, err)
	}

	page, err := env.svc.ListImports(ctx, ImportQuery{Supplier: "acme", PageRequest: PageRequest{Page: 2, Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Items[0].ImportNo, "newest first")

	page, err = env.svc.ListImports(ctx, ImportQuery{Status: StatusCompleted})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = env.svc.ListImports(ctx, ImportQuery{Status: "weird"})
	assert.ErrorIs(t, err, ErrInvalidImport)

	_, err = env.svc.ListImportErrors(ctx, 99, PageRequest{})
	assert.ErrorIs(t, err, ErrImportNotFound)
}

func TestDeleteImport(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	ctx := context.Background()

	res, err := env.svc.Import(ctx, ImportRequest{Supplier: "acme", FileType: ingest.FileTypeStock, Table: acmeTable()})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteImport(ctx, res.ImportNo))
	_, err = env.svc.GetImport(ctx, res.ImportNo)
	assert.ErrorIs(t, err, ErrImportNotFound)
	assert.Empty(t, env.repo.StagedStock(res.ImportNo))

	err = env.svc.DeleteImport(ctx, res.ImportNo)
	assert.ErrorIs(t, err, ErrImportNotFound)
}

func TestDeleteImport_StillProcessing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.repo.Begin(ctx, ImportHeader{Supplier: "acme", FileType: ingest.FileTypeStock})
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	err = env.svc.DeleteImport(ctx, sess.ImportNo())
	assert.ErrorIs(t, err, ErrImportInProgress)
	assert.Equal(t, "IMP005", MapError(err).Code)
}

func TestImportStatistics(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.svc.Import(ctx, ImportRequest{Supplier: "acme", FileType: ingest.FileTypeStock, Table: acmeTable()})
		require.NoError(t, err)
	}
	require.NoError(t, env.repo.Fail(ctx, mustBegin(t, env, "bolt"), "disk full"))

	stats, err := env.svc.ImportStatistics(ctx, "", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -DefaultStatsDays), stats.Since, time.Minute)
	require.Len(t, stats.BySupplier, 2)
	assert.Equal(t, "acme", stats.BySupplier[0].Supplier)
	assert.Equal(t, int64(2), stats.BySupplier[0].CompletedWithErrors)
	assert.Equal(t, int64(10), stats.BySupplier[0].TotalRows)
	assert.Equal(t, int64(1), stats.BySupplier[1].FailedImports)

	assert.Empty(t, stats.Total.Supplier)
	assert.Equal(t, int64(3), stats.Total.TotalImports)
	assert.Equal(t, int64(4), stats.Total.SuccessRows)
	assert.Equal(t, int64(4), stats.Total.ErrorRows)
	assert.Equal(t, int64(2), stats.Total.SkippedRows)

	only, err := env.svc.ImportStatistics(ctx, "bolt", 7)
	require.NoError(t, err)
	require.Len(t, only.BySupplier, 1)
	assert.Equal(t, int64(1), only.Total.TotalImports)

	none, err := env.svc.ImportStatistics(ctx, "nobody", 7)
	require.NoError(t, err)
	assert.NotNil(t, none.BySupplier)
	assert.Zero(t, none.Total.TotalImports)
}

// mustBegin opens a run and rolls back its data transaction, leaving the
// record in processing.
func mustBegin(t *testing.T, env testEnv, supplier string) int64 {
	t.Helper()
	ctx := context.Background()
	sess, err := env.repo.Begin(ctx, ImportHeader{Supplier: supplier, FileType: ingest.FileTypePrice})
	require.NoError(t, err)
	require.NoError(t, sess.Rollback(ctx))
	return sess.ImportNo()
}

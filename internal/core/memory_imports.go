package core

// memory_imports.go is an in-memory ImportRepository. The batch binary uses it
// for --dry-run and the tests use it in place of PostgreSQL. It keeps the same
// transaction shape: staged rows and error logs are buffered per session and
// only become visible on Commit.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/backoffice/internal/database"
)

// MemoryImportRepository keeps import runs in memory.
type MemoryImportRepository struct {
	mu      sync.RWMutex
	nextNo  int64
	nextErr int64
	imports map[int64]ImportRecord
	errors  map[int64][]ErrorEntry
	stock   map[int64][]database.UpsertStockParams
	price   map[int64][]database.UpsertPriceParams
	now     func() time.Time
}

// NewMemoryImportRepository creates an empty repository.
func NewMemoryImportRepository() *MemoryImportRepository {
	return &MemoryImportRepository{
		imports: make(map[int64]ImportRecord),
		errors:  make(map[int64][]ErrorEntry),
		stock:   make(map[int64][]database.UpsertStockParams),
		price:   make(map[int64][]database.UpsertPriceParams),
		now:     time.Now,
	}
}

// Begin implements ImportRepository.
func (r *MemoryImportRepository) Begin(ctx context.Context, h ImportHeader) (ImportSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextNo++
	r.imports[r.nextNo] = ImportRecord{
		ImportNo:  r.nextNo,
		Supplier:  h.Supplier,
		FileName:  h.FileName,
		FileType:  h.FileType,
		Status:    StatusProcessing,
		CreatedAt: r.now(),
	}
	return &memoryImportSession{repo: r, importNo: r.nextNo}, nil
}

// Fail implements ImportRepository.
func (r *MemoryImportRepository) Fail(_ context.Context, importNo int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.imports[importNo]
	if !ok {
		return fmt.Errorf("import %d: %w", importNo, ErrImportNotFound)
	}
	now := r.now()
	rec.Status = StatusFailed
	rec.ErrorMessage = message
	rec.CompletedAt = &now
	r.imports[importNo] = rec
	return nil
}

// GetImport implements ImportRepository.
func (r *MemoryImportRepository) GetImport(_ context.Context, importNo int64) (ImportRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.imports[importNo]
	if !ok {
		return ImportRecord{}, fmt.Errorf("import %d: %w", importNo, ErrImportNotFound)
	}
	return rec, nil
}

// ListImports implements ImportRepository. Newest first.
func (r *MemoryImportRepository) ListImports(_ context.Context, q ImportQuery) (Page[ImportRecord], error) {
	p := q.PageRequest.Normalize()

	r.mu.RLock()
	var all []ImportRecord
	for _, rec := range r.imports {
		if q.Supplier != "" && rec.Supplier != q.Supplier {
			continue
		}
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		all = append(all, rec)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ImportNo > all[j].ImportNo
	})
	return paginate(all, p), nil
}

// ListErrors implements ImportRepository. Ordered by row number, then id.
func (r *MemoryImportRepository) ListErrors(_ context.Context, importNo int64, p PageRequest) (Page[ErrorEntry], error) {
	p = p.Normalize()

	r.mu.RLock()
	all := append([]ErrorEntry(nil), r.errors[importNo]...)
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].RowNo != all[j].RowNo {
			return all[i].RowNo < all[j].RowNo
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, p), nil
}

// DeleteImport implements ImportRepository.
func (r *MemoryImportRepository) DeleteImport(_ context.Context, importNo int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.imports[importNo]
	if !ok || rec.Status == StatusProcessing {
		return fmt.Errorf("import %d: %w", importNo, ErrImportNotFound)
	}
	delete(r.imports, importNo)
	delete(r.errors, importNo)
	delete(r.stock, importNo)
	delete(r.price, importNo)
	return nil
}

// Stats implements ImportRepository.
func (r *MemoryImportRepository) Stats(_ context.Context, q StatsQuery) ([]ImportStats, error) {
	r.mu.RLock()
	bySupplier := make(map[string]*ImportStats)
	for _, rec := range r.imports {
		if rec.CreatedAt.Before(q.Since) {
			continue
		}
		if q.Supplier != "" && rec.Supplier != q.Supplier {
			continue
		}
		st, ok := bySupplier[rec.Supplier]
		if !ok {
			st = &ImportStats{Supplier: rec.Supplier}
			bySupplier[rec.Supplier] = st
		}
		st.countRun(rec)
	}
	r.mu.RUnlock()

	out := make([]ImportStats, 0, len(bySupplier))
	for _, st := range bySupplier {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Supplier < out[j].Supplier })
	return out, nil
}

// StagedStock returns the committed stock rows of an import.
func (r *MemoryImportRepository) StagedStock(importNo int64) []database.UpsertStockParams {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]database.UpsertStockParams(nil), r.stock[importNo]...)
}

// StagedPrice returns the committed price rows of an import.
func (r *MemoryImportRepository) StagedPrice(importNo int64) []database.UpsertPriceParams {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]database.UpsertPriceParams(nil), r.price[importNo]...)
}

func paginate[T any](all []T, p PageRequest) Page[T] {
	page := Page[T]{Items: []T{}, Total: int64(len(all)), Page: p.Page, Size: p.Size}
	start := p.Offset()
	if start >= len(all) {
		return page
	}
	end := min(start+p.Size, len(all))
	page.Items = all[start:end]
	return page
}

// ----------------------------------------------------------------------------
// Session
// ----------------------------------------------------------------------------

type memoryImportSession struct {
	repo     *MemoryImportRepository
	importNo int64
	stock    []database.UpsertStockParams
	price    []database.UpsertPriceParams
	errors   []ErrorEntry
	done     bool
}

func (s *memoryImportSession) ImportNo() int64 { return s.importNo }

func (s *memoryImportSession) StageStock(ctx context.Context, row database.UpsertStockParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row.ImportNo = s.importNo
	for i, existing := range s.stock {
		if existing.SupplierID == row.SupplierID && existing.SupplierPartNo == row.SupplierPartNo {
			s.stock[i] = row
			return nil
		}
	}
	s.stock = append(s.stock, row)
	return nil
}

func (s *memoryImportSession) StagePrice(ctx context.Context, row database.UpsertPriceParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row.ImportNo = s.importNo
	for i, existing := range s.price {
		if existing.SupplierID == row.SupplierID && existing.SupplierPartNo == row.SupplierPartNo {
			s.price[i] = row
			return nil
		}
	}
	s.price = append(s.price, row)
	return nil
}

func (s *memoryImportSession) LogError(ctx context.Context, e ErrorEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.ImportNo = s.importNo
	s.errors = append(s.errors, e)
	return nil
}

func (s *memoryImportSession) Commit(ctx context.Context, counts ImportCounts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.done {
		return fmt.Errorf("import %d: session already closed", s.importNo)
	}
	s.done = true

	r := s.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, e := range s.errors {
		r.nextErr++
		e.ID = r.nextErr
		e.CreatedAt = now
		r.errors[s.importNo] = append(r.errors[s.importNo], e)
	}
	r.stock[s.importNo] = s.stock
	r.price[s.importNo] = s.price

	rec := r.imports[s.importNo]
	rec.TotalRows = counts.Total
	rec.SuccessRows = counts.Success
	rec.ErrorRows = counts.Errors
	rec.SkippedRows = counts.Skipped
	rec.Status = counts.Status
	rec.CompletedAt = &now
	r.imports[s.importNo] = rec
	return nil
}

func (s *memoryImportSession) Rollback(context.Context) error {
	s.done = true
	s.stock, s.price, s.errors = nil, nil, nil
	return nil
}

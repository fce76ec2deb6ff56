package core

// batch.go imports every supplier file found in an input directory.
//
// The supplier key and file type come from the file name
// (<supplier>_<stock|zaiko|price|tanka>...). Each file is one import run.
// Afterwards the file is moved, with a timestamp prefix, to the processed
// directory when every row imported, or to the error directory with a
// <timestamp>_<name>.error.log next to it. A failing file never stops the
// batch.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/backoffice/internal/ingest"
)

// ErrBatchRunning is returned when a run starts while another is active.
var ErrBatchRunning = errors.New("batch run already in progress")

// BatchConfig locates the batch directories.
type BatchConfig struct {
	InputDir     string
	ProcessedDir string
	ErrorDir     string

	// Encoding forces the CSV encoding; empty detects it per file.
	Encoding string

	// KeepFiles leaves input files in place and writes no error logs.
	// Dry runs set it.
	KeepFiles bool
}

// BatchError is one problem reported by a batch run. File-level failures
// have no row number.
type BatchError struct {
	File     string `json:"file"`
	ImportNo int64  `json:"import_no,omitempty"`
	RowNo    int    `json:"row_no,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"error_message"`
}

// FileResult is the outcome of one file.
type FileResult struct {
	File     string          `json:"file"`
	Supplier string          `json:"supplier,omitempty"`
	FileType ingest.FileType `json:"file_type,omitempty"`
	ImportNo int64           `json:"import_no,omitempty"`
	Status   ImportStatus    `json:"status"`
	MovedTo  string          `json:"moved_to,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BatchResult summarizes one batch run. ProcessedCount is the number of
// staged rows; ErrorCount adds error rows and failed files.
type BatchResult struct {
	RunID          uuid.UUID    `json:"run_id"`
	Success        bool         `json:"success"`
	ProcessedCount int          `json:"processed_count"`
	ErrorCount     int          `json:"error_count"`
	Errors         []BatchError `json:"errors"`
	Files          []FileResult `json:"files"`
	DurationMs     int64        `json:"duration_ms"`
}

// BatchRunner runs directory imports through a Service.
type BatchRunner struct {
	svc    *Service
	cfg    BatchConfig
	logger *slog.Logger
	now    func() time.Time

	running sync.Mutex
}

// NewBatchRunner creates a runner over svc.
func NewBatchRunner(svc *Service, cfg BatchConfig) *BatchRunner {
	return &BatchRunner{
		svc:    svc,
		cfg:    cfg,
		logger: svc.logger,
		now:    time.Now,
	}
}

// Run imports every supported file currently in the input directory. Only
// setup problems and cancellation return an error; file failures are
// reported in the result.
func (b *BatchRunner) Run(ctx context.Context) (BatchResult, error) {
	if !b.running.TryLock() {
		return BatchResult{}, ErrBatchRunning
	}
	defer b.running.Unlock()

	start := time.Now()
	result := BatchResult{RunID: uuid.New(), Errors: []BatchError{}, Files: []FileResult{}}
	logger := b.logger.With("run_id", result.RunID)

	files, err := b.inputFiles()
	if err != nil {
		return result, err
	}
	logger.Info("batch started", "files", len(files), "input_dir", b.cfg.InputDir)

	// Each run starts from the rules as they are now.
	b.svc.RefreshRules()

	ctx = ContextWithTrigger(ctx, TriggerBatch)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			result.DurationMs = time.Since(start).Milliseconds()
			logger.Warn("batch cancelled", "files_done", len(result.Files))
			return result, err
		}
		b.processFile(ctx, path, &result, logger)
	}

	result.Success = result.ErrorCount == 0
	result.DurationMs = time.Since(start).Milliseconds()
	logger.Info("batch completed",
		"success", result.Success,
		"files", len(result.Files),
		"processed_count", result.ProcessedCount,
		"error_count", result.ErrorCount,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// inputFiles lists supported files in the input directory, oldest name first.
func (b *BatchRunner) inputFiles() ([]string, error) {
	for _, dir := range []string{b.cfg.InputDir, b.cfg.ProcessedDir, b.cfg.ErrorDir} {
		if dir == "" {
			return nil, fmt.Errorf("batch directories are not configured")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(b.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !ingest.Supported(e.Name()) {
			b.logger.Debug("ignoring file", "file", e.Name())
			continue
		}
		files = append(files, filepath.Join(b.cfg.InputDir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (b *BatchRunner) processFile(ctx context.Context, path string, result *BatchResult, logger *slog.Logger) {
	name := filepath.Base(path)
	fr := FileResult{File: name, Status: StatusFailed}

	res, err := b.importFile(ctx, path, &fr)
	if err != nil {
		logger.Error("file failed", "file", name, "error", err)
		result.ErrorCount++
		result.Errors = append(result.Errors, BatchError{
			File:     name,
			ImportNo: fr.ImportNo,
			Message:  "File processing failed: " + err.Error(),
		})
		fr.Error = err.Error()
		fr.MovedTo, err = b.place(path, false, err.Error()+"\n"+FormatUserError(err))
		if err != nil {
			logger.Error("move failed file", "file", name, "error", err)
		}
		result.Files = append(result.Files, fr)
		return
	}

	result.ProcessedCount += res.Summary.Accepted
	result.ErrorCount += res.Summary.Errors
	messages := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		result.Errors = append(result.Errors, BatchError{
			File:     name,
			ImportNo: e.ImportNo,
			RowNo:    e.RowNo,
			Field:    e.Field,
			Message:  e.Message,
		})
		messages = append(messages, e.Message)
	}

	fr.MovedTo, err = b.place(path, res.Success(), strings.Join(messages, "\n"))
	if err != nil {
		logger.Error("move file", "file", name, "error", err)
		fr.Error = err.Error()
	}
	result.Files = append(result.Files, fr)
}

func (b *BatchRunner) importFile(ctx context.Context, path string, fr *FileResult) (ImportResult, error) {
	supplier, ok := ingest.SupplierFromFileName(fr.File)
	if !ok {
		return ImportResult{}, fmt.Errorf("%w: %s", ErrFileName, fr.File)
	}
	fr.Supplier = supplier

	fileType, ok := ingest.DetectFileType(fr.File)
	if !ok {
		return ImportResult{}, fmt.Errorf("%w: %s has no stock or price keyword", ErrFileName, fr.File)
	}
	fr.FileType = fileType

	res, err := b.svc.ImportFile(ctx, supplier, path, fileType, ingest.Options{Encoding: b.cfg.Encoding})
	fr.ImportNo = res.ImportNo
	fr.Status = res.Status
	return res, err
}

// ----------------------------------------------------------------------------
// File moves
// ----------------------------------------------------------------------------

// timestampPrefix renders t like an ISO timestamp with ':' and '.' replaced
// so the result is a valid file name on every platform.
func timestampPrefix(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// place moves a finished file to the processed directory, or to the error
// directory with message as its error log.
func (b *BatchRunner) place(path string, ok bool, message string) (string, error) {
	switch {
	case b.cfg.KeepFiles:
		return "", nil
	case ok:
		return b.moveTo(path, b.cfg.ProcessedDir)
	default:
		return b.moveToError(path, message)
	}
}

func (b *BatchRunner) moveTo(path, dir string) (string, error) {
	dest := filepath.Join(dir, timestampPrefix(b.now())+"_"+filepath.Base(path))
	if err := moveFile(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (b *BatchRunner) moveToError(path, message string) (string, error) {
	ts := timestampPrefix(b.now())
	name := filepath.Base(path)
	dest := filepath.Join(b.cfg.ErrorDir, ts+"_"+name)
	if err := moveFile(path, dest); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	logPath := filepath.Join(b.cfg.ErrorDir, ts+"_"+stem+".error.log")
	if err := os.WriteFile(logPath, []byte(message), 0o644); err != nil {
		return dest, fmt.Errorf("write error log: %w", err)
	}
	return dest, nil
}

// moveFile renames src to dest, copying when they are on different devices.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}

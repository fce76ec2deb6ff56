package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

const batchHeader = "part_number,maker_name,stock_qty,unit_price_usd,status\n"

type batchDirs struct {
	in, processed, errs string
}

func newBatchRunner(t *testing.T, env testEnv) (*BatchRunner, batchDirs) {
	t.Helper()
	root := t.TempDir()
	dirs := batchDirs{
		in:        filepath.Join(root, "input"),
		processed: filepath.Join(root, "processed"),
		errs:      filepath.Join(root, "error"),
	}
	runner := NewBatchRunner(env.svc, BatchConfig{
		InputDir:     dirs.in,
		ProcessedDir: dirs.processed,
		ErrorDir:     dirs.errs,
	})
	runner.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 15, 250_000_000, time.UTC) }
	require.NoError(t, os.MkdirAll(dirs.in, 0o755))
	return runner, dirs
}

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestBatchRunner_Run(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	runner, dirs := newBatchRunner(t, env)

	writeInput(t, dirs.in, "acme_stock_1.csv", batchHeader+"abc-1,SONY,10,2,active\nxyz-2,PANA,3,1,active\n")
	writeInput(t, dirs.in, "acme_stock_2.csv", batchHeader+"p1,SONY,5,1,active\n,SONY,4,1,active\n")
	writeInput(t, dirs.in, "123.csv", batchHeader+"a,b,1,1,active\n")
	writeInput(t, dirs.in, "ghost_price_1.csv", batchHeader+"a,b,1,1,active\n")
	writeInput(t, dirs.in, "notes.txt", "not an import")

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, 3, res.ErrorCount, "one error row plus two failed files")
	require.Len(t, res.Files, 4)
	assert.NotEqual(t, uuid.Nil, res.RunID)

	byName := map[string]FileResult{}
	for _, f := range res.Files {
		byName[f.File] = f
	}

	ts := "2024-03-01T09-30-15-250Z"
	ok := byName["acme_stock_1.csv"]
	assert.Equal(t, StatusCompleted, ok.Status)
	assert.Equal(t, "acme", ok.Supplier)
	assert.Equal(t, filepath.Join(dirs.processed, ts+"_acme_stock_1.csv"), ok.MovedTo)
	assert.FileExists(t, ok.MovedTo)

	partial := byName["acme_stock_2.csv"]
	assert.Equal(t, StatusCompletedWithErrors, partial.Status)
	assert.Equal(t, filepath.Join(dirs.errs, ts+"_acme_stock_2.csv"), partial.MovedTo)
	log, err := os.ReadFile(filepath.Join(dirs.errs, ts+"_acme_stock_2.error.log"))
	require.NoError(t, err)
	assert.Equal(t, "supplier_part_no is required", string(log))

	badName := byName["123.csv"]
	assert.Equal(t, StatusFailed, badName.Status)
	assert.Contains(t, badName.Error, ErrFileName.Error())
	assert.FileExists(t, filepath.Join(dirs.errs, ts+"_123.csv"))

	noRules := byName["ghost_price_1.csv"]
	assert.Equal(t, StatusFailed, noRules.Status)
	assert.Zero(t, noRules.ImportNo)
	log, err = os.ReadFile(filepath.Join(dirs.errs, ts+"_ghost_price_1.error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), ErrNoRules.Error())
	assert.Contains(t, string(log), "(Code: IMP003)")

	var fileFailures int
	for _, e := range res.Errors {
		if e.RowNo == 0 {
			fileFailures++
			assert.Contains(t, e.Message, "File processing failed: ")
		}
	}
	assert.Equal(t, 2, fileFailures)

	left, err := os.ReadDir(dirs.in)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "notes.txt", left[0].Name())
}

func TestBatchRunner_EmptyInput(t *testing.T) {
	env := newTestEnv(t)
	runner, dirs := newBatchRunner(t, env)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Files)
	assert.DirExists(t, dirs.processed)
	assert.DirExists(t, dirs.errs)
}

func TestBatchRunner_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	runner := NewBatchRunner(env.svc, BatchConfig{})
	_, err := runner.Run(context.Background())
	assert.Error(t, err)
}

func TestBatchRunner_RejectsOverlappingRuns(t *testing.T) {
	env := newTestEnv(t)
	runner, _ := newBatchRunner(t, env)

	runner.running.Lock()
	_, err := runner.Run(context.Background())
	runner.running.Unlock()
	assert.ErrorIs(t, err, ErrBatchRunning)
}

func TestBatchRunner_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	runner, dirs := newBatchRunner(t, env)
	writeInput(t, dirs.in, "acme_stock_1.csv", batchHeader+"abc-1,SONY,10,2,active\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, filepath.Join(dirs.in, "acme_stock_1.csv"), "untouched files stay in the input directory")
}

func TestTimestampPrefix(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	got := timestampPrefix(time.Date(2024, 3, 1, 18, 30, 15, 7_000_000, loc))
	assert.Equal(t, "2024-03-01T09-30-15-007Z", got)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.csv")
	dest := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, moveFile(src, dest))
	assert.NoFileExists(t, src)
	assert.FileExists(t, dest)

	assert.Error(t, moveFile(src, dest), "missing source")
}

// ----------------------------------------------------------------------------
// Scheduler
// ----------------------------------------------------------------------------

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{DefaultSchedule, "*/5 * * * *", "@hourly", "@every 30s"} {
		_, err := ParseSchedule(spec)
		assert.NoError(t, err, spec)
	}
	for _, spec := range []string{"", "every now and then", "* * *", "61 * * * *"} {
		_, err := ParseSchedule(spec)
		assert.Error(t, err, spec)
	}
}

func TestNewScheduler(t *testing.T) {
	env := newTestEnv(t)
	runner, _ := newBatchRunner(t, env)

	_, err := NewScheduler(runner, "nonsense", nil)
	assert.Error(t, err)

	s, err := NewScheduler(runner, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.spec)
	assert.True(t, s.Next().IsZero())
	_, ok := s.LastResult()
	assert.False(t, ok)
}

func TestScheduler_RunsOnceAtStart(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	runner, dirs := newBatchRunner(t, env)
	writeInput(t, dirs.in, "acme_stock_1.csv", batchHeader+"abc-1,SONY,10,2,active\n")

	s, err := NewScheduler(runner, "@yearly", env.svc.logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Run(ctx))
	}()

	require.Eventually(t, func() bool {
		_, ok := s.LastResult()
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	wg.Wait()

	last, _ := s.LastResult()
	assert.True(t, last.Success)
	assert.Equal(t, 1, last.ProcessedCount)
}

func TestBatchRunner_KeepFiles(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	runner, dirs := newBatchRunner(t, env)
	runner.cfg.KeepFiles = true

	writeInput(t, dirs.in, "acme_stock_1.csv", batchHeader+"abc-1,SONY,10,2,active\n")
	writeInput(t, dirs.in, "acme_stock_2.csv", batchHeader+",SONY,4,1,active\n")

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 1, res.ErrorCount)
	for _, f := range res.Files {
		assert.Empty(t, f.MovedTo)
	}

	left, err := os.ReadDir(dirs.in)
	require.NoError(t, err)
	assert.Len(t, left, 2)
	errLogs, err := os.ReadDir(dirs.errs)
	require.NoError(t, err)
	assert.Empty(t, errLogs)
}

func TestBatchRunner_RefreshesRulesPerRun(t *testing.T) {
	env := newTestEnv(t)
	seedAcme(t, env)
	runner, dirs := newBatchRunner(t, env)
	ctx := context.Background()

	writeInput(t, dirs.in, "acme_stock_1.csv", batchHeader+"abc-1,SONY,10,2,active\n")
	res, err := runner.Run(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Edited behind the cache, as another process would.
	_, err = env.store.ReplaceBasicRules(ctx, "acme", []mapping.MappingRule{
		{FileField: "maker_name", DBField: mapping.FieldSupplierMaker},
	})
	require.NoError(t, err)

	writeInput(t, dirs.in, "acme_stock_2.csv", batchHeader+"abc-1,SONY,10,2,active\n")
	res, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Files, 1)
	assert.Equal(t, StatusCompletedWithErrors, res.Files[0].Status)
}

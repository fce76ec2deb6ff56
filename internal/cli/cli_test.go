package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

const ruleFile = `
suppliers:
  acme:
    basic:
      - file_field: part_number
        db_field: supplier_part_no
      - file_field: maker_name
        db_field: supplier_maker
      - file_field: stock_qty
        db_field: stock
        type: integer
    advanced:
      - rule_name: skip discontinued
        rule_type: conditional_skip
        conditions:
          - field: status
            operator: equals
            value: discontinued
`

const stockHeader = "part_number,maker_name,stock_qty,status\n"

type workspace struct {
	rules, in, processed, errs string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("BATCH_RULES_FILE", "")

	root := t.TempDir()
	ws := workspace{
		rules:     filepath.Join(root, "rules.yaml"),
		in:        filepath.Join(root, "input"),
		processed: filepath.Join(root, "processed"),
		errs:      filepath.Join(root, "error"),
	}
	require.NoError(t, os.WriteFile(ws.rules, []byte(ruleFile), 0o644))
	require.NoError(t, os.MkdirAll(ws.in, 0o755))
	return ws
}

func (ws workspace) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(ws.in, name), []byte(content), 0o644))
}

func (ws workspace) dirFlags() []string {
	return []string{
		"--rules-file", ws.rules,
		"--input-dir", ws.in,
		"--processed-dir", ws.processed,
		"--error-dir", ws.errs,
	}
}

func execute(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRun_DryRun(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "acme_stock_1.csv", stockHeader+"abc-1,SONY,10,active\nxyz-2,PANA,3,discontinued\n")
	ws.write(t, "acme_stock_2.csv", stockHeader+"p1,SONY,5,active\n,SONY,4,active\n")

	args := append([]string{"run", "--dry-run", "--json"}, ws.dirFlags()...)
	stdout, _, err := execute(context.Background(), args...)
	require.ErrorIs(t, err, errBatchFailed)

	var res core.BatchResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, 1, res.ErrorCount)
	require.Len(t, res.Files, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "acme_stock_2.csv", res.Errors[0].File)
	assert.Equal(t, 2, res.Errors[0].RowNo)

	// Dry runs leave the input alone.
	assert.FileExists(t, filepath.Join(ws.in, "acme_stock_1.csv"))
	assert.FileExists(t, filepath.Join(ws.in, "acme_stock_2.csv"))
	entries, err := os.ReadDir(ws.errs)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_TextReport(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "acme_stock_1.csv", stockHeader+"abc-1,SONY,10,active\n")

	args := append([]string{"run", "--dry-run"}, ws.dirFlags()...)
	stdout, _, err := execute(context.Background(), args...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "(dry run): 1 files, 1 rows processed, 0 errors")
	assert.Contains(t, stdout, "acme_stock_1.csv")
	assert.Contains(t, stdout, string(core.StatusCompleted))
}

func TestRun_NeedsDatabaseWithoutDryRun(t *testing.T) {
	ws := newWorkspace(t)

	args := append([]string{"run"}, ws.dirFlags()...)
	_, _, err := execute(context.Background(), args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestSchedule_InvalidCron(t *testing.T) {
	ws := newWorkspace(t)

	args := append([]string{"schedule", "--dry-run", "--cron", "every day"}, ws.dirFlags()...)
	_, _, err := execute(context.Background(), args...)
	assert.Error(t, err)
}

func TestSchedule_StopsWhenCancelled(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "acme_stock_1.csv", stockHeader+"abc-1,SONY,10,active\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	args := append([]string{"schedule", "--dry-run", "--cron", "0 0 * * * *"}, ws.dirFlags()...)
	_, _, err := execute(ctx, args...)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(ws.in, "acme_stock_1.csv"))
}

func TestRulesExport_YAML(t *testing.T) {
	ws := newWorkspace(t)

	stdout, _, err := execute(context.Background(),
		"rules", "export", "--rules-file", ws.rules, "--supplier", "acme", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "file_field: part_number")
	assert.Contains(t, stdout, "skip discontinued")

	// The export is itself a loadable rule file.
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(stdout), 0o644))
	store, err := rules.LoadFile(path)
	require.NoError(t, err)
	basic, err := store.BasicRules(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, basic, 3)
}

func TestRulesExport_ToDirectory(t *testing.T) {
	ws := newWorkspace(t)
	dir := t.TempDir()

	_, _, err := execute(context.Background(),
		"rules", "export", "--rules-file", ws.rules, "--supplier", "acme", "--output", dir)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "mapping_rules_acme_"), name)
	assert.True(t, strings.HasSuffix(name, ".csv"), name)
}

func TestRulesExport_YAMLNeedsSupplier(t *testing.T) {
	ws := newWorkspace(t)

	_, _, err := execute(context.Background(),
		"rules", "export", "--rules-file", ws.rules, "--format", "yaml")
	assert.ErrorIs(t, err, rules.ErrInvalidRule)
}

func TestRulesCheck(t *testing.T) {
	ws := newWorkspace(t)

	stdout, _, err := execute(context.Background(), "rules", "check", ws.rules)
	require.NoError(t, err)
	assert.Contains(t, stdout, "acme: 3 basic rules, 1 advanced rules")
	assert.Contains(t, stdout, "is valid")
}

func TestRulesCheck_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suppliers:\n  acme:\n    basics: []\n"), 0o644))

	_, _, err := execute(context.Background(), "rules", "check", path)
	assert.Error(t, err)
}

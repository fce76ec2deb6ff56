package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/backoffice/internal/config"
	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/database"
	"github.com/JonMunkholm/backoffice/internal/logging"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

// env is what a command runs against.
type env struct {
	cfg    *config.Config
	svc    *core.Service
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// needsDatabase reports whether a command needs PostgreSQL. Rules come from
// the database unless a rule file is given; import runs are recorded there
// unless this is a dry run.
func (o *options) needsDatabase(cfg *config.Config, recordsImports bool) bool {
	if cfg.Batch.RulesFile == "" {
		return true
	}
	return recordsImports && !o.dryRun
}

// apply copies flag overrides into cfg.
func (o *options) apply(cfg *config.Config) {
	if o.rulesFile != "" {
		cfg.Batch.RulesFile = o.rulesFile
	}
	if o.encoding != "" {
		cfg.Import.Encoding = o.encoding
	}
	if o.inputDir != "" {
		cfg.Batch.InputDir = o.inputDir
	}
	if o.processedDir != "" {
		cfg.Batch.ProcessedDir = o.processedDir
	}
	if o.errorDir != "" {
		cfg.Batch.ErrorDir = o.errorDir
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
}

// loadConfig reads the environment without requiring DATABASE_URL, then
// again with it when the command turns out to need the database.
func (o *options) loadConfig(recordsImports bool) (*config.Config, error) {
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, err
	}
	o.apply(cfg)

	if o.needsDatabase(cfg, recordsImports) {
		if cfg, err = config.Load(); err != nil {
			return nil, err
		}
		o.apply(cfg)
	}
	return cfg, nil
}

// open builds the service. Logs go to logOut so that stdout stays free for
// command output.
func (o *options) open(ctx context.Context, logOut io.Writer, recordsImports bool) (*env, error) {
	cfg, err := o.loadConfig(recordsImports)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logOut, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "config", cfg.String(), "dry_run", o.dryRun)

	e := &env{cfg: cfg, logger: logger}
	if o.needsDatabase(cfg, recordsImports) {
		if e.pool, err = database.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}

	var store rules.Store
	if cfg.Batch.RulesFile != "" {
		mem, err := rules.LoadFile(cfg.Batch.RulesFile)
		if err != nil {
			e.Close()
			return nil, err
		}
		logger.Info("rules loaded from file", "path", cfg.Batch.RulesFile)
		store = mem
	} else {
		store = rules.NewPGStore(e.pool)
	}
	if cfg.Cache.Enabled {
		store = rules.NewCache(store, cfg.Cache.TTL)
	}

	var imports core.ImportRepository
	if e.pool != nil && recordsImports && !o.dryRun {
		imports = core.NewPGImportRepository(e.pool, cfg.Import.BatchSize)
	} else {
		imports = core.NewMemoryImportRepository()
	}

	e.svc = core.NewService(store, imports, core.OptionsFromConfig(cfg.Import, logger))
	return e, nil
}

// batchRunner builds the directory runner for e.
func (o *options) batchRunner(e *env) (*core.BatchRunner, error) {
	if e.cfg.Batch.InputDir == "" {
		return nil, fmt.Errorf("input directory is not set")
	}
	return core.NewBatchRunner(e.svc, core.BatchConfig{
		InputDir:     e.cfg.Batch.InputDir,
		ProcessedDir: e.cfg.Batch.ProcessedDir,
		ErrorDir:     e.cfg.Batch.ErrorDir,
		Encoding:     e.cfg.Import.Encoding,
		KeepFiles:    o.dryRun,
	}), nil
}

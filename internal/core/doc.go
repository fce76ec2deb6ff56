// Package core provides the business logic of the supplier import backoffice.
//
// This package has no HTTP or CLI dependencies. The API server and the batch
// importer both drive it through [Service].
//
// # Architecture
//
//   - Rules: [Service] manages basic and advanced mapping rules through a
//     rules.Store. Wrapping the store in a rules.Cache gives per-supplier
//     snapshots that are dropped on every mutation.
//   - Tests: TestBasic, TestAdvanced and TestRules run one sample row through
//     the rules; PreviewImport runs a whole file without persisting.
//   - Imports: [Service.Import] turns one parsed file into one import run.
//     Runs are persisted by an [ImportRepository]; [PGImportRepository]
//     stages rows in PostgreSQL, [MemoryImportRepository] keeps them in memory.
//   - Batch: [BatchRunner] imports a directory of supplier files and
//     [Scheduler] runs it on a cron schedule.
//
// # Import run
//
//	svc := core.NewService(rules.NewCache(store, time.Minute), repo, core.Options{})
//	res, err := svc.ImportFile(ctx, "acme", "acme_stock_20240101.csv", "", ingest.Options{})
//
// Row problems never fail an import. They are counted and written to the
// run's error log:
//
//	skipped rows          counted, not staged
//	advanced rule errors  logged, row continues
//	validation errors     logged, row not staged
//	conversion errors     logged, row not staged
//
// The run ends completed when no row was an error row and
// completed_with_errors otherwise. An error that stops the file (unreadable
// file, no rules, database failure) rolls back everything the run staged and
// marks it failed.
//
// # Concurrency
//
// [ImportLimiter] bounds concurrent imports across the process. Within one
// import, rows are processed by a bounded worker pool; outcomes keep input
// order so error logs stay attributable to the right row.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//	msg := core.MapError(err)
//	// msg.Message: "No mapping rules exist for this supplier"
//	// msg.Action:  "Create basic mapping rules before importing"
//	// msg.Code:    "IMP003"
package core

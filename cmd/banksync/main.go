package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/banksync/internal/archive"
	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
	"github.com/rumor-ml/commons.systems/banksync/internal/config"
	"github.com/rumor-ml/commons.systems/banksync/internal/output"
	"github.com/rumor-ml/commons.systems/banksync/internal/rules"
	"github.com/rumor-ml/commons.systems/banksync/internal/server"
	"github.com/rumor-ml/commons.systems/banksync/internal/state"
	syncer "github.com/rumor-ml/commons.systems/banksync/internal/sync"
	"github.com/rumor-ml/commons.systems/banksync/internal/ui"
	"github.com/rumor-ml/commons.systems/banksync/internal/validate"
)

const (
	version = "0.1.0"

	dateLayout = "2006-01-02"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	configFile = flag.String("config", "", "Configuration file with API credentials and accounts (required)")
	fromFlag   = flag.String("from", "", "Statement window start (YYYY-MM-DD, default: last synced date)")
	toFlag     = flag.String("to", "", "Statement window end (YYYY-MM-DD, default: today)")
	dryRun     = flag.Bool("dry-run", false, "Show what would be synced without fetching")
	verbose    = flag.Bool("verbose", false, "Show detailed sync logs")

	// Output and merge flags
	outputFile = flag.String("output", "", "Output JSON file (default: stdout)")
	mergeMode  = flag.Bool("merge", false, "Merge with existing output file")

	// Sync history and rules flags
	stateFile   = flag.String("state", "", "Sync state file tracking per-account history")
	rulesFile   = flag.String("rules", "", "Category rules file")
	archiveFile = flag.String("db", "", "SQLite archive database for sync runs")

	// Server mode flags
	serveFlag = flag.Bool("serve", false, "Run as an HTTP API server instead of a one-shot sync")
	port      = flag.Int("port", 8080, "HTTP server port (with -serve)")
	projectID = flag.String("project", "", "Firebase project ID (required with -serve)")
)

func main() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `banksync - Bank of Georgia Business statement sync

Usage:
  banksync [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Sync all configured accounts to stdout
  banksync -config banksync.yaml

  # Sync to file with state tracking and an archive database
  banksync -config banksync.yaml -output sync.json -state state.json -db archive.db

  # Dry run with verbose output
  banksync -config banksync.yaml -dry-run -verbose

  # Run the HTTP API server
  banksync -config banksync.yaml -serve -project my-firebase-project

`)
	}

	flag.Parse()

	// Handle version flag
	if *versionFlag {
		fmt.Printf("banksync version %s\n", version)
		os.Exit(0)
	}

	// Validate required flags
	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *serveFlag && *projectID == "" {
		fmt.Fprintf(os.Stderr, "Error: -project flag is required with -serve\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// TODO(#47): Add context cancellation support for graceful Ctrl+C handling.
	// A sync run that is interrupted mid-window leaves state untouched, so a
	// retry re-fetches the same window. signal.NotifyContext would let us stop
	// between accounts and still record the accounts already synced.
	ctx := context.Background()

	if !*verbose {
		ui.Header("Syncing Bank Statements")
		ui.Step(1, 5, "Loading configuration")
	} else {
		fmt.Fprintf(os.Stderr, "Loading configuration: %s\n", *configFile)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	accounts := cfg.BankAccounts()
	if *verbose {
		fmt.Fprintf(os.Stderr, "Configured accounts: %d\n", len(accounts))
		for _, a := range accounts {
			fmt.Fprintf(os.Stderr, "  - %s (%s)\n", a.ID, a.Currency)
		}
	} else {
		ui.Success(fmt.Sprintf("Loaded %d configured accounts", len(accounts)))
	}

	// Server mode replaces the one-shot sync entirely.
	if *serveFlag {
		return serve(ctx, cfg)
	}

	// Load sync state if provided
	if !*verbose {
		ui.Step(2, 5, "Loading sync state")
	}
	var st *state.State
	if *stateFile != "" {
		loaded, err := state.Load(*stateFile)
		if err != nil {
			if os.IsNotExist(err) {
				// State file doesn't exist, create new
				st = state.New()
				if *verbose {
					fmt.Fprintf(os.Stderr, "State file not found, creating new state\n")
				}
			} else {
				// The state file exists but cannot be loaded. Overwriting it
				// with fresh state would lose every account's sync history and
				// make the next default window re-fetch everything.
				var pathErr *os.PathError
				if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrPermission) {
					return fmt.Errorf("failed to load state file %q: permission denied: %w\n\nThe state file exists but cannot be read.\nCheck file permissions before retrying: ls -la %q", *stateFile, err, *stateFile)
				}
				return fmt.Errorf("failed to load existing state file %q: %w\n\nThe state file exists but cannot be loaded.\nDeleting it resets every account's sync history (the next run re-fetches the full default window).\nBack it up before resetting: cp %q %q.backup && rm %q", *stateFile, err, *stateFile, *stateFile, *stateFile)
			}
		} else {
			st = loaded
			if err := st.Validate(); err != nil {
				return fmt.Errorf("state file %q failed validation: %w\n\nBack it up and reset to re-sync from scratch: cp %q %q.backup && rm %q",
					*stateFile, err, *stateFile, *stateFile, *stateFile)
			}
			if *verbose {
				fmt.Fprintf(os.Stderr, "Loaded state covering %d accounts\n", st.TotalAccounts())
			}
		}
	}

	// Resolve the statement window
	from, to, err := resolveWindow(st, accounts, *fromFlag, *toFlag, time.Now())
	if err != nil {
		return err
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Statement window: %s to %s\n",
			from.Format(dateLayout), to.Format(dateLayout))
	} else {
		ui.Info(fmt.Sprintf("Window: %s to %s", from.Format(dateLayout), to.Format(dateLayout)))
	}

	// Dry run mode: stop before fetching anything
	if *dryRun {
		fmt.Printf("Dry run complete. Would sync %d accounts from %s to %s.\n",
			len(accounts), from.Format(dateLayout), to.Format(dateLayout))
		return nil
	}

	// Load rules engine
	if !*verbose {
		ui.Step(3, 5, "Loading category rules")
	}
	var engine *rules.Engine
	if *rulesFile != "" {
		engine, err = rules.LoadFromFile(*rulesFile)
		if err != nil {
			return fmt.Errorf("failed to load rules file: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Loaded %d custom rules from %s\n", len(engine.GetRules()), *rulesFile)
		}
	} else {
		engine, err = rules.LoadEmbedded()
		if err != nil {
			return fmt.Errorf("failed to load embedded rules: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Loaded %d embedded rules\n", len(engine.GetRules()))
		}
	}

	// Fetch and convert statements
	if *verbose {
		fmt.Fprintln(os.Stderr, "\nFetching and converting statements...")
	} else {
		ui.Step(4, 5, "Fetching and converting statements")
	}

	client := bog.NewClient(cfg.API.BaseURL, cfg.API.Token)
	sync := syncer.NewEngine(client, cfg.IsExcluded)

	recordsByAccount := make(map[string]int)
	processed := 0
	sync.OnAccount = func(account bog.Account, records int) {
		processed++
		recordsByAccount[account.ID] = records
		if *verbose {
			fmt.Fprintf(os.Stderr, "  Synced %s (%s): %d records\n", account.ID, account.Currency, records)
		} else {
			percentage := float64(processed) / float64(len(accounts)) * 100
			fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d accounts (%.0f%%)...", processed, len(accounts), percentage)
		}
	}

	result, stats, err := sync.Run(ctx, accounts, from, to)
	if err != nil {
		return fmt.Errorf("sync failed after %d of %d accounts: %w", processed, len(accounts), err)
	}

	// Clear progress indicator in non-verbose mode
	if !*verbose && len(accounts) > 0 {
		fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d accounts (100%%) - Complete!\n", len(accounts), len(accounts))
	}

	// Categorize transactions. Transactions() hands back a copy, so the
	// categorized slice has to be stored back explicitly.
	txns := result.Transactions()
	matched := engine.Categorize(txns)
	result.SetTransactions(txns)

	if *verbose {
		fmt.Fprintf(os.Stderr, "\nSync complete:\n")
		fmt.Fprintf(os.Stderr, "  Accounts synced: %d\n", stats.AccountsSynced)
		fmt.Fprintf(os.Stderr, "  Accounts skipped: %d\n", stats.AccountsSkipped)
		fmt.Fprintf(os.Stderr, "  Records fetched: %d\n", stats.RecordsFetched)
		fmt.Fprintf(os.Stderr, "  Transactions: %d\n", stats.TransactionsProduced)
		fmt.Fprintf(os.Stderr, "  Transfers merged: %d\n", stats.TransactionsMerged)
	}

	// Rule matching statistics (always, not just verbose)
	if total := len(txns); total > 0 {
		coverage := float64(matched) / float64(total) * 100
		if *verbose {
			fmt.Fprintf(os.Stderr, "\nRule matching statistics:\n")
			fmt.Fprintf(os.Stderr, "  Matched: %d (%.1f%%)\n", matched, coverage)
			fmt.Fprintf(os.Stderr, "  Unmatched: %d\n", total-matched)
		} else {
			fmt.Fprintf(os.Stderr, "\n")
			ui.Info(fmt.Sprintf("Rule coverage: %.1f%% (%d/%d matched)", coverage, matched, total))
		}
		if coverage < 80.0 {
			if *verbose {
				fmt.Fprintf(os.Stderr, "  WARNING: Rule coverage is %.1f%% (below 80%% target)\n", coverage)
			} else {
				ui.Warning(fmt.Sprintf("Rule coverage %.1f%% below 80%% target (%d unmatched)", coverage, total-matched))
			}
		}
	}

	// Validate before saving
	if !*verbose {
		fmt.Fprintf(os.Stderr, "\n")
		ui.Step(5, 5, "Validating sync result")
	} else {
		fmt.Fprintf(os.Stderr, "\nValidating sync result...\n")
	}

	validation := validate.ValidateResult(result)
	if len(validation.Errors) > 0 {
		if *verbose {
			fmt.Fprintf(os.Stderr, "\nValidation failed with %d errors:\n", len(validation.Errors))
			for _, e := range validation.Errors {
				fmt.Fprintf(os.Stderr, "  - %s %s [%s]: %s\n", e.Entity, e.ID, e.Field, e.Message)
			}
		} else {
			ui.Error(fmt.Sprintf("Validation failed with %d errors", len(validation.Errors)))
			ui.Info("Showing first 5 errors (run with -verbose to see all):")
			for i, e := range validation.Errors {
				if i >= 5 {
					ui.Error(fmt.Sprintf("... and %d more errors", len(validation.Errors)-5))
					break
				}
				ui.Error(fmt.Sprintf("%s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message))
			}
		}
		return fmt.Errorf("validation failed with %d errors", len(validation.Errors))
	}

	if len(validation.Warnings) > 0 {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Validation warnings (%d):\n", len(validation.Warnings))
			for _, w := range validation.Warnings {
				fmt.Fprintf(os.Stderr, "  - %s %s [%s]: %s\n", w.Entity, w.ID, w.Field, w.Message)
			}
		} else {
			ui.Warning(fmt.Sprintf("Validation produced %d warnings", len(validation.Warnings)))
		}
	} else if !*verbose {
		ui.Success("Validation passed")
	} else {
		fmt.Fprintf(os.Stderr, "Validation passed\n")
	}

	// Save state before writing output so a failed write can be retried
	// without the next default window re-covering this run.
	if st != nil && *stateFile != "" {
		for _, a := range accounts {
			if cfg.IsExcluded(a.ID) {
				continue
			}
			if err := st.RecordRun(a.ID, to, recordsByAccount[a.ID]); err != nil {
				return fmt.Errorf("failed to record sync run for account %s: %w", a.ID, err)
			}
		}
		if err := state.Save(st, *stateFile); err != nil {
			fmt.Fprintf(os.Stderr, "\nERROR: Failed to save sync state: %v\n", err)
			fmt.Fprintf(os.Stderr, "Output will NOT be written; the next run re-fetches this window.\n")
			if strings.Contains(err.Error(), "permission denied") {
				fmt.Fprintf(os.Stderr, "\nPermission denied - check directory permissions for %q\n", *stateFile)
			}
			return fmt.Errorf("failed to save state file before writing output: %w", err)
		} else if *verbose {
			fmt.Fprintf(os.Stderr, "Saved state covering %d accounts to %s\n", st.TotalAccounts(), *stateFile)
		}
	}

	opts := output.WriteOptions{
		MergeMode: *mergeMode,
		FilePath:  *outputFile,
	}
	if err := output.WriteResultToFile(result, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if *outputFile != "" {
		if *verbose {
			fmt.Printf("\nOutput written to %s\n", *outputFile)
		} else {
			fmt.Fprintf(os.Stderr, "\n")
			ui.Success(fmt.Sprintf("Output written to %s", *outputFile))
		}
	}

	// Archive the run after the output is safely on disk.
	if *archiveFile != "" {
		store, err := archive.Open(*archiveFile)
		if err != nil {
			return fmt.Errorf("failed to open archive database: %w", err)
		}
		defer store.Close()

		runID, err := store.ArchiveRun(result, from, to, stats.RecordsFetched)
		if err != nil {
			return fmt.Errorf("failed to archive sync run: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Archived run %s to %s\n", runID, *archiveFile)
		} else {
			ui.Success(fmt.Sprintf("Archived run %s", runID))
		}
	}

	return nil
}

// resolveWindow derives the statement date range for one run. Explicit
// flags win; otherwise the state file supplies the start date. DefaultFrom
// returns the zero time when any account has never been synced, so a fresh
// or incomplete state takes the same 30-day window as running with no
// state at all.
func resolveWindow(st *state.State, accounts []bog.Account, fromArg, toArg string, now time.Time) (time.Time, time.Time, error) {
	to := now
	if toArg != "" {
		parsed, err := time.Parse(dateLayout, toArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to date %q: %w (expected YYYY-MM-DD)", toArg, err)
		}
		to = parsed
	}

	var from time.Time
	switch {
	case fromArg != "":
		parsed, err := time.Parse(dateLayout, fromArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from date %q: %w (expected YYYY-MM-DD)", fromArg, err)
		}
		from = parsed
	case st != nil:
		ids := make([]string, 0, len(accounts))
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
		from = st.DefaultFrom(ids)
	}
	if from.IsZero() {
		from = now.AddDate(0, 0, -30)
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window: -from %s is after -to %s",
			from.Format(dateLayout), to.Format(dateLayout))
	}
	return from, to, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	srv, err := server.New(ctx, *projectID, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer srv.Close()

	addr := fmt.Sprintf(":%d", *port)
	if *verbose {
		fmt.Fprintf(os.Stderr, "Listening on %s\n", addr)
	} else {
		ui.Success(fmt.Sprintf("Listening on %s", addr))
	}
	return http.ListenAndServe(addr, srv.Handler())
}

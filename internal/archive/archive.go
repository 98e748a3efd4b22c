// Package archive persists sync runs and their results to a local SQLite
// database. The archive is an audit trail: the JSON output file is the
// host-facing artifact, the archive answers "what did we fetch and when".
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	from_date     TEXT NOT NULL,
	to_date       TEXT NOT NULL,
	accounts      INTEGER NOT NULL,
	records       INTEGER NOT NULL,
	transactions  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES sync_runs(id),
	title      TEXT NOT NULL,
	type       TEXT NOT NULL,
	instrument TEXT NOT NULL,
	balance    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL REFERENCES sync_runs(id),
	date      TEXT NOT NULL,
	hold      INTEGER NOT NULL,
	comment   TEXT NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	movements TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
`

// Store wraps the archive database connection
type Store struct {
	conn *sql.DB
	path string
}

// Run is one archived sync run
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	From         time.Time
	To           time.Time
	Accounts     int
	Records      int
	Transactions int
}

// Open creates the archive database, its directory and schema as needed
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	// WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// ArchiveRun stores one completed sync run with its full result.
// Everything goes in a single transaction so a failed archive never
// leaves a run without its rows. Returns the generated run id.
func (s *Store) ArchiveRun(result *domain.SyncResult, from, to time.Time, records int) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}

	runID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	transactions := result.Transactions()
	accounts := result.Accounts()

	_, err = tx.Exec(
		`INSERT INTO sync_runs (id, started_at, finished_at, from_date, to_date, accounts, records, transactions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		len(accounts),
		records,
		len(transactions),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert sync run: %w", err)
	}

	for _, acc := range accounts {
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO accounts (id, run_id, title, type, instrument, balance)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			acc.ID, runID, acc.Title, string(acc.Type), acc.Instrument, acc.Balance,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert account %s: %w", acc.ID, err)
		}
	}

	for i, txn := range transactions {
		movements, err := json.Marshal(txn.Movements)
		if err != nil {
			return "", fmt.Errorf("failed to encode movements of transaction %d: %w", i, err)
		}
		hold := 0
		if txn.Hold {
			hold = 1
		}
		_, err = tx.Exec(
			`INSERT INTO transactions (run_id, date, hold, comment, category, movements)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, txn.Date.Format(time.RFC3339), hold, txn.Comment, string(txn.Category), string(movements),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert transaction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	return runID, nil
}

// ListRuns returns archived runs, newest first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.conn.Query(
		`SELECT id, started_at, finished_at, from_date, to_date, accounts, records, transactions
		 FROM sync_runs
		 ORDER BY started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished, from, to string

		if err := rows.Scan(&r.ID, &started, &finished, &from, &to, &r.Accounts, &r.Records, &r.Transactions); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("failed to parse started_at of run %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at of run %s: %w", r.ID, err)
		}
		if r.From, err = time.Parse("2006-01-02", from); err != nil {
			return nil, fmt.Errorf("failed to parse from_date of run %s: %w", r.ID, err)
		}
		if r.To, err = time.Parse("2006-01-02", to); err != nil {
			return nil, fmt.Errorf("failed to parse to_date of run %s: %w", r.ID, err)
		}

		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// TransactionsForRun reads back the transactions archived for one run,
// in insertion order.
func (s *Store) TransactionsForRun(runID string) ([]domain.Transaction, error) {
	rows, err := s.conn.Query(
		`SELECT date, hold, comment, category, movements
		 FROM transactions
		 WHERE run_id = ?
		 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var date, movements string
		var hold int

		if err := rows.Scan(&date, &hold, &txn.Comment, &txn.Category, &movements); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if txn.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("failed to parse transaction date: %w", err)
		}
		txn.Hold = hold != 0
		if err := json.Unmarshal([]byte(movements), &txn.Movements); err != nil {
			return nil, fmt.Errorf("failed to decode movements: %w", err)
		}

		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// Package sync runs one synchronization pass: fetch balances and statements
// for the configured accounts, convert every record, group related
// transactions and return the (accounts, transactions) pair.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
	"github.com/rumor-ml/commons.systems/banksync/internal/convert"
	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
	"github.com/rumor-ml/commons.systems/banksync/internal/group"
)

// Source fetches balances and statements from the bank. Network concerns
// (auth, retries, timeouts) live entirely behind this interface; the engine
// assumes it only ever receives well-formed responses once a call returns
// without error.
type Source interface {
	FetchBalance(ctx context.Context, account bog.Account) (*bog.BalanceResponse, error)
	FetchStatement(ctx context.Context, account bog.Account, from, to time.Time) (*bog.StatementResponse, error)
}

// Stats summarizes one run.
type Stats struct {
	AccountsSynced       int
	AccountsSkipped      int
	RecordsFetched       int
	TransactionsProduced int
	TransactionsMerged   int
}

// Engine orchestrates a sync run. Fetches are awaited strictly sequentially,
// one account at a time; the only accumulating state is the combined record
// list appended to by this single control flow.
type Engine struct {
	source Source
	skip   func(accountID string) bool

	// OnAccount, when set, is called after each account's statement has
	// been fetched and annotated. The serve mode uses it to broadcast
	// progress events.
	OnAccount func(account bog.Account, records int)
}

// NewEngine creates an engine over the given source. skip, when non-nil, is
// consulted once per configured account before any fetch is issued for it.
func NewEngine(source Source, skip func(accountID string) bool) *Engine {
	return &Engine{source: source, skip: skip}
}

// Run executes one sync pass over the configured accounts for the given
// date range. A zero to defaults to now. Either every accumulated record
// converts successfully and the run returns a full result, or the first
// unrecognized record aborts the run; there is no partial-success mode.
func (e *Engine) Run(ctx context.Context, accounts []bog.Account, from, to time.Time) (*domain.SyncResult, *Stats, error) {
	if to.IsZero() {
		to = time.Now()
	}

	result := domain.NewSyncResult()
	stats := &Stats{}

	var records []bog.AccountRecord
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid account configuration: %w", err)
		}
		if e.skip != nil && e.skip(account.ID) {
			stats.AccountsSkipped++
			continue
		}

		balance, err := e.source.FetchBalance(ctx, account)
		if err != nil {
			return nil, nil, fmt.Errorf("balance fetch for account %s: %w", account.ID, err)
		}
		account.Balance = balance.CurrentBalance

		if err := result.AddAccount(convert.ConvertAccount(account)); err != nil {
			return nil, nil, err
		}

		statement, err := e.source.FetchStatement(ctx, account, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("statement fetch for account %s: %w", account.ID, err)
		}

		annotated := convert.AnnotateRecords(statement.Records, account)
		records = append(records, annotated...)

		stats.AccountsSynced++
		stats.RecordsFetched += len(annotated)

		if e.OnAccount != nil {
			e.OnAccount(account, len(annotated))
		}
	}

	// Convert each record against the full combined list so cross-account
	// lookups see every record of the run. Output order follows record
	// accumulation order; the engine never reorders or deduplicates.
	transactions := make([]domain.Transaction, 0, len(records))
	for _, record := range records {
		txn, err := convert.ConvertRecord(record, records)
		if err != nil {
			return nil, nil, err
		}
		transactions = append(transactions, txn)
	}
	stats.TransactionsProduced = len(transactions)

	adjusted := group.AdjustTransactions(transactions)
	stats.TransactionsMerged = len(transactions) - len(adjusted)

	for _, txn := range adjusted {
		if err := result.AddTransaction(txn); err != nil {
			return nil, nil, err
		}
	}

	return result, stats, nil
}

// Package convert maps Bank of Georgia Business statement data into the
// host account/transaction model: the account adapter, the record annotator
// and the record-to-transaction conversion engine. Everything in this
// package is pure; nothing here performs I/O or mutates its inputs.
package convert

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

// ConvertAccount maps a bank account descriptor into the host account
// representation. The account's own id is used both as primary id and as
// its sole external sync identifier; the balance is copied verbatim.
func ConvertAccount(account bog.Account) domain.Account {
	return domain.Account{
		ID:         account.ID,
		Title:      fmt.Sprintf("BoG Business %s", account.Currency),
		Type:       domain.AccountTypeChecking,
		Instrument: account.Currency,
		SyncIDs:    []string{account.ID},
		Balance:    account.Balance,
	}
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccountType represents the host account type enum.
// Use ValidateAccountType to ensure validity before use.
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeInvestment AccountType = "investment"
)

// Category is an optional host-side classification attached to a transaction
// by the rules engine. It is never consulted by the conversion engine itself.
type Category string

const (
	CategoryIncome    Category = "income"
	CategoryPayroll   Category = "payroll"
	CategoryFees      Category = "fees"
	CategoryTaxes     Category = "taxes"
	CategoryUtilities Category = "utilities"
	CategoryTransfer  Category = "transfer"
	CategoryExchange  Category = "exchange"
	CategorySupplies  Category = "supplies"
	CategoryTravel    Category = "travel"
	CategoryOther     Category = "other"
)

var (
	validAccountTypes = map[AccountType]struct{}{
		AccountTypeChecking: {}, AccountTypeSavings: {},
		AccountTypeCredit: {}, AccountTypeInvestment: {},
	}

	validCategories = map[Category]struct{}{
		CategoryIncome: {}, CategoryPayroll: {}, CategoryFees: {},
		CategoryTaxes: {}, CategoryUtilities: {}, CategoryTransfer: {},
		CategoryExchange: {}, CategorySupplies: {}, CategoryTravel: {},
		CategoryOther: {},
	}
)

// Account is the host account record produced by the account adapter.
// The bank account id doubles as the sole external sync identifier.
type Account struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Type       AccountType `json:"type"`
	Instrument string      `json:"instrument"` // ISO currency code
	SyncIDs    []string    `json:"syncIds"`
	Balance    float64     `json:"balance"`
}

// Company identifies a counterparty organization by name. The host resolves
// it by identity matching; this side never owns or creates the counterparty.
type Company struct {
	ID string `json:"id"`
}

// AccountRef references the account a movement touches. A movement on an
// account owned by this sync carries a direct ID. A counterparty movement
// carries a weak reference instead: type, instrument, optional company and
// sync identifiers, enough for the host to resolve or materialize the
// account by identity matching.
type AccountRef struct {
	ID         string      `json:"id,omitempty"`
	Type       AccountType `json:"type,omitempty"`
	Instrument string      `json:"instrument,omitempty"`
	Company    *Company    `json:"company,omitempty"`
	SyncIDs    []string    `json:"syncIds,omitempty"`
}

// Invoice is the billed amount of a movement in a foreign instrument.
// The conversion engine never populates it; the field exists so movements
// serialize with the shape the host expects.
type Invoice struct {
	Sum        float64 `json:"sum"`
	Instrument string  `json:"instrument"`
}

// Movement is one account leg (debit or credit) of a transaction.
// ID is the bank entry id for legs on an owned account and nil for
// counterparty legs.
type Movement struct {
	ID      *string    `json:"id"`
	Account AccountRef `json:"account"`
	Sum     float64    `json:"sum"`
	Fee     float64    `json:"fee"`
	Invoice *Invoice   `json:"invoice"`
}

// Merchant describes the transaction counterparty for display purposes.
type Merchant struct {
	City     *string `json:"city"`
	Country  *string `json:"country"`
	MCC      *int    `json:"mcc"`
	Title    string  `json:"title"`
	Location *string `json:"location"`
}

// Transaction is the normalized host transaction. GroupKeys, when present,
// holds exactly one value: the bank document key shared by related legs.
// The grouping post-pass is the only consumer of that value.
type Transaction struct {
	Hold      bool       `json:"hold"`
	Date      time.Time  `json:"date"`
	Movements []Movement `json:"movements"`
	Merchant  *Merchant  `json:"merchant"`
	Comment   string     `json:"comment"`
	GroupKeys []string   `json:"groupKeys,omitempty"`
	Category  Category   `json:"category,omitempty"`
}

// Validate checks the structural invariants of a transaction.
func (t *Transaction) Validate() error {
	if len(t.Movements) == 0 {
		return fmt.Errorf("transaction must have at least one movement")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if t.GroupKeys != nil && len(t.GroupKeys) != 1 {
		return fmt.Errorf("groupKeys must hold exactly one key, got %d", len(t.GroupKeys))
	}
	if t.Category != "" && !ValidateCategory(t.Category) {
		return fmt.Errorf("invalid category: %s", t.Category)
	}
	return nil
}

// OwnMovements returns the movements referencing owned accounts (non-nil
// movement id), preserving order.
func (t *Transaction) OwnMovements() []Movement {
	var own []Movement
	for _, m := range t.Movements {
		if m.ID != nil {
			own = append(own, m)
		}
	}
	return own
}

// SyncResult is the (accounts, transactions) pair returned by one sync run.
type SyncResult struct {
	accounts     []Account
	transactions []Transaction
}

// NewSyncResult creates an empty result with initialized slices.
func NewSyncResult() *SyncResult {
	return &SyncResult{
		accounts:     []Account{},
		transactions: []Transaction{},
	}
}

// AddAccount adds a validated account, rejecting duplicate ids.
func (r *SyncResult) AddAccount(acc Account) error {
	if acc.ID == "" || acc.Instrument == "" {
		return fmt.Errorf("invalid account: ID and Instrument are required")
	}
	if !ValidateAccountType(acc.Type) {
		return fmt.Errorf("invalid account type: %s", acc.Type)
	}
	for _, existing := range r.accounts {
		if existing.ID == acc.ID {
			return fmt.Errorf("account %s already exists", acc.ID)
		}
	}
	r.accounts = append(r.accounts, acc)
	return nil
}

// AddTransaction adds a validated transaction, preserving insertion order.
func (r *SyncResult) AddTransaction(txn Transaction) error {
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	r.transactions = append(r.transactions, txn)
	return nil
}

// SetTransactions replaces the transaction list wholesale. The grouping
// post-pass uses it to install the merged list.
func (r *SyncResult) SetTransactions(txns []Transaction) {
	r.transactions = append([]Transaction(nil), txns...)
}

// Accounts returns a copy of the accounts slice.
func (r *SyncResult) Accounts() []Account {
	return append([]Account(nil), r.accounts...)
}

// Transactions returns a copy of the transactions slice.
func (r *SyncResult) Transactions() []Transaction {
	return append([]Transaction(nil), r.transactions...)
}

// MarshalJSON implements custom JSON marshaling for SyncResult.
func (r *SyncResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Accounts     []Account     `json:"accounts"`
		Transactions []Transaction `json:"transactions"`
	}{
		Accounts:     r.accounts,
		Transactions: r.transactions,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for SyncResult.
func (r *SyncResult) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Accounts     []Account     `json:"accounts"`
		Transactions []Transaction `json:"transactions"`
	}{}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	r.accounts = aux.Accounts
	r.transactions = aux.Transactions
	return nil
}

// ValidateAccountType checks if account type is valid.
func ValidateAccountType(t AccountType) bool {
	_, ok := validAccountTypes[t]
	return ok
}

// ValidateCategory checks if category is valid.
func ValidateCategory(c Category) bool {
	_, ok := validCategories[c]
	return ok
}

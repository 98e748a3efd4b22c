// Package bog holds the Bank of Georgia Business Online API types consumed
// by the sync engine: account descriptors, raw statement records and the
// responses of the balance/statement endpoints.
package bog

import "fmt"

// ProductGroup classifies a statement entry's economic nature. The set is
// closed: the conversion engine fails loudly on any code not listed here so
// new bank entry types surface immediately instead of producing incorrect
// financial data.
type ProductGroup string

const (
	// ProductGroupTransferNational is a transfer in the national currency.
	ProductGroupTransferNational ProductGroup = "PMD"
	// ProductGroupTransferForeign is a transfer in a foreign currency.
	ProductGroupTransferForeign ProductGroup = "PMI"
	// ProductGroupCurrencyExchange is a currency exchange between own accounts.
	ProductGroupCurrencyExchange ProductGroup = "CCO"
	// ProductGroupCommission is a bank commission.
	ProductGroupCommission ProductGroup = "COM"
	// ProductGroupFee is a bank fee.
	ProductGroupFee ProductGroup = "FEE"
	// ProductGroupVerification is a verification entry, the bank's fee for a
	// document or certificate.
	ProductGroupVerification ProductGroup = "VE"
	// ProductGroupCardPayment is a card payment.
	ProductGroupCardPayment ProductGroup = "TRN"
	// ProductGroupAutoConversion is one leg of an automatic currency
	// conversion the bank reports as two separate one-sided entries.
	ProductGroupAutoConversion ProductGroup = "PLC"
)

var knownProductGroups = map[ProductGroup]struct{}{
	ProductGroupTransferNational: {}, ProductGroupTransferForeign: {},
	ProductGroupCurrencyExchange: {}, ProductGroupCommission: {},
	ProductGroupFee: {}, ProductGroupVerification: {},
	ProductGroupCardPayment: {}, ProductGroupAutoConversion: {},
}

// Known reports whether the product group is one the engine handles.
func (g ProductGroup) Known() bool {
	_, ok := knownProductGroups[g]
	return ok
}

// Account is one configured bank account. Balance starts at zero and is
// overwritten once per run from a balance fetch; it is immutable thereafter
// within the run.
type Account struct {
	ID       string
	Currency string // ISO code
	Balance  float64
}

// CounterpartyDetails carries sender or beneficiary identity. The API emits
// empty strings, never null, when a field is unknown.
type CounterpartyDetails struct {
	Name          string `json:"Name"`
	AccountNumber string `json:"AccountNumber"`
}

// Record is one raw bank statement line, field names as consumed verbatim
// from the API.
type Record struct {
	EntryID                     string              `json:"EntryId"`
	EntryDate                   string              `json:"EntryDate"` // YYYY-MM-DD[...], local bank time
	EntryAmount                 float64             `json:"EntryAmount"`
	EntryAmountDebit            float64             `json:"EntryAmountDebit"`
	EntryComment                string              `json:"EntryComment"`
	DocumentKey                 string              `json:"DocumentKey"`
	DocumentProductGroup        ProductGroup        `json:"DocumentProductGroup"`
	DocumentNomination          string              `json:"DocumentNomination"`
	DocumentSourceCurrency      string              `json:"DocumentSourceCurrency"`
	DocumentSourceAmount        float64             `json:"DocumentSourceAmount"`
	DocumentDestinationCurrency string              `json:"DocumentDestinationCurrency"`
	SenderDetails               CounterpartyDetails `json:"SenderDetails"`
	BeneficiaryDetails          CounterpartyDetails `json:"BeneficiaryDetails"`
}

// AccountRecord is a Record annotated with the owning account's currency and
// id, so each record is self-describing during conversion. Produced once per
// record before conversion; conversion never mutates it.
type AccountRecord struct {
	Record
	Currency  string
	AccountID string
}

// BalanceResponse is the balance endpoint payload.
type BalanceResponse struct {
	CurrentBalance float64 `json:"CurrentBalance"`
}

// StatementResponse is the statement endpoint payload for one date range.
type StatementResponse struct {
	Records []Record `json:"Records"`
}

// Validate checks the fields the sync engine requires on a configured account.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	if a.Currency == "" {
		return fmt.Errorf("account %s: currency cannot be empty", a.ID)
	}
	return nil
}

package convert

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

// mccPattern extracts a 4-digit merchant category code embedded in the
// free-text entry comment.
var mccPattern = regexp.MustCompile(`MCC:\s*(\d{4})`)

// UnknownProductGroupError reports a record whose product-group code matches
// none of the known cases. It is fatal for the current run: silently
// skipping the record would misstate account balances.
type UnknownProductGroupError struct {
	EntryID string
	Group   bog.ProductGroup
}

func (e *UnknownProductGroupError) Error() string {
	return fmt.Sprintf("record %s: unknown DocumentProductGroup %q", e.EntryID, e.Group)
}

// ConvertRecord converts one annotated statement record into a normalized
// host transaction. allRecords is the complete annotated set for the run,
// across all accounts; it enables the cross-account lookup for automatic
// conversion legs and is never mutated. The call is deterministic: the same
// inputs always yield the same transaction.
func ConvertRecord(record bog.AccountRecord, allRecords []bog.AccountRecord) (domain.Transaction, error) {
	date, err := ParseEntryDate(record.EntryDate)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("record %s: %w", record.EntryID, err)
	}

	txn := domain.Transaction{
		Hold:      false,
		Date:      date,
		Movements: []domain.Movement{ownMovement(record, record.EntryAmount)},
		Merchant:  merchantFor(record),
		Comment:   record.EntryComment,
	}

	switch record.DocumentProductGroup {
	case bog.ProductGroupTransferNational, bog.ProductGroupTransferForeign:
		if record.EntryAmount < 0 {
			// Outgoing transfer: the counterparty receives the gross debit
			// amount and is identified by the beneficiary details.
			txn.Movements = append(txn.Movements,
				counterpartyMovement(record, record.EntryAmountDebit, false))
		} else {
			// Incoming transfer: counterparty details come from the sender.
			txn.Movements = append(txn.Movements,
				counterpartyMovement(record, -record.EntryAmount, true))
		}
		// A record whose entry id differs from its document key is one leg
		// of a multi-leg document; the group key lets the post-pass merge
		// it with its sibling leg.
		if record.EntryID != record.DocumentKey {
			txn.GroupKeys = []string{record.DocumentKey}
		}

	case bog.ProductGroupCurrencyExchange:
		// The source-side leg of an exchange between own accounts. The
		// mirror leg is produced from the other account's record, so the
		// group key is set unconditionally.
		txn.Movements = append(txn.Movements, domain.Movement{
			ID: nil,
			Account: domain.AccountRef{
				Type:       domain.AccountTypeChecking,
				Instrument: record.DocumentSourceCurrency,
				Company:    nil,
				SyncIDs:    []string{record.SenderDetails.AccountNumber},
			},
			Sum: record.DocumentSourceAmount,
			Fee: 0,
		})
		txn.GroupKeys = []string{record.DocumentKey}

	case bog.ProductGroupCommission, bog.ProductGroupFee, bog.ProductGroupVerification:
		// Commission or fee: the amount is a fee, not a transfer of value.
		txn.Movements[0].Fee = -txn.Movements[0].Sum
		txn.Movements[0].Sum = 0

	case bog.ProductGroupCardPayment:
		// The single self-movement stands as-is.

	case bog.ProductGroupAutoConversion:
		// The bank reports an automatic conversion as two separate
		// one-sided entries on two accounts. Matching them here produces a
		// single two-sided transaction; the unmatched case stays
		// single-legged.
		if match := findMatchingConversion(record, allRecords); match != nil {
			txn.Movements = append(txn.Movements, ownMovement(*match, match.EntryAmount))
		}

	default:
		return domain.Transaction{}, &UnknownProductGroupError{
			EntryID: record.EntryID,
			Group:   record.DocumentProductGroup,
		}
	}

	return txn, nil
}

// ownMovement builds a movement on the record's own account, identified by
// the record's entry id and a direct account reference.
func ownMovement(record bog.AccountRecord, sum float64) domain.Movement {
	id := record.EntryID
	return domain.Movement{
		ID:      &id,
		Account: domain.AccountRef{ID: record.AccountID},
		Sum:     sum,
		Fee:     0,
		Invoice: nil,
	}
}

// counterpartyMovement builds a movement on the account at the other end of
// a transfer. The reference carries only identity (currency, name as
// pseudo-company, account number as sync id); the host resolves or
// materializes the account by matching on these fields. receiving selects
// the sender details instead of the beneficiary.
func counterpartyMovement(record bog.AccountRecord, sum float64, receiving bool) domain.Movement {
	counterparty := record.BeneficiaryDetails
	if receiving {
		counterparty = record.SenderDetails
	}

	var company *domain.Company
	if counterparty.Name != "" {
		company = &domain.Company{ID: counterparty.Name}
	}

	return domain.Movement{
		ID: nil,
		Account: domain.AccountRef{
			Type:       domain.AccountTypeChecking,
			Instrument: record.DocumentDestinationCurrency,
			Company:    company,
			SyncIDs:    []string{counterparty.AccountNumber},
		},
		Sum:     sum,
		Fee:     0,
		Invoice: nil,
	}
}

// findMatchingConversion locates the counterpart of an automatic conversion
// leg: a PLC record on a different account with the same entry date and the
// same document nomination. Side-effect-free lookup over the immutable
// record set; multiple legs may each independently re-derive the same match.
func findMatchingConversion(record bog.AccountRecord, allRecords []bog.AccountRecord) *bog.AccountRecord {
	for i := range allRecords {
		r := &allRecords[i]
		if r.DocumentProductGroup == bog.ProductGroupAutoConversion &&
			r.AccountID != record.AccountID &&
			r.EntryDate == record.EntryDate &&
			r.DocumentNomination == record.DocumentNomination {
			return r
		}
	}
	return nil
}

// merchantFor populates the merchant from the beneficiary name, with the
// MCC extracted from the comment. An empty beneficiary name suppresses the
// merchant entirely, even when an MCC is present.
func merchantFor(record bog.AccountRecord) *domain.Merchant {
	if record.BeneficiaryDetails.Name == "" {
		return nil
	}
	return &domain.Merchant{
		Title: record.BeneficiaryDetails.Name,
		MCC:   extractMCC(record.EntryComment),
	}
}

// extractMCC scans a comment for an "MCC: NNNN" marker and returns the
// 4-digit code, or nil when absent.
func extractMCC(comment string) *int {
	m := mccPattern.FindStringSubmatch(comment)
	if m == nil {
		return nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &code
}

package validate

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a sync result
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string // "account", "transaction", "movement"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidateResult performs comprehensive validation of a SyncResult,
// checking both individual entity constraints and referential integrity
// between transaction movements and the accounts they point at.
// Returns ValidationResult with all errors and warnings found.
func ValidateResult(r *domain.SyncResult) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	// Build lookup map for referential integrity checks
	accountIDs := make(map[string]bool)

	// Validate accounts
	for _, acc := range r.Accounts() {
		if acc.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "ID",
				Value:   "",
				Message: "account ID cannot be empty",
			})
		}
		if acc.Title == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "Title",
				Value:   "",
				Message: "account title cannot be empty",
			})
		}
		if acc.Instrument == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "Instrument",
				Value:   "",
				Message: "account instrument cannot be empty",
			})
		}

		// Validate account type enum
		if !domain.ValidateAccountType(acc.Type) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "Type",
				Value:   string(acc.Type),
				Message: fmt.Sprintf("invalid account type: %s (must be checking, savings, credit, or investment)", acc.Type),
			})
		}

		if len(acc.SyncIDs) == 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "SyncIDs",
				Value:   "",
				Message: "account has no sync IDs and cannot be matched on repeat syncs",
			})
		}

		// Check for duplicate IDs
		if acc.ID != "" {
			if accountIDs[acc.ID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "account",
					ID:      acc.ID,
					Field:   "ID",
					Value:   acc.ID,
					Message: "duplicate account ID",
				})
			}
			accountIDs[acc.ID] = true
		}
	}

	// Validate transactions. Transactions carry no stable ID of their own;
	// errors are keyed by position in the result.
	for i, txn := range r.Transactions() {
		txnID := fmt.Sprintf("#%d", i)

		if txn.Date.IsZero() {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txnID,
				Field:   "Date",
				Value:   "",
				Message: "transaction date cannot be zero",
			})
		}

		if len(txn.Movements) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txnID,
				Field:   "Movements",
				Value:   "",
				Message: "transaction must have at least one movement",
			})
		}

		// Validate category enum (empty means uncategorized)
		if txn.Category != "" && !domain.ValidateCategory(txn.Category) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txnID,
				Field:   "Category",
				Value:   string(txn.Category),
				Message: fmt.Sprintf("invalid category: %s", txn.Category),
			})
		}

		if len(txn.GroupKeys) > 1 {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txnID,
				Field:   "GroupKeys",
				Value:   fmt.Sprintf("%d keys", len(txn.GroupKeys)),
				Message: "transaction cannot carry more than one group key",
			})
		}
		for _, key := range txn.GroupKeys {
			if key == "" {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "transaction",
					ID:      txnID,
					Field:   "GroupKeys",
					Value:   "",
					Message: "transaction contains empty group key",
				})
			}
		}

		if txn.Merchant != nil {
			if txn.Merchant.Title == "" && txn.Merchant.Location == nil {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "transaction",
					ID:      txnID,
					Field:   "Merchant",
					Value:   "",
					Message: "merchant must carry a title or a location",
				})
			}
			if txn.Merchant.MCC != nil && (*txn.Merchant.MCC < 1 || *txn.Merchant.MCC > 9999) {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "transaction",
					ID:      txnID,
					Field:   "Merchant.MCC",
					Value:   fmt.Sprintf("%d", *txn.Merchant.MCC),
					Message: fmt.Sprintf("MCC must be a four-digit code, got %d", *txn.Merchant.MCC),
				})
			}
		}

		// Validate movements
		ownCount := 0
		for j, mov := range txn.Movements {
			movID := fmt.Sprintf("#%d.%d", i, j)

			if mov.ID != nil {
				ownCount++
				if *mov.ID == "" {
					result.Errors = append(result.Errors, ValidationError{
						Entity:  "movement",
						ID:      movID,
						Field:   "ID",
						Value:   "",
						Message: "owned movement ID cannot be empty",
					})
				}
				// Owned movements must reference a synced account
				if mov.Account.ID != "" && !accountIDs[mov.Account.ID] {
					result.Errors = append(result.Errors, ValidationError{
						Entity:  "movement",
						ID:      movID,
						Field:   "Account.ID",
						Value:   mov.Account.ID,
						Message: fmt.Sprintf("references non-existent account: %s", mov.Account.ID),
					})
				}
				if mov.Account.ID == "" {
					result.Errors = append(result.Errors, ValidationError{
						Entity:  "movement",
						ID:      movID,
						Field:   "Account.ID",
						Value:   "",
						Message: "owned movement must reference an account by ID",
					})
				}
			} else {
				// Counterparty movements identify the far side by type,
				// instrument and sync IDs instead of an account ID.
				if mov.Account.ID != "" {
					result.Errors = append(result.Errors, ValidationError{
						Entity:  "movement",
						ID:      movID,
						Field:   "Account.ID",
						Value:   mov.Account.ID,
						Message: "counterparty movement must not reference an account by ID",
					})
				}
				if mov.Account.Instrument == "" {
					result.Errors = append(result.Errors, ValidationError{
						Entity:  "movement",
						ID:      movID,
						Field:   "Account.Instrument",
						Value:   "",
						Message: "counterparty movement must carry an instrument",
					})
				}
				if mov.Account.Company == nil && len(mov.Account.SyncIDs) == 0 {
					result.Warnings = append(result.Warnings, ValidationWarning{
						Entity:  "movement",
						ID:      movID,
						Field:   "Account",
						Value:   "",
						Message: "counterparty movement has neither company nor sync IDs",
					})
				}
			}

			if mov.Sum == 0 && mov.Fee == 0 {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Entity:  "movement",
					ID:      movID,
					Field:   "Sum",
					Value:   "0",
					Message: "movement has zero sum and zero fee",
				})
			}
		}

		if ownCount == 0 && len(txn.Movements) > 0 {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txnID,
				Field:   "Movements",
				Value:   "",
				Message: "transaction has no owned movement",
			})
		}
	}

	return result
}

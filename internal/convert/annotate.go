package convert

import "github.com/rumor-ml/commons.systems/banksync/internal/bog"

// AnnotateRecords enriches raw statement records with the owning account's
// id and currency so each record is self-describing during conversion.
// Order and count of the input are preserved exactly; the input slice is
// never mutated.
func AnnotateRecords(records []bog.Record, account bog.Account) []bog.AccountRecord {
	annotated := make([]bog.AccountRecord, len(records))
	for i, record := range records {
		annotated[i] = bog.AccountRecord{
			Record:    record,
			Currency:  account.Currency,
			AccountID: account.ID,
		}
	}
	return annotated
}

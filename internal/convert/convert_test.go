package convert

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
)

// testRecord returns a baseline annotated record that individual tests
// tweak for their scenario.
func testRecord() bog.AccountRecord {
	return bog.AccountRecord{
		Record: bog.Record{
			EntryID:                     "E1",
			EntryDate:                   "2025-09-15T00:00:00",
			EntryAmount:                 -100,
			EntryAmountDebit:            100,
			EntryComment:                "payment",
			DocumentKey:                 "E1",
			DocumentProductGroup:        bog.ProductGroupCardPayment,
			DocumentDestinationCurrency: "GEL",
			SenderDetails:               bog.CounterpartyDetails{Name: "Acme LLC", AccountNumber: "GE11SENDER"},
			BeneficiaryDetails:          bog.CounterpartyDetails{Name: "Widget Co", AccountNumber: "GE22BENEF"},
		},
		Currency:  "GEL",
		AccountID: "ACC-GEL",
	}
}

func TestConvertRecord_FeeFamily(t *testing.T) {
	tests := []struct {
		name        string
		group       bog.ProductGroup
		entryAmount float64
		wantFee     float64
	}{
		{name: "commission", group: bog.ProductGroupCommission, entryAmount: -2.5, wantFee: 2.5},
		{name: "fee", group: bog.ProductGroupFee, entryAmount: -10, wantFee: 10},
		{name: "verification entry", group: bog.ProductGroupVerification, entryAmount: -1, wantFee: 1},
		{name: "zero amount", group: bog.ProductGroupFee, entryAmount: 0, wantFee: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord()
			rec.DocumentProductGroup = tt.group
			rec.EntryAmount = tt.entryAmount

			txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(txn.Movements) != 1 {
				t.Fatalf("expected exactly one movement, got %d", len(txn.Movements))
			}
			if txn.Movements[0].Sum != 0 {
				t.Errorf("expected sum 0, got %v", txn.Movements[0].Sum)
			}
			if txn.Movements[0].Fee != tt.wantFee {
				t.Errorf("expected fee %v, got %v", tt.wantFee, txn.Movements[0].Fee)
			}
			if txn.GroupKeys != nil {
				t.Errorf("fee transactions must not carry group keys, got %v", txn.GroupKeys)
			}
		})
	}
}

func TestConvertRecord_TransferOutgoing(t *testing.T) {
	rec := testRecord()
	rec.DocumentProductGroup = bog.ProductGroupTransferNational
	rec.EntryAmount = -100
	rec.EntryAmountDebit = 100

	txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(txn.Movements) != 2 {
		t.Fatalf("expected two movements, got %d", len(txn.Movements))
	}

	own := txn.Movements[0]
	if own.ID == nil || *own.ID != "E1" {
		t.Errorf("own movement must carry the entry id, got %v", own.ID)
	}
	if own.Account.ID != "ACC-GEL" {
		t.Errorf("own movement must reference the owning account, got %q", own.Account.ID)
	}
	if own.Sum != -100 {
		t.Errorf("own movement sum = %v, want -100", own.Sum)
	}

	cp := txn.Movements[1]
	if cp.ID != nil {
		t.Errorf("counterparty movement id must be nil, got %v", *cp.ID)
	}
	if cp.Sum != 100 {
		t.Errorf("counterparty sum = %v, want EntryAmountDebit 100", cp.Sum)
	}
	if cp.Account.Company == nil || cp.Account.Company.ID != "Widget Co" {
		t.Errorf("outgoing counterparty must be the beneficiary, got %+v", cp.Account.Company)
	}
	if !reflect.DeepEqual(cp.Account.SyncIDs, []string{"GE22BENEF"}) {
		t.Errorf("counterparty sync ids = %v, want beneficiary account number", cp.Account.SyncIDs)
	}
	if cp.Account.Instrument != "GEL" {
		t.Errorf("counterparty instrument = %q, want destination currency", cp.Account.Instrument)
	}
}

func TestConvertRecord_TransferIncoming(t *testing.T) {
	rec := testRecord()
	rec.DocumentProductGroup = bog.ProductGroupTransferForeign
	rec.EntryAmount = 250
	rec.EntryAmountDebit = 0

	txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(txn.Movements) != 2 {
		t.Fatalf("expected two movements, got %d", len(txn.Movements))
	}

	cp := txn.Movements[1]
	if cp.Sum != -250 {
		t.Errorf("counterparty sum = %v, want -EntryAmount = -250", cp.Sum)
	}
	if cp.Account.Company == nil || cp.Account.Company.ID != "Acme LLC" {
		t.Errorf("incoming counterparty must be the sender, got %+v", cp.Account.Company)
	}
	if !reflect.DeepEqual(cp.Account.SyncIDs, []string{"GE11SENDER"}) {
		t.Errorf("counterparty sync ids = %v, want sender account number", cp.Account.SyncIDs)
	}
}

func TestConvertRecord_TransferGroupKeys(t *testing.T) {
	tests := []struct {
		name        string
		entryID     string
		documentKey string
		want        []string
	}{
		{name: "single-leg document", entryID: "D1", documentKey: "D1", want: nil},
		{name: "multi-leg document", entryID: "D1-leg1", documentKey: "D1", want: []string{"D1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord()
			rec.DocumentProductGroup = bog.ProductGroupTransferNational
			rec.EntryID = tt.entryID
			rec.DocumentKey = tt.documentKey

			txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(txn.GroupKeys, tt.want) {
				t.Errorf("groupKeys = %v, want %v", txn.GroupKeys, tt.want)
			}
		})
	}
}

func TestConvertRecord_CurrencyExchange(t *testing.T) {
	rec := testRecord()
	rec.DocumentProductGroup = bog.ProductGroupCurrencyExchange
	rec.EntryID = "X1"
	rec.DocumentKey = "DOC-X"
	rec.EntryAmount = 270
	rec.DocumentSourceCurrency = "USD"
	rec.DocumentSourceAmount = -100

	txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(txn.Movements) != 2 {
		t.Fatalf("exchange must have exactly two movements, got %d", len(txn.Movements))
	}
	if !reflect.DeepEqual(txn.GroupKeys, []string{"DOC-X"}) {
		t.Errorf("exchange must always carry the document key, got %v", txn.GroupKeys)
	}

	src := txn.Movements[1]
	if src.ID != nil {
		t.Errorf("source-side movement id must be nil")
	}
	if src.Account.Instrument != "USD" {
		t.Errorf("source-side instrument = %q, want USD", src.Account.Instrument)
	}
	if src.Sum != -100 {
		t.Errorf("source-side sum = %v, want DocumentSourceAmount -100", src.Sum)
	}
	if src.Account.Company != nil {
		t.Errorf("source-side movement must not carry a company, got %+v", src.Account.Company)
	}
	if !reflect.DeepEqual(src.Account.SyncIDs, []string{"GE11SENDER"}) {
		t.Errorf("source-side sync ids = %v, want sender account number", src.Account.SyncIDs)
	}
}

func TestConvertRecord_CardPayment(t *testing.T) {
	rec := testRecord()
	rec.DocumentProductGroup = bog.ProductGroupCardPayment
	rec.EntryAmount = -42.5

	txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(txn.Movements) != 1 {
		t.Fatalf("card payment must keep the single self-movement, got %d", len(txn.Movements))
	}
	if txn.Movements[0].Sum != -42.5 || txn.Movements[0].Fee != 0 {
		t.Errorf("card payment movement must stand as-is, got sum=%v fee=%v",
			txn.Movements[0].Sum, txn.Movements[0].Fee)
	}
	if txn.GroupKeys != nil {
		t.Errorf("card payment must not carry group keys, got %v", txn.GroupKeys)
	}
}

func autoConversionPair() (bog.AccountRecord, bog.AccountRecord) {
	gelLeg := testRecord()
	gelLeg.DocumentProductGroup = bog.ProductGroupAutoConversion
	gelLeg.EntryID = "P1"
	gelLeg.EntryAmount = 270
	gelLeg.DocumentNomination = "conversion 100 USD"

	usdLeg := testRecord()
	usdLeg.DocumentProductGroup = bog.ProductGroupAutoConversion
	usdLeg.EntryID = "P2"
	usdLeg.EntryAmount = -100
	usdLeg.DocumentNomination = "conversion 100 USD"
	usdLeg.Currency = "USD"
	usdLeg.AccountID = "ACC-USD"

	return gelLeg, usdLeg
}

func TestConvertRecord_AutoConversionMatch(t *testing.T) {
	gelLeg, usdLeg := autoConversionPair()
	all := []bog.AccountRecord{gelLeg, usdLeg}

	// Matching is symmetric: each side ends up with two movements.
	for _, rec := range all {
		txn, err := ConvertRecord(rec, all)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(txn.Movements) != 2 {
			t.Fatalf("record %s: expected two movements, got %d", rec.EntryID, len(txn.Movements))
		}
	}

	txn, err := ConvertRecord(gelLeg, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched := txn.Movements[1]
	if matched.ID == nil || *matched.ID != "P2" {
		t.Errorf("matched movement must carry the counterpart's entry id, got %v", matched.ID)
	}
	if matched.Account.ID != "ACC-USD" {
		t.Errorf("matched movement account = %q, want ACC-USD", matched.Account.ID)
	}
	if matched.Sum != -100 {
		t.Errorf("matched movement sum = %v, want the counterpart's entry amount", matched.Sum)
	}
}

func TestConvertRecord_AutoConversionNoMatch(t *testing.T) {
	gelLeg, usdLeg := autoConversionPair()

	tests := []struct {
		name   string
		mutate func(*bog.AccountRecord)
	}{
		{name: "no counterpart at all", mutate: nil},
		{name: "same account", mutate: func(r *bog.AccountRecord) { r.AccountID = gelLeg.AccountID }},
		{name: "different date", mutate: func(r *bog.AccountRecord) { r.EntryDate = "2025-09-16T00:00:00" }},
		{name: "different nomination", mutate: func(r *bog.AccountRecord) { r.DocumentNomination = "other" }},
		{name: "counterpart not a conversion leg", mutate: func(r *bog.AccountRecord) {
			r.DocumentProductGroup = bog.ProductGroupCardPayment
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all := []bog.AccountRecord{gelLeg}
			if tt.mutate != nil {
				other := usdLeg
				tt.mutate(&other)
				all = append(all, other)
			}

			txn, err := ConvertRecord(gelLeg, all)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(txn.Movements) != 1 {
				t.Errorf("expected single-legged transaction, got %d movements", len(txn.Movements))
			}
		})
	}
}

func TestConvertRecord_UnknownProductGroup(t *testing.T) {
	rec := testRecord()
	rec.DocumentProductGroup = "XYZ"

	_, err := ConvertRecord(rec, []bog.AccountRecord{rec})
	if err == nil {
		t.Fatal("expected error for unknown product group")
	}

	var unknownErr *UnknownProductGroupError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownProductGroupError, got %T: %v", err, err)
	}
	if unknownErr.Group != "XYZ" || unknownErr.EntryID != "E1" {
		t.Errorf("error fields = %+v", unknownErr)
	}
}

func TestConvertRecord_Merchant(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name        string
		beneficiary string
		comment     string
		wantNil     bool
		wantTitle   string
		wantMCC     *int
	}{
		{
			name:        "beneficiary with MCC",
			beneficiary: "Grocery Store",
			comment:     "Card payment MCC: 5411",
			wantTitle:   "Grocery Store",
			wantMCC:     intPtr(5411),
		},
		{
			name:        "beneficiary without MCC",
			beneficiary: "Grocery Store",
			comment:     "Card payment",
			wantTitle:   "Grocery Store",
			wantMCC:     nil,
		},
		{
			name:        "empty beneficiary suppresses merchant even with MCC",
			beneficiary: "",
			comment:     "Card payment MCC: 5411",
			wantNil:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord()
			rec.BeneficiaryDetails.Name = tt.beneficiary
			rec.EntryComment = tt.comment

			txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantNil {
				if txn.Merchant != nil {
					t.Fatalf("expected no merchant, got %+v", txn.Merchant)
				}
				return
			}

			if txn.Merchant == nil {
				t.Fatal("expected a merchant")
			}
			if txn.Merchant.Title != tt.wantTitle {
				t.Errorf("merchant title = %q, want %q", txn.Merchant.Title, tt.wantTitle)
			}
			if !reflect.DeepEqual(txn.Merchant.MCC, tt.wantMCC) {
				t.Errorf("merchant mcc = %v, want %v", txn.Merchant.MCC, tt.wantMCC)
			}
		})
	}
}

func TestConvertRecord_Deterministic(t *testing.T) {
	gelLeg, usdLeg := autoConversionPair()
	all := []bog.AccountRecord{gelLeg, usdLeg}

	first, err := ConvertRecord(gelLeg, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ConvertRecord(gelLeg, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("conversion is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestConvertRecord_DoesNotMutateRecordSet(t *testing.T) {
	gelLeg, usdLeg := autoConversionPair()
	all := []bog.AccountRecord{gelLeg, usdLeg}
	snapshot := append([]bog.AccountRecord(nil), all...)

	if _, err := ConvertRecord(gelLeg, all); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(all, snapshot) {
		t.Error("ConvertRecord mutated the shared record set")
	}
}

func TestConvertRecord_TransactionShape(t *testing.T) {
	rec := testRecord()
	txn, err := ConvertRecord(rec, []bog.AccountRecord{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if txn.Hold {
		t.Error("transactions are never holds")
	}
	if txn.Comment != rec.EntryComment {
		t.Errorf("comment = %q, want the entry comment", txn.Comment)
	}
	if err := txn.Validate(); err != nil {
		t.Errorf("converted transaction fails validation: %v", err)
	}
}

func TestExtractMCC(t *testing.T) {
	tests := []struct {
		comment string
		want    *int
	}{
		{comment: "MCC: 5411", want: func() *int { v := 5411; return &v }()},
		{comment: "payment MCC:5999 extra", want: func() *int { v := 5999; return &v }()},
		{comment: "no code here", want: nil},
		{comment: "MCC: 99", want: nil},
		{comment: "", want: nil},
	}

	for _, tt := range tests {
		got := extractMCC(tt.comment)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("extractMCC(%q) = %v, want %v", tt.comment, got, tt.want)
		}
	}
}

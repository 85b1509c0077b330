package reconciliation

import (
	"strings"
	"time"

	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExternalTransaction is one record handed to the reconciler. The set of
// implementations is closed: GenericTransaction, PlaidTransaction and
// BankSyncTransaction.
type ExternalTransaction interface {
	record() rawRecord
}

// rawRecord is the shape every variant is reduced to before validation.
type rawRecord struct {
	date           string
	amount         int64
	payeeName      string
	hasPayeeName   bool
	importedPayee  string
	importedID     string
	notes          string
	category       *uuid.UUID
	cleared        *bool
	subs           []SubTransaction
	rawPayeeCasing bool
	requirePayee   bool
}

// GenericTransaction is the shape used by file imports and the HTTP API.
type GenericTransaction struct {
	Date            string                  `json:"date"`
	Amount          int64                   `json:"amount"`
	PayeeName       string                  `json:"payee_name"`
	ImportedPayee   string                  `json:"imported_payee"`
	ImportedID      string                  `json:"imported_id"`
	Notes           string                  `json:"notes"`
	Category        *uuid.UUID              `json:"category"`
	Cleared         *bool                   `json:"cleared"`
	Subtransactions []GenericSubtransaction `json:"subtransactions"`
}

type GenericSubtransaction struct {
	Amount   int64      `json:"amount"`
	Category *uuid.UUID `json:"category"`
	Notes    string     `json:"notes"`
}

func (t GenericTransaction) record() rawRecord {
	r := rawRecord{
		date:          t.Date,
		amount:        t.Amount,
		payeeName:     t.PayeeName,
		hasPayeeName:  t.PayeeName != "",
		importedPayee: t.ImportedPayee,
		importedID:    t.ImportedID,
		notes:         t.Notes,
		category:      t.Category,
		cleared:       t.Cleared,
	}
	for _, s := range t.Subtransactions {
		r.subs = append(r.subs, SubTransaction{
			Amount:     s.Amount,
			CategoryID: s.Category,
			Notes:      s.Notes,
		})
	}
	return r
}

// PlaidTransaction is a Plaid-style record. Amount is a decimal where
// positive means money leaving the account.
type PlaidTransaction struct {
	TransactionID string          `json:"transaction_id"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Pending       bool            `json:"pending"`
}

func (t PlaidTransaction) record() rawRecord {
	return rawRecord{
		date:          t.Date,
		amount:        -money.ToMinorUnits(t.Amount),
		payeeName:     t.Name,
		hasPayeeName:  t.Name != "",
		importedPayee: t.Name,
		importedID:    t.TransactionID,
	}
}

type TransactionAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// BankSyncTransaction is the record shape returned by the bank-sync bridge.
type BankSyncTransaction struct {
	TransactionID                          string            `json:"transactionId"`
	Date                                   string            `json:"date"`
	PayeeName                              *string           `json:"payeeName"`
	Booked                                 bool              `json:"booked"`
	TransactionAmount                      TransactionAmount `json:"transactionAmount"`
	RemittanceInformationUnstructured      string            `json:"remittanceInformationUnstructured"`
	RemittanceInformationUnstructuredArray []string          `json:"remittanceInformationUnstructuredArray"`
}

func (t BankSyncTransaction) record() rawRecord {
	notes := t.RemittanceInformationUnstructured
	if notes == "" {
		notes = strings.Join(t.RemittanceInformationUnstructuredArray, ", ")
	}
	cleared := t.Booked
	r := rawRecord{
		date:           t.Date,
		amount:         money.ToMinorUnits(t.TransactionAmount.Amount),
		importedID:     t.TransactionID,
		notes:          notes,
		cleared:        &cleared,
		rawPayeeCasing: true,
		requirePayee:   true,
	}
	if t.PayeeName != nil {
		r.payeeName = *t.PayeeName
		r.hasPayeeName = true
	}
	return r
}

// CanonicalTransaction is an incoming transaction after normalization and
// payee resolution. It is what rules and the matcher operate on.
type CanonicalTransaction struct {
	AccountID     uuid.UUID
	Date          time.Time
	Amount        int64
	PayeeID       *uuid.UUID
	PayeeName     string
	ImportedPayee string
	ImportedID    string
	Notes         string
	// Cleared is nil when the source did not say; it then defaults to true.
	Cleared         *bool
	CategoryID      *uuid.UUID
	Subtransactions []SubTransaction
}

func (t CanonicalTransaction) cleared() bool {
	if t.Cleared == nil {
		return true
	}
	return *t.Cleared
}

// SubTransaction is one declared piece of a split.
type SubTransaction struct {
	AccountID  uuid.UUID
	Amount     int64
	CategoryID *uuid.UUID
	Notes      string
}

// Normalized is the Canonicalizer's output. StagedPayees is keyed by
// lowercased name and holds payees that do not exist yet.
type Normalized struct {
	Transactions []CanonicalTransaction
	StagedPayees map[string]*models.Payee
}

// Totals validates the batch dates and returns the amount sum and the oldest
// date. oldest is nil for an empty batch.
func Totals(batch []ExternalTransaction) (sum int64, oldest *time.Time, err error) {
	for i, ext := range batch {
		r := ext.record()
		date, err := parseRecordDate(i, r)
		if err != nil {
			return 0, nil, err
		}
		sum += r.effectiveAmount()
		if oldest == nil || date.Before(*oldest) {
			d := date
			oldest = &d
		}
	}
	return sum, oldest, nil
}

// effectiveAmount is the record's amount, or its subtransactions' total
// when a split carries no amount of its own.
func (r rawRecord) effectiveAmount() int64 {
	if r.amount != 0 || len(r.subs) == 0 {
		return r.amount
	}
	var total int64
	for _, s := range r.subs {
		total += s.Amount
	}
	return total
}

func parseRecordDate(i int, r rawRecord) (time.Time, error) {
	if strings.TrimSpace(r.date) == "" {
		return time.Time{}, &ValidationError{Index: i, Err: ErrMissingDate}
	}
	d, err := models.ParseDay(strings.TrimSpace(r.date))
	if err != nil {
		return time.Time{}, &ValidationError{Index: i, Err: err}
	}
	return d, nil
}

package reconciliation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayees struct {
	byName map[string]*models.Payee
	calls  int
	err    error
}

func (f *fakePayees) FindPayeeByName(_ context.Context, name string) (*models.Payee, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[strings.ToLower(name)], nil
}

func TestNormalize_MissingDateRejectsBatchBeforeLookups(t *testing.T) {
	finder := &fakePayees{}
	batch := []ExternalTransaction{
		GenericTransaction{Date: "2024-01-01", PayeeName: "kroger", Amount: -100},
		GenericTransaction{PayeeName: "lowes", Amount: -200},
	}

	_, err := NewCanonicalizer(finder).Normalize(context.Background(), batch, uuid.New(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDate)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
	assert.Zero(t, finder.calls)
}

func TestNormalize_InvalidDate(t *testing.T) {
	batch := []ExternalTransaction{GenericTransaction{Date: "01/02/2024"}}
	_, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, verr.Index)
}

func TestNormalize_PayeeResolution(t *testing.T) {
	existing := &models.Payee{ID: uuid.New(), Name: "Kroger"}
	finder := &fakePayees{byName: map[string]*models.Payee{"kroger": existing}}
	acct := uuid.New()

	batch := []ExternalTransaction{
		GenericTransaction{Date: "2024-01-01", PayeeName: "  kroger ", Amount: -100},
		GenericTransaction{Date: "2024-01-02", PayeeName: "bakkerij", Amount: -200},
		GenericTransaction{Date: "2024-01-03", PayeeName: "Bakkerij", Amount: -300},
		GenericTransaction{Date: "2024-01-04", PayeeName: "   ", Amount: -400},
	}

	out, err := NewCanonicalizer(finder).Normalize(context.Background(), batch, acct, Options{})
	require.NoError(t, err)
	require.Len(t, out.Transactions, 4)

	require.NotNil(t, out.Transactions[0].PayeeID)
	assert.Equal(t, existing.ID, *out.Transactions[0].PayeeID)
	assert.Equal(t, "Kroger", out.Transactions[0].PayeeName)
	assert.Equal(t, "Kroger", out.Transactions[0].ImportedPayee)

	require.Len(t, out.StagedPayees, 1)
	staged := out.StagedPayees["bakkerij"]
	require.NotNil(t, staged)
	assert.Equal(t, "Bakkerij", staged.Name)
	assert.Equal(t, staged.ID, *out.Transactions[1].PayeeID)
	assert.Equal(t, staged.ID, *out.Transactions[2].PayeeID)

	assert.Nil(t, out.Transactions[3].PayeeID)
	assert.Empty(t, out.Transactions[3].PayeeName)

	for _, tx := range out.Transactions {
		assert.Equal(t, acct, tx.AccountID)
	}
}

func TestNormalize_Casing(t *testing.T) {
	batch := []ExternalTransaction{GenericTransaction{Date: "2024-01-01", PayeeName: "papa johns east"}}

	out, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Papa Johns East", out.Transactions[0].PayeeName)

	out, err = NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{PreserveRawPayeeCasing: true})
	require.NoError(t, err)
	assert.Equal(t, "papa johns east", out.Transactions[0].PayeeName)
}

func TestNormalize_ImportedPayeeKeptSeparately(t *testing.T) {
	batch := []ExternalTransaction{GenericTransaction{
		Date:          "2024-01-01",
		PayeeName:     "kroger",
		ImportedPayee: " KROGER #123 ",
	}}
	out, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "KROGER #123", out.Transactions[0].ImportedPayee)
	assert.Equal(t, "Kroger", out.Transactions[0].PayeeName)
}

func TestNormalize_Subtransactions(t *testing.T) {
	acct := uuid.New()
	batch := []ExternalTransaction{GenericTransaction{
		Date:   "2024-01-01",
		Amount: -1000,
		Subtransactions: []GenericSubtransaction{
			{Amount: -600, Notes: "food"},
			{Amount: -400},
		},
	}}
	out, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, acct, Options{})
	require.NoError(t, err)
	require.Len(t, out.Transactions[0].Subtransactions, 2)
	for _, s := range out.Transactions[0].Subtransactions {
		assert.Equal(t, acct, s.AccountID)
	}
}

func TestNormalize_SplitWithoutAmount(t *testing.T) {
	batch := []ExternalTransaction{GenericTransaction{
		Date: "2024-01-01",
		Subtransactions: []GenericSubtransaction{
			{Amount: -400},
			{Amount: -500},
		},
	}}
	out, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(-900), out.Transactions[0].Amount)

	sum, _, err := Totals(batch)
	require.NoError(t, err)
	assert.Equal(t, int64(-900), sum)
}

func TestNormalize_BankSyncVariant(t *testing.T) {
	name := "ALBERT HEIJN 1234"
	batch := []ExternalTransaction{BankSyncTransaction{
		TransactionID:                          "bank-1",
		Date:                                   "2024-01-01",
		PayeeName:                              &name,
		Booked:                                 true,
		TransactionAmount:                      TransactionAmount{Amount: decimal.RequireFromString("-12.34"), Currency: "EUR"},
		RemittanceInformationUnstructuredArray: []string{"groceries", "card 1234"},
	}}

	out, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})
	require.NoError(t, err)
	tx := out.Transactions[0]
	assert.Equal(t, int64(-1234), tx.Amount)
	assert.Equal(t, "ALBERT HEIJN 1234", tx.PayeeName)
	assert.Equal(t, "bank-1", tx.ImportedID)
	assert.Equal(t, "groceries, card 1234", tx.Notes)
	require.NotNil(t, tx.Cleared)
	assert.True(t, *tx.Cleared)
}

func TestNormalize_BankSyncRequiresPayeeName(t *testing.T) {
	batch := []ExternalTransaction{BankSyncTransaction{Date: "2024-01-01"}}
	_, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})
	assert.ErrorIs(t, err, ErrMissingPayeeName)
}

func TestNormalize_PlaidVariant(t *testing.T) {
	batch := []ExternalTransaction{PlaidTransaction{
		TransactionID: "plaid-1",
		Name:          "starbucks",
		Amount:        decimal.RequireFromString("4.50"),
		Date:          "2024-01-01",
	}}
	out, err := NewCanonicalizer(&fakePayees{}).Normalize(context.Background(), batch, uuid.New(), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(-450), out.Transactions[0].Amount)
	assert.Equal(t, "Starbucks", out.Transactions[0].PayeeName)
	assert.Equal(t, "starbucks", out.Transactions[0].ImportedPayee)
}

func TestNormalize_LookupError(t *testing.T) {
	finder := &fakePayees{err: errors.New("db down")}
	batch := []ExternalTransaction{GenericTransaction{Date: "2024-01-01", PayeeName: "kroger"}}
	_, err := NewCanonicalizer(finder).Normalize(context.Background(), batch, uuid.New(), Options{})
	assert.ErrorContains(t, err, "db down")
}

func TestTotals(t *testing.T) {
	sum, oldest, err := Totals([]ExternalTransaction{
		GenericTransaction{Date: "2024-01-05", Amount: -1234},
		GenericTransaction{Date: "2024-01-02", Amount: -1448},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-2682), sum)
	require.NotNil(t, oldest)
	assert.Equal(t, "2024-01-02", oldest.Format(models.DateLayout))

	sum, oldest, err = Totals(nil)
	require.NoError(t, err)
	assert.Zero(t, sum)
	assert.Nil(t, oldest)
}

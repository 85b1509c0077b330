package banksync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(t *testing.T, fn func(body map[string]interface{}) (int, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status, resp := fn(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}
}

func request() DownloadRequest {
	since, _ := time.Parse("2006-01-02", "2024-01-01")
	until, _ := time.Parse("2006-01-02", "2024-01-31")
	return DownloadRequest{ExternalAccountID: "acc-1", BankID: "req-1", Since: since, Until: until}
}

func TestBridgeProvider_Download(t *testing.T) {
	var got map[string]interface{}
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		token = r.Header.Get("X-Ledger-Token")
		jsonHandler(t, func(body map[string]interface{}) (int, string) {
			got = body
			return http.StatusOK, `{
				"transactions": {"all": [
					{"transactionId": "t1", "date": "2024-01-05", "payeeName": "Shop", "booked": true,
					 "transactionAmount": {"amount": "-12.34", "currency": "EUR"}}
				]},
				"balance": "78.09",
				"accountType": "checking"
			}`
		})(w, r)
	}))
	defer srv.Close()

	p := NewBridgeProvider(srv.URL+"/", "secret", 5*time.Second)
	dl, err := p.DownloadTransactions(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "secret", token)
	assert.Equal(t, "acc-1", got["accountId"])
	assert.Equal(t, "req-1", got["requisitionId"])
	assert.Equal(t, "2024-01-01", got["startDate"])
	assert.Equal(t, "2024-01-31", got["endDate"])

	assert.Equal(t, int64(7809), dl.Balance)
	assert.Equal(t, "checking", dl.AccountType)
	require.Len(t, dl.Transactions, 1)
	tx, ok := dl.Transactions[0].(reconciliation.BankSyncTransaction)
	require.True(t, ok)
	assert.Equal(t, "t1", tx.TransactionID)
	assert.Equal(t, "-12.34", tx.TransactionAmount.Amount.String())
}

func TestBridgeProvider_InBandError(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, func(map[string]interface{}) (int, string) {
		return http.StatusOK, `{"error_type": "ITEM_ERROR", "error_code": "ITEM_LOGIN_REQUIRED", "reason": "re-link"}`
	}))
	defer srv.Close()

	_, err := NewBridgeProvider(srv.URL, "", time.Second).DownloadTransactions(context.Background(), request())
	var serr *SyncError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "ITEM_ERROR", serr.Category)
	assert.Equal(t, "ITEM_LOGIN_REQUIRED", serr.Code)
	assert.Equal(t, "re-link", serr.Reason)
}

func TestBridgeProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, func(map[string]interface{}) (int, string) {
		return http.StatusBadGateway, `upstream down`
	}))
	defer srv.Close()

	_, err := NewBridgeProvider(srv.URL, "", time.Second).DownloadTransactions(context.Background(), request())
	var ierr *InternalError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, http.StatusBadGateway, ierr.Details["status"])
	assert.Equal(t, "upstream down", ierr.Details["body"])
}

func TestBridgeProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewBridgeProvider(srv.URL, "", 20*time.Millisecond).DownloadTransactions(context.Background(), request())
	var serr *SyncError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "TIMED_OUT", serr.Category)
	assert.True(t, serr.Retryable())
}

func TestPlaidProvider_PaginatesAndDropsPending(t *testing.T) {
	var offsets []float64
	srv := httptest.NewServer(jsonHandler(t, func(body map[string]interface{}) (int, string) {
		offset := body["offset"].(float64)
		offsets = append(offsets, offset)
		switch offset {
		case 0:
			return http.StatusOK, `{
				"accounts": [{"account_id": "acc-1", "type": "credit", "balances": {"current": 120.5}}],
				"transactions": [
					{"transaction_id": "p1", "name": "Coffee", "amount": 4.5, "date": "2024-01-02"},
					{"transaction_id": "p2", "name": "Pending", "amount": 1, "date": "2024-01-03", "pending": true}
				],
				"total_transactions": 3
			}`
		default:
			return http.StatusOK, `{
				"accounts": [{"account_id": "acc-1", "type": "credit", "balances": {"current": 120.5}}],
				"transactions": [
					{"transaction_id": "p3", "name": "Refund", "amount": -10, "date": "2024-01-04"}
				],
				"total_transactions": 3
			}`
		}
	}))
	defer srv.Close()

	p := NewPlaidProvider(srv.URL, "", time.Second)
	p.pageSize = 2
	dl, err := p.DownloadTransactions(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 2}, offsets)
	require.Len(t, dl.Transactions, 2)
	assert.Equal(t, "p1", dl.Transactions[0].(reconciliation.PlaidTransaction).TransactionID)
	assert.Equal(t, "p3", dl.Transactions[1].(reconciliation.PlaidTransaction).TransactionID)
	assert.Equal(t, int64(12050), dl.Balance)
	assert.Equal(t, "credit", dl.AccountType)
}

func TestPlaidProvider_EmptyPageStops(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(jsonHandler(t, func(map[string]interface{}) (int, string) {
		calls++
		return http.StatusOK, `{"transactions": [], "total_transactions": 10}`
	}))
	defer srv.Close()

	dl, err := NewPlaidProvider(srv.URL, "", time.Second).DownloadTransactions(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, dl.Transactions)
	assert.Equal(t, 1, calls)
}

func TestPlaidProvider_BalanceWithoutTransactions(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, func(map[string]interface{}) (int, string) {
		return http.StatusOK, `{
			"accounts": [{"account_id": "acc-1", "type": "depository", "balances": {"current": 500}}],
			"transactions": [],
			"total_transactions": 0
		}`
	}))
	defer srv.Close()

	dl, err := NewPlaidProvider(srv.URL, "", time.Second).DownloadTransactions(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, dl.Transactions)
	assert.Equal(t, int64(50000), dl.Balance)
	assert.Equal(t, "depository", dl.AccountType)
}

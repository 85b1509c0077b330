package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/repository/repotest"
	"ledger-reconciliation-backend/internal/routes"
	"ledger-reconciliation-backend/internal/services/banksync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct {
	err error
}

func (p failingProvider) DownloadTransactions(ctx context.Context, req banksync.DownloadRequest) (*banksync.Download, error) {
	return nil, p.err
}

type server struct {
	router *gin.Engine
	store  *repository.Store
	acct   *models.Account
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repotest.NewStore(t)
	providers := map[string]banksync.Provider{
		banksync.SourceBankSync: failingProvider{err: &banksync.SyncError{
			Category: "ITEM_ERROR",
			Code:     "ITEM_LOGIN_REQUIRED",
		}},
	}

	r := gin.New()
	require.NoError(t, routes.RegisterRoutes(r, store.DB(), providers, banksync.DefaultConfig()))
	return &server{
		router: r,
		store:  store,
		acct:   repotest.CreateAccount(t, store, models.Account{}),
	}
}

func (s *server) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.serve(t, req)
}

func (s *server) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *server) path(suffix string) string {
	return "/api/accounts/" + s.acct.ID.String() + suffix
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateAccount(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodPost, "/api/accounts", gin.H{"name": "Savings", "offbudget": true})
	require.Equal(t, http.StatusCreated, w.Code)
	acct := body["account"].(map[string]interface{})
	assert.Equal(t, "Savings", acct["name"])
	assert.Equal(t, true, acct["offbudget"])

	w, _ = s.do(t, http.MethodPost, "/api/accounts", gin.H{"type": "checking"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcile(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodPost, s.path("/reconcile"), gin.H{
		"transactions": []gin.H{
			{"date": "2024-01-05", "amount": -2947, "payee_name": "bakkerij", "imported_id": "b1"},
			{"date": "2024-01-06", "amount": -1000, "payee_name": "kroger"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["added"], 2)
	assert.Empty(t, body["updated"])
	runID := body["run_id"].(string)

	// same batch again is a no-op
	w, body = s.do(t, http.MethodPost, s.path("/reconcile"), gin.H{
		"transactions": []gin.H{
			{"date": "2024-01-05", "amount": -2947, "payee_name": "bakkerij", "imported_id": "b1"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["added"])

	w, body = s.do(t, http.MethodGet, s.path("/transactions"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 2)

	w, body = s.do(t, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	run := body["run"].(map[string]interface{})
	assert.Equal(t, models.RunStatusCompleted, run["status"])
	assert.Equal(t, float64(2), run["added_count"])
	assert.Len(t, run["audit_logs"], 2)
}

func TestReconcile_Errors(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/accounts/not-a-uuid/reconcile", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/accounts/"+uuid.NewString()+"/reconcile", gin.H{"transactions": []gin.H{}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := s.do(t, http.MethodPost, s.path("/reconcile"), gin.H{
		"transactions": []gin.H{
			{"date": "2024-01-05", "amount": -100},
			{"amount": -200},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(1), body["index"])
	assert.Contains(t, body["error"], "date")

	rows, err := s.store.ListByAccount(context.Background(), s.acct.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	w, _ = s.do(t, http.MethodGet, "/api/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreview_WritesNothing(t *testing.T) {
	s := newServer(t)
	existing := repotest.CreateTransaction(t, s.store, models.Transaction{
		AccountID: s.acct.ID,
		Date:      repotest.Day(t, "2024-01-04"),
		Amount:    -500,
	})

	w, body := s.do(t, http.MethodPost, s.path("/reconcile/preview"), gin.H{
		"transactions": []gin.H{
			{"date": "2024-01-05", "amount": -500, "imported_id": "x1"},
			{"date": "2024-01-05", "amount": -900},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := body["items"].([]interface{})
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "payee", first["kind"])
	assert.Equal(t, existing.ID.String(), first["matched_id"])
	assert.Equal(t, "none", items[1].(map[string]interface{})["kind"])

	rows, err := s.store.ListByAccount(context.Background(), s.acct.ID, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestImport_KeepsCasing(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodPost, s.path("/import"), gin.H{
		"transactions": []gin.H{{"date": "2024-01-05", "amount": -100, "payee_name": "kroger"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["added"], 1)

	p, err := s.store.FindPayeeByName(context.Background(), "kroger")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "kroger", p.Name)
}

func TestUploadCSV(t *testing.T) {
	s := newServer(t)

	upload := func(query, content string) (*httptest.ResponseRecorder, map[string]interface{}) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "statement.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, s.path("/import/csv")+query, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return s.serve(t, req)
	}

	w, body := upload("", "Date,Amount,Payee,Notes,Imported_ID\n"+
		"2024-01-05,-29.47,bakkerij,bread,c1\n"+
		"\n"+
		"06-01-2024,\"1,204.50\",employer,,c2\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), body["rows"])
	assert.Len(t, body["added"], 2)

	rows, err := s.store.ListByAccount(context.Background(), s.acct.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(120450), rows[0].Amount)
	assert.Equal(t, "2024-01-06", rows[0].Date.Format(models.DateLayout))
	assert.Equal(t, int64(-2947), rows[1].Amount)

	// reconciling the same file matches by imported id
	w, body = upload("?reconcile=true", "date\tamount\timported_id\n2024-01-05\t-29.47\tc1\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, body["added"])

	w, _ = upload("", "date,amount\n2024-01-05,abc\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = upload("", "payee\nkroger\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSync_Errors(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodPost, s.path("/sync"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	linked := repotest.CreateAccount(t, s.store, models.Account{
		Name:              "Linked",
		SyncSource:        banksync.SourceBankSync,
		ExternalAccountID: "ext-1",
	})
	w, body := s.do(t, http.MethodPost, "/api/accounts/"+linked.ID.String()+"/sync", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "ITEM_ERROR", body["category"])
	assert.Equal(t, "ITEM_LOGIN_REQUIRED", body["code"])

	w, body = s.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["results"])
	failures := body["failures"].([]interface{})
	require.Len(t, failures, 1)
	assert.Equal(t, linked.ID.String(), failures[0].(map[string]interface{})["account_id"])
}

func TestRules(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/rules", gin.H{
		"actions": []gin.H{{"field": "color", "op": "set", "value": "red"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/rules", gin.H{
		"conditions": []gin.H{{"field": "payee", "op": "contains", "value": "kroger"}},
		"actions":    []gin.H{{"field": "notes", "op": "set", "value": "groceries"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, body := s.do(t, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 1)

	// the new rule applies without a restart
	w, body = s.do(t, http.MethodPost, s.path("/reconcile"), gin.H{
		"transactions": []gin.H{{"date": "2024-01-05", "amount": -100, "payee_name": "Kroger #12"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	id, err := uuid.Parse(body["added"].([]interface{})[0].(string))
	require.NoError(t, err)

	row, err := s.store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "groceries", row.Notes)
}

func TestCreateRule_PayeeMustExist(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodPost, "/api/rules", gin.H{
		"actions": []gin.H{{"field": "payee", "op": "set", "value": uuid.NewString()}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "payee not found", body["error"])

	payee := repotest.CreatePayee(t, s.store, "Landlord")
	w, _ = s.do(t, http.MethodPost, "/api/rules", gin.H{
		"conditions": []gin.H{{"field": "amount", "op": "lt", "value": "-100000"}},
		"actions":    []gin.H{{"field": "payee", "op": "set", "value": payee.ID.String()}},
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	rules, err := s.store.ListRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestDeleteTransaction(t *testing.T) {
	s := newServer(t)
	row := repotest.CreateTransaction(t, s.store, models.Transaction{
		AccountID: s.acct.ID,
		Date:      repotest.Day(t, "2024-01-04"),
		Amount:    -500,
	})

	w, _ := s.do(t, http.MethodDelete, "/api/transactions/"+row.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body := s.do(t, http.MethodGet, s.path("/transactions"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["items"])

	// a deleted row is not matched again
	w, body = s.do(t, http.MethodPost, s.path("/reconcile"), gin.H{
		"transactions": []gin.H{{"date": "2024-01-04", "amount": -500}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["added"], 1)

	w, _ = s.do(t, http.MethodDelete, "/api/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

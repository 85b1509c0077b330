package banksync

import (
	"context"
	"time"

	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/money"
	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/shopspring/decimal"
)

// Sync sources understood by NewProviders.
const (
	SourceBankSync = "banksync"
	SourcePlaid    = "plaid"
)

// BridgeProvider downloads from a bank-sync bridge that returns
// BankSyncTransaction records.
type BridgeProvider struct {
	c *client
}

func NewBridgeProvider(baseURL, token string, timeout time.Duration) *BridgeProvider {
	return &BridgeProvider{c: newClient(baseURL, token, timeout)}
}

type bridgeRequest struct {
	AccountID     string `json:"accountId"`
	RequisitionID string `json:"requisitionId"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
}

type bridgeResponse struct {
	errorEnvelope
	Transactions struct {
		All []reconciliation.BankSyncTransaction `json:"all"`
	} `json:"transactions"`
	Balance     decimal.Decimal `json:"balance"`
	AccountType string          `json:"accountType"`
}

func (p *BridgeProvider) DownloadTransactions(ctx context.Context, req DownloadRequest) (*Download, error) {
	var res bridgeResponse
	err := p.c.post(ctx, "/transactions", bridgeRequest{
		AccountID:     req.ExternalAccountID,
		RequisitionID: req.BankID,
		StartDate:     req.Since.Format(models.DateLayout),
		EndDate:       req.Until.Format(models.DateLayout),
	}, &res)
	if err != nil {
		return nil, err
	}

	txs := make([]reconciliation.ExternalTransaction, len(res.Transactions.All))
	for i, t := range res.Transactions.All {
		txs[i] = t
	}
	return &Download{
		Transactions: txs,
		Balance:      money.ToMinorUnits(res.Balance),
		AccountType:  res.AccountType,
	}, nil
}

// NewProviders builds the provider set keyed by Account.SyncSource.
func NewProviders(baseURL, token string, timeout time.Duration) map[string]Provider {
	return map[string]Provider{
		SourceBankSync: NewBridgeProvider(baseURL, token, timeout),
		SourcePlaid:    NewPlaidProvider(baseURL, token, timeout),
	}
}

package banksync

import (
	"context"
	"time"

	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/money"
	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/shopspring/decimal"
)

const plaidPageSize = 100

// PlaidProvider pages through a Plaid bridge. Pending transactions are
// dropped.
type PlaidProvider struct {
	c        *client
	pageSize int
}

func NewPlaidProvider(baseURL, token string, timeout time.Duration) *PlaidProvider {
	return &PlaidProvider{c: newClient(baseURL, token, timeout), pageSize: plaidPageSize}
}

type plaidRequest struct {
	ItemID    string `json:"item_id"`
	AccountID string `json:"account_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Count     int    `json:"count"`
	Offset    int    `json:"offset"`
}

type plaidAccount struct {
	AccountID string `json:"account_id"`
	Type      string `json:"type"`
	Balances  struct {
		Current decimal.Decimal `json:"current"`
	} `json:"balances"`
}

type plaidResponse struct {
	errorEnvelope
	Accounts          []plaidAccount                    `json:"accounts"`
	Transactions      []reconciliation.PlaidTransaction `json:"transactions"`
	TotalTransactions int                               `json:"total_transactions"`
}

func (p *PlaidProvider) DownloadTransactions(ctx context.Context, req DownloadRequest) (*Download, error) {
	dl := &Download{}
	offset, downloaded := 0, 0

	for {
		var res plaidResponse
		err := p.c.post(ctx, "/plaid/transactions", plaidRequest{
			ItemID:    req.BankID,
			AccountID: req.ExternalAccountID,
			StartDate: req.Since.Format(models.DateLayout),
			EndDate:   req.Until.Format(models.DateLayout),
			Count:     p.pageSize,
			Offset:    offset,
		}, &res)
		if err != nil {
			return nil, err
		}
		if acct := pickAccount(res.Accounts, req.ExternalAccountID); acct != nil {
			dl.Balance = money.ToMinorUnits(acct.Balances.Current)
			dl.AccountType = acct.Type
		}
		if len(res.Transactions) == 0 {
			break
		}

		downloaded += len(res.Transactions)
		for _, t := range res.Transactions {
			if !t.Pending {
				dl.Transactions = append(dl.Transactions, t)
			}
		}

		if downloaded >= res.TotalTransactions {
			break
		}
		offset += p.pageSize
	}
	return dl, nil
}

func pickAccount(accts []plaidAccount, id string) *plaidAccount {
	for i := range accts {
		if accts[i].AccountID == id {
			return &accts[i]
		}
	}
	if len(accts) > 0 {
		return &accts[0]
	}
	return nil
}

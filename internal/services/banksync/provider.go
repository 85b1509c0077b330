package banksync

import (
	"context"
	"time"

	"ledger-reconciliation-backend/internal/services/reconciliation"
)

type DownloadRequest struct {
	ExternalAccountID string
	BankID            string
	Since             time.Time
	Until             time.Time
}

// Download is what a provider returned for one account. Balance is the
// provider's current balance in minor units, before any debt reversal.
type Download struct {
	Transactions []reconciliation.ExternalTransaction
	Balance      int64
	// AccountType is the provider's account type, if it reports one.
	AccountType string
}

type Provider interface {
	DownloadTransactions(ctx context.Context, req DownloadRequest) (*Download, error)
}

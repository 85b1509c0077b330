package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"not null" json:"name"`
	Type              string    `json:"type"`
	OffBudget         bool      `json:"offbudget"`
	SyncSource        string    `gorm:"index" json:"sync_source"`
	ExternalAccountID string    `json:"external_account_id"`
	BankID            string    `json:"bank_id"`
	// LooseIDMatching lets fuzzy matching pair rows that carry different
	// imported ids. Some providers reissue ids for the same transaction.
	LooseIDMatching   bool      `json:"loose_id_matching"`
	BalanceCurrent    *int64    `json:"balance_current"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Linked reports whether the account is connected to a bank-data provider.
func (a *Account) Linked() bool {
	return a.SyncSource != "" && a.ExternalAccountID != ""
}

// IsDebt reports whether provider balances must be sign-reversed.
func (a *Account) IsDebt() bool {
	return IsDebtType(a.Type)
}

func IsDebtType(accountType string) bool {
	switch accountType {
	case "credit", "loan":
		return true
	}
	return false
}

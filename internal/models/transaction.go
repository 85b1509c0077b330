package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is a persisted ledger row. Split transactions are stored as one
// parent row plus child rows pointing back at it through ParentID.
type Transaction struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID           uuid.UUID  `gorm:"type:uuid;index;not null" json:"account_id"`
	Date                time.Time  `gorm:"type:date;index;not null" json:"date"`
	Amount              int64      `gorm:"index;not null" json:"amount"`
	PayeeID             *uuid.UUID `gorm:"type:uuid;index" json:"payee_id"`
	CategoryID          *uuid.UUID `gorm:"type:uuid" json:"category_id"`
	Notes               string     `json:"notes"`
	ImportedID          *string    `gorm:"index" json:"imported_id"`
	ImportedPayee       string     `json:"imported_payee"`
	Cleared             bool       `json:"cleared"`
	Reconciled          bool       `json:"reconciled"`
	IsParent            bool       `json:"is_parent"`
	IsChild             bool       `gorm:"index" json:"is_child"`
	ParentID            *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`
	SortOrder           int64      `json:"sort_order"`
	StartingBalanceFlag bool       `json:"starting_balance_flag"`
	Tombstone           bool       `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

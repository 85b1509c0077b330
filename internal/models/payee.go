package models

import (
	"time"

	"github.com/google/uuid"
)

// StartingBalancePayeeName names the payee attached to synthesized
// starting-balance transactions.
const StartingBalancePayeeName = "Starting Balance"

type Payee struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"index;not null" json:"name"`
	CategoryID *uuid.UUID `gorm:"type:uuid" json:"category_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunSourceReconcile = "reconcile"
	RunSourceImport    = "import"
	RunSourceSync      = "sync"

	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
)

// ReconciliationRun records one reconcile/import call against an account.
// It is written inside the same batch as the ledger changes it describes.
type ReconciliationRun struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID         uuid.UUID  `gorm:"type:uuid;index" json:"account_id"`
	Source            string     `json:"source"`
	TotalTransactions int        `json:"total_transactions"`
	ExactMatched      int        `json:"exact_matched"`
	PayeeMatched      int        `json:"payee_matched"`
	PositionMatched   int        `json:"position_matched"`
	AddedCount        int        `json:"added_count"`
	UpdatedCount      int        `json:"updated_count"`
	PayeesCreated     int        `json:"payees_created"`
	Status            string     `gorm:"index" json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`

	AuditLogs []MatchAuditLog `gorm:"foreignKey:RunID" json:"audit_logs,omitempty"`
}

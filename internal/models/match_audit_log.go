package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MatchAuditLog records the outcome for one incoming transaction of a run.
// TransactionID is the matched row, or the inserted row when nothing matched.
type MatchAuditLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID         uuid.UUID      `gorm:"type:uuid;index" json:"run_id"`
	TransactionID uuid.UUID      `gorm:"type:uuid;index" json:"transaction_id"`
	ImportedID    *string        `json:"imported_id"`
	Kind          string         `json:"kind"`
	Changed       bool           `json:"changed"`
	Details       datatypes.JSON `json:"details"`
	CreatedAt     time.Time      `json:"created_at"`
}

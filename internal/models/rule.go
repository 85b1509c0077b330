package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RuleCondition struct {
	Field string   `json:"field"`
	Op    string   `json:"op"`
	Value string   `json:"value"`
	Any   []string `json:"any,omitempty"`
}

type RuleAction struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// Rule rewrites incoming transactions before they are matched. All
// conditions must hold; actions run in order.
type Rule struct {
	ID         uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	Position   int                                `gorm:"index" json:"position"`
	Conditions datatypes.JSONSlice[RuleCondition] `json:"conditions"`
	Actions    datatypes.JSONSlice[RuleAction]    `json:"actions"`
	CreatedAt  time.Time                          `json:"created_at"`
}

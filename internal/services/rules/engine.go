// Package rules rewrites incoming transactions before they are matched.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/google/uuid"
)

// Condition operators.
const (
	OpIs       = "is"
	OpContains = "contains"
	OpOneOf    = "oneOf"
	OpGt       = "gt"
	OpLt       = "lt"
	OpSet      = "set"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrUnknownOp    = errors.New("unknown operator")
	ErrBadValue     = errors.New("invalid value")
)

var conditionOps = map[string]map[string]bool{
	"payee":          {OpIs: true, OpContains: true, OpOneOf: true},
	"imported_payee": {OpIs: true, OpContains: true, OpOneOf: true},
	"notes":          {OpIs: true, OpContains: true, OpOneOf: true},
	"category":       {OpIs: true, OpOneOf: true},
	"cleared":        {OpIs: true},
	"amount":         {OpIs: true, OpGt: true, OpLt: true},
}

var actionFields = map[string]bool{
	"payee":    true,
	"category": true,
	"notes":    true,
	"cleared":  true,
}

type RuleSource interface {
	ListRules(ctx context.Context) ([]models.Rule, error)
}

// Engine holds the current rule set in memory. It is safe for concurrent
// use; Reload swaps the set atomically.
type Engine struct {
	src   RuleSource
	mu    sync.RWMutex
	rules []models.Rule
}

func NewEngine(src RuleSource) *Engine {
	return &Engine{src: src}
}

func (e *Engine) Reload(ctx context.Context) error {
	rules, err := e.src.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// Apply runs every rule whose conditions all hold, in position order.
func (e *Engine) Apply(t reconciliation.CanonicalTransaction) reconciliation.CanonicalTransaction {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		if matches(r, t) {
			t = apply(r, t)
		}
	}
	return t
}

// Validate rejects rules the engine cannot evaluate.
func Validate(r models.Rule) error {
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule has no actions: %w", ErrBadValue)
	}
	for _, c := range r.Conditions {
		ops, ok := conditionOps[c.Field]
		if !ok {
			return fmt.Errorf("condition %q: %w", c.Field, ErrUnknownField)
		}
		if !ops[c.Op] {
			return fmt.Errorf("condition %s %s: %w", c.Field, c.Op, ErrUnknownOp)
		}
		if c.Field == "amount" {
			if _, err := strconv.ParseInt(c.Value, 10, 64); err != nil {
				return fmt.Errorf("condition amount %q: %w", c.Value, ErrBadValue)
			}
		}
	}
	for _, a := range r.Actions {
		if !actionFields[a.Field] {
			return fmt.Errorf("action %q: %w", a.Field, ErrUnknownField)
		}
		if a.Op != OpSet {
			return fmt.Errorf("action %s %s: %w", a.Field, a.Op, ErrUnknownOp)
		}
		switch a.Field {
		case "payee", "category":
			if _, err := uuid.Parse(a.Value); err != nil {
				return fmt.Errorf("action %s %q: %w", a.Field, a.Value, ErrBadValue)
			}
		case "cleared":
			if _, err := strconv.ParseBool(a.Value); err != nil {
				return fmt.Errorf("action cleared %q: %w", a.Value, ErrBadValue)
			}
		}
	}
	return nil
}

func matches(r models.Rule, t reconciliation.CanonicalTransaction) bool {
	for _, c := range r.Conditions {
		if !holds(c, t) {
			return false
		}
	}
	return true
}

func holds(c models.RuleCondition, t reconciliation.CanonicalTransaction) bool {
	switch c.Field {
	case "amount":
		want, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return false
		}
		switch c.Op {
		case OpIs:
			return t.Amount == want
		case OpGt:
			return t.Amount > want
		case OpLt:
			return t.Amount < want
		}
		return false
	case "cleared":
		want, err := strconv.ParseBool(c.Value)
		if err != nil {
			return false
		}
		return t.Cleared == nil && want || t.Cleared != nil && *t.Cleared == want
	}

	var got string
	switch c.Field {
	case "payee":
		got = t.PayeeName
	case "imported_payee":
		got = t.ImportedPayee
	case "notes":
		got = t.Notes
	case "category":
		if t.CategoryID != nil {
			got = t.CategoryID.String()
		}
	default:
		return false
	}
	return compareText(c, got)
}

func compareText(c models.RuleCondition, got string) bool {
	got = strings.ToLower(got)
	switch c.Op {
	case OpIs:
		return got == strings.ToLower(c.Value)
	case OpContains:
		return c.Value != "" && strings.Contains(got, strings.ToLower(c.Value))
	case OpOneOf:
		for _, v := range c.Any {
			if got == strings.ToLower(v) {
				return true
			}
		}
	}
	return false
}

func apply(r models.Rule, t reconciliation.CanonicalTransaction) reconciliation.CanonicalTransaction {
	for _, a := range r.Actions {
		switch a.Field {
		case "payee":
			if id, err := uuid.Parse(a.Value); err == nil {
				t.PayeeID = &id
			}
		case "category":
			if id, err := uuid.Parse(a.Value); err == nil {
				t.CategoryID = &id
			}
		case "notes":
			t.Notes = a.Value
		case "cleared":
			if b, err := strconv.ParseBool(a.Value); err == nil {
				t.Cleared = &b
			}
		}
	}
	return t
}

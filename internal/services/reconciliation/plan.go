package reconciliation

import (
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
)

// Reasons a matched row produces no update.
const (
	ReasonReconciled = "reconciled"
	ReasonUnchanged  = "unchanged"
)

// Update carries the full field set for one matched ledger row, keyed by
// column name.
type Update struct {
	ID      uuid.UUID
	Fields  map[string]interface{}
	Changed []string
}

// PayeeID returns the payee the update assigns, if any.
func (u Update) PayeeID() *uuid.UUID {
	id, _ := u.Fields["payee_id"].(*uuid.UUID)
	return id
}

// Cascade asks for the children of a matched split parent to follow its
// cleared flag.
type Cascade struct {
	ParentID uuid.UUID
	Cleared  bool
}

// Decision records what happened to one incoming transaction.
type Decision struct {
	Index      int
	State      matching.State
	MatchID    *uuid.UUID
	InsertedID *uuid.UUID
	Ignored    bool
	Reason     string
	Changed    []string
	DateDelta  int
}

// Plan is the set of writes a reconciliation resolved to.
type Plan struct {
	Inserts   []models.Transaction
	Updates   []Update
	Cascades  []Cascade
	Decisions []Decision
}

// PlanChanges turns match results into inserts and updates. It does no I/O;
// txs and results must be indexed alike.
func PlanChanges(txs []CanonicalTransaction, results []matching.Result) *Plan {
	p := &Plan{Decisions: make([]Decision, len(txs))}

	for i, t := range txs {
		d := Decision{Index: i, State: matching.Unmatched}
		if i < len(results) {
			d.State = results[i].State
		}

		var c *matching.Candidate
		if d.State != matching.Unmatched {
			c = results[i].Match
		}
		if c == nil {
			d.State = matching.Unmatched
			rows := insertRows(t)
			d.InsertedID = &rows[0].ID
			p.Inserts = append(p.Inserts, rows...)
			p.Decisions[i] = d
			continue
		}

		id := c.ID
		d.MatchID = &id
		d.DateDelta = int(t.Date.Sub(models.Day(c.Date)).Hours() / 24)

		if c.Reconciled {
			d.Ignored = true
			d.Reason = ReasonReconciled
			p.Decisions[i] = d
			continue
		}

		u := matchedUpdate(t, c)
		d.Changed = u.Changed
		if len(u.Changed) == 0 {
			d.Ignored = true
			d.Reason = ReasonUnchanged
			p.Decisions[i] = d
			continue
		}
		p.Updates = append(p.Updates, u)
		if c.IsParent && c.Cleared != t.cleared() {
			p.Cascades = append(p.Cascades, Cascade{ParentID: c.ID, Cleared: t.cleared()})
		}
		p.Decisions[i] = d
	}
	return p
}

// matchedUpdate merges an incoming transaction into the row it matched.
// Fields the user may have edited keep their existing values.
func matchedUpdate(t CanonicalTransaction, c *matching.Candidate) Update {
	date := models.Day(t.Date)

	importedID := c.ImportedID
	if importedID == nil && t.ImportedID != "" {
		v := t.ImportedID
		importedID = &v
	}

	importedPayee := t.ImportedPayee
	if importedPayee == "" {
		importedPayee = c.ImportedPayee
	}

	payeeID := c.PayeeID
	if payeeID == nil {
		payeeID = t.PayeeID
	}

	categoryID := c.CategoryID
	if categoryID == nil {
		categoryID = t.CategoryID
	}

	notes := c.Notes
	if notes == "" {
		notes = t.Notes
	}

	cleared := t.cleared()

	u := Update{
		ID: c.ID,
		Fields: map[string]interface{}{
			"date":           date,
			"imported_id":    importedID,
			"imported_payee": importedPayee,
			"payee_id":       payeeID,
			"category_id":    categoryID,
			"notes":          notes,
			"cleared":        cleared,
		},
	}

	if !date.Equal(models.Day(c.Date)) {
		u.Changed = append(u.Changed, "date")
	}
	if !sameString(importedID, c.ImportedID) {
		u.Changed = append(u.Changed, "imported_id")
	}
	if importedPayee != c.ImportedPayee {
		u.Changed = append(u.Changed, "imported_payee")
	}
	if !sameID(payeeID, c.PayeeID) {
		u.Changed = append(u.Changed, "payee_id")
	}
	if !sameID(categoryID, c.CategoryID) {
		u.Changed = append(u.Changed, "category_id")
	}
	if notes != c.Notes {
		u.Changed = append(u.Changed, "notes")
	}
	if cleared != c.Cleared {
		u.Changed = append(u.Changed, "cleared")
	}
	return u
}

// insertRows builds the ledger rows for an unmatched transaction. The
// first row is the transaction itself.
func insertRows(t CanonicalTransaction) []models.Transaction {
	row := models.Transaction{
		ID:            uuid.New(),
		AccountID:     t.AccountID,
		Date:          models.Day(t.Date),
		Amount:        t.Amount,
		PayeeID:       t.PayeeID,
		CategoryID:    t.CategoryID,
		Notes:         t.Notes,
		ImportedPayee: t.ImportedPayee,
		Cleared:       t.cleared(),
	}
	if t.ImportedID != "" {
		v := t.ImportedID
		row.ImportedID = &v
	}
	if len(t.Subtransactions) == 0 {
		return []models.Transaction{row}
	}
	return expandSplit(row, t.Subtransactions)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

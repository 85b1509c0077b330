package reconciliation

import (
	"context"
	"fmt"
	"sort"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

type PayeeCreator interface {
	CreatePayee(ctx context.Context, payee *models.Payee) error
}

type LedgerWriter interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
}

// CommitPayees creates the staged payees that survived to the plan. A payee
// staged for a transaction whose payee was later replaced is dropped.
func CommitPayees(ctx context.Context, w PayeeCreator, staged map[string]*models.Payee, p *Plan) ([]models.Payee, error) {
	used := make(map[uuid.UUID]struct{})
	for _, row := range p.Inserts {
		if row.PayeeID != nil {
			used[*row.PayeeID] = struct{}{}
		}
	}
	for _, u := range p.Updates {
		if id := u.PayeeID(); id != nil {
			used[*id] = struct{}{}
		}
	}

	keys := make([]string, 0, len(staged))
	for k := range staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var created []models.Payee
	for _, k := range keys {
		payee := staged[k]
		if _, ok := used[payee.ID]; !ok {
			continue
		}
		if err := w.CreatePayee(ctx, payee); err != nil {
			return nil, fmt.Errorf("create payee %q: %w", payee.Name, err)
		}
		created = append(created, *payee)
	}
	return created, nil
}

// CommitPlan writes inserts, then updates, then cascades each matched
// parent's cleared flag to its children. Split children are reported as
// added and cascaded children as updated.
func CommitPlan(ctx context.Context, w LedgerWriter, p *Plan) (added, updated []uuid.UUID, err error) {
	added = []uuid.UUID{}
	updated = []uuid.UUID{}

	for i := range p.Inserts {
		row := p.Inserts[i]
		if err := w.CreateTransaction(ctx, &row); err != nil {
			return nil, nil, fmt.Errorf("insert transaction: %w", err)
		}
		added = append(added, row.ID)
	}

	for _, u := range p.Updates {
		if err := w.UpdateTransaction(ctx, u.ID, u.Fields); err != nil {
			return nil, nil, fmt.Errorf("update transaction %s: %w", u.ID, err)
		}
		updated = append(updated, u.ID)
	}

	for _, c := range p.Cascades {
		children, err := w.ChildIDs(ctx, c.ParentID)
		if err != nil {
			return nil, nil, fmt.Errorf("list children of %s: %w", c.ParentID, err)
		}
		for _, id := range children {
			if err := w.UpdateTransaction(ctx, id, map[string]interface{}{"cleared": c.Cleared}); err != nil {
				return nil, nil, fmt.Errorf("cascade cleared to %s: %w", id, err)
			}
			updated = append(updated, id)
		}
	}
	return added, updated, nil
}

package reconciliation

import (
	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

// expandSplit turns parent into a split parent followed by one child per
// subtransaction. Children always sum to the parent amount: the last child
// absorbs any difference. A zero parent amount takes the children's total.
func expandSplit(parent models.Transaction, subs []SubTransaction) []models.Transaction {
	var total int64
	for _, s := range subs {
		total += s.Amount
	}
	if parent.Amount == 0 {
		parent.Amount = total
	}
	parent.IsParent = true
	parent.CategoryID = nil

	rows := make([]models.Transaction, 0, len(subs)+1)
	rows = append(rows, parent)

	parentID := parent.ID
	for idx, s := range subs {
		accountID := s.AccountID
		if accountID == uuid.Nil {
			accountID = parent.AccountID
		}
		rows = append(rows, models.Transaction{
			ID:         uuid.New(),
			AccountID:  accountID,
			Date:       parent.Date,
			Amount:     s.Amount,
			PayeeID:    parent.PayeeID,
			CategoryID: s.CategoryID,
			Notes:      s.Notes,
			Cleared:    parent.Cleared,
			IsChild:    true,
			ParentID:   &parentID,
			SortOrder:  int64(-idx),
		})
	}

	if diff := parent.Amount - total; diff != 0 {
		rows[len(rows)-1].Amount += diff
	}
	return rows
}

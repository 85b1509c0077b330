package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PayeeFinder looks up an existing payee by case-insensitive name. It
// returns nil, nil when there is none.
type PayeeFinder interface {
	FindPayeeByName(ctx context.Context, name string) (*models.Payee, error)
}

// Canonicalizer turns external records into CanonicalTransactions. New
// payees are only staged; nothing is written.
type Canonicalizer struct {
	payees PayeeFinder
}

func NewCanonicalizer(payees PayeeFinder) *Canonicalizer {
	return &Canonicalizer{payees: payees}
}

// Normalize validates every record before resolving any payee, so a bad
// record anywhere in the batch fails it without touching storage.
func (c *Canonicalizer) Normalize(ctx context.Context, batch []ExternalTransaction, accountID uuid.UUID, opts Options) (*Normalized, error) {
	records := make([]rawRecord, len(batch))
	dates := make([]time.Time, len(batch))
	for i, ext := range batch {
		r := ext.record()
		d, err := parseRecordDate(i, r)
		if err != nil {
			return nil, err
		}
		if r.requirePayee && !r.hasPayeeName {
			return nil, &ValidationError{Index: i, Err: ErrMissingPayeeName}
		}
		records[i] = r
		dates[i] = d
	}

	out := &Normalized{
		Transactions: make([]CanonicalTransaction, 0, len(batch)),
		StagedPayees: make(map[string]*models.Payee),
	}
	titler := cases.Title(language.Und, cases.NoLower)

	for i, r := range records {
		name := strings.TrimSpace(r.payeeName)
		if name != "" && !r.rawPayeeCasing && !opts.PreserveRawPayeeCasing {
			name = titler.String(name)
		}

		importedPayee := r.importedPayee
		if importedPayee == "" {
			importedPayee = name
		}

		payeeID, err := c.resolvePayee(ctx, name, out.StagedPayees)
		if err != nil {
			return nil, fmt.Errorf("resolve payee for transaction %d: %w", i, err)
		}

		t := CanonicalTransaction{
			AccountID:     accountID,
			Date:          dates[i],
			Amount:        r.effectiveAmount(),
			PayeeID:       payeeID,
			PayeeName:     name,
			ImportedPayee: strings.TrimSpace(importedPayee),
			ImportedID:    strings.TrimSpace(r.importedID),
			Notes:         r.notes,
			Cleared:       r.cleared,
			CategoryID:    r.category,
		}
		for _, s := range r.subs {
			s.AccountID = accountID
			t.Subtransactions = append(t.Subtransactions, s)
		}
		out.Transactions = append(out.Transactions, t)
	}
	return out, nil
}

func (c *Canonicalizer) resolvePayee(ctx context.Context, name string, staged map[string]*models.Payee) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	existing, err := c.payees.FindPayeeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		id := existing.ID
		return &id, nil
	}

	key := strings.ToLower(name)
	if p, ok := staged[key]; ok {
		id := p.ID
		return &id, nil
	}
	p := &models.Payee{ID: uuid.New(), Name: name}
	staged[key] = p
	id := p.ID
	return &id, nil
}

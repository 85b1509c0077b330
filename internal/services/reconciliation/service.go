package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"

	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Options tune a single reconciliation.
type Options struct {
	// PreserveRawPayeeCasing skips title-casing of payee names.
	PreserveRawPayeeCasing bool
	// LooseImportedIDs lets an item with an imported id fuzzy-match rows that
	// already carry a different one.
	LooseImportedIDs bool
	// Source is recorded on the run; defaults to models.RunSourceReconcile.
	Source string
}

// RuleApplier rewrites a canonical transaction before matching.
type RuleApplier interface {
	Apply(t CanonicalTransaction) CanonicalTransaction
}

type RuleFunc func(CanonicalTransaction) CanonicalTransaction

func (f RuleFunc) Apply(t CanonicalTransaction) CanonicalTransaction {
	return f(t)
}

// NoRules leaves transactions untouched.
var NoRules RuleApplier = RuleFunc(func(t CanonicalTransaction) CanonicalTransaction { return t })

type Result struct {
	RunID   uuid.UUID   `json:"run_id"`
	Added   []uuid.UUID `json:"added"`
	Updated []uuid.UUID `json:"updated"`
}

// PreviewEntry describes what reconciling one record would do.
type PreviewEntry struct {
	Index     int        `json:"index"`
	Kind      string     `json:"kind"`
	MatchedID *uuid.UUID `json:"matched_id,omitempty"`
	Ignored   bool       `json:"ignored"`
	Reason    string     `json:"reason,omitempty"`
	Changed   []string   `json:"changed,omitempty"`
	Date      string     `json:"date"`
	Amount    int64      `json:"amount"`
	Payee     string     `json:"payee,omitempty"`
}

type ReconciliationService struct {
	store *repository.Store
	rules RuleApplier
}

func NewReconciliationService(store *repository.Store, rules RuleApplier) *ReconciliationService {
	if rules == nil {
		rules = NoRules
	}
	return &ReconciliationService{store: store, rules: rules}
}

// Reconcile merges batch into the account's ledger as one atomic batch.
func (s *ReconciliationService) Reconcile(ctx context.Context, accountID uuid.UUID, batch []ExternalTransaction, opts Options) (*Result, error) {
	var res *Result
	err := s.store.RunAsBatch(ctx, func(tx *repository.Store) error {
		var err error
		res, err = s.ReconcileWith(ctx, tx, accountID, batch, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReconcileWith runs a reconciliation against tx, which the caller has
// already opened with RunAsBatch.
func (s *ReconciliationService) ReconcileWith(ctx context.Context, tx *repository.Store, accountID uuid.UUID, batch []ExternalTransaction, opts Options) (*Result, error) {
	log := logger.FromContext(ctx).With().
		Str("account_id", accountID.String()).
		Int("records", len(batch)).
		Logger()

	normalized, err := NewCanonicalizer(tx).Normalize(ctx, batch, accountID, opts)
	if err != nil {
		return nil, err
	}
	txs := s.applyRules(normalized.Transactions)

	results, err := s.match(ctx, tx, accountID, txs, opts)
	if err != nil {
		return nil, err
	}
	plan := PlanChanges(txs, results)

	source := opts.Source
	if source == "" {
		source = models.RunSourceReconcile
	}
	res, err := s.commit(ctx, tx, accountID, source, len(batch), normalized, plan)
	if err != nil {
		return nil, err
	}

	counts := matching.Counts(results)
	log.Info().
		Str("run_id", res.RunID.String()).
		Int("exact", counts[matching.ExactMatched]).
		Int("payee", counts[matching.PayeeMatched]).
		Int("position", counts[matching.PositionMatched]).
		Int("added", len(res.Added)).
		Int("updated", len(res.Updated)).
		Msg("reconciled transactions")
	return res, nil
}

// AddTransactions inserts batch without matching. Payee names are kept as
// given.
func (s *ReconciliationService) AddTransactions(ctx context.Context, accountID uuid.UUID, batch []ExternalTransaction) (*Result, error) {
	var res *Result
	err := s.store.RunAsBatch(ctx, func(tx *repository.Store) error {
		opts := Options{PreserveRawPayeeCasing: true}
		normalized, err := NewCanonicalizer(tx).Normalize(ctx, batch, accountID, opts)
		if err != nil {
			return err
		}
		txs := s.applyRules(normalized.Transactions)
		plan := PlanChanges(txs, nil)

		res, err = s.commit(ctx, tx, accountID, models.RunSourceImport, len(batch), normalized, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info().
		Str("account_id", accountID.String()).
		Int("added", len(res.Added)).
		Msg("added transactions")
	return res, nil
}

// Preview reports what Reconcile would do without writing anything.
func (s *ReconciliationService) Preview(ctx context.Context, accountID uuid.UUID, batch []ExternalTransaction, opts Options) ([]PreviewEntry, error) {
	normalized, err := NewCanonicalizer(s.store).Normalize(ctx, batch, accountID, opts)
	if err != nil {
		return nil, err
	}
	txs := s.applyRules(normalized.Transactions)

	results, err := s.match(ctx, s.store, accountID, txs, opts)
	if err != nil {
		return nil, err
	}
	plan := PlanChanges(txs, results)

	entries := make([]PreviewEntry, len(txs))
	for i, d := range plan.Decisions {
		entries[i] = PreviewEntry{
			Index:     i,
			Kind:      d.State.String(),
			MatchedID: d.MatchID,
			Ignored:   d.Ignored,
			Reason:    d.Reason,
			Changed:   d.Changed,
			Date:      txs[i].Date.Format(models.DateLayout),
			Amount:    txs[i].Amount,
			Payee:     txs[i].PayeeName,
		}
	}
	return entries, nil
}

func (s *ReconciliationService) applyRules(txs []CanonicalTransaction) []CanonicalTransaction {
	out := make([]CanonicalTransaction, len(txs))
	for i, t := range txs {
		out[i] = s.rules.Apply(t)
	}
	return out
}

func (s *ReconciliationService) match(ctx context.Context, tx *repository.Store, accountID uuid.UUID, txs []CanonicalTransaction, opts Options) ([]matching.Result, error) {
	items := make([]matching.Item, len(txs))
	for i, t := range txs {
		items[i] = matching.Item{
			ImportedID: t.ImportedID,
			PayeeID:    t.PayeeID,
			Date:       t.Date,
			Amount:     t.Amount,
		}
	}
	ds, err := matching.Gather(ctx, candidateSource{store: tx}, accountID, items, matching.Options{
		StrictImportedIDs: !opts.LooseImportedIDs,
	})
	if err != nil {
		return nil, err
	}
	return matching.Match(items, ds), nil
}

func (s *ReconciliationService) commit(ctx context.Context, tx *repository.Store, accountID uuid.UUID, source string, total int, normalized *Normalized, plan *Plan) (*Result, error) {
	run, err := tx.CreateRun(ctx, accountID, source, total)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	created, err := CommitPayees(ctx, tx, normalized.StagedPayees, plan)
	if err != nil {
		return nil, err
	}
	added, updated, err := CommitPlan(ctx, tx, plan)
	if err != nil {
		return nil, err
	}

	if err := tx.CreateAuditLogs(ctx, auditLogs(run.ID, normalized.Transactions, plan)); err != nil {
		return nil, fmt.Errorf("write audit logs: %w", err)
	}

	for _, d := range plan.Decisions {
		switch d.State {
		case matching.ExactMatched:
			run.ExactMatched++
		case matching.PayeeMatched:
			run.PayeeMatched++
		case matching.PositionMatched:
			run.PositionMatched++
		}
	}
	run.AddedCount = len(added)
	run.UpdatedCount = len(updated)
	run.PayeesCreated = len(created)
	if err := tx.CompleteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}

	return &Result{RunID: run.ID, Added: added, Updated: updated}, nil
}

func auditLogs(runID uuid.UUID, txs []CanonicalTransaction, plan *Plan) []models.MatchAuditLog {
	logs := make([]models.MatchAuditLog, 0, len(plan.Decisions))
	for _, d := range plan.Decisions {
		t := txs[d.Index]

		target := d.MatchID
		if target == nil {
			target = d.InsertedID
		}
		details := map[string]interface{}{
			"index":          d.Index,
			"kind":           d.State.String(),
			"date":           t.Date.Format(models.DateLayout),
			"amount":         t.Amount,
			"payee":          t.PayeeName,
			"imported_payee": t.ImportedPayee,
		}
		if d.MatchID != nil {
			details["date_delta_days"] = d.DateDelta
			details["changed"] = d.Changed
		}
		if d.Ignored {
			details["ignored"] = d.Reason
		}
		detailsJSON, _ := json.Marshal(details)

		log := models.MatchAuditLog{
			ID:      uuid.New(),
			RunID:   runID,
			Kind:    d.State.String(),
			Changed: !d.Ignored,
			Details: datatypes.JSON(detailsJSON),
		}
		if target != nil {
			log.TransactionID = *target
		}
		if t.ImportedID != "" {
			v := t.ImportedID
			log.ImportedID = &v
		}
		logs = append(logs, log)
	}
	return logs
}

// candidateSource adapts the transaction repository to matching.
type candidateSource struct {
	store *repository.Store
}

func (c candidateSource) FindByImportedID(ctx context.Context, accountID uuid.UUID, importedID string) (*matching.Candidate, error) {
	row, err := c.store.FindByImportedID(ctx, accountID, importedID)
	if err != nil || row == nil {
		return nil, err
	}
	cand := toCandidate(*row)
	return &cand, nil
}

func (c candidateSource) FindWindow(ctx context.Context, w matching.Window) ([]matching.Candidate, error) {
	rows, err := c.store.FindCandidates(ctx, repository.CandidateFilter{
		AccountID:         w.AccountID,
		From:              w.From,
		To:                w.To,
		Amount:            w.Amount,
		WithoutImportedID: w.WithoutImportedID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]matching.Candidate, len(rows))
	for i, r := range rows {
		out[i] = toCandidate(r)
	}
	return out, nil
}

func toCandidate(t models.Transaction) matching.Candidate {
	return matching.Candidate{
		ID:            t.ID,
		Date:          t.Date,
		Amount:        t.Amount,
		ImportedID:    t.ImportedID,
		ImportedPayee: t.ImportedPayee,
		PayeeID:       t.PayeeID,
		CategoryID:    t.CategoryID,
		Notes:         t.Notes,
		Cleared:       t.Cleared,
		Reconciled:    t.Reconciled,
		IsParent:      t.IsParent,
	}
}

// Package banksync keeps linked accounts in step with their bank-data
// provider.
package banksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/money"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	OnBudgetLookbackDays   int
	OffBudgetLookbackDays  int
	IncrementalOverlapDays int
	Concurrency            int
}

func DefaultConfig() Config {
	return Config{
		OnBudgetLookbackDays:   1,
		OffBudgetLookbackDays:  30,
		IncrementalOverlapDays: 31,
		Concurrency:            4,
	}
}

type Syncer struct {
	store     *repository.Store
	recon     *reconciliation.ReconciliationService
	providers map[string]Provider
	cfg       Config
	now       func() time.Time
}

func NewSyncer(store *repository.Store, recon *reconciliation.ReconciliationService, providers map[string]Provider, cfg Config) *Syncer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Syncer{
		store:     store,
		recon:     recon,
		providers: providers,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SyncAccount downloads new transactions for a linked account and
// reconciles them. Either every change is committed or none is.
func (s *Syncer) SyncAccount(ctx context.Context, accountID uuid.UUID) (*reconciliation.Result, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.Linked() {
		return nil, ErrNotLinked
	}
	provider, ok := s.providers[acct.SyncSource]
	if !ok {
		return nil, &InternalError{
			Op:      "sync",
			Err:     fmt.Errorf("unrecognized provider %q", acct.SyncSource),
			Details: map[string]interface{}{"account_id": acct.ID.String()},
		}
	}

	log := logger.FromContext(ctx).With().
		Str("account_id", acct.ID.String()).
		Str("sync_source", acct.SyncSource).
		Logger()
	ctx = logger.WithContext(ctx, log)

	latest, err := s.store.LatestDate(ctx, acct.ID)
	if err != nil {
		return nil, internal("latest date", acct, err)
	}
	if latest == nil {
		return s.firstSync(ctx, acct, provider)
	}
	return s.incrementalSync(ctx, acct, provider, *latest)
}

func (s *Syncer) incrementalSync(ctx context.Context, acct *models.Account, provider Provider, latest time.Time) (*reconciliation.Result, error) {
	earliest, err := s.store.EarliestDate(ctx, acct.ID)
	if err != nil {
		return nil, internal("earliest date", acct, err)
	}
	start := models.AddDays(latest, -s.cfg.IncrementalOverlapDays)
	if earliest != nil && start.Before(*earliest) {
		start = *earliest
	}

	dl, err := s.download(ctx, acct, provider, start)
	if err != nil {
		return nil, err
	}
	if len(dl.Transactions) == 0 {
		logger.FromContext(ctx).Info().Msg("no new transactions")
		return emptyResult(), nil
	}

	var res *reconciliation.Result
	err = s.store.RunAsBatch(ctx, func(tx *repository.Store) error {
		var err error
		res, err = s.recon.ReconcileWith(ctx, tx, acct.ID, dl.Transactions, s.options(acct))
		if err != nil {
			return err
		}
		return tx.UpdateBalance(ctx, acct.ID, accountBalance(acct, dl))
	})
	if err != nil {
		return nil, batchError(acct, err)
	}
	return res, nil
}

func (s *Syncer) firstSync(ctx context.Context, acct *models.Account, provider Provider) (*reconciliation.Result, error) {
	lookback := s.cfg.OnBudgetLookbackDays
	if acct.OffBudget {
		lookback = s.cfg.OffBudgetLookbackDays
	}
	start := models.AddDays(s.now(), -lookback)

	dl, err := s.download(ctx, acct, provider, start)
	if err != nil {
		return nil, err
	}

	sum, oldest, err := reconciliation.Totals(dl.Transactions)
	if err != nil {
		return nil, err
	}
	balance := accountBalance(acct, dl)
	date := models.Day(s.now())
	if oldest != nil {
		date = *oldest
	}

	var res *reconciliation.Result
	err = s.store.RunAsBatch(ctx, func(tx *repository.Store) error {
		payee, err := startingBalancePayee(ctx, tx)
		if err != nil {
			return err
		}
		initial := models.Transaction{
			ID:                  uuid.New(),
			AccountID:           acct.ID,
			Date:                date,
			Amount:              balance - sum,
			PayeeID:             &payee.ID,
			Cleared:             true,
			StartingBalanceFlag: true,
		}
		if !acct.OffBudget {
			initial.CategoryID = payee.CategoryID
		}
		if err := tx.CreateTransaction(ctx, &initial); err != nil {
			return err
		}

		res, err = s.recon.ReconcileWith(ctx, tx, acct.ID, dl.Transactions, s.options(acct))
		if err != nil {
			return err
		}
		res.Added = append([]uuid.UUID{initial.ID}, res.Added...)
		return tx.UpdateBalance(ctx, acct.ID, balance)
	})
	if err != nil {
		return nil, batchError(acct, err)
	}

	logger.FromContext(ctx).Info().
		Str("starting_balance", money.Format(balance-sum)).
		Str("since", start.Format(models.DateLayout)).
		Msg("first sync")
	return res, nil
}

func (s *Syncer) download(ctx context.Context, acct *models.Account, provider Provider, since time.Time) (*Download, error) {
	dl, err := provider.DownloadTransactions(ctx, DownloadRequest{
		ExternalAccountID: acct.ExternalAccountID,
		BankID:            acct.BankID,
		Since:             since,
		Until:             models.Day(s.now()),
	})
	if err != nil {
		var serr *SyncError
		var ierr *InternalError
		switch {
		case errors.As(err, &serr), errors.As(err, &ierr):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &SyncError{Category: "TIMED_OUT", Code: "TIMED_OUT"}
		}
		return nil, internal("download", acct, err)
	}
	return dl, nil
}

func (s *Syncer) options(acct *models.Account) reconciliation.Options {
	return reconciliation.Options{
		LooseImportedIDs: acct.LooseIDMatching,
		Source:           models.RunSourceSync,
	}
}

// startingBalancePayee returns the well-known payee, creating it on first
// use.
func startingBalancePayee(ctx context.Context, tx *repository.Store) (*models.Payee, error) {
	payee, err := tx.FindPayeeByName(ctx, models.StartingBalancePayeeName)
	if err != nil || payee != nil {
		return payee, err
	}
	payee = &models.Payee{ID: uuid.New(), Name: models.StartingBalancePayeeName}
	if err := tx.CreatePayee(ctx, payee); err != nil {
		return nil, err
	}
	return payee, nil
}

func accountBalance(acct *models.Account, dl *Download) int64 {
	debt := acct.IsDebt()
	if dl.AccountType != "" {
		debt = models.IsDebtType(dl.AccountType)
	}
	if debt {
		return -dl.Balance
	}
	return dl.Balance
}

func emptyResult() *reconciliation.Result {
	return &reconciliation.Result{Added: []uuid.UUID{}, Updated: []uuid.UUID{}}
}

func internal(op string, acct *models.Account, err error) error {
	return &InternalError{
		Op:      op,
		Err:     err,
		Details: map[string]interface{}{"account_id": acct.ID.String()},
	}
}

// batchError passes validation errors through and wraps the rest.
func batchError(acct *models.Account, err error) error {
	var verr *reconciliation.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return internal("reconcile", acct, err)
}

// Failure is one account that could not be synced.
type Failure struct {
	AccountID uuid.UUID `json:"account_id"`
	Message   string    `json:"error"`
	Category  string    `json:"category,omitempty"`
	Code      string    `json:"code,omitempty"`
	Err       error     `json:"-"`
}

type AccountResult struct {
	AccountID uuid.UUID   `json:"account_id"`
	RunID     uuid.UUID   `json:"run_id"`
	Added     []uuid.UUID `json:"added"`
	Updated   []uuid.UUID `json:"updated"`
}

type Summary struct {
	Results  []AccountResult `json:"results"`
	Failures []Failure       `json:"failures"`
}

// SyncAll syncs every linked account, a bounded number at a time. A failing
// account is recorded and never stops the others.
func (s *Syncer) SyncAll(ctx context.Context) (*Summary, error) {
	accts, err := s.store.ListLinkedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list linked accounts: %w", err)
	}

	results := make([]*reconciliation.Result, len(accts))
	errs := make([]error, len(accts))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range accts {
		i := i
		g.Go(func() error {
			results[i], errs[i] = s.SyncAccount(ctx, accts[i].ID)
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{Results: []AccountResult{}, Failures: []Failure{}}
	for i, acct := range accts {
		if errs[i] != nil {
			summary.Failures = append(summary.Failures, newFailure(acct.ID, errs[i]))
			logger.FromContext(ctx).Warn().
				Err(errs[i]).
				Str("account_id", acct.ID.String()).
				Msg("account sync failed")
			continue
		}
		summary.Results = append(summary.Results, AccountResult{
			AccountID: acct.ID,
			RunID:     results[i].RunID,
			Added:     results[i].Added,
			Updated:   results[i].Updated,
		})
	}
	return summary, nil
}

func newFailure(accountID uuid.UUID, err error) Failure {
	f := Failure{AccountID: accountID, Message: err.Error(), Err: err}
	var serr *SyncError
	if errors.As(err, &serr) {
		f.Category = serr.Category
		f.Code = serr.Code
	}
	return f
}

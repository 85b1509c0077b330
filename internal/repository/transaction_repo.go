package repository

import (
	"context"
	"errors"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CandidateFilter bounds a fuzzy-match window on one account.
type CandidateFilter struct {
	AccountID uuid.UUID
	From      time.Time
	To        time.Time
	Amount    int64
	// WithoutImportedID drops rows that already carry an imported id.
	WithoutImportedID bool
}

// FindByImportedID returns the live row on the account with that imported
// id, or nil when there is none.
func (r *TransactionRepository) FindByImportedID(ctx context.Context, accountID uuid.UUID, importedID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND imported_id = ? AND tombstone = ?", accountID, importedID, false).
		Order("date ASC, id ASC").
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindCandidates returns non-child rows with the exact amount dated inside
// [From, To], ordered by date then id. Starting-balance rows never match.
func (r *TransactionRepository) FindCandidates(ctx context.Context, f CandidateFilter) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := r.db.WithContext(ctx).
		Where("account_id = ?", f.AccountID).
		Where("amount = ?", f.Amount).
		Where("date >= ? AND date <= ?", models.Day(f.From), models.Day(f.To)).
		Where("is_child = ? AND tombstone = ? AND starting_balance_flag = ?", false, false, false)
	if f.WithoutImportedID {
		q = q.Where("imported_id IS NULL")
	}
	err := q.Order("date ASC, id ASC").Find(&txs).Error
	return txs, err
}

func (r *TransactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

func (r *TransactionRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// UpdateTransaction writes only the given columns.
func (r *TransactionRepository) UpdateTransaction(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TransactionRepository) ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("parent_id = ? AND tombstone = ?", parentID, false).
		Order("sort_order DESC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// LatestDate and EarliestDate return nil when the account has no rows.
func (r *TransactionRepository) LatestDate(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	return r.boundaryDate(ctx, accountID, "date DESC")
}

func (r *TransactionRepository) EarliestDate(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	return r.boundaryDate(ctx, accountID, "date ASC")
}

func (r *TransactionRepository) boundaryDate(ctx context.Context, accountID uuid.UUID, order string) (*time.Time, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Select("date").
		Where("account_id = ? AND tombstone = ?", accountID, false).
		Order(order).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d := models.Day(tx.Date)
	return &d, nil
}

// ListByAccount returns live rows, newest first. limit <= 0 means no limit.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := r.db.WithContext(ctx).
		Where("account_id = ? AND tombstone = ?", accountID, false).
		Order("date DESC, amount DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

// MarkDeleted tombstones a row. Tombstoned rows never take part in matching.
func (r *TransactionRepository) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	return r.UpdateTransaction(ctx, id, map[string]interface{}{"tombstone": true})
}

package repository

import (
	"context"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acct models.Account
	if err := r.db.WithContext(ctx).First(&acct, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &acct, nil
}

func (r *AccountRepository) CreateAccount(ctx context.Context, acct *models.Account) error {
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(acct).Error
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("balance_current", balance).Error
}

// ListLinkedAccounts returns accounts connected to a provider.
func (r *AccountRepository) ListLinkedAccounts(ctx context.Context) ([]models.Account, error) {
	var accts []models.Account
	err := r.db.WithContext(ctx).
		Where("sync_source <> '' AND external_account_id <> ''").
		Order("name ASC, id ASC").
		Find(&accts).Error
	return accts, err
}

package repository

import (
	"context"
	"errors"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayeeRepository struct {
	db *gorm.DB
}

func NewPayeeRepository(db *gorm.DB) *PayeeRepository {
	return &PayeeRepository{db: db}
}

// FindPayeeByName does a case-insensitive exact match. It returns nil, nil
// when no payee has that name.
func (r *PayeeRepository) FindPayeeByName(ctx context.Context, name string) (*models.Payee, error) {
	var payee models.Payee
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		Order("created_at ASC, id ASC").
		First(&payee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payee, nil
}

func (r *PayeeRepository) GetPayee(ctx context.Context, id uuid.UUID) (*models.Payee, error) {
	var payee models.Payee
	if err := r.db.WithContext(ctx).First(&payee, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &payee, nil
}

// CreatePayee ignores a conflicting id so that re-committing a staged payee
// is harmless.
func (r *PayeeRepository) CreatePayee(ctx context.Context, payee *models.Payee) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payee).Error
}

func (r *PayeeRepository) ListPayees(ctx context.Context) ([]models.Payee, error) {
	var payees []models.Payee
	err := r.db.WithContext(ctx).Order("name ASC").Find(&payees).Error
	return payees, err
}

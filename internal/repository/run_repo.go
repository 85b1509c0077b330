package repository

import (
	"context"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a run in processing state.
func (r *RunRepository) CreateRun(ctx context.Context, accountID uuid.UUID, source string, total int) (*models.ReconciliationRun, error) {
	now := time.Now()
	run := &models.ReconciliationRun{
		ID:                uuid.New(),
		AccountID:         accountID,
		Source:            source,
		TotalTransactions: total,
		Status:            models.RunStatusProcessing,
		StartedAt:         now,
		CreatedAt:         now,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun stores the final counters and marks the run completed.
func (r *RunRepository) CompleteRun(ctx context.Context, run *models.ReconciliationRun) error {
	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"exact_matched":    run.ExactMatched,
			"payee_matched":    run.PayeeMatched,
			"position_matched": run.PositionMatched,
			"added_count":      run.AddedCount,
			"updated_count":    run.UpdatedCount,
			"payees_created":   run.PayeesCreated,
			"status":           run.Status,
			"completed_at":     now,
		}).Error
}

func (r *RunRepository) CreateAuditLogs(ctx context.Context, logs []models.MatchAuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// GetRun loads a run with its audit rows.
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	err := r.db.WithContext(ctx).
		Preload("AuditLogs", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&run, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

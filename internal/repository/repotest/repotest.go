// Package repotest opens throwaway in-memory databases for tests.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewStore returns a Store over a private, migrated in-memory database.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.AutoMigrate(db))
	return repository.NewStore(db)
}

// Day parses a YYYY-MM-DD literal and fails the test on error.
func Day(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := models.ParseDay(s)
	require.NoError(t, err)
	return d
}

func CreateAccount(t testing.TB, s *repository.Store, acct models.Account) *models.Account {
	t.Helper()
	if acct.Name == "" {
		acct.Name = "Checking"
	}
	require.NoError(t, s.CreateAccount(context.Background(), &acct))
	return &acct
}

func CreatePayee(t testing.TB, s *repository.Store, name string) *models.Payee {
	t.Helper()
	p := &models.Payee{ID: uuid.New(), Name: name}
	require.NoError(t, s.CreatePayee(context.Background(), p))
	return p
}

// CreateTransaction inserts row, assigning an id when it has none.
func CreateTransaction(t testing.TB, s *repository.Store, row models.Transaction) models.Transaction {
	t.Helper()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Date = models.Day(row.Date)
	require.NoError(t, s.CreateTransaction(context.Background(), &row))
	return row
}

func Ptr[T any](v T) *T {
	return &v
}

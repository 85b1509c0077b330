package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Store bundles the repositories that share one *gorm.DB. Inside RunAsBatch
// every repository is bound to the same database transaction.
type Store struct {
	*PayeeRepository
	*TransactionRepository
	*AccountRepository
	*RunRepository
	*RuleRepository

	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		PayeeRepository:       NewPayeeRepository(db),
		TransactionRepository: NewTransactionRepository(db),
		AccountRepository:     NewAccountRepository(db),
		RunRepository:         NewRunRepository(db),
		RuleRepository:        NewRuleRepository(db),
		db:                    db,
	}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// RunAsBatch runs fn inside a single database transaction. Either every
// write made through tx is committed or none is.
func (s *Store) RunAsBatch(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(NewStore(db))
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

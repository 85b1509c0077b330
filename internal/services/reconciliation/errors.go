package reconciliation

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDate      = errors.New("`date` is required when adding a transaction")
	ErrMissingPayeeName = errors.New("`payeeName` is required when adding a transaction")
)

// ValidationError rejects a whole batch because of one record.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transaction %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

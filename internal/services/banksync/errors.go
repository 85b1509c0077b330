package banksync

import (
	"errors"
	"fmt"
)

var ErrNotLinked = errors.New("account is not linked to a provider")

// SyncError is an error reported by a bank-data provider. It is passed to
// the caller unchanged; the caller decides whether to retry or re-link.
type SyncError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Reason   string `json:"reason,omitempty"`
}

func (e *SyncError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bank sync error %s/%s: %s", e.Category, e.Code, e.Reason)
	}
	return fmt.Sprintf("bank sync error %s/%s", e.Category, e.Code)
}

// Retryable reports whether the same request may succeed later.
func (e *SyncError) Retryable() bool {
	switch e.Category {
	case "RATE_LIMIT_EXCEEDED", "TIMED_OUT", "INTERNAL_ERROR":
		return true
	}
	return false
}

// NeedsReauth reports whether the user must re-link the account.
func (e *SyncError) NeedsReauth() bool {
	switch e.Category {
	case "ITEM_ERROR", "ITEM_LOGIN_REQUIRED":
		return true
	}
	return e.Code == "ITEM_LOGIN_REQUIRED"
}

// InternalError wraps an unexpected failure with a diagnostic payload.
type InternalError struct {
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("bank sync %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

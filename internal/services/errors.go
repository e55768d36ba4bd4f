package services

import "errors"

// Error kinds the engine can fail with. Every failure aborts the enclosing
// unit of work with no partial effect. Only ErrStore is transient; the rest
// are deterministic for a given input and must not be retried unchanged.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrImbalancedEntries = errors.New("imbalanced entries")
	ErrBusinessRule      = errors.New("business rule violation")
	ErrStore             = errors.New("store failure")
)

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
)

// Account is a customer cash account. Balance is NUMERIC(20,4) and is only
// ever mutated by the ledger engine under a row lock.
type Account struct {
	ID        string          `json:"id" db:"id"`
	Number    string          `json:"number" db:"number"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Type      AccountType     `json:"type" db:"type"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int             `json:"version" db:"version"` // for optimistic locking
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

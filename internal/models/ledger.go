package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindDeposit              TransactionKind = "deposit"
	KindWithdrawal           TransactionKind = "withdrawal"
	KindTransfer             TransactionKind = "transfer"
	KindInvestmentPurchase   TransactionKind = "investment_purchase"
	KindInvestmentRedemption TransactionKind = "investment_redemption"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// TransactionGroup is one logical money movement. Immutable once completed;
// written atomically with its entries.
type TransactionGroup struct {
	ID          string            `json:"id" db:"id"`
	Kind        TransactionKind   `json:"kind" db:"kind"`
	Description string            `json:"description" db:"description"`
	TotalAmount decimal.Decimal   `json:"total_amount" db:"total_amount"`
	Status      TransactionStatus `json:"status" db:"status"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// TransactionEntry is one leg of a group. Append-only; never mutated after
// creation. BalanceAfter is NULL for virtual offsetting legs, which keep the
// group balanced without touching any account balance.
type TransactionEntry struct {
	ID           string              `json:"id" db:"id"`
	GroupID      string              `json:"group_id" db:"group_id"`
	AccountID    string              `json:"account_id" db:"account_id"`
	EntryType    EntryType           `json:"entry_type" db:"entry_type"`
	Amount       decimal.Decimal     `json:"amount" db:"amount"`
	BalanceAfter decimal.NullDecimal `json:"balance_after" db:"balance_after"`
	Description  string              `json:"description" db:"description"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

// MovementRecord mirrors the customer-facing entry of a movement; it is what
// the ledger engine hands back to callers.
type MovementRecord struct {
	GroupID      string            `json:"group_id"`
	AccountID    string            `json:"account_id"`
	Kind         TransactionKind   `json:"kind"`
	EntryType    EntryType         `json:"entry_type"`
	Amount       decimal.Decimal   `json:"amount"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	Status       TransactionStatus `json:"status"`
	Description  string            `json:"description"`
	CreatedAt    time.Time         `json:"created_at"`
}

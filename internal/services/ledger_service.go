package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/thezfz/corebank-sub000/internal/models"
	"github.com/thezfz/corebank-sub000/internal/store"
)

// balanceTolerance is the rounding slack allowed between a group's debit and
// credit totals. Intent is exact equality; the tolerance only absorbs
// sub-cent noise from upstream fee arithmetic.
var balanceTolerance = decimal.NewFromFloat(0.01)

const moneyScale = 4

// LedgerService is the double-entry ledger engine. Every public operation
// runs as exactly one atomic unit of work against the account store: balances
// move exactly once per movement and the group/entry records appear together
// with the balance update or not at all.
type LedgerService struct {
	store *store.Store
	now   func() time.Time
}

func NewLedgerService(st *store.Store) *LedgerService {
	return &LedgerService{store: st, now: time.Now}
}

// EntryInput is one requested leg of a balanced transaction. A virtual leg
// participates in the debit/credit totals but touches no account balance and
// is written with a NULL balance snapshot; deposits and withdrawals balance
// against one.
type EntryInput struct {
	AccountID   string
	Type        models.EntryType
	Amount      decimal.Decimal
	Description string
	Virtual     bool
}

// Deposit credits the account and records a completed deposit group with a
// virtual offsetting debit leg.
func (s *LedgerService) Deposit(accountID string, amount decimal.Decimal, description string) (*models.MovementRecord, error) {
	return s.singleAccountMovement(models.KindDeposit, accountID, amount, description, models.EntryCredit)
}

// Withdraw debits the account, failing with ErrInsufficientFunds when the
// balance cannot cover the amount.
func (s *LedgerService) Withdraw(accountID string, amount decimal.Decimal, description string) (*models.MovementRecord, error) {
	return s.singleAccountMovement(models.KindWithdrawal, accountID, amount, description, models.EntryDebit)
}

func (s *LedgerService) singleAccountMovement(kind models.TransactionKind, accountID string, amount decimal.Decimal, description string, entryType models.EntryType) (*models.MovementRecord, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	offsetting := models.EntryDebit
	if entryType == models.EntryDebit {
		offsetting = models.EntryCredit
	}

	tx, err := s.store.BeginUnitOfWork()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	_, entries, err := s.CreateBalancedTransactionTx(tx, kind, []EntryInput{
		{AccountID: accountID, Type: entryType, Amount: amount, Description: description},
		{AccountID: accountID, Type: offsetting, Amount: amount, Description: "offsetting cash leg", Virtual: true},
	}, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return movementFromEntry(kind, &entries[0]), nil
}

// Transfer moves amount between two distinct accounts inside one group with
// exactly two real entries. Lock acquisition follows the sorted account-ID
// order regardless of which side pays, so opposing transfers cannot deadlock.
func (s *LedgerService) Transfer(fromAccountID, toAccountID string, amount decimal.Decimal, description string) (*models.MovementRecord, *models.MovementRecord, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if fromAccountID == toAccountID {
		return nil, nil, fmt.Errorf("%w: cannot transfer an account to itself", ErrBusinessRule)
	}

	tx, err := s.store.BeginUnitOfWork()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	_, entries, err := s.CreateBalancedTransactionTx(tx, models.KindTransfer, []EntryInput{
		{AccountID: fromAccountID, Type: models.EntryDebit, Amount: amount, Description: description},
		{AccountID: toAccountID, Type: models.EntryCredit, Amount: amount, Description: description},
	}, description)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return movementFromEntry(models.KindTransfer, &entries[0]), movementFromEntry(models.KindTransfer, &entries[1]), nil
}

// CreateBalancedTransaction is the general-purpose primitive behind every
// movement. It validates the debit/credit balance, applies each real leg's
// delta under the row lock and writes the group header plus entries, all in
// one unit of work.
func (s *LedgerService) CreateBalancedTransaction(kind models.TransactionKind, entries []EntryInput, description string) (*models.TransactionGroup, []models.TransactionEntry, error) {
	tx, err := s.store.BeginUnitOfWork()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	group, created, err := s.CreateBalancedTransactionTx(tx, kind, entries, description)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return group, created, nil
}

// CreateBalancedTransactionTx is the transaction-scoped variant used by the
// investment engine to compose ledger legs into its own unit of work.
func (s *LedgerService) CreateBalancedTransactionTx(tx *sql.Tx, kind models.TransactionKind, entries []EntryInput, description string) (*models.TransactionGroup, []models.TransactionEntry, error) {
	if len(entries) < 2 {
		return nil, nil, fmt.Errorf("%w: a balanced transaction needs at least 2 entries", ErrValidation)
	}

	var totalDebit, totalCredit decimal.Decimal
	for _, e := range entries {
		if !e.Amount.IsPositive() {
			return nil, nil, fmt.Errorf("%w: entry amount must be positive", ErrValidation)
		}
		switch e.Type {
		case models.EntryDebit:
			totalDebit = totalDebit.Add(e.Amount)
		case models.EntryCredit:
			totalCredit = totalCredit.Add(e.Amount)
		default:
			return nil, nil, fmt.Errorf("%w: invalid entry type %q", ErrValidation, e.Type)
		}
	}
	if totalDebit.Sub(totalCredit).Abs().GreaterThan(balanceTolerance) {
		return nil, nil, fmt.Errorf("%w: debit=%s credit=%s", ErrImbalancedEntries, totalDebit, totalCredit)
	}

	accounts, err := s.lockAccounts(tx, entries)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	group := &models.TransactionGroup{
		ID:          uuid.New().String(),
		Kind:        kind,
		Description: description,
		TotalAmount: totalDebit,
		Status:      models.StatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTransactionGroup(tx, group); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	// Running balances, updated per real leg in request order.
	balances := make(map[string]decimal.Decimal, len(accounts))
	for id, acct := range accounts {
		balances[id] = acct.Balance
	}

	created := make([]models.TransactionEntry, 0, len(entries))
	for _, e := range entries {
		entry := models.TransactionEntry{
			ID:          uuid.New().String(),
			GroupID:     group.ID,
			AccountID:   e.AccountID,
			EntryType:   e.Type,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   now,
		}

		if !e.Virtual {
			balance, ok := balances[e.AccountID]
			if !ok {
				return nil, nil, fmt.Errorf("%w: account %s", ErrNotFound, e.AccountID)
			}
			if e.Type == models.EntryDebit {
				balance = balance.Sub(e.Amount)
			} else {
				balance = balance.Add(e.Amount)
			}
			if balance.IsNegative() {
				return nil, nil, fmt.Errorf("%w: account %s", ErrInsufficientFunds, e.AccountID)
			}
			balance = balance.Round(moneyScale)
			balances[e.AccountID] = balance
			entry.BalanceAfter = decimal.NullDecimal{Decimal: balance, Valid: true}
		}

		if err := s.store.CreateTransactionEntry(tx, &entry); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		created = append(created, entry)
	}

	for _, id := range sortedAccountIDs(entries) {
		if err := s.store.SetBalance(tx, id, balances[id], accounts[id].Version); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	return group, created, nil
}

// lockAccounts acquires the row lock of every real participant in sorted-ID
// order, which gives concurrent multi-account operations a consistent global
// acquisition order and rules out circular wait.
func (s *LedgerService) lockAccounts(tx *sql.Tx, entries []EntryInput) (map[string]*models.Account, error) {
	accounts := make(map[string]*models.Account)
	for _, id := range sortedAccountIDs(entries) {
		acct, err := s.store.GetAccountForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
			}
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		accounts[id] = acct
	}
	return accounts, nil
}

// sortedAccountIDs returns the distinct real account IDs of a request in
// canonical string order.
func sortedAccountIDs(entries []EntryInput) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.Virtual || seen[e.AccountID] {
			continue
		}
		seen[e.AccountID] = true
		ids = append(ids, e.AccountID)
	}
	sort.Strings(ids)
	return ids
}

// GetBalance reads the current committed balance of an account.
func (s *LedgerService) GetBalance(accountID string) (*models.Account, error) {
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return account, nil
}

// ListMovements returns the account's most recent ledger entries.
func (s *LedgerService) ListMovements(accountID string, limit int) ([]models.TransactionEntry, error) {
	entries, err := s.store.ListEntriesByAccount(accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return entries, nil
}

func movementFromEntry(kind models.TransactionKind, e *models.TransactionEntry) *models.MovementRecord {
	return &models.MovementRecord{
		GroupID:      e.GroupID,
		AccountID:    e.AccountID,
		Kind:         kind,
		EntryType:    e.EntryType,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter.Decimal,
		Status:       models.StatusCompleted,
		Description:  e.Description,
		CreatedAt:    e.CreatedAt,
	}
}

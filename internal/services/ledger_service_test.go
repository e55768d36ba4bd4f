package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/thezfz/corebank-sub000/internal/models"
	"github.com/thezfz/corebank-sub000/internal/store"
)

const accountForUpdateQuery = "SELECT id, number, owner_id, type, balance, version, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE"

func accountRows(id, balance string, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "number", "owner_id", "type", "balance", "version", "created_at", "updated_at"}).
		AddRow(id, "6222000000000001", "user-1", "checking", balance, version, time.Now(), time.Now())
}

func newLedgerForTest(t *testing.T) (*LedgerService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	return NewLedgerService(store.New(db)), mock, func() { db.Close() }
}

func TestLedgerService_Deposit(t *testing.T) {
	service, mock, closeDB := newLedgerForTest(t)
	defer closeDB()

	t.Run("successful deposit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-1").
			WillReturnRows(accountRows("acc-1", "100.0000", 1))

		mock.ExpectExec("INSERT INTO transaction_groups").
			WithArgs(sqlmock.AnyArg(), "deposit", "salary", "50.00", "completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// Customer-facing credit leg with its balance snapshot.
		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-1", "credit", "50.00", "150.0000", "salary", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// Virtual offsetting debit leg carries no balance snapshot.
		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-1", "debit", "50.00", nil, "offsetting cash leg", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
			WithArgs("150.0000", sqlmock.AnyArg(), "acc-1", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		record, err := service.Deposit("acc-1", decimal.RequireFromString("50.00"), "salary")
		assert.NoError(t, err)
		assert.Equal(t, "acc-1", record.AccountID)
		assert.Equal(t, models.KindDeposit, record.Kind)
		assert.Equal(t, models.EntryCredit, record.EntryType)
		assert.True(t, record.BalanceAfter.Equal(decimal.RequireFromString("150.0000")))
		assert.Equal(t, models.StatusCompleted, record.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := service.Deposit("acc-1", decimal.Zero, "")
		assert.ErrorIs(t, err, ErrValidation)

		_, err = service.Deposit("acc-1", decimal.RequireFromString("-1.00"), "")
		assert.ErrorIs(t, err, ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.Deposit("missing", decimal.RequireFromString("10.00"), "")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Withdraw(t *testing.T) {
	service, mock, closeDB := newLedgerForTest(t)
	defer closeDB()

	t.Run("successful withdrawal", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-1").
			WillReturnRows(accountRows("acc-1", "100.0000", 3))

		mock.ExpectExec("INSERT INTO transaction_groups").
			WithArgs(sqlmock.AnyArg(), "withdrawal", "atm", "40.00", "completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-1", "debit", "40.00", "60.0000", "atm", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-1", "credit", "40.00", nil, "offsetting cash leg", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts").
			WithArgs("60.0000", sqlmock.AnyArg(), "acc-1", 3).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		record, err := service.Withdraw("acc-1", decimal.RequireFromString("40.00"), "atm")
		assert.NoError(t, err)
		assert.Equal(t, models.EntryDebit, record.EntryType)
		assert.True(t, record.BalanceAfter.Equal(decimal.RequireFromString("60.0000")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds leaves balance untouched", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-1").
			WillReturnRows(accountRows("acc-1", "100.0000", 1))
		mock.ExpectExec("INSERT INTO transaction_groups").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectRollback()

		_, err := service.Withdraw("acc-1", decimal.RequireFromString("150.00"), "")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Transfer(t *testing.T) {
	service, mock, closeDB := newLedgerForTest(t)
	defer closeDB()

	t.Run("successful transfer", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-a").
			WillReturnRows(accountRows("acc-a", "100.0000", 1))
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-b").
			WillReturnRows(accountRows("acc-b", "50.0000", 1))

		mock.ExpectExec("INSERT INTO transaction_groups").
			WithArgs(sqlmock.AnyArg(), "transfer", "rent", "30.00", "completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-a", "debit", "30.00", "70.0000", "rent", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-b", "credit", "30.00", "80.0000", "rent", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts").
			WithArgs("70.0000", sqlmock.AnyArg(), "acc-a", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("80.0000", sqlmock.AnyArg(), "acc-b", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		debit, credit, err := service.Transfer("acc-a", "acc-b", decimal.RequireFromString("30.00"), "rent")
		assert.NoError(t, err)
		assert.True(t, debit.BalanceAfter.Equal(decimal.RequireFromString("70.0000")))
		assert.True(t, credit.BalanceAfter.Equal(decimal.RequireFromString("80.0000")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks follow sorted account order regardless of direction", func(t *testing.T) {
		// Paying account sorts after the receiving one; the receiver's row
		// must still be locked first.
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-a").
			WillReturnRows(accountRows("acc-a", "50.0000", 1))
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-b").
			WillReturnRows(accountRows("acc-b", "100.0000", 1))

		mock.ExpectExec("INSERT INTO transaction_groups").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-b", "debit", "10.00", "90.0000", "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-a", "credit", "10.00", "60.0000", "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("60.0000", sqlmock.AnyArg(), "acc-a", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("90.0000", sqlmock.AnyArg(), "acc-b", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		_, _, err := service.Transfer("acc-b", "acc-a", decimal.RequireFromString("10.00"), "")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer to same account", func(t *testing.T) {
		_, _, err := service.Transfer("acc-1", "acc-1", decimal.RequireFromString("10.00"), "")
		assert.ErrorIs(t, err, ErrBusinessRule)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient source balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-a").
			WillReturnRows(accountRows("acc-a", "100.0000", 1))
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-b").
			WillReturnRows(accountRows("acc-b", "50.0000", 1))
		mock.ExpectExec("INSERT INTO transaction_groups").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectRollback()

		_, _, err := service.Transfer("acc-a", "acc-b", decimal.RequireFromString("200.00"), "")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_CreateBalancedTransaction(t *testing.T) {
	service, mock, closeDB := newLedgerForTest(t)
	defer closeDB()

	t.Run("imbalanced entries rejected before any lock", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, _, err := service.CreateBalancedTransaction(models.KindTransfer, []EntryInput{
			{AccountID: "acc-a", Type: models.EntryDebit, Amount: decimal.RequireFromString("10.00")},
			{AccountID: "acc-b", Type: models.EntryCredit, Amount: decimal.RequireFromString("10.02")},
		}, "")
		assert.ErrorIs(t, err, ErrImbalancedEntries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sub-cent rounding slack tolerated", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-a").
			WillReturnRows(accountRows("acc-a", "100.0000", 1))
		mock.ExpectQuery(accountForUpdateQuery).
			WithArgs("acc-b").
			WillReturnRows(accountRows("acc-b", "100.0000", 1))
		mock.ExpectExec("INSERT INTO transaction_groups").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		_, entries, err := service.CreateBalancedTransaction(models.KindTransfer, []EntryInput{
			{AccountID: "acc-a", Type: models.EntryDebit, Amount: decimal.RequireFromString("10.00")},
			{AccountID: "acc-b", Type: models.EntryCredit, Amount: decimal.RequireFromString("10.01")},
		}, "")
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fewer than two entries", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, _, err := service.CreateBalancedTransaction(models.KindDeposit, []EntryInput{
			{AccountID: "acc-a", Type: models.EntryCredit, Amount: decimal.RequireFromString("10.00")},
		}, "")
		assert.ErrorIs(t, err, ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid entry type", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, _, err := service.CreateBalancedTransaction(models.KindDeposit, []EntryInput{
			{AccountID: "acc-a", Type: "sideways", Amount: decimal.RequireFromString("10.00")},
			{AccountID: "acc-b", Type: models.EntryCredit, Amount: decimal.RequireFromString("10.00")},
		}, "")
		assert.ErrorIs(t, err, ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSortedAccountIDs(t *testing.T) {
	entries := []EntryInput{
		{AccountID: "charlie", Type: models.EntryDebit},
		{AccountID: "alpha", Type: models.EntryCredit},
		{AccountID: "charlie", Type: models.EntryCredit},
		{AccountID: "bravo", Type: models.EntryDebit},
		{AccountID: "zulu", Type: models.EntryDebit, Virtual: true},
	}

	ids := sortedAccountIDs(entries)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, ids)
}

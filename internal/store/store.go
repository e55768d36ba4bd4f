package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thezfz/corebank-sub000/internal/models"
)

// Store is the persistence boundary of the ledger core. Rows are mapped to
// model structs here and nowhere else. Methods taking *sql.Tx participate in
// the caller's unit of work; row locks taken with FOR UPDATE are held until
// that unit of work commits or rolls back.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// BeginUnitOfWork opens the single atomic transaction every engine operation
// runs inside.
func (s *Store) BeginUnitOfWork() (*sql.Tx, error) {
	return s.db.Begin()
}

func (s *Store) GetAccount(id string) (*models.Account, error) {
	return scanAccount(s.db.QueryRow(`
		SELECT id, number, owner_id, type, balance, version, created_at, updated_at
		FROM accounts WHERE id = $1`, id))
}

// GetAccountForUpdate acquires the account row exclusively for the duration
// of the enclosing unit of work.
func (s *Store) GetAccountForUpdate(tx *sql.Tx, id string) (*models.Account, error) {
	return scanAccount(tx.QueryRow(`
		SELECT id, number, owner_id, type, balance, version, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Number, &a.OwnerID, &a.Type, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetBalance persists a new balance under the row lock. The version guard is
// a tripwire: with FOR UPDATE serializing writers it can only fire on a
// programming error, which surfaces as zero rows affected.
func (s *Store) SetBalance(tx *sql.Tx, id string, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), id, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update lost for account %s", id)
	}
	return nil
}

func (s *Store) CreateTransactionGroup(tx *sql.Tx, g *models.TransactionGroup) error {
	_, err := tx.Exec(`
		INSERT INTO transaction_groups (id, kind, description, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Kind, g.Description, g.TotalAmount, g.Status, g.CreatedAt, g.UpdatedAt)
	return err
}

func (s *Store) CreateTransactionEntry(tx *sql.Tx, e *models.TransactionEntry) error {
	_, err := tx.Exec(`
		INSERT INTO transaction_entries (id, group_id, account_id, entry_type, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.GroupID, e.AccountID, e.EntryType, e.Amount, e.BalanceAfter, e.Description, e.CreatedAt)
	return err
}

// ListEntriesByAccount returns the newest entries first.
func (s *Store) ListEntriesByAccount(accountID string, limit int) ([]models.TransactionEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, account_id, entry_type, amount, balance_after, description, created_at
		FROM transaction_entries WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TransactionEntry
	for rows.Next() {
		var e models.TransactionEntry
		if err := rows.Scan(&e.ID, &e.GroupID, &e.AccountID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetProduct(id string) (*models.Product, error) {
	var p models.Product
	err := s.db.QueryRow(`
		SELECT id, name, type, status, min_investment_amount, max_investment_amount, investment_period_days
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Type, &p.Status, &p.MinInvestmentAmount, &p.MaxInvestmentAmount, &p.InvestmentPeriodDays)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanHolding(row rowScanner) (*models.InvestmentHolding, error) {
	var h models.InvestmentHolding
	var maturity sql.NullTime
	err := row.Scan(&h.ID, &h.UserID, &h.AccountID, &h.ProductID, &h.Shares, &h.AverageCost,
		&h.TotalInvested, &h.RealizedGainLoss, &h.PurchaseDate, &maturity, &h.Status, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if maturity.Valid {
		h.MaturityDate = &maturity.Time
	}
	return &h, nil
}

const holdingColumns = `id, user_id, account_id, product_id, shares, average_cost,
		total_invested, realized_gain_loss, purchase_date, maturity_date, status, created_at, updated_at`

func (s *Store) GetHolding(id string) (*models.InvestmentHolding, error) {
	return scanHolding(s.db.QueryRow(`
		SELECT `+holdingColumns+` FROM investment_holdings WHERE id = $1`, id))
}

func (s *Store) GetHoldingForUpdate(tx *sql.Tx, id string) (*models.InvestmentHolding, error) {
	return scanHolding(tx.QueryRow(`
		SELECT `+holdingColumns+` FROM investment_holdings WHERE id = $1 FOR UPDATE`, id))
}

// GetActiveHoldingForUpdate locks the user's active holding in a product.
// Returns sql.ErrNoRows when the user holds nothing active in the product.
func (s *Store) GetActiveHoldingForUpdate(tx *sql.Tx, userID, productID string) (*models.InvestmentHolding, error) {
	return scanHolding(tx.QueryRow(`
		SELECT `+holdingColumns+` FROM investment_holdings
		WHERE user_id = $1 AND product_id = $2 AND status = 'active' FOR UPDATE`, userID, productID))
}

func (s *Store) InsertHolding(tx *sql.Tx, h *models.InvestmentHolding) error {
	var maturity sql.NullTime
	if h.MaturityDate != nil {
		maturity = sql.NullTime{Time: *h.MaturityDate, Valid: true}
	}
	_, err := tx.Exec(`
		INSERT INTO investment_holdings (id, user_id, account_id, product_id, shares, average_cost,
			total_invested, realized_gain_loss, purchase_date, maturity_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		h.ID, h.UserID, h.AccountID, h.ProductID, h.Shares, h.AverageCost,
		h.TotalInvested, h.RealizedGainLoss, h.PurchaseDate, maturity, h.Status, h.CreatedAt, h.UpdatedAt)
	return err
}

// UpdateHoldingPosition rewrites the position fields of a holding that stays
// active (purchase merge or partial redemption).
func (s *Store) UpdateHoldingPosition(tx *sql.Tx, id string, shares, averageCost, totalInvested decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE investment_holdings
		SET shares = $1, average_cost = $2, total_invested = $3, updated_at = $4
		WHERE id = $5 AND status = 'active'`,
		shares, averageCost, totalInvested, time.Now(), id)
	if err != nil {
		return err
	}
	return requireOneRow(result, "holding", id)
}

// CloseHolding marks a fully redeemed holding terminal and records the
// realized gain or loss. A closed holding is never reused.
func (s *Store) CloseHolding(tx *sql.Tx, id string, realizedGainLoss decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE investment_holdings
		SET shares = 0, status = 'redeemed', realized_gain_loss = $1, updated_at = $2
		WHERE id = $3 AND status = 'active'`,
		realizedGainLoss, time.Now(), id)
	if err != nil {
		return err
	}
	return requireOneRow(result, "holding", id)
}

func (s *Store) InsertInvestmentTransaction(tx *sql.Tx, it *models.InvestmentTransaction) error {
	_, err := tx.Exec(`
		INSERT INTO investment_transactions (id, user_id, account_id, product_id, holding_id, kind,
			shares, unit_price, gross_amount, fee, net_amount, status, settlement_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		it.ID, it.UserID, it.AccountID, it.ProductID, it.HoldingID, it.Kind,
		it.Shares, it.UnitPrice, it.GrossAmount, it.Fee, it.NetAmount, it.Status, it.SettlementDate, it.CreatedAt)
	return err
}

func (s *Store) ListHoldingsByUser(userID string) ([]models.InvestmentHolding, error) {
	rows, err := s.db.Query(`
		SELECT `+holdingColumns+` FROM investment_holdings
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []models.InvestmentHolding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

// GetLatestNAV returns the most recent priced record for a product, or
// sql.ErrNoRows when the product has never been priced.
func (s *Store) GetLatestNAV(productID string) (*models.NAVRecord, error) {
	var n models.NAVRecord
	err := s.db.QueryRow(`
		SELECT product_id, date, unit_price FROM nav_history
		WHERE product_id = $1 ORDER BY date DESC LIMIT 1`, productID).
		Scan(&n.ProductID, &n.Date, &n.UnitPrice)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func requireOneRow(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s not updated", kind, id)
	}
	return nil
}

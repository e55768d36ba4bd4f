package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/thezfz/corebank-sub000/internal/config"
	"github.com/thezfz/corebank-sub000/internal/models"
	"github.com/thezfz/corebank-sub000/internal/store"
)

const shareScale = 8

// Fee rate tables keyed by product type. Unknown types fall back to the
// configured default rate.
var purchaseFeeRates = map[models.ProductType]decimal.Decimal{
	models.ProductMoneyMarket: decimal.Zero,
	models.ProductFixedTerm:   decimal.NewFromFloat(0.0050),
	models.ProductMutualFund:  decimal.NewFromFloat(0.0150),
	models.ProductInsurance:   decimal.NewFromFloat(0.0200),
}

var redemptionFeeRates = map[models.ProductType]decimal.Decimal{
	models.ProductMoneyMarket: decimal.Zero,
	models.ProductFixedTerm:   decimal.NewFromFloat(0.0025),
	models.ProductMutualFund:  decimal.NewFromFloat(0.0075),
	models.ProductInsurance:   decimal.NewFromFloat(0.0100),
}

// InvestmentService converts cash into product shares and back, keeping
// weighted-average cost holdings and emitting ledger-balanced transaction
// records. The unit price is resolved through the pricing oracle before the
// unit of work opens, so no lock is ever held across a price lookup.
type InvestmentService struct {
	store                *store.Store
	pricing              *PricingService
	ledger               *LedgerService
	defaultPurchaseFee   decimal.Decimal
	defaultRedemptionFee decimal.Decimal
	now                  func() time.Time
}

func NewInvestmentService(st *store.Store, pricing *PricingService, ledger *LedgerService, cfg *config.EngineConfig) *InvestmentService {
	return &InvestmentService{
		store:                st,
		pricing:              pricing,
		ledger:               ledger,
		defaultPurchaseFee:   decimal.New(int64(cfg.DefaultPurchaseFeeBps), -4),
		defaultRedemptionFee: decimal.New(int64(cfg.DefaultRedemptionFeeBps), -4),
		now:                  time.Now,
	}
}

func (s *InvestmentService) purchaseFeeRate(productType models.ProductType) decimal.Decimal {
	if rate, ok := purchaseFeeRates[productType]; ok {
		return rate
	}
	return s.defaultPurchaseFee
}

func (s *InvestmentService) redemptionFeeRate(productType models.ProductType) decimal.Decimal {
	if rate, ok := redemptionFeeRates[productType]; ok {
		return rate
	}
	return s.defaultRedemptionFee
}

// Purchase buys into a product with cash from the user's account. The full
// amount is debited; the fee is retained by the house and simply never
// reappears as shares. Repeat purchases merge into the active holding with
// weighted-average cost.
func (s *InvestmentService) Purchase(ctx context.Context, userID, accountID, productID string, amount decimal.Decimal) (*models.InvestmentTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	product, err := s.store.GetProduct(productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if product.Status != models.ProductActive {
		return nil, fmt.Errorf("%w: product %s is not open for purchase", ErrBusinessRule, productID)
	}
	if amount.LessThan(product.MinInvestmentAmount) {
		return nil, fmt.Errorf("%w: amount below minimum %s", ErrValidation, product.MinInvestmentAmount)
	}
	if product.MaxInvestmentAmount.Valid && amount.GreaterThan(product.MaxInvestmentAmount.Decimal) {
		return nil, fmt.Errorf("%w: amount above maximum %s", ErrValidation, product.MaxInvestmentAmount.Decimal)
	}

	// Resolved before any lock is taken.
	unitPrice, err := s.pricing.GetCurrentUnitPrice(ctx, productID)
	if err != nil {
		return nil, err
	}

	fee := amount.Mul(s.purchaseFeeRate(product.Type)).Round(moneyScale)
	netAmount := amount.Sub(fee)
	shares := netAmount.DivRound(unitPrice, shareScale)

	tx, err := s.store.BeginUnitOfWork()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	account, err := s.store.GetAccountForUpdate(tx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if account.OwnerID != userID {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	if account.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: account %s", ErrInsufficientFunds, accountID)
	}

	description := fmt.Sprintf("purchase %s", product.Name)
	if _, _, err := s.ledger.CreateBalancedTransactionTx(tx, models.KindInvestmentPurchase, []EntryInput{
		{AccountID: accountID, Type: models.EntryDebit, Amount: amount, Description: description},
		{AccountID: accountID, Type: models.EntryCredit, Amount: amount, Description: "offsetting investment leg", Virtual: true},
	}, description); err != nil {
		return nil, err
	}

	now := s.now()
	holding, err := s.store.GetActiveHoldingForUpdate(tx, userID, productID)
	switch {
	case err == nil:
		newShares := holding.Shares.Add(shares)
		newTotalInvested := holding.TotalInvested.Add(netAmount)
		newAverageCost := newTotalInvested.DivRound(newShares, shareScale)
		if err := s.store.UpdateHoldingPosition(tx, holding.ID, newShares, newAverageCost, newTotalInvested); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		holding = &models.InvestmentHolding{
			ID:            uuid.New().String(),
			UserID:        userID,
			AccountID:     accountID,
			ProductID:     productID,
			Shares:        shares,
			AverageCost:   unitPrice,
			TotalInvested: netAmount,
			PurchaseDate:  now,
			Status:        models.HoldingActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		// Maturity is fixed at first purchase and never moved by merges.
		if product.Type == models.ProductFixedTerm && product.InvestmentPeriodDays > 0 {
			maturity := now.AddDate(0, 0, product.InvestmentPeriodDays)
			holding.MaturityDate = &maturity
		}
		if err := s.store.InsertHolding(tx, holding); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	investmentTx := &models.InvestmentTransaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		AccountID:      accountID,
		ProductID:      productID,
		HoldingID:      holding.ID,
		Kind:           models.InvestmentTxPurchase,
		Shares:         shares,
		UnitPrice:      unitPrice,
		GrossAmount:    amount,
		Fee:            fee,
		NetAmount:      netAmount,
		Status:         models.InvestmentTxConfirmed,
		SettlementDate: now,
		CreatedAt:      now,
	}
	if err := s.store.InsertInvestmentTransaction(tx, investmentTx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return investmentTx, nil
}

// Redeem sells shares back to cash at the current unit price. A nil shares
// argument redeems the holding's full balance. Full redemption closes the
// holding for good and books the realized gain against its cost basis; a
// partial redemption only decrements shares, leaving average cost and total
// invested untouched.
func (s *InvestmentService) Redeem(ctx context.Context, userID, holdingID string, requestedShares *decimal.Decimal) (*models.InvestmentTransaction, error) {
	peek, err := s.store.GetHolding(holdingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if peek.UserID != userID {
		return nil, fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
	}
	if peek.Status != models.HoldingActive {
		return nil, fmt.Errorf("%w: holding %s is %s", ErrBusinessRule, holdingID, peek.Status)
	}

	product, err := s.store.GetProduct(peek.ProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, peek.ProductID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	// Resolved before any lock is taken.
	unitPrice, err := s.pricing.GetCurrentUnitPrice(ctx, peek.ProductID)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginUnitOfWork()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	// Account row first, holding second; Purchase locks in the same order.
	if _, err := s.store.GetAccountForUpdate(tx, peek.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, peek.AccountID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	holding, err := s.store.GetHoldingForUpdate(tx, holdingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if holding.Status != models.HoldingActive {
		return nil, fmt.Errorf("%w: holding %s is %s", ErrBusinessRule, holdingID, holding.Status)
	}

	shares := holding.Shares
	if requestedShares != nil {
		shares = *requestedShares
	}
	if !shares.IsPositive() {
		return nil, fmt.Errorf("%w: shares must be positive", ErrValidation)
	}
	if shares.GreaterThan(holding.Shares) {
		return nil, fmt.Errorf("%w: requested %s shares, holding has %s", ErrValidation, shares, holding.Shares)
	}

	fullRedemption := shares.Equal(holding.Shares)
	grossAmount := shares.Mul(unitPrice).Round(moneyScale)
	// A dust position can price below one cent. Partial redemptions may not
	// strand such value; a full redemption still closes the holding, moving
	// no cash.
	if grossAmount.IsZero() && !fullRedemption {
		return nil, fmt.Errorf("%w: redemption value rounds to zero, redeem the full holding instead", ErrValidation)
	}
	fee := grossAmount.Mul(s.redemptionFeeRate(product.Type)).Round(moneyScale)
	netAmount := grossAmount.Sub(fee)

	description := fmt.Sprintf("redeem %s", product.Name)
	if netAmount.IsPositive() {
		if _, _, err := s.ledger.CreateBalancedTransactionTx(tx, models.KindInvestmentRedemption, []EntryInput{
			{AccountID: holding.AccountID, Type: models.EntryCredit, Amount: netAmount, Description: description},
			{AccountID: holding.AccountID, Type: models.EntryDebit, Amount: netAmount, Description: "offsetting investment leg", Virtual: true},
		}, description); err != nil {
			return nil, err
		}
	}

	if fullRedemption {
		realized := netAmount.Sub(holding.TotalInvested).Round(moneyScale)
		if err := s.store.CloseHolding(tx, holding.ID, realized); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	} else {
		remaining := holding.Shares.Sub(shares)
		if err := s.store.UpdateHoldingPosition(tx, holding.ID, remaining, holding.AverageCost, holding.TotalInvested); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	now := s.now()
	investmentTx := &models.InvestmentTransaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		AccountID:      holding.AccountID,
		ProductID:      holding.ProductID,
		HoldingID:      holding.ID,
		Kind:           models.InvestmentTxRedemption,
		Shares:         shares,
		UnitPrice:      unitPrice,
		GrossAmount:    grossAmount,
		Fee:            fee,
		NetAmount:      netAmount,
		Status:         models.InvestmentTxConfirmed,
		SettlementDate: now,
		CreatedAt:      now,
	}
	if err := s.store.InsertInvestmentTransaction(tx, investmentTx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return investmentTx, nil
}

// Valuation recomputes the display-only position metrics from the live unit
// price. Nothing here is persisted, so repeated reads without an intervening
// trade are identical.
func Valuation(holding *models.InvestmentHolding, unitPrice decimal.Decimal) models.HoldingValuation {
	currentValue := holding.Shares.Mul(unitPrice).Round(moneyScale)
	unrealized := currentValue.Sub(holding.TotalInvested).Round(moneyScale)

	returnRate := decimal.Zero
	if !holding.TotalInvested.IsZero() {
		returnRate = unrealized.Div(holding.TotalInvested).Mul(decimal.NewFromInt(100)).Round(moneyScale)
	}

	return models.HoldingValuation{
		CurrentValue:       currentValue,
		UnrealizedGainLoss: unrealized,
		ReturnRate:         returnRate,
	}
}

// HoldingView pairs a holding with its recomputed valuation for read APIs.
type HoldingView struct {
	models.InvestmentHolding
	Valuation models.HoldingValuation `json:"valuation"`
}

// GetHolding returns one of the user's holdings with a fresh valuation.
func (s *InvestmentService) GetHolding(ctx context.Context, userID, holdingID string) (*HoldingView, error) {
	holding, err := s.store.GetHolding(holdingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if holding.UserID != userID {
		return nil, fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
	}

	unitPrice, err := s.pricing.GetCurrentUnitPrice(ctx, holding.ProductID)
	if err != nil {
		return nil, err
	}
	return &HoldingView{InvestmentHolding: *holding, Valuation: Valuation(holding, unitPrice)}, nil
}

// ListHoldings returns all of the user's holdings with fresh valuations.
func (s *InvestmentService) ListHoldings(ctx context.Context, userID string) ([]HoldingView, error) {
	holdings, err := s.store.ListHoldingsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	views := make([]HoldingView, 0, len(holdings))
	for i := range holdings {
		unitPrice, err := s.pricing.GetCurrentUnitPrice(ctx, holdings[i].ProductID)
		if err != nil {
			return nil, err
		}
		views = append(views, HoldingView{
			InvestmentHolding: holdings[i],
			Valuation:         Valuation(&holdings[i], unitPrice),
		})
	}
	return views, nil
}

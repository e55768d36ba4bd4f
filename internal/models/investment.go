package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductMoneyMarket ProductType = "money_market"
	ProductFixedTerm   ProductType = "fixed_term"
	ProductMutualFund  ProductType = "mutual_fund"
	ProductInsurance   ProductType = "insurance"
)

type ProductStatus string

const (
	ProductActive    ProductStatus = "active"
	ProductSuspended ProductStatus = "suspended"
	ProductClosed    ProductStatus = "closed"
)

// Product is a catalog row for an investment product. Read-only to the core.
type Product struct {
	ID                   string              `json:"id" db:"id"`
	Name                 string              `json:"name" db:"name"`
	Type                 ProductType         `json:"type" db:"type"`
	Status               ProductStatus       `json:"status" db:"status"`
	MinInvestmentAmount  decimal.Decimal     `json:"min_investment_amount" db:"min_investment_amount"`
	MaxInvestmentAmount  decimal.NullDecimal `json:"max_investment_amount" db:"max_investment_amount"`
	InvestmentPeriodDays int                 `json:"investment_period_days" db:"investment_period_days"`
}

type HoldingStatus string

const (
	HoldingActive   HoldingStatus = "active"
	HoldingMatured  HoldingStatus = "matured"
	HoldingRedeemed HoldingStatus = "redeemed"
)

// InvestmentHolding is one user's position in one product. Shares are
// NUMERIC(28,8); money fields are NUMERIC(20,4). A user has at most one
// active holding per product; repeat purchases merge into it.
type InvestmentHolding struct {
	ID               string          `json:"id" db:"id"`
	UserID           string          `json:"user_id" db:"user_id"`
	AccountID        string          `json:"account_id" db:"account_id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	Shares           decimal.Decimal `json:"shares" db:"shares"`
	AverageCost      decimal.Decimal `json:"average_cost" db:"average_cost"`
	TotalInvested    decimal.Decimal `json:"total_invested" db:"total_invested"`
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss" db:"realized_gain_loss"`
	PurchaseDate     time.Time       `json:"purchase_date" db:"purchase_date"`
	MaturityDate     *time.Time      `json:"maturity_date,omitempty" db:"maturity_date"`
	Status           HoldingStatus   `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

type InvestmentTxKind string

const (
	InvestmentTxPurchase   InvestmentTxKind = "purchase"
	InvestmentTxRedemption InvestmentTxKind = "redemption"
	InvestmentTxDividend   InvestmentTxKind = "dividend"
	InvestmentTxInterest   InvestmentTxKind = "interest"
)

type InvestmentTxStatus string

const (
	InvestmentTxConfirmed InvestmentTxStatus = "confirmed"
	InvestmentTxFailed    InvestmentTxStatus = "failed"
)

// InvestmentTransaction is the immutable audit record for one purchase,
// redemption, dividend or interest event. NetAmount is the amount actually
// debited/credited on the cash account.
type InvestmentTransaction struct {
	ID             string             `json:"id" db:"id"`
	UserID         string             `json:"user_id" db:"user_id"`
	AccountID      string             `json:"account_id" db:"account_id"`
	ProductID      string             `json:"product_id" db:"product_id"`
	HoldingID      string             `json:"holding_id" db:"holding_id"`
	Kind           InvestmentTxKind   `json:"kind" db:"kind"`
	Shares         decimal.Decimal    `json:"shares" db:"shares"`
	UnitPrice      decimal.Decimal    `json:"unit_price" db:"unit_price"`
	GrossAmount    decimal.Decimal    `json:"gross_amount" db:"gross_amount"`
	Fee            decimal.Decimal    `json:"fee" db:"fee"`
	NetAmount      decimal.Decimal    `json:"net_amount" db:"net_amount"`
	Status         InvestmentTxStatus `json:"status" db:"status"`
	SettlementDate time.Time          `json:"settlement_date" db:"settlement_date"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// NAVRecord is one dated unit price for a product. The newest row by date is
// the authoritative current price.
type NAVRecord struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Date      time.Time       `json:"date" db:"date"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// HoldingValuation is recomputed on every read from the live unit price;
// never persisted.
type HoldingValuation struct {
	CurrentValue       decimal.Decimal `json:"current_value"`
	UnrealizedGainLoss decimal.Decimal `json:"unrealized_gain_loss"`
	ReturnRate         decimal.Decimal `json:"return_rate"`
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/thezfz/corebank-sub000/internal/config"
	"github.com/thezfz/corebank-sub000/internal/store"
)

// PricingService is the read-only NAV oracle. Prices are always resolved
// before a unit of work acquires any row lock, so a slow lookup never holds
// locks. The redis layer is a read-through cache; a nil client disables it.
type PricingService struct {
	store            *store.Store
	redis            *redis.Client
	defaultUnitPrice decimal.Decimal
	cacheTTL         time.Duration
}

func NewPricingService(st *store.Store, rdb *redis.Client, cfg *config.EngineConfig) *PricingService {
	defaultPrice, err := decimal.NewFromString(cfg.DefaultUnitPrice)
	if err != nil || !defaultPrice.IsPositive() {
		log.Printf("Invalid default unit price %q, falling back to 1.0000", cfg.DefaultUnitPrice)
		defaultPrice = decimal.NewFromInt(1)
	}
	return &PricingService{
		store:            st,
		redis:            rdb,
		defaultUnitPrice: defaultPrice,
		cacheTTL:         cfg.NAVCacheTTL,
	}
}

// GetCurrentUnitPrice returns the most recent NAV for a product, or the
// configured default when the product has never been priced.
func (s *PricingService) GetCurrentUnitPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	cacheKey := "nav:latest:" + productID

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			if price, perr := decimal.NewFromString(cached); perr == nil && price.IsPositive() {
				return price, nil
			}
		}
	}

	nav, err := s.store.GetLatestNAV(productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaultUnitPrice, nil
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, nav.UnitPrice.String(), s.cacheTTL).Err(); err != nil {
			log.Printf("Failed to cache NAV for product %s: %v", productID, err)
		}
	}

	return nav.UnitPrice, nil
}

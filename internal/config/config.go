package config

import (
	"os"
	"strconv"
	"time"
)

// EngineConfig carries the ledger/investment tunables. Database, redis and
// server settings live in viper; these are plain env knobs read once at
// service construction.
type EngineConfig struct {
	DefaultUnitPrice        string
	NAVCacheTTL             time.Duration
	MovementPageSize        int
	DefaultPurchaseFeeBps   int
	DefaultRedemptionFeeBps int
}

func LoadEngineConfig() *EngineConfig {
	return &EngineConfig{
		DefaultUnitPrice:        getEnv("PRICING_DEFAULT_UNIT_PRICE", "1.0000"),
		NAVCacheTTL:             getEnvAsDuration("PRICING_NAV_CACHE_TTL", 1*time.Minute),
		MovementPageSize:        getEnvAsInt("LEDGER_MOVEMENT_PAGE_SIZE", 50),
		DefaultPurchaseFeeBps:   getEnvAsInt("INVEST_DEFAULT_PURCHASE_FEE_BPS", 100),
		DefaultRedemptionFeeBps: getEnvAsInt("INVEST_DEFAULT_REDEMPTION_FEE_BPS", 50),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

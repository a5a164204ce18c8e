package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kalshiEdgeBot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Kalshi API
	APIKeyID       string
	PrivateKeyPEM  []byte
	PrivateKeyPath string
	BaseURL        string // Empty means the production endpoint
	DryRun         bool

	// Market selection
	SeriesTicker  string
	Underlying    string
	KlineInterval string
	KlineLimit    int

	// Engine loop
	CycleInterval time.Duration
	MaxConcurrent int
	SentimentBias float64

	// Signal parameters
	ShortLookback        int
	MediumLookback       int
	LongLookback         int
	ShortWeight          float64
	MediumWeight         float64
	LongWeight           float64
	VolatileVolThreshold float64
	TrendingMomThreshold float64
	MomentumTilt         float64

	// Edge gating
	MinEdge            float64
	DynamicMinEdge     bool
	MinEdgeTrending    float64
	MinEdgeVolatile    float64
	MinEdgeFloor       float64
	MinEdgeCeiling     float64
	MaxSnapshotAge     time.Duration
	MinMinutesToExpiry float64
	MaxMinutesToExpiry float64
	MinStrikeGapPct    float64
	MinPriceCents      int64
	MaxPriceCents      int64

	// Position sizing
	KellyFraction  float64
	MaxPositionPct float64
	MinContracts   int
	MaxContracts   int

	// Risk limits
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxExposurePct   float64
	MaxOpenPositions int
	MaxDailyLossPct  float64
	LatencySLA       time.Duration

	// Settlement
	ReconcileInterval time.Duration

	// Storage
	DBPath     string
	LedgerPath string

	// HTTP query API
	HTTPAddr string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Kalshi API
	cfg.APIKeyID = getEnv("KALSHI_API_KEY_ID", "")
	if cfg.APIKeyID == "" {
		errs = append(errs, "KALSHI_API_KEY_ID must be set")
	}

	cfg.PrivateKeyPath = getEnv("KALSHI_PRIVATE_KEY_PATH", "")
	if pemInline := getEnv("KALSHI_PRIVATE_KEY_PEM", ""); pemInline != "" {
		cfg.PrivateKeyPEM = []byte(pemInline)
	} else if cfg.PrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			errs = append(errs, fmt.Sprintf("reading KALSHI_PRIVATE_KEY_PATH: %v", err))
		} else {
			cfg.PrivateKeyPEM = pemBytes
		}
	} else {
		errs = append(errs, "KALSHI_PRIVATE_KEY_PEM or KALSHI_PRIVATE_KEY_PATH must be set")
	}

	cfg.BaseURL = getEnv("KALSHI_BASE_URL", "")
	cfg.DryRun = getEnvAsBool("DRY_RUN", true) // Default to dry run for safety

	// Market selection
	cfg.SeriesTicker = getEnv("SERIES_TICKER", "KXBTCD")
	if cfg.SeriesTicker == "" {
		errs = append(errs, "SERIES_TICKER must be set")
	}
	cfg.Underlying = getEnv("UNDERLYING_SYMBOL", "BTCUSDT")
	if cfg.Underlying == "" {
		errs = append(errs, "UNDERLYING_SYMBOL must be set")
	}
	cfg.KlineInterval = getEnv("KLINE_INTERVAL", "1h")
	cfg.KlineLimit = getEnvAsInt("KLINE_LIMIT", 48)
	if cfg.KlineLimit <= 0 {
		errs = append(errs, "KLINE_LIMIT must be positive")
	}

	// Engine loop
	cycleSeconds := getEnvAsInt("CYCLE_INTERVAL_SECONDS", 60)
	if cycleSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CycleInterval = time.Duration(cycleSeconds) * time.Second

	cfg.MaxConcurrent = getEnvAsInt("MAX_CONCURRENT_EVALUATIONS", 4)
	if cfg.MaxConcurrent <= 0 {
		errs = append(errs, "MAX_CONCURRENT_EVALUATIONS must be positive")
	}

	cfg.SentimentBias = getEnvAsFloat("SENTIMENT_BIAS", 0)
	if cfg.SentimentBias < -1 || cfg.SentimentBias > 1 {
		errs = append(errs, "SENTIMENT_BIAS must be between -1 and 1")
	}

	// Signal parameters
	cfg.ShortLookback = getEnvAsInt("MOMENTUM_SHORT_LOOKBACK", 1)
	cfg.MediumLookback = getEnvAsInt("MOMENTUM_MEDIUM_LOOKBACK", 4)
	cfg.LongLookback = getEnvAsInt("MOMENTUM_LONG_LOOKBACK", 24)
	if cfg.ShortLookback <= 0 || cfg.MediumLookback <= cfg.ShortLookback || cfg.LongLookback <= cfg.MediumLookback {
		errs = append(errs, "momentum lookbacks must be positive and strictly increasing")
	}

	cfg.ShortWeight = getEnvAsFloat("MOMENTUM_SHORT_WEIGHT", 0.5)
	cfg.MediumWeight = getEnvAsFloat("MOMENTUM_MEDIUM_WEIGHT", 0.3)
	cfg.LongWeight = getEnvAsFloat("MOMENTUM_LONG_WEIGHT", 0.2)

	cfg.VolatileVolThreshold = getEnvAsFloat("VOLATILE_VOL_THRESHOLD", 0.02)
	cfg.TrendingMomThreshold = getEnvAsFloat("TRENDING_MOM_THRESHOLD", 0.3)

	var err error
	cfg.MomentumTilt, err = getEnvAsFloatRequired("MOMENTUM_TILT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MOMENTUM_TILT: %v", err))
	} else if cfg.MomentumTilt < 0 || cfg.MomentumTilt > 0.25 {
		errs = append(errs, "MOMENTUM_TILT must be between 0 and 0.25")
	}

	// Edge gating
	cfg.MinEdge, err = getEnvAsFloatRequired("MIN_EDGE", 0.12)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_EDGE: %v", err))
	} else if cfg.MinEdge <= 0 || cfg.MinEdge >= 1 {
		errs = append(errs, "MIN_EDGE must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.DynamicMinEdge = getEnvAsBool("DYNAMIC_MIN_EDGE", true)
	cfg.MinEdgeTrending = getEnvAsFloat("MIN_EDGE_TRENDING", 0.07)
	cfg.MinEdgeVolatile = getEnvAsFloat("MIN_EDGE_VOLATILE", 0.15)
	cfg.MinEdgeFloor = getEnvAsFloat("MIN_EDGE_FLOOR", 0.05)
	cfg.MinEdgeCeiling = getEnvAsFloat("MIN_EDGE_CEILING", 0.20)
	if cfg.MinEdgeFloor > cfg.MinEdgeCeiling {
		errs = append(errs, "MIN_EDGE_FLOOR must not exceed MIN_EDGE_CEILING")
	}

	snapshotAgeSeconds := getEnvAsInt("MAX_SNAPSHOT_AGE_SECONDS", 30)
	if snapshotAgeSeconds <= 0 {
		errs = append(errs, "MAX_SNAPSHOT_AGE_SECONDS must be positive")
	}
	cfg.MaxSnapshotAge = time.Duration(snapshotAgeSeconds) * time.Second

	cfg.MinMinutesToExpiry = getEnvAsFloat("MIN_MINUTES_TO_EXPIRY", 30)
	cfg.MaxMinutesToExpiry = getEnvAsFloat("MAX_MINUTES_TO_EXPIRY", 1440)
	if cfg.MinMinutesToExpiry < 0 || cfg.MaxMinutesToExpiry <= cfg.MinMinutesToExpiry {
		errs = append(errs, "expiry window invalid (MIN_MINUTES_TO_EXPIRY must be >= 0 and below MAX_MINUTES_TO_EXPIRY)")
	}

	cfg.MinStrikeGapPct = getEnvAsFloat("MIN_STRIKE_GAP_PCT", 0.001)
	cfg.MinPriceCents = int64(getEnvAsInt("MIN_PRICE_CENTS", 5))
	cfg.MaxPriceCents = int64(getEnvAsInt("MAX_PRICE_CENTS", 95))
	if cfg.MinPriceCents < 1 || cfg.MaxPriceCents > 99 || cfg.MinPriceCents >= cfg.MaxPriceCents {
		errs = append(errs, "price band invalid (MIN_PRICE_CENTS and MAX_PRICE_CENTS must satisfy 1 <= min < max <= 99)")
	}

	// Position sizing
	cfg.KellyFraction, err = getEnvAsFloatRequired("KELLY_FRACTION", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid KELLY_FRACTION: %v", err))
	} else if cfg.KellyFraction <= 0 || cfg.KellyFraction > 1 {
		errs = append(errs, "KELLY_FRACTION must be between 0.0 (exclusive) and 1.0")
	}

	cfg.MaxPositionPct, err = getEnvAsFloatRequired("MAX_POSITION_PCT", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITION_PCT: %v", err))
	} else if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		errs = append(errs, "MAX_POSITION_PCT must be between 0.0 (exclusive) and 1.0")
	}

	cfg.MinContracts = getEnvAsInt("MIN_CONTRACTS", 1)
	cfg.MaxContracts = getEnvAsInt("MAX_CONTRACTS", 1000)
	if cfg.MinContracts <= 0 || cfg.MaxContracts < cfg.MinContracts {
		errs = append(errs, "contract bounds invalid (MIN_CONTRACTS must be positive and not above MAX_CONTRACTS)")
	}

	// Risk limits
	cfg.BreakerThreshold = getEnvAsInt("BREAKER_THRESHOLD", 10)
	if cfg.BreakerThreshold <= 0 {
		errs = append(errs, "BREAKER_THRESHOLD must be positive")
	}
	cooldownMinutes := getEnvAsInt("BREAKER_COOLDOWN_MINUTES", 360)
	if cooldownMinutes <= 0 {
		errs = append(errs, "BREAKER_COOLDOWN_MINUTES must be positive")
	}
	cfg.BreakerCooldown = time.Duration(cooldownMinutes) * time.Minute

	cfg.MaxExposurePct, err = getEnvAsFloatRequired("MAX_EXPOSURE_PCT", 0.10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_EXPOSURE_PCT: %v", err))
	} else if cfg.MaxExposurePct <= 0 || cfg.MaxExposurePct > 1 {
		errs = append(errs, "MAX_EXPOSURE_PCT must be between 0.0 (exclusive) and 1.0")
	}

	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 5)
	if cfg.MaxOpenPositions < 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS cannot be negative")
	}

	cfg.MaxDailyLossPct = getEnvAsFloat("MAX_DAILY_LOSS_PCT", 0.05)
	if cfg.MaxDailyLossPct < 0 || cfg.MaxDailyLossPct > 1 {
		errs = append(errs, "MAX_DAILY_LOSS_PCT must be between 0.0 and 1.0")
	}

	latencyMillis := getEnvAsInt("LATENCY_SLA_MS", 5000)
	if latencyMillis <= 0 {
		errs = append(errs, "LATENCY_SLA_MS must be positive")
	}
	cfg.LatencySLA = time.Duration(latencyMillis) * time.Millisecond

	// Settlement
	reconcileSeconds := getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 300)
	if reconcileSeconds <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSeconds) * time.Second

	// Storage
	cfg.DBPath = getEnv("DB_PATH", "./data/edgebot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.LedgerPath = getEnv("LEDGER_PATH", "./data/decisions.jsonl")
	if cfg.LedgerPath == "" {
		errs = append(errs, "LEDGER_PATH must be set")
	}

	// HTTP query API
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

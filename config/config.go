package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"signal-enginev1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data
	MarketBaseURL string
	MarketAPIKey  string
	CandleWindow  int
	CacheTTL      time.Duration

	// Instrument
	Pair      string
	Timeframe int // minutes

	// Scheduler
	TickInterval        time.Duration
	ConfidenceThreshold int
	MaxRetries          int
	RetryBase           time.Duration

	// Analysis
	SRLookback   int
	SRMinTouches int

	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string
	GatewayAddr   string

	// Notifications
	TelegramToken  string
	TelegramChatID string

	// Trading settings
	Balance           float64
	EntryPercentage   float64
	StopLoss          float64
	Profile           string
	MartingaleEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		MarketBaseURL: getEnv("MARKET_BASE_URL", "https://min-api.cryptocompare.com/data"),
		MarketAPIKey:  getEnv("MARKET_API_KEY", ""),
		CandleWindow:  getInt("CANDLE_WINDOW", 100),
		CacheTTL:      getMillis("CACHE_TTL_MS", 5000),

		Pair:      getEnv("PAIR", "BTC/USD"),
		Timeframe: getInt("TIMEFRAME_MIN", 1),

		TickInterval:        getMillis("TICK_INTERVAL_MS", 5000),
		ConfidenceThreshold: getInt("CONFIDENCE_THRESHOLD", 65),
		MaxRetries:          getInt("MAX_RETRIES", 3),
		RetryBase:           getMillis("RETRY_BASE_MS", 1000),

		SRLookback:   getInt("SR_LOOKBACK", 20),
		SRMinTouches: getInt("SR_MIN_TOUCHES", 3),

		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),

		Balance:           getFloat("TRADE_BALANCE", 0),
		EntryPercentage:   getFloat("TRADE_ENTRY_PCT", 1),
		StopLoss:          getFloat("TRADE_STOP_LOSS", 0),
		Profile:           getEnv("TRADE_PROFILE", string(model.ProfileModerate)),
		MartingaleEnabled: getBool("MARTINGALE_ENABLED", false),
	}
}

// Settings builds the trading settings consumed by the scheduler.
// Returns nil when no balance is configured; automation stays locked
// until the operator provides one.
func (c *Config) Settings() *model.TradingSettings {
	if c.Balance <= 0 {
		return nil
	}
	return &model.TradingSettings{
		Balance:           c.Balance,
		EntryPercentage:   c.EntryPercentage,
		StopLoss:          c.StopLoss,
		Profile:           model.Profile(c.Profile),
		MartingaleEnabled: c.MartingaleEnabled,
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getMillis(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Millisecond
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the signal engine.
type Config struct {
	Port           string `validate:"required,numeric"`
	GRPCHealthAddr string

	// MEXC contract API
	MEXCAPIKey    string `validate:"required_if=DryRun false"`
	MEXCAPISecret string `validate:"required_if=DryRun false"`
	MEXCBaseURL   string `validate:"required,url"`

	// Telegram notifier and webhook
	TelegramBotToken string
	TelegramChatID   string

	// Sizing and bracket
	RiskFraction  float64 `validate:"gt=0,lte=1"`
	TakeProfitPct float64 `validate:"gt=0,lt=1"`
	StopLossPct   float64 `validate:"gt=0,lt=1"`
	Leverage      int     `validate:"gte=1,lte=200"`
	OpenType      int     `validate:"oneof=1 2"`
	EntryOffset   float64 `validate:"gte=0,lt=1"`
	QuoteCurrency string  `validate:"required"`

	// Order supervision
	CancelTimeoutMinutes int `validate:"gte=1"`
	OrderPollSeconds     int `validate:"gte=1"`
	AssumeFilledOnSubmit bool
	AllowOverlap         bool

	// Scheduler
	PollIntervalSeconds int      `validate:"gte=1"`
	Symbols             []string `validate:"min=1,dive,required"`
	Timeframes          []string `validate:"min=1,dive,oneof=Min1 Min5 Min15 Min30 Min60 Hour4 Hour8 Day1 Week1 Month1"`
	CandleLimit         int      `validate:"gtfield=RSIPeriod,lte=2000"`
	RSIPeriod           int      `validate:"gte=2"`
	OversoldThreshold   float64  `validate:"gt=0,lt=100"`
	OverboughtThreshold float64  `validate:"gtfield=OversoldThreshold,lte=100"`
	EnableShorts        bool
	AutoStart           bool

	// Execution
	DryRun               bool
	DryRunInitialBalance float64 `validate:"gte=0"`
	DryRunFeeRate        float64 `validate:"gte=0,lt=1"`
	// Synthetic candles instead of the exchange; only with DryRun.
	UseMockFeed bool `validate:"excluded_unless=DryRun true"`
	// Caches only the dry-run simulator's fill-check prices.
	MarketCacheSeconds int `validate:"gte=0,ltfield=PollIntervalSeconds"`

	// Per-symbol precision overrides
	InstrumentsFile string
	Instruments     map[string]Instrument `validate:"dive"`

	// Audit journal; empty disables it
	JournalDBPath string

	// Auth
	JWTSecret string `validate:"required"`

	// Logging
	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

// Load reads environment variables (optionally via .env) into Config and
// validates the result.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		GRPCHealthAddr:       getEnv("GRPC_HEALTH_ADDR", ""),
		MEXCAPIKey:           os.Getenv("MEXC_API_KEY"),
		MEXCAPISecret:        os.Getenv("MEXC_API_SECRET"),
		MEXCBaseURL:          getEnv("MEXC_BASE_URL", "https://contract.mexc.com"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:       os.Getenv("TELEGRAM_CHAT_ID"),
		RiskFraction:         getEnvFloat("PERCENTUAL_CAPITAL", 0.05),
		TakeProfitPct:        getEnvFloat("TAKE_PROFIT", 0.02),
		StopLossPct:          getEnvFloat("STOP_LOSS", 0.10),
		Leverage:             getEnvInt("LEVERAGE", 5),
		OpenType:             getEnvInt("OPEN_TYPE", 2),
		EntryOffset:          getEnvFloat("ENTRY_OFFSET", 0.001),
		QuoteCurrency:        strings.ToUpper(getEnv("QUOTE_CURRENCY", "USDT")),
		CancelTimeoutMinutes: getEnvInt("TEMPO_CANCELAMENTO_MINUTOS", 5),
		OrderPollSeconds:     getEnvInt("ORDER_POLL_SECONDS", 10),
		AssumeFilledOnSubmit: getEnvBool("ASSUME_FILLED_ON_SUBMIT", false),
		AllowOverlap:         getEnvBool("ALLOW_OVERLAP", false),
		PollIntervalSeconds:  getEnvInt("POLL_INTERVAL_SECONDS", 300),
		Symbols:              splitAndTrim(getEnv("SYMBOLS", "APT_USDT")),
		Timeframes:           splitAndTrim(getEnv("TIMEFRAMES", "Min15")),
		CandleLimit:          getEnvInt("CANDLE_LIMIT", 100),
		RSIPeriod:            getEnvInt("RSI_PERIOD", 14),
		OversoldThreshold:    getEnvFloat("OVERSOLD_THRESHOLD", 30),
		OverboughtThreshold:  getEnvFloat("OVERBOUGHT_THRESHOLD", 70),
		EnableShorts:         getEnvBool("ENABLE_SHORTS", false),
		AutoStart:            getEnvBool("AUTO_START", true),
		DryRun:               getEnvBool("DRY_RUN", false),
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 1000),
		DryRunFeeRate:        getEnvFloat("DRY_RUN_FEE_RATE", 0.0002),
		UseMockFeed:          getEnvBool("MOCK_FEED", false),
		MarketCacheSeconds:   getEnvInt("MARKET_CACHE_SECONDS", 0),
		InstrumentsFile:      getEnv("INSTRUMENTS_FILE", ""),
		JournalDBPath:        getEnv("JOURNAL_DB_PATH", ""),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	if cfg.InstrumentsFile != "" {
		inst, err := LoadInstruments(cfg.InstrumentsFile)
		if err != nil {
			return nil, err
		}
		cfg.Instruments = inst
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks ranges and cross-field rules.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return fmt.Errorf("invalid config: %w", err)
}

func (c *Config) CancelTimeout() time.Duration {
	return time.Duration(c.CancelTimeoutMinutes) * time.Minute
}

func (c *Config) OrderPollInterval() time.Duration {
	return time.Duration(c.OrderPollSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) MarketCacheTTL() time.Duration {
	return time.Duration(c.MarketCacheSeconds) * time.Second
}

// TelegramEnabled reports whether both bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

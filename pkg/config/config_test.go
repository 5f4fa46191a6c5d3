package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{"DRY_RUN": "true"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://contract.mexc.com", cfg.MEXCBaseURL)
	assert.Equal(t, 0.05, cfg.RiskFraction)
	assert.Equal(t, 0.02, cfg.TakeProfitPct)
	assert.Equal(t, 0.10, cfg.StopLossPct)
	assert.Equal(t, 5, cfg.Leverage)
	assert.Equal(t, 2, cfg.OpenType)
	assert.Equal(t, 5*time.Minute, cfg.CancelTimeout())
	assert.Equal(t, 10*time.Second, cfg.OrderPollInterval())
	assert.Equal(t, 300*time.Second, cfg.PollInterval())
	assert.Equal(t, []string{"APT_USDT"}, cfg.Symbols)
	assert.Equal(t, []string{"Min15"}, cfg.Timeframes)
	assert.Equal(t, 14, cfg.RSIPeriod)
	assert.Equal(t, 30.0, cfg.OversoldThreshold)
	assert.True(t, cfg.AutoStart)
	assert.False(t, cfg.AllowOverlap)
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.UseMockFeed)
	assert.Equal(t, time.Duration(0), cfg.MarketCacheTTL())
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"MEXC_API_KEY":               "k",
		"MEXC_API_SECRET":            "s",
		"SYMBOLS":                    "APT_USDT, BTC_USDT ,",
		"TIMEFRAMES":                 "Min5,Hour4",
		"TEMPO_CANCELAMENTO_MINUTOS": "3",
		"ENABLE_SHORTS":              "true",
		"AUTO_START":                 "false",
		"TELEGRAM_BOT_TOKEN":         "t",
		"TELEGRAM_CHAT_ID":           "1",
		"LOG_LEVEL":                  "DEBUG",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"APT_USDT", "BTC_USDT"}, cfg.Symbols)
	assert.Equal(t, []string{"Min5", "Hour4"}, cfg.Timeframes)
	assert.Equal(t, 3*time.Minute, cfg.CancelTimeout())
	assert.True(t, cfg.EnableShorts)
	assert.False(t, cfg.AutoStart)
	assert.True(t, cfg.TelegramEnabled())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRequiresCredentialsOutsideDryRun(t *testing.T) {
	setEnv(t, map[string]string{"DRY_RUN": "false", "MEXC_API_KEY": "", "MEXC_API_SECRET": ""})
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEXCAPIKey")
}

func TestMockFeedOnlyInDryRun(t *testing.T) {
	setEnv(t, map[string]string{"MOCK_FEED": "true", "DRY_RUN": "true"})
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.UseMockFeed)

	setEnv(t, map[string]string{"DRY_RUN": "false", "MEXC_API_KEY": "k", "MEXC_API_SECRET": "s"})
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UseMockFeed")
}

func TestValidateRejectsBadRanges(t *testing.T) {
	tests := map[string]map[string]string{
		"risk fraction above one":   {"PERCENTUAL_CAPITAL": "1.5"},
		"zero leverage":             {"LEVERAGE": "0"},
		"unknown open type":         {"OPEN_TYPE": "3"},
		"unknown timeframe":         {"TIMEFRAMES": "15m"},
		"candles below period":      {"CANDLE_LIMIT": "10"},
		"overbought below oversold": {"OVERBOUGHT_THRESHOLD": "20"},
		"bad log format":            {"LOG_FORMAT": "xml"},
		"cache outlives poll":       {"MARKET_CACHE_SECONDS": "400"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			env["DRY_RUN"] = "true"
			setEnv(t, env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestMarketCacheMustExpireBeforeNextPoll(t *testing.T) {
	setEnv(t, map[string]string{"DRY_RUN": "true", "MARKET_CACHE_SECONDS": "30", "POLL_INTERVAL_SECONDS": "60"})
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.MarketCacheTTL())

	setEnv(t, map[string]string{"DRY_RUN": "true", "MARKET_CACHE_SECONDS": "60", "POLL_INTERVAL_SECONDS": "60"})
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MarketCacheSeconds")
}

func TestLoadInstruments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instruments:
  APT_USDT:
    price_precision: 3
    volume_precision: 0
  BTC_USDT: {price_precision: 1, volume_precision: 4}
`), 0o644))

	setEnv(t, map[string]string{"DRY_RUN": "true", "INSTRUMENTS_FILE": path})
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Instrument{PricePrecision: 3, VolumePrecision: 0}, cfg.Instruments["APT_USDT"])
	assert.Equal(t, Instrument{PricePrecision: 1, VolumePrecision: 4}, cfg.Instruments["BTC_USDT"])
}

func TestLoadInstrumentsMissingFile(t *testing.T) {
	_, err := LoadInstruments(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

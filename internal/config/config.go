package config

import (
	"fmt"
	"strings"
	"time"

	// Embedded tzdata keeps schedule.timezone resolvable inside
	// containers that ship without a system zoneinfo directory.
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"market-sentinel/internal/evaluator"
	"market-sentinel/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	State     StateConfig     `mapstructure:"state"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StateConfig selects and tunes the persistent state backend.
type StateConfig struct {
	// Backend is "file" or "postgres".
	Backend  string              `mapstructure:"backend"`
	File     FileStateConfig     `mapstructure:"file"`
	Postgres PostgresStateConfig `mapstructure:"postgres"`
}

// FileStateConfig locates the JSON snapshot.
type FileStateConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresStateConfig encapsulates PostgreSQL connectivity.
type PostgresStateConfig struct {
	DSN             string        `mapstructure:"dsn"`
	DocumentName    string        `mapstructure:"document_name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ProvidersConfig groups upstream data vendors.
type ProvidersConfig struct {
	Polygon       PolygonConfig `mapstructure:"polygon"`
	Yahoo         YahooConfig   `mapstructure:"yahoo"`
	FMP           FMPConfig     `mapstructure:"fmp"`
	GeckoTerminal APIConfig     `mapstructure:"geckoterminal"`
	DexScreener   APIConfig     `mapstructure:"dexscreener"`
	GoPlus        APIConfig     `mapstructure:"goplus"`
}

// PolygonConfig covers the primary market-data vendor.
type PolygonConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// YahooConfig covers the fallback market-data vendor.
type YahooConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// FMPConfig covers the macro news and calendar vendor. An empty key
// disables the macro evaluators rather than failing startup.
type FMPConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// APIConfig is the shared shape for keyless public APIs.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MonitorConfig holds tickers and evaluator thresholds.
type MonitorConfig struct {
	Benchmark         string   `mapstructure:"benchmark"`
	CorePortfolio     []string `mapstructure:"core_portfolio"`
	DefensiveIncome   []string `mapstructure:"defensive_income"`
	CryptoCanaries    []string `mapstructure:"crypto_canaries"`
	SMAPeriod         int      `mapstructure:"sma_period"`
	RSIPeriod         int      `mapstructure:"rsi_period"`
	RSIOverbought     float64  `mapstructure:"rsi_overbought"`
	RSIOversold       float64  `mapstructure:"rsi_oversold"`
	TrailingStopPct   float64  `mapstructure:"trailing_stop_pct"`
	HighWaterDays     int      `mapstructure:"high_water_days"`
	CrashThresholdPct float64  `mapstructure:"crash_threshold_pct"`
	TrendLookbackDays int      `mapstructure:"trend_lookback_days"`
	NegativeKeywords  []string `mapstructure:"negative_keywords"`
	NewsThreshold     int      `mapstructure:"news_threshold"`
	NewsBatchSize     int      `mapstructure:"news_batch_size"`
	RateLookbackDays  int      `mapstructure:"rate_lookback_days"`
	// MarketHoursOnly skips equity checks while the exchange is closed.
	MarketHoursOnly bool `mapstructure:"market_hours_only"`
}

// EquityTickers lists every exchange-traded symbol under watch.
func (m MonitorConfig) EquityTickers() []string {
	out := make([]string, 0, len(m.CorePortfolio)+len(m.DefensiveIncome)+1)
	out = append(out, m.CorePortfolio...)
	out = append(out, m.DefensiveIncome...)
	if m.Benchmark != "" {
		out = append(out, m.Benchmark)
	}
	return out
}

// AllTickers lists equity and crypto symbols together.
func (m MonitorConfig) AllTickers() []string {
	return append(m.EquityTickers(), m.CryptoCanaries...)
}

// AlertingConfig defines alert routing and cooldown windows.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
	Cooldowns CooldownConfig `mapstructure:"cooldowns"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CooldownConfig spaces repeat deliveries per alert level.
type CooldownConfig struct {
	Critical time.Duration `mapstructure:"critical"`
	Warning  time.Duration `mapstructure:"warning"`
	Info     time.Duration `mapstructure:"info"`
}

// DiscoveryConfig tunes the token scanner and portfolio watch.
type DiscoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Chains          []string      `mapstructure:"chains"`
	TrendingChains  []string      `mapstructure:"trending_chains"`
	MinLiquidityUSD float64       `mapstructure:"min_liquidity_usd"`
	MaxTokenAge     time.Duration `mapstructure:"max_token_age"`
	TierHighUSD     float64       `mapstructure:"tier_high_usd"`
	TierMidUSD      float64       `mapstructure:"tier_mid_usd"`
	TierLowUSD      float64       `mapstructure:"tier_low_usd"`
	TrendingMovePct float64       `mapstructure:"trending_move_pct"`
	TrendingLimit   int           `mapstructure:"trending_limit"`

	PortfolioTokens []PortfolioTokenConfig `mapstructure:"portfolio_tokens"`
}

// PortfolioTokenConfig is one held token watched every few minutes.
type PortfolioTokenConfig struct {
	Name    string `mapstructure:"name"`
	Symbol  string `mapstructure:"symbol"`
	Address string `mapstructure:"address"`
	Chain   string `mapstructure:"chain"`
}

// ScheduleConfig carries cron expressions per job, evaluated in
// Timezone. MarketHealth takes several expressions so the open and
// close anchors ride alongside the intraday interval.
type ScheduleConfig struct {
	Timezone       string   `mapstructure:"timezone"`
	MarketHealth   []string `mapstructure:"market_health"`
	CryptoCanary   string   `mapstructure:"crypto_canary"`
	MacroSentiment string   `mapstructure:"macro_sentiment"`
	DiscoveryScan  string   `mapstructure:"discovery_scan"`
	TrendingScan   string   `mapstructure:"trending_scan"`
	PortfolioCheck string   `mapstructure:"portfolio_check"`
	DailySummary   string   `mapstructure:"daily_summary"`
	// AdvisoryLockKey namespaces the postgres advisory lock so replicas
	// of this monitor do not collide with other tools on the same
	// database. Only consulted with the postgres state backend.
	AdvisoryLockKey int64 `mapstructure:"advisory_lock_key"`
}

// Location resolves the schedule timezone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

// MetricsConfig exposes the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "market-sentinel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.file.path", "monitor_state.json")
	v.SetDefault("state.postgres.document_name", "monitor")
	v.SetDefault("state.postgres.max_open_conns", 10)
	v.SetDefault("state.postgres.min_idle_conns", 5)
	v.SetDefault("state.postgres.conn_max_lifetime", "30m")

	v.SetDefault("providers.polygon.base_url", "https://api.polygon.io")
	v.SetDefault("providers.polygon.timeout", "15s")
	v.SetDefault("providers.polygon.requests_per_minute", 5)
	v.SetDefault("providers.yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("providers.yahoo.timeout", "15s")
	v.SetDefault("providers.fmp.base_url", "https://financialmodelingprep.com/api/v3")
	v.SetDefault("providers.fmp.timeout", "15s")
	v.SetDefault("providers.geckoterminal.base_url", "https://api.geckoterminal.com/api/v2")
	v.SetDefault("providers.geckoterminal.timeout", "10s")
	v.SetDefault("providers.dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("providers.dexscreener.timeout", "10s")
	v.SetDefault("providers.goplus.base_url", "https://api.gopluslabs.io/api/v1")
	v.SetDefault("providers.goplus.timeout", "10s")

	v.SetDefault("monitor.benchmark", "SPY")
	v.SetDefault("monitor.core_portfolio", []string{"IVV", "BFGFX"})
	v.SetDefault("monitor.defensive_income", []string{"JEPI", "JEPQ"})
	v.SetDefault("monitor.crypto_canaries", []string{"BTC-USD", "ETH-USD"})
	v.SetDefault("monitor.sma_period", 200)
	v.SetDefault("monitor.rsi_period", 14)
	v.SetDefault("monitor.rsi_overbought", 70.0)
	v.SetDefault("monitor.rsi_oversold", 30.0)
	v.SetDefault("monitor.trailing_stop_pct", 5.0)
	v.SetDefault("monitor.high_water_days", 30)
	v.SetDefault("monitor.crash_threshold_pct", -10.0)
	v.SetDefault("monitor.trend_lookback_days", 7)
	v.SetDefault("monitor.negative_keywords", evaluator.DefaultNegativeKeywords)
	v.SetDefault("monitor.news_threshold", 5)
	v.SetDefault("monitor.news_batch_size", 50)
	v.SetDefault("monitor.rate_lookback_days", 90)
	v.SetDefault("monitor.market_hours_only", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.cooldowns.critical", "4h")
	v.SetDefault("alerting.cooldowns.warning", "2h")
	v.SetDefault("alerting.cooldowns.info", "24h")

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.chains", []string{"solana", "base", "ethereum"})
	v.SetDefault("discovery.trending_chains", []string{"solana", "base"})
	v.SetDefault("discovery.min_liquidity_usd", 10000.0)
	v.SetDefault("discovery.max_token_age", "2h")
	v.SetDefault("discovery.tier_high_usd", 20000.0)
	v.SetDefault("discovery.tier_mid_usd", 5000.0)
	v.SetDefault("discovery.tier_low_usd", 1000.0)
	v.SetDefault("discovery.trending_move_pct", 50.0)
	v.SetDefault("discovery.trending_limit", 5)
	v.SetDefault("discovery.portfolio_tokens", []map[string]any{
		{
			"name":    "Auki",
			"symbol":  "AUKI",
			"address": "0x5cba0b7b488633cde1a57b8b406a7a7310d2993e",
			"chain":   "ethereum",
		},
		{
			"name":    "U.S. Oil",
			"symbol":  "USOR",
			"address": "USoRyaQjch6E18nCdDvWoRgTo6osQs9MUd8JXEsspWR",
			"chain":   "solana",
		},
	})

	v.SetDefault("schedule.timezone", "America/New_York")
	v.SetDefault("schedule.market_health", []string{
		"*/15 9-15 * * 1-5",
		"30 9 * * 1-5",
		"5 16 * * 1-5",
	})
	v.SetDefault("schedule.crypto_canary", "@every 30m")
	v.SetDefault("schedule.macro_sentiment", "0 8-17 * * 1-5")
	v.SetDefault("schedule.discovery_scan", "@every 2m")
	v.SetDefault("schedule.trending_scan", "@every 5m")
	v.SetDefault("schedule.portfolio_check", "@every 5m")
	v.SetDefault("schedule.daily_summary", "0 17 * * 1-5")
	v.SetDefault("schedule.advisory_lock_key", int64(0x4d534e54))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "file":
		if c.State.File.Path == "" {
			return fmt.Errorf("state.file.path must be set")
		}
	case "postgres":
		if c.State.Postgres.DSN == "" {
			return fmt.Errorf("state.postgres.dsn must be set")
		}
	default:
		return fmt.Errorf("state.backend must be file or postgres, got %q", c.State.Backend)
	}
	if c.Monitor.Benchmark == "" {
		return fmt.Errorf("monitor.benchmark must be set")
	}
	if c.Monitor.SMAPeriod <= 0 {
		return fmt.Errorf("monitor.sma_period must be greater than zero")
	}
	if c.Monitor.RSIOversold >= c.Monitor.RSIOverbought {
		return fmt.Errorf("monitor.rsi_oversold must be below monitor.rsi_overbought")
	}
	if c.Monitor.TrailingStopPct <= 0 {
		return fmt.Errorf("monitor.trailing_stop_pct must be greater than zero")
	}
	if c.Monitor.CrashThresholdPct >= 0 {
		return fmt.Errorf("monitor.crash_threshold_pct must be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Discovery.TierHighUSD < c.Discovery.TierMidUSD || c.Discovery.TierMidUSD < c.Discovery.TierLowUSD {
		return fmt.Errorf("discovery liquidity tiers must descend high >= mid >= low")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics.enabled")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang-stock-trader/pkg/common"
	"golang-stock-trader/pkg/config"
)

// Alpaca holds brokerage and market-data endpoints and credentials for both environments.
type Alpaca struct {
	PaperBaseURL        string        `mapstructure:"paper_base_url"`
	LiveBaseURL         string        `mapstructure:"live_base_url"`
	DataBaseURL         string        `mapstructure:"data_base_url"`
	PaperKeyID          string        `mapstructure:"paper_key_id"`
	PaperSecretKey      string        `mapstructure:"paper_secret_key"`
	LiveKeyID           string        `mapstructure:"live_key_id"`
	LiveSecretKey       string        `mapstructure:"live_secret_key"`
	DataFeed            string        `mapstructure:"data_feed"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
	AllowExtendedHours  bool          `mapstructure:"allow_extended_hours"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

// Trading selects the brokerage environment.
type Trading struct {
	Env string `mapstructure:"env"`
}

// Quote holds Quote Gateway tuning.
type Quote struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// Fill holds fill-price polling tuning.
type Fill struct {
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Stage is one rung of the profit ladder.
type Stage struct {
	Stage          int     `mapstructure:"stage"`
	UpPct          float64 `mapstructure:"up_pct"`
	StopMultiplier float64 `mapstructure:"stop_multiplier"`
	ScaleInRatio   float64 `mapstructure:"scale_in_ratio"`
	ScaleOutRatio  float64 `mapstructure:"scale_out_ratio"`
}

// Strategy holds entry, sizing and exit parameters shared by all rulesets.
type Strategy struct {
	MinUpPct            float64       `mapstructure:"min_up_pct"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
	TargetNotional      float64       `mapstructure:"target_notional"`
	MaxNotional         float64       `mapstructure:"max_notional"`
	MinNotional         float64       `mapstructure:"min_notional"`
	MinBuyingPower      float64       `mapstructure:"min_buying_power"`
	BuyingPowerUseRatio float64       `mapstructure:"buying_power_use_ratio"`
	InitialStopRatio    float64       `mapstructure:"initial_stop_ratio"`
	SellEligibleOnEntry bool          `mapstructure:"sell_eligible_on_entry"`
	IntentMaxLen        int           `mapstructure:"intent_max_len"`
	ClosesLookback      int           `mapstructure:"closes_lookback"`
	Stages              []Stage       `mapstructure:"stages"`
}

// Dispatcher holds control-loop pacing and the account-level buy gate.
type Dispatcher struct {
	SymbolDelay       time.Duration `mapstructure:"symbol_delay"`
	SymbolJitter      time.Duration `mapstructure:"symbol_jitter"`
	RoundDelay        time.Duration `mapstructure:"round_delay"`
	RoundJitter       time.Duration `mapstructure:"round_jitter"`
	ErrorBackoffMin   time.Duration `mapstructure:"error_backoff_min"`
	ErrorBackoffMax   time.Duration `mapstructure:"error_backoff_max"`
	OffHoursSleep     time.Duration `mapstructure:"off_hours_sleep"`
	BuyGateFloor      float64       `mapstructure:"buy_gate_floor"`
	BuyGateRefresh    time.Duration `mapstructure:"buy_gate_refresh"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
	// PersistTimeout bounds the record write after a fill, outside the evaluation budget.
	PersistTimeout  time.Duration `mapstructure:"persist_timeout"`
	PersistAttempts int           `mapstructure:"persist_attempts"`
}

// TradingHours is the weekday session window in a named timezone.
type TradingHours struct {
	Timezone string `mapstructure:"timezone"`
	Open     string `mapstructure:"open"`
	Close    string `mapstructure:"close"`
}

// Unlock schedules the deferred sell-eligibility job.
type Unlock struct {
	Cron string `mapstructure:"cron"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the trader service.
type Config struct {
	App          config.App      `mapstructure:"app"`
	Logger       config.Logger   `mapstructure:"logger"`
	Database     config.Database `mapstructure:"database"`
	Redis        config.Redis    `mapstructure:"redis"`
	API          config.API      `mapstructure:"api"`
	Trading      Trading         `mapstructure:"trading"`
	Alpaca       Alpaca          `mapstructure:"alpaca"`
	Quote        Quote           `mapstructure:"quote"`
	Fill         Fill            `mapstructure:"fill"`
	Strategy     Strategy        `mapstructure:"strategy"`
	Dispatcher   Dispatcher      `mapstructure:"dispatcher"`
	TradingHours TradingHours    `mapstructure:"trading_hours"`
	Unlock       Unlock          `mapstructure:"unlock"`
	Telegram     Telegram        `mapstructure:"telegram"`
}

// DefaultStages is the eight-rung ladder. There is no stage 9; the structural exit is labelled stage 10.
func DefaultStages() []Stage {
	return []Stage{
		{Stage: 1, UpPct: 0.05, StopMultiplier: 1.00},
		{Stage: 2, UpPct: 0.10, StopMultiplier: 1.05, ScaleInRatio: 0.50},
		{Stage: 3, UpPct: 0.15, StopMultiplier: 1.10},
		{Stage: 4, UpPct: 0.20, StopMultiplier: 1.15, ScaleInRatio: 0.50},
		{Stage: 5, UpPct: 0.25, StopMultiplier: 1.20},
		{Stage: 6, UpPct: 0.30, StopMultiplier: 1.25, ScaleOutRatio: 0.30},
		{Stage: 7, UpPct: 0.35, StopMultiplier: 1.30},
		{Stage: 8, UpPct: 0.40, StopMultiplier: 1.35, ScaleOutRatio: 0.40},
	}
}

// Defaults returns every tunable with its default value, keyed by viper path.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"app.name":                        "stock-trader",
		"logger.level":                    "info",
		"logger.encoding":                 "json",
		"database.host":                   "localhost",
		"database.port":                   5432,
		"database.ssl_mode":               "disable",
		"database.time_zone":              "UTC",
		"database.max_idle_conns":         2,
		"database.max_open_conns":         4,
		"database.conn_max_lifetime":      "30m",
		"redis.host":                      "localhost",
		"redis.port":                      6379,
		"redis.pool_size":                 4,
		"api.port":                        8081,
		"api.read_timeout":                "15s",
		"api.write_timeout":               "15s",
		"api.shutdown_timeout":            "10s",
		"trading.env":                     common.TradingEnvPaper,
		"alpaca.paper_base_url":           "https://paper-api.alpaca.markets",
		"alpaca.live_base_url":            "https://api.alpaca.markets",
		"alpaca.data_base_url":            "https://data.alpaca.markets",
		"alpaca.paper_key_id":             "",
		"alpaca.paper_secret_key":         "",
		"alpaca.live_key_id":              "",
		"alpaca.live_secret_key":          "",
		"alpaca.data_feed":                "iex",
		"alpaca.http_timeout":             "6s",
		"alpaca.allow_extended_hours":     false,
		"alpaca.max_request_per_minute":   180,
		"quote.min_interval":              "350ms",
		"quote.cache_ttl":                 "2s",
		"fill.poll_attempts":              5,
		"fill.poll_interval":              "400ms",
		"strategy.min_up_pct":             0.05,
		"strategy.cooldown":               "30m",
		"strategy.target_notional":        900.0,
		"strategy.max_notional":           900.0,
		"strategy.min_notional":           1.0,
		"strategy.min_buying_power":       1.0,
		"strategy.buying_power_use_ratio": 0.95,
		"strategy.initial_stop_ratio":     0.95,
		"strategy.sell_eligible_on_entry": true,
		"strategy.intent_max_len":         70,
		"strategy.closes_lookback":        4,
		"dispatcher.symbol_delay":         "200ms",
		"dispatcher.symbol_jitter":        "80ms",
		"dispatcher.round_delay":          "10s",
		"dispatcher.round_jitter":         "1200ms",
		"dispatcher.error_backoff_min":    "3s",
		"dispatcher.error_backoff_max":    "15s",
		"dispatcher.off_hours_sleep":      "60s",
		"dispatcher.buy_gate_floor":       900.0,
		"dispatcher.buy_gate_refresh":     "300s",
		"dispatcher.evaluation_timeout":   "30s",
		"dispatcher.persist_timeout":      "10s",
		"dispatcher.persist_attempts":     3,
		"trading_hours.timezone":          "America/Los_Angeles",
		"trading_hours.open":              "06:30",
		"trading_hours.close":             "13:00",
		"unlock.cron":                     "35 6 * * 1-5",
		"telegram.enabled":                false,
	}
}

// Load loads the trader configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg, Defaults()); err != nil {
		return nil, err
	}
	if len(cfg.Strategy.Stages) == 0 {
		cfg.Strategy.Stages = DefaultStages()
	}
	cfg.Trading.Env = strings.ToLower(strings.TrimSpace(cfg.Trading.Env))
	return &cfg, nil
}

// Credentials returns the key pair and trading base URL for the selected environment.
func (c *Config) Credentials() (keyID, secret, baseURL string) {
	if c.Trading.Env == common.TradingEnvLive {
		return c.Alpaca.LiveKeyID, c.Alpaca.LiveSecretKey, c.Alpaca.LiveBaseURL
	}
	return c.Alpaca.PaperKeyID, c.Alpaca.PaperSecretKey, c.Alpaca.PaperBaseURL
}

// Validate reports every precondition violation at once. Called only at startup.
func (c *Config) Validate() error {
	var errs []string

	if c.Trading.Env != common.TradingEnvPaper && c.Trading.Env != common.TradingEnvLive {
		errs = append(errs, fmt.Sprintf("trading.env must be paper or live, got %q", c.Trading.Env))
	}
	keyID, secret, baseURL := c.Credentials()
	if keyID == "" || secret == "" {
		errs = append(errs, fmt.Sprintf("alpaca credentials for %q are missing", c.Trading.Env))
	}
	if baseURL == "" || c.Alpaca.DataBaseURL == "" {
		errs = append(errs, "alpaca base urls must not be empty")
	}
	if c.Alpaca.MaxRequestPerMinute <= 0 {
		errs = append(errs, "alpaca.max_request_per_minute must be positive")
	}

	if c.Quote.MinInterval < 0 || c.Quote.CacheTTL < 0 {
		errs = append(errs, "quote intervals must not be negative")
	}
	if c.Fill.PollAttempts < 1 {
		errs = append(errs, "fill.poll_attempts must be at least 1")
	}

	s := c.Strategy
	if s.MinUpPct < 0 {
		errs = append(errs, "strategy.min_up_pct must not be negative")
	}
	if s.TargetNotional <= 0 || s.MaxNotional <= 0 {
		errs = append(errs, "strategy notional caps must be positive")
	}
	if s.BuyingPowerUseRatio <= 0 || s.BuyingPowerUseRatio > 1 {
		errs = append(errs, "strategy.buying_power_use_ratio must be in (0, 1]")
	}
	if s.InitialStopRatio <= 0 || s.InitialStopRatio >= 1 {
		errs = append(errs, "strategy.initial_stop_ratio must be in (0, 1)")
	}
	if s.ClosesLookback < 4 {
		errs = append(errs, "strategy.closes_lookback must be at least 4")
	}
	if err := validateStages(s.Stages); err != nil {
		errs = append(errs, err.Error())
	}

	d := c.Dispatcher
	if d.ErrorBackoffMin < 0 || d.ErrorBackoffMax < d.ErrorBackoffMin {
		errs = append(errs, "dispatcher error backoff range is invalid")
	}
	if d.BuyGateRefresh <= 0 {
		errs = append(errs, "dispatcher.buy_gate_refresh must be positive")
	}
	if d.PersistTimeout <= 0 || d.PersistAttempts < 1 {
		errs = append(errs, "dispatcher.persist_timeout must be positive and dispatcher.persist_attempts at least 1")
	}

	if _, err := time.LoadLocation(c.TradingHours.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("trading_hours.timezone %q: %v", c.TradingHours.Timezone, err))
	}
	open, errOpen := ParseClock(c.TradingHours.Open)
	closeAt, errClose := ParseClock(c.TradingHours.Close)
	if errOpen != nil || errClose != nil {
		errs = append(errs, "trading_hours open/close must be HH:MM")
	} else if closeAt <= open {
		errs = append(errs, "trading_hours.close must be after trading_hours.open")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, "telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStages(stages []Stage) error {
	if len(stages) == 0 {
		return errors.New("strategy.stages must not be empty")
	}
	for i, st := range stages {
		if st.Stage <= 0 {
			return fmt.Errorf("stage #%d: stage number must be positive", i+1)
		}
		if st.UpPct <= 0 || st.StopMultiplier <= 0 {
			return fmt.Errorf("stage %d: up_pct and stop_multiplier must be positive", st.Stage)
		}
		if st.ScaleInRatio < 0 || st.ScaleInRatio > 1 || st.ScaleOutRatio < 0 || st.ScaleOutRatio >= 1 {
			return fmt.Errorf("stage %d: scale ratios out of range", st.Stage)
		}
		if st.ScaleInRatio > 0 && st.ScaleOutRatio > 0 {
			return fmt.Errorf("stage %d: a stage cannot scale in and out", st.Stage)
		}
		if i == 0 {
			continue
		}
		prev := stages[i-1]
		if st.Stage <= prev.Stage || st.UpPct <= prev.UpPct || st.StopMultiplier < prev.StopMultiplier {
			return fmt.Errorf("stage %d: ladder must be strictly ascending", st.Stage)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

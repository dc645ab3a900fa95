// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	DataDir     string `yaml:"data_dir"`
}

// Risk encodes guard-rails for how much the engine may move per trade and per day.
type Risk struct {
	MaxSOLPerTrade   float64 `yaml:"max_sol_per_trade"`
	MinReserveSOL    float64 `yaml:"min_reserve_sol"`
	MaxDailySpendSOL float64 `yaml:"max_daily_spend_sol"`
	MaxSlippageBps   int     `yaml:"max_slippage_bps"`
}

// Engine tunes the transaction pipeline: in-flight cap, confirmation budget, send retries.
type Engine struct {
	MaxInFlight        int `yaml:"max_in_flight"`
	ConfirmTimeoutSecs int `yaml:"confirm_timeout_secs"`
	ConfirmPollMs      int `yaml:"confirm_poll_ms"`
	SendRetries        int `yaml:"send_retries"`
}

// Sweep moves balance above a threshold to a collection address on a schedule.
// Disabled unless explicitly enabled; it spends real funds.
type Sweep struct {
	Enabled       bool    `yaml:"enabled"`
	TargetAddress string  `yaml:"target_address"`
	ThresholdSOL  float64 `yaml:"threshold_sol"`
	ReserveSOL    float64 `yaml:"reserve_sol"`
	IntervalSecs  int     `yaml:"interval_secs"`
}

// Monitor configures the wallet polling loop and its alert thresholds.
type Monitor struct {
	PollIntervalSecs   int     `yaml:"poll_interval_secs"`
	LowBalanceSOL      float64 `yaml:"low_balance_sol"`
	CriticalBalanceSOL float64 `yaml:"critical_balance_sol"`
	HistoryDepth       int     `yaml:"history_depth"`
	Subscribe          bool    `yaml:"subscribe"`
	Sweep              Sweep   `yaml:"sweep"`
}

// Report controls the periodic status snapshot writers.
type Report struct {
	IntervalSecs int    `yaml:"interval_secs"`
	JSONPath     string `yaml:"json_path"`
	MarkdownPath string `yaml:"markdown_path"`
	ActivityPath string `yaml:"activity_path"`
}

// Notify holds Telegram delivery settings. The bot token itself comes from
// the TELEGRAM_BOT_TOKEN environment variable, never from this file.
type Notify struct {
	Enabled        bool   `yaml:"enabled"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Solana  Solana  `yaml:"solana"`
	Wallet  Wallet  `yaml:"wallet"`
	Jupiter Jupiter `yaml:"jupiter"`
	Risk    Risk    `yaml:"risk"`
	Engine  Engine  `yaml:"engine"`
	Monitor Monitor `yaml:"monitor"`
	Report  Report  `yaml:"report"`
	Notify  Notify  `yaml:"notify"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields with working defaults. Only the
// in-memory config is touched; Save never writes defaults back implicitly.
func (c *Config) ApplyDefaults() {
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Solana.RpcURL == "" {
		c.Solana.RpcURL = "https://api.mainnet-beta.solana.com"
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Solana.RpcRatePerSec <= 0 {
		c.Solana.RpcRatePerSec = 5
	}
	if c.Solana.RpcBurst <= 0 {
		c.Solana.RpcBurst = 5
	}
	if c.Jupiter.BaseURL == "" {
		c.Jupiter.BaseURL = "https://quote-api.jup.ag"
	}
	if c.Jupiter.PriceURL == "" {
		c.Jupiter.PriceURL = "https://price.jup.ag"
	}
	if c.Jupiter.TokenListURL == "" {
		c.Jupiter.TokenListURL = "https://token.jup.ag/strict"
	}
	if c.Jupiter.RefreshSecs <= 0 {
		c.Jupiter.RefreshSecs = 900
	}
	if c.Jupiter.SlippageBps <= 0 {
		c.Jupiter.SlippageBps = 50
	}
	if c.Jupiter.QuoteRatePerSec <= 0 {
		c.Jupiter.QuoteRatePerSec = 5
	}
	if c.Jupiter.PriceRatePerSec <= 0 {
		c.Jupiter.PriceRatePerSec = 10
	}
	if c.Engine.MaxInFlight <= 0 {
		c.Engine.MaxInFlight = 5
	}
	if c.Engine.ConfirmTimeoutSecs <= 0 {
		c.Engine.ConfirmTimeoutSecs = 60
	}
	if c.Engine.ConfirmPollMs <= 0 {
		c.Engine.ConfirmPollMs = 400
	}
	if c.Engine.SendRetries <= 0 {
		c.Engine.SendRetries = 3
	}
	if c.Monitor.PollIntervalSecs <= 0 {
		c.Monitor.PollIntervalSecs = 60
	}
	if c.Monitor.LowBalanceSOL <= 0 {
		c.Monitor.LowBalanceSOL = 0.5
	}
	if c.Monitor.CriticalBalanceSOL <= 0 {
		c.Monitor.CriticalBalanceSOL = 0.1
	}
	if c.Monitor.HistoryDepth <= 0 {
		c.Monitor.HistoryDepth = 1440
	}
	if c.Monitor.Sweep.IntervalSecs <= 0 {
		c.Monitor.Sweep.IntervalSecs = 3600
	}
	if c.Report.IntervalSecs <= 0 {
		c.Report.IntervalSecs = 300
	}
	if c.Report.JSONPath == "" {
		c.Report.JSONPath = "data/status.json"
	}
	if c.Report.MarkdownPath == "" {
		c.Report.MarkdownPath = "STATUS.md"
	}
	if c.Report.ActivityPath == "" {
		c.Report.ActivityPath = "data/activity.jsonl"
	}
}

// Package config provides application-wide configuration management.
// All configuration is loaded from files and environment variables.
// No configuration is hardcoded in decision or broker logic.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onebar-systems/onebar/internal/decision"
	"github.com/onebar-systems/onebar/internal/execution"
	"github.com/onebar-systems/onebar/internal/market"
	"github.com/onebar-systems/onebar/internal/quality"
	"github.com/onebar-systems/onebar/internal/runner"
	"github.com/onebar-systems/onebar/internal/signal"
)

// Mode defines whether the system runs in observe, paper, or live mode.
type Mode string

const (
	ModeObserve Mode = "observe"
	ModePaper   Mode = "paper"
	ModeLive    Mode = "live"
)

// Config holds all system configuration. Loaded once at startup and
// passed as read-only to all components.
type Config struct {
	// Symbol is the traded futures symbol, e.g. "MES".
	Symbol string `json:"symbol"`

	// RunID identifies this engine run; it seeds deterministic
	// client_order_id generation so a crash-restart never double-fills.
	RunID string `json:"run_id"`

	// ActiveBroker selects which broker.Registry entry to use ("paper" or "live").
	ActiveBroker string `json:"active_broker"`

	// TradingMode controls whether execution is armed at all.
	TradingMode Mode `json:"trading_mode"`

	Signal    signal.Config    `json:"signal"`
	Quality   quality.Config   `json:"quality"`
	Decision  DecisionConfig   `json:"decision"`
	Execution ExecutionConfig  `json:"execution"`

	ExitWindowMins int `json:"exit_window_mins"`
	SaveEveryN     int `json:"save_every_n"`
	PersistPath    string `json:"persist_path"`

	// Session describes the exchange calendar this instrument trades on.
	Session market.Session `json:"-"`

	// BrokerConfig carries each registered broker's raw JSON config,
	// looked up by ActiveBroker and passed to broker.New.
	BrokerConfig map[string]json.RawMessage `json:"broker_config"`

	// DatabaseURL is the event log's durable store connection string.
	DatabaseURL string `json:"database_url"`

	// ContractExpiry is the traded contract's last trade date, used to
	// compute days-to-expiry for the permission gate each bar cycle.
	ContractExpiry time.Time `json:"contract_expiry"`

	Webhook WebhookConfig `json:"webhook"`
}

// DecisionConfig mirrors decision.Config for JSON (un)marshaling; the
// engine converts it via ToDecisionConfig once loaded.
type DecisionConfig struct {
	Risk       decision.RiskConfig       `json:"risk"`
	Instrument decision.InstrumentConfig `json:"instrument"`
	Weights    decision.UncertaintyWeights `json:"weights"`

	EdgeMin        float64 `json:"edge_min"`
	UncertaintyMax float64 `json:"uncertainty_max"`
}

// ExecutionConfig mirrors execution.Config for JSON.
type ExecutionConfig struct {
	MaxSubmitRetries int     `json:"max_submit_retries"`
	RetryBackoffMs   int     `json:"retry_backoff_ms"`
	EntryTTLSecs     int     `json:"entry_ttl_secs"`
	TickSize         float64 `json:"tick_size"`
}

// WebhookConfig holds settings for the broker order-postback HTTP server.
type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Load reads configuration from a JSON file. Environment variables
// override file values where applicable.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", absPath, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}

	if v := os.Getenv("ONEBAR_TRADING_MODE"); v != "" {
		cfg.TradingMode = Mode(v)
	}
	if v := os.Getenv("ONEBAR_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ONEBAR_ACTIVE_BROKER"); v != "" {
		cfg.ActiveBroker = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config seeded from every sub-component's own
// DefaultConfig, so a config file only needs to override what it cares
// about.
func Default() Config {
	dc := decision.DefaultConfig()
	return Config{
		Symbol:       "MES",
		ActiveBroker: "paper",
		TradingMode:  ModeObserve,
		Signal:       signal.DefaultConfig(),
		Quality:      quality.DefaultConfig(),
		Decision: DecisionConfig{
			Risk: dc.Risk, Instrument: dc.Instrument, Weights: dc.Weights,
			EdgeMin: dc.EdgeMin, UncertaintyMax: dc.UncertaintyMax,
		},
		Execution: ExecutionConfig{
			MaxSubmitRetries: 3, RetryBackoffMs: 2000, EntryTTLSecs: 30, TickSize: dc.Instrument.TickSize,
		},
		ExitWindowMins: 5,
		SaveEveryN:     1,
		PersistPath:    "learning_state.json",
		Session:        market.DefaultCMESession(),
	}
}

// ToRunnerConfig assembles the runner.Config this engine run should
// start with.
func (c *Config) ToRunnerConfig() runner.Config {
	dc := decision.DefaultConfig()
	dc.Risk = c.Decision.Risk
	dc.Instrument = c.Decision.Instrument
	dc.Weights = c.Decision.Weights
	dc.EdgeMin = c.Decision.EdgeMin
	dc.UncertaintyMax = c.Decision.UncertaintyMax

	ec := execution.DefaultConfig(c.RunID)
	ec.MaxSubmitRetries = c.Execution.MaxSubmitRetries
	if c.Execution.RetryBackoffMs > 0 {
		ec.RetryBackoff = time.Duration(c.Execution.RetryBackoffMs) * time.Millisecond
	}
	if c.Execution.EntryTTLSecs > 0 {
		ec.EntryTTL = time.Duration(c.Execution.EntryTTLSecs) * time.Second
	}
	ec.TickSize = c.Execution.TickSize

	return runner.Config{
		Symbol:         c.Symbol,
		RunID:          c.RunID,
		Signal:         c.Signal,
		Quality:        c.Quality,
		Decision:       dc,
		Execution:      ec,
		ExitWindowMins: c.ExitWindowMins,
		SaveEveryN:     c.SaveEveryN,
		PersistPath:    c.PersistPath,
	}
}

// Validate checks that all required configuration fields are present and sane.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if c.ActiveBroker == "" {
		return fmt.Errorf("active_broker is required")
	}
	switch c.TradingMode {
	case ModeObserve, ModePaper, ModeLive:
	default:
		return fmt.Errorf("trading_mode must be 'observe', 'paper', or 'live', got %q", c.TradingMode)
	}
	if c.Decision.Risk.MaxRiskUSDPerTrade <= 0 {
		return fmt.Errorf("decision.risk.max_risk_usd_per_trade must be positive")
	}
	if c.Decision.Risk.MaxDailyLossUSD <= 0 {
		return fmt.Errorf("decision.risk.max_daily_loss_usd must be positive")
	}
	if c.Decision.Instrument.TickSize <= 0 {
		return fmt.Errorf("decision.instrument.tick_size must be positive")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}

	if c.TradingMode == ModeLive {
		if err := c.validateLiveMode(); err != nil {
			return fmt.Errorf("live mode: %w", err)
		}
	}

	return nil
}

// validateLiveMode enforces extra safety checks when running with real money.
func (c *Config) validateLiveMode() error {
	if c.BrokerConfig == nil {
		return fmt.Errorf("broker_config is required for live trading")
	}
	if _, ok := c.BrokerConfig[c.ActiveBroker]; !ok {
		return fmt.Errorf("broker_config[%q] is required for live trading", c.ActiveBroker)
	}
	if c.Decision.Risk.MaxRiskUSDPerTrade > 100 {
		return fmt.Errorf("decision.risk.max_risk_usd_per_trade cannot exceed 100 in live mode (got %.2f)", c.Decision.Risk.MaxRiskUSDPerTrade)
	}
	if c.Decision.Risk.MaxTradesPerDay > 10 {
		return fmt.Errorf("decision.risk.max_trades_per_day cannot exceed 10 in live mode (got %d)", c.Decision.Risk.MaxTradesPerDay)
	}
	return nil
}

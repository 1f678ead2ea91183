package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestConfig_LoadValid(t *testing.T) {
	path := writeTestConfig(t, `{
		"symbol": "MES",
		"run_id": "run-1",
		"active_broker": "paper",
		"trading_mode": "paper",
		"decision": {
			"risk": {"max_risk_usd_per_trade": 15, "max_stop_ticks": 12, "max_trades_per_day": 2, "max_daily_loss_usd": 30, "max_consecutive_losses": 2},
			"instrument": {"tick_size": 0.25, "tick_value_usd": 1.25, "round_trip_commission_usd": 2.5, "min_days_to_expiry": 5}
		},
		"broker_config": {},
		"database_url": "postgres://localhost/test"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ActiveBroker != "paper" {
		t.Errorf("expected paper, got %s", cfg.ActiveBroker)
	}
	if cfg.TradingMode != ModePaper {
		t.Errorf("expected paper, got %s", cfg.TradingMode)
	}
	if cfg.Decision.Risk.MaxRiskUSDPerTrade != 15 {
		t.Errorf("expected 15, got %f", cfg.Decision.Risk.MaxRiskUSDPerTrade)
	}
}

func TestConfig_RejectsInvalidMode(t *testing.T) {
	path := writeTestConfig(t, `{
		"symbol": "MES",
		"run_id": "run-1",
		"active_broker": "paper",
		"trading_mode": "invalid",
		"database_url": "postgres://localhost/test"
	}`)

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid trading mode")
	}
}

func TestConfig_RejectsMissingSymbol(t *testing.T) {
	path := writeTestConfig(t, `{
		"run_id": "run-1",
		"active_broker": "paper",
		"trading_mode": "paper",
		"database_url": "postgres://localhost/test"
	}`)

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for missing symbol")
	}
}

func TestConfig_EnvOverride(t *testing.T) {
	path := writeTestConfig(t, `{
		"symbol": "MES",
		"run_id": "run-1",
		"active_broker": "paper",
		"trading_mode": "observe",
		"broker_config": {"live": {"api_key": "test"}},
		"database_url": "postgres://localhost/test"
	}`)

	os.Setenv("ONEBAR_TRADING_MODE", "paper")
	defer os.Unsetenv("ONEBAR_TRADING_MODE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TradingMode != ModePaper {
		t.Errorf("expected env override to paper, got %s", cfg.TradingMode)
	}
}

// ────────────────────────────────────────────────────────────────────
// Live mode validation tests
// ────────────────────────────────────────────────────────────────────

func validLiveConfig() Config {
	cfg := Default()
	cfg.Symbol = "MES"
	cfg.RunID = "run-1"
	cfg.ActiveBroker = "live"
	cfg.TradingMode = ModeLive
	cfg.BrokerConfig = map[string]json.RawMessage{
		"live": json.RawMessage(`{"base_url":"https://broker.example","api_key":"test"}`),
	}
	cfg.DatabaseURL = "postgres://localhost/test"
	return cfg
}

func TestLiveMode_RequiresBrokerConfig(t *testing.T) {
	cfg := validLiveConfig()
	cfg.BrokerConfig = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when broker_config is nil in live mode")
	}
	if !strings.Contains(err.Error(), "broker_config") {
		t.Errorf("error should mention broker_config, got: %v", err)
	}
}

func TestLiveMode_RequiresActiveBrokerInConfig(t *testing.T) {
	cfg := validLiveConfig()
	cfg.BrokerConfig = map[string]json.RawMessage{
		"other_broker": json.RawMessage(`{}`),
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when active broker not in broker_config")
	}
	if !strings.Contains(err.Error(), "live") {
		t.Errorf("error should mention active broker name, got: %v", err)
	}
}

func TestLiveMode_MaxRiskPerTradeCap(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Decision.Risk.MaxRiskUSDPerTrade = 500

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when max_risk_usd_per_trade exceeds the live cap")
	}
	if !strings.Contains(err.Error(), "max_risk_usd_per_trade") {
		t.Errorf("error should mention max_risk_usd_per_trade, got: %v", err)
	}
}

func TestLiveMode_MaxTradesPerDayCap(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Decision.Risk.MaxTradesPerDay = 50

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when max_trades_per_day exceeds the live cap")
	}
	if !strings.Contains(err.Error(), "max_trades_per_day") {
		t.Errorf("error should mention max_trades_per_day, got: %v", err)
	}
}

func TestLiveMode_RequiresDatabaseURL(t *testing.T) {
	cfg := validLiveConfig()
	cfg.DatabaseURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when database_url is empty")
	}
	if !strings.Contains(err.Error(), "database_url") {
		t.Errorf("error should mention database_url, got: %v", err)
	}
}

func TestLiveMode_ValidConfigPasses(t *testing.T) {
	cfg := validLiveConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid live config should pass validation, got: %v", err)
	}
}

func TestObserveMode_SkipsLiveChecks(t *testing.T) {
	cfg := Default()
	cfg.Symbol = "MES"
	cfg.RunID = "run-1"
	cfg.TradingMode = ModeObserve
	cfg.Decision.Risk.MaxRiskUSDPerTrade = 500 // would fail live mode, fine in observe
	cfg.DatabaseURL = "postgres://localhost/test"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("observe mode should not enforce live mode caps, got: %v", err)
	}
}

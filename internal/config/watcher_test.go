package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onebar-systems/onebar/internal/decision"
)

func watcherLogger() *log.Logger {
	return log.New(os.Stdout, "[watcher-test] ", log.LstdFlags)
}

func writeWatcherTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func baseTestConfig() *Config {
	cfg := Default()
	cfg.Symbol = "MES"
	cfg.RunID = "run-1"
	cfg.ActiveBroker = "paper"
	cfg.TradingMode = ModePaper
	cfg.DatabaseURL = "postgres://test@localhost/test?sslmode=disable"
	return &cfg
}

func TestWatcher_DetectsChange(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	initial := baseTestConfig()
	writeWatcherTestConfig(t, cfgPath, initial)

	watcher := NewWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) {
		changed <- true
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	updated := baseTestConfig()
	updated.Decision.Risk.MaxTradesPerDay = 5
	writeWatcherTestConfig(t, cfgPath, updated)

	watcher.checkForChanges()

	select {
	case <-changed:
		current := watcher.Current()
		if current.Decision.Risk.MaxTradesPerDay != 5 {
			t.Errorf("expected MaxTradesPerDay=5, got %d", current.Decision.Risk.MaxTradesPerDay)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for config change notification")
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	initial := baseTestConfig()
	writeWatcherTestConfig(t, cfgPath, initial)

	watcher := NewWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) {
		changed <- true
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(cfgPath, []byte("not valid json"), 0644)
	watcher.checkForChanges()

	select {
	case <-changed:
		t.Error("should NOT fire callback for invalid JSON")
	case <-time.After(100 * time.Millisecond):
	}

	current := watcher.Current()
	if current.Decision.Risk.MaxTradesPerDay != initial.Decision.Risk.MaxTradesPerDay {
		t.Errorf("expected original MaxTradesPerDay=%d, got %d", initial.Decision.Risk.MaxTradesPerDay, current.Decision.Risk.MaxTradesPerDay)
	}
}

func TestWatcher_IgnoresNonRiskChanges(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	initial := baseTestConfig()
	writeWatcherTestConfig(t, cfgPath, initial)

	watcher := NewWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) {
		changed <- true
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	updated := baseTestConfig()
	updated.ExitWindowMins = 10 // non-risk field
	writeWatcherTestConfig(t, cfgPath, updated)
	watcher.checkForChanges()

	select {
	case <-changed:
		t.Error("should NOT fire callback for non-risk changes")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_IgnoresValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	initial := baseTestConfig()
	writeWatcherTestConfig(t, cfgPath, initial)

	watcher := NewWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) {
		changed <- true
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	updated := baseTestConfig()
	updated.Decision.Risk.MaxDailyLossUSD = 0 // invalid
	writeWatcherTestConfig(t, cfgPath, updated)
	watcher.checkForChanges()

	select {
	case <-changed:
		t.Error("should NOT fire callback for invalid config")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRiskConfigChanged(t *testing.T) {
	base := decision.RiskConfig{
		MaxRiskUSDPerTrade:   15,
		MaxStopTicks:         12,
		MaxTradesPerDay:      2,
		MaxDailyLossUSD:      30,
		MaxConsecutiveLosses: 2,
	}

	if riskConfigChanged(base, base) {
		t.Error("identical configs should not be flagged as changed")
	}

	modified := base
	modified.MaxTradesPerDay = 5
	if !riskConfigChanged(base, modified) {
		t.Error("should detect MaxTradesPerDay change")
	}

	modified2 := base
	modified2.MaxConsecutiveLosses = 4
	if !riskConfigChanged(base, modified2) {
		t.Error("should detect MaxConsecutiveLosses change")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")
	writeWatcherTestConfig(t, cfgPath, baseTestConfig())

	watcher := NewWatcher(cfgPath, baseTestConfig(), watcherLogger())
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	watcher.Stop()
	watcher.Stop()
	watcher.Stop()
}

// Package config - watcher.go provides config file hot-reload support.
//
// The watcher polls the config file for changes (stat-based, every 5
// seconds) and notifies registered callbacks when risk parameters
// change.
//
// Only decision.RiskConfig is reloadable. Broker config, database URL,
// trading mode, and other structural settings require an engine restart.
package config

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/onebar-systems/onebar/internal/decision"
)

// Watcher monitors the config file for changes and invokes callbacks
// when risk-related fields change. It uses stat-based polling (no
// external dependencies like fsnotify required).
type Watcher struct {
	path     string
	logger   *log.Logger
	mu       sync.RWMutex
	current  *Config
	lastMod  time.Time
	onChange []func(old, new *Config)
	done     chan struct{}
	stopped  bool
}

// NewWatcher creates a watcher for the given config file path. initial
// is the currently loaded config. The watcher does not start until
// Start() is called.
func NewWatcher(path string, initial *Config, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Watcher{
		path:    path,
		logger:  logger,
		current: initial,
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback invoked when the config file changes
// and the new config passes validation. Multiple callbacks may be
// registered; they receive the old and new config values.
func (w *Watcher) OnChange(fn func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins polling the config file for changes. It returns
// immediately; the watcher runs in a background goroutine.
func (w *Watcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.logger.Printf("[config-watcher] watching %s for changes (poll interval: 5s)", w.path)

	go w.pollLoop()
	return nil
}

// Stop stops the config watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
		w.logger.Println("[config-watcher] stopped")
	}
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *Watcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] stat error: %v", err)
		return
	}

	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] read error: %v", err)
		return
	}

	newCfg := Default()
	if err := json.Unmarshal(data, &newCfg); err != nil {
		w.logger.Printf("[config-watcher] parse error (keeping old config): %v", err)
		return
	}

	if err := newCfg.Validate(); err != nil {
		w.logger.Printf("[config-watcher] validation error (keeping old config): %v", err)
		return
	}

	w.mu.RLock()
	oldCfg := w.current
	w.mu.RUnlock()

	if !riskConfigChanged(oldCfg.Decision.Risk, newCfg.Decision.Risk) {
		w.logger.Printf("[config-watcher] file changed but risk config unchanged, skipping")
		return
	}

	w.logRiskChanges(oldCfg.Decision.Risk, newCfg.Decision.Risk)

	w.mu.Lock()
	w.current = &newCfg
	callbacks := make([]func(old, new *Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(oldCfg, &newCfg)
	}
}

func riskConfigChanged(old, new decision.RiskConfig) bool {
	return old != new
}

func (w *Watcher) logRiskChanges(old, new decision.RiskConfig) {
	if old.MaxRiskUSDPerTrade != new.MaxRiskUSDPerTrade {
		w.logger.Printf("[config-watcher] max_risk_usd_per_trade: %.2f -> %.2f", old.MaxRiskUSDPerTrade, new.MaxRiskUSDPerTrade)
	}
	if old.MaxStopTicks != new.MaxStopTicks {
		w.logger.Printf("[config-watcher] max_stop_ticks: %d -> %d", old.MaxStopTicks, new.MaxStopTicks)
	}
	if old.MaxTradesPerDay != new.MaxTradesPerDay {
		w.logger.Printf("[config-watcher] max_trades_per_day: %d -> %d", old.MaxTradesPerDay, new.MaxTradesPerDay)
	}
	if old.MaxDailyLossUSD != new.MaxDailyLossUSD {
		w.logger.Printf("[config-watcher] max_daily_loss_usd: %.2f -> %.2f", old.MaxDailyLossUSD, new.MaxDailyLossUSD)
	}
	if old.MaxConsecutiveLosses != new.MaxConsecutiveLosses {
		w.logger.Printf("[config-watcher] max_consecutive_losses: %d -> %d", old.MaxConsecutiveLosses, new.MaxConsecutiveLosses)
	}
}

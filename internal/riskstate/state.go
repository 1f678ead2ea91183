// Package riskstate holds the process-wide RiskState: consumed daily
// loss, trade counts, kill-switch status. It is owned exclusively by
// the runner, which mutates it at the start of each bar cycle (daily
// rollover), from its fill and trade-outcome callbacks, and at its
// kill-switch policy step; every other component reads an immutable
// snapshot.
package riskstate

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// State is RiskState. All mutation happens through the methods below,
// which the runner is the sole caller of.
type State struct {
	mu sync.RWMutex

	consumedDailyLossUSD decimal.Decimal
	tradesToday          int
	consecutiveLosses    int
	killSwitchOn         bool
	killSwitchReason     string
	lastBrokerTruth      time.Time
	day                  int // YearDay, for daily reset
}

func New() *State {
	return &State{day: time.Now().UTC().YearDay()}
}

// Snapshot is the immutable, read-only view other components consume.
type Snapshot struct {
	ConsumedDailyLossUSD decimal.Decimal
	TradesToday          int
	ConsecutiveLosses    int
	KillSwitchOn         bool
	KillSwitchReason     string
	LastBrokerTruth      time.Time
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ConsumedDailyLossUSD: s.consumedDailyLossUSD,
		TradesToday:          s.tradesToday,
		ConsecutiveLosses:    s.consecutiveLosses,
		KillSwitchOn:         s.killSwitchOn,
		KillSwitchReason:     s.killSwitchReason,
		LastBrokerTruth:      s.lastBrokerTruth,
	}
}

// RolloverIfNewDay resets the daily counters (trades today, daily loss,
// consecutive losses) when `now` falls on a new calendar day from the
// last observed one.
// The kill switch is NOT reset by rollover — only a manual reset clears
// it.
func (s *State) RolloverIfNewDay(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := now.UTC().YearDay()
	if day != s.day {
		s.day = day
		s.tradesToday = 0
		s.consumedDailyLossUSD = decimal.Zero
		s.consecutiveLosses = 0
	}
}

// RecordTradeOpened increments the trades-today counter.
func (s *State) RecordTradeOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradesToday++
}

// RecordOutcome folds a closed trade's P&L into the daily loss
// accumulator and consecutive-loss counter.
func (s *State) RecordOutcome(actualPnLUSD decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actualPnLUSD.IsNegative() {
		s.consumedDailyLossUSD = s.consumedDailyLossUSD.Add(actualPnLUSD.Abs())
		s.consecutiveLosses++
	} else {
		s.consecutiveLosses = 0
	}
}

// ArmKillSwitch sets the fail-closed flag. Only the runner calls this,
// at its end-of-cycle kill-switch policy step.
func (s *State) ArmKillSwitch(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.killSwitchOn {
		s.killSwitchOn = true
		s.killSwitchReason = reason
	}
}

// ManualReset clears the kill switch. This is an explicit operator
// action, never automatic.
func (s *State) ManualReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitchOn = false
	s.killSwitchReason = ""
}

func (s *State) RecordBrokerTruth(ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBrokerTruth = ts
}

// Package trademanager implements C6: it owns every filled position
// from entry to exit, runs the four-rung exit ladder each bar (thesis
// invalidation, time exit, volatility exit, then the supervised
// stop/target bracket itself), and hands a terminal trade.Outcome to
// the learning loop once a position closes.
package trademanager

import (
	"context"
	"log"
	"time"

	"github.com/onebar-systems/onebar/internal/belief"
	"github.com/onebar-systems/onebar/internal/decision"
	"github.com/onebar-systems/onebar/internal/execution"
	"github.com/onebar-systems/onebar/internal/trade"
	"github.com/shopspring/decimal"
)

// LearningRecorder is the subset of C7's interface C6 needs. Decoupled
// via an interface so trademanager's tests don't need a real learning
// loop, and so trademanager never imports the learning package (which
// itself imports trade, not trademanager — see internal/trade's doc
// comment for why the split exists).
type LearningRecorder interface {
	Record(outcome trade.Outcome)
}

// Flattener is the subset of C5's interface C6 needs to force an exit
// and to supervise stop/target leg health, the ladder's fourth rung.
type Flattener interface {
	ForceExit(ctx context.Context, intentID, reason string) error
	LegWorking(intentID string, role execution.LegRole) bool
	RearmLeg(ctx context.Context, intentID string, role execution.LegRole) error
}

// maxRearmAttempts is how many times checkLadder will try to re-arm a
// dropped stop or target leg before giving up and flattening.
const maxRearmAttempts = 2

// Instrument carries the tick economics needed to convert a price move
// into ticks and dollars.
type Instrument struct {
	TickSize               float64
	TickValueUSD           float64
	RoundTripCommissionUSD float64
}

// Manager is C6.
type Manager struct {
	logger     *log.Logger
	exec       Flattener
	instrument Instrument
	learner    LearningRecorder

	positions     map[string]*trade.Position
	rearmAttempts map[string]int // tradeID -> consecutive failed re-arm attempts this bracket
}

func New(logger *log.Logger, exec Flattener, instrument Instrument, learner LearningRecorder) *Manager {
	return &Manager{
		logger:        logger,
		exec:          exec,
		instrument:    instrument,
		learner:       learner,
		positions:     make(map[string]*trade.Position),
		rearmAttempts: make(map[string]int),
	}
}

// OpenFromFill registers a new managed position once the execution
// supervisor's entry leg fills.
func (m *Manager) OpenFromFill(parent execution.ParentOrder, now time.Time) {
	spec := decision.SpecFor(parent.Intent.TemplateID)
	side := "BUY"
	if parent.Intent.Side == decision.Sell {
		side = "SELL"
	}
	pos := &trade.Position{
		TradeID:       parent.IntentID,
		ParentOrderID: parent.IntentID,
		EntryTime:     now,
		EntryPrice:    decimal.NewFromFloat(parent.Entry.FilledPrice),
		Quantity:      parent.Entry.FilledQty,
		Thesis:        trade.Thesis{ConstraintIndex: spec.ThesisConstraint, MinEffective: spec.ThesisFloor},
		MaxMinutes:    spec.MaxMinutes,
		VolExitATRMultiple: spec.VolExitATRMultiple,
		State:         trade.StateManaged,
		TemplateID:    string(spec.ID),
		Side:          side,
	}
	m.positions[pos.TradeID] = pos
	m.logger.Printf("[trademanager] opened %s qty=%d entry=%s", pos.TradeID, pos.Quantity, pos.EntryPrice)
}

// SetEntryContext stamps the regime, time-of-day bucket, and entry ATR
// onto an already-open position — these are bar-cycle facts the
// execution fill itself doesn't carry.
func (m *Manager) SetEntryContext(tradeID, regime, todBucket string, entryATR float64) {
	if pos, ok := m.positions[tradeID]; ok {
		pos.Regime = regime
		pos.TimeOfDayBucket = todBucket
		pos.EntryATR = entryATR
	}
}

// Tick runs the exit ladder for every open position. currentPrice and
// currentATR are the latest bar's close and ATR-14.
func (m *Manager) Tick(ctx context.Context, now time.Time, beliefs belief.State, currentPrice, currentATR float64) {
	for tradeID, pos := range m.positions {
		if pos.State == trade.StateExiting || pos.State == trade.StateExited {
			continue
		}

		if reason, shouldExit := m.checkLadder(ctx, now, pos, beliefs, currentPrice, currentATR); shouldExit {
			pos.State = trade.StateExiting
			if err := m.exec.ForceExit(ctx, tradeID, reason); err != nil {
				m.logger.Printf("[trademanager] force exit %s (%s) failed: %v — will retry next tick", tradeID, reason, err)
				pos.State = trade.StateManaged
			}
		}
	}
}

// checkLadder evaluates all four managed-exit rungs in priority order:
// thesis invalidation, time exit, volatility exit, then supervised
// stop/target health. The fourth rung re-arms a stop or target leg that
// has dropped out of WORKING state; two consecutive failed re-arms
// flatten the position rather than leave it unprotected.
func (m *Manager) checkLadder(ctx context.Context, now time.Time, pos *trade.Position, beliefs belief.State, currentPrice, currentATR float64) (string, bool) {
	if beliefs.Constraints[pos.Thesis.ConstraintIndex].Effective < pos.Thesis.MinEffective {
		return "THESIS_INVALID", true
	}
	if now.Sub(pos.EntryTime) >= time.Duration(pos.MaxMinutes)*time.Minute {
		return "TIME_EXIT", true
	}
	if pos.EntryATR > 0 {
		move := currentPrice - pos.EntryPrice.InexactFloat64()
		if pos.Side == "SELL" {
			move = -move
		}
		if move <= -pos.VolExitATRMultiple*pos.EntryATR {
			return "VOL_EXIT", true
		}
	}
	if reason, shouldExit := m.checkLegHealth(ctx, pos); shouldExit {
		return reason, true
	}
	return "", false
}

// checkLegHealth is the ladder's fourth rung. It re-arms any stop or
// target leg that isn't WORKING; once a leg has failed to re-arm
// maxRearmAttempts times in a row, the position is flattened rather
// than left with a missing stop or target.
func (m *Manager) checkLegHealth(ctx context.Context, pos *trade.Position) (string, bool) {
	unhealthy := false
	for _, role := range []execution.LegRole{execution.LegStop, execution.LegTarget} {
		if m.exec.LegWorking(pos.TradeID, role) {
			continue
		}
		unhealthy = true
		if err := m.exec.RearmLeg(ctx, pos.TradeID, role); err != nil {
			m.logger.Printf("[trademanager] re-arm %s leg for %s failed: %v", role, pos.TradeID, err)
		} else {
			m.logger.Printf("[trademanager] re-armed %s leg for %s", role, pos.TradeID)
			delete(m.rearmAttempts, pos.TradeID)
			return "", false
		}
	}
	if !unhealthy {
		delete(m.rearmAttempts, pos.TradeID)
		return "", false
	}
	m.rearmAttempts[pos.TradeID]++
	if m.rearmAttempts[pos.TradeID] >= maxRearmAttempts {
		delete(m.rearmAttempts, pos.TradeID)
		return "STOP_TARGET_REARM_FAILED", true
	}
	return "", false
}

// OnExitFilled is wired as the execution supervisor's exit callback. It
// converts the fill into a terminal trade.Outcome and hands it to the
// learning loop.
func (m *Manager) OnExitFilled(parent execution.ParentOrder, role execution.LegRole, exitPrice float64, exitTime time.Time) {
	pos, ok := m.positions[parent.IntentID]
	if !ok {
		return
	}
	delete(m.positions, parent.IntentID)
	delete(m.rearmAttempts, parent.IntentID)
	pos.State = trade.StateExited

	entryPrice := pos.EntryPrice.InexactFloat64()
	directionalMove := exitPrice - entryPrice
	if pos.Side == "SELL" {
		directionalMove = -directionalMove
	}
	grossPnLTicks := directionalMove / m.instrument.TickSize
	grossPnLUSD := decimal.NewFromFloat(directionalMove / m.instrument.TickSize * m.instrument.TickValueUSD)
	commission := decimal.NewFromFloat(m.instrument.RoundTripCommissionUSD)
	actualPnL := grossPnLUSD.Sub(commission)

	outcome := trade.Outcome{
		TradeID:                pos.TradeID,
		TemplateID:             pos.TemplateID,
		Regime:                 pos.Regime,
		TimeOfDayBucket:        pos.TimeOfDayBucket,
		EntryTime:              pos.EntryTime,
		ExitTime:               exitTime,
		EntryPrice:             pos.EntryPrice,
		ExitPrice:              decimal.NewFromFloat(exitPrice),
		GrossPnLTicks:          decimal.NewFromFloat(grossPnLTicks),
		GrossPnLUSD:            grossPnLUSD,
		RoundTripCommissionUSD: commission,
		ActualPnL:              actualPnL,
		Win:                    actualPnL.IsPositive(),
		AttributionBucket:      attributionBucket(string(role)),
	}

	m.logger.Printf("[trademanager] closed %s via %s: pnl_usd=%s win=%v", pos.TradeID, role, outcome.ActualPnL, outcome.Win)
	if m.learner != nil {
		m.learner.Record(outcome)
	}
}

// attributionBucket maps the leg that closed the trade to a coarse
// attribution code for the learning loop's reporting surface.
func attributionBucket(role string) string {
	switch role {
	case "TARGET":
		return "A1"
	case "STOP":
		return "A2"
	default:
		return "A9" // managed exit: thesis/time/volatility
	}
}

// OpenPositions exposes a snapshot of currently managed trades for the
// runner's readiness reporting.
func (m *Manager) OpenPositions() []trade.Position {
	out := make([]trade.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Package runner implements C9: the single bar-cycle loop that owns
// every other component and is the only place RiskState is mutated.
// One call to RunBarCycle is one bar: persist, score, believe, decide,
// gate, execute, drain, learn, and finally apply kill-switch policy.
package runner

import (
	"context"
	"log"
	"time"

	"github.com/onebar-systems/onebar/internal/bardata"
	"github.com/onebar-systems/onebar/internal/belief"
	"github.com/onebar-systems/onebar/internal/broker"
	"github.com/onebar-systems/onebar/internal/decision"
	"github.com/onebar-systems/onebar/internal/eventlog"
	"github.com/onebar-systems/onebar/internal/execution"
	"github.com/onebar-systems/onebar/internal/learning"
	"github.com/onebar-systems/onebar/internal/market"
	"github.com/onebar-systems/onebar/internal/metrics"
	"github.com/onebar-systems/onebar/internal/permission"
	"github.com/onebar-systems/onebar/internal/quality"
	"github.com/onebar-systems/onebar/internal/reason"
	"github.com/onebar-systems/onebar/internal/riskstate"
	"github.com/onebar-systems/onebar/internal/signal"
	"github.com/onebar-systems/onebar/internal/trade"
	"github.com/onebar-systems/onebar/internal/trademanager"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// reliabilityAdapter satisfies decision.ReliabilityLookup over a real
// learning.Loop, converting learning.Metrics to decision.MetricsView so
// C4 never needs to import C7.
type reliabilityAdapter struct{ loop *learning.Loop }

func (a reliabilityAdapter) MetricsFor(key trade.Key) decision.MetricsView {
	m := a.loop.MetricsFor(key)
	return decision.MetricsView{WilsonLowerBound: m.WilsonLowerBound, EUCCostMultiplier: m.EUCCostMultiplier}
}

// EventLog is the durable append-only sink the runner writes every
// bar-cycle artifact to. Decoupled via an interface so the runner's own
// tests don't need a real database.
type EventLog interface {
	Append(ctx context.Context, streamID, eventType string, payload interface{}) error
}

// Config bundles every sub-component's configuration.
type Config struct {
	Symbol         string
	RunID          string
	Signal         signal.Config
	Quality        quality.Config
	Decision       decision.Config
	Execution      execution.Config
	ExitWindowMins int
	SaveEveryN     int
	PersistPath    string
}

func DefaultConfig(symbol, runID string) Config {
	decisionCfg := decision.DefaultConfig()
	execCfg := execution.DefaultConfig(runID)
	execCfg.TickSize = decisionCfg.Instrument.TickSize

	return Config{
		Symbol:         symbol,
		RunID:          runID,
		Signal:         signal.DefaultConfig(),
		Quality:        quality.DefaultConfig(),
		Decision:       decisionCfg,
		Execution:      execCfg,
		ExitWindowMins: 5,
		SaveEveryN:     1,
		PersistPath:    "learning_state.json",
	}
}

// Runner is C9.
type Runner struct {
	cfg    Config
	logger *log.Logger
	cal    *market.Calendar

	signalEngine *signal.Engine
	scorer       *quality.Scorer
	decisionEng  *decision.Engine
	learner      *learning.Loop
	risk         *riskstate.State
	exec         *execution.Supervisor
	tradeMgr     *trademanager.Manager
	brk          broker.Adapter
	eventLog     EventLog

	beliefs           belief.State
	executionOn       bool
	reconcileFailures int
}

// New wires every component together. brk must already have been
// constructed (so it can be connected before the first bar); eventLog
// may be nil, in which case bar artifacts are not persisted.
func New(cfg Config, logger *log.Logger, cal *market.Calendar, brk broker.Adapter, eventLog EventLog) *Runner {
	learner := learning.New(logger, cfg.PersistPath, cfg.SaveEveryN)
	learner.LoadState()

	risk := riskstate.New()
	exec := execution.New(cfg.Execution, logger, brk)
	instr := instrumentOf(cfg.Decision)

	r := &Runner{
		cfg:          cfg,
		logger:       logger,
		cal:          cal,
		signalEngine: signal.New(cfg.Signal, cal),
		scorer:       quality.New(cfg.Quality),
		decisionEng:  decision.New(cfg.Decision),
		learner:      learner,
		risk:         risk,
		exec:         exec,
		brk:          brk,
		eventLog:     eventLog,
		beliefs:      belief.NewState(),
		executionOn:  true,
	}
	r.tradeMgr = trademanager.New(logger, exec, instr, eventRecordingRecorder{loop: learner, runner: r})

	exec.OnEntryFilled(func(p execution.ParentOrder) {
		r.tradeMgr.OpenFromFill(p, time.Now())
		risk.RecordTradeOpened()
		r.appendEvent(context.Background(), "FILL", p)
		metrics.IncFill(string(p.Intent.TemplateID))
	})
	exec.OnExitFilled(func(p execution.ParentOrder, role execution.LegRole, price float64, ts time.Time) {
		r.tradeMgr.OnExitFilled(p, role, price, ts)
	})

	return r
}

// eventRecordingRecorder satisfies trademanager.LearningRecorder,
// forwarding every closed-trade outcome to the learning loop and to the
// durable event log in the same call.
type eventRecordingRecorder struct {
	loop   *learning.Loop
	runner *Runner
}

func (r eventRecordingRecorder) Record(outcome trade.Outcome) {
	if transition := r.loop.Record(outcome); transition != nil {
		r.runner.appendEvent(context.Background(), string(eventlog.KindLearningUpdate), transition)
	}
	r.runner.risk.RecordOutcome(outcome.ActualPnL)
	r.runner.appendEvent(context.Background(), "TRADE_EXIT", outcome)
	metrics.IncTradeExit(outcome.TemplateID, outcome.Win)
}

func instrumentOf(cfg decision.Config) trademanager.Instrument {
	return trademanager.Instrument{
		TickSize:               cfg.Instrument.TickSize,
		TickValueUSD:           cfg.Instrument.TickValueUSD,
		RoundTripCommissionUSD: cfg.Instrument.RoundTripCommissionUSD,
	}
}

// SetExecutionEnabled toggles OBSERVE/LIVE at runtime — the operator
// surface cmd/onebar exposes over this.
func (r *Runner) SetExecutionEnabled(on bool) { r.executionOn = on }

// RunBarCycle is one full pass of the bar loop for a newly closed bar.
// history must include the new bar as its last element.
func (r *Runner) RunBarCycle(ctx context.Context, now time.Time, history []bardata.Bar, equityUSD float64, daysToExpiry int, behavior []quality.OrderBehaviorSample) {
	r.risk.RolloverIfNewDay(now)
	bar := history[len(history)-1]

	r.appendEvent(ctx, "BAR", bar)
	metrics.IncBarProcessed(r.cfg.Symbol)
	metrics.SetAccountEquityUSD(equityUSD)
	consumed, _ := r.risk.Snapshot().ConsumedDailyLossUSD.Float64()
	metrics.SetConsumedDailyLossUSD(consumed)

	dvs, eqs := r.scorer.Score(bar, history, signal.ATR14(history), behavior)
	r.appendEvent(ctx, "QUALITY", map[string]float64{"dvs": dvs, "eqs": eqs})
	metrics.SetDataQualityScore(dvs)
	metrics.SetEntryQualityScore(eqs)

	sv, err := r.signalEngine.Compute(history)
	if err != nil {
		r.logger.Printf("[runner] signal compute skipped: %v", err)
		return
	}
	r.appendEvent(ctx, "SIGNALS", sv)

	phase := r.cal.Phase(now)
	r.beliefs = belief.Update(r.beliefs, sv, phase, dvs, eqs)
	r.appendEvent(ctx, "BELIEFS", r.beliefs)

	if r.cal.WithinExitWindow(now, r.cfg.ExitWindowMins) {
		r.flattenEverythingForSessionClose(ctx)
	} else {
		riskSnap := r.risk.Snapshot()
		d := r.decisionEng.Decide(decision.Input{
			EquityUSD:    equityUSD,
			Beliefs:      r.beliefs,
			Signals:      sv,
			RiskSnapshot: riskSnap,
			Reliability:  reliabilityAdapter{loop: r.learner},
			DVS:          dvs,
			EQS:          eqs,
			Phase:        phase,
			Regime:       regimeOf(sv),
			TODBucket:    string(phase),
			DaysToExpiry: daysToExpiry,
			ExecutionOn:  r.executionOn,
		})
		r.appendEvent(ctx, "DECISION", d)

		if d.IsOrderIntent() {
			metrics.IncDecision(string(d.Intent().TemplateID), "order_intent")
			r.tryExecute(ctx, now, d.Intent(), daysToExpiry, dvs)
		} else {
			metrics.IncDecision("none", string(d.NoTradeReason()))
			r.logger.Printf("[runner] no trade: %s", d.NoTradeReason())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.exec.Tick(gctx)
		return nil
	})
	g.Go(func() error {
		return r.exec.Reconcile(gctx, r.cfg.Symbol)
	})
	reconcileErr := g.Wait()
	if reconcileErr != nil {
		r.reconcileFailures++
		r.logger.Printf("[runner] reconcile failed (attempt %d): %v", r.reconcileFailures, reconcileErr)
	} else {
		r.reconcileFailures = 0
	}
	r.tradeMgr.Tick(ctx, now, r.beliefs, bar.Close, signal.ATR14(history))

	snap, snapErr := r.brk.GetAccountSnapshot(ctx)
	if snapErr != nil {
		r.logger.Printf("[runner] account snapshot unavailable for kill-switch check: %v", snapErr)
	}
	// divergenceAfterRetry is true once reconciliation has failed to
	// correct a broker mismatch across two consecutive bars — the first
	// failure is the corrective attempt itself.
	divergenceAfterRetry := r.reconcileFailures >= 2
	r.applyKillSwitchPolicy(ctx, dvs, snap.BuyingPowerUSD, divergenceAfterRetry)
}

func (r *Runner) tryExecute(ctx context.Context, now time.Time, intent decision.OrderIntent, daysToExpiry int, dvs float64) {
	rc := permission.RuntimeContext{
		KillSwitchOn:       r.risk.Snapshot().KillSwitchOn,
		BrokerConnected:    r.brk.IsConnected(),
		BrokerAccountReady: true,
		ExecutionEnabled:   r.executionOn,
		DataQuality:        dvs,
		DataQualityFloor:   quality.DVSKill,
		DaysToExpiry:       daysToExpiry,
		MinDaysToExpiry:    r.cfg.Decision.Instrument.MinDaysToExpiry,
		LastBrokerTruth:    r.risk.Snapshot().LastBrokerTruth,
		MaxBrokerTruthAge:  5 * time.Minute,
		Now:                now,
	}
	if denial := permission.AssertExecutionAllowed(rc); denial != nil {
		r.logger.Printf("[runner] intent blocked: %s", denial.Error())
		r.appendEvent(ctx, "DECISION", map[string]string{"blocked": denial.Rule})
		return
	}

	intentID := intentIDFor(now, intent)
	if err := r.exec.SubmitIntent(ctx, r.cfg.Symbol, intentID, intent); err != nil {
		r.logger.Printf("[runner] submit intent failed: %v", err)
		return
	}
	r.appendEvent(ctx, "ORDER_INTENT", map[string]interface{}{"intent_id": intentID, "intent": intent})
	metrics.IncOrderIntent(string(intent.TemplateID))
}

// flattenAllOpenPositions forces every managed position closed and
// returns how many it attempted. Called from the session-exit rule and
// from kill-switch policy — the two places the runner ever flattens
// everything at once rather than a single ladder rung.
func (r *Runner) flattenAllOpenPositions(ctx context.Context, forceExitReason string) int {
	positions := r.tradeMgr.OpenPositions()
	for _, pos := range positions {
		if err := r.exec.ForceExit(ctx, pos.TradeID, forceExitReason); err != nil {
			r.logger.Printf("[runner] flatten of %s (%s) failed: %v", pos.TradeID, forceExitReason, err)
		}
	}
	return len(positions)
}

func (r *Runner) flattenEverythingForSessionClose(ctx context.Context) {
	n := r.flattenAllOpenPositions(ctx, string(reason.SessionExitFlatten))
	r.appendEvent(ctx, string(eventlog.KindSessionExitFlatten), map[string]int{"positions_flattened": n})
	metrics.IncDecision("none", string(reason.SessionExitFlatten))
}

// applyKillSwitchPolicy is the runner's sole kill-switch-arming point.
// It trips on DVS collapse, negative broker buying power, reconciliation
// divergence that survives its own corrective attempt, or the daily
// loss cap being breached. Only an operator clears it.
func (r *Runner) applyKillSwitchPolicy(ctx context.Context, dvs, buyingPowerUSD float64, reconcileDivergence bool) {
	snap := r.risk.Snapshot()
	if snap.KillSwitchOn {
		return
	}

	var rule reason.Code
	switch {
	case dvs < quality.DVSKill:
		rule = reason.DataQualityCritical
	case buyingPowerUSD < 0:
		rule = reason.NegativeBuyingPower
	case reconcileDivergence:
		rule = reason.ReconciliationMismatch
	case snap.ConsumedDailyLossUSD.GreaterThanOrEqual(decimal.NewFromFloat(r.cfg.Decision.Risk.MaxDailyLossUSD)):
		rule = reason.DailyLossCapHit
	default:
		return
	}

	r.risk.ArmKillSwitch(string(rule))
	r.appendEvent(ctx, "KILL_SWITCH", map[string]string{"rule": string(rule)})
	metrics.IncKillSwitchTrip(string(rule))
	r.flattenAllOpenPositions(ctx, string(rule))
}

func (r *Runner) appendEvent(ctx context.Context, eventType string, payload interface{}) {
	if r.eventLog == nil {
		return
	}
	if err := r.eventLog.Append(ctx, r.cfg.Symbol, eventType, payload); err != nil {
		r.logger.Printf("[runner] event log append failed (%s): %v", eventType, err)
	}
}

func regimeOf(sv bardata.SignalVector) string {
	if sv.Get(bardata.STrendSlope) > 0 {
		return "TREND_UP"
	}
	if sv.Get(bardata.STrendSlope) < 0 {
		return "TREND_DOWN"
	}
	return "RANGE"
}

func intentIDFor(now time.Time, intent decision.OrderIntent) string {
	return string(intent.TemplateID) + "-" + now.Format("20060102T150405.000")
}

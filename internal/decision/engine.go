package decision

import (
	"math"

	"github.com/onebar-systems/onebar/internal/bardata"
	"github.com/onebar-systems/onebar/internal/belief"
	"github.com/onebar-systems/onebar/internal/reason"
	"github.com/onebar-systems/onebar/internal/riskstate"
	"github.com/onebar-systems/onebar/internal/trade"
	"github.com/shopspring/decimal"
)

// RiskConfig is the constitution's hard caps.
type RiskConfig struct {
	MaxRiskUSDPerTrade   float64 `json:"max_risk_usd_per_trade"`
	MaxStopTicks         int     `json:"max_stop_ticks"`
	MaxTradesPerDay      int     `json:"max_trades_per_day"`
	MaxDailyLossUSD      float64 `json:"max_daily_loss_usd"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxRiskUSDPerTrade:   15,
		MaxStopTicks:         12,
		MaxTradesPerDay:      2,
		MaxDailyLossUSD:      30,
		MaxConsecutiveLosses: 2,
	}
}

// InstrumentConfig is the traded instrument's tick economics.
type InstrumentConfig struct {
	TickSize               float64 `json:"tick_size"`
	TickValueUSD           float64 `json:"tick_value_usd"`
	RoundTripCommissionUSD float64 `json:"round_trip_commission_usd"`
	MinDaysToExpiry        int     `json:"min_days_to_expiry"`
}

func DefaultInstrumentConfig() InstrumentConfig {
	return InstrumentConfig{TickSize: 0.25, TickValueUSD: 1.25, RoundTripCommissionUSD: 2.50, MinDaysToExpiry: 5}
}

// UncertaintyWeights are the explicit weights for the blended uncertainty score.
type UncertaintyWeights struct {
	DVS       float64 `json:"dvs"`
	EQS       float64 `json:"eqs"`
	Stability float64 `json:"stability"`
	Effective float64 `json:"effective"`
}

func DefaultUncertaintyWeights() UncertaintyWeights {
	return UncertaintyWeights{DVS: 0.30, EQS: 0.25, Stability: 0.25, Effective: 0.20}
}

// Config bundles everything C4 needs besides per-call inputs.
type Config struct {
	Risk       RiskConfig
	Instrument InstrumentConfig
	Weights    UncertaintyWeights

	EdgeMin        float64
	UncertaintyMax float64
	CostMax        float64

	DVSMin  float64
	EQSMin  float64
}

func DefaultConfig() Config {
	return Config{
		Risk:           DefaultRiskConfig(),
		Instrument:     DefaultInstrumentConfig(),
		Weights:        DefaultUncertaintyWeights(),
		EdgeMin:        0.10,
		UncertaintyMax: 0.40,
		CostMax:        0.30,
		DVSMin:         0.80,
		EQSMin:         0.75,
	}
}

// ReliabilityLookup is the subset of C7's interface C4 needs: Wilson
// lower-bound win rate and the EUC cost multiplier per key. Decoupled
// from *learning.Loop via an interface so the decision engine's tests
// don't need a real learning loop.
type ReliabilityLookup interface {
	MetricsFor(key trade.Key) MetricsView
}

// MetricsView is the subset of learning.Metrics the decision engine
// reads. learning.Metrics satisfies this via an adapter in the runner.
type MetricsView struct {
	WilsonLowerBound  float64
	EUCCostMultiplier float64
}

// Input bundles one bar-cycle's worth of inputs to Decide.
type Input struct {
	EquityUSD     float64
	Beliefs       belief.State
	Signals       bardata.SignalVector
	RiskSnapshot  riskstate.Snapshot
	Reliability   ReliabilityLookup
	DVS, EQS      float64
	Phase         bardata.SessionPhase
	Regime        string
	TODBucket     string
	DaysToExpiry  int
	ExecutionOn   bool
}

// Engine is C4.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine { return &Engine{cfg: cfg} }

// Decide implements the full tier-gate -> template-detect -> EUC-score -> size hierarchy.
func (e *Engine) Decide(in Input) Decision {
	mc := MarketContext{
		SessionOpen:      in.Phase != bardata.PhasePreMarket && in.Phase != bardata.PhasePostRTH,
		ExecutionEnabled: in.ExecutionOn,
		DataQuality:      in.DVS,
		DaysToExpiry:     in.DaysToExpiry,
		KillSwitchState:  in.RiskSnapshot.KillSwitchOn,
	}

	// 1. Kill switch.
	if in.RiskSnapshot.KillSwitchOn {
		return NoTrade(reason.KillSwitchActive)
	}

	// 2. Constitution.
	if in.RiskSnapshot.ConsumedDailyLossUSD.GreaterThanOrEqual(decimal.NewFromFloat(e.cfg.Risk.MaxDailyLossUSD)) {
		return NoTrade(reason.DailyLossCapHit)
	}
	if in.RiskSnapshot.TradesToday >= e.cfg.Risk.MaxTradesPerDay {
		return NoTrade(reason.TradesTodayCapHit)
	}
	if in.RiskSnapshot.ConsecutiveLosses >= e.cfg.Risk.MaxConsecutiveLosses {
		return NoTrade(reason.ConsecutiveLossCap)
	}

	// 3. Quality.
	if in.DVS < e.cfg.DVSMin {
		return NoTrade(reason.DVSGateFailed)
	}
	if in.EQS < e.cfg.EQSMin {
		return NoTrade(reason.EQSGateFailed)
	}

	// 4. Session.
	if in.Phase == bardata.PhasePreMarket || in.Phase == bardata.PhaseLunch || in.Phase == bardata.PhasePostRTH {
		return NoTrade(reason.SessionClosed)
	}

	// 5. Capital tier.
	tier, ok := tierFor(in.EquityUSD)
	if !ok {
		return NoTrade(reason.EquityTooLow)
	}

	// 6-7. Evaluate every tier-allowed, detected template; pick best EUC.
	type candidate struct {
		spec Spec
		euc  float64
		edge, uncertainty, cost float64
	}
	var best *candidate

	for _, id := range templatesAllowedForTier[tier] {
		spec := templateTable[id]
		if !Detect(spec, in.Beliefs) {
			continue
		}

		key := trade.Key{TemplateID: string(id), Regime: in.Regime, TOD: in.TODBucket}
		view := in.Reliability.MetricsFor(key)
		if math.IsInf(view.EUCCostMultiplier, 1) {
			continue // quarantined: C4 rejects outright
		}

		edge := edgeFor(spec, view.WilsonLowerBound)
		constraint := in.Beliefs.Constraints[spec.ThesisConstraint]
		uncertainty := e.cfg.Weights.DVS*(1-in.DVS) +
			e.cfg.Weights.EQS*(1-in.EQS) +
			e.cfg.Weights.Stability*(1-constraint.Stability) +
			e.cfg.Weights.Effective*(1-constraint.Effective)
		cost := costFor(spec, e.cfg.Instrument) * view.EUCCostMultiplier

		euc := edge - uncertainty - cost
		if edge < e.cfg.EdgeMin || uncertainty > e.cfg.UncertaintyMax || cost > e.cfg.CostMax || euc < 0 {
			continue
		}

		if best == nil || euc > best.euc {
			best = &candidate{spec: spec, euc: euc, edge: edge, uncertainty: uncertainty, cost: cost}
		}
	}

	if best == nil {
		return NoTrade(reason.EUCRejected)
	}

	// 8. Stop distance.
	stopTicks := minInt(e.cfg.Risk.MaxStopTicks, best.spec.StopTicksMax)
	maxRiskStop := int(math.Floor(e.cfg.Risk.MaxRiskUSDPerTrade / e.cfg.Instrument.TickValueUSD))
	stopTicks = minInt(stopTicks, maxRiskStop)
	if stopTicks < best.spec.StopTicksMin {
		return NoTrade(reason.StopTooTightOrWide)
	}

	// 9. Position size.
	maxRiskUSD := math.Min(e.cfg.Risk.MaxRiskUSDPerTrade, 0.02*in.EquityUSD)
	size := int(math.Floor(maxRiskUSD / (float64(stopTicks) * e.cfg.Instrument.TickValueUSD)))
	if size <= 0 {
		return NoTrade(reason.SizeZero)
	}

	entryClose := in.Signals.Get(bardata.SClose)
	entryLimit := decimal.NewFromFloat(entryClose).Sub(decimal.NewFromFloat(e.cfg.Instrument.TickSize))

	intent := OrderIntent{
		TemplateID:    best.spec.ID,
		Side:          Buy,
		EntryLimit:    entryLimit,
		StopTicks:     stopTicks,
		TargetTicks:   best.spec.TargetTicks,
		Size:          size,
		EUCScore:      best.euc,
		MarketContext: mc,
	}
	return NewOrderIntent(intent)
}

// edgeFor computes Edge = E_R * P_lb, saturated into [0,1] via a simple
// logistic-style saturation so widely varying expected-reward scales
// across templates don't dominate the EUC comparison.
func edgeFor(spec Spec, winProbLB float64) float64 {
	raw := spec.ExpectedRewardTicks * winProbLB
	return raw / (raw + spec.ExpectedRewardTicks)
}

// costFor computes (base_friction + slippage_model) / expected_move.
func costFor(spec Spec, instr InstrumentConfig) float64 {
	baseFriction := instr.RoundTripCommissionUSD / instr.TickValueUSD // in ticks
	slippageModel := 1.0                                             // one tick of modeled slippage
	if spec.ExpectedMoveTicks == 0 {
		return 1
	}
	return (baseFriction + slippageModel) / spec.ExpectedMoveTicks
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

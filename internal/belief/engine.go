// Package belief implements C3: aggregation of the C1 signal vector
// into six smoothed constraint likelihoods (F1..F6).
//
// The evidence-to-likelihood step is a small sparse logistic regression
// per constraint — same sigmoid-of-weighted-evidence shape as the
// reference directional-bias micro-model, just with fixed weights
// rather than a trained model: the weight matrix is a fixed, versioned
// asset rather than something this core trains.
package belief

import (
	"math"

	"github.com/onebar-systems/onebar/internal/bardata"
)

// ConstraintCount is the fixed number of constraints F1..F6.
const ConstraintCount = 6

const (
	F1 = iota // K1 template entry thesis
	F2        // K2 template entry thesis
	F3        // K3 template entry thesis
	F4        // K4 template entry thesis
	F5        // shared trend/participation confirmation
	F6        // meta noise filter — suppresses trading under high friction
)

// decayLambda is the per-constraint EWMA smoothing rate: F1 decays
// slowest at 0.96, F5 fastest among the thesis/confirmation constraints
// at 0.94, and the meta noise filter F6 slowest overall at 0.97.
var decayLambda = [ConstraintCount]float64{
	F1: 0.96,
	F2: 0.955,
	F3: 0.95,
	F4: 0.945,
	F5: 0.94,
	F6: 0.97,
}

// weight ties one signal index to one constraint with a fixed
// coefficient. The matrix is intentionally sparse: most signals feed
// 1-3 constraints.
type weight struct {
	signal     int
	constraint int
	coeff      float64
}

// evidenceMatrix is the fixed constraint-signal weight matrix. It is a
// versioned asset, not something this core learns online.
var evidenceMatrix = []weight{
	// F1: momentum/trend continuation thesis.
	{bardata.SMomentum10, F1, 0.9},
	{bardata.STrendSlope, F1, 0.7},
	{bardata.SVolumeZ, F1, 0.3},
	{bardata.SBuyPressure, F1, 0.4},

	// F2: mean-reversion thesis.
	{bardata.SBollingerZ, F2, -0.8},
	{bardata.SDistanceFromVWAP, F2, -0.6},
	{bardata.SRSI14, F2, -0.5},

	// F3: breakout thesis.
	{bardata.SHighLowRange, F3, 0.5},
	{bardata.SVolumeRatio5, F3, 0.6},
	{bardata.SRangeATR14, F3, 0.3},

	// F4: participation/momentum acceleration thesis.
	{bardata.SPriceAcceleration, F4, 0.7},
	{bardata.SVolumeTrend, F4, 0.5},
	{bardata.SMomentum20, F4, 0.4},

	// F5: shared trend/participation confirmation, feeds all templates.
	{bardata.SVWAPSlope, F5, 0.6},
	{bardata.SParticipationRate, F5, 0.4},
	{bardata.SRelativeVolume, F5, 0.3},

	// F6: noise filter — high spread/quote-age/ATR-ratio raises friction.
	{bardata.SSpreadTicks, F6, 0.5},
	{bardata.SATRRatio, F6, 0.4},
	{bardata.SDelayedFlag, F6, 0.8},
}

// bias is the per-constraint sigmoid bias term b_i.
var bias = [ConstraintCount]float64{
	F1: -0.2, F2: -0.2, F3: -0.3, F4: -0.2, F5: -0.1, F6: -1.5,
}

// Constraint is the persisted state for a single F_i.
type Constraint struct {
	Likelihood    float64
	Stability     float64
	Applicability float64
	Effective     float64
	DecayLambda   float64
}

// State is the full BeliefState: one Constraint per F1..F6, carried
// across bars.
type State struct {
	Constraints [ConstraintCount]Constraint
}

// NewState returns a cold-start BeliefState: neutral likelihood, zero
// stability, zero applicability until the first gated update.
func NewState() State {
	var s State
	for i := range s.Constraints {
		s.Constraints[i] = Constraint{
			Likelihood:  0.5,
			Stability:   0,
			DecayLambda: decayLambda[i],
		}
	}
	return s
}

// stabilityAlpha is the EWMA rate for the stability tracker, distinct
// from each constraint's own decay_lambda.
const stabilityAlpha = 0.90

// Update implements C3's contract: update(prev, signals, phase, DVS,
// EQS) -> BeliefState.
func Update(prev State, sv bardata.SignalVector, phase bardata.SessionPhase, dvs, eqs float64) State {
	var next State

	evidence := [ConstraintCount]float64{}
	for _, w := range evidenceMatrix {
		evidence[w.constraint] += w.coeff * sv.Get(w.signal)
	}

	for i := 0; i < ConstraintCount; i++ {
		instant := sigmoid(evidence[i] + bias[i])

		lambda := decayLambda[i]
		smoothed := lambda*prev.Constraints[i].Likelihood + (1-lambda)*instant

		delta := math.Abs(smoothed - prev.Constraints[i].Likelihood)
		stability := stabilityAlpha*prev.Constraints[i].Stability + (1-stabilityAlpha)*(1-delta)

		applicability := gSession(phase, i) * gDVS(dvs) * gEQS(eqs)
		effective := smoothed * applicability

		next.Constraints[i] = Constraint{
			Likelihood:    smoothed,
			Stability:     clamp01(stability),
			Applicability: applicability,
			Effective:     effective,
			DecayLambda:   lambda,
		}
	}

	return next
}

func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

// gSession sharply zeros applicability for trade-seeking constraints
// (F1..F5) during the lunch void and non-RTH phases; F6 (the noise
// filter) stays applicable everywhere so it can still suppress trading.
func gSession(phase bardata.SessionPhase, constraint int) float64 {
	if constraint == F6 {
		return 1.0
	}
	switch phase {
	case bardata.PhaseLunch, bardata.PhasePreMarket, bardata.PhasePostRTH, bardata.PhaseOpeningNoTrade:
		return 0
	case bardata.PhaseClosing:
		return 0.5
	default:
		return 1.0
	}
}

// gDVS sharply zeros applicability below DVS 0.80: below that floor the
// feed itself isn't trustworthy enough to act on, regardless of belief.
func gDVS(dvs float64) float64 {
	if dvs < 0.80 {
		return 0
	}
	return 1.0
}

// gEQS scales down smoothly rather than sharply, since EQS affects
// execution quality, not data trustworthiness.
func gEQS(eqs float64) float64 {
	return clamp01(eqs)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

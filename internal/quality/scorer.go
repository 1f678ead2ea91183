// Package quality implements C2: two scalar scores — Data Validity
// Score (DVS) and Execution Quality Score (EQS) — derived from a bar's
// provenance and the broker's recent fill/ack behavior.
//
// The degrade-from-1.0-on-evidence shape follows the composite risk
// score in the reference polymarket risk gate (percentage deductions
// accumulated against a clean baseline, floored at 0), generalized from
// a single risk score into two independent scores.
package quality

import (
	"time"

	"github.com/onebar-systems/onebar/internal/bardata"
)

// Fixed thresholds — the only numeric thresholds held constant across
// instruments; everything else here is configuration.
const (
	DVSMinToTrade = 0.80
	EQSMinToTrade = 0.75
	DVSKill       = 0.30
)

// Config holds the degradation sensitivities.
type Config struct {
	MaxBarGap          time.Duration // beyond this, DVS degrades for a stale feed
	SpreadTicksMax      float64
	TickSize            float64
	OutlierATRMultiple float64
	SlippageBandTicks   float64
	AckLatencyMax       time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBarGap:          90 * time.Second,
		SpreadTicksMax:     4,
		TickSize:           0.25,
		OutlierATRMultiple: 4,
		SlippageBandTicks:  2,
		AckLatencyMax:      2 * time.Second,
	}
}

// OrderBehaviorSample summarizes one recent broker interaction used to
// compute EQS.
type OrderBehaviorSample struct {
	Rejected        bool
	AckLatency      time.Duration
	ExpectedTicks   float64
	ActualTicks     float64
}

// Scorer computes DVS/EQS. It is stateless; callers supply the rolling
// windows each call, the same pattern C1's Engine uses.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer { return &Scorer{cfg: cfg} }

// Score returns (DVS, EQS) for the current bar given recent bars (for
// gap/outlier detection) and recent broker behavior samples (for EQS).
func (s *Scorer) Score(bar bardata.Bar, recent []bardata.Bar, atr14 float64, behavior []OrderBehaviorSample) (dvs, eqs float64) {
	dvs = 1.0

	if len(recent) >= 2 {
		gap := bar.Timestamp.Sub(recent[len(recent)-2].Timestamp)
		if gap > s.cfg.MaxBarGap {
			dvs -= 0.35
		}
	}
	if bar.Provenance.GapObserved {
		dvs -= 0.15
	}
	if bar.Provenance.Delayed {
		dvs -= 0.25
	}

	spreadTicks := 0.0
	if s.cfg.TickSize > 0 {
		spreadTicks = (bar.Ask - bar.Bid) / s.cfg.TickSize
	}
	if spreadTicks > s.cfg.SpreadTicksMax {
		dvs -= 0.20
	}

	if atr14 > 0 && len(recent) >= 2 {
		prevClose := recent[len(recent)-2].Close
		if prevClose > 0 {
			move := absFloat(bar.Close-prevClose) / atr14
			if move > s.cfg.OutlierATRMultiple {
				dvs -= 0.30
			}
		}
	}

	if dvs < 0 {
		dvs = 0
	}

	eqs = 1.0
	if len(behavior) > 0 {
		var rejects int
		var slippageBreaches int
		var slowAcks int
		for _, b := range behavior {
			if b.Rejected {
				rejects++
			}
			if absFloat(b.ActualTicks-b.ExpectedTicks) > s.cfg.SlippageBandTicks {
				slippageBreaches++
			}
			if b.AckLatency > s.cfg.AckLatencyMax {
				slowAcks++
			}
		}
		n := float64(len(behavior))
		eqs -= 0.40 * (float64(rejects) / n)
		eqs -= 0.35 * (float64(slippageBreaches) / n)
		eqs -= 0.25 * (float64(slowAcks) / n)
	}
	if eqs < 0 {
		eqs = 0
	}

	return dvs, eqs
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

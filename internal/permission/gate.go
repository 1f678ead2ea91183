// Package permission implements C8: the fail-closed hard-blocker
// checklist every order intent must clear before C5 ever sees it. Each
// boolean check blocks when its field is false, so a zero-valued
// RuntimeContext is blocked. The broker-truth age check applies only
// when MaxBrokerTruthAge is positive and LastBrokerTruth is set; a zero
// LastBrokerTruth passes it. A zero DataQualityFloor passes any data
// quality score.
package permission

import (
	"time"
)

// RuntimeContext is everything the gate needs to evaluate.
type RuntimeContext struct {
	KillSwitchOn       bool
	BrokerConnected    bool
	BrokerAccountReady bool
	ExecutionEnabled   bool
	DataQuality        float64
	DataQualityFloor   float64
	DaysToExpiry       int
	MinDaysToExpiry    int
	LastBrokerTruth    time.Time
	MaxBrokerTruthAge  time.Duration
	Now                time.Time
}

// Denial explains exactly one reason execution was blocked.
type Denial struct {
	Rule    string
	Message string
}

func (d Denial) Error() string { return d.Rule + ": " + d.Message }

// AssertExecutionAllowed runs the ordered checklist and returns the
// first hard blocker encountered, or nil if every check clears. The
// order matters: the kill switch is checked before anything else can
// mask it, and broker-state checks precede the softer data-quality and
// expiry checks.
func AssertExecutionAllowed(rc RuntimeContext) *Denial {
	if rc.KillSwitchOn {
		return &Denial{Rule: "KILL_SWITCH", Message: "kill switch is armed"}
	}
	if !rc.BrokerConnected {
		return &Denial{Rule: "BROKER_DISCONNECTED", Message: "broker session is not open"}
	}
	if !rc.BrokerAccountReady {
		return &Denial{Rule: "BROKER_ACCOUNT_NOT_READY", Message: "broker account snapshot is not ready"}
	}
	if !rc.ExecutionEnabled {
		return &Denial{Rule: "EXECUTION_DISABLED", Message: "execution toggle is off (observe mode)"}
	}
	if rc.DataQuality < rc.DataQualityFloor {
		return &Denial{Rule: "DATA_QUALITY_CRITICAL", Message: "data validity score below the critical floor"}
	}
	if rc.DaysToExpiry < rc.MinDaysToExpiry {
		return &Denial{Rule: "TOO_CLOSE_TO_EXPIRY", Message: "fewer days to contract expiry than the configured minimum"}
	}
	if rc.MaxBrokerTruthAge > 0 && !rc.LastBrokerTruth.IsZero() && rc.Now.Sub(rc.LastBrokerTruth) > rc.MaxBrokerTruthAge {
		return &Denial{Rule: "BROKER_TRUTH_STALE", Message: "broker account/position snapshot has not refreshed recently enough"}
	}
	return nil
}

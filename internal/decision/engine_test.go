package decision

import (
	"math"
	"testing"

	"github.com/onebar-systems/onebar/internal/bardata"
	"github.com/onebar-systems/onebar/internal/belief"
	"github.com/onebar-systems/onebar/internal/riskstate"
	"github.com/onebar-systems/onebar/internal/trade"
)

type fakeReliability struct{ view MetricsView }

func (f fakeReliability) MetricsFor(trade.Key) MetricsView { return f.view }

func activeBeliefs(effective float64) belief.State {
	s := belief.NewState()
	s.Constraints[0].Effective = effective
	s.Constraints[0].Stability = 0.9
	return s
}

func TestDecideKillSwitchShortCircuits(t *testing.T) {
	e := New(DefaultConfig())
	in := Input{
		EquityUSD:    3000,
		Beliefs:      activeBeliefs(0.8),
		RiskSnapshot: riskstate.Snapshot{KillSwitchOn: true},
		Reliability:  fakeReliability{view: MetricsView{WilsonLowerBound: 0.6, EUCCostMultiplier: 1.0}},
		DVS:          0.95, EQS: 0.95,
		Phase: bardata.PhaseMidMorning,
	}
	d := e.Decide(in)
	if d.IsOrderIntent() {
		t.Fatal("expected NoTrade when kill switch is on")
	}
}

func TestDecideEmitsOrderIntentOnStrongK1(t *testing.T) {
	e := New(DefaultConfig())
	var sv bardata.SignalVector
	sv.Values[bardata.SClose] = 5000

	in := Input{
		EquityUSD:    3000, // tier A
		Beliefs:      activeBeliefs(0.72),
		Signals:      sv,
		RiskSnapshot: riskstate.Snapshot{},
		Reliability:  fakeReliability{view: MetricsView{WilsonLowerBound: 0.6, EUCCostMultiplier: 1.0}},
		DVS:          0.95, EQS: 0.92,
		Phase: bardata.PhaseMidMorning,
	}
	d := e.Decide(in)
	if !d.IsOrderIntent() {
		t.Fatalf("expected OrderIntent, got NoTrade(%s)", d.NoTradeReason())
	}
	if d.Intent().TemplateID != K1 {
		t.Errorf("expected K1, got %s", d.Intent().TemplateID)
	}
	if d.Intent().Size <= 0 {
		t.Errorf("expected positive size, got %d", d.Intent().Size)
	}
}

func TestDecideEquityTooLow(t *testing.T) {
	e := New(DefaultConfig())
	in := Input{
		EquityUSD:    1000,
		Beliefs:      activeBeliefs(0.9),
		RiskSnapshot: riskstate.Snapshot{},
		Reliability:  fakeReliability{view: MetricsView{WilsonLowerBound: 0.6, EUCCostMultiplier: 1.0}},
		DVS:          0.95, EQS: 0.95,
		Phase: bardata.PhaseMidMorning,
	}
	d := e.Decide(in)
	if d.IsOrderIntent() || d.NoTradeReason() != "EQUITY_TOO_LOW" {
		t.Fatalf("expected EQUITY_TOO_LOW, got %+v", d)
	}
}

func TestDecideQuarantinedTemplateSkipped(t *testing.T) {
	e := New(DefaultConfig())
	var sv bardata.SignalVector
	sv.Values[bardata.SClose] = 5000

	in := Input{
		EquityUSD:    3000,
		Beliefs:      activeBeliefs(0.9),
		Signals:      sv,
		RiskSnapshot: riskstate.Snapshot{},
		Reliability:  fakeReliability{view: MetricsView{WilsonLowerBound: 0.6, EUCCostMultiplier: math.Inf(1)}},
		DVS:          0.95, EQS: 0.95,
		Phase: bardata.PhaseMidMorning,
	}
	d := e.Decide(in)
	if d.IsOrderIntent() {
		t.Fatal("expected NoTrade when all detected templates are quarantined")
	}
}

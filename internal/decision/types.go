// Package decision implements C4: capital-tier-gated template selection
// scored by Edge - Uncertainty - Cost (EUC), emitting an order intent
// or a typed NoTrade skip.
//
// The TemplateID enum below replaces a class-inheritance strategy
// hierarchy: each of K1..K4 is a config record (Spec) in a static
// table, and all four share one Detect predicate and one EUC
// evaluation in Engine.Decide instead of virtual method calls. There
// are no per-template entry-planning or position-management functions;
// the trade manager reads a template's exit parameters through SpecFor.
package decision

import (
	"github.com/onebar-systems/onebar/internal/reason"
	"github.com/shopspring/decimal"
)

// TemplateID names one of the four closed entry templates.
type TemplateID string

const (
	K1 TemplateID = "K1"
	K2 TemplateID = "K2"
	K3 TemplateID = "K3"
	K4 TemplateID = "K4"
)

// Side is the order side for an entry.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Tier is a capital tier, gating which templates are allowed.
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
)

// MarketContext is stamped onto every Decision for audit.
type MarketContext struct {
	SessionOpen      bool
	ExecutionEnabled bool
	DataQuality      float64 // DVS at decision time
	DaysToExpiry     int
	KillSwitchState  bool
}

// OrderIntent is the OrderIntent arm of the Decision tagged variant.
type OrderIntent struct {
	TemplateID    TemplateID
	Side          Side
	EntryLimit    decimal.Decimal
	StopTicks     int
	TargetTicks   int
	Size          int
	EUCScore      float64
	MarketContext MarketContext
}

// Decision is the tagged variant C4 produces: either NoTrade(reason) or
// an OrderIntent. Exactly one of the two fields is meaningful; check
// IsOrderIntent first.
type Decision struct {
	isOrderIntent bool
	noTradeReason reason.Code
	intent        OrderIntent
}

func NoTrade(r reason.Code) Decision {
	return Decision{isOrderIntent: false, noTradeReason: r}
}

func NewOrderIntent(intent OrderIntent) Decision {
	return Decision{isOrderIntent: true, intent: intent}
}

func (d Decision) IsOrderIntent() bool       { return d.isOrderIntent }
func (d Decision) NoTradeReason() reason.Code { return d.noTradeReason }
func (d Decision) Intent() OrderIntent        { return d.intent }

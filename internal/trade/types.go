// Package trade defines the position and outcome types shared between
// the trade manager (C6, which produces them) and the learning loop
// (C7, which consumes them) without either package depending on the
// other.
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is a TradePosition's lifecycle stage.
type State string

const (
	StateOpen    State = "OPEN"
	StateManaged State = "MANAGED"
	StateExiting State = "EXITING"
	StateExited  State = "EXITED"
)

// Thesis names the constraint underpinning a trade and the minimum
// effective likelihood required to keep holding it.
type Thesis struct {
	ConstraintIndex int
	MinEffective    float64
}

// Position is a TradePosition: an in-flight or closed trade tracked by
// the trade manager.
type Position struct {
	TradeID          string
	ParentOrderID    string
	EntryTime        time.Time
	EntryPrice       decimal.Decimal
	Quantity         int
	Thesis           Thesis
	MaxMinutes       int
	VolExitATRMultiple float64
	EntryATR         float64
	State            State
	TemplateID       string
	Regime           string
	TimeOfDayBucket  string
	Side             string // BUY or SELL, futures can go either direction
}

// Outcome is a terminal TradeOutcome.
type Outcome struct {
	TradeID           string
	TemplateID        string
	Regime            string
	TimeOfDayBucket   string
	EntryTime         time.Time
	ExitTime          time.Time
	EntryPrice        decimal.Decimal
	ExitPrice         decimal.Decimal
	GrossPnLTicks     decimal.Decimal
	GrossPnLUSD       decimal.Decimal
	ExpectedSlippageTicks decimal.Decimal
	ActualSlippageTicks   decimal.Decimal
	RoundTripCommissionUSD decimal.Decimal
	ActualPnL         decimal.Decimal
	Win               bool
	AttributionBucket string // A0..A9
}

// Key identifies a ReliabilityMetrics bucket: (template, regime, tod).
type Key struct {
	TemplateID string
	Regime     string
	TOD        string
}

func (o Outcome) Key() Key {
	return Key{TemplateID: o.TemplateID, Regime: o.Regime, TOD: o.TimeOfDayBucket}
}

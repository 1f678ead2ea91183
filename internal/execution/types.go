// Package execution implements the execution supervisor: it turns an
// order intent into a broker-side bracket (entry + stop + target),
// tracks the bracket's state machine, enforces the OCO invariant
// between the stop and target legs, and reconciles local state against
// the broker's own snapshot every bar.
//
// Broker callbacks never mutate state directly — they are enqueued and
// drained at one explicit point per bar (Tick), the same redesign the
// source's async callback handlers get collapsed into.
package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/onebar-systems/onebar/internal/broker"
	"github.com/onebar-systems/onebar/internal/decision"
)

// State is a parent order's position in its lifecycle.
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StateAcked     State = "ACKED"
	StateFilled    State = "FILLED" // entry filled, stop+target now working
	StateExiting   State = "EXITING"
	StateClosed    State = "CLOSED"
	StateRejected  State = "REJECTED"
)

// LegRole names a child order's role within the bracket.
type LegRole string

const (
	LegEntry  LegRole = "ENTRY"
	LegStop   LegRole = "STOP"
	LegTarget LegRole = "TARGET"
	LegFlat   LegRole = "FLAT" // market flatten: ForceExit and reconciliation
)

// ChildOrder is one leg of a parent's bracket.
type ChildOrder struct {
	Role          LegRole
	ClientOrderID string
	BrokerOrderID string
	Kind          broker.Kind
	Side          broker.Side
	Qty           int
	Price         float64
	Acked         bool
	Filled        bool
	FilledQty     int
	FilledPrice   float64
	Canceled      bool
}

// ParentOrder is one entry-to-exit bracket, keyed by IntentID.
type ParentOrder struct {
	IntentID  string
	Symbol    string
	Intent    decision.OrderIntent
	State     State
	Entry     *ChildOrder
	Stop      *ChildOrder
	Target    *ChildOrder
	Flat      *ChildOrder
	OpenedAt  time.Time
	RetryCount int
}

// clientOrderID derives a deterministic, idempotent client order ID
// from the run and the intent, so a crash-and-restart resubmission of
// the same intent never double-fills at the broker.
func clientOrderID(runID, intentID string, role LegRole) string {
	h := sha256.Sum256([]byte(runID + "|" + intentID + "|" + string(role)))
	return hex.EncodeToString(h[:])[:20]
}

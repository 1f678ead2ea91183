// Package broker defines the broker abstraction layer.
//
// Design rules:
//   - Only one broker is active at a time.
//   - No decision or learning logic inside broker.
//   - Broker layer is effectively stateless: everything that must
//     survive a restart lives in the event log, not here.
//   - Broker APIs are used only for execution and account state.
package broker

import (
	"context"
	"fmt"
	"time"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Kind distinguishes the roles an order plays in a bracket. Market
// orders are reserved for the flatten path (forced exits and
// reconciliation) — they are never used to enter a position.
type Kind string

const (
	KindLimit  Kind = "LIMIT"
	KindStop   Kind = "STOP"
	KindTarget Kind = "TARGET"
	KindMarket Kind = "MARKET"
)

// AckStatus is the outcome of a submit call.
type AckStatus string

const (
	AckAccepted AckStatus = "ACCEPTED"
	AckRejected AckStatus = "REJECTED"
)

// OrderStatus is a broker-agnostic order lifecycle status, used to
// report order-status postbacks.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// AccountSnapshot is the broker's authoritative account state.
type AccountSnapshot struct {
	EquityUSD      float64
	BuyingPowerUSD float64
	MarginUsedUSD  float64
}

// PositionSnapshot is the broker's authoritative position for one
// instrument.
type PositionSnapshot struct {
	Qty      int
	AvgPrice float64
}

// OpenOrderSnapshot is one broker-side open order.
type OpenOrderSnapshot struct {
	BrokerOrderID string
	ClientOrderID string
	State         string
	Qty           int
	FilledQty     int
	Side          Side
	Kind          Kind
}

// Ack is the acknowledgment callback payload.
type Ack struct {
	ClientOrderID string
	BrokerOrderID string
	Status        AckStatus
	Reason        string
	Timestamp     time.Time
}

// Fill is the fill callback payload. (BrokerOrderID, FillID) is the
// dedup key the execution supervisor keys off when the same fill is
// redelivered.
type Fill struct {
	ClientOrderID string
	BrokerOrderID string
	FillID        string
	Qty           int
	Price         float64
	Timestamp     time.Time
}

// Reject is the rejection callback payload.
type Reject struct {
	ClientOrderID string
	Reason        string
	Timestamp     time.Time
}

// EventSink receives broker callbacks. Implementations must only
// enqueue — callbacks can arrive on whatever goroutine the transport
// client chooses, and the only safe thing to do with one is hand it to
// a queue the owner drains at a single point per bar.
type EventSink interface {
	OnAck(Ack)
	OnFill(Fill)
	OnReject(Reject)
	OnDisconnect(reason string)
	OnReconnect()
	OnBar(symbol string, timestamp time.Time)
}

// Adapter is the capability set every broker implementation satisfies.
// This is the only contract between the runner/execution supervisor and
// any concrete broker.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	GetPositionSnapshot(ctx context.Context) (map[string]PositionSnapshot, error)
	GetOpenOrdersSnapshot(ctx context.Context) ([]OpenOrderSnapshot, error)

	SubmitLimitOrder(ctx context.Context, clientOrderID string, side Side, qty int, limitPrice float64, ttl time.Duration) error
	SubmitStopOrder(ctx context.Context, clientOrderID string, side Side, qty int, stopPrice float64) error
	SubmitTargetOrder(ctx context.Context, clientOrderID string, side Side, qty int, targetPrice float64) error
	SubmitMarketFlatten(ctx context.Context, clientOrderID string, side Side, qty int) error

	CancelOrder(ctx context.Context, brokerOrderID string) error

	// RegisterSink wires the execution supervisor's event queue as the
	// callback target. Must be called before Connect.
	RegisterSink(sink EventSink)
}

// Registry maps broker names to their factory functions. New broker
// implementations register here from an init().
var Registry = map[string]func(configJSON []byte) (Adapter, error){}

// New creates a broker instance by name using the registry.
func New(name string, configJSON []byte) (Adapter, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("broker: unknown broker %q, registered: %v", name, registeredNames())
	}
	return factory(configJSON)
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}

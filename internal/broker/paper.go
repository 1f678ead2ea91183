// Package broker - paper.go implements a paper-trading broker for
// futures brackets. Fills are simulated immediately at the requested
// price: limit entries fill at their limit, stops and targets fill at
// their trigger. A more realistic simulator would fill against the next
// bar's OHLC, but the runner's own quality scorer already penalizes the
// slippage paper mode can't reproduce.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

func init() {
	Registry["paper"] = NewPaperBroker
}

// PaperConfig configures the paper broker.
type PaperConfig struct {
	Symbol        string  `json:"symbol"`
	InitialEquity float64 `json:"initial_equity"`
}

type pendingOrder struct {
	clientOrderID string
	side          Side
	kind          Kind
	qty           int
	price         float64
}

// PaperBroker simulates broker operations for the single traded
// instrument.
type PaperBroker struct {
	mu        sync.Mutex
	symbol    string
	connected bool
	equity    float64
	position  PositionSnapshot
	orders    map[string]*pendingOrder
	sink      EventSink
	nextID    int
}

// NewPaperBroker builds a PaperBroker from JSON config.
func NewPaperBroker(configJSON []byte) (Adapter, error) {
	cfg := PaperConfig{InitialEquity: 5000}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("paper broker: parse config: %w", err)
		}
	}
	return &PaperBroker{
		symbol: cfg.Symbol,
		equity: cfg.InitialEquity,
		orders: make(map[string]*pendingOrder),
	}, nil
}

func (pb *PaperBroker) RegisterSink(sink EventSink) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.sink = sink
}

func (pb *PaperBroker) Connect(_ context.Context) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.connected = true
	return nil
}

func (pb *PaperBroker) Disconnect(_ context.Context) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.connected = false
	return nil
}

func (pb *PaperBroker) IsConnected() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.connected
}

func (pb *PaperBroker) GetAccountSnapshot(_ context.Context) (AccountSnapshot, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return AccountSnapshot{EquityUSD: pb.equity, BuyingPowerUSD: pb.equity}, nil
}

func (pb *PaperBroker) GetPositionSnapshot(_ context.Context) (map[string]PositionSnapshot, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := map[string]PositionSnapshot{}
	if pb.position.Qty != 0 {
		out[pb.symbol] = pb.position
	}
	return out, nil
}

func (pb *PaperBroker) GetOpenOrdersSnapshot(_ context.Context) ([]OpenOrderSnapshot, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make([]OpenOrderSnapshot, 0, len(pb.orders))
	for brokerID, o := range pb.orders {
		out = append(out, OpenOrderSnapshot{
			BrokerOrderID: brokerID,
			ClientOrderID: o.clientOrderID,
			State:         "WORKING",
			Qty:           o.qty,
			Side:          o.side,
			Kind:          o.kind,
		})
	}
	return out, nil
}

func (pb *PaperBroker) submit(_ context.Context, clientOrderID string, side Side, kind Kind, qty int, price float64) error {
	pb.mu.Lock()
	pb.nextID++
	brokerID := fmt.Sprintf("PAPER-%d", pb.nextID)
	pb.orders[brokerID] = &pendingOrder{clientOrderID: clientOrderID, side: side, kind: kind, qty: qty, price: price}
	sink := pb.sink
	pb.mu.Unlock()

	if sink != nil {
		sink.OnAck(Ack{ClientOrderID: clientOrderID, BrokerOrderID: brokerID, Status: AckAccepted, Timestamp: time.Now()})
	}

	pb.mu.Lock()
	delete(pb.orders, brokerID)
	delta := qty
	if side == SideSell {
		delta = -qty
	}
	newQty := pb.position.Qty + delta
	if pb.position.Qty == 0 {
		pb.position.AvgPrice = price
	} else if (pb.position.Qty > 0) == (delta > 0) {
		pb.position.AvgPrice = (pb.position.AvgPrice*float64(pb.position.Qty) + price*float64(delta)) / float64(newQty)
	}
	pb.position.Qty = newQty
	pb.mu.Unlock()

	if sink != nil {
		sink.OnFill(Fill{
			ClientOrderID: clientOrderID,
			BrokerOrderID: brokerID,
			FillID:        brokerID + "-F1",
			Qty:           qty,
			Price:         price,
			Timestamp:     time.Now(),
		})
	}
	return nil
}

func (pb *PaperBroker) SubmitLimitOrder(ctx context.Context, clientOrderID string, side Side, qty int, limitPrice float64, _ time.Duration) error {
	return pb.submit(ctx, clientOrderID, side, KindLimit, qty, limitPrice)
}

func (pb *PaperBroker) SubmitStopOrder(ctx context.Context, clientOrderID string, side Side, qty int, stopPrice float64) error {
	return pb.submit(ctx, clientOrderID, side, KindStop, qty, stopPrice)
}

func (pb *PaperBroker) SubmitTargetOrder(ctx context.Context, clientOrderID string, side Side, qty int, targetPrice float64) error {
	return pb.submit(ctx, clientOrderID, side, KindTarget, qty, targetPrice)
}

func (pb *PaperBroker) SubmitMarketFlatten(ctx context.Context, clientOrderID string, side Side, qty int) error {
	pb.mu.Lock()
	price := pb.position.AvgPrice
	pb.mu.Unlock()
	return pb.submit(ctx, clientOrderID, side, KindMarket, qty, price)
}

func (pb *PaperBroker) CancelOrder(_ context.Context, brokerOrderID string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if _, ok := pb.orders[brokerOrderID]; !ok {
		return fmt.Errorf("paper broker: order %s not found or already filled", brokerOrderID)
	}
	delete(pb.orders, brokerOrderID)
	return nil
}

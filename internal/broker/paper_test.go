package broker

import (
	"context"
	"testing"
	"time"
)

type recordingSink struct {
	acks   []Ack
	fills  []Fill
	rejects []Reject
}

func (r *recordingSink) OnAck(a Ack)           { r.acks = append(r.acks, a) }
func (r *recordingSink) OnFill(f Fill)         { r.fills = append(r.fills, f) }
func (r *recordingSink) OnReject(rj Reject)    { r.rejects = append(r.rejects, rj) }
func (r *recordingSink) OnDisconnect(_ string) {}
func (r *recordingSink) OnReconnect()          {}
func (r *recordingSink) OnBar(_ string, _ time.Time) {}

func TestPaperBrokerFillsLimitOrder(t *testing.T) {
	b, err := NewPaperBroker([]byte(`{"symbol":"MES","initial_equity":3000}`))
	if err != nil {
		t.Fatalf("NewPaperBroker: %v", err)
	}
	sink := &recordingSink{}
	b.RegisterSink(sink)
	ctx := context.Background()

	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := b.SubmitLimitOrder(ctx, "co-1", SideBuy, 1, 5000.25, 0); err != nil {
		t.Fatalf("SubmitLimitOrder: %v", err)
	}
	if len(sink.acks) != 1 || sink.acks[0].Status != AckAccepted {
		t.Fatalf("expected one accepted ack, got %+v", sink.acks)
	}
	if len(sink.fills) != 1 || sink.fills[0].Price != 5000.25 {
		t.Fatalf("expected one fill at 5000.25, got %+v", sink.fills)
	}

	positions, err := b.GetPositionSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetPositionSnapshot: %v", err)
	}
	pos, ok := positions["MES"]
	if !ok || pos.Qty != 1 {
		t.Fatalf("expected a 1-lot MES position, got %+v", positions)
	}
}

func TestPaperBrokerCancelUnknownOrderErrors(t *testing.T) {
	b, _ := NewPaperBroker(nil)
	if err := b.CancelOrder(context.Background(), "nonexistent"); err == nil {
		t.Fatal("expected error cancelling an unknown order")
	}
}

func TestPaperBrokerFlattenClosesPosition(t *testing.T) {
	b, _ := NewPaperBroker([]byte(`{"symbol":"MES"}`))
	sink := &recordingSink{}
	b.RegisterSink(sink)
	ctx := context.Background()

	_ = b.SubmitLimitOrder(ctx, "co-1", SideBuy, 2, 5000, 0)
	if err := b.SubmitMarketFlatten(ctx, "co-2", SideSell, 2); err != nil {
		t.Fatalf("SubmitMarketFlatten: %v", err)
	}

	positions, _ := b.GetPositionSnapshot(ctx)
	if _, ok := positions["MES"]; ok {
		t.Fatalf("expected flat position, got %+v", positions)
	}
}

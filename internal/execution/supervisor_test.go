package execution

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/onebar-systems/onebar/internal/broker"
	"github.com/onebar-systems/onebar/internal/decision"
	"github.com/shopspring/decimal"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[execution-test] ", 0)
}

func sampleIntent() decision.OrderIntent {
	return decision.OrderIntent{
		TemplateID: decision.K1,
		Side:       decision.Buy,
		EntryLimit: decimal.NewFromFloat(5000.0),
		StopTicks:  8,
		TargetTicks: 8,
		Size:       1,
	}
}

func TestSubmitIntentFillsBracketAndPlacesLegs(t *testing.T) {
	brk, err := broker.NewPaperBroker([]byte(`{"symbol":"MES","initial_equity":3000}`))
	if err != nil {
		t.Fatalf("NewPaperBroker: %v", err)
	}
	ctx := context.Background()
	_ = brk.Connect(ctx)

	sup := New(DefaultConfig("run-1"), testLogger(), brk)

	entryFilled := false
	sup.OnEntryFilled(func(ParentOrder) { entryFilled = true })

	if err := sup.SubmitIntent(ctx, "MES", "intent-1", sampleIntent()); err != nil {
		t.Fatalf("SubmitIntent: %v", err)
	}
	sup.Tick(ctx)

	if !entryFilled {
		t.Fatal("expected entry fill callback to have fired")
	}
	parent, ok := sup.ParentByIntentID("intent-1")
	if !ok {
		t.Fatal("expected bracket to be tracked")
	}
	if parent.State != StateFilled {
		t.Fatalf("expected StateFilled, got %s", parent.State)
	}
	if parent.Stop == nil || parent.Target == nil {
		t.Fatal("expected stop and target legs to be created after entry fill")
	}
}

func TestDuplicateIntentSubmitRejected(t *testing.T) {
	brk, _ := broker.NewPaperBroker([]byte(`{"symbol":"MES"}`))
	ctx := context.Background()
	_ = brk.Connect(ctx)
	sup := New(DefaultConfig("run-1"), testLogger(), brk)

	if err := sup.SubmitIntent(ctx, "MES", "intent-1", sampleIntent()); err != nil {
		t.Fatalf("first SubmitIntent: %v", err)
	}
	if err := sup.SubmitIntent(ctx, "MES", "intent-1", sampleIntent()); err == nil {
		t.Fatal("expected error resubmitting the same intent ID")
	}
}

func TestDuplicateFillIgnored(t *testing.T) {
	brk, _ := broker.NewPaperBroker([]byte(`{"symbol":"MES"}`))
	ctx := context.Background()
	_ = brk.Connect(ctx)
	sup := New(DefaultConfig("run-1"), testLogger(), brk)

	entryFills := 0
	sup.OnEntryFilled(func(ParentOrder) { entryFills++ })

	if err := sup.SubmitIntent(ctx, "MES", "intent-1", sampleIntent()); err != nil {
		t.Fatalf("SubmitIntent: %v", err)
	}

	entryClientID := clientOrderID("run-1", "intent-1", LegEntry)
	fill := broker.Fill{
		ClientOrderID: entryClientID,
		BrokerOrderID: "PAPER-1",
		FillID:        "PAPER-1-F1",
		Qty:           1,
		Price:         5000.0,
		Timestamp:     time.Now(),
	}

	// Simulate the broker redelivering the same fill event (reconnect
	// replay or at-least-once postback) before the supervisor drains it.
	sup.OnFill(fill)
	sup.OnFill(fill)
	sup.Tick(ctx)

	if entryFills != 1 {
		t.Fatalf("expected exactly one entry fill callback for a redelivered fill, got %d", entryFills)
	}
	parent, ok := sup.ParentByIntentID("intent-1")
	if !ok || parent.Entry.FilledQty != 1 {
		t.Fatalf("expected entry leg filled qty 1, got %+v", parent.Entry)
	}
}

func TestExitFillClosesBracket(t *testing.T) {
	brk, _ := broker.NewPaperBroker([]byte(`{"symbol":"MES"}`))
	ctx := context.Background()
	_ = brk.Connect(ctx)
	sup := New(DefaultConfig("run-1"), testLogger(), brk)

	var exitRole LegRole
	sup.OnExitFilled(func(_ ParentOrder, role LegRole, _ float64, _ time.Time) { exitRole = role })

	_ = sup.SubmitIntent(ctx, "MES", "intent-1", sampleIntent())
	sup.Tick(ctx) // entry fills, stop+target submitted (and, in the paper broker, also immediately filled)
	sup.Tick(ctx) // drain the stop/target fill events

	if exitRole == "" {
		t.Fatal("expected an exit fill callback to have fired")
	}
	parent, _ := sup.ParentByIntentID("intent-1")
	if parent.State != StateClosed {
		t.Fatalf("expected StateClosed, got %s", parent.State)
	}
}

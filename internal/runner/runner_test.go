package runner

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/onebar-systems/onebar/internal/bardata"
	"github.com/onebar-systems/onebar/internal/broker"
	"github.com/onebar-systems/onebar/internal/market"
	"github.com/onebar-systems/onebar/internal/quality"
)

func syntheticBars(n int, loc *time.Location) []bardata.Bar {
	bars := make([]bardata.Bar, 0, n)
	start := time.Date(2024, 7, 8, 9, 30, 0, 0, loc)
	price := 5000.0
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		price += 0.25
		bars = append(bars, bardata.Bar{
			Timestamp: ts,
			Open:      price - 0.25,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    500 + int64(i),
			Bid:       price - 0.25,
			Ask:       price + 0.25,
		})
	}
	return bars
}

func newTestRunner(t *testing.T) (*Runner, *market.Calendar) {
	t.Helper()
	cal := market.NewCalendarFromHolidays(market.DefaultCMESession(), nil)
	brk, err := broker.NewPaperBroker([]byte(`{"symbol":"MES","initial_equity":3000}`))
	if err != nil {
		t.Fatalf("NewPaperBroker: %v", err)
	}
	if err := brk.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	cfg := DefaultConfig("MES", "test-run")
	cfg.PersistPath = t.TempDir() + "/learning_state.json"
	logger := log.New(os.Stdout, "[runner-test] ", 0)

	return New(cfg, logger, cal, brk, nil), cal
}

func TestRunBarCycleWarmupDoesNotPanic(t *testing.T) {
	r, cal := newTestRunner(t)
	bars := syntheticBars(5, cal.Session().Location)

	r.RunBarCycle(context.Background(), bars[len(bars)-1].Timestamp, bars, 3000, 30, nil)
}

func TestRunBarCycleFullHistoryDoesNotPanic(t *testing.T) {
	r, cal := newTestRunner(t)
	bars := syntheticBars(40, cal.Session().Location)

	r.RunBarCycle(context.Background(), bars[len(bars)-1].Timestamp, bars, 3000, 30, []quality.OrderBehaviorSample{
		{Rejected: false, AckLatency: 50 * time.Millisecond},
	})
}

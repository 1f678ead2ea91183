package market

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestCSVFeedParsesRows(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bars-*.csv")
	if err != nil {
		t.Fatal(err)
	}
	csv := "timestamp,open,high,low,close,volume,bid,ask\n" +
		"2024-07-08T09:30:00Z,5000.00,5001.00,4999.50,5000.75,1200,5000.50,5000.75\n" +
		"2024-07-08T09:31:00Z,5000.75,5002.00,5000.25,5001.50,1100,5001.25,5001.50\n"
	if _, err := f.WriteString(csv); err != nil {
		t.Fatal(err)
	}
	f.Close()

	feed := NewCSVFeed(f.Name(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	bars, err := feed.Subscribe(ctx, "MES")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var got []float64
	for bar := range bars {
		got = append(got, bar.Close)
		if !bar.Provenance.Historical {
			t.Errorf("expected Historical provenance flag set")
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(got))
	}
	if got[0] != 5000.75 || got[1] != 5001.50 {
		t.Errorf("unexpected close prices: %v", got)
	}
}

func TestCSVFeedMissingFile(t *testing.T) {
	feed := NewCSVFeed("/nonexistent/path.csv", 0)
	if _, err := feed.Subscribe(context.Background(), "MES"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCSVFeedStopsOnContextCancel(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bars-*.csv")
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("timestamp,open,high,low,close,volume\n2024-07-08T09:30:00Z,1,1,1,1,1\n")
	f.Close()

	feed := NewCSVFeed(f.Name(), time.Hour) // pace long enough that cancel wins the race
	ctx, cancel := context.WithCancel(context.Background())
	bars, err := feed.Subscribe(ctx, "MES")
	if err != nil {
		t.Fatal(err)
	}

	<-bars // first bar arrives immediately
	cancel()

	select {
	case _, ok := <-bars:
		if ok {
			t.Fatal("expected channel to close after context cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after context cancellation")
	}
}

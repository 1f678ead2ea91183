package market

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onebar-systems/onebar/internal/bardata"
)

// Feed produces freshly closed bars for one symbol. The runner's bar
// cycle is triggered once per value read off the returned channel; the
// channel is closed when the feed's upstream connection ends.
type Feed interface {
	Subscribe(ctx context.Context, symbol string) (<-chan bardata.Bar, error)
}

// wireBar is the on-the-wire shape a market data provider's websocket
// feed is expected to emit, one JSON object per closed bar.
type wireBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Delayed   bool      `json:"delayed"`
	Sequence  int64     `json:"sequence"`
}

func (w wireBar) toBar() bardata.Bar {
	return bardata.Bar{
		Timestamp: w.Timestamp,
		Open:      w.Open,
		High:      w.High,
		Low:       w.Low,
		Close:     w.Close,
		Volume:    w.Volume,
		Bid:       w.Bid,
		Ask:       w.Ask,
		Provenance: bardata.Provenance{
			Live:     true,
			Delayed:  w.Delayed,
			Sequence: w.Sequence,
		},
	}
}

// WebSocketFeed subscribes to a market data provider's bar stream over
// a websocket connection, reconnecting with backoff on drop. This is
// the feed cmd/onebar uses in live and paper modes — both need real
// prices, only order submission differs.
type WebSocketFeed struct {
	url           string
	minRetryDelay time.Duration
	maxRetryDelay time.Duration
}

// NewWebSocketFeed builds a feed against the given market data endpoint.
func NewWebSocketFeed(url string) *WebSocketFeed {
	return &WebSocketFeed{url: url, minRetryDelay: 500 * time.Millisecond, maxRetryDelay: 30 * time.Second}
}

func (f *WebSocketFeed) Subscribe(ctx context.Context, symbol string) (<-chan bardata.Bar, error) {
	out := make(chan bardata.Bar, 16)
	go f.run(ctx, symbol, out)
	return out, nil
}

func (f *WebSocketFeed) run(ctx context.Context, symbol string, out chan<- bardata.Bar) {
	defer close(out)
	delay := f.minRetryDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay < f.maxRetryDelay {
				delay *= 2
			}
			continue
		}
		delay = f.minRetryDelay

		if err := conn.WriteJSON(map[string]string{"action": "subscribe", "symbol": symbol}); err != nil {
			conn.Close()
			continue
		}

		f.readLoop(ctx, conn, out)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (f *WebSocketFeed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- bardata.Bar) {
	for {
		var wb wireBar
		if err := conn.ReadJSON(&wb); err != nil {
			return
		}
		select {
		case out <- wb.toBar():
		case <-ctx.Done():
			return
		}
	}
}

// CSVFeed replays bars from a CSV file at a fixed cadence, for running
// the engine against historical data in observe mode without a live
// market data subscription. Columns: timestamp,open,high,low,close,volume,bid,ask.
type CSVFeed struct {
	path string
	pace time.Duration
}

// NewCSVFeed builds a feed that reads path and emits one bar every
// pace (0 means as fast as the file can be read).
func NewCSVFeed(path string, pace time.Duration) *CSVFeed {
	return &CSVFeed{path: path, pace: pace}
}

func (f *CSVFeed) Subscribe(ctx context.Context, symbol string) (<-chan bardata.Bar, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("market: open csv feed: %w", err)
	}

	out := make(chan bardata.Bar, 16)
	go f.run(ctx, file, out)
	return out, nil
}

func (f *CSVFeed) run(ctx context.Context, file *os.File, out chan<- bardata.Bar) {
	defer close(out)
	defer file.Close()

	r := csv.NewReader(bufio.NewReader(file))
	r.FieldsPerRecord = -1

	first := true
	for {
		record, err := r.Read()
		if err != nil {
			return
		}
		if first {
			first = false
			continue // header row
		}

		bar, err := parseCSVBar(record)
		if err != nil {
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return
		}
		if f.pace > 0 {
			select {
			case <-time.After(f.pace):
			case <-ctx.Done():
				return
			}
		}
	}
}

func parseCSVBar(record []string) (bardata.Bar, error) {
	if len(record) < 6 {
		return bardata.Bar{}, fmt.Errorf("market: csv row has %d fields, want >= 6", len(record))
	}
	ts, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return bardata.Bar{}, err
	}
	open, _ := strconv.ParseFloat(record[1], 64)
	high, _ := strconv.ParseFloat(record[2], 64)
	low, _ := strconv.ParseFloat(record[3], 64)
	closePx, _ := strconv.ParseFloat(record[4], 64)
	volume, _ := strconv.ParseInt(record[5], 10, 64)

	bar := bardata.Bar{
		Timestamp:  ts,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePx,
		Volume:     volume,
		Provenance: bardata.Provenance{Historical: true},
	}
	if len(record) >= 8 {
		bid, _ := strconv.ParseFloat(record[6], 64)
		ask, _ := strconv.ParseFloat(record[7], 64)
		bar.Bid, bar.Ask = bid, ask
	}
	return bar, nil
}

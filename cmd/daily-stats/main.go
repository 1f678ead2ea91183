// Command daily-stats prints a performance report for one trading
// day, reading closed-trade outcomes straight out of the event log
// and formatting them with internal/analytics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/onebar-systems/onebar/internal/analytics"
	"github.com/onebar-systems/onebar/internal/config"
	"github.com/onebar-systems/onebar/internal/eventlog"
	"github.com/onebar-systems/onebar/internal/trade"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	dateFlag := flag.String("date", "", "date in YYYY-MM-DD format (defaults to today)")
	flag.Parse()

	date := *dateFlag
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid date format, use YYYY-MM-DD")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := eventlog.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to event log: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	events, err := store.Since(ctx, cfg.Symbol, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch events: %v\n", err)
		os.Exit(1)
	}

	dayEnd := day.Add(24 * time.Hour)
	var outcomes []trade.Outcome
	openTrades := 0
	for _, e := range events {
		if e.CreatedAt.After(dayEnd) {
			break
		}
		switch e.Kind {
		case eventlog.KindFill:
			openTrades++
		case eventlog.KindTradeExit:
			var o trade.Outcome
			if err := json.Unmarshal(e.Payload, &o); err == nil {
				outcomes = append(outcomes, o)
			}
			if openTrades > 0 {
				openTrades--
			}
		}
	}

	fmt.Printf("Daily statistics for %s — %s (%s)\n\n", cfg.Symbol, date, cfg.TradingMode)

	if len(outcomes) == 0 {
		fmt.Println("No closed trades for this day.")
	} else {
		startEquity := cfg.Decision.Risk.MaxDailyLossUSD * 10
		report := analytics.Analyze(outcomes, startEquity)
		fmt.Println(analytics.FormatReport(report))
	}

	fmt.Printf("Open positions as of report time: %d\n", openTrades)
}

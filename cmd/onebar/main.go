// Package main is the entry point for the onebar trading engine.
//
// The engine:
//  1. Loads configuration
//  2. Initializes the broker, market calendar, market data feed, and
//     durable event log
//  3. Runs one bar cycle per closed bar: score quality, compute
//     signals, update beliefs, decide, execute, learn
//  4. Logs every artifact to the event log for replay and audit
//
// Modes (config's trading_mode, overridden by the ONEBAR_TRADING_MODE
// environment variable when set):
//   - "observe": compute and log decisions, submit nothing
//   - "paper":   submit to the paper broker
//   - "live":    submit to a real broker — requires explicit confirmation
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/onebar-systems/onebar/internal/bardata"
	"github.com/onebar-systems/onebar/internal/broker"
	"github.com/onebar-systems/onebar/internal/config"
	"github.com/onebar-systems/onebar/internal/eventlog"
	"github.com/onebar-systems/onebar/internal/market"
	"github.com/onebar-systems/onebar/internal/quality"
	"github.com/onebar-systems/onebar/internal/runner"
	"github.com/onebar-systems/onebar/internal/webhook"
)

const maxHistory = 500

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	feedURL := flag.String("feed-url", "", "market data websocket URL (overrides config)")
	replayFile := flag.String("replay-file", "", "CSV file of historical bars to replay instead of connecting to a live feed")
	confirmLive := flag.Bool("confirm-live", false, "required safety flag to run in live trading mode")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve Prometheus metrics on")
	flag.Parse()

	instanceID := uuid.NewString()
	logger := log.New(os.Stdout, fmt.Sprintf("[onebar:%s] ", instanceID[:8]), log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Printf("config loaded: symbol=%s broker=%s mode=%s instance=%s", cfg.Symbol, cfg.ActiveBroker, cfg.TradingMode, instanceID)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}
	go func() {
		logger.Printf("serving metrics on %s/metrics", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()
	defer metricsServer.Shutdown(context.Background())

	if cfg.TradingMode == config.ModeLive {
		requireLiveConfirmation(*confirmLive, logger)
		logger.Println("LIVE MODE ACTIVE — real orders will be placed on the exchange")
	} else {
		logger.Printf("%s MODE — no live orders will be placed", cfg.TradingMode)
	}

	cal := market.NewCalendarFromHolidays(cfg.Session, nil)

	activeBroker := initBroker(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store *eventlog.Store
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := activeBroker.Connect(gctx); err != nil {
			return fmt.Errorf("connect broker %q: %w", cfg.ActiveBroker, err)
		}
		return nil
	})
	g.Go(func() error {
		s, err := eventlog.Open(gctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		store = s
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer activeBroker.Disconnect(context.Background())
	defer store.Close()

	var whServer *webhook.Server
	if cfg.Webhook.Enabled {
		whServer = webhook.NewServer(webhook.Config{
			Port: cfg.Webhook.Port, Path: cfg.Webhook.Path, Enabled: true,
		}, logger)
		registerPostbackHandler(whServer, activeBroker, logger)
		if err := whServer.Start(); err != nil {
			logger.Fatalf("failed to start webhook server: %v", err)
		}
		defer whServer.Shutdown(context.Background())
	}

	r := runner.New(cfg.ToRunnerConfig(), logger, cal, activeBroker, store)
	if cfg.TradingMode == config.ModeObserve {
		r.SetExecutionEnabled(false)
	}

	watcher := config.NewWatcher(*configPath, cfg, logger)
	watcher.OnChange(func(old, new *config.Config) {
		logger.Printf("[hot-reload] risk config updated")
	})
	if err := watcher.Start(); err != nil {
		logger.Printf("WARNING: config watcher failed to start: %v", err)
	}
	defer watcher.Stop()

	feed := selectFeed(cfg, *feedURL, *replayFile)
	bars, err := feed.Subscribe(ctx, cfg.Symbol)
	if err != nil {
		logger.Fatalf("failed to subscribe to market data feed: %v", err)
	}

	logger.Printf("onebar running — symbol=%s run_id=%s", cfg.Symbol, cfg.RunID)
	runLoop(ctx, r, activeBroker, bars, cfg, logger)
	logger.Println("shutdown complete")
}

func requireLiveConfirmation(confirmFlag bool, logger *log.Logger) {
	envConfirmed := os.Getenv("ONEBAR_LIVE_CONFIRMED") == "true"
	if confirmFlag && envConfirmed {
		return
	}

	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "  ╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "  ║                    ⚠  LIVE MODE BLOCKED  ⚠                ║")
	fmt.Fprintln(os.Stderr, "  ╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintln(os.Stderr, "  ║  Live trading requires TWO explicit confirmations:       ║")
	fmt.Fprintln(os.Stderr, "  ║                                                           ║")
	fmt.Fprintln(os.Stderr, "  ║  1. CLI flag:   --confirm-live                            ║")
	fmt.Fprintln(os.Stderr, "  ║  2. Env var:    ONEBAR_LIVE_CONFIRMED=true                ║")
	fmt.Fprintln(os.Stderr, "  ║                                                           ║")
	fmt.Fprintln(os.Stderr, "  ║  Example:                                                 ║")
	fmt.Fprintln(os.Stderr, "  ║  ONEBAR_LIVE_CONFIRMED=true go run ./cmd/onebar \\         ║")
	fmt.Fprintln(os.Stderr, "  ║    --config config/live.json --confirm-live               ║")
	fmt.Fprintln(os.Stderr, "  ╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr, "")
	if !confirmFlag {
		fmt.Fprintln(os.Stderr, "  MISSING: --confirm-live flag")
	}
	if !envConfirmed {
		fmt.Fprintln(os.Stderr, "  MISSING: ONEBAR_LIVE_CONFIRMED=true environment variable")
	}
	fmt.Fprintln(os.Stderr, "")
	os.Exit(1)
}

func initBroker(cfg *config.Config, logger *log.Logger) broker.Adapter {
	if cfg.TradingMode != config.ModeLive {
		b, err := broker.NewPaperBroker(nil)
		if err != nil {
			logger.Fatalf("failed to initialize paper broker: %v", err)
		}
		logger.Println("using PAPER broker")
		return b
	}

	brokerCfg, ok := cfg.BrokerConfig[cfg.ActiveBroker]
	if !ok {
		logger.Fatalf("no broker_config entry for active_broker %q", cfg.ActiveBroker)
	}
	b, err := broker.New(cfg.ActiveBroker, brokerCfg)
	if err != nil {
		logger.Fatalf("failed to initialize broker %q: %v", cfg.ActiveBroker, err)
	}
	logger.Printf("using LIVE broker: %s", cfg.ActiveBroker)
	return b
}

func selectFeed(cfg *config.Config, feedURLFlag, replayFileFlag string) market.Feed {
	if replayFileFlag != "" {
		return market.NewCSVFeed(replayFileFlag, 0)
	}
	if feedURLFlag != "" {
		return market.NewWebSocketFeed(feedURLFlag)
	}
	return market.NewWebSocketFeed(fmt.Sprintf("wss://marketdata.local/v1/bars/%s", cfg.Symbol))
}

// runLoop accumulates a rolling bar history and fires one RunBarCycle
// per bar received off the feed, until the feed closes or ctx is
// cancelled.
func runLoop(ctx context.Context, r *runner.Runner, brk broker.Adapter, bars <-chan bardata.Bar, cfg *config.Config, logger *log.Logger) {
	history := make([]bardata.Bar, 0, maxHistory)
	var lastEquityUSD float64

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-bars:
			if !ok {
				logger.Println("market data feed closed")
				return
			}

			history = append(history, bar)
			if len(history) > maxHistory {
				history = history[len(history)-maxHistory:]
			}

			snap, err := brk.GetAccountSnapshot(ctx)
			if err != nil {
				logger.Printf("[onebar] account snapshot unavailable, using last known equity: %v", err)
			} else {
				lastEquityUSD = snap.EquityUSD
			}

			daysToExpiry := daysUntil(cfg.ContractExpiry, bar.Timestamp)

			r.RunBarCycle(ctx, bar.Timestamp, history, lastEquityUSD, daysToExpiry, []quality.OrderBehaviorSample{})
		}
	}
}

func daysUntil(expiry, now time.Time) int {
	if expiry.IsZero() {
		return 999
	}
	d := int(expiry.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// registerPostbackHandler logs every broker order-status postback. A
// live broker that needs postbacks to drive fills (rather than polling
// GetOpenOrdersSnapshot) hooks its own ack/fill injection here.
func registerPostbackHandler(whServer *webhook.Server, brk broker.Adapter, logger *log.Logger) {
	whServer.OnOrderUpdate(func(u webhook.OrderUpdate) {
		logger.Printf("[postback] order=%s status=%s", u.OrderID, u.Status)
	})
}

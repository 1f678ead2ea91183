// Package main is the onebar read-only dashboard server: it exposes
// recent event-log history, derived performance metrics, and a
// WebSocket feed of live events over HTTP. It never submits orders or
// touches the broker — everything it shows comes from the durable
// event log the engine writes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onebar-systems/onebar/internal/analytics"
	"github.com/onebar-systems/onebar/internal/config"
	"github.com/onebar-systems/onebar/internal/dashboard"
	"github.com/onebar-systems/onebar/internal/eventlog"
	"github.com/onebar-systems/onebar/internal/trade"
)

// Server holds all dependencies for the dashboard API.
type Server struct {
	store       *eventlog.Store
	cfg         *config.Config
	logger      *log.Logger
	port        string
	broadcaster *dashboard.Broadcaster
	listener    *dashboard.EventListener
}

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	port := flag.String("port", "8081", "dashboard server port")
	flag.Parse()

	logger := log.New(os.Stdout, "[dashboard] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := eventlog.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to event log: %v", err)
	}
	defer store.Close()

	broadcaster := dashboard.NewBroadcaster(logger)
	eventListener := dashboard.NewEventListener(cfg.DatabaseURL, store, broadcaster, logger)

	server := &Server{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		port:        *port,
		broadcaster: broadcaster,
		listener:    eventListener,
	}

	go broadcaster.Run()
	logger.Println("broadcaster: started")

	eventListener.Start(ctx)
	logger.Println("event listener: started")

	go server.startPeriodicBroadcast(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/metrics", server.handleMetrics)
	mux.HandleFunc("/api/charts/equity", server.handleChartsEquity)
	mux.HandleFunc("/api/status", server.handleStatus)
	mux.HandleFunc("/api/events/recent", server.handleEventsRecent)
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ws", server.handleWebSocket)

	httpServer := &http.Server{
		Addr:         ":" + *port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		server.logger.Printf("dashboard API starting on port %s", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.logger.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	server.logger.Println("shutting down dashboard server...")

	cancel()
	time.Sleep(100 * time.Millisecond)

	eventListener.Stop()
	time.Sleep(100 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		server.logger.Printf("shutdown error: %v", err)
	}

	broadcaster.Shutdown()
	server.logger.Println("dashboard server stopped")
}

// closedOutcomes loads every TRADE_EXIT event for the engine's symbol
// and decodes it back into a trade.Outcome.
func (s *Server) closedOutcomes(ctx context.Context) ([]trade.Outcome, error) {
	events, err := s.store.Since(ctx, s.cfg.Symbol, time.Time{})
	if err != nil {
		return nil, err
	}

	outcomes := make([]trade.Outcome, 0, len(events))
	for _, e := range events {
		if e.Kind != eventlog.KindTradeExit {
			continue
		}
		var o trade.Outcome
		if err := json.Unmarshal(e.Payload, &o); err != nil {
			s.logger.Printf("dashboard: malformed TRADE_EXIT payload (event %d): %v", e.ID, err)
			continue
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// handleMetrics returns current performance metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	outcomes, err := s.closedOutcomes(ctx)
	if err != nil {
		s.logger.Printf("failed to load outcomes: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch trade history")
		return
	}

	startEquity := s.cfg.Decision.Risk.MaxDailyLossUSD * 10 // coarse equity proxy until account snapshots are logged
	if len(outcomes) == 0 {
		s.respondJSON(w, http.StatusOK, MetricsResponse{
			StartEquityUSD:   startEquity,
			CurrentEquityUSD: startEquity,
			Timestamp:        time.Now(),
		})
		return
	}

	report := analytics.Analyze(outcomes, startEquity)
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		TotalPnLUSD:      report.TotalPnLUSD,
		TotalPnLPercent:  (report.TotalPnLUSD / startEquity) * 100,
		WinRate:          report.WinRate,
		ProfitFactor:     report.ProfitFactor,
		DrawdownUSD:      report.MaxDrawdownUSD,
		DrawdownPercent:  report.MaxDrawdownPct,
		SharpeRatio:      report.SharpeRatio,
		TotalTrades:      report.TotalTrades,
		WinningTrades:    report.WinningTrades,
		LosingTrades:     report.LosingTrades,
		AvgPnLUSD:        report.AveragePnLUSD,
		GrossProfitUSD:   report.GrossProfitUSD,
		GrossLossUSD:     report.GrossLossUSD,
		AvgHoldMinutes:   report.AverageHoldMinutes,
		StartEquityUSD:   startEquity,
		CurrentEquityUSD: startEquity + report.TotalPnLUSD,
		Timestamp:        time.Now(),
	})
}

// handleChartsEquity returns the equity curve for charting.
func (s *Server) handleChartsEquity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	outcomes, err := s.closedOutcomes(ctx)
	if err != nil {
		s.logger.Printf("failed to load outcomes: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch trade history")
		return
	}

	startEquity := s.cfg.Decision.Risk.MaxDailyLossUSD * 10
	if len(outcomes) == 0 {
		s.respondJSON(w, http.StatusOK, EquityCurveResponse{
			Points: make([]EquityCurvePoint, 0), StartEquityUSD: startEquity, FinalEquityUSD: startEquity, Timestamp: time.Now(),
		})
		return
	}

	curve := analytics.EquityCurve(outcomes, startEquity)
	points := make([]EquityCurvePoint, len(curve))
	maxDD, maxDDPct := 0.0, 0.0
	for i, p := range curve {
		ddPct := 0.0
		if startEquity > 0 {
			ddPct = (p.Drawdown / startEquity) * 100
		}
		points[i] = EquityCurvePoint{Date: p.Date, Equity: p.Equity, Drawdown: p.Drawdown, DrawdownPercent: ddPct}
		if p.Drawdown > maxDD {
			maxDD, maxDDPct = p.Drawdown, ddPct
		}
	}

	s.respondJSON(w, http.StatusOK, EquityCurveResponse{
		Points:             points,
		StartEquityUSD:     startEquity,
		FinalEquityUSD:     curve[len(curve)-1].Equity,
		MaxDrawdownUSD:     maxDD,
		MaxDrawdownPercent: maxDDPct,
		Timestamp:          time.Now(),
	})
}

// handleStatus returns a coarse status snapshot derived from the most
// recent events in the log.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	events, err := s.store.Since(ctx, s.cfg.Symbol, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.logger.Printf("failed to load recent events: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}

	openTrades := 0
	killSwitchOn := false
	for _, e := range events {
		switch e.Kind {
		case eventlog.KindFill:
			openTrades++
		case eventlog.KindTradeExit:
			if openTrades > 0 {
				openTrades--
			}
		case eventlog.KindKillSwitch:
			killSwitchOn = true
		}
	}

	s.respondJSON(w, http.StatusOK, StatusResponse{
		Symbol:       s.cfg.Symbol,
		RunID:        s.cfg.RunID,
		TradingMode:  string(s.cfg.TradingMode),
		KillSwitchOn: killSwitchOn,
		OpenTrades:   openTrades,
		Message:      "derived from last 24h of event log activity",
		Timestamp:    time.Now(),
	})
}

// handleEventsRecent returns the most recent events for the engine's
// symbol, optionally bounded by a ?since= RFC3339 timestamp.
func (s *Server) handleEventsRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	since := time.Now().Add(-time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}

	events, err := s.store.Since(r.Context(), s.cfg.Symbol, since)
	if err != nil {
		s.logger.Printf("failed to load events: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}

	resp := EventsResponse{StreamID: s.cfg.Symbol, Events: make([]EventResponse, len(events)), Timestamp: time.Now()}
	for i, e := range events {
		var payload interface{}
		json.Unmarshal(e.Payload, &payload)
		resp.Events[i] = EventResponse{ID: e.ID, StreamID: e.StreamID, Kind: string(e.Kind), Payload: payload, CreatedAt: e.CreatedAt}
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleHealth returns a liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error: http.StatusText(status), Message: message, Code: status, Timestamp: time.Now(),
	})
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onebar-systems/onebar/internal/analytics"
	"github.com/onebar-systems/onebar/internal/dashboard"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	client := &dashboard.Client{
		ID:   r.RemoteAddr,
		Send: make(chan interface{}, 256),
	}

	s.broadcaster.Register(client)
	defer s.broadcaster.Unregister(client)

	s.logger.Printf("websocket: client connected from %s", client.ID)

	go s.writePump(ws, client)
	s.readPump(ws, client)
}

// writePump handles sending messages to a WebSocket client
func (s *Server) writePump(ws *websocket.Conn, client *dashboard.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := ws.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Printf("websocket write error for %s: %v", client.ID, err)
				}
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles receiving messages from WebSocket client
func (s *Server) readPump(ws *websocket.Conn, client *dashboard.Client) {
	defer func() {
		s.broadcaster.Unregister(client)
		s.logger.Printf("websocket: client disconnected from %s", client.ID)
	}()

	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, _, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("websocket read error for %s: %v", client.ID, err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			s.logger.Printf("websocket: received text message from %s", client.ID)
		}
	}
}

// broadcastMetrics pushes a fresh aggregate metrics snapshot to every
// connected client. Per-event pushes come from EventListener; this is
// the coarser periodic heartbeat the teacher's dashboard also runs.
func (s *Server) broadcastMetrics(ctx context.Context) error {
	outcomes, err := s.closedOutcomes(ctx)
	if err != nil {
		return err
	}

	startEquity := s.cfg.Decision.Risk.MaxDailyLossUSD * 10

	var resp dashboard.WebSocketMessage
	if len(outcomes) == 0 {
		resp = dashboard.WebSocketMessage{
			Type: "metrics",
			Data: MetricsResponse{
				StartEquityUSD:   startEquity,
				CurrentEquityUSD: startEquity,
				Timestamp:        time.Now(),
			},
			Timestamp: time.Now().Format(time.RFC3339),
		}
	} else {
		report := analytics.Analyze(outcomes, startEquity)
		resp = dashboard.WebSocketMessage{
			Type: "metrics",
			Data: MetricsResponse{
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
			},
			Timestamp: time.Now().Format(time.RFC3339),
		}
	}

	s.broadcaster.Broadcast(resp)
	return nil
}

// startPeriodicBroadcast sends periodic metrics updates to all connected WebSocket clients
func (s *Server) startPeriodicBroadcast(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.broadcastMetrics(ctx); err != nil {
				s.logger.Printf("failed to broadcast metrics: %v", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

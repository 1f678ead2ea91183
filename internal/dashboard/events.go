package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/onebar-systems/onebar/internal/eventlog"
)

func unmarshalNotify(raw string, p *notifyPayload) error {
	return json.Unmarshal([]byte(raw), p)
}

// EventListener listens for onebar_events NOTIFYs and re-queries the
// event log's Since cursor per stream, so a client never trusts the
// notification payload itself — only the log is authoritative.
type EventListener struct {
	dbURL       string
	store       *eventlog.Store
	logger      *log.Logger
	broadcaster *Broadcaster
	shutdown    chan struct{}

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewEventListener creates a new EventListener over store, fed by
// Postgres NOTIFYs on dbURL.
func NewEventListener(dbURL string, store *eventlog.Store, broadcaster *Broadcaster, logger *log.Logger) *EventListener {
	return &EventListener{
		dbURL:       dbURL,
		store:       store,
		logger:      logger,
		broadcaster: broadcaster,
		shutdown:    make(chan struct{}),
		lastSeen:    make(map[string]time.Time),
	}
}

// Start begins listening for database notifications.
func (el *EventListener) Start(ctx context.Context) {
	go el.listenLoop(ctx)
}

func (el *EventListener) listenLoop(ctx context.Context) {
	defer el.logger.Println("event listener: shutting down")

	minRetryDelay := 100 * time.Millisecond
	maxRetryDelay := 10 * time.Second
	retryDelay := minRetryDelay

	for {
		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		default:
		}

		listener := pq.NewListener(el.dbURL, minRetryDelay, maxRetryDelay, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				el.logger.Printf("event listener: %v", err)
			}
		})

		if err := listener.Listen(eventlog.Channel); err != nil {
			el.logger.Printf("event listener: failed to listen on %q: %v", eventlog.Channel, err)
			listener.Close()
			retryDelay = maxRetryDelay
			time.Sleep(retryDelay)
			continue
		}
		el.logger.Printf("event listener: listening on channel %q", eventlog.Channel)
		retryDelay = minRetryDelay

		if err := el.handleNotifications(ctx, listener); err != nil {
			el.logger.Printf("event listener: %v", err)
		}

		listener.Close()

		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		default:
			time.Sleep(retryDelay)
		}
	}
}

type notifyPayload struct {
	StreamID string `json:"stream_id"`
	Kind     string `json:"kind"`
}

func (el *EventListener) handleNotifications(ctx context.Context, listener *pq.Listener) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-el.shutdown:
			return nil

		case notification := <-listener.Notify:
			if notification == nil {
				return nil
			}
			el.onNotify(ctx, notification.Extra)
		}
	}
}

// onNotify re-reads everything new for the notified stream since the
// last cursor and broadcasts each as its own message, rather than
// trusting the NOTIFY payload as the event content.
func (el *EventListener) onNotify(ctx context.Context, rawPayload string) {
	var p notifyPayload
	if err := unmarshalNotify(rawPayload, &p); err != nil {
		el.logger.Printf("event listener: malformed notify payload: %v", err)
		return
	}

	el.mu.Lock()
	since := el.lastSeen[p.StreamID]
	el.mu.Unlock()

	events, err := el.store.Since(ctx, p.StreamID, since)
	if err != nil {
		el.logger.Printf("event listener: replay query failed for stream %q: %v", p.StreamID, err)
		return
	}

	var newest time.Time
	for _, e := range events {
		el.broadcaster.Broadcast(WebSocketMessage{
			Type:      string(e.Kind),
			Data:      e,
			Timestamp: e.CreatedAt.Format(time.RFC3339),
		})
		if e.CreatedAt.After(newest) {
			newest = e.CreatedAt
		}
	}

	if !newest.IsZero() {
		el.mu.Lock()
		el.lastSeen[p.StreamID] = newest.Add(time.Nanosecond)
		el.mu.Unlock()
	}
}

// Stop stops the event listener.
func (el *EventListener) Stop() {
	close(el.shutdown)
}

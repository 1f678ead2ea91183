package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/onebar-systems/onebar/internal/broker"
	"github.com/onebar-systems/onebar/internal/decision"
)

// Config tunes the supervisor's retry and timeout behavior.
type Config struct {
	RunID            string
	MaxSubmitRetries int
	RetryBackoff     time.Duration
	EntryTTL         time.Duration
	TickSize         float64
}

func DefaultConfig(runID string) Config {
	return Config{RunID: runID, MaxSubmitRetries: 3, RetryBackoff: 2 * time.Second, EntryTTL: 30 * time.Second, TickSize: 0.25}
}

// queuedEvent is one broker callback, enqueued by EventSink methods and
// drained by Tick.
type queuedEvent struct {
	ack        *broker.Ack
	fill       *broker.Fill
	reject     *broker.Reject
	disconnect *string
	reconnect  bool
}

// Supervisor is C5: it owns every in-flight bracket and is the sole
// writer of ParentOrder/ChildOrder state.
type Supervisor struct {
	cfg    Config
	logger *log.Logger
	brk    broker.Adapter

	mu        sync.Mutex
	parents   map[string]*ParentOrder // keyed by IntentID
	queue     []queuedEvent
	seenFills map[string]struct{} // (BrokerOrderID, FillID) pairs already applied

	// onEntryFilled and onExitFilled are the callbacks registered through
	// OnEntryFilled and OnExitFilled, invoked while Tick drains fills.
	onEntryFilled func(ParentOrder)
	onExitFilled  func(ParentOrder, LegRole, float64, time.Time)
}

// New constructs a Supervisor and registers it as the broker's event
// sink.
func New(cfg Config, logger *log.Logger, brk broker.Adapter) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		logger:    logger,
		brk:       brk,
		parents:   make(map[string]*ParentOrder),
		seenFills: make(map[string]struct{}),
	}
	brk.RegisterSink(s)
	return s
}

// OnEntryFilled registers the callback invoked once a bracket's entry
// leg fills and the stop/target legs are about to be submitted.
func (s *Supervisor) OnEntryFilled(fn func(ParentOrder)) { s.onEntryFilled = fn }

// OnExitFilled registers the callback invoked once a bracket's stop or
// target leg fills, closing the position.
func (s *Supervisor) OnExitFilled(fn func(ParentOrder, LegRole, float64, time.Time)) {
	s.onExitFilled = fn
}

// --- broker.EventSink ---

func (s *Supervisor) OnAck(a broker.Ack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedEvent{ack: &a})
}

func (s *Supervisor) OnFill(f broker.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedEvent{fill: &f})
}

func (s *Supervisor) OnReject(r broker.Reject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedEvent{reject: &r})
}

func (s *Supervisor) OnDisconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedEvent{disconnect: &reason})
}

func (s *Supervisor) OnReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedEvent{reconnect: true})
}

func (s *Supervisor) OnBar(string, time.Time) {}

// SubmitIntent turns an order intent into a new bracket's entry leg.
// The client order ID is deterministic, so resubmitting the same
// intent after a crash is a no-op at the broker rather than a double
// fill.
func (s *Supervisor) SubmitIntent(ctx context.Context, symbol, intentID string, intent decision.OrderIntent) error {
	s.mu.Lock()
	if _, exists := s.parents[intentID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("execution: intent %s already submitted", intentID)
	}
	entryID := clientOrderID(s.cfg.RunID, intentID, LegEntry)
	parent := &ParentOrder{
		IntentID: intentID,
		Symbol:   symbol,
		Intent:   intent,
		State:    StateSubmitted,
		Entry: &ChildOrder{
			Role: LegEntry, ClientOrderID: entryID,
			Kind: broker.KindLimit, Side: sideOf(intent.Side), Qty: intent.Size,
			Price: intent.EntryLimit.InexactFloat64(),
		},
		OpenedAt: time.Now(),
	}
	s.parents[intentID] = parent
	s.mu.Unlock()

	if err := s.brk.SubmitLimitOrder(ctx, entryID, sideOf(intent.Side), intent.Size, intent.EntryLimit.InexactFloat64(), s.cfg.EntryTTL); err != nil {
		s.logger.Printf("[execution] entry submit failed for intent %s: %v", intentID, err)
		s.mu.Lock()
		parent.State = StateRejected
		s.mu.Unlock()
		return fmt.Errorf("execution: submit entry: %w", err)
	}
	return nil
}

func sideOf(side decision.Side) broker.Side {
	if side == decision.Sell {
		return broker.SideSell
	}
	return broker.SideBuy
}

func oppositeSide(side broker.Side) broker.Side {
	if side == broker.SideSell {
		return broker.SideBuy
	}
	return broker.SideSell
}

// Tick drains the event queue and advances every affected bracket's
// state machine. This is the single point per bar where broker
// callbacks are allowed to mutate supervisor state.
func (s *Supervisor) Tick(ctx context.Context) {
	s.mu.Lock()
	events := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, ev := range events {
		switch {
		case ev.ack != nil:
			s.handleAck(*ev.ack)
		case ev.fill != nil:
			s.handleFill(ctx, *ev.fill)
		case ev.reject != nil:
			s.handleReject(*ev.reject)
		case ev.disconnect != nil:
			s.logger.Printf("[execution] broker disconnected: %s", *ev.disconnect)
		case ev.reconnect:
			s.logger.Printf("[execution] broker reconnected")
		}
	}
}

func (s *Supervisor) findByClientOrderID(clientOrderID string) (*ParentOrder, *ChildOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parents {
		for _, leg := range []*ChildOrder{p.Entry, p.Stop, p.Target, p.Flat} {
			if leg != nil && leg.ClientOrderID == clientOrderID {
				return p, leg
			}
		}
	}
	return nil, nil
}

func (s *Supervisor) handleAck(a broker.Ack) {
	parent, leg := s.findByClientOrderID(a.ClientOrderID)
	if parent == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == broker.AckRejected {
		if leg.Role == LegEntry {
			parent.State = StateRejected
		}
		s.logger.Printf("[execution] %s leg rejected for intent %s: %s", leg.Role, parent.IntentID, a.Reason)
		return
	}
	leg.Acked = true
	leg.BrokerOrderID = a.BrokerOrderID
	if parent.State == StateSubmitted && leg.Role == LegEntry {
		parent.State = StateAcked
	}
}

func (s *Supervisor) handleReject(r broker.Reject) {
	parent, leg := s.findByClientOrderID(r.ClientOrderID)
	if parent == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Printf("[execution] %s leg reject for intent %s: %s", leg.Role, parent.IntentID, r.Reason)
	if leg.Role == LegEntry {
		parent.State = StateRejected
	}
}

// fillKey is the dedup key for a single fill event: a broker is free to
// redeliver the same fill (reconnect replay, at-least-once postback) and
// doing so must be a no-op rather than a second exit/re-entry.
func fillKey(f broker.Fill) string {
	return f.BrokerOrderID + "|" + f.FillID
}

func (s *Supervisor) handleFill(ctx context.Context, f broker.Fill) {
	parent, leg := s.findByClientOrderID(f.ClientOrderID)
	if parent == nil {
		return
	}

	key := fillKey(f)
	s.mu.Lock()
	if _, seen := s.seenFills[key]; seen {
		s.mu.Unlock()
		s.logger.Printf("[execution] duplicate fill ignored for intent %s leg %s: %s", parent.IntentID, leg.Role, key)
		return
	}
	s.seenFills[key] = struct{}{}
	leg.Filled = true
	leg.FilledQty = f.Qty
	leg.FilledPrice = f.Price
	role := leg.Role
	s.mu.Unlock()

	switch role {
	case LegEntry:
		s.onEntryFill(ctx, parent, f)
	case LegStop, LegTarget:
		s.onExitFill(ctx, parent, role, f)
	case LegFlat:
		s.mu.Lock()
		parent.State = StateClosed
		s.mu.Unlock()
		if s.onExitFilled != nil {
			s.onExitFilled(*parent, LegFlat, f.Price, f.Timestamp)
		}
	}
}

// onEntryFill submits the stop and target legs once the entry fills,
// and hands the fill to the caller's callback so the trade manager can
// open its position record.
func (s *Supervisor) onEntryFill(ctx context.Context, parent *ParentOrder, f broker.Fill) {
	s.mu.Lock()
	parent.State = StateFilled
	exitSide := oppositeSide(parent.Entry.Side)
	stopPrice, targetPrice := stopAndTargetPrices(parent.Intent, f.Price, s.cfg.TickSize)
	stopID := clientOrderID(s.cfg.RunID, parent.IntentID, LegStop)
	targetID := clientOrderID(s.cfg.RunID, parent.IntentID, LegTarget)
	parent.Stop = &ChildOrder{Role: LegStop, ClientOrderID: stopID, Kind: broker.KindStop, Side: exitSide, Qty: f.Qty, Price: stopPrice}
	parent.Target = &ChildOrder{Role: LegTarget, ClientOrderID: targetID, Kind: broker.KindTarget, Side: exitSide, Qty: f.Qty, Price: targetPrice}
	s.mu.Unlock()

	if err := s.brk.SubmitStopOrder(ctx, stopID, exitSide, f.Qty, stopPrice); err != nil {
		s.logger.Printf("[execution] stop submit failed for intent %s: %v", parent.IntentID, err)
	}
	if err := s.brk.SubmitTargetOrder(ctx, targetID, exitSide, f.Qty, targetPrice); err != nil {
		s.logger.Printf("[execution] target submit failed for intent %s: %v", parent.IntentID, err)
	}

	if s.onEntryFilled != nil {
		s.onEntryFilled(*parent)
	}
}

// onExitFill enforces the OCO invariant: whichever of stop/target fills
// first, cancel the other before the position manager sees a double
// exit.
func (s *Supervisor) onExitFill(ctx context.Context, parent *ParentOrder, filledRole LegRole, f broker.Fill) {
	s.mu.Lock()
	parent.State = StateClosed
	var other *ChildOrder
	if filledRole == LegStop {
		other = parent.Target
	} else {
		other = parent.Stop
	}
	s.mu.Unlock()

	if other != nil && !other.Filled && !other.Canceled && other.BrokerOrderID != "" {
		if err := s.brk.CancelOrder(ctx, other.BrokerOrderID); err != nil {
			s.logger.Printf("[execution] OCO cancel failed for intent %s leg %s: %v", parent.IntentID, other.Role, err)
		} else {
			s.mu.Lock()
			other.Canceled = true
			s.mu.Unlock()
		}
	}

	if s.onExitFilled != nil {
		s.onExitFilled(*parent, filledRole, f.Price, f.Timestamp)
	}
}

// ForceExit cancels a bracket's working stop and target legs and
// submits a market flatten for the full filled quantity. The trade
// manager calls this for thesis-invalidation, time, and volatility
// exits — the three ladder rungs above the supervised stop/target
// themselves.
func (s *Supervisor) ForceExit(ctx context.Context, intentID, reason string) error {
	s.mu.Lock()
	parent, ok := s.parents[intentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("execution: force exit: unknown intent %s", intentID)
	}
	if parent.State != StateFilled {
		s.mu.Unlock()
		return fmt.Errorf("execution: force exit: intent %s is not in a managed state (%s)", intentID, parent.State)
	}
	parent.State = StateExiting
	stop, target := parent.Stop, parent.Target
	qty := parent.Entry.FilledQty
	exitSide := oppositeSide(parent.Entry.Side)
	s.mu.Unlock()

	for _, leg := range []*ChildOrder{stop, target} {
		if leg != nil && !leg.Filled && !leg.Canceled && leg.BrokerOrderID != "" {
			if err := s.brk.CancelOrder(ctx, leg.BrokerOrderID); err != nil {
				s.logger.Printf("[execution] force exit: cancel %s leg for intent %s failed: %v", leg.Role, intentID, err)
			} else {
				leg.Canceled = true
			}
		}
	}

	flatID := clientOrderID(s.cfg.RunID, intentID, LegFlat)
	s.mu.Lock()
	parent.Flat = &ChildOrder{Role: LegFlat, ClientOrderID: flatID, Kind: broker.KindMarket, Side: exitSide, Qty: qty}
	s.mu.Unlock()

	s.logger.Printf("[execution] force exit intent %s: %s", intentID, reason)
	return s.brk.SubmitMarketFlatten(ctx, flatID, exitSide, qty)
}

// stopAndTargetPrices converts the intent's tick distances into
// absolute prices around the actual entry fill price (not the intended
// limit), since the fill can differ by the one tick of modeled
// slippage the cost model already accounts for.
func stopAndTargetPrices(intent decision.OrderIntent, entryFillPrice, tick float64) (stop, target float64) {
	if intent.Side == decision.Sell {
		return entryFillPrice + float64(intent.StopTicks)*tick, entryFillPrice - float64(intent.TargetTicks)*tick
	}
	return entryFillPrice - float64(intent.StopTicks)*tick, entryFillPrice + float64(intent.TargetTicks)*tick
}

// Reconcile compares local bracket state against the broker's own
// snapshot and flattens any position the broker reports that has no
// local bracket still managing it — e.g. after a crash-restart where
// in-memory state was lost but the broker's fill went through.
func (s *Supervisor) Reconcile(ctx context.Context, symbol string) error {
	positions, err := s.brk.GetPositionSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("execution: reconcile: snapshot: %w", err)
	}
	pos, hasPosition := positions[symbol]

	s.mu.Lock()
	managed := false
	for _, p := range s.parents {
		if p.Symbol == symbol && (p.State == StateFilled || p.State == StateExiting) {
			managed = true
			break
		}
	}
	s.mu.Unlock()

	if hasPosition && pos.Qty != 0 && !managed {
		s.logger.Printf("[execution] reconcile: broker holds %d %s with no managed bracket — flattening", pos.Qty, symbol)
		side := broker.SideSell
		qty := pos.Qty
		if pos.Qty < 0 {
			side = broker.SideBuy
			qty = -pos.Qty
		}
		flatID := clientOrderID(s.cfg.RunID, fmt.Sprintf("reconcile-%d", time.Now().UnixNano()), LegFlat)
		return s.brk.SubmitMarketFlatten(ctx, flatID, side, qty)
	}
	return nil
}

// LegWorking reports whether a filled bracket's stop or target leg is
// currently WORKING at the broker (acked, unfilled, uncanceled). A
// bracket that isn't in StateFilled, or has no such leg yet, reports
// healthy — there is nothing for the trade manager's ladder to act on.
func (s *Supervisor) LegWorking(intentID string, role LegRole) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[intentID]
	if !ok || p.State != StateFilled {
		return true
	}
	leg := legByRole(p, role)
	if leg == nil {
		return true
	}
	return leg.Acked && !leg.Filled && !leg.Canceled
}

// RearmLeg resubmits a stop or target leg that has dropped out of
// WORKING state — e.g. a broker-side cancel or a reject the ack path
// didn't surface as a parent-level rejection. It reuses the leg's
// already-computed client order ID and price so the resubmission stays
// idempotent at the broker.
func (s *Supervisor) RearmLeg(ctx context.Context, intentID string, role LegRole) error {
	s.mu.Lock()
	p, ok := s.parents[intentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("execution: rearm: unknown intent %s", intentID)
	}
	leg := legByRole(p, role)
	if leg == nil {
		s.mu.Unlock()
		return fmt.Errorf("execution: rearm: intent %s has no %s leg", intentID, role)
	}
	clientID, side, qty, price := leg.ClientOrderID, leg.Side, leg.Qty, leg.Price
	s.mu.Unlock()

	s.logger.Printf("[execution] re-arming %s leg for intent %s", role, intentID)
	if role == LegStop {
		return s.brk.SubmitStopOrder(ctx, clientID, side, qty, price)
	}
	return s.brk.SubmitTargetOrder(ctx, clientID, side, qty, price)
}

func legByRole(p *ParentOrder, role LegRole) *ChildOrder {
	switch role {
	case LegStop:
		return p.Stop
	case LegTarget:
		return p.Target
	default:
		return nil
	}
}

// ParentByIntentID exposes a bracket's current state for auditing.
func (s *Supervisor) ParentByIntentID(intentID string) (ParentOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[intentID]
	if !ok {
		return ParentOrder{}, false
	}
	return *p, true
}

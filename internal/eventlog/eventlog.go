// Package eventlog is the durable, append-only record of the bar-cycle
// artifacts the runner produces: bars, quality scores, signal vectors,
// beliefs, decisions, order intents and their fills, trade exits,
// learning updates, kill-switch trips, and session-exit flattens. The
// ORDER_ACK, READINESS_SNAPSHOT and RECONCILIATION kinds are defined
// below but the runner appends no events of those kinds. The Store
// never updates or deletes rows (cmd/clear-trades is the one tool that
// deletes, removing a symbol's rows for the current day); replay and
// audit both read straight off this log.
package eventlog

import (
	"encoding/json"
	"time"
)

// Kind enumerates the closed set of event types the log can hold. The
// discriminator is a Code from the reason package's sibling concept —
// kept local here since event kinds name *artifacts*, not skip/denial
// reasons.
type Kind string

const (
	KindBar                  Kind = "BAR"
	KindQuality              Kind = "QUALITY"
	KindSignals              Kind = "SIGNALS"
	KindBeliefs              Kind = "BELIEFS"
	KindDecision             Kind = "DECISION"
	KindOrderIntent          Kind = "ORDER_INTENT"
	KindOrderAck             Kind = "ORDER_ACK"
	KindFill                 Kind = "FILL"
	KindTradeExit            Kind = "TRADE_EXIT"
	KindLearningUpdate       Kind = "LEARNING_UPDATE"
	KindKillSwitch           Kind = "KILL_SWITCH"
	KindReadinessSnapshot    Kind = "READINESS_SNAPSHOT"
	KindReconciliation       Kind = "RECONCILIATION"
	KindSessionExitFlatten   Kind = "SESSION_EXIT_FLATTEN"
)

// Event is one immutable row in the log. StreamID partitions the log
// per traded symbol so replay can scope to a single instrument.
type Event struct {
	ID        int64           `json:"id"`
	StreamID  string          `json:"stream_id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

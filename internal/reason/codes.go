// Package reason centralizes the closed set of stable reason codes used
// across the pipeline: decision NoTrade reasons, signal skips, and
// kill-switch trips name themselves from this set so the event log's
// discriminator field never drifts between those components. The
// permission gate's Denial.Rule values are its own string literals and
// are not drawn from this set.
package reason

// Code is a stable, loggable reason-code string. Components return
// Code values, never format strings, so NoTrade decisions remain
// comparable across replays.
type Code string

const (
	// Gate denials.
	KillSwitchActive    Code = "KILL_SWITCH_ACTIVE"
	DailyLossCapHit     Code = "DAILY_LOSS_CAP_HIT"
	TradesTodayCapHit   Code = "TRADES_TODAY_CAP_HIT"
	ConsecutiveLossCap  Code = "CONSECUTIVE_LOSS_CAP_HIT"
	DVSGateFailed       Code = "DVS_GATE_FAILED"
	EQSGateFailed       Code = "EQS_GATE_FAILED"
	SessionClosed       Code = "SESSION_CLOSED"
	EquityTooLow        Code = "EQUITY_TOO_LOW"
	StrategyQuarantined Code = "STRATEGY_QUARANTINED"
	EUCRejected         Code = "EUC_REJECTED"
	StopTooTightOrWide  Code = "STOP_TOO_TIGHT_OR_WIDE"
	SizeZero            Code = "SIZE_ZERO"
	BeliefTooLow        Code = "BELIEF_TOO_LOW"

	// Warm-up / missing data (not errors).
	Warmup            Code = "WARMUP"
	SignalUnavailable Code = "SIGNAL_UNAVAILABLE"

	// Permission gate hard blockers.
	BrokerSessionClosed  Code = "BROKER_SESSION_CLOSED"
	BrokerAccountNotReady Code = "BROKER_ACCOUNT_NOT_READY"
	ExecutionDisabled    Code = "EXECUTION_DISABLED"
	DataQualityCritical  Code = "DATA_QUALITY_CRITICAL"
	ExpiryTooNear        Code = "EXPIRY_TOO_NEAR"

	// Integrity faults.
	InvalidFillPrice        Code = "INVALID_FILL_PRICE"
	PositionDivergence      Code = "POSITION_DIVERGENCE"
	UnknownOrderEvent       Code = "UNKNOWN_ORDER_EVENT"
	ReconciliationMismatch  Code = "RECONCILIATION_MISMATCH"
	NegativeBuyingPower     Code = "NEGATIVE_BUYING_POWER"

	// Runner-level outcomes.
	SessionExitFlatten Code = "SESSION_EXIT_FLATTEN"
)

package domain

import "time"

// CycleRecord is the flattened per-cycle observation handed to persistence.
// The reconciliation key is (Asset, At).
type CycleRecord struct {
	At         time.Time
	Asset      string
	WindowOpen time.Time

	SpotPrice     *float64
	OraclePrice   *float64
	OracleSource  TickSource // oracle_ws or oracle_rpc, whichever served
	OperatorPrice *float64

	Regime           Regime
	RegimeReason     string
	RegimeConfidence float64

	Action   Action
	Side     Side
	Phase    Phase
	Strength Strength
	Edge     *float64
	Reason   string
	ModelUp  *float64
	MarketUp *float64
}

// HeartbeatEventKind labels governor state changes worth persisting.
type HeartbeatEventKind string

const (
	HeartbeatSent         HeartbeatEventKind = "sent"
	HeartbeatFailed       HeartbeatEventKind = "failed"
	HeartbeatSkippedEmpty HeartbeatEventKind = "skipped_empty"
	HeartbeatReconnect    HeartbeatEventKind = "reconnect_scheduled"
	HeartbeatRecovered    HeartbeatEventKind = "recovered"
	HeartbeatDisabled     HeartbeatEventKind = "live_disabled"
	HeartbeatCancelSweep  HeartbeatEventKind = "cancel_all"
)

// HeartbeatEvent is one observable transition of the heartbeat governor.
type HeartbeatEvent struct {
	At         time.Time
	Kind       HeartbeatEventKind
	Detail     string
	Failures   int // consecutive failures at emission time
	Attempt    int // reconnect attempt counter
	OpenOrders int
}

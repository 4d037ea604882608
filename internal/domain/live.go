package domain

import "time"

// OrderKind distinguishes resting orders that depend on the liveness
// heartbeat from immediate-or-cancel ones that never rest.
type OrderKind string

const (
	OrderKindGTD OrderKind = "GTD" // good-til-date, needs heartbeat protection
	OrderKindFAK OrderKind = "FAK" // fill-and-kill, never registered
)

// OrderStatus is the lifecycle of an order on the CLOB.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// LiveOrder is a real order resting on the CLOB for one window market.
type LiveOrder struct {
	ID          string // UUID, local tracking
	CLOBOrderID string // exchange order hash (0x...)
	ConditionID string
	TokenID     string
	Side        Side
	Kind        OrderKind
	Price       float64
	Size        float64 // USDC
	FilledSize  float64
	PlacedAt    time.Time
	ExpiresAt   time.Time // GTD deadline, window close plus margin
	Status      OrderStatus
	FilledAt    *time.Time
	WindowOpen  time.Time
	Asset       string
}

// PlaceOrderRequest is sent to the CLOB order executor.
type PlaceOrderRequest struct {
	TokenID     string
	ConditionID string
	Price       float64
	Size        float64 // USDC
	Kind        OrderKind
	ExpiresAt   time.Time // required for GTD
	NegRisk     bool
	TickSize    float64
}

// PlacedOrder is the exchange's acknowledgement.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string
	TakenAmount float64 // immediately matched portion
	MadeAmount  float64 // resting portion
}

// OpenOrder is one row of the exchange's resting-order listing.
type OpenOrder struct {
	CLOBOrderID  string
	TokenID      string
	Price        float64
	OriginalSize float64
	SizeMatched  float64
}

// Position is one entered window position, simulated in paper mode or backed
// by a live order.
type Position struct {
	ID         string // UUID
	Asset      string
	WindowOpen time.Time
	Side       Side
	EntryPrice float64 // cost per share in [0,1]
	Size       float64 // USDC spent
	Shares     float64 // Size / EntryPrice
	EnteredAt  time.Time
	Strength   Strength
	Simulated  bool
}

// Payout returns the USDC value of the position given the settled side.
func (p Position) Payout(settled Side) float64 {
	if p.Side == settled {
		return p.Shares
	}
	return 0
}

// PnL returns payout minus cost for the settled side.
func (p Position) PnL(settled Side) float64 {
	return p.Payout(settled) - p.Size
}

// WindowOutcome summarizes a settled window for the session ledger.
type WindowOutcome string

const (
	OutcomeWin  WindowOutcome = "WIN"
	OutcomeLoss WindowOutcome = "LOSS"
	OutcomeSkip WindowOutcome = "SKIP" // no position entered
)

// WindowResult is the per-window settlement record; the reconciliation key is
// (Asset, WindowOpen).
type WindowResult struct {
	Asset       string
	WindowOpen  time.Time
	WindowClose time.Time
	OpenPrice   *float64
	ClosePrice  *float64
	SettledSide *Side
	Entered     bool
	Side        Side
	EntryPrice  float64
	Size        float64
	PnL         float64
	Outcome     WindowOutcome
}

// SessionStats aggregates a run since process start.
type SessionStats struct {
	StartedAt      time.Time
	Windows        int
	Entered        int
	Wins           int
	Losses         int
	Skips          int
	TotalPnL       float64
	CyclesRun      int
	HeartbeatsSent int
	HeartbeatFails int
}

// RecordWindow folds one settled window into the stats.
func (s *SessionStats) RecordWindow(r WindowResult) {
	s.Windows++
	switch r.Outcome {
	case OutcomeWin:
		s.Entered++
		s.Wins++
	case OutcomeLoss:
		s.Entered++
		s.Losses++
	default:
		s.Skips++
	}
	s.TotalPnL += r.PnL
}

// WinRate returns wins over entered windows.
func (s SessionStats) WinRate() float64 {
	if s.Entered == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Entered)
}

// CircuitBreaker pauses entries after consecutive losing windows.
type CircuitBreaker struct {
	ConsecutiveLosses int
	MaxLosses         int
	CooldownUntil     time.Time
	CooldownDuration  time.Duration
	TotalPnL          float64
	TriggeredReason   string
}

// IsOpen reports whether entries are currently allowed.
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	return !now.Before(cb.CooldownUntil)
}

// RecordLoss counts a losing window and may start a cooldown.
func (cb *CircuitBreaker) RecordLoss(now time.Time, loss float64) {
	cb.ConsecutiveLosses++
	cb.TotalPnL += loss
	if cb.MaxLosses > 0 && cb.ConsecutiveLosses >= cb.MaxLosses {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
		cb.ConsecutiveLosses = 0
		cb.TriggeredReason = "consecutive losses"
	}
}

// RecordWin resets the consecutive-loss counter.
func (cb *CircuitBreaker) RecordWin(profit float64) {
	cb.ConsecutiveLosses = 0
	cb.TotalPnL += profit
}

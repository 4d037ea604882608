// Package heartbeat keeps resting GTD orders alive. The exchange cancels
// them when the liveness signal stops, so the governor beats on a fixed
// cadence while any order rests, escalates repeated failures into a bounded
// reconnect ladder, and force-disables live trading when the ladder is
// exhausted.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
	"github.com/youming-ai/orakel-sub002/internal/ports"
)

const (
	// The 5s cadence sits inside the exchange's 10s liveness grace window
	// with margin. Do not loosen it.
	tickInterval = 5 * time.Second
	// Each beat is bounded below the tick so beats never stack.
	beatTimeout = 4 * time.Second

	failureThreshold = 3
	maxReconnects    = 5
	reconnectBase    = 5 * time.Second
	reconnectCeiling = 30 * time.Second

	maxBufferedEvents = 64
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateReconnecting
	stateDisabled // terminal: reconnect budget exhausted
)

// Governor tracks the open GTD order set and owns its liveness.
type Governor struct {
	executor ports.OrderExecutor // nil in paper mode

	mu        sync.Mutex
	state     state
	ctx       context.Context // set by Start; beats inherit it
	tick      time.Duration
	orders    map[string]struct{}
	sessionID string
	failures  int // consecutive failed beats
	attempts  int // reconnects used since the last successful beat
	stopCh    chan struct{}
	timer     *time.Timer // pending reconnect
	events    []domain.HeartbeatEvent
	sent      uint64
	failed    uint64

	wg sync.WaitGroup
}

// New builds a governor. executor may be nil when running purely on paper;
// Start then reports false and no beats are ever sent.
func New(executor ports.OrderExecutor) *Governor {
	return &Governor{
		executor: executor,
		tick:     tickInterval,
		orders:   make(map[string]struct{}),
	}
}

// Start launches the beat loop. It is a no-op when already running, returns
// false without an execution client, and returns false permanently once the
// reconnect budget has been exhausted.
func (g *Governor) Start(ctx context.Context) bool {
	if g.executor == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case stateRunning, stateReconnecting:
		return true
	case stateDisabled:
		return false
	}
	g.ctx = ctx
	g.state = stateRunning
	g.startLoopLocked()
	slog.Info("heartbeat: governor started")
	return true
}

// Stop halts ticking and any pending reconnect. Effective immediately for
// future scheduling; an in-flight beat finishes and its result is discarded.
func (g *Governor) Stop() {
	g.mu.Lock()
	if g.state == stateRunning || g.state == stateReconnecting {
		g.state = stateIdle
	}
	g.stopLoopLocked()
	g.stopTimerLocked()
	g.mu.Unlock()
	g.wg.Wait()
}

// RegisterGTDOrder adds a resting order to the protected set. Idempotent.
// FAK orders must never be registered; they need no liveness protection.
func (g *Governor) RegisterGTDOrder(clobOrderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[clobOrderID] = struct{}{}
}

// UnregisterGTDOrder removes an order after it fills, cancels, or expires.
// Idempotent.
func (g *Governor) UnregisterGTDOrder(clobOrderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.orders, clobOrderID)
}

// CancelAllOpenOrders sweeps every resting order, called at the window
// boundary so nothing survives to fill against a stale price. On success the
// set is cleared; on failure the set is left untouched and the error
// returned, leaving the caller to decide whether retrying against an
// unknown book state is safe.
func (g *Governor) CancelAllOpenOrders(ctx context.Context) error {
	g.mu.Lock()
	open := len(g.orders)
	g.mu.Unlock()

	if open == 0 {
		return nil
	}
	if g.executor == nil {
		g.mu.Lock()
		g.orders = make(map[string]struct{})
		g.mu.Unlock()
		return nil
	}

	if err := g.executor.CancelAll(ctx); err != nil {
		return fmt.Errorf("heartbeat: cancel all: %w", err)
	}

	g.mu.Lock()
	g.orders = make(map[string]struct{})
	g.recordLocked(domain.HeartbeatCancelSweep, "", open)
	g.mu.Unlock()
	slog.Info("heartbeat: open orders swept", "cancelled", open)
	return nil
}

// IsReconnecting reports whether a reconnect is pending. While true, callers
// must not place new live orders: liveness cannot be guaranteed.
func (g *Governor) IsReconnecting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == stateReconnecting
}

// LiveEnabled is false only after the terminal disable.
func (g *Governor) LiveEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state != stateDisabled
}

// OpenOrderCount returns the size of the protected set.
func (g *Governor) OpenOrderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

// Counts returns beats sent and failed since construction.
func (g *Governor) Counts() (sent, failed uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent, g.failed
}

// DrainEvents returns buffered governor transitions and clears the buffer.
// The engine drains once per cycle and persists them.
func (g *Governor) DrainEvents() []domain.HeartbeatEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.events
	g.events = nil
	return out
}

func (g *Governor) startLoopLocked() {
	stop := make(chan struct{})
	g.stopCh = stop
	g.wg.Add(1)
	go g.loop(stop)
}

func (g *Governor) stopLoopLocked() {
	if g.stopCh != nil {
		close(g.stopCh)
		g.stopCh = nil
	}
}

func (g *Governor) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Governor) loop(stop chan struct{}) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.beat()
		case <-stop:
			return
		case <-g.ctx.Done():
			return
		}
	}
}

// beat sends one heartbeat, skipping when nothing rests. Success resets both
// the failure and the reconnect counters; the third consecutive failure
// escalates.
func (g *Governor) beat() {
	g.mu.Lock()
	if g.state != stateRunning {
		g.mu.Unlock()
		return
	}
	open := len(g.orders)
	if open == 0 {
		g.mu.Unlock()
		slog.Debug("heartbeat: no resting orders, beat skipped")
		return
	}
	session := g.sessionID
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(g.ctx, beatTimeout)
	next, err := g.executor.PostHeartbeat(ctx, session)
	cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateRunning {
		// Stopped while the beat was in flight; discard the result.
		return
	}

	if err == nil {
		g.sessionID = next
		g.sent++
		recovered := g.failures > 0 || g.attempts > 0
		g.failures = 0
		g.attempts = 0
		if recovered {
			slog.Info("heartbeat: recovered", "open_orders", open)
			g.recordLocked(domain.HeartbeatRecovered, "", open)
		} else {
			slog.Debug("heartbeat: sent", "open_orders", open)
		}
		return
	}

	g.failed++
	g.failures++
	slog.Warn("heartbeat: send failed",
		"consecutive", g.failures, "open_orders", open, "error", err)
	g.recordLocked(domain.HeartbeatFailed, err.Error(), open)

	if g.failures < failureThreshold {
		return
	}
	g.escalateLocked(open)
}

// escalateLocked stops the beat loop and either schedules the next reconnect
// or, with the budget spent, disables live trading terminally.
func (g *Governor) escalateLocked(open int) {
	g.stopLoopLocked()

	if g.attempts >= maxReconnects {
		g.state = stateDisabled
		slog.Error("heartbeat: reconnect budget exhausted, live trading disabled",
			"attempts", g.attempts)
		g.recordLocked(domain.HeartbeatDisabled, "reconnect budget exhausted", open)
		return
	}

	g.attempts++
	delay := reconnectDelay(g.attempts)
	g.state = stateReconnecting
	g.timer = time.AfterFunc(delay, g.resume)
	slog.Warn("heartbeat: reconnect scheduled",
		"attempt", g.attempts, "of", maxReconnects, "delay", delay)
	g.recordLocked(domain.HeartbeatReconnect, delay.String(), open)
}

// resume fires when the reconnect delay elapses. It proceeds only while the
// governor is still in the reconnecting state, so a manual Stop that raced
// the timer wins.
func (g *Governor) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateReconnecting {
		return
	}
	g.stopTimerLocked()
	g.state = stateRunning
	g.startLoopLocked()
	slog.Info("heartbeat: beat loop restarted", "attempt", g.attempts)
}

// reconnectDelay doubles from 5s per attempt, capped at 30s.
func reconnectDelay(attempt int) time.Duration {
	d := reconnectBase << (attempt - 1)
	if d <= 0 || d > reconnectCeiling {
		return reconnectCeiling
	}
	return d
}

func (g *Governor) recordLocked(kind domain.HeartbeatEventKind, detail string, open int) {
	if len(g.events) >= maxBufferedEvents {
		g.events = g.events[1:]
	}
	g.events = append(g.events, domain.HeartbeatEvent{
		At:         time.Now().UTC(),
		Kind:       kind,
		Detail:     detail,
		Failures:   g.failures,
		Attempt:    g.attempts,
		OpenOrders: open,
	})
}

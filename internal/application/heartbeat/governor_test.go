package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// fakeExecutor counts beats and cancels; beatErr makes every beat fail.
type fakeExecutor struct {
	mu        sync.Mutex
	sessions  []string // session ids received, including failed beats
	beatErr   error
	cancelErr error
	cancels   int
}

func (f *fakeExecutor) PostHeartbeat(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	if f.beatErr != nil {
		return "", f.beatErr
	}
	return fmt.Sprintf("s%d", len(f.sessions)), nil
}

func (f *fakeExecutor) PlaceOrder(context.Context, domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	return domain.PlacedOrder{}, nil
}

func (f *fakeExecutor) CancelOrder(context.Context, string) error { return nil }

func (f *fakeExecutor) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return f.cancelErr
}

func (f *fakeExecutor) GetOpenOrders(context.Context) ([]domain.OpenOrder, error) {
	return nil, nil
}

func (f *fakeExecutor) GetBalance(context.Context) (float64, error) { return 0, nil }

func (f *fakeExecutor) beatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeExecutor) setBeatErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beatErr = err
}

// newManualGovernor returns a started governor whose ticker never fires;
// tests drive beats by calling beat directly.
func newManualGovernor(t *testing.T, exec *fakeExecutor) *Governor {
	g := New(exec)
	g.tick = time.Hour
	require.True(t, g.Start(context.Background()))
	t.Cleanup(g.Stop)
	return g
}

func kinds(events []domain.HeartbeatEvent) []domain.HeartbeatEventKind {
	out := make([]domain.HeartbeatEventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// --- start/stop ---

func TestGovernor_PaperModeStartReturnsFalse(t *testing.T) {
	g := New(nil)
	assert.False(t, g.Start(context.Background()))
	assert.True(t, g.LiveEnabled()) // not disabled, just not running
}

func TestGovernor_StartTwiceIsNoop(t *testing.T) {
	exec := &fakeExecutor{}
	g := newManualGovernor(t, exec)
	assert.True(t, g.Start(context.Background()))
}

// --- beats ---

func TestGovernor_BeatCarriesSessionID(t *testing.T) {
	exec := &fakeExecutor{}
	g := newManualGovernor(t, exec)
	g.RegisterGTDOrder("0xa1")

	g.beat()
	g.beat()

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Equal(t, []string{"", "s1"}, exec.sessions)

	sent, failed := g.Counts()
	assert.Equal(t, uint64(2), sent)
	assert.Zero(t, failed)
}

func TestGovernor_SkipsBeatWhenNoOrders(t *testing.T) {
	exec := &fakeExecutor{}
	g := newManualGovernor(t, exec)

	g.beat()

	assert.Zero(t, exec.beatCount())
	sent, _ := g.Counts()
	assert.Zero(t, sent)
}

func TestGovernor_TickerDrivesBeats(t *testing.T) {
	exec := &fakeExecutor{}
	g := New(exec)
	g.tick = 20 * time.Millisecond
	g.RegisterGTDOrder("0xa1")
	require.True(t, g.Start(context.Background()))
	defer g.Stop()

	assert.Eventually(t, func() bool {
		sent, _ := g.Counts()
		return sent >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

// --- failure ladder ---

func TestGovernor_ThreeFailuresScheduleReconnect(t *testing.T) {
	exec := &fakeExecutor{beatErr: errors.New("boom")}
	g := newManualGovernor(t, exec)
	g.RegisterGTDOrder("0xa1")

	g.beat()
	g.beat()
	assert.False(t, g.IsReconnecting()) // below threshold: log and continue

	g.beat()
	assert.True(t, g.IsReconnecting())
	assert.True(t, g.LiveEnabled())

	events := g.DrainEvents()
	require.Equal(t, []domain.HeartbeatEventKind{
		domain.HeartbeatFailed,
		domain.HeartbeatFailed,
		domain.HeartbeatFailed,
		domain.HeartbeatReconnect,
	}, kinds(events))
	assert.Equal(t, 1, events[3].Attempt)
	assert.Equal(t, "5s", events[3].Detail)

	// The beat loop is stopped while reconnecting: a stray tick does nothing.
	before := exec.beatCount()
	g.beat()
	assert.Equal(t, before, exec.beatCount())
}

func TestGovernor_SuccessfulBeatAfterReconnectResetsCounters(t *testing.T) {
	exec := &fakeExecutor{beatErr: errors.New("boom")}
	g := newManualGovernor(t, exec)
	g.RegisterGTDOrder("0xa1")

	for i := 0; i < 3; i++ {
		g.beat()
	}
	require.True(t, g.IsReconnecting())

	exec.setBeatErr(nil)
	g.resume()
	require.False(t, g.IsReconnecting())

	g.beat()

	g.mu.Lock()
	failures, attempts := g.failures, g.attempts
	g.mu.Unlock()
	assert.Zero(t, failures)
	assert.Zero(t, attempts)

	events := kinds(g.DrainEvents())
	assert.Equal(t, domain.HeartbeatRecovered, events[len(events)-1])
}

func TestGovernor_ExhaustedLadderDisablesLive(t *testing.T) {
	exec := &fakeExecutor{beatErr: errors.New("boom")}
	g := newManualGovernor(t, exec)
	g.RegisterGTDOrder("0xa1")

	// Rung 1 takes three consecutive failures; the counter is not reset by
	// reconnecting, so each later rung re-escalates after a single failure.
	for i := 0; i < 3; i++ {
		g.beat()
	}
	for rung := 2; rung <= 5; rung++ {
		require.True(t, g.IsReconnecting(), "rung %d", rung)
		g.resume()
		g.beat()
	}
	require.True(t, g.IsReconnecting())
	assert.True(t, g.LiveEnabled())

	// Budget spent: the next escalation is terminal.
	g.resume()
	g.beat()

	assert.False(t, g.LiveEnabled())
	assert.False(t, g.IsReconnecting())
	assert.False(t, g.Start(context.Background()), "disabled is terminal")

	var delays []string
	events := g.DrainEvents()
	for _, e := range events {
		if e.Kind == domain.HeartbeatReconnect {
			delays = append(delays, e.Detail)
		}
	}
	assert.Equal(t, []string{"5s", "10s", "20s", "30s", "30s"}, delays)
	assert.Equal(t, domain.HeartbeatDisabled, events[len(events)-1].Kind)
}

func TestGovernor_StopWinsRaceAgainstPendingReconnect(t *testing.T) {
	exec := &fakeExecutor{beatErr: errors.New("boom")}
	g := newManualGovernor(t, exec)
	g.RegisterGTDOrder("0xa1")

	for i := 0; i < 3; i++ {
		g.beat()
	}
	require.True(t, g.IsReconnecting())

	g.Stop()
	g.resume() // the timer fires after Stop; it must refuse to proceed

	assert.False(t, g.IsReconnecting())
	before := exec.beatCount()
	g.beat()
	assert.Equal(t, before, exec.beatCount())
}

func TestReconnectDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, reconnectDelay(1))
	assert.Equal(t, 10*time.Second, reconnectDelay(2))
	assert.Equal(t, 20*time.Second, reconnectDelay(3))
	assert.Equal(t, 30*time.Second, reconnectDelay(4)) // 40s capped
	assert.Equal(t, 30*time.Second, reconnectDelay(5))
}

// --- order set ---

func TestGovernor_RegisterUnregisterIdempotent(t *testing.T) {
	g := New(&fakeExecutor{})
	g.RegisterGTDOrder("0xa1")
	g.RegisterGTDOrder("0xa1")
	assert.Equal(t, 1, g.OpenOrderCount())

	g.UnregisterGTDOrder("0xa1")
	g.UnregisterGTDOrder("0xa1")
	assert.Zero(t, g.OpenOrderCount())
}

func TestGovernor_CancelAllClearsSetOnSuccess(t *testing.T) {
	exec := &fakeExecutor{}
	g := New(exec)
	g.RegisterGTDOrder("0xa1")
	g.RegisterGTDOrder("0xa2")

	require.NoError(t, g.CancelAllOpenOrders(context.Background()))
	assert.Zero(t, g.OpenOrderCount())
	assert.Equal(t, 1, exec.cancels)

	events := g.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.HeartbeatCancelSweep, events[0].Kind)
	assert.Equal(t, 2, events[0].OpenOrders)
}

func TestGovernor_CancelAllFailureKeepsSet(t *testing.T) {
	exec := &fakeExecutor{cancelErr: errors.New("clob down")}
	g := New(exec)
	g.RegisterGTDOrder("0xa1")

	err := g.CancelAllOpenOrders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clob down")
	assert.Equal(t, 1, g.OpenOrderCount(), "set untouched so the caller can retry")
}

func TestGovernor_CancelAllEmptySetSkipsCall(t *testing.T) {
	exec := &fakeExecutor{}
	g := New(exec)
	require.NoError(t, g.CancelAllOpenOrders(context.Background()))
	assert.Zero(t, exec.cancels)
}

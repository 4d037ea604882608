package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// newWSServer runs a test WebSocket endpoint. handle gets the 1-based
// connection index so scripts can behave differently across reconnects.
func newWSServer(t *testing.T, handle func(n int, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	var (
		upgrader websocket.Upgrader
		mu       sync.Mutex
		n        int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		n++
		i := n
		mu.Unlock()
		handle(i, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// --- decode and counters ---

func TestClient_DecodesTicksAndCountsDrops(t *testing.T) {
	srv := newWSServer(t, func(n int, conn *websocket.Conn) {
		defer conn.Close()
		// Two junk frames, then a real trade. 3 received, 2 dropped.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"aggTrade","p":"1","T":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","p":"109432.5","T":1714000000000}`))
		conn.ReadMessage() // hold the connection open until the client closes
	})

	c := NewExchangeFeed(wsURL(srv), "BTCUSDT")
	c.Start(context.Background())
	defer c.Close()

	require.Eventually(t, func() bool { return c.Last().HasPrice() }, 2*time.Second, 10*time.Millisecond)

	last := c.Last()
	assert.Equal(t, 109432.5, *last.Price)
	assert.Equal(t, int64(1714000000000), *last.UpdatedAt)
	assert.Equal(t, domain.SourceExchangeWS, last.Source)

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.Received)
	assert.Equal(t, uint64(2), stats.Dropped)
}

// --- reconnect ---

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	srv := newWSServer(t, func(n int, conn *websocket.Conn) {
		defer conn.Close()
		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","p":"100","T":1000}`))
			return // drop the connection, forcing a redial
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","p":"200","T":2000}`))
		conn.ReadMessage()
	})

	c := NewExchangeFeed(wsURL(srv), "btcusdt")
	c.Start(context.Background())
	defer c.Close()

	// The second connection's tick must land after the ~500ms backoff floor.
	require.Eventually(t, func() bool {
		last := c.Last()
		return last.HasPrice() && *last.Price == 200
	}, 5*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, c.Stats().Reconnects, uint64(1))
}

// --- close is terminal ---

func TestClient_CloseStopsReconnecting(t *testing.T) {
	var conns atomic.Int32
	srv := newWSServer(t, func(n int, conn *websocket.Conn) {
		conns.Add(1)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","p":"1","T":1}`))
		conn.Close() // every connection dies immediately
	})

	c := NewExchangeFeed(wsURL(srv), "btcusdt")
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.Last().HasPrice() }, 2*time.Second, 10*time.Millisecond)

	c.Close()
	// Close waits for the run loop, so the dial count is final here.
	n := conns.Load()
	time.Sleep(800 * time.Millisecond) // several backoff floors
	assert.Equal(t, n, conns.Load(), "no dials after Close")

	c.Close() // idempotent
}

func TestClient_StartAfterCloseIsNoop(t *testing.T) {
	var conns atomic.Int32
	srv := newWSServer(t, func(n int, conn *websocket.Conn) {
		conns.Add(1)
		conn.Close()
	})

	c := NewExchangeFeed(wsURL(srv), "btcusdt")
	c.Close()
	c.Start(context.Background())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), conns.Load())
}

// --- backoff policy ---

func TestReconnectPolicy_GrowthAndCap(t *testing.T) {
	p := defaultPolicy

	// 500ms × 1.5 = 750ms, × 1.5 = 1125ms, ...
	d := p.floor
	assert.Equal(t, 500*time.Millisecond, d)
	d = p.next(d)
	assert.Equal(t, 750*time.Millisecond, d)
	d = p.next(d)
	assert.Equal(t, 1125*time.Millisecond, d)

	// Growth saturates at the 10s ceiling and stays there.
	for i := 0; i < 20; i++ {
		d = p.next(d)
	}
	assert.Equal(t, 10*time.Second, d)
	assert.Equal(t, 10*time.Second, p.next(d))
}

// --- missing configuration ---

func TestMissing_ReturnsMissingConfigTick(t *testing.T) {
	m := NewMissing()
	defer m.Close()

	last := m.Last()
	assert.Equal(t, domain.SourceMissingConfig, last.Source)
	assert.False(t, last.HasPrice())
	assert.Equal(t, domain.FeedStats{}, m.Stats())
}

// --- binance decoder ---

func TestDecodeBinanceTrade_RejectsNonTradeEvents(t *testing.T) {
	_, ok := decodeBinanceTrade([]byte(`{"e":"aggTrade","p":"100","T":1}`))
	assert.False(t, ok)

	_, ok = decodeBinanceTrade([]byte(`{"result":null,"id":1}`))
	assert.False(t, ok)

	_, ok = decodeBinanceTrade([]byte(`{"e":"trade","p":"not-a-number","T":1}`))
	assert.False(t, ok)

	_, ok = decodeBinanceTrade([]byte(`{"e":"trade","p":"-5","T":1}`))
	assert.False(t, ok)
}

func TestDecodeBinanceTrade_ParsesPriceAndTime(t *testing.T) {
	tick, ok := decodeBinanceTrade([]byte(`{"e":"trade","s":"BTCUSDT","p":"65000.01","T":1714000000123}`))
	require.True(t, ok)
	assert.Equal(t, 65000.01, *tick.Price)
	assert.Equal(t, int64(1714000000123), *tick.UpdatedAt)
	assert.Equal(t, domain.SourceExchangeWS, tick.Source)
}

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// Reconnect backoff shared by every stream client. The constants are tuned
// against the exchange's order-liveness timing; do not vary them per feed.
const (
	reconnectFloor   = 500 * time.Millisecond
	reconnectFactor  = 1.5
	reconnectCeiling = 10 * time.Second

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// reconnectPolicy grows a delay geometrically up to a ceiling. One policy
// value serves all clients.
type reconnectPolicy struct {
	floor   time.Duration
	factor  float64
	ceiling time.Duration
}

var defaultPolicy = reconnectPolicy{floor: reconnectFloor, factor: reconnectFactor, ceiling: reconnectCeiling}

func (p reconnectPolicy) next(cur time.Duration) time.Duration {
	grown := time.Duration(float64(cur) * p.factor)
	if grown > p.ceiling {
		return p.ceiling
	}
	return grown
}

// DecodeFunc turns one inbound frame into a tick. ok=false drops the frame
// silently; the drop is only visible through Stats.
type DecodeFunc func(msg []byte) (domain.PriceTick, bool)

// FilterFunc pre-screens frames before decoding. Returning false drops the
// frame the same way a decode failure does.
type FilterFunc func(msg []byte) bool

// Options configure one stream client.
type Options struct {
	Name     string // log prefix, e.g. "exchange"
	Source   domain.TickSource
	Endpoint func() (string, error) // rebuilt on every dial
	Decode   DecodeFunc
	Filter   FilterFunc // optional
	// Subscribe, when set, is sent as JSON right after every successful open.
	Subscribe func() any
	// PingInterval enables a keep-alive. PingPayload is sent as a text frame
	// when non-nil, otherwise a control ping is used.
	PingInterval time.Duration
	PingPayload  []byte
}

// Client is a long-lived push-feed connector with auto-reconnect. It owns one
// mutable last-tick cell, overwritten atomically on each decoded message;
// connection failures never surface to readers, only staleness does.
type Client struct {
	opts   Options
	policy reconnectPolicy
	dialer *websocket.Dialer

	mu   sync.RWMutex
	last domain.PriceTick
	conn *websocket.Conn

	closed atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup

	received   atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
}

// New builds a client. Start must be called before Last returns anything but
// an empty tick tagged with the source.
func New(opts Options) *Client {
	return &Client{
		opts:   opts,
		policy: defaultPolicy,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		last:   domain.PriceTick{Source: opts.Source},
		stop:   make(chan struct{}),
	}
}

// Start launches the connect/read/reconnect loop. It is a no-op after Close.
func (c *Client) Start(ctx context.Context) {
	if c.closed.Load() {
		return
	}
	c.wg.Add(1)
	go c.run(ctx)
}

// Last returns the most recent decoded tick. Never blocks.
func (c *Client) Last() domain.PriceTick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Stats reports wire counters for operational visibility.
func (c *Client) Stats() domain.FeedStats {
	return domain.FeedStats{
		Received:   c.received.Load(),
		Dropped:    c.dropped.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// Close is terminal: it tears down the active connection and guarantees no
// further reconnect attempts, even one already in flight.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stop)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	delay := c.policy.floor
	for {
		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		conn, err := c.connect(ctx)
		if err == nil {
			delay = c.policy.floor // reset only on successful open
			err = c.consume(conn)
		}
		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		slog.Debug(c.opts.Name+": stream disconnected", "error", err, "retry_in", delay)
		c.reconnects.Add(1)
		select {
		case <-time.After(delay):
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
		delay = c.policy.next(delay)
	}
}

// connect dials, registers the connection, and sends the subscription.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	url, err := c.opts.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("stream.%s: endpoint: %w", c.opts.Name, err)
	}
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("stream.%s: dial: %w", c.opts.Name, err)
	}

	c.mu.Lock()
	if c.closed.Load() {
		// Closed while the dial was in flight: a connection must not
		// survive Close.
		c.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("stream.%s: closed", c.opts.Name)
	}
	c.conn = conn
	c.mu.Unlock()

	if c.opts.Subscribe != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(c.opts.Subscribe()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("stream.%s: subscribe: %w", c.opts.Name, err)
		}
	}
	slog.Debug(c.opts.Name + ": stream connected")
	return conn, nil
}

// consume reads frames until the connection dies. Ticks are applied in
// receipt order; frames that fail the filter or decoder are dropped without
// error and only show up in the counters.
func (c *Client) consume(conn *websocket.Conn) error {
	defer conn.Close()

	if c.opts.PingInterval > 0 {
		stopPing := make(chan struct{})
		defer close(stopPing)
		go c.pingLoop(conn, stopPing)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.received.Add(1)
		if c.opts.Filter != nil && !c.opts.Filter(msg) {
			c.dropped.Add(1)
			continue
		}
		tick, ok := c.opts.Decode(msg)
		if !ok {
			c.dropped.Add(1)
			continue
		}
		c.mu.Lock()
		c.last = tick
		c.mu.Unlock()
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if c.opts.PingPayload != nil {
				_ = conn.WriteMessage(websocket.TextMessage, c.opts.PingPayload)
			} else {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// Missing is the stand-in feed for a source with no endpoint configured. It
// satisfies the same reader contract with an explicit missing_config tick so
// callers short-circuit instead of attempting I/O.
type Missing struct {
	tick domain.PriceTick
}

// NewMissing builds the stand-in feed.
func NewMissing() *Missing {
	return &Missing{tick: domain.MissingConfigTick()}
}

// Last returns the missing_config marker.
func (m *Missing) Last() domain.PriceTick { return m.tick }

// Stats reports zeroes; nothing was ever on the wire.
func (m *Missing) Stats() domain.FeedStats { return domain.FeedStats{} }

// Close is a no-op.
func (m *Missing) Close() {}

// Package engine runs the fixed-interval decision loop: it reads the latest
// feed ticks, classifies the regime, prices the window probabilistically,
// compares against the CLOB books, and enters positions on sufficient edge.
// Entries are simulated on paper, real GTD orders in live mode.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/application/heartbeat"
	"github.com/youming-ai/orakel-sub002/internal/domain"
	"github.com/youming-ai/orakel-sub002/internal/ports"
)

const (
	defaultCycleInterval  = 5 * time.Second
	defaultCandleLookback = 60 // one hour of 1m bars
	defaultOrderSize      = 10 // USDC

	// GTD orders outlive the window by a safety margin so a fill racing the
	// boundary still lands inside a valid order.
	gtdSafetyMargin = time.Minute

	// Push ticks older than this are not trusted as a reference price;
	// oracle push ticks are additionally backed by an RPC read.
	oracleStaleTTL = 10 * time.Second
	referenceTTL   = 30 * time.Second

	// Shutdown gives the boundary sweep this long on a fresh context.
	shutdownSweepTimeout = 5 * time.Second

	breakerMaxLosses = 3
	breakerCooldown  = 60 * time.Minute
)

// Config holds the operator-set engine parameters.
type Config struct {
	Asset          string  // lowercase ticker, e.g. "btc"
	Symbol         string  // exchange pair, e.g. "BTCUSDT"
	Aggregator     string  // oracle aggregator address; empty disables RPC reads
	OracleDecimals *uint8  // skips the on-chain decimals lookup when known
	OrderSize      float64 // USDC per entry before multipliers
	CycleInterval  time.Duration
	CandleLookback int
	Live           bool // place real orders
	Once           bool // run a single cycle and exit
}

// Feeds groups the three stream clients by role.
type Feeds struct {
	Exchange ports.PriceFeed
	Oracle   ports.PriceFeed
	Operator ports.PriceFeed
}

// Engine owns all per-session trading state. Not safe for concurrent use;
// one engine runs one loop.
type Engine struct {
	cfg   Config
	feeds Feeds

	oracleRPC ports.OracleReader
	candles   ports.CandleProvider
	resolver  ports.MarketResolver
	books     ports.BookProvider
	executor  ports.OrderExecutor // nil in paper mode
	governor  *heartbeat.Governor
	store     ports.Storage
	notifier  ports.Notifier

	tracker *domain.RegimeTransitionTracker
	breaker domain.CircuitBreaker
	stats   domain.SessionStats
	now     func() time.Time // injectable clock

	window    domain.Window
	market    *domain.WindowMarket
	openTick  domain.PriceTick // reference price at window open
	liveOrder *domain.LiveOrder
	positions []domain.Position
	entered   map[domain.Side]bool // sides already taken this window
}

// New wires an engine. executor may be nil (paper mode); governor must not
// be (use a governor built with a nil executor instead).
func New(
	cfg Config,
	feeds Feeds,
	oracleRPC ports.OracleReader,
	candles ports.CandleProvider,
	resolver ports.MarketResolver,
	books ports.BookProvider,
	executor ports.OrderExecutor,
	governor *heartbeat.Governor,
	store ports.Storage,
	notifier ports.Notifier,
) *Engine {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = defaultCycleInterval
	}
	if cfg.CandleLookback <= 0 {
		cfg.CandleLookback = defaultCandleLookback
	}
	if cfg.OrderSize <= 0 {
		cfg.OrderSize = defaultOrderSize
	}

	return &Engine{
		cfg:       cfg,
		feeds:     feeds,
		oracleRPC: oracleRPC,
		candles:   candles,
		resolver:  resolver,
		books:     books,
		executor:  executor,
		governor:  governor,
		store:     store,
		notifier:  notifier,
		tracker:   domain.NewRegimeTransitionTracker(0),
		breaker: domain.CircuitBreaker{
			MaxLosses:        breakerMaxLosses,
			CooldownDuration: breakerCooldown,
		},
		stats:   domain.SessionStats{StartedAt: time.Now().UTC()},
		now:     time.Now,
		entered: make(map[domain.Side]bool),
	}
}

// Run executes the decision loop until ctx is cancelled. The first cycle
// fires immediately. On shutdown it sweeps resting live orders on a fresh
// context and prints the session summary.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: starting",
		"asset", e.cfg.Asset,
		"interval", e.cfg.CycleInterval,
		"live", e.cfg.Live,
		"once", e.cfg.Once,
	)

	if e.cfg.Live {
		if ok := e.governor.Start(ctx); !ok {
			slog.Warn("engine: heartbeat governor not started")
		}
		defer e.governor.Stop()
	}

	if err := e.runCycle(ctx); err != nil {
		slog.Error("engine: cycle failed", "err", err)
		if e.cfg.Once {
			return err
		}
	}
	if e.cfg.Once {
		e.finish(ctx)
		return nil
	}

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			if err := e.runCycle(ctx); err != nil {
				slog.Error("engine: cycle failed", "err", err)
			}
		}
	}
}

// Stats returns a copy of the running session statistics.
func (e *Engine) Stats() domain.SessionStats {
	stats := e.stats
	stats.HeartbeatsSent, stats.HeartbeatFails = heartbeatCounts(e.governor)
	return stats
}

// shutdown sweeps live orders with a fresh bounded context; the loop context
// is already cancelled when we get here.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSweepTimeout)
	defer cancel()

	if e.cfg.Live && e.governor.OpenOrderCount() > 0 {
		if err := e.governor.CancelAllOpenOrders(ctx); err != nil {
			slog.Error("engine: shutdown sweep failed, orders may rest", "err", err)
			e.alert(ctx, "shutdown cancel-all failed", err.Error())
		}
	}
	e.finish(ctx)
	slog.Info("engine: stopped")
}

func (e *Engine) finish(ctx context.Context) {
	if err := e.notifier.SessionSummary(ctx, e.Stats()); err != nil {
		slog.Warn("engine: session summary failed", "err", err)
	}
}

func (e *Engine) alert(ctx context.Context, subject, detail string) {
	if err := e.notifier.Alert(ctx, subject, detail); err != nil {
		slog.Warn("engine: alert failed", "subject", subject, "err", err)
	}
}

func heartbeatCounts(g *heartbeat.Governor) (sent, failed int) {
	s, f := g.Counts()
	return int(s), int(f)
}

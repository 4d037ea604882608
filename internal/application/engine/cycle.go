package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// cycleTicks are the per-source observations gathered at the top of a cycle.
type cycleTicks struct {
	Exchange domain.PriceTick
	Oracle   domain.PriceTick // push tick, RPC-backed when quiet
	Operator domain.PriceTick
}

// runCycle executes one decision cycle. Data failures degrade the verdict
// (missing inputs end in NO_TRADE) instead of aborting the cycle.
func (e *Engine) runCycle(ctx context.Context) error {
	now := e.now().UTC()
	e.stats.CyclesRun++

	// 1. Window bookkeeping: the first cycle anchors, boundary crossings
	// sweep, settle, and re-anchor.
	if !e.window.Contains(now) {
		e.rollWindow(ctx, now)
	}

	// 2. Live order lifecycle: notice fills before deciding again.
	e.syncLiveOrder(ctx, now)

	// 3. Latest ticks from every source.
	ticks := e.gatherTicks(ctx, now)

	// 4. Candles and books in parallel. A plain group, not WithContext:
	// the fetches are independent and one failing must not cancel the other.
	var (
		candles []domain.Candle
		books   map[string]domain.OrderBook
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		candles, err = e.candles.RecentCandles(ctx, e.cfg.Symbol, e.cfg.CandleLookback)
		if err != nil {
			return fmt.Errorf("candles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if e.market == nil {
			return nil
		}
		var err error
		books, err = e.books.FetchOrderBooks(ctx, []string{e.market.UpTokenID, e.market.DownTokenID})
		if err != nil {
			return fmt.Errorf("books: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Warn("engine: market data incomplete", "err", err)
	}

	// 5. Indicators from closed candles plus the live spot.
	spot := tickPrice(ticks.Exchange, now, referenceTTL)
	if spot == nil {
		spot = tickPrice(ticks.Operator, now, referenceTTL)
	}
	spotVal := 0.0
	if spot != nil {
		spotVal = *spot
	}
	snap := domain.ComputeIndicators(candles, spotVal)

	// 6. Regime classification and trade gate.
	regime := domain.DetectEnhancedRegime(snap, e.tracker)
	gate := domain.ShouldTradeOnRegime(regime)

	// 7. Model probabilities for the window outcome.
	remaining := e.window.RemainingMinutes(now)
	modelUp, modelDown := e.modelProbabilities(snap, ticks, candles, remaining, now)

	// 8. Market-implied prices off the books.
	yes, no := e.marketPrices(books)
	edge := domain.ComputeEdge(modelUp, modelDown, yes, no)

	// 9. Verdict, then the session gates.
	verdict := domain.Decide(remaining, edge, modelUp, modelDown)
	verdict = e.gateVerdict(verdict, gate, now)

	// 10. Entry.
	if verdict.Action == domain.ActionEnter {
		e.enter(ctx, verdict, gate.SizeMultiplier, books, now)
	}

	// 11. Persist and report.
	rec := e.buildRecord(now, ticks, regime, verdict, edge, modelUp)
	e.persistCycle(ctx, rec, ticks, now)
	if err := e.notifier.CycleVerdict(ctx, rec); err != nil {
		slog.Warn("engine: notify failed", "err", err)
	}
	return nil
}

// gateVerdict downgrades an ENTER that the regime, the circuit breaker, the
// per-window slot, or the live-session state refuses.
func (e *Engine) gateVerdict(v domain.Verdict, gate domain.TradeGate, now time.Time) domain.Verdict {
	if v.Action != domain.ActionEnter {
		return v
	}
	noTrade := func(reason string) domain.Verdict {
		return domain.Verdict{Action: domain.ActionNoTrade, Phase: v.Phase, Edge: v.Edge, Reason: reason}
	}
	if !gate.Trade {
		return noTrade(gate.Reason)
	}
	if !e.breaker.IsOpen(now) {
		return noTrade("circuit_breaker_cooldown")
	}
	if e.entered[v.Side] {
		return noTrade("side_already_entered")
	}
	if e.cfg.Live {
		if !e.governor.LiveEnabled() {
			return noTrade("live_disabled")
		}
		if e.governor.IsReconnecting() {
			return noTrade("heartbeat_reconnecting")
		}
	}
	return v
}

// gatherTicks reads the last tick of each feed. The push oracle only emits
// on deviation rounds, so a quiet stretch is backed by a throttled RPC read;
// the fresher of the two wins.
func (e *Engine) gatherTicks(ctx context.Context, now time.Time) cycleTicks {
	t := cycleTicks{
		Exchange: e.feeds.Exchange.Last(),
		Oracle:   e.feeds.Oracle.Last(),
		Operator: e.feeds.Operator.Last(),
	}
	if !t.Oracle.FresherThan(now, oracleStaleTTL) {
		rpc := e.oracleRPC.FetchPrice(ctx, e.cfg.Aggregator, e.cfg.OracleDecimals)
		if rpc.HasPrice() && newerTick(rpc, t.Oracle) {
			t.Oracle = rpc
		}
	}
	return t
}

// referencePrice picks the settlement-grade price: oracle first, then the
// operator mirror, then the exchange spot. The oracle is exempt from the
// freshness budget since its rounds are event-driven and legitimately
// sparse; the push mirrors must be recent to be trusted.
func referencePrice(t cycleTicks, now time.Time) domain.PriceTick {
	if t.Oracle.HasPrice() {
		return t.Oracle
	}
	if t.Operator.FresherThan(now, referenceTTL) {
		return t.Operator
	}
	if t.Exchange.FresherThan(now, referenceTTL) {
		return t.Exchange
	}
	return domain.PriceTick{}
}

// modelProbabilities blends the diffusion leg with the technical leg. A
// missing leg degrades to the other; with neither the model is neutral and
// can never clear a phase floor.
func (e *Engine) modelProbabilities(snap domain.IndicatorSnapshot, ticks cycleTicks, candles []domain.Candle, remaining float64, now time.Time) (float64, float64) {
	ref := referencePrice(ticks, now)

	volProb, volOK := 0.0, false
	if ref.HasPrice() && e.openTick.HasPrice() {
		if sigma, ok := domain.ReturnSigma(domain.Closes(candles)); ok {
			volProb, volOK = domain.VolatilityProb(*ref.Price, *e.openTick.Price, sigma, remaining)
		}
	}
	techProb, techOK := domain.TechnicalProb(snap)

	switch {
	case volOK && techOK:
		return domain.BlendProbabilities(volProb, techProb, remaining)
	case volOK:
		return domain.BlendProbabilities(volProb, volProb, remaining)
	case techOK:
		return domain.BlendProbabilities(techProb, techProb, remaining)
	default:
		return 0.5, 0.5
	}
}

// marketPrices reads the cost to buy each side off the fetched books.
func (e *Engine) marketPrices(books map[string]domain.OrderBook) (yes, no *float64) {
	if e.market == nil || books == nil {
		return nil, nil
	}
	if b, ok := books[e.market.UpTokenID]; ok {
		yes = b.EntryCost()
	}
	if b, ok := books[e.market.DownTokenID]; ok {
		no = b.EntryCost()
	}
	return yes, no
}

func (e *Engine) buildRecord(now time.Time, ticks cycleTicks, regime domain.EnhancedRegimeResult, v domain.Verdict, edge domain.Edge, modelUp float64) domain.CycleRecord {
	up := modelUp
	return domain.CycleRecord{
		At:               now,
		Asset:            e.cfg.Asset,
		WindowOpen:       e.window.OpenAt,
		SpotPrice:        ticks.Exchange.Price,
		OraclePrice:      ticks.Oracle.Price,
		OracleSource:     ticks.Oracle.Source,
		OperatorPrice:    ticks.Operator.Price,
		Regime:           regime.Regime,
		RegimeReason:     regime.Reason,
		RegimeConfidence: regime.Confidence,
		Action:           v.Action,
		Side:             v.Side,
		Phase:            v.Phase,
		Strength:         v.Strength,
		Edge:             v.Edge,
		Reason:           v.Reason,
		ModelUp:          &up,
		MarketUp:         edge.MarketUp,
	}
}

func (e *Engine) persistCycle(ctx context.Context, rec domain.CycleRecord, ticks cycleTicks, now time.Time) {
	if err := e.store.SaveCycle(ctx, rec); err != nil {
		slog.Warn("engine: save cycle failed", "err", err)
	}
	snapshot := []domain.PriceTick{ticks.Exchange, ticks.Oracle, ticks.Operator}
	if err := e.store.SavePriceSnapshot(ctx, e.cfg.Asset, now, snapshot); err != nil {
		slog.Warn("engine: save price snapshot failed", "err", err)
	}
	for _, ev := range e.governor.DrainEvents() {
		if err := e.store.SaveHeartbeatEvent(ctx, e.cfg.Asset, ev); err != nil {
			slog.Warn("engine: save heartbeat event failed", "err", err)
		}
	}
}

// tickPrice returns the tick's price when it is fresh enough, else nil.
func tickPrice(t domain.PriceTick, now time.Time, ttl time.Duration) *float64 {
	if t.FresherThan(now, ttl) {
		return t.Price
	}
	return nil
}

// newerTick reports whether a supersedes b by observation time.
func newerTick(a, b domain.PriceTick) bool {
	if !b.HasPrice() || b.UpdatedAt == nil {
		return true
	}
	return a.UpdatedAt != nil && *a.UpdatedAt >= *b.UpdatedAt
}

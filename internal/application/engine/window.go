package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// rollWindow handles a boundary crossing: pick up last-second fills, sweep
// what still rests, settle the closing window, then anchor the new one and
// resolve its market. The first call only anchors.
func (e *Engine) rollWindow(ctx context.Context, now time.Time) {
	if !e.window.OpenAt.IsZero() {
		closing := e.window
		e.syncLiveOrder(ctx, now)
		e.sweepBoundary(ctx)
		e.settleWindow(ctx, closing, now)
	}

	e.window = domain.CurrentWindow(e.cfg.Asset, now)
	e.openTick = referencePrice(e.gatherTicks(ctx, now), now)
	e.market = nil
	e.liveOrder = nil
	e.positions = nil
	e.entered = make(map[domain.Side]bool)

	if wm, err := e.resolver.ResolveWindowMarket(ctx, e.window); err != nil {
		slog.Warn("engine: window market unresolved", "slug", e.window.Slug(), "err", err)
	} else {
		e.market = &wm
	}

	slog.Info("engine: window opened",
		"slug", e.window.Slug(),
		"open_price", tickValue(e.openTick),
		"close_at", e.window.CloseAt.Format(time.TimeOnly),
	)
}

// sweepBoundary force-cancels resting orders so nothing priced for the old
// window survives into the new one. A failed sweep is surfaced, not retried:
// the GTD expiration is the backstop.
func (e *Engine) sweepBoundary(ctx context.Context) {
	if !e.cfg.Live {
		return
	}
	if err := e.governor.CancelAllOpenOrders(ctx); err != nil {
		slog.Error("engine: boundary cancel-all failed, orders may rest", "err", err)
		e.alert(ctx, "boundary cancel-all failed", err.Error())
		return
	}
	if e.liveOrder != nil {
		slog.Info("engine: boundary sweep cancelled resting order", "clob_id", e.liveOrder.CLOBOrderID)
		e.liveOrder = nil
	}
}

// settleWindow resolves the closing window against the reference prices and
// folds the outcome into session stats and the circuit breaker.
func (e *Engine) settleWindow(ctx context.Context, w domain.Window, now time.Time) {
	closeTick := referencePrice(e.gatherTicks(ctx, now), now)

	res := domain.WindowResult{
		Asset:       w.Asset,
		WindowOpen:  w.OpenAt,
		WindowClose: w.CloseAt,
		OpenPrice:   e.openTick.Price,
		ClosePrice:  closeTick.Price,
		Outcome:     domain.OutcomeSkip,
	}

	if e.openTick.HasPrice() && closeTick.HasPrice() {
		side := domain.SettleSide(*e.openTick.Price, *closeTick.Price)
		res.SettledSide = &side
	}

	if len(e.positions) > 0 {
		res.Entered = true
		res.Side = e.positions[0].Side
		res.EntryPrice = e.positions[0].EntryPrice
		for _, pos := range e.positions {
			res.Size += pos.Size
			if res.SettledSide != nil {
				res.PnL += pos.PnL(*res.SettledSide)
			}
		}
		switch {
		case res.SettledSide == nil:
			slog.Warn("engine: window entered but settlement price missing", "slug", w.Slug())
		case res.PnL >= 0:
			res.Outcome = domain.OutcomeWin
		default:
			res.Outcome = domain.OutcomeLoss
		}
	}

	e.stats.RecordWindow(res)
	switch res.Outcome {
	case domain.OutcomeLoss:
		e.breaker.RecordLoss(now, res.PnL)
		if !e.breaker.IsOpen(now) {
			until := e.breaker.CooldownUntil.Format(time.TimeOnly)
			slog.Warn("engine: circuit breaker tripped", "cooldown_until", until)
			e.alert(ctx, "circuit breaker tripped", fmt.Sprintf("entries paused until %s", until))
		}
	case domain.OutcomeWin:
		e.breaker.RecordWin(res.PnL)
	}

	if err := e.store.SaveWindowResult(ctx, res); err != nil {
		slog.Warn("engine: save window result failed", "err", err)
	}
	if err := e.notifier.WindowSettled(ctx, res, e.Stats()); err != nil {
		slog.Warn("engine: notify settlement failed", "err", err)
	}
}

// tickValue renders a tick for logging.
func tickValue(t domain.PriceTick) any {
	if !t.HasPrice() {
		return "missing"
	}
	return *t.Price
}

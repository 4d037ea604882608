package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// enter opens a position for the verdict side: recorded immediately in paper
// mode, a marketable GTD bid on the CLOB in live mode.
func (e *Engine) enter(ctx context.Context, v domain.Verdict, sizeMult float64, books map[string]domain.OrderBook, now time.Time) {
	if e.market == nil {
		slog.Warn("engine: entry skipped, window market unresolved")
		return
	}

	tokenID := e.market.UpTokenID
	if v.Side == domain.SideDown {
		tokenID = e.market.DownTokenID
	}
	book, ok := books[tokenID]
	if !ok {
		slog.Warn("engine: entry skipped, no book for side", "side", v.Side)
		return
	}
	cost := book.EntryCost()
	if cost == nil || *cost <= 0 || *cost >= 1 {
		slog.Warn("engine: entry skipped, unusable entry cost", "side", v.Side)
		return
	}

	size := e.cfg.OrderSize * sizeMult
	if size <= 0 {
		return
	}

	if !e.cfg.Live {
		e.enterPaper(v, *cost, size, now)
		return
	}
	e.enterLive(ctx, v, tokenID, *cost, size, now)
}

func (e *Engine) enterPaper(v domain.Verdict, price, size float64, now time.Time) {
	pos := domain.Position{
		ID:         uuid.NewString(),
		Asset:      e.cfg.Asset,
		WindowOpen: e.window.OpenAt,
		Side:       v.Side,
		EntryPrice: price,
		Size:       size,
		Shares:     size / price,
		EnteredAt:  now,
		Strength:   v.Strength,
		Simulated:  true,
	}
	e.positions = append(e.positions, pos)
	e.entered[v.Side] = true
	slog.Info("engine: paper entry",
		"side", v.Side,
		"price", price,
		"size", size,
		"strength", v.Strength,
	)
}

func (e *Engine) enterLive(ctx context.Context, v domain.Verdict, tokenID string, price, size float64, now time.Time) {
	expiresAt := e.window.CloseAt.Add(gtdSafetyMargin)
	req := domain.PlaceOrderRequest{
		TokenID:     tokenID,
		ConditionID: e.market.ConditionID,
		Price:       price,
		Size:        size,
		Kind:        domain.OrderKindGTD,
		ExpiresAt:   expiresAt,
		NegRisk:     e.market.NegRisk,
		TickSize:    e.market.TickSize,
	}
	placed, err := e.executor.PlaceOrder(ctx, req)
	if err != nil {
		slog.Error("engine: order placement failed", "side", v.Side, "err", err)
		return
	}
	e.entered[v.Side] = true

	if placed.Status == "matched" {
		pos := domain.Position{
			ID:         uuid.NewString(),
			Asset:      e.cfg.Asset,
			WindowOpen: e.window.OpenAt,
			Side:       v.Side,
			EntryPrice: price,
			Size:       size,
			Shares:     size / price,
			EnteredAt:  now,
			Strength:   v.Strength,
		}
		e.positions = append(e.positions, pos)
		slog.Info("engine: live entry matched immediately",
			"clob_id", placed.CLOBOrderID,
			"side", v.Side,
			"price", price,
			"size", size,
		)
		return
	}

	order := domain.LiveOrder{
		ID:          uuid.NewString(),
		CLOBOrderID: placed.CLOBOrderID,
		ConditionID: e.market.ConditionID,
		TokenID:     tokenID,
		Side:        v.Side,
		Kind:        domain.OrderKindGTD,
		Price:       price,
		Size:        size,
		PlacedAt:    now,
		ExpiresAt:   expiresAt,
		Status:      domain.OrderStatusOpen,
		WindowOpen:  e.window.OpenAt,
		Asset:       e.cfg.Asset,
	}
	e.liveOrder = &order
	e.governor.RegisterGTDOrder(placed.CLOBOrderID)
	slog.Info("engine: live order resting",
		"clob_id", placed.CLOBOrderID,
		"side", v.Side,
		"price", price,
		"size", size,
		"expires", expiresAt.Format(time.TimeOnly),
	)
}

// syncLiveOrder diffs the exchange's resting set against the tracked order.
// Present means still resting; absent before the deadline means it filled;
// absent after means it expired unfilled.
func (e *Engine) syncLiveOrder(ctx context.Context, now time.Time) {
	if !e.cfg.Live || e.liveOrder == nil {
		return
	}
	open, err := e.executor.GetOpenOrders(ctx)
	if err != nil {
		slog.Warn("engine: open order sync failed", "err", err)
		return
	}

	for _, o := range open {
		if o.CLOBOrderID != e.liveOrder.CLOBOrderID {
			continue
		}
		if o.SizeMatched > e.liveOrder.FilledSize {
			e.liveOrder.FilledSize = o.SizeMatched
			slog.Info("engine: partial fill", "clob_id", o.CLOBOrderID, "matched", o.SizeMatched)
		}
		return
	}

	order := *e.liveOrder
	e.liveOrder = nil
	e.governor.UnregisterGTDOrder(order.CLOBOrderID)

	if now.Before(order.ExpiresAt) {
		e.positions = append(e.positions, domain.Position{
			ID:         order.ID,
			Asset:      order.Asset,
			WindowOpen: order.WindowOpen,
			Side:       order.Side,
			EntryPrice: order.Price,
			Size:       order.Size,
			Shares:     order.Size / order.Price,
			EnteredAt:  now,
		})
		slog.Info("engine: live order filled", "clob_id", order.CLOBOrderID, "side", order.Side)
		return
	}
	slog.Info("engine: live order expired unfilled", "clob_id", order.CLOBOrderID)
}

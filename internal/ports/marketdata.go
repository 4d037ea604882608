package ports

import (
	"context"

	"github.com/youming-ai/orakel-sub002/internal/domain"
)

// MarketResolver finds the exchange-side market for a trading window.
type MarketResolver interface {
	// ResolveWindowMarket looks up the window's market by slug and returns
	// its condition id and outcome token ids.
	ResolveWindowMarket(ctx context.Context, w domain.Window) (domain.WindowMarket, error)
}

// BookProvider fetches CLOB orderbooks via the batch endpoint.
type BookProvider interface {
	// FetchOrderBooks returns the orderbooks for the given token ids.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}

// CandleProvider supplies recent one-minute candles for the reference asset.
type CandleProvider interface {
	// RecentCandles returns up to limit candles, oldest first, including the
	// in-progress bar.
	RecentCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error)
}

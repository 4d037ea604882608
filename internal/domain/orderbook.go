package domain

import "strconv"

// OrderBook is the resting liquidity for one outcome token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // highest price first
	Asks    []BookEntry // lowest price first
}

// BookEntry is one price level.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid returns the highest bid, or 0 when that side is empty.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask, or 0 when that side is empty.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint returns (bid+ask)/2, or 0 when either side is empty.
func (ob OrderBook) Midpoint() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns ask-bid, or 0 when either side is empty.
func (ob OrderBook) Spread() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// MarketPrice is the market-implied probability read off the book: the
// midpoint when both sides are quoted, the ask when only sellers remain, nil
// when the book gives no usable price. Nil feeds straight into the
// missing-market-data path of the decision engine.
func (ob OrderBook) MarketPrice() *float64 {
	if mid := ob.Midpoint(); mid > 0 {
		return &mid
	}
	if ask := ob.BestAsk(); ask > 0 {
		return &ask
	}
	return nil
}

// EntryCost is the price actually paid to take liquidity: best ask, falling
// back to the midpoint estimate when the ask side is empty.
func (ob OrderBook) EntryCost() *float64 {
	if ask := ob.BestAsk(); ask > 0 {
		return &ask
	}
	if mid := ob.Midpoint(); mid > 0 {
		return &mid
	}
	return nil
}

// ParsePrice converts an API price string to float64, returning 0 on junk.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

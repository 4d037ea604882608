package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderBook_EmptySides(t *testing.T) {
	var ob OrderBook
	assert.Equal(t, 0.0, ob.BestBid())
	assert.Equal(t, 0.0, ob.BestAsk())
	assert.Equal(t, 0.0, ob.Midpoint())
	assert.Nil(t, ob.MarketPrice())
}

func TestOrderBook_Midpoint(t *testing.T) {
	ob := OrderBook{
		Bids: []BookEntry{{Price: 0.54, Size: 100}},
		Asks: []BookEntry{{Price: 0.56, Size: 80}},
	}
	assert.InDelta(t, 0.55, ob.Midpoint(), 1e-9)
	assert.InDelta(t, 0.02, ob.Spread(), 1e-9)
}

func TestOrderBook_MarketPriceFallsBackToAsk(t *testing.T) {
	ob := OrderBook{Asks: []BookEntry{{Price: 0.60, Size: 10}}}
	p := ob.MarketPrice()
	require.NotNil(t, p)
	assert.InDelta(t, 0.60, *p, 1e-9)
}

func TestOrderBook_EntryCostPrefersAsk(t *testing.T) {
	ob := OrderBook{
		Bids: []BookEntry{{Price: 0.54, Size: 100}},
		Asks: []BookEntry{{Price: 0.56, Size: 80}},
	}
	c := ob.EntryCost()
	require.NotNil(t, c)
	assert.InDelta(t, 0.56, *c, 1e-9)

	bidOnly := OrderBook{Bids: []BookEntry{{Price: 0.54, Size: 100}}}
	assert.Nil(t, bidOnly.EntryCost())
}

func TestParsePrice(t *testing.T) {
	assert.InDelta(t, 0.55, ParsePrice("0.55"), 1e-9)
	assert.Equal(t, 0.0, ParsePrice("garbage"))
}

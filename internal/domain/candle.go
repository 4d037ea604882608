package domain

import "time"

// Candle is a one-minute OHLCV bar from the reference exchange.
type Candle struct {
	OpenAt time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64 // base-asset volume
}

// TypicalPrice is the (H+L+C)/3 price used for VWAP accumulation.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Closes extracts the close column, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

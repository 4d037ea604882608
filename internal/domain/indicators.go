package domain

import "math"

// Indicator lookbacks over one-minute candles.
const (
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	slopeLookback    = 10
	crossLookback    = 20
	volumeRecentBars = 5
)

// IndicatorSnapshot carries the per-cycle numeric inputs consumed by regime
// detection and the probability model. A nil field means the underlying
// series was too short to compute it; downstream code must treat that as
// missing, never as zero.
type IndicatorSnapshot struct {
	Price            *float64
	MovingRef        *float64 // volume-weighted average price over the lookback
	Slope            *float64 // normalized regression slope of recent closes
	CrossCount       int      // price/VWAP crossings within the lookback
	VolumeRecent     *float64
	VolumeAvg        *float64
	Oscillator       *float64 // RSI
	SecondOscillator *float64 // MACD histogram over price
}

// ComputeIndicators derives a snapshot from closed candles plus the live spot
// price. Candles are expected oldest first.
func ComputeIndicators(candles []Candle, spot float64) IndicatorSnapshot {
	snap := IndicatorSnapshot{}
	if spot > 0 {
		snap.Price = &spot
	}

	if vwap, ok := VWAP(candles); ok {
		snap.MovingRef = &vwap
		snap.CrossCount = VWAPCrossCount(candles, vwap, crossLookback)
	}

	closes := Closes(candles)
	if slope, ok := RegressionSlope(closes, slopeLookback); ok {
		snap.Slope = &slope
	}
	if rsi, ok := RSI(closes, rsiPeriod); ok {
		snap.Oscillator = &rsi
	}
	if hist, ok := MACDHistogram(closes); ok {
		snap.SecondOscillator = &hist
	}

	if recent, avg, ok := VolumeProfile(candles, volumeRecentBars); ok {
		snap.VolumeRecent = &recent
		snap.VolumeAvg = &avg
	}
	return snap
}

// VWAP computes the volume-weighted average price over all given candles.
// Falls back to the mean of typical prices when total volume is zero.
func VWAP(candles []Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	var pv, vol, sum float64
	for _, c := range candles {
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
		sum += c.TypicalPrice()
	}
	if vol > 0 {
		return pv / vol, true
	}
	return sum / float64(len(candles)), true
}

// VWAPCrossCount counts sign changes of close-vs-vwap over the last lookback
// candles. Touches (close == vwap) carry the previous sign forward.
func VWAPCrossCount(candles []Candle, vwap float64, lookback int) int {
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}
	count := 0
	prev := 0
	for _, c := range candles {
		sign := 0
		switch {
		case c.Close > vwap:
			sign = 1
		case c.Close < vwap:
			sign = -1
		}
		if sign != 0 && prev != 0 && sign != prev {
			count++
		}
		if sign != 0 {
			prev = sign
		}
	}
	return count
}

// RegressionSlope fits a least-squares line through the last lookback closes
// and returns the per-bar slope normalized by the mean price, so values are
// comparable across assets.
func RegressionSlope(closes []float64, lookback int) (float64, bool) {
	if len(closes) < lookback || lookback < 2 {
		return 0, false
	}
	closes = closes[len(closes)-lookback:]
	n := float64(lookback)
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range closes {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	mean := sumY / n
	if mean == 0 {
		return 0, false
	}
	return slope / mean, true
}

// RSI computes Wilder's relative strength index over closes.
func RSI(closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACDHistogram returns the MACD(12,26,9) histogram of the final bar, divided
// by the last close so magnitudes are price-independent.
func MACDHistogram(closes []float64) (float64, bool) {
	need := macdSlowPeriod + macdSignalPeriod
	if len(closes) < need {
		return 0, false
	}
	fast := ema(closes, macdFastPeriod)
	slow := ema(closes, macdSlowPeriod)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fast[i] - slow[i]
	}
	signal := ema(macd[macdSlowPeriod-1:], macdSignalPeriod)
	hist := macd[len(macd)-1] - signal[len(signal)-1]
	last := closes[len(closes)-1]
	if last == 0 {
		return 0, false
	}
	return hist / last, true
}

// VolumeProfile returns the mean volume of the last recentBars candles and the
// mean over the whole slice.
func VolumeProfile(candles []Candle, recentBars int) (recent, avg float64, ok bool) {
	if len(candles) < recentBars || recentBars <= 0 {
		return 0, 0, false
	}
	var total float64
	for _, c := range candles {
		total += c.Volume
	}
	avg = total / float64(len(candles))
	var tail float64
	for _, c := range candles[len(candles)-recentBars:] {
		tail += c.Volume
	}
	recent = tail / float64(recentBars)
	return recent, avg, true
}

func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

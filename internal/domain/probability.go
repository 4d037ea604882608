package domain

import "math"

// Model probability outputs are clamped away from 0/1 so the edge can never
// claim certainty the market disagrees with.
const (
	minModelProb = 0.02
	maxModelProb = 0.98
)

// Blend weighting: the volatility leg starts at half weight and dominates as
// the window closes, since realized drift beats indicator signals late.
const (
	volWeightFloor = 0.5
	volWeightSpan  = 0.3
)

// ReturnSigma estimates the per-bar stddev of log returns over closes.
func ReturnSigma(closes []float64) (float64, bool) {
	if len(closes) < 3 {
		return 0, false
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0, false
		}
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(rets)-1)), true
}

// VolatilityProb returns P(price ends the window above its open) assuming
// driftless log-normal diffusion at sigmaPerMin.
func VolatilityProb(price, openPrice, sigmaPerMin, remainingMinutes float64) (float64, bool) {
	if price <= 0 || openPrice <= 0 {
		return 0, false
	}
	lead := math.Log(price / openPrice)
	if remainingMinutes <= 0 || sigmaPerMin <= 0 {
		// No diffusion left: the current lead decides.
		if lead >= 0 {
			return maxModelProb, true
		}
		return minModelProb, true
	}
	z := lead / (sigmaPerMin * math.Sqrt(remainingMinutes))
	return normCDF(z), true
}

// Technical score mapping: how strongly each signal pushes the logistic.
const (
	techRSIGain   = 1.2
	techMACDGain  = 300.0 // histogram/price is tiny; rescale before squashing
	techTrendGain = 0.8
)

// TechnicalProb maps oscillator and trend inputs to P(up) through a logistic.
// Returns false when no usable signal is present.
func TechnicalProb(in IndicatorSnapshot) (float64, bool) {
	var score float64
	used := false
	if in.Oscillator != nil {
		score += techRSIGain * (*in.Oscillator - rsiNeutral) / rsiNeutral
		used = true
	}
	if in.SecondOscillator != nil {
		score += clampAbs(techMACDGain**in.SecondOscillator, 1)
		used = true
	}
	if in.Price != nil && in.MovingRef != nil && *in.MovingRef != 0 {
		score += clampAbs(techTrendGain*(*in.Price-*in.MovingRef)/(*in.MovingRef)/flatBandFraction, 1)
		used = true
	}
	if !used {
		return 0, false
	}
	return 1 / (1 + math.Exp(-score)), true
}

// BlendProbabilities merges the two probability legs with a time-dependent
// weight and returns the complementary pair.
func BlendProbabilities(volProb, techProb, remainingMinutes float64) (up, down float64) {
	wVol := volWeightFloor + volWeightSpan*(1-clamp01(remainingMinutes/WindowLength.Minutes()))
	up = wVol*volProb + (1-wVol)*techProb
	up = math.Max(minModelProb, math.Min(maxModelProb, up))
	return up, 1 - up
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func clampAbs(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

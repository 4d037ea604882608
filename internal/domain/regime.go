package domain

// Regime is a coarse classification of recent price behavior.
type Regime string

const (
	RegimeTrendUp   Regime = "TREND_UP"
	RegimeTrendDown Regime = "TREND_DOWN"
	RegimeRange     Regime = "RANGE"
	RegimeChop      Regime = "CHOP"
)

// Reason codes attached to RegimeResult.
const (
	RegimeReasonMissingInputs = "missing_inputs"
	RegimeReasonLowVolumeFlat = "low_volume_flat"
	RegimeReasonAboveRising   = "price_above_ref_rising"
	RegimeReasonBelowFalling  = "price_below_ref_falling"
	RegimeReasonFrequentCross = "frequent_vwap_cross"
	RegimeReasonDefault       = "default"
)

// RegimeResult is the discrete classification.
type RegimeResult struct {
	Regime Regime
	Reason string
}

// EnhancedRegimeResult adds a continuous confidence and, when a tracker is
// supplied, the empirical next-regime distribution.
type EnhancedRegimeResult struct {
	RegimeResult
	Confidence     float64
	TransitionProb map[Regime]float64
}

// Classification thresholds.
const (
	lowVolumeRatio     = 0.6   // recent volume below this fraction of average
	flatBandFraction   = 0.001 // |price-ref|/ref below this is "flat"
	frequentCrossCount = 3
)

// DetectRegime classifies market behavior from the indicator snapshot. The
// low-volume-flat override is evaluated before the trend checks: thin, flat
// tape beats a nominal trend signal.
func DetectRegime(in IndicatorSnapshot) RegimeResult {
	if in.Price == nil || in.MovingRef == nil || in.Slope == nil {
		return RegimeResult{Regime: RegimeChop, Reason: RegimeReasonMissingInputs}
	}
	price, ref, slope := *in.Price, *in.MovingRef, *in.Slope

	if in.VolumeRecent != nil && in.VolumeAvg != nil && ref != 0 {
		flat := absFrac(price, ref) < flatBandFraction
		thin := *in.VolumeRecent < lowVolumeRatio**in.VolumeAvg
		if thin && flat {
			return RegimeResult{Regime: RegimeChop, Reason: RegimeReasonLowVolumeFlat}
		}
	}

	if price > ref && slope > 0 {
		return RegimeResult{Regime: RegimeTrendUp, Reason: RegimeReasonAboveRising}
	}
	if price < ref && slope < 0 {
		return RegimeResult{Regime: RegimeTrendDown, Reason: RegimeReasonBelowFalling}
	}

	if in.CrossCount >= frequentCrossCount {
		return RegimeResult{Regime: RegimeChop, Reason: RegimeReasonFrequentCross}
	}
	return RegimeResult{Regime: RegimeRange, Reason: RegimeReasonDefault}
}

// confidenceWeights blend the five evidence scores. Trend and chop weigh the
// same evidence differently; the constants are tuned values and must not be
// renormalized.
type confidenceWeights struct {
	distance   float64
	slope      float64
	volume     float64
	crossing   float64
	oscillator float64
}

var (
	trendWeights = confidenceWeights{distance: 0.28, slope: 0.24, volume: 0.18, crossing: 0.14, oscillator: 0.16}
	chopWeights  = confidenceWeights{distance: 0.26, slope: 0.22, volume: 0.20, crossing: 0.18, oscillator: 0.14}
)

// Full-scale values mapping raw inputs onto [0,1] evidence scores.
const (
	distanceFullScale = 0.004  // 0.4% off reference saturates
	slopeFullScale    = 0.0015 // per-bar normalized slope saturates
	volumeFullScale   = 2.0    // recent/avg ratio saturates
	crossFullScale    = 6.0    // crossings per lookback saturate
	rsiNeutral        = 50.0
	rsiExtremitySpan  = 25.0  // RSI at 25/75 is fully extreme
	macdFullScale     = 0.002 // histogram/price saturates
	neutralScore      = 0.5   // substituted for absent optional inputs
)

// DetectEnhancedRegime runs DetectRegime and layers a confidence score on top.
// If tracker is non-nil, the transition distribution is computed from history
// before the current observation is recorded, so the report never includes
// the observation it accompanies.
func DetectEnhancedRegime(in IndicatorSnapshot, tracker *RegimeTransitionTracker) EnhancedRegimeResult {
	base := DetectRegime(in)
	s := scoreInputs(in)

	trendConf := trendWeights.distance*s.distance +
		trendWeights.slope*s.slope +
		trendWeights.volume*s.volume +
		trendWeights.crossing*(1-s.crossing) +
		trendWeights.oscillator*s.oscillator
	chopConf := chopWeights.distance*(1-s.distance) +
		chopWeights.slope*(1-s.slope) +
		chopWeights.volume*(1-s.volume) +
		chopWeights.crossing*s.crossing +
		chopWeights.oscillator*(1-s.oscillator)

	var confidence float64
	switch base.Regime {
	case RegimeTrendUp, RegimeTrendDown:
		confidence = trendConf
	case RegimeChop:
		confidence = chopConf
	default:
		confidence = (trendConf + chopConf) / 2
	}

	res := EnhancedRegimeResult{RegimeResult: base, Confidence: clamp01(confidence)}
	if tracker != nil {
		res.TransitionProb = tracker.TransitionDistribution(base.Regime)
		tracker.Record(base.Regime)
	}
	return res
}

type evidenceScores struct {
	distance   float64
	slope      float64
	volume     float64
	crossing   float64
	oscillator float64
}

func scoreInputs(in IndicatorSnapshot) evidenceScores {
	s := evidenceScores{
		distance:   neutralScore,
		slope:      neutralScore,
		volume:     neutralScore,
		crossing:   clamp01(float64(in.CrossCount) / crossFullScale),
		oscillator: neutralScore,
	}
	if in.Price != nil && in.MovingRef != nil && *in.MovingRef != 0 {
		s.distance = clamp01(absFrac(*in.Price, *in.MovingRef) / distanceFullScale)
	}
	if in.Slope != nil {
		s.slope = clamp01(abs(*in.Slope) / slopeFullScale)
	}
	if in.VolumeRecent != nil && in.VolumeAvg != nil && *in.VolumeAvg > 0 {
		s.volume = clamp01(*in.VolumeRecent / *in.VolumeAvg / volumeFullScale)
	}

	rsiScore := neutralScore
	if in.Oscillator != nil {
		rsiScore = clamp01(abs(*in.Oscillator-rsiNeutral) / rsiExtremitySpan)
	}
	macdScore := neutralScore
	if in.SecondOscillator != nil {
		macdScore = clamp01(abs(*in.SecondOscillator) / macdFullScale)
	}
	s.oscillator = (rsiScore + macdScore) / 2
	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absFrac(price, ref float64) float64 {
	return abs(price-ref) / abs(ref)
}

// RegimeTransitionTracker keeps a bounded FIFO of observed regimes and
// answers "what followed previous occurrences of this regime". It is mutated
// on every enhanced classification and is not safe for concurrent use; the
// decision loop owns it.
type RegimeTransitionTracker struct {
	capacity int
	history  []Regime
}

// DefaultTransitionCapacity bounds the tracker history.
const DefaultTransitionCapacity = 100

// NewRegimeTransitionTracker builds a tracker; capacity <= 0 uses the default.
func NewRegimeTransitionTracker(capacity int) *RegimeTransitionTracker {
	if capacity <= 0 {
		capacity = DefaultTransitionCapacity
	}
	return &RegimeTransitionTracker{capacity: capacity}
}

// Record appends an observation, evicting the oldest beyond capacity.
func (t *RegimeTransitionTracker) Record(r Regime) {
	t.history = append(t.history, r)
	if len(t.history) > t.capacity {
		t.history = t.history[len(t.history)-t.capacity:]
	}
}

// TransitionDistribution returns the empirical distribution of the regime
// that followed past occurrences of current. Nil when current never appeared
// with a successor.
func (t *RegimeTransitionTracker) TransitionDistribution(current Regime) map[Regime]float64 {
	counts := map[Regime]int{}
	total := 0
	for i := 0; i+1 < len(t.history); i++ {
		if t.history[i] == current {
			counts[t.history[i+1]]++
			total++
		}
	}
	if total == 0 {
		return nil
	}
	dist := make(map[Regime]float64, len(counts))
	for r, n := range counts {
		dist[r] = float64(n) / float64(total)
	}
	return dist
}

// Len reports how many observations are held.
func (t *RegimeTransitionTracker) Len() int {
	return len(t.history)
}

// Regime-confidence trading gates.
const (
	highChopConfidence    = 0.6
	lowTrendConfidence    = 0.5
	reducedSizeMultiplier = 0.5
)

// TradeGate is the regime-based go/no-go plus a position-size multiplier.
type TradeGate struct {
	Trade          bool
	SizeMultiplier float64
	Reason         string
}

// ShouldTradeOnRegime suppresses entries during high-confidence chop and
// halves size on low-confidence trend calls.
func ShouldTradeOnRegime(res EnhancedRegimeResult) TradeGate {
	if res.Regime == RegimeChop && res.Confidence > highChopConfidence {
		return TradeGate{Trade: false, SizeMultiplier: 0, Reason: "high_confidence_chop"}
	}
	if (res.Regime == RegimeTrendUp || res.Regime == RegimeTrendDown) && res.Confidence < lowTrendConfidence {
		return TradeGate{Trade: true, SizeMultiplier: reducedSizeMultiplier, Reason: "low_confidence_trend"}
	}
	return TradeGate{Trade: true, SizeMultiplier: 1, Reason: "ok"}
}

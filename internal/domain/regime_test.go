package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func trendUpInputs() IndicatorSnapshot {
	return IndicatorSnapshot{
		Price:     fptr(101),
		MovingRef: fptr(100),
		Slope:     fptr(0.001),
	}
}

func TestDetectRegime_TrendUp(t *testing.T) {
	res := DetectRegime(trendUpInputs())
	assert.Equal(t, RegimeTrendUp, res.Regime)
	assert.Equal(t, RegimeReasonAboveRising, res.Reason)
}

func TestDetectRegime_TrendDown(t *testing.T) {
	res := DetectRegime(IndicatorSnapshot{
		Price:     fptr(99),
		MovingRef: fptr(100),
		Slope:     fptr(-0.001),
	})
	assert.Equal(t, RegimeTrendDown, res.Regime)
	assert.Equal(t, RegimeReasonBelowFalling, res.Reason)
}

func TestDetectRegime_LowVolumeFlatOverridesTrend(t *testing.T) {
	// price 100.05 vs ref 100 is inside the 0.1% flat band yet still a
	// nominal up-trend (price above ref, positive slope). Thin volume must
	// win over the trend signal.
	in := IndicatorSnapshot{
		Price:        fptr(100.05),
		MovingRef:    fptr(100),
		Slope:        fptr(0.001),
		VolumeRecent: fptr(50),
		VolumeAvg:    fptr(100),
	}
	res := DetectRegime(in)
	assert.Equal(t, RegimeChop, res.Regime)
	assert.Equal(t, RegimeReasonLowVolumeFlat, res.Reason)

	// Same shape with healthy volume goes back to the trend branch.
	in.VolumeRecent = fptr(90)
	res = DetectRegime(in)
	assert.Equal(t, RegimeTrendUp, res.Regime)
}

func TestDetectRegime_LowVolumeButNotFlat(t *testing.T) {
	// Thin volume alone is not enough; price is 0.5% off reference.
	in := IndicatorSnapshot{
		Price:        fptr(100.5),
		MovingRef:    fptr(100),
		Slope:        fptr(0.001),
		VolumeRecent: fptr(50),
		VolumeAvg:    fptr(100),
	}
	res := DetectRegime(in)
	assert.Equal(t, RegimeTrendUp, res.Regime)
}

func TestDetectRegime_MissingInputs(t *testing.T) {
	cases := map[string]IndicatorSnapshot{
		"nil price": {MovingRef: fptr(100), Slope: fptr(0.001), VolumeRecent: fptr(50), VolumeAvg: fptr(100)},
		"nil ref":   {Price: fptr(101), Slope: fptr(0.001), CrossCount: 5},
		"nil slope": {Price: fptr(101), MovingRef: fptr(100)},
	}
	for name, in := range cases {
		res := DetectRegime(in)
		assert.Equal(t, RegimeChop, res.Regime, name)
		assert.Equal(t, RegimeReasonMissingInputs, res.Reason, name)
	}
}

func TestDetectRegime_CrossCountBoundary(t *testing.T) {
	// price above ref with a negative slope: neither trend branch fires, so
	// the crossing check decides between RANGE and CHOP.
	in := IndicatorSnapshot{
		Price:     fptr(100.5),
		MovingRef: fptr(100),
		Slope:     fptr(-0.0001),
	}

	in.CrossCount = 2
	res := DetectRegime(in)
	assert.Equal(t, RegimeRange, res.Regime)
	assert.Equal(t, RegimeReasonDefault, res.Reason)

	in.CrossCount = 3
	res = DetectRegime(in)
	assert.Equal(t, RegimeChop, res.Regime)
	assert.Equal(t, RegimeReasonFrequentCross, res.Reason)

	in.CrossCount = 7
	res = DetectRegime(in)
	assert.Equal(t, RegimeReasonFrequentCross, res.Reason)
}

// --- DetectEnhancedRegime ---

func TestDetectEnhancedRegime_SaturatedTrendConfidence(t *testing.T) {
	// Every evidence score saturates at 1, so confidence is the sum of the
	// trend weights: 0.28+0.24+0.18+0.14+0.16 = 1.0.
	in := IndicatorSnapshot{
		Price:            fptr(100.5), // 0.5% off ref, saturates at 0.4%
		MovingRef:        fptr(100),
		Slope:            fptr(0.002), // saturates at 0.0015
		CrossCount:       0,
		VolumeRecent:     fptr(300), // ratio 3, saturates at 2
		VolumeAvg:        fptr(100),
		Oscillator:       fptr(80),    // 30 off neutral, saturates at 25
		SecondOscillator: fptr(0.003), // saturates at 0.002
	}
	res := DetectEnhancedRegime(in, nil)
	assert.Equal(t, RegimeTrendUp, res.Regime)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Nil(t, res.TransitionProb)
}

func TestDetectEnhancedRegime_MissingInputsNeutralConfidence(t *testing.T) {
	// All-absent inputs score neutral 0.5 except crossing (0 of 6):
	// chop = 0.26*0.5 + 0.22*0.5 + 0.20*0.5 + 0.18*0 + 0.14*0.5 = 0.41.
	res := DetectEnhancedRegime(IndicatorSnapshot{}, nil)
	assert.Equal(t, RegimeChop, res.Regime)
	assert.Equal(t, RegimeReasonMissingInputs, res.Reason)
	assert.InDelta(t, 0.41, res.Confidence, 1e-9)
}

func TestDetectEnhancedRegime_RangeUsesBlendedConfidence(t *testing.T) {
	in := IndicatorSnapshot{
		Price:     fptr(100.5),
		MovingRef: fptr(100),
		Slope:     fptr(-0.0001),
	}
	res := DetectEnhancedRegime(in, nil)
	require.Equal(t, RegimeRange, res.Regime)
	assert.Greater(t, res.Confidence, 0.0)
	assert.Less(t, res.Confidence, 1.0)
}

func TestDetectEnhancedRegime_TrackerReportsBeforeRecording(t *testing.T) {
	tracker := NewRegimeTransitionTracker(0)
	in := trendUpInputs()

	// First observation: history empty, nothing to report.
	res := DetectEnhancedRegime(in, tracker)
	assert.Nil(t, res.TransitionProb)
	assert.Equal(t, 1, tracker.Len())

	// Second: one observation recorded but no successor pair yet.
	res = DetectEnhancedRegime(in, tracker)
	assert.Nil(t, res.TransitionProb)

	// Third: the [TREND_UP -> TREND_UP] pair exists, and the distribution
	// must not include the observation being classified right now.
	res = DetectEnhancedRegime(in, tracker)
	require.NotNil(t, res.TransitionProb)
	assert.InDelta(t, 1.0, res.TransitionProb[RegimeTrendUp], 1e-9)
	assert.Equal(t, 3, tracker.Len())
}

// --- RegimeTransitionTracker ---

func TestTransitionTracker_Distribution(t *testing.T) {
	tracker := NewRegimeTransitionTracker(100)
	for _, r := range []Regime{RegimeTrendUp, RegimeRange, RegimeTrendUp, RegimeChop, RegimeTrendUp} {
		tracker.Record(r)
	}
	dist := tracker.TransitionDistribution(RegimeTrendUp)
	require.NotNil(t, dist)
	assert.InDelta(t, 0.5, dist[RegimeRange], 1e-9)
	assert.InDelta(t, 0.5, dist[RegimeChop], 1e-9)

	assert.Nil(t, tracker.TransitionDistribution(RegimeTrendDown))
}

func TestTransitionTracker_BoundedCapacity(t *testing.T) {
	tracker := NewRegimeTransitionTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Record(RegimeRange)
	}
	assert.Equal(t, 3, tracker.Len())
}

func TestTransitionTracker_DefaultCapacity(t *testing.T) {
	tracker := NewRegimeTransitionTracker(-1)
	for i := 0; i < DefaultTransitionCapacity+20; i++ {
		tracker.Record(RegimeChop)
	}
	assert.Equal(t, DefaultTransitionCapacity, tracker.Len())
}

// --- ShouldTradeOnRegime ---

func TestShouldTradeOnRegime_HighConfidenceChopSuppressed(t *testing.T) {
	gate := ShouldTradeOnRegime(EnhancedRegimeResult{
		RegimeResult: RegimeResult{Regime: RegimeChop},
		Confidence:   0.7,
	})
	assert.False(t, gate.Trade)
	assert.Equal(t, "high_confidence_chop", gate.Reason)
}

func TestShouldTradeOnRegime_ChopAtThresholdTrades(t *testing.T) {
	// Suppression requires strictly greater than 0.6.
	gate := ShouldTradeOnRegime(EnhancedRegimeResult{
		RegimeResult: RegimeResult{Regime: RegimeChop},
		Confidence:   0.6,
	})
	assert.True(t, gate.Trade)
	assert.Equal(t, 1.0, gate.SizeMultiplier)
}

func TestShouldTradeOnRegime_LowConfidenceTrendReducesSize(t *testing.T) {
	gate := ShouldTradeOnRegime(EnhancedRegimeResult{
		RegimeResult: RegimeResult{Regime: RegimeTrendDown},
		Confidence:   0.4,
	})
	assert.True(t, gate.Trade)
	assert.Equal(t, 0.5, gate.SizeMultiplier)
	assert.Equal(t, "low_confidence_trend", gate.Reason)
}

func TestShouldTradeOnRegime_ConfidentTrendFullSize(t *testing.T) {
	gate := ShouldTradeOnRegime(EnhancedRegimeResult{
		RegimeResult: RegimeResult{Regime: RegimeTrendUp},
		Confidence:   0.8,
	})
	assert.True(t, gate.Trade)
	assert.Equal(t, 1.0, gate.SizeMultiplier)
}

package domain

import "fmt"

// Action is the per-cycle trade verdict.
type Action string

const (
	ActionEnter   Action = "ENTER"
	ActionNoTrade Action = "NO_TRADE"
)

// Side is the direction of an up/down market position.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Phase classifies time remaining in the window. Thresholds tighten as the
// window runs out because there is no room left to recover from a bad call.
type Phase string

const (
	PhaseEarly Phase = "EARLY" // more than 10 minutes left
	PhaseMid   Phase = "MID"   // 5 to 10 minutes
	PhaseLate  Phase = "LATE"  // under 5 minutes
)

// PhaseFor maps remaining minutes onto a phase. Both boundaries belong to MID.
func PhaseFor(remainingMinutes float64) Phase {
	switch {
	case remainingMinutes > 10:
		return PhaseEarly
	case remainingMinutes >= 5:
		return PhaseMid
	default:
		return PhaseLate
	}
}

// Strength tiers an accepted entry by its edge.
type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthGood     Strength = "GOOD"
	StrengthOptional Strength = "OPTIONAL"
)

const (
	strongEdge = 0.20
	goodEdge   = 0.10
)

func strengthFor(edge float64) Strength {
	switch {
	case edge >= strongEdge:
		return StrengthStrong
	case edge >= goodEdge:
		return StrengthGood
	default:
		return StrengthOptional
	}
}

// phaseParams pairs the minimum edge with the minimum model probability.
type phaseParams struct {
	edgeThreshold float64
	probFloor     float64
}

var paramsByPhase = map[Phase]phaseParams{
	PhaseEarly: {edgeThreshold: 0.05, probFloor: 0.55},
	PhaseMid:   {edgeThreshold: 0.10, probFloor: 0.60},
	PhaseLate:  {edgeThreshold: 0.20, probFloor: 0.65},
}

// Edge holds the market-implied probabilities and the model-vs-market gap for
// both sides. All fields are nil when either raw market price was missing: a
// market with no liquidity on one side cannot be traded against.
type Edge struct {
	MarketUp   *float64
	MarketDown *float64
	EdgeUp     *float64
	EdgeDown   *float64
}

// ComputeEdge normalizes the raw YES/NO prices into market-implied
// probabilities and subtracts them from the model's. No smoothing.
func ComputeEdge(modelUp, modelDown float64, marketYes, marketNo *float64) Edge {
	if marketYes == nil || marketNo == nil {
		return Edge{}
	}
	sum := *marketYes + *marketNo
	if sum <= 0 {
		return Edge{}
	}
	up := clamp01(*marketYes / sum)
	down := clamp01(*marketNo / sum)
	edgeUp := modelUp - up
	edgeDown := modelDown - down
	return Edge{MarketUp: &up, MarketDown: &down, EdgeUp: &edgeUp, EdgeDown: &edgeDown}
}

// Verdict is the decision produced once per cycle. Side and Strength are set
// only on ENTER.
type Verdict struct {
	Action   Action
	Side     Side
	Phase    Phase
	Strength Strength
	Edge     *float64
	Reason   string
}

// Decide turns edges and model probabilities into a timed verdict. The side
// with the larger edge is considered; an edge exactly at the phase threshold
// does not qualify.
func Decide(remainingMinutes float64, e Edge, modelUp, modelDown float64) Verdict {
	phase := PhaseFor(remainingMinutes)
	params := paramsByPhase[phase]

	if e.EdgeUp == nil || e.EdgeDown == nil {
		return Verdict{Action: ActionNoTrade, Phase: phase, Reason: "missing_market_data"}
	}

	side, edge, model := SideUp, *e.EdgeUp, modelUp
	if *e.EdgeDown > edge {
		side, edge, model = SideDown, *e.EdgeDown, modelDown
	}

	if edge <= params.edgeThreshold {
		return Verdict{
			Action: ActionNoTrade,
			Phase:  phase,
			Edge:   &edge,
			Reason: fmt.Sprintf("edge_below_%.2f", params.edgeThreshold),
		}
	}
	if model < params.probFloor {
		return Verdict{
			Action: ActionNoTrade,
			Phase:  phase,
			Edge:   &edge,
			Reason: fmt.Sprintf("prob_below_%.2f", params.probFloor),
		}
	}
	return Verdict{
		Action:   ActionEnter,
		Side:     side,
		Phase:    phase,
		Strength: strengthFor(edge),
		Edge:     &edge,
	}
}

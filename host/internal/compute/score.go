package compute

import "github.com/instrumentkit/instrumentkit/pkg/types"

// Weight constants for the score formula. They must sum to 1.0.
const (
	weightPass       = 0.40
	weightCompletion = 0.30
	weightCollection = 0.20
	weightStability  = 0.10
)

// Thresholds that map a score to a health state.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// Input holds the normalised values fed into the score formula.
// All percentage fields are in the range 0-100.
type Input struct {
	// Runs is the number of runs the window rates were taken over.
	// Zero means there is nothing to judge.
	Runs int

	// PassPct is the share of executed tests in the latest run that passed.
	PassPct float64

	// CompletionPct is the share of recent runs that finished without a
	// run failure.
	CompletionPct float64

	// CollectionPct is the share of recent runs whose host-side collectors
	// reported no error.
	CollectionPct float64

	// StabilityPct is the share of recent runs with no failed test.
	StabilityPct float64
}

// Output is the result of the score calculation.
type Output struct {
	Score float64
	State string

	PassFactor       float64
	CompletionFactor float64
	CollectionFactor float64
	StabilityFactor  float64
}

// Compute calculates the device health score:
//
//	score = (
//	    pass_pct/100        * 0.40  +
//	    completion_pct/100  * 0.30  +
//	    collection_pct/100  * 0.20  +
//	    stability_pct/100   * 0.10
//	) * 100
func Compute(in Input) Output {
	if in.Runs <= 0 {
		return Output{State: types.StateUnknown}
	}

	pass := clamp01(in.PassPct / 100)
	completion := clamp01(in.CompletionPct / 100)
	collection := clamp01(in.CollectionPct / 100)
	stability := clamp01(in.StabilityPct / 100)

	score := (pass*weightPass +
		completion*weightCompletion +
		collection*weightCollection +
		stability*weightStability) * 100

	return Output{
		Score:            score,
		State:            StateFromScore(score),
		PassFactor:       pass,
		CompletionFactor: completion,
		CollectionFactor: collection,
		StabilityFactor:  stability,
	}
}

// StateFromScore maps a numeric score to a named health state.
func StateFromScore(score float64) string {
	switch {
	case score >= ThresholdHealthy:
		return types.StateHealthy
	case score >= ThresholdDegraded:
		return types.StateDegraded
	default:
		return types.StateCritical
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

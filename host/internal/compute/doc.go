// Package compute derives device health from run reports.
//
// score.go holds the pure Compute(Input) function producing a 0-100 score:
// pass rate(40%) + completion(30%) + collection(20%) + stability(10%).
//
// engine.go keeps a window of recent run outcomes per device and feeds the
// window rates into Compute.
//
// Health state thresholds: Healthy ≥85, Degraded 60-84, Critical <60, Unknown.
package compute

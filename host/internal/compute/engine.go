package compute

import (
	"log/slog"
	"sync"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// window is the number of recent runs tracked per device.
const window = 20

// outcome is what the engine remembers about one run.
type outcome struct {
	completed bool
	collected bool
	stable    bool
}

// Engine maintains per-device run history and derives health from it.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	devices map[string][]outcome // newest last
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{devices: make(map[string][]outcome)}
}

// Process records rep in its device's window, stores the derived health in
// rep.Health and returns it.
//
// A run that produced no tests and never completed is recorded as a failed
// completion but reported as unknown, since there is no test signal to
// score.
func (e *Engine) Process(rep *types.RunReport) types.Health {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist := e.devices[rep.Device]
	if len(hist) >= window {
		hist = hist[1:]
	}
	hist = append(hist, outcome{
		completed: rep.Complete && rep.RunFailure == "",
		collected: len(rep.CollectorErrors) == 0,
		stable:    rep.Failed == 0,
	})
	e.devices[rep.Device] = hist

	h := types.Health{
		PassRate:       passPct(rep),
		CompletionRate: pct(hist, func(o outcome) bool { return o.completed }),
		CollectionRate: pct(hist, func(o outcome) bool { return o.collected }),
		StabilityRate:  pct(hist, func(o outcome) bool { return o.stable }),
	}

	if rep.Tests == 0 && !rep.Complete {
		slog.Warn("compute: run produced no tests, marking unknown",
			"device", rep.Device, "run", rep.ID, "failure", rep.RunFailure)
		h.State = types.StateUnknown
		rep.Health = h
		return h
	}

	out := Compute(Input{
		Runs:          len(hist),
		PassPct:       h.PassRate,
		CompletionPct: h.CompletionRate,
		CollectionPct: h.CollectionRate,
		StabilityPct:  h.StabilityRate,
	})
	h.Score, h.State = out.Score, out.State
	rep.Health = h
	return h
}

// Runs returns how many runs are in device's window.
func (e *Engine) Runs(device string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.devices[device])
}

// passPct is the share of executed (non-ignored) tests that passed. A run
// with nothing executed gets full credit only if it completed.
func passPct(rep *types.RunReport) float64 {
	executed := rep.Tests - rep.Ignored
	if executed <= 0 {
		if rep.Complete && rep.RunFailure == "" {
			return 100
		}
		return 0
	}
	return float64(rep.Passed) / float64(executed) * 100
}

func pct(hist []outcome, ok func(outcome) bool) float64 {
	if len(hist) == 0 {
		return 100
	}
	var n int
	for _, o := range hist {
		if ok(o) {
			n++
		}
	}
	return float64(n) / float64(len(hist)) * 100
}

package types

import (
	"errors"
	"time"
)

// Health states carried in Health.State.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
	StateUnknown  = "unknown"
)

// RunReport is the summary of one instrumentation run on one device.
type RunReport struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Host      string    `json:"host,omitempty"`
	Package   string    `json:"package"`
	Scenario  string    `json:"scenario,omitempty"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMs int64     `json:"elapsed_ms"`

	Tests   int `json:"tests"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Ignored int `json:"ignored"`

	// Complete is false when the instrumentation stream ended early.
	Complete   bool   `json:"complete"`
	RunFailure string `json:"run_failure,omitempty"`

	// CollectorErrors lists failures raised by host-side collectors, such
	// as a pulled file that did not decode.
	CollectorErrors []string          `json:"collector_errors,omitempty"`
	RunMetrics      map[string]string `json:"run_metrics,omitempty"`

	Health Health `json:"health"`
}

// Health is the device health derived when the report was produced.
type Health struct {
	Score float64 `json:"score"`
	State string  `json:"state"`

	// Percentages in the range 0-100.
	PassRate       float64 `json:"pass_rate"`
	CompletionRate float64 `json:"completion_rate"`
	CollectionRate float64 `json:"collection_rate"`
	StabilityRate  float64 `json:"stability_rate"`
}

// Succeeded reports whether the run completed without any failure.
func (r *RunReport) Succeeded() bool {
	return r.Complete && r.RunFailure == "" && r.Failed == 0 && len(r.CollectorErrors) == 0
}

// Validate checks the fields the server keys reports on.
func (r *RunReport) Validate() error {
	switch {
	case r.ID == "":
		return errors.New("report: id is required")
	case r.Device == "":
		return errors.New("report: device is required")
	case r.StartedAt.IsZero():
		return errors.New("report: started_at is required")
	}
	return nil
}

package api

import "github.com/instrumentkit/instrumentkit/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OverallScore  float64 `json:"overall_score"`
	State         string  `json:"state"`
	DeviceCount   int     `json:"device_count"`
	HealthyCount  int     `json:"healthy_count"`
	DegradedCount int     `json:"degraded_count"`
	CriticalCount int     `json:"critical_count"`
	UnknownCount  int     `json:"unknown_count"`
	AlertCount    int     `json:"alert_count"`
	RunCount      int     `json:"run_count"`
}

// DeviceResponse is one device entry in GET /api/v1/devices, built from the
// device's newest run report.
type DeviceResponse struct {
	Device         string           `json:"device"`
	State          string           `json:"state"`
	Score          float64          `json:"score"`
	PassRate       float64          `json:"pass_rate"`
	CompletionRate float64          `json:"completion_rate"`
	CollectionRate float64          `json:"collection_rate"`
	Runs           int              `json:"runs"`
	LastRunID      string           `json:"last_run_id"`
	LastScenario   string           `json:"last_scenario,omitempty"`
	LastSeen       string           `json:"last_seen"` // RFC3339
	Diagnostics    []DiagnosticHint `json:"diagnostics"`
}

// RunResponse is the payload for GET /api/v1/runs/{id}.
type RunResponse struct {
	*types.RunReport
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// SummaryResponse is the payload for GET /api/v1/summary and the WebSocket
// summary event.
type SummaryResponse struct {
	Health      HealthResponse   `json:"health"`
	Devices     []DeviceResponse `json:"devices"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

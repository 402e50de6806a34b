// Package api implements the HTTP read API of the results server.
//
// New(store, alerts) returns a Handler that serves:
//
//	GET /api/v1/health      overall score, state and per-state device counts
//	GET /api/v1/devices     newest report summary per device
//	GET /api/v1/runs        reports newest first (?device=, ?limit= up to 500)
//	GET /api/v1/runs/{id}   one report with diagnostics; 404 if unknown
//	GET /api/v1/alerts      firing and recently resolved alerts
//	GET /api/v1/summary     health and devices in one payload
//	GET /metrics            Prometheus text exposition of the newest reports
//
// JSON endpoints respond with Content-Type application/json and return 405
// for methods other than GET and HEAD.
package api

// Package receiver implements POST /api/v1/reports, the endpoint host agents
// ship run reports to.
//
// A posted report is decoded, validated (400 when malformed, oversized or
// missing id, device or started_at), stored, evaluated against the alert
// rules and published to WebSocket subscribers. Accepted reports are answered
// with 202 and the report id. Re-posting the same id replaces the stored
// report, so retries after a lost response are harmless.
package receiver

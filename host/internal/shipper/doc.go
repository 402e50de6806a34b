// Package shipper sends run reports to the results server as JSON over HTTP
// (POST /api/v1/reports).
//
// Shipper.Ship() is non-blocking: reports are placed in an in-memory channel
// and, when it is full, the oldest report is evicted so the latest results
// are always kept.
//
// Shipper.Run() drains the buffer, retrying with truncated exponential
// backoff (1s→60s, ±25% jitter) on transport errors and 5xx responses.
// 400, 401 and 403 responses discard the report instead of retrying.
//
// Shipper.Flush() waits for the buffer to drain, for short-lived commands
// that ship one report and exit.
package shipper

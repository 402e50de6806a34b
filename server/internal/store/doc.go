// Package store keeps the run report history in SQLite. The schema is
// managed by goose migrations embedded in the binary; reports older than the
// retention window are removed by a background eviction loop.
package store

// Package ws implements the WebSocket stream of the results server.
//
// Hub.Run broadcasts the device summary on a fixed interval; Hub.Publish
// pushes each ingested run report as soon as it is stored. A client receives
// the current summary immediately on connect. Messages are JSON envelopes:
//
//	{"event": "summary", "data": { /* GET /api/v1/summary */ }}
//	{"event": "report",  "data": { /* one run report */ }}
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/stream.
package ws

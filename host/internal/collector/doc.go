// Package collector attaches host-side metric collectors to instrumentation
// runs.
//
// A MetricCollector observes run and test boundaries and records string
// metrics into a MetricData. Attach wraps a downstream instrument.Listener so
// that, when a test or run ends, the collector data is merged into the
// metrics the device reported before they are forwarded. Collector values win
// over device values with the same key.
//
// FilePuller is the collector used for file-valued metrics: every metric
// whose key fully matches one of its pull patterns names a file on the device,
// which is pulled to a host temp directory and handed to a Processor
// (BatteryStatsProcessor, ScreenshotProcessor). Scheduled runs a sampling
// function at a fixed interval for the duration of a run.
//
// CollectingListener is a terminal listener that accumulates the results of
// every run for later inspection.
package collector

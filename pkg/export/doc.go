// Package export renders run reports in the Prometheus text exposition
// format. The results server serves it on /metrics and the CLI writes it for
// node_exporter's textfile collector.
package export

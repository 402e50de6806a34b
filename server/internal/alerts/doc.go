// Package alerts implements the rule evaluation engine and webhook delivery
// for run report alerting. Rules are "field op value" expressions evaluated
// against each ingested report; firing and resolved alerts are delivered to
// Slack, Teams or generic HTTP webhooks.
package alerts

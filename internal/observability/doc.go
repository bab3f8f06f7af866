// Package observability records the access decisions made by the core in a
// JSON Lines event log and derives metrics and alerts from it on demand.
package observability

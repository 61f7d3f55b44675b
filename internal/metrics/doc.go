// Package metrics defines the Prometheus collectors exported by group
// sessions. A nil *GroupMetrics is valid and records nothing.
package metrics

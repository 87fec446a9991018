// Package metrics defines Prometheus metrics for the catalog core.
//
// Metrics are registered with the default registry via promauto; the
// embedding process decides whether and where to expose them.
package metrics

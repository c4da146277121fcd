// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Cache lookups by kind and outcome (hit, miss, stale)
//   - Upstream calls by operation and outcome, chunk failures
//   - Records dropped by normalization
//   - Page fetch duration and pacing gate wait
//   - Registry loads, session handshakes, degraded responses
//   - HTTP requests served
//
// Every recording method is safe on a nil *Metrics, so components can be
// built without metrics in tests.
package metrics

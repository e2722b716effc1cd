// Package api hosts the HTTP server, middleware, and read-only status
// handlers for operators. Notable routes:
//   - GET /healthz and /readyz for probes; readyz fails when no cycle has
//     been recorded within two check intervals.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/status, /api/history and /api/alerts for the monitor state,
//     recent cycle results and dispatched alerts.
package api

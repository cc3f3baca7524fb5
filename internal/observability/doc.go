// Package observability provides structured logging and Prometheus metrics
// for the auth service.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Request ID propagation into log fields
//   - Counters and histograms for sessions, reconciliation and HTTP traffic
package observability

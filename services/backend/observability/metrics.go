// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the analytics backend.
//
// # Description
//
// This package implements metrics for monitoring the conversational
// analytics pipeline. Metrics include:
//   - Request counters and latency histograms (by endpoint)
//   - Query execution latency and result sizes (by source)
//   - Cache hit/miss counters
//   - Read-only guard rejections (by reason)
//   - LLM token usage (input/output by model)
//   - Alert evaluations and notification deliveries
//   - Active websocket client gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "convana"

// Subsystem for backend metrics
const backendSubsystem = "backend"

// QueryMetrics holds all Prometheus metrics for the analytics backend.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring the query
// pipeline and its supporting services. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type QueryMetrics struct {
	// RequestsTotal counts HTTP requests by endpoint and status code.
	// Labels: endpoint (route path), status ("200", "401", ...)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures HTTP request latency.
	// Labels: endpoint
	RequestDurationSeconds *prometheus.HistogramVec

	// QueryDurationSeconds measures end-to-end query pipeline latency.
	// Labels: source (chat, api, saved, dashboard), status (success, error)
	QueryDurationSeconds *prometheus.HistogramVec

	// RowsReturned measures result set sizes.
	// Labels: source
	RowsReturned *prometheus.HistogramVec

	// CacheLookupsTotal counts result cache lookups.
	// Labels: outcome (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// QueriesBlockedTotal counts statements rejected by the read-only guard.
	// Labels: reason (forbidden_keyword, not_read_only, multi_statement, empty_query)
	QueriesBlockedTotal *prometheus.CounterVec

	// LLMTokensTotal counts tokens processed by direction and model.
	// Labels: direction (input, output), model
	LLMTokensTotal *prometheus.CounterVec

	// AlertChecksTotal counts alert evaluations by outcome.
	// Labels: outcome (triggered, not_triggered, error)
	AlertChecksTotal *prometheus.CounterVec

	// NotificationsTotal counts alert notification deliveries.
	// Labels: method (email, slack), status (success, error)
	NotificationsTotal *prometheus.CounterVec

	// ActiveWebsocketClients tracks connected alert stream clients.
	ActiveWebsocketClients prometheus.Gauge
}

// DefaultMetrics is the singleton instance of QueryMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *QueryMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all metrics with the default Prometheus
// registry. Should be called once at application startup.
//
// # Outputs
//
//   - *QueryMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *QueryMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics builds the metric set against a specific registerer.
// Tests use this with an isolated registry; production code should
// call InitMetrics instead.
func NewMetrics(reg prometheus.Registerer) *QueryMetrics {
	factory := promauto.With(reg)

	return &QueryMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),

		QueryDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "query_duration_seconds",
				Help:      "End-to-end query pipeline latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source", "status"},
		),

		RowsReturned: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "rows_returned",
				Help:      "Result set sizes by query source",
				Buckets:   []float64{1, 10, 100, 1000, 10000, 100000},
			},
			[]string{"source"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		QueriesBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "queries_blocked_total",
				Help:      "Statements rejected by the read-only guard",
			},
			[]string{"reason"},
		),

		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "llm_tokens_total",
				Help:      "Total LLM tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		AlertChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "alert_checks_total",
				Help:      "Alert evaluations by outcome",
			},
			[]string{"outcome"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "notifications_total",
				Help:      "Alert notification deliveries by method and status",
			},
			[]string{"method", "status"},
		),

		ActiveWebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: backendSubsystem,
				Name:      "active_websocket_clients",
				Help:      "Number of connected alert stream clients",
			},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// QuerySource identifies where a pipeline query originated.
type QuerySource string

const (
	// SourceChat is the conversational query endpoint.
	SourceChat QuerySource = "chat"

	// SourceAPI is a direct SQL execution via the API.
	SourceAPI QuerySource = "api"

	// SourceSaved is a saved query execution.
	SourceSaved QuerySource = "saved"

	// SourceDashboard is a dashboard metric refresh.
	SourceDashboard QuerySource = "dashboard"
)

// BlockReason categorizes read-only guard rejections.
type BlockReason string

const (
	// BlockReasonForbidden indicates a forbidden keyword was found.
	BlockReasonForbidden BlockReason = "forbidden_keyword"

	// BlockReasonNotReadOnly indicates a disallowed leading keyword.
	BlockReasonNotReadOnly BlockReason = "not_read_only"

	// BlockReasonMultiStatement indicates multiple statements.
	BlockReasonMultiStatement BlockReason = "multi_statement"

	// BlockReasonEmpty indicates an empty statement.
	BlockReasonEmpty BlockReason = "empty_query"
)

// AlertOutcome categorizes a single alert evaluation.
type AlertOutcome string

const (
	// AlertOutcomeTriggered indicates the condition was met.
	AlertOutcomeTriggered AlertOutcome = "triggered"

	// AlertOutcomeNotTriggered indicates the condition was not met.
	AlertOutcomeNotTriggered AlertOutcome = "not_triggered"

	// AlertOutcomeError indicates the evaluation failed.
	AlertOutcomeError AlertOutcome = "error"
)

// =============================================================================
// Helper Methods
// =============================================================================
//
// All helpers tolerate a nil receiver so callers can treat metrics as an
// optional dependency.

// RecordRequest records a completed HTTP request.
//
// # Inputs
//
//   - endpoint: The route path that handled the request.
//   - code: The HTTP status code.
func (m *QueryMetrics) RecordRequest(endpoint string, code int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// ObserveRequestDuration records HTTP request latency.
//
// # Inputs
//
//   - endpoint: The route path that handled the request.
//   - seconds: Request duration in seconds.
func (m *QueryMetrics) ObserveRequestDuration(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveQuery records a completed pipeline query.
//
// # Inputs
//
//   - source: Where the query originated.
//   - seconds: End-to-end duration in seconds.
//   - success: Whether the query completed successfully.
func (m *QueryMetrics) ObserveQuery(source QuerySource, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.QueryDurationSeconds.WithLabelValues(string(source), status).Observe(seconds)
}

// ObserveRows records a result set size.
//
// # Inputs
//
//   - source: Where the query originated.
//   - rows: Number of rows returned.
func (m *QueryMetrics) ObserveRows(source QuerySource, rows int) {
	if m == nil {
		return
	}
	m.RowsReturned.WithLabelValues(string(source)).Observe(float64(rows))
}

// RecordCacheLookup records a result cache lookup.
//
// # Inputs
//
//   - hit: Whether the lookup found a servable entry.
func (m *QueryMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordBlockedQuery records a read-only guard rejection.
//
// # Inputs
//
//   - reason: The rejection category.
func (m *QueryMetrics) RecordBlockedQuery(reason BlockReason) {
	if m == nil {
		return
	}
	m.QueriesBlockedTotal.WithLabelValues(string(reason)).Inc()
}

// RecordLLMTokens records token usage.
//
// # Inputs
//
//   - inputTokens: Number of input tokens.
//   - outputTokens: Number of output tokens.
//   - model: The model used.
func (m *QueryMetrics) RecordLLMTokens(inputTokens, outputTokens int, model string) {
	if m == nil {
		return
	}
	m.LLMTokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.LLMTokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}

// RecordAlertCheck records one alert evaluation.
//
// # Inputs
//
//   - outcome: The evaluation outcome.
func (m *QueryMetrics) RecordAlertCheck(outcome AlertOutcome) {
	if m == nil {
		return
	}
	m.AlertChecksTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordNotification records an alert notification delivery attempt.
//
// # Inputs
//
//   - method: The delivery method (email, slack).
//   - success: Whether delivery succeeded.
func (m *QueryMetrics) RecordNotification(method string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.NotificationsTotal.WithLabelValues(method, status).Inc()
}

// WebsocketOpened increments the connected client gauge.
func (m *QueryMetrics) WebsocketOpened() {
	if m == nil {
		return
	}
	m.ActiveWebsocketClients.Inc()
}

// WebsocketClosed decrements the connected client gauge.
func (m *QueryMetrics) WebsocketClosed() {
	if m == nil {
		return
	}
	m.ActiveWebsocketClients.Dec()
}

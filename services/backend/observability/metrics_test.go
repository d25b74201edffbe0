// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a metrics instance backed by an isolated
// registry, so tests do not collide with the default registry or
// each other.
func newTestMetrics() *QueryMetrics {
	return NewMetrics(prometheus.NewRegistry())
}

// initMetricsTestOnce guards the singleton test. InitMetrics registers
// against the default registry and panics on a second call, so only
// one test per binary may invoke it.
var initMetricsTestOnce bool

// =============================================================================
// Initialization Tests
// =============================================================================

func TestInitMetrics(t *testing.T) {
	if initMetricsTestOnce {
		t.Skip("InitMetrics can only be called once per test binary")
	}
	initMetricsTestOnce = true

	m := InitMetrics()
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}
	if DefaultMetrics != m {
		t.Error("DefaultMetrics should be set to the returned instance")
	}
	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should be initialized")
	}
	if m.QueryDurationSeconds == nil {
		t.Error("QueryDurationSeconds should be initialized")
	}
	if m.ActiveWebsocketClients == nil {
		t.Error("ActiveWebsocketClients should be initialized")
	}
}

func TestNewTestMetrics_Isolated(t *testing.T) {
	m1 := newTestMetrics()
	m2 := newTestMetrics()

	m1.RecordCacheLookup(true)

	if got := testutil.ToFloat64(m1.CacheLookupsTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("m1 hit count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m2.CacheLookupsTotal.WithLabelValues("hit")); got != 0 {
		t.Errorf("m2 hit count = %v, want 0", got)
	}
}

// =============================================================================
// Constant Tests
// =============================================================================

func TestQuerySourceConstants(t *testing.T) {
	tests := []struct {
		source   QuerySource
		expected string
	}{
		{SourceChat, "chat"},
		{SourceAPI, "api"},
		{SourceSaved, "saved"},
		{SourceDashboard, "dashboard"},
	}

	for _, tt := range tests {
		if string(tt.source) != tt.expected {
			t.Errorf("QuerySource = %v, want %v", tt.source, tt.expected)
		}
	}
}

func TestBlockReasonConstants(t *testing.T) {
	tests := []struct {
		reason   BlockReason
		expected string
	}{
		{BlockReasonForbidden, "forbidden_keyword"},
		{BlockReasonNotReadOnly, "not_read_only"},
		{BlockReasonMultiStatement, "multi_statement"},
		{BlockReasonEmpty, "empty_query"},
	}

	for _, tt := range tests {
		if string(tt.reason) != tt.expected {
			t.Errorf("BlockReason = %v, want %v", tt.reason, tt.expected)
		}
	}
}

func TestAlertOutcomeConstants(t *testing.T) {
	tests := []struct {
		outcome  AlertOutcome
		expected string
	}{
		{AlertOutcomeTriggered, "triggered"},
		{AlertOutcomeNotTriggered, "not_triggered"},
		{AlertOutcomeError, "error"},
	}

	for _, tt := range tests {
		if string(tt.outcome) != tt.expected {
			t.Errorf("AlertOutcome = %v, want %v", tt.outcome, tt.expected)
		}
	}
}

// =============================================================================
// Helper Method Tests
// =============================================================================

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordRequest("/api/query", 200)
	m.RecordRequest("/api/query", 200)
	m.RecordRequest("/api/query", 500)
	m.RecordRequest("/api/auth/login", 401)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/query", "200")); got != 2 {
		t.Errorf("query 200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/query", "500")); got != 1 {
		t.Errorf("query 500 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/auth/login", "401")); got != 1 {
		t.Errorf("login 401 count = %v, want 1", got)
	}
}

func TestObserveRequestDuration(t *testing.T) {
	m := newTestMetrics()

	m.ObserveRequestDuration("/api/query", 0.05)
	m.ObserveRequestDuration("/api/query", 1.2)
	m.ObserveRequestDuration("/health", 0.001)

	if got := testutil.CollectAndCount(m.RequestDurationSeconds); got != 2 {
		t.Errorf("histogram series count = %v, want 2", got)
	}
}

func TestObserveQuery(t *testing.T) {
	m := newTestMetrics()

	m.ObserveQuery(SourceChat, 2.5, true)
	m.ObserveQuery(SourceChat, 0.8, true)
	m.ObserveQuery(SourceChat, 30.0, false)
	m.ObserveQuery(SourceDashboard, 1.1, true)

	// chat/success, chat/error, dashboard/success
	if got := testutil.CollectAndCount(m.QueryDurationSeconds); got != 3 {
		t.Errorf("histogram series count = %v, want 3", got)
	}
}

func TestObserveRows(t *testing.T) {
	m := newTestMetrics()

	m.ObserveRows(SourceChat, 42)
	m.ObserveRows(SourceChat, 1000)
	m.ObserveRows(SourceSaved, 0)

	if got := testutil.CollectAndCount(m.RowsReturned); got != 2 {
		t.Errorf("histogram series count = %v, want 2", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	m := newTestMetrics()

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)

	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")); got != 2 {
		t.Errorf("hit count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss count = %v, want 1", got)
	}
}

func TestRecordBlockedQuery(t *testing.T) {
	m := newTestMetrics()

	m.RecordBlockedQuery(BlockReasonForbidden)
	m.RecordBlockedQuery(BlockReasonForbidden)
	m.RecordBlockedQuery(BlockReasonMultiStatement)

	if got := testutil.ToFloat64(m.QueriesBlockedTotal.WithLabelValues("forbidden_keyword")); got != 2 {
		t.Errorf("forbidden count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueriesBlockedTotal.WithLabelValues("multi_statement")); got != 1 {
		t.Errorf("multi-statement count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueriesBlockedTotal.WithLabelValues("empty_query")); got != 0 {
		t.Errorf("empty count = %v, want 0", got)
	}
}

func TestRecordLLMTokens(t *testing.T) {
	m := newTestMetrics()

	m.RecordLLMTokens(1500, 220, "llama3.1:8b")
	m.RecordLLMTokens(800, 95, "llama3.1:8b")
	m.RecordLLMTokens(400, 60, "mistral:7b")

	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("input", "llama3.1:8b")); got != 2300 {
		t.Errorf("llama input tokens = %v, want 2300", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("output", "llama3.1:8b")); got != 315 {
		t.Errorf("llama output tokens = %v, want 315", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("input", "mistral:7b")); got != 400 {
		t.Errorf("mistral input tokens = %v, want 400", got)
	}
}

func TestRecordAlertCheck(t *testing.T) {
	m := newTestMetrics()

	m.RecordAlertCheck(AlertOutcomeTriggered)
	m.RecordAlertCheck(AlertOutcomeNotTriggered)
	m.RecordAlertCheck(AlertOutcomeNotTriggered)
	m.RecordAlertCheck(AlertOutcomeError)

	if got := testutil.ToFloat64(m.AlertChecksTotal.WithLabelValues("triggered")); got != 1 {
		t.Errorf("triggered count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AlertChecksTotal.WithLabelValues("not_triggered")); got != 2 {
		t.Errorf("not_triggered count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AlertChecksTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestRecordNotification(t *testing.T) {
	m := newTestMetrics()

	m.RecordNotification("email", true)
	m.RecordNotification("email", false)
	m.RecordNotification("slack", true)
	m.RecordNotification("slack", true)

	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("email", "success")); got != 1 {
		t.Errorf("email success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("email", "error")); got != 1 {
		t.Errorf("email error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("slack", "success")); got != 2 {
		t.Errorf("slack success count = %v, want 2", got)
	}
}

func TestWebsocketGauge(t *testing.T) {
	m := newTestMetrics()

	m.WebsocketOpened()
	m.WebsocketOpened()
	m.WebsocketOpened()

	if got := testutil.ToFloat64(m.ActiveWebsocketClients); got != 3 {
		t.Errorf("active clients = %v, want 3", got)
	}

	m.WebsocketClosed()

	if got := testutil.ToFloat64(m.ActiveWebsocketClients); got != 2 {
		t.Errorf("active clients after close = %v, want 2", got)
	}
}

// =============================================================================
// Scenario Tests
// =============================================================================

// TestScenario_SuccessfulChatQuery walks one conversational query through
// the metrics it would touch.
func TestScenario_SuccessfulChatQuery(t *testing.T) {
	m := newTestMetrics()

	// SQL generation
	m.RecordLLMTokens(1800, 140, "llama3.1:8b")

	// Cache miss, warehouse execution
	m.RecordCacheLookup(false)
	m.ObserveQuery(SourceChat, 3.2, true)
	m.ObserveRows(SourceChat, 128)

	// Insight generation
	m.RecordLLMTokens(900, 310, "llama3.1:8b")

	// HTTP completion
	m.RecordRequest("/api/query", 200)
	m.ObserveRequestDuration("/api/query", 4.1)

	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("input", "llama3.1:8b")); got != 2700 {
		t.Errorf("input tokens = %v, want 2700", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/query", "200")); got != 1 {
		t.Errorf("request count = %v, want 1", got)
	}
}

// TestScenario_BlockedQuery covers a write statement stopped by the guard.
func TestScenario_BlockedQuery(t *testing.T) {
	m := newTestMetrics()

	m.RecordBlockedQuery(BlockReasonForbidden)
	m.ObserveQuery(SourceAPI, 0.01, false)
	m.RecordRequest("/api/query/validate-sql", 200)

	if got := testutil.ToFloat64(m.QueriesBlockedTotal.WithLabelValues("forbidden_keyword")); got != 1 {
		t.Errorf("blocked count = %v, want 1", got)
	}
}

// TestScenario_AlertCycle covers one scheduler pass over three alerts.
func TestScenario_AlertCycle(t *testing.T) {
	m := newTestMetrics()

	// Alert 1 triggers and notifies via both channels.
	m.RecordAlertCheck(AlertOutcomeTriggered)
	m.RecordNotification("email", true)
	m.RecordNotification("slack", true)

	// Alert 2 does not trigger.
	m.RecordAlertCheck(AlertOutcomeNotTriggered)

	// Alert 3 fails to evaluate.
	m.RecordAlertCheck(AlertOutcomeError)

	if got := testutil.ToFloat64(m.AlertChecksTotal.WithLabelValues("triggered")); got != 1 {
		t.Errorf("triggered count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("slack", "success")); got != 1 {
		t.Errorf("slack count = %v, want 1", got)
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestConcurrentMetricUpdates(t *testing.T) {
	m := newTestMetrics()

	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.RecordRequest("/api/query", 200)
				m.RecordCacheLookup(j%2 == 0)
				m.ObserveQuery(SourceChat, 0.5, true)
				m.WebsocketOpened()
				m.WebsocketClosed()
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/query", "200")); got != goroutines*iterations {
		t.Errorf("request count = %v, want %v", got, goroutines*iterations)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")); got != goroutines*iterations/2 {
		t.Errorf("hit count = %v, want %v", got, goroutines*iterations/2)
	}
	if got := testutil.ToFloat64(m.ActiveWebsocketClients); got != 0 {
		t.Errorf("active clients = %v, want 0", got)
	}
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package alerts evaluates user-defined threshold alerts against the
// warehouse and delivers notifications when a condition is met.
//
// The Evaluator runs on a ticker. Each cycle it loads every active
// alert, executes the alert's SQL, compares the first numeric value in
// the first row against the threshold, and on a match sends email
// and/or Slack notifications, appends a history row, bumps the trigger
// counter, and broadcasts the event to connected websocket clients.
// A failing alert is recorded as a history row in state "error"; it
// never stops the cycle or the scheduler.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eulerianKnight/conversational-analytics/services/backend/observability"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
)

var tracer = otel.Tracer("convana.backend.alerts")

// DefaultCheckInterval is how often the scheduler evaluates active
// alerts when ALERT_CHECK_INTERVAL_SECONDS is not set.
const DefaultCheckInterval = 5 * time.Minute

// ErrWarehouseUnavailable is returned when alerts cannot be evaluated
// because no warehouse connection is configured.
var ErrWarehouseUnavailable = errors.New("warehouse not available")

// Notification delivery methods.
const (
	MethodEmail = "email"
	MethodSlack = "slack"
	MethodBoth  = "both"
)

// Conditions lists the comparison operators an alert may use.
var Conditions = []string{">", "<", ">=", "<=", "=", "!="}

// NotificationMethods lists the accepted delivery methods.
var NotificationMethods = []string{MethodEmail, MethodSlack, MethodBoth}

// ValidCondition reports whether s is a supported comparison operator.
func ValidCondition(s string) bool {
	for _, c := range Conditions {
		if s == c {
			return true
		}
	}
	return false
}

// ValidNotificationMethod reports whether s is a supported delivery
// method.
func ValidNotificationMethod(s string) bool {
	for _, m := range NotificationMethods {
		if s == m {
			return true
		}
	}
	return false
}

// EvaluateCondition compares value against threshold using the given
// operator. Unknown operators never match.
func EvaluateCondition(condition string, value, threshold float64) bool {
	switch condition {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "=":
		return value == threshold
	case "!=":
		return value != threshold
	default:
		return false
	}
}

// CheckIntervalFromEnv reads ALERT_CHECK_INTERVAL_SECONDS, falling back
// to DefaultCheckInterval when unset or invalid.
func CheckIntervalFromEnv() time.Duration {
	if raw := os.Getenv("ALERT_CHECK_INTERVAL_SECONDS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return DefaultCheckInterval
}

// -----------------------------------------------------------------------------
// Evaluator
// -----------------------------------------------------------------------------

// QueryRunner executes read-only SQL and returns decoded rows.
// *warehouse.Client satisfies it.
type QueryRunner interface {
	Query(ctx context.Context, query string, args ...any) (*warehouse.Result, error)
}

// Config assembles an Evaluator. Store is required. Runner, Notifier,
// Hub, Recorder, and Metrics are optional; a nil Runner makes every
// evaluation fail with ErrWarehouseUnavailable.
type Config struct {
	Store    *store.Store
	Runner   QueryRunner
	Notifier *Notifier
	Hub      *Hub
	Recorder *Recorder
	Metrics  *observability.QueryMetrics
	Interval time.Duration
	Logger   *slog.Logger
}

// Evaluator checks active alerts on a schedule and processes triggers.
//
// Thread Safety: safe for concurrent use. CheckAll and TestAlert may be
// called while the scheduler is running.
type Evaluator struct {
	store    *store.Store
	runner   QueryRunner
	notifier *Notifier
	hub      *Hub
	recorder *Recorder
	metrics  *observability.QueryMetrics
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewEvaluator builds an Evaluator from cfg.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Store == nil {
		return nil, errors.New("alert evaluator requires a store")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCheckInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Evaluator{
		store:    cfg.Store,
		runner:   cfg.Runner,
		notifier: cfg.Notifier,
		hub:      cfg.Hub,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		interval: cfg.Interval,
		logger:   cfg.Logger.With(slog.String("component", "alerts")),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins the periodic check loop.
func (e *Evaluator) Start() {
	e.logger.Info("alert scheduler started",
		slog.Duration("interval", e.interval))
	go e.run()
}

// Stop halts the loop and waits for the current cycle to finish. Safe
// to call more than once.
func (e *Evaluator) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		<-e.doneCh
	})
}

func (e *Evaluator) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Evaluator) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), e.interval)
	defer cancel()

	summary, err := e.CheckAll(ctx)
	if err != nil {
		if !errors.Is(err, ErrWarehouseUnavailable) {
			e.logger.Warn("alert check cycle failed",
				slog.String("error", err.Error()))
		}
		return
	}
	if summary.CheckedCount > 0 {
		e.logger.Info("alert check cycle complete",
			slog.Int("checked", summary.CheckedCount),
			slog.Int("triggered", summary.TriggeredCount))
	}
}

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------

// CheckResult reports the outcome for a single alert within a cycle.
type CheckResult struct {
	AlertID          int64   `json:"alert_id"`
	AlertName        string  `json:"alert_name"`
	Triggered        bool    `json:"triggered"`
	MetricValue      float64 `json:"metric_value"`
	NotificationSent bool    `json:"notification_sent,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// CheckSummary reports one full check cycle.
type CheckSummary struct {
	CheckedCount   int           `json:"checked_count"`
	TriggeredCount int           `json:"triggered_count"`
	Results        []CheckResult `json:"results"`
	Timestamp      time.Time     `json:"timestamp"`
}

// TestResult reports a single on-demand alert evaluation.
type TestResult struct {
	AlertID          int64     `json:"alert_id"`
	ConditionMet     bool      `json:"condition_met"`
	MetricValue      float64   `json:"metric_value"`
	ThresholdValue   float64   `json:"threshold_value"`
	Condition        string    `json:"condition"`
	NotificationSent *bool     `json:"notification_sent,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// CheckAll evaluates every active alert once and returns the cycle
// summary. Individual alert failures are captured per result row; only
// a missing warehouse or a store failure aborts the cycle.
func (e *Evaluator) CheckAll(ctx context.Context) (*CheckSummary, error) {
	ctx, span := tracer.Start(ctx, "alerts.CheckAll")
	defer span.End()

	if e.runner == nil {
		return nil, ErrWarehouseUnavailable
	}

	active, err := e.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}

	summary := &CheckSummary{
		CheckedCount: len(active),
		Results:      make([]CheckResult, 0, len(active)),
		Timestamp:    time.Now().UTC(),
	}

	for i := range active {
		res := e.checkOne(ctx, &active[i])
		if res.Triggered {
			summary.TriggeredCount++
		}
		summary.Results = append(summary.Results, res)
	}

	span.SetAttributes(
		attribute.Int("checked", summary.CheckedCount),
		attribute.Int("triggered", summary.TriggeredCount),
	)
	return summary, nil
}

// TestAlert evaluates one alert immediately. When the condition is met
// the full trigger path runs, including notifications and history.
// Unlike CheckAll it does not stamp last_checked.
func (e *Evaluator) TestAlert(ctx context.Context, alert *store.Alert, owner *store.User) (*TestResult, error) {
	ctx, span := tracer.Start(ctx, "alerts.TestAlert")
	defer span.End()

	met, value, err := e.evaluate(ctx, alert)
	if err != nil {
		span.RecordError(err)
		e.metrics.RecordAlertCheck(observability.AlertOutcomeError)
		return nil, err
	}

	result := &TestResult{
		AlertID:        alert.ID,
		ConditionMet:   met,
		MetricValue:    value,
		ThresholdValue: alert.ThresholdValue,
		Condition:      alert.Condition,
		Timestamp:      time.Now().UTC(),
	}

	if met {
		sent := e.processTrigger(ctx, alert, value, owner)
		result.NotificationSent = &sent
		e.metrics.RecordAlertCheck(observability.AlertOutcomeTriggered)
	} else {
		e.metrics.RecordAlertCheck(observability.AlertOutcomeNotTriggered)
	}
	return result, nil
}

// checkOne runs the full per-alert flow for a scheduled cycle.
func (e *Evaluator) checkOne(ctx context.Context, alert *store.Alert) CheckResult {
	result := CheckResult{AlertID: alert.ID, AlertName: alert.AlertName}

	if err := e.store.MarkAlertChecked(ctx, alert.ID); err != nil {
		e.logger.Warn("mark alert checked failed",
			slog.Int64("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}

	met, value, err := e.evaluate(ctx, alert)
	if err != nil {
		e.recordFailure(ctx, alert, err)
		result.Error = err.Error()
		return result
	}
	result.MetricValue = value

	if !met {
		e.metrics.RecordAlertCheck(observability.AlertOutcomeNotTriggered)
		return result
	}

	owner, err := e.store.GetUserByID(ctx, alert.UserID)
	if err != nil {
		e.recordFailure(ctx, alert, fmt.Errorf("load alert owner: %w", err))
		result.Error = fmt.Sprintf("load alert owner: %v", err)
		return result
	}

	result.Triggered = true
	result.NotificationSent = e.processTrigger(ctx, alert, value, owner)
	e.metrics.RecordAlertCheck(observability.AlertOutcomeTriggered)
	return result
}

// evaluate runs the alert's SQL and compares the first numeric value of
// the first row against the threshold. An empty result set or a row
// without numeric columns means there is nothing to compare and the
// condition is not met.
func (e *Evaluator) evaluate(ctx context.Context, alert *store.Alert) (bool, float64, error) {
	if e.runner == nil {
		return false, 0, ErrWarehouseUnavailable
	}

	res, err := e.runner.Query(ctx, alert.SQLQuery)
	if err != nil {
		return false, 0, fmt.Errorf("alert query: %w", err)
	}

	value, ok := firstNumeric(res)
	if !ok {
		e.record(ctx, alert, 0, false)
		return false, 0, nil
	}

	met := EvaluateCondition(alert.Condition, value, alert.ThresholdValue)
	e.record(ctx, alert, value, met)
	return met, value, nil
}

// processTrigger delivers notifications, persists the history row,
// bumps the trigger counter, and broadcasts the event. Returns whether
// at least one notification was delivered.
func (e *Evaluator) processTrigger(ctx context.Context, alert *store.Alert, value float64, owner *store.User) bool {
	now := time.Now().UTC()
	message := TriggerMessage(alert, value, now)

	var sent bool
	if alert.NotificationMethod == MethodEmail || alert.NotificationMethod == MethodBoth {
		err := e.notifier.SendEmail(ctx, owner.Email,
			"Alert: "+alert.AlertName,
			strings.ReplaceAll(message, "\n", "<br>"))
		switch {
		case err == nil:
			sent = true
			e.metrics.RecordNotification(MethodEmail, true)
		case errors.Is(err, ErrEmailNotConfigured):
			// Not an attempt; nothing to count.
		default:
			e.logger.Warn("email notification failed",
				slog.Int64("alert_id", alert.ID),
				slog.String("error", err.Error()))
			e.metrics.RecordNotification(MethodEmail, false)
		}
	}

	if alert.NotificationMethod == MethodSlack || alert.NotificationMethod == MethodBoth {
		err := e.notifier.SendSlack(ctx, message)
		switch {
		case err == nil:
			sent = true
			e.metrics.RecordNotification(MethodSlack, true)
		case errors.Is(err, ErrSlackNotConfigured):
		default:
			e.logger.Warn("slack notification failed",
				slog.Int64("alert_id", alert.ID),
				slog.String("error", err.Error()))
			e.metrics.RecordNotification(MethodSlack, false)
		}
	}

	ev := store.AlertEvent{
		AlertID:          alert.ID,
		MetricValue:      value,
		ThresholdValue:   alert.ThresholdValue,
		Message:          message,
		NotificationSent: sent,
		State:            store.AlertStateTriggered,
	}
	if err := e.store.InsertAlertEvent(ctx, ev); err != nil {
		e.logger.Warn("insert alert history failed",
			slog.Int64("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}
	if err := e.store.RecordAlertTrigger(ctx, alert.ID); err != nil {
		e.logger.Warn("record alert trigger failed",
			slog.Int64("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}

	e.hub.Broadcast(TriggerEvent{
		Type:           "alert_triggered",
		AlertID:        alert.ID,
		AlertName:      alert.AlertName,
		Metric:         alert.Metric,
		MetricValue:    value,
		ThresholdValue: alert.ThresholdValue,
		Condition:      alert.Condition,
		Message:        message,
		Timestamp:      now,
	})

	e.logger.Info("alert triggered",
		slog.Int64("alert_id", alert.ID),
		slog.String("alert", alert.AlertName),
		slog.Float64("value", value),
		slog.Bool("notification_sent", sent))
	return sent
}

// recordFailure logs an evaluation failure and appends a history row in
// state "error".
func (e *Evaluator) recordFailure(ctx context.Context, alert *store.Alert, evalErr error) {
	e.logger.Warn("alert evaluation failed",
		slog.Int64("alert_id", alert.ID),
		slog.String("alert", alert.AlertName),
		slog.String("error", evalErr.Error()))
	e.metrics.RecordAlertCheck(observability.AlertOutcomeError)

	ev := store.AlertEvent{
		AlertID:        alert.ID,
		ThresholdValue: alert.ThresholdValue,
		Message:        evalErr.Error(),
		State:          store.AlertStateError,
	}
	if err := e.store.InsertAlertEvent(ctx, ev); err != nil {
		e.logger.Warn("insert alert history failed",
			slog.Int64("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}
}

// record writes one evaluation point to the optional time-series
// recorder. Failures are logged and otherwise ignored.
func (e *Evaluator) record(ctx context.Context, alert *store.Alert, value float64, triggered bool) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, alert, value, triggered); err != nil {
		e.logger.Warn("evaluation point write failed",
			slog.Int64("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}
}

// firstNumeric returns the first numeric value of the first row,
// scanning columns in result order.
func firstNumeric(res *warehouse.Result) (float64, bool) {
	if res == nil || len(res.Data) == 0 {
		return 0, false
	}
	row := res.Data[0]
	for _, col := range res.Metadata.Columns {
		if v, ok := toFloat(row[col]); ok {
			return v, true
		}
	}
	return 0, false
}

// toFloat converts warehouse cell values to float64. Snowflake returns
// fixed-point NUMBER columns as text, so numeric strings count.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

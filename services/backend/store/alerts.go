// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Alert history states.
const (
	AlertStateTriggered = "triggered"
	AlertStateError     = "error"
)

// Alert is a threshold watch over a warehouse metric query.
type Alert struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	AlertName          string     `json:"alert_name"`
	Metric             string     `json:"metric"`
	ThresholdValue     float64    `json:"threshold_value"`
	Condition          string     `json:"condition"`
	NotificationMethod string     `json:"notification_method"`
	SQLQuery           string     `json:"sql_query"`
	IsActive           bool       `json:"is_active"`
	LastChecked        *time.Time `json:"last_checked,omitempty"`
	LastTriggered      *time.Time `json:"last_triggered,omitempty"`
	TriggerCount       int        `json:"trigger_count"`
	CreatedAt          time.Time  `json:"created_at"`
}

// AlertUpdate carries a partial alert update. Nil fields are left unchanged.
type AlertUpdate struct {
	AlertName          *string
	ThresholdValue     *float64
	Condition          *string
	NotificationMethod *string
	IsActive           *bool
}

// AlertEvent is one row of alert trigger history.
type AlertEvent struct {
	ID               int64     `json:"id"`
	AlertID          int64     `json:"alert_id"`
	TriggeredAt      time.Time `json:"triggered_at"`
	MetricValue      float64   `json:"metric_value"`
	ThresholdValue   float64   `json:"threshold_value"`
	Message          string    `json:"message,omitempty"`
	NotificationSent bool      `json:"notification_sent"`
	State            string    `json:"state"`
}

// CreateAlert inserts an alert and returns its ID.
// Condition and notification method validity is enforced by schema CHECK
// constraints; handlers validate earlier for friendlier errors.
func (s *Store) CreateAlert(ctx context.Context, a Alert) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(user_id, alert_name, metric, threshold_value, condition,
			 notification_method, sql_query)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AlertName, a.Metric, a.ThresholdValue, a.Condition,
		a.NotificationMethod, a.SQLQuery,
	)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("alert insert id: %w", err)
	}
	return id, nil
}

// GetAlert returns an alert owned by the user.
// Returns ErrNotFound when the alert does not exist or belongs to
// another user.
func (s *Store) GetAlert(ctx context.Context, id, userID int64) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, alertSelect+` WHERE id = ? AND user_id = ?`, id, userID)

	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alert: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("query alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns the user's alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, userID int64) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		alertSelect+` WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListActiveAlerts returns every active alert across all users.
// Used by the background evaluator.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		alertSelect+` WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// UpdateAlert applies a partial update to an alert owned by the user.
// Returns ErrNotFound when the alert does not exist or belongs to another
// user, and an error when the update carries no fields.
func (s *Store) UpdateAlert(ctx context.Context, id, userID int64, upd AlertUpdate) error {
	var sets []string
	var args []any

	if upd.AlertName != nil {
		sets = append(sets, "alert_name = ?")
		args = append(args, *upd.AlertName)
	}
	if upd.ThresholdValue != nil {
		sets = append(sets, "threshold_value = ?")
		args = append(args, *upd.ThresholdValue)
	}
	if upd.Condition != nil {
		sets = append(sets, "condition = ?")
		args = append(args, *upd.Condition)
	}
	if upd.NotificationMethod != nil {
		sets = append(sets, "notification_method = ?")
		args = append(args, *upd.NotificationMethod)
	}
	if upd.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *upd.IsActive)
	}

	if len(sets) == 0 {
		return errors.New("no fields to update")
	}

	args = append(args, id, userID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`,
		args...)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return requireRow(res, "alert")
}

// DeleteAlert removes an alert owned by the user. History rows cascade.
// Returns ErrNotFound when the alert does not exist or belongs to
// another user.
func (s *Store) DeleteAlert(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return requireRow(res, "alert")
}

// MarkAlertChecked stamps last_checked with the current time.
func (s *Store) MarkAlertChecked(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET last_checked = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark alert checked: %w", err)
	}
	return nil
}

// RecordAlertTrigger stamps last_triggered and bumps the trigger counter.
func (s *Store) RecordAlertTrigger(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET last_triggered = CURRENT_TIMESTAMP, trigger_count = trigger_count + 1
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("record alert trigger: %w", err)
	}
	return nil
}

// InsertAlertEvent appends a trigger (or evaluation error) history row.
func (s *Store) InsertAlertEvent(ctx context.Context, ev AlertEvent) error {
	state := ev.State
	if state == "" {
		state = AlertStateTriggered
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_history
			(alert_id, metric_value, threshold_value, message,
			 notification_sent, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.AlertID, ev.MetricValue, ev.ThresholdValue, ev.Message,
		ev.NotificationSent, state,
	)
	if err != nil {
		return fmt.Errorf("insert alert event: %w", err)
	}
	return nil
}

// AlertHistory returns trigger history for an alert, newest first.
func (s *Store) AlertHistory(ctx context.Context, alertID int64, limit int) ([]AlertEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, triggered_at, metric_value, threshold_value,
		       message, notification_sent, state
		FROM alert_history
		WHERE alert_id = ?
		ORDER BY triggered_at DESC, id DESC LIMIT ?`,
		alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var events []AlertEvent
	for rows.Next() {
		var ev AlertEvent
		var metricValue, thresholdValue sql.NullFloat64
		var message sql.NullString

		err := rows.Scan(&ev.ID, &ev.AlertID, &ev.TriggeredAt, &metricValue,
			&thresholdValue, &message, &ev.NotificationSent, &ev.State)
		if err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}

		ev.MetricValue = metricValue.Float64
		ev.ThresholdValue = thresholdValue.Float64
		ev.Message = message.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

const alertSelect = `
	SELECT id, user_id, alert_name, metric, threshold_value, condition,
	       notification_method, sql_query, is_active, last_checked,
	       last_triggered, trigger_count, created_at
	FROM alerts`

func collectAlerts(rows *sql.Rows) ([]Alert, error) {
	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var lastChecked, lastTriggered sql.NullTime

	err := row.Scan(&a.ID, &a.UserID, &a.AlertName, &a.Metric,
		&a.ThresholdValue, &a.Condition, &a.NotificationMethod, &a.SQLQuery,
		&a.IsActive, &lastChecked, &lastTriggered, &a.TriggerCount, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	if lastChecked.Valid {
		a.LastChecked = &lastChecked.Time
	}
	if lastTriggered.Valid {
		a.LastTriggered = &lastTriggered.Time
	}
	return &a, nil
}

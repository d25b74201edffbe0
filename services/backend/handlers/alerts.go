// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eulerianKnight/conversational-analytics/services/backend/alerts"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
)

// AlertCreateRequest defines a new threshold watch. The SQL query must
// return the metric value in its first numeric column.
type AlertCreateRequest struct {
	AlertName          string  `json:"alert_name" binding:"required"`
	Metric             string  `json:"metric" binding:"required"`
	ThresholdValue     float64 `json:"threshold_value"`
	Condition          string  `json:"condition" binding:"required"`
	NotificationMethod string  `json:"notification_method" binding:"required"`
	SQLQuery           string  `json:"sql_query" binding:"required"`
}

// AlertUpdateRequest carries a partial alert update. Absent fields are
// left unchanged.
type AlertUpdateRequest struct {
	AlertName          *string  `json:"alert_name"`
	ThresholdValue     *float64 `json:"threshold_value"`
	Condition          *string  `json:"condition"`
	NotificationMethod *string  `json:"notification_method"`
	IsActive           *bool    `json:"is_active"`
}

// CreateAlert stores a new alert after validating its condition,
// notification method, and SQL query.
func CreateAlert(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreateAlert")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req AlertCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if !alerts.ValidCondition(req.Condition) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid condition. Must be one of: " + strings.Join(alerts.Conditions, ", "),
			})
			return
		}
		if !alerts.ValidNotificationMethod(req.NotificationMethod) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid notification method. Must be one of: " + strings.Join(alerts.NotificationMethods, ", "),
			})
			return
		}
		if valid, message := warehouse.ValidateSQL(req.SQLQuery); !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid SQL query: " + message})
			return
		}

		id, err := st.CreateAlert(ctx, store.Alert{
			UserID:             userID,
			AlertName:          req.AlertName,
			Metric:             req.Metric,
			ThresholdValue:     req.ThresholdValue,
			Condition:          req.Condition,
			NotificationMethod: req.NotificationMethod,
			SQLQuery:           req.SQLQuery,
		})
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to create alert", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
			return
		}

		alert, err := st.GetAlert(ctx, id, userID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to load alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
			return
		}

		c.JSON(http.StatusCreated, alert)
	}
}

// ListAlerts returns the user's alerts, newest first.
func ListAlerts(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		list, err := st.ListAlerts(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to list alerts", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
			return
		}
		if list == nil {
			list = []store.Alert{}
		}

		c.JSON(http.StatusOK, list)
	}
}

// GetAlert returns one alert owned by the user.
func GetAlert(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid alert id")
		if !ok {
			return
		}

		alert, err := st.GetAlert(c.Request.Context(), id, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		case err != nil:
			slog.Error("Failed to load alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alert"})
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}

// UpdateAlert applies a partial update to an alert owned by the user.
func UpdateAlert(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "UpdateAlert")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid alert id")
		if !ok {
			return
		}

		var req AlertUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if _, err := st.GetAlert(ctx, id, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
				return
			}
			slog.Error("Failed to load alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
			return
		}

		if req.Condition != nil && !alerts.ValidCondition(*req.Condition) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid condition. Must be one of: " + strings.Join(alerts.Conditions, ", "),
			})
			return
		}
		if req.NotificationMethod != nil && !alerts.ValidNotificationMethod(*req.NotificationMethod) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid notification method. Must be one of: " + strings.Join(alerts.NotificationMethods, ", "),
			})
			return
		}

		upd := store.AlertUpdate{
			AlertName:          req.AlertName,
			ThresholdValue:     req.ThresholdValue,
			Condition:          req.Condition,
			NotificationMethod: req.NotificationMethod,
			IsActive:           req.IsActive,
		}
		if upd.AlertName == nil && upd.ThresholdValue == nil && upd.Condition == nil &&
			upd.NotificationMethod == nil && upd.IsActive == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
			return
		}

		if err := st.UpdateAlert(ctx, id, userID, upd); err != nil {
			span.RecordError(err)
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
				return
			}
			slog.Error("Failed to update alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
			return
		}

		alert, err := st.GetAlert(ctx, id, userID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to load alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}

// DeleteAlert removes an alert owned by the user along with its history.
func DeleteAlert(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid alert id")
		if !ok {
			return
		}

		err := st.DeleteAlert(c.Request.Context(), id, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		case err != nil:
			slog.Error("Failed to delete alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Alert deleted successfully"})
	}
}

// TestAlert evaluates one alert immediately. When the condition is met
// the full trigger path runs, notifications included, so the response
// reports whether anything was delivered.
func TestAlert(st *store.Store, ev *alerts.Evaluator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "TestAlert")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid alert id")
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int64("alert.id", id))

		if ev == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		alert, err := st.GetAlert(ctx, id, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		case err != nil:
			slog.Error("Failed to load alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alert"})
			return
		}

		owner, err := st.GetUserByID(ctx, userID)
		if err != nil {
			slog.Error("Failed to load alert owner", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Alert test failed: " + err.Error()})
			return
		}

		result, err := ev.TestAlert(ctx, alert, owner)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "alert test failed")
			if errors.Is(err, alerts.ErrWarehouseUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Alert test failed: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// AlertHistory lists trigger history for an alert owned by the user.
func AlertHistory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid alert id")
		if !ok {
			return
		}
		limit, ok := queryInt(c, "limit", 50)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		if _, err := st.GetAlert(ctx, id, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
				return
			}
			slog.Error("Failed to load alert", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert history"})
			return
		}

		history, err := st.AlertHistory(ctx, id, limit)
		if err != nil {
			slog.Error("Failed to get alert history", "alert_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert history: " + err.Error()})
			return
		}
		if history == nil {
			history = []store.AlertEvent{}
		}

		c.JSON(http.StatusOK, gin.H{
			"alert_id": id,
			"history":  history,
			"count":    len(history),
		})
	}
}

// CheckAlerts runs one evaluation cycle over every active alert and
// returns the per-alert outcomes.
func CheckAlerts(ev *alerts.Evaluator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CheckAlerts")
		defer span.End()

		if ev == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		summary, err := ev.CheckAll(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "alert check failed")
			if errors.Is(err, alerts.ErrWarehouseUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
				return
			}
			slog.Error("Alert check cycle failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Alert check failed: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

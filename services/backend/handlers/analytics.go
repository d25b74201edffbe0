// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eulerianKnight/conversational-analytics/services/backend/services"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
)

// AnalyticsQueryRequest is the natural-language query payload. UseCache
// is a pointer so an absent field defaults to true rather than false.
type AnalyticsQueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
	UseCache  *bool  `json:"use_cache"`
}

// ValidateSQLRequest carries a statement to check without executing.
type ValidateSQLRequest struct {
	SQLQuery string `json:"sql_query" binding:"required"`
}

// Query converts a natural-language question to SQL, executes it, and
// returns the result with insights, a chart recommendation, and
// follow-up suggestions.
//
// Failures map onto three status codes: 400 when SQL generation itself
// fails, 503 when no warehouse is configured, and 500 for execution
// errors. Blocked statements land in the 500 bucket with the guard's
// message so the client sees why the query was refused.
func Query(pipe *services.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "Query")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req AnalyticsQueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		useCache := true
		if req.UseCache != nil {
			useCache = *req.UseCache
		}
		span.SetAttributes(attribute.Bool("cache.requested", useCache))

		resp, err := pipe.Run(ctx, services.QueryRequest{
			UserID:    userID,
			Query:     req.Query,
			SessionID: req.SessionID,
			UseCache:  useCache,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query failed")

			var genErr *services.SQLGenerationError
			switch {
			case errors.As(err, &genErr):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to generate SQL: " + genErr.Err.Error()})
			case errors.Is(err, services.ErrWarehouseUnavailable):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			default:
				slog.Error("Natural language query failed", "user_id", userID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Query execution failed: " + err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// SupplierPerformance returns supplier revenue and delivery metrics for
// a trailing window, with generated insights.
func SupplierPerformance(pipe *services.Pipeline, wh *warehouse.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "SupplierPerformance")
		defer span.End()

		if wh == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		days, ok := queryInt(c, "days", 30)
		if !ok {
			return
		}

		result, err := wh.SupplierPerformance(ctx, days)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to get supplier performance", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get supplier performance: " + err.Error()})
			return
		}

		question := fmt.Sprintf("Supplier performance analysis for the last %d days", days)
		c.JSON(http.StatusOK, gin.H{
			"data":        result.Data,
			"metadata":    result.Metadata,
			"insights":    pipe.Insights(ctx, question, result),
			"period_days": days,
			"timestamp":   time.Now().UTC(),
		})
	}
}

// Sales returns monthly sales history for forecasting, with generated
// insights.
func Sales(pipe *services.Pipeline, wh *warehouse.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "Sales")
		defer span.End()

		if wh == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		months, ok := queryInt(c, "months", 12)
		if !ok {
			return
		}

		result, err := wh.MonthlySales(ctx, months)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to get sales data", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get sales data: " + err.Error()})
			return
		}

		question := fmt.Sprintf("Historical sales data for the last %d months for forecasting", months)
		c.JSON(http.StatusOK, gin.H{
			"data":          result.Data,
			"metadata":      result.Metadata,
			"insights":      pipe.Insights(ctx, question, result),
			"period_months": months,
			"timestamp":     time.Now().UTC(),
		})
	}
}

// Schema returns the prompt-ready schema description alongside the live
// table inventory.
func Schema(wh *warehouse.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if wh == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		tables, err := wh.Tables(c.Request.Context())
		if err != nil {
			slog.Error("Failed to get schema", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get schema: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"schema_context": warehouse.SchemaContext(),
			"tables":         tables.Data,
			"timestamp":      time.Now().UTC(),
		})
	}
}

// TableDetails returns the column layout and a five-row sample for one
// table.
func TableDetails(wh *warehouse.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "TableDetails")
		defer span.End()

		name := c.Param("table")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Table name is required"})
			return
		}

		if wh == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		columns, err := wh.TableColumns(ctx, name)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to get table details", "table", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get table details: " + err.Error()})
			return
		}

		sample, err := wh.SampleData(ctx, name, 5)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to get table details", "table", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get table details: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"table_name":  name,
			"columns":     columns.Data,
			"sample_data": sample.Data,
			"timestamp":   time.Now().UTC(),
		})
	}
}

// QueryHistory lists the authenticated user's past exchanges, optionally
// scoped to one session.
func QueryHistory(pipe *services.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		limit, ok := queryInt(c, "limit", 20)
		if !ok {
			return
		}
		sessionID := c.Query("session_id")

		history, err := pipe.Memory().History(c.Request.Context(), userID, sessionID, limit)
		if err != nil {
			slog.Error("Failed to get query history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get query history: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"history":   history,
			"count":     len(history),
			"timestamp": time.Now().UTC(),
		})
	}
}

// ValidateSQL checks a statement against the read-only guard without
// executing it. Valid statements also get a performance analysis; when
// a warehouse is configured that includes the EXPLAIN plan, otherwise
// the analysis is derived from the query text alone.
func ValidateSQL(wh *warehouse.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ValidateSQL")
		defer span.End()

		var req ValidateSQLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		valid, message := warehouse.ValidateSQL(req.SQLQuery)
		span.SetAttributes(attribute.Bool("sql.valid", valid))

		var analysis *warehouse.PerformanceAnalysis
		if valid {
			if wh != nil {
				var err error
				analysis, err = wh.AnalyzePerformance(ctx, req.SQLQuery)
				if err != nil {
					span.RecordError(err)
					slog.Error("Failed to validate query", "error", err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate query: " + err.Error()})
					return
				}
			} else {
				inspected := warehouse.InspectQuery(req.SQLQuery)
				analysis = &inspected
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"is_valid":             valid,
			"message":              message,
			"performance_analysis": analysis,
			"timestamp":            time.Now().UTC(),
		})
	}
}

// Dashboard returns the headline metrics for the landing page. Metric
// failures are reported inline per metric, so the endpoint itself only
// fails when no warehouse is configured.
func Dashboard(wh *warehouse.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if wh == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"metrics":   wh.DashboardMetrics(c.Request.Context()),
			"timestamp": time.Now().UTC(),
		})
	}
}

// queryInt parses an integer query parameter with a default. A value
// that does not parse or is not positive aborts the request with 400.
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.DefaultQuery(name, strconv.Itoa(fallback))
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return v, true
}

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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eulerianKnight/conversational-analytics/services/backend/cache"
	"github.com/eulerianKnight/conversational-analytics/services/backend/services"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
)

// SavedQueryRequest carries the editable fields of a saved query. The
// same shape serves create and update; updates replace every field.
type SavedQueryRequest struct {
	Name        string   `json:"name" binding:"required"`
	SQLQuery    string   `json:"sql_query" binding:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// QueryTemplate is a ready-made analytics query surfaced to clients as
// a starting point.
type QueryTemplate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQLQuery    string   `json:"sql_query"`
	Tags        []string `json:"tags"`
}

var queryTemplates = []QueryTemplate{
	{
		Name:        "Top 10 Suppliers by Revenue",
		Description: "Find the highest revenue generating suppliers",
		SQLQuery: `
			SELECT s.NAME as supplier_name,
			       SUM(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as total_revenue,
			       COUNT(DISTINCT l.ORDERKEY) as total_orders,
			       n.NAME as nation
			FROM SUPPLIER s
			JOIN LINEITEM l ON s.SUPPKEY = l.SUPPKEY
			JOIN NATION n ON s.NATIONKEY = n.NATIONKEY
			WHERE l.SHIPDATE >= DATEADD(month, -3, CURRENT_DATE)
			GROUP BY s.SUPPKEY, s.NAME, n.NAME
			ORDER BY total_revenue DESC
			LIMIT 10`,
		Tags: []string{"suppliers", "revenue", "performance"},
	},
	{
		Name:        "Monthly Sales Trend",
		Description: "Analyze monthly sales trends over time",
		SQLQuery: `
			SELECT DATE_TRUNC('month', l.SHIPDATE) as month,
			       SUM(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as revenue,
			       SUM(l.QUANTITY) as quantity_sold,
			       COUNT(DISTINCT l.ORDERKEY) as orders_count
			FROM LINEITEM l
			WHERE l.SHIPDATE >= DATEADD(year, -1, CURRENT_DATE)
			GROUP BY DATE_TRUNC('month', l.SHIPDATE)
			ORDER BY month`,
		Tags: []string{"sales", "trends", "monthly"},
	},
	{
		Name:        "Customer Analysis by Region",
		Description: "Analyze customer distribution and spending by region",
		SQLQuery: `
			SELECT r.NAME as region,
			       COUNT(DISTINCT c.CUSTKEY) as customer_count,
			       AVG(c.ACCTBAL) as avg_account_balance,
			       COUNT(DISTINCT o.ORDERKEY) as total_orders,
			       SUM(o.TOTALPRICE) as total_revenue
			FROM REGION r
			JOIN NATION n ON r.REGIONKEY = n.REGIONKEY
			JOIN CUSTOMER c ON n.NATIONKEY = c.NATIONKEY
			LEFT JOIN ORDERS o ON c.CUSTKEY = o.CUSTKEY
			GROUP BY r.REGIONKEY, r.NAME
			ORDER BY total_revenue DESC`,
		Tags: []string{"customers", "regions", "analysis"},
	},
	{
		Name:        "Inventory Analysis",
		Description: "Analyze part inventory levels and supplier availability",
		SQLQuery: `
			SELECT p.NAME as part_name,
			       p.BRAND,
			       p.TYPE,
			       COUNT(DISTINCT ps.SUPPKEY) as supplier_count,
			       AVG(ps.AVAILQTY) as avg_available_qty,
			       AVG(ps.SUPPLYCOST) as avg_supply_cost,
			       p.RETAILPRICE
			FROM PART p
			JOIN PARTSUPP ps ON p.PARTKEY = ps.PARTKEY
			GROUP BY p.PARTKEY, p.NAME, p.BRAND, p.TYPE, p.RETAILPRICE
			HAVING supplier_count >= 2
			ORDER BY avg_available_qty DESC
			LIMIT 20`,
		Tags: []string{"inventory", "parts", "suppliers"},
	},
}

// CreateSavedQuery stores a new saved query after checking the SQL
// against the read-only guard.
func CreateSavedQuery(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreateSavedQuery")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req SavedQueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if valid, message := warehouse.ValidateSQL(req.SQLQuery); !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid SQL query: " + message})
			return
		}

		id, err := st.CreateSavedQuery(ctx, store.SavedQuery{
			UserID:      userID,
			Name:        req.Name,
			SQLQuery:    req.SQLQuery,
			Description: req.Description,
			Tags:        req.Tags,
		})
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to save query", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save query"})
			return
		}

		saved, err := st.GetSavedQuery(ctx, id, userID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to load saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save query"})
			return
		}

		c.JSON(http.StatusCreated, saved)
	}
}

// ListSavedQueries returns the user's saved queries, newest first.
func ListSavedQueries(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		queries, err := st.ListSavedQueries(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to list saved queries", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list saved queries"})
			return
		}
		if queries == nil {
			queries = []store.SavedQuery{}
		}

		c.JSON(http.StatusOK, queries)
	}
}

// GetSavedQuery returns one saved query owned by the user.
func GetSavedQuery(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid query id")
		if !ok {
			return
		}

		saved, err := st.GetSavedQuery(c.Request.Context(), id, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Saved query not found"})
			return
		case err != nil:
			slog.Error("Failed to load saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load saved query"})
			return
		}

		c.JSON(http.StatusOK, saved)
	}
}

// UpdateSavedQuery replaces the editable fields of a saved query. The
// new SQL goes through the same guard as creation.
func UpdateSavedQuery(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "UpdateSavedQuery")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid query id")
		if !ok {
			return
		}

		var req SavedQueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if _, err := st.GetSavedQuery(ctx, id, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Saved query not found"})
				return
			}
			slog.Error("Failed to load saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update saved query"})
			return
		}

		if valid, message := warehouse.ValidateSQL(req.SQLQuery); !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid SQL query: " + message})
			return
		}

		err := st.UpdateSavedQuery(ctx, store.SavedQuery{
			ID:          id,
			UserID:      userID,
			Name:        req.Name,
			SQLQuery:    req.SQLQuery,
			Description: req.Description,
			Tags:        req.Tags,
		})
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to update saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update saved query"})
			return
		}

		saved, err := st.GetSavedQuery(ctx, id, userID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to load saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update saved query"})
			return
		}

		c.JSON(http.StatusOK, saved)
	}
}

// DeleteSavedQuery removes a saved query owned by the user.
func DeleteSavedQuery(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid query id")
		if !ok {
			return
		}

		err := st.DeleteSavedQuery(c.Request.Context(), id, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Saved query not found"})
			return
		case err != nil:
			slog.Error("Failed to delete saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete saved query"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Saved query deleted successfully"})
	}
}

// ExecuteSavedQuery runs a saved query through the cache and warehouse
// and bumps its execution counter. The use_cache query parameter
// defaults to true.
func ExecuteSavedQuery(st *store.Store, pipe *services.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ExecuteSavedQuery")
		defer span.End()

		userID, ok := requireUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "invalid query id")
		if !ok {
			return
		}

		useCache, err := strconv.ParseBool(c.DefaultQuery("use_cache", "true"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid use_cache parameter"})
			return
		}
		span.SetAttributes(
			attribute.Int64("query.id", id),
			attribute.Bool("cache.requested", useCache),
		)

		saved, err := st.GetSavedQuery(ctx, id, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Saved query not found"})
			return
		case err != nil:
			slog.Error("Failed to load saved query", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load saved query"})
			return
		}

		result, err := pipe.Execute(ctx, userID, saved.SQLQuery, store.QuerySourceSaved, useCache)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "execution failed")
			if errors.Is(err, services.ErrWarehouseUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Warehouse not configured"})
				return
			}
			slog.Error("Saved query execution failed", "query_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Query execution failed: " + err.Error()})
			return
		}

		if err := st.RecordSavedQueryExecution(ctx, id); err != nil {
			slog.Warn("Failed to record saved query execution", "query_id", id, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"query_id":       saved.ID,
			"query_name":     saved.Name,
			"sql_query":      saved.SQLQuery,
			"data":           result.Data,
			"metadata":       result.Metadata,
			"execution_time": result.ExecutionTime,
			"from_cache":     result.FromCache,
			"timestamp":      time.Now().UTC(),
		})
	}
}

// QueryTemplates returns the built-in analytics templates.
func QueryTemplates() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"templates": queryTemplates,
			"count":     len(queryTemplates),
			"timestamp": time.Now().UTC(),
		})
	}
}

// CacheStats reports query cache occupancy and hit activity. Without a
// cache the stats come back zeroed rather than failing.
func CacheStats(qc *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats cache.Stats
		if qc != nil {
			var err error
			stats, err = qc.Stats(c.Request.Context())
			if err != nil {
				slog.Error("Failed to get cache stats", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get cache stats: " + err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"cache_stats": stats,
			"timestamp":   time.Now().UTC(),
		})
	}
}

// ClearCache drops every cached query result. Routes mount this behind
// the admin authorization middleware.
func ClearCache(qc *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed := 0
		if qc != nil {
			var err error
			removed, err = qc.Clear(c.Request.Context())
			if err != nil {
				slog.Error("Failed to clear cache", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache: " + err.Error()})
				return
			}
		}

		slog.Info("Query cache cleared", "entries_removed", removed)
		c.JSON(http.StatusOK, gin.H{
			"message":         "Query cache cleared successfully",
			"entries_removed": removed,
			"timestamp":       time.Now().UTC(),
		})
	}
}

// pathID parses the :id path parameter, aborting with 400 and the given
// message when it is not a positive integer.
func pathID(c *gin.Context, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
		return 0, false
	}
	return id, true
}

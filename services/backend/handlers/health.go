// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
)

const healthCheckTimeout = 5 * time.Second

// Root is the unauthenticated banner endpoint.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":   "Conversational Analytics API",
			"status":    "active",
			"timestamp": time.Now().UTC(),
		})
	}
}

// Health probes the backend's dependencies concurrently and reports
// per-service status.
//
// The endpoint always answers 200 so container health checks and the
// smoke command can read the body; a failing dependency flips the
// top-level status to "degraded" instead of failing the request. An
// unconfigured warehouse reports "not_configured" and stays healthy,
// since lightweight mode is a supported deployment. The LLM backend is
// reported by name without probing; completions are billable, so the
// health endpoint never spends one.
func Health(st *store.Store, wh *warehouse.Client, llmBackend string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		dbStatus := "active"
		whStatus := "not_configured"

		var g errgroup.Group
		g.Go(func() error {
			if err := st.Ping(ctx); err != nil {
				dbStatus = "error: " + err.Error()
			}
			return nil
		})
		if wh != nil {
			whStatus = "active"
			g.Go(func() error {
				if err := wh.TestConnection(ctx); err != nil {
					whStatus = "error: " + err.Error()
				}
				return nil
			})
		}
		g.Wait()

		llmStatus := "not_configured"
		if llmBackend != "" {
			llmStatus = llmBackend
		}

		overall := "healthy"
		if strings.HasPrefix(dbStatus, "error") || strings.HasPrefix(whStatus, "error") {
			overall = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status": overall,
			"services": gin.H{
				"database":  dbStatus,
				"snowflake": whStatus,
				"llm":       llmStatus,
				"api":       "active",
			},
			"timestamp": time.Now().UTC(),
		})
	}
}

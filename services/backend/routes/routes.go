// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the HTTP surface of the analytics backend.
package routes

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
	"github.com/eulerianKnight/conversational-analytics/services/backend/alerts"
	"github.com/eulerianKnight/conversational-analytics/services/backend/auth"
	"github.com/eulerianKnight/conversational-analytics/services/backend/cache"
	"github.com/eulerianKnight/conversational-analytics/services/backend/handlers"
	"github.com/eulerianKnight/conversational-analytics/services/backend/middleware"
	"github.com/eulerianKnight/conversational-analytics/services/backend/observability"
	"github.com/eulerianKnight/conversational-analytics/services/backend/services"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
)

// Deps carries everything route registration needs. Warehouse,
// Pipeline, and Evaluator may be nil in lightweight mode; the handlers
// answer 503 for the affected endpoints.
type Deps struct {
	Store      *store.Store
	Warehouse  *warehouse.Client
	Cache      *cache.Store
	Pipeline   *services.Pipeline
	Auth       *auth.Service
	Evaluator  *alerts.Evaluator
	Hub        *alerts.Hub
	Metrics    *observability.QueryMetrics
	Options    extensions.ServiceOptions
	LLMBackend string
	CORSOrigin string
	Logger     *slog.Logger
}

// loginRateLimit bounds login attempts per username+IP: one attempt
// every two seconds sustained, bursts of five (the original's
// brute-force posture expressed as a token bucket).
const (
	loginRateEvery = 2 * time.Second
	loginRateBurst = 5
)

// SetupRoutes wires all endpoints onto the router.
//
// /health, /metrics, and the frontend banner stay unauthenticated so
// container health checks and scrapers need no credentials; register
// and login are open by definition. Everything else under /v1 runs
// behind the bearer-token middleware, with the two admin endpoints
// additionally gated through the authorizer.
func SetupRoutes(router *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	router.Use(middleware.RequestLogger(d.Logger))
	if d.Metrics != nil {
		router.Use(middleware.RequestMetrics(d.Metrics))
	}
	if d.CORSOrigin != "" {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     []string{d.CORSOrigin},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/", handlers.Root())
	router.GET("/health", handlers.Health(d.Store, d.Warehouse, d.LLMBackend))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewKeyedLimiter(loginRateEvery, loginRateBurst)

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handlers.Register(d.Auth))
			authGroup.POST("/login", middleware.LoginRateLimit(limiter), handlers.Login(d.Auth))
		}

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(d.Options.AuthProvider))
		{
			authed.GET("/auth/me", handlers.Me(d.Auth))
			authed.POST("/auth/logout", handlers.Logout(d.Auth))
			authed.GET("/auth/users",
				middleware.Authorize(d.Options.AuthzProvider, "list", "users"),
				handlers.ListUsers(d.Store))
			authed.GET("/auth/preferences", handlers.GetPreferences(d.Store))
			authed.PUT("/auth/preferences", handlers.UpdatePreferences(d.Store))

			analytics := authed.Group("/analytics")
			{
				analytics.POST("/query", handlers.Query(d.Pipeline))
				analytics.GET("/supplier-performance", handlers.SupplierPerformance(d.Pipeline, d.Warehouse))
				analytics.GET("/sales", handlers.Sales(d.Pipeline, d.Warehouse))
				analytics.GET("/schema", handlers.Schema(d.Warehouse))
				analytics.GET("/schema/:table", handlers.TableDetails(d.Warehouse))
				analytics.GET("/history", handlers.QueryHistory(d.Pipeline))
				analytics.POST("/validate-sql", handlers.ValidateSQL(d.Warehouse))
				analytics.GET("/dashboard", handlers.Dashboard(d.Warehouse))
			}

			queries := authed.Group("/queries")
			{
				queries.POST("", handlers.CreateSavedQuery(d.Store))
				queries.GET("", handlers.ListSavedQueries(d.Store))
				queries.GET("/templates", handlers.QueryTemplates())
				queries.GET("/cache/stats", handlers.CacheStats(d.Cache))
				queries.POST("/cache/clear",
					middleware.Authorize(d.Options.AuthzProvider, "clear", "cache"),
					handlers.ClearCache(d.Cache))
				queries.GET("/:id", handlers.GetSavedQuery(d.Store))
				queries.PUT("/:id", handlers.UpdateSavedQuery(d.Store))
				queries.DELETE("/:id", handlers.DeleteSavedQuery(d.Store))
				queries.POST("/:id/execute", handlers.ExecuteSavedQuery(d.Store, d.Pipeline))
			}

			alertsGroup := authed.Group("/alerts")
			{
				alertsGroup.POST("", handlers.CreateAlert(d.Store))
				alertsGroup.GET("", handlers.ListAlerts(d.Store))
				alertsGroup.POST("/check", handlers.CheckAlerts(d.Evaluator))
				alertsGroup.GET("/:id", handlers.GetAlert(d.Store))
				alertsGroup.PUT("/:id", handlers.UpdateAlert(d.Store))
				alertsGroup.DELETE("/:id", handlers.DeleteAlert(d.Store))
				alertsGroup.POST("/:id/test", handlers.TestAlert(d.Store, d.Evaluator))
				alertsGroup.GET("/:id/history", handlers.AlertHistory(d.Store))
			}
		}
	}

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(d.Options.AuthProvider))
	{
		ws.GET("/alerts", d.Hub.Handle)
	}
}

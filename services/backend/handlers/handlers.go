// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the analytics backend.
//
// Each handler is a constructor that takes its dependencies and returns a
// gin.HandlerFunc, so routes.SetupRoutes can wire everything in one place
// and tests can stand up handlers with fakes. Handlers translate service
// errors into status codes and leave business logic to the services they
// wrap.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/eulerianKnight/conversational-analytics/services/backend/middleware"
)

var tracer = otel.Tracer("convana.backend.handlers")

// requireUser resolves the authenticated user's numeric ID from the
// context populated by middleware.AuthMiddleware. When the identity is
// missing or malformed the request is aborted with 401 and the caller
// should return immediately.
func requireUser(c *gin.Context) (int64, bool) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication credentials"})
		return 0, false
	}
	id, err := strconv.ParseInt(info.UserID, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication credentials"})
		return 0, false
	}
	return id, true
}

// bearerToken extracts the raw bearer token from the Authorization
// header. Logout needs the token itself to revoke the session, not just
// the identity the middleware derived from it.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

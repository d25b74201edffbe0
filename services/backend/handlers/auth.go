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

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.opentelemetry.io/otel/codes"

	"github.com/eulerianKnight/conversational-analytics/services/backend/auth"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// RegisterUserRequest is the payload for account creation. Field rules
// mirror the account constraints enforced by the auth service.
type RegisterUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
}

// LoginRequest carries the credential pair for token issuance.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the login response body.
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        *store.User `json:"user"`
}

// UpdatePreferencesRequest carries per-user settings to upsert. Keys not
// present are left untouched.
type UpdatePreferencesRequest struct {
	Preferences map[string]string `json:"preferences" binding:"required"`
}

// Register creates a new account. Duplicate usernames and emails come
// back as 409 so clients can distinguish them from validation failures.
func Register(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "Register")
		defer span.End()

		var req RegisterUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		user, err := svc.Register(ctx, auth.RegisterRequest{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			FullName: req.FullName,
		})
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Username already registered"})
			return
		case errors.Is(err, auth.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "registration failed")
			slog.Error("Failed to register user", "username", req.Username, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// Login exchanges credentials for a bearer token.
//
// The body is read with ShouldBindBodyWith because the login rate
// limiter already consumed it to key attempts by username; binding
// again from the buffered copy keeps the two in agreement.
func Login(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "Login")
		defer span.End()

		var req LoginRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := svc.Login(ctx, req.Username, req.Password)
		switch {
		case errors.Is(err, auth.ErrBadCredentials):
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
			return
		case errors.Is(err, auth.ErrInactiveUser):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
			return
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
			slog.Error("Failed to log in user", "username", req.Username, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		c.JSON(http.StatusOK, TokenResponse{
			AccessToken: result.Token,
			TokenType:   "bearer",
			ExpiresIn:   result.ExpiresIn,
			User:        result.User,
		})
	}
}

// Me returns the authenticated user's account row.
func Me(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := svc.CurrentUser(c.Request.Context(), bearerToken(c))
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		case err != nil:
			slog.Error("Failed to load current user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// Logout closes every active session for the token's user.
func Logout(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "Logout")
		defer span.End()

		n, err := svc.Logout(ctx, bearerToken(c))
		if err != nil {
			span.RecordError(err)
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		slog.Info("User logged out", "sessions_closed", n)
		c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
	}
}

// ListUsers returns every account. Routes mount this behind the admin
// authorization middleware.
func ListUsers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := st.ListUsers(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		c.JSON(http.StatusOK, users)
	}
}

// GetPreferences returns the authenticated user's settings map.
func GetPreferences(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		prefs, err := st.Preferences(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to load preferences", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"preferences": prefs})
	}
}

// UpdatePreferences upserts the submitted settings and returns the full
// map as it stands after the write.
func UpdatePreferences(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req UpdatePreferencesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if len(req.Preferences) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No preferences to update"})
			return
		}

		for key, value := range req.Preferences {
			if err := st.SetPreference(ctx, userID, key, value); err != nil {
				slog.Error("Failed to save preference", "user_id", userID, "key", key, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
				return
			}
		}

		prefs, err := st.Preferences(ctx, userID)
		if err != nil {
			slog.Error("Failed to reload preferences", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Preferences updated", "preferences": prefs})
	}
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// RegisterRequest carries the fields for a new account.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	FullName string
}

// LoginResult is a successful authentication outcome.
type LoginResult struct {
	// Token is the signed JWT.
	Token string

	// ExpiresAt is when the token stops validating.
	ExpiresAt time.Time

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int

	// SessionID identifies the session row recorded for this login.
	SessionID string

	// User is the authenticated account as it stood at login time.
	User *store.User
}

// Register creates a new account with a bcrypt-hashed password.
// Returns ErrUsernameTaken or ErrEmailTaken on duplicates. New
// accounts get the default user role; promotion is an admin action.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	id, err := s.store.CreateUser(ctx, store.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load created user: %w", err)
	}

	s.logger.Info("user registered", "username", user.Username, "user_id", user.ID)
	return user, nil
}

// Login verifies credentials, stamps last_login, issues a token, and
// records a session row. Unknown usernames and wrong passwords both
// return ErrBadCredentials; deactivated accounts return ErrInactiveUser.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("stamp last login: %w", err)
	}

	token, expiresAt, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	if err := s.store.CreateSession(ctx, user.ID, sessionID, expiresAt); err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}

	s.logger.Info("user logged in", "username", user.Username, "user_id", user.ID)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		ExpiresIn: int(s.cfg.TokenTTL.Seconds()),
		SessionID: sessionID,
		User:      user,
	}, nil
}

// Logout deactivates every session belonging to the token's user and
// returns how many were closed. A valid token for a since-deleted user
// still logs out cleanly with zero sessions closed.
func (s *Service) Logout(ctx context.Context, token string) (int64, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return 0, err
	}

	user, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("look up user: %w", err)
	}

	n, err := s.store.DeactivateSessions(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}

	s.logger.Info("user logged out", "username", user.Username, "sessions_closed", n)
	return n, nil
}

// CurrentUser resolves a token to its full account row. Token failures
// surface as ErrTokenExpired or ErrTokenInvalid; a missing account
// surfaces as store.ErrNotFound in the chain.
func (s *Service) CurrentUser(ctx context.Context, token string) (*store.User, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", ErrTokenInvalid)
	}

	user, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return user, nil
}

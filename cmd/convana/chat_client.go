// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrAuthFailed indicates the backend rejected the login credentials.
	ErrAuthFailed = fmt.Errorf("authentication failed")

	// ErrBackendUnavailable indicates the backend could not be reached.
	ErrBackendUnavailable = fmt.Errorf("backend unavailable")
)

// =============================================================================
// Wire Types
// =============================================================================
//
// These mirror the backend's /v1/auth and /v1/analytics JSON contracts.

// ChatLoginRequest is the login payload.
type ChatLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChatTokenResponse is the login response.
type ChatTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ChatQueryRequest is the analytics query payload.
type ChatQueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatChartSpec is the backend's chart recommendation.
type ChatChartSpec struct {
	ChartType string `json:"chart_type"`
	XAxis     string `json:"x_axis,omitempty"`
	YAxis     string `json:"y_axis,omitempty"`
	Title     string `json:"title,omitempty"`
}

// ChatQueryResponse is the analytics query response. The backend does
// not echo the session ID back, so the caller tracks it client-side.
type ChatQueryResponse struct {
	QueryID             string           `json:"query_id"`
	OriginalQuery       string           `json:"original_query"`
	SQLQuery            string           `json:"sql_query"`
	Data                []map[string]any `json:"data"`
	Insights            string           `json:"insights"`
	ChartRecommendation *ChatChartSpec   `json:"chart_recommendation"`
	FollowUpSuggestions []string         `json:"follow_up_suggestions"`
	ExecutionTime       float64          `json:"execution_time"`
	FromCache           bool             `json:"from_cache"`
}

// =============================================================================
// AnalyticsClient Interface
// =============================================================================

// AnalyticsClient talks to the backend analytics API.
//
// # Description
//
// Abstracts the HTTP calls the chat runner makes so tests can supply a
// mock. Implementations hold the bearer token after Login.
//
// # Limitations
//
//   - Tokens are not refreshed; a long chat session can outlive one
//
// # Assumptions
//
//   - Base URL points to a running backend
type AnalyticsClient interface {
	// Login authenticates and stores the bearer token for later calls.
	Login(ctx context.Context, username, password string) error

	// Query sends a natural-language question and returns the analytics
	// response. An empty sessionID starts a new conversation.
	Query(ctx context.Context, question, sessionID string) (*ChatQueryResponse, error)
}

// =============================================================================
// DefaultAnalyticsClient Implementation
// =============================================================================

// DefaultAnalyticsClient is the production AnalyticsClient.
type DefaultAnalyticsClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewDefaultAnalyticsClient creates a client for the given backend URL.
// The trailing slash is stripped so path joining stays predictable.
func NewDefaultAnalyticsClient(baseURL string) *DefaultAnalyticsClient {
	return &DefaultAnalyticsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Warehouse queries plus LLM generation can take a while.
			Timeout: 120 * time.Second,
		},
	}
}

// Login authenticates against /v1/auth/login and stores the token.
func (c *DefaultAnalyticsClient) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(ChatLoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	resp, err := c.post(ctx, "/v1/auth/login", body, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: HTTP %d", resp.StatusCode)
	}

	var tokenResp ChatTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return fmt.Errorf("login response missing access token")
	}

	c.mu.Lock()
	c.token = tokenResp.AccessToken
	c.mu.Unlock()
	return nil
}

// Query sends a question to /v1/analytics/query.
func (c *DefaultAnalyticsClient) Query(ctx context.Context, question, sessionID string) (*ChatQueryResponse, error) {
	body, err := json.Marshal(ChatQueryRequest{Query: question, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query request: %w", err)
	}

	resp, err := c.post(ctx, "/v1/analytics/query", body, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to decode
	case http.StatusUnauthorized:
		return nil, ErrAuthFailed
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("the warehouse is not configured on the backend (HTTP 503)")
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("query failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var queryResp ChatQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	return &queryResp, nil
}

// post issues a JSON POST, optionally with the stored bearer token.
func (c *DefaultAnalyticsClient) post(ctx context.Context, path string, body []byte, authed bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return resp, nil
}

// =============================================================================
// MockAnalyticsClient Implementation (for testing)
// =============================================================================

// MockAnalyticsClient is a test double for AnalyticsClient.
//
// Configure by setting function fields. Calls are recorded for
// verification. Unset functions return permissive defaults.
type MockAnalyticsClient struct {
	LoginFunc func(ctx context.Context, username, password string) error
	QueryFunc func(ctx context.Context, question, sessionID string) (*ChatQueryResponse, error)

	LoginCalls []string // usernames, never passwords
	QueryCalls []ChatQueryRequest

	mu sync.Mutex
}

// Login records the call and delegates to LoginFunc.
func (m *MockAnalyticsClient) Login(ctx context.Context, username, password string) error {
	m.mu.Lock()
	m.LoginCalls = append(m.LoginCalls, username)
	m.mu.Unlock()

	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	return nil
}

// Query records the call and delegates to QueryFunc.
func (m *MockAnalyticsClient) Query(ctx context.Context, question, sessionID string) (*ChatQueryResponse, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, ChatQueryRequest{Query: question, SessionID: sessionID})
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, question, sessionID)
	}
	return &ChatQueryResponse{
		QueryID:  GenerateID(),
		Insights: "mock insight",
	}, nil
}

// Compile-time interface compliance check.
var (
	_ AnalyticsClient = (*DefaultAnalyticsClient)(nil)
	_ AnalyticsClient = (*MockAnalyticsClient)(nil)
)

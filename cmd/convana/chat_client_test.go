// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAnalyticsClient_LoginStoresToken(t *testing.T) {
	var gotLogin ChatLoginRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/login":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotLogin))
			json.NewEncoder(w).Encode(ChatTokenResponse{
				AccessToken: "token-abc",
				TokenType:   "bearer",
				ExpiresIn:   1800,
			})
		case "/v1/analytics/query":
			assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(ChatQueryResponse{QueryID: "q1", Insights: "ok"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewDefaultAnalyticsClient(server.URL)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, "analyst", "pass123"))
	assert.Equal(t, "analyst", gotLogin.Username)

	resp, err := client.Query(ctx, "revenue by region", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "q1", resp.QueryID)
}

func TestDefaultAnalyticsClient_LoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewDefaultAnalyticsClient(server.URL)
	err := client.Login(context.Background(), "analyst", "wrong")

	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDefaultAnalyticsClient_QuerySendsSessionID(t *testing.T) {
	var gotQuery ChatQueryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		json.NewEncoder(w).Encode(ChatQueryResponse{QueryID: "q2"})
	}))
	defer server.Close()

	client := NewDefaultAnalyticsClient(server.URL)
	_, err := client.Query(context.Background(), "top products", "sess-9")

	require.NoError(t, err)
	assert.Equal(t, "top products", gotQuery.Query)
	assert.Equal(t, "sess-9", gotQuery.SessionID)
}

func TestDefaultAnalyticsClient_QueryWarehouseUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewDefaultAnalyticsClient(server.URL)
	_, err := client.Query(context.Background(), "anything", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse")
}

func TestDefaultAnalyticsClient_BackendUnreachable(t *testing.T) {
	// Closed server: the port refuses connections
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewDefaultAnalyticsClient(server.URL)
	err := client.Login(context.Background(), "analyst", "pass")

	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestDefaultAnalyticsClient_TrimsTrailingSlash(t *testing.T) {
	client := NewDefaultAnalyticsClient("http://localhost:8000/")
	assert.Equal(t, "http://localhost:8000", client.baseURL)
}

func TestMockAnalyticsClient_RecordsCallsWithoutPasswords(t *testing.T) {
	mock := &MockAnalyticsClient{}

	require.NoError(t, mock.Login(context.Background(), "analyst", "hunter2"))
	_, err := mock.Query(context.Background(), "q", "s")
	require.NoError(t, err)

	require.Len(t, mock.LoginCalls, 1)
	assert.Equal(t, "analyst", mock.LoginCalls[0])
	require.Len(t, mock.QueryCalls, 1)
}

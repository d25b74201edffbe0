// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
	"github.com/eulerianKnight/conversational-analytics/services/backend/auth"
	"github.com/eulerianKnight/conversational-analytics/services/backend/middleware"
	"github.com/eulerianKnight/conversational-analytics/services/backend/services"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
	"github.com/eulerianKnight/conversational-analytics/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a throwaway store.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "handlers_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// newAuthService wraps the store in an auth service with a 1h token
// window.
func newAuthService(t *testing.T, st *store.Store) *auth.Service {
	t.Helper()

	svc, err := auth.NewService(st, auth.Config{
		SecretKey: []byte("unit-test-signing-key-0123456789"),
		TokenTTL:  time.Hour,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	return svc
}

// createTestUser inserts an account directly, skipping the bcrypt round
// trip that login tests go through.
func createTestUser(t *testing.T, st *store.Store, username string) *store.User {
	t.Helper()

	ctx := context.Background()
	id, err := st.CreateUser(ctx, store.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "irrelevant",
		FullName:     "Test User",
	})
	require.NoError(t, err)

	user, err := st.GetUserByID(ctx, id)
	require.NoError(t, err)
	return user
}

// identity injects an authenticated user the way AuthMiddleware would.
func identity(user *store.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetAuthInfo(c, &extensions.AuthInfo{
			UserID:   strconv.FormatInt(user.ID, 10),
			Username: user.Username,
			Email:    user.Email,
			Roles:    []string{user.Role},
		})
	}
}

// perform runs one request through the router, encoding body as JSON
// when present.
func perform(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// performRaw runs a prebuilt request through the router.
func performRaw(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals a JSON response body into out.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// errorMessage extracts the "error" field from a JSON error body.
func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]any
	decodeBody(t, w, &body)
	msg, _ := body["error"].(string)
	return msg
}

// stubLLM answers the analyst's prompts with canned text, keyed off the
// system prompt the same way the real backends are.
type stubLLM struct {
	contract string
	err      error
}

func (s *stubLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	switch {
	case strings.Contains(req.System, "analytics expert"):
		return &llm.CompletionResult{Text: "Two regions dominate revenue."}, nil
	case strings.Contains(req.System, "follow-up"):
		return &llm.CompletionResult{Text: "How does this split by market segment?"}, nil
	case strings.Contains(req.System, "visualization"):
		return &llm.CompletionResult{Text: `{"chart_type": "bar", "x_axis": "REGION", "y_axis": "REVENUE", "title": "Revenue by Region", "reason": "Categorical comparison"}`}, nil
	default:
		return &llm.CompletionResult{Text: s.contract}, nil
	}
}

const defaultContract = `{"sql_query": "SELECT R_NAME AS REGION, SUM(O_TOTALPRICE) AS REVENUE FROM ORDERS GROUP BY R_NAME LIMIT 10", "explanation": "Totals revenue by region.", "query_type": "aggregation", "estimated_rows": 5}`

// stubWarehouse satisfies the pipeline's Warehouse interface.
type stubWarehouse struct {
	result *warehouse.Result
	err    error
}

func (f *stubWarehouse) Query(context.Context, string, ...any) (*warehouse.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func regionRows() *warehouse.Result {
	return &warehouse.Result{
		Data: []map[string]any{
			{"REGION": "EMEA", "REVENUE": 4500.5},
			{"REGION": "AMERICAS", "REVENUE": 3200.25},
		},
		Metadata: warehouse.Metadata{
			Columns:  []string{"REGION", "REVENUE"},
			RowCount: 2,
		},
		ExecutionTime: 0.042,
	}
}

// newTestPipeline builds a pipeline on the given store. A nil wh leaves
// the pipeline without a warehouse, matching lightweight mode.
func newTestPipeline(t *testing.T, st *store.Store, client llm.LLMClient, wh services.Warehouse) *services.Pipeline {
	t.Helper()

	cfg := services.Config{
		LLM:    client,
		Store:  st,
		Logger: testLogger(),
	}
	if wh != nil {
		cfg.Warehouse = wh
	}

	pipe, err := services.NewPipeline(cfg)
	require.NoError(t, err)
	return pipe
}

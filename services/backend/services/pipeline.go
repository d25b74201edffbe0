// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides business logic services for the backend.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Orchestrating calls to collaborators (LLM analyst, warehouse, cache)
//   - Applying business rules and recording outcomes
//   - Persisting conversation and query history
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: Services can call other services
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eulerianKnight/conversational-analytics/services/backend/cache"
	"github.com/eulerianKnight/conversational-analytics/services/backend/memory"
	"github.com/eulerianKnight/conversational-analytics/services/backend/observability"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
	"github.com/eulerianKnight/conversational-analytics/services/llm"
	"github.com/eulerianKnight/conversational-analytics/services/llm/analytics"
)

// pipelineTracer is the OpenTelemetry tracer for Pipeline operations.
var pipelineTracer = otel.Tracer("convana.backend.services.pipeline")

// Compile-time interface implementation check.
var _ Warehouse = (*warehouse.Client)(nil)

// summaryLimit caps the stored result summary so conversation rows stay
// small enough to feed back into prompts verbatim.
const summaryLimit = 500

// =============================================================================
// Interfaces
// =============================================================================

// Warehouse defines the contract for executing analytics statements.
//
// # Description
//
// This interface abstracts the Snowflake client so the pipeline can be
// exercised in tests without a live warehouse. Implementations are expected
// to enforce the read-only guard and row limit themselves; the pipeline
// inspects returned errors to classify blocked statements but never
// re-validates SQL.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Warehouse interface {
	// Query executes a single read-only statement and returns the decoded
	// result set.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation, timeouts, and tracing.
	//   - query: The SQL text to execute. Must be a single read-only
	//     statement; guarded implementations reject anything else.
	//   - args: Optional bind parameters.
	//
	// # Outputs
	//
	//   - *warehouse.Result: Decoded rows plus column metadata and the
	//     measured execution time.
	//   - error: Non-nil on failure. Guard rejections wrap the warehouse
	//     sentinel errors so callers can classify them with errors.Is.
	Query(ctx context.Context, query string, args ...any) (*warehouse.Result, error)
}

// =============================================================================
// Errors
// =============================================================================

// ErrWarehouseUnavailable is returned when the pipeline was built without a
// warehouse client. Handlers map it to a 503 so clients can distinguish a
// missing backend from a bad question.
var ErrWarehouseUnavailable = errors.New("warehouse not available")

// SQLGenerationError is returned when the analyst could not turn the
// question into SQL. This error should result in an HTTP 400 response: the
// failure belongs to the question, not to the backend.
type SQLGenerationError struct {
	Err error
}

// Error implements the error interface for SQLGenerationError.
func (e *SQLGenerationError) Error() string {
	return fmt.Sprintf("sql generation failed: %v", e.Err)
}

// Unwrap exposes the underlying analyst error.
func (e *SQLGenerationError) Unwrap() error { return e.Err }

// IsSQLGenerationError checks if an error is a SQLGenerationError.
// This is useful for handlers to determine the appropriate HTTP status code.
//
// Example:
//
//	resp, err := pipeline.Run(ctx, req)
//	if err != nil {
//	    if services.IsSQLGenerationError(err) {
//	        c.JSON(http.StatusBadRequest, gin.H{"detail": "Failed to generate SQL: " + err.Error()})
//	        return
//	    }
//	    c.JSON(http.StatusInternalServerError, gin.H{"detail": "Query execution failed: " + err.Error()})
//	}
func IsSQLGenerationError(err error) bool {
	var genErr *SQLGenerationError
	return errors.As(err, &genErr)
}

// =============================================================================
// Request / Response Types
// =============================================================================

// QueryRequest is one natural-language analytics question.
type QueryRequest struct {
	// UserID identifies the authenticated user asking the question.
	UserID int64

	// Query is the natural-language question.
	Query string

	// SessionID groups exchanges into one conversation. Empty means a new
	// session; the pipeline generates an ID so the exchange is still
	// retrievable.
	SessionID string

	// UseCache allows serving and storing warehouse results through the
	// query cache.
	UseCache bool
}

// QueryResponse is the full answer to a natural-language question: the
// generated SQL, the warehouse rows, and the analyst's narrative layers.
type QueryResponse struct {
	QueryID             string               `json:"query_id"`
	OriginalQuery       string               `json:"original_query"`
	SQLQuery            string               `json:"sql_query"`
	Data                []map[string]any     `json:"data"`
	Metadata            warehouse.Metadata   `json:"metadata"`
	Insights            string               `json:"insights"`
	ChartRecommendation *analytics.ChartSpec `json:"chart_recommendation"`
	FollowUpSuggestions []string             `json:"follow_up_suggestions"`
	ExecutionTime       float64              `json:"execution_time"`
	FromCache           bool                 `json:"from_cache"`
	Timestamp           time.Time            `json:"timestamp"`
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline turns natural-language questions into executed, explained
// warehouse queries. It orchestrates the flow between:
//   - LLM analyst: Generates SQL, insights, chart specs, and follow-ups
//   - Warehouse: Executes guarded read-only statements against Snowflake
//   - Cache: Serves repeated statements without touching the warehouse
//   - Store: Persists conversation exchanges and the query audit trail
//
// The pipeline is stateless; every call carries its own user and session,
// so one instance is shared by all handlers.
//
// Usage:
//
//	pipe, err := services.NewPipeline(services.Config{
//	    LLM:       llmClient,
//	    Warehouse: warehouseClient,
//	    Cache:     cacheStore,
//	    Store:     st,
//	})
//	resp, err := pipe.Run(ctx, services.QueryRequest{UserID: user.ID, Query: q, UseCache: true})
type Pipeline struct {
	analyst *analytics.Analyst
	wh      Warehouse
	cache   *cache.Store
	store   *store.Store
	memory  *memory.Manager
	metrics *observability.QueryMetrics
	logger  *slog.Logger
}

// Config wires the pipeline's collaborators.
type Config struct {
	// LLM is the completion client behind the analyst. Required.
	LLM llm.LLMClient

	// Warehouse executes statements. May be nil when no warehouse is
	// configured; Run and Execute then return ErrWarehouseUnavailable.
	Warehouse Warehouse

	// Cache is the query result cache. May be nil to disable caching.
	Cache *cache.Store

	// Store persists conversations and query history. Required.
	Store *store.Store

	// Metrics receives pipeline observations. May be nil.
	Metrics *observability.QueryMetrics

	// ContextWindow is the number of prior exchanges fed back into SQL
	// generation. Zero selects the memory manager's default.
	ContextWindow int

	// Logger receives operational logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewPipeline creates a Pipeline from cfg.
//
// The LLM client is wrapped so every completion reports its token usage
// before the analyst sees the result. Conversation memory is built on the
// provided store.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, errors.New("pipeline requires an llm client")
	}
	if cfg.Store == nil {
		return nil, errors.New("pipeline requires a store")
	}

	client := cfg.LLM
	if cfg.Metrics != nil {
		client = &meteredLLM{next: client, metrics: cfg.Metrics}
	}
	analyst, err := analytics.NewAnalyst(client)
	if err != nil {
		return nil, fmt.Errorf("build analyst: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		analyst: analyst,
		wh:      cfg.Warehouse,
		cache:   cfg.Cache,
		store:   cfg.Store,
		memory:  memory.NewManager(cfg.Store, cfg.ContextWindow),
		metrics: cfg.Metrics,
		logger:  logger.With("component", "pipeline"),
	}, nil
}

// Memory exposes the pipeline's conversation manager for history listings.
func (p *Pipeline) Memory() *memory.Manager {
	return p.memory
}

// =============================================================================
// Core Processing Methods
// =============================================================================

// Run handles a natural-language analytics question end-to-end.
//
// The processing flow is:
//  1. Generate or reuse the session ID
//  2. Load recent conversation context for the session
//  3. Generate SQL from the question via the analyst
//  4. Execute the SQL through cache and warehouse
//  5. Generate insights, follow-up suggestions, and a chart recommendation
//  6. Persist the exchange and return the response
//
// Conversation context is best-effort: a failed lookup logs a warning and
// SQL generation proceeds without history. Failed runs are persisted too,
// as exchanges with query type "error", so the conversation records what
// went wrong.
//
// Returns:
//   - *QueryResponse: The generated SQL, result rows, and narrative layers.
//   - error: Non-nil if processing failed. Errors are categorized as:
//   - *SQLGenerationError: The analyst could not produce SQL (HTTP 400)
//   - ErrWarehouseUnavailable: No warehouse is configured (HTTP 503)
//   - anything else: Execution or persistence failure (HTTP 500)
//
// ExecutionTime on the response covers the whole run including LLM calls,
// not just the warehouse statement; Metadata carries the statement-level
// timing. The method is safe for concurrent use.
func (p *Pipeline) Run(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	start := time.Now()

	// Step 1: Generate or reuse the session ID.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("cache.requested", req.UseCache),
	)

	// Step 2: Load recent conversation context.
	convContext, err := p.memory.RecentContext(ctx, req.UserID, sessionID)
	if err != nil {
		p.logger.Warn("conversation context unavailable",
			"session_id", sessionID, "error", err)
		convContext = ""
	}

	// Step 3: Generate SQL from the question.
	contract, err := p.analyst.TextToSQL(ctx, req.Query, warehouse.SchemaContext(), convContext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sql generation failed")
		p.rememberFailure(ctx, req, sessionID, err)
		p.metrics.ObserveQuery(observability.SourceChat, time.Since(start).Seconds(), false)
		return nil, &SQLGenerationError{Err: err}
	}
	span.SetAttributes(attribute.String("query.type", contract.QueryType))

	// Step 4: Execute through cache and warehouse.
	result, err := p.Execute(ctx, req.UserID, contract.SQLQuery, store.QuerySourceChat, req.UseCache)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		p.rememberFailure(ctx, req, sessionID, err)
		p.metrics.ObserveQuery(observability.SourceChat, time.Since(start).Seconds(), false)
		return nil, err
	}

	// Step 5: Narrative layers. None of these can fail the run; the
	// analyst degrades to canned fallbacks on its own.
	summary := analytics.ResultSummary{
		Columns:       result.Metadata.Columns,
		Rows:          result.Data,
		ExecutionTime: result.ExecutionTime,
	}
	insights := p.analyst.GenerateInsights(ctx, req.Query, summary)
	followUps := p.analyst.SuggestFollowUps(ctx, req.Query, summary)
	chart := p.analyst.RecommendChart(ctx, req.Query, summary)

	elapsed := time.Since(start).Seconds()

	// Step 6: Persist the exchange and respond.
	queryType := contract.QueryType
	if queryType == "" {
		queryType = "general"
	}
	ex := store.Exchange{
		UserID:        req.UserID,
		SessionID:     sessionID,
		QueryText:     req.Query,
		SQLQuery:      contract.SQLQuery,
		ResultSummary: truncateRunes(insights, summaryLimit),
		QueryType:     queryType,
		ExecutionTime: elapsed,
		RowCount:      len(result.Data),
	}
	if err := p.memory.Remember(ctx, ex); err != nil {
		p.logger.Warn("exchange not recorded", "session_id", sessionID, "error", err)
	}

	p.metrics.ObserveQuery(observability.SourceChat, elapsed, true)
	span.SetAttributes(
		attribute.Int("result.rows", result.Metadata.RowCount),
		attribute.Bool("result.from_cache", result.FromCache),
	)

	return &QueryResponse{
		QueryID:             uuid.NewString(),
		OriginalQuery:       req.Query,
		SQLQuery:            contract.SQLQuery,
		Data:                result.Data,
		Metadata:            result.Metadata,
		Insights:            insights,
		ChartRecommendation: chart,
		FollowUpSuggestions: followUps,
		ExecutionTime:       elapsed,
		FromCache:           result.FromCache,
		Timestamp:           time.Now().UTC(),
	}, nil
}

// Execute runs one SQL statement through the cache and warehouse and
// records the attempt in query history.
//
// Cache lookups happen before the warehouse when useCache is true; hits
// come back with FromCache set and a zero execution time. Fresh results
// are cached only when they contain rows, so transient empty answers do
// not shadow later data. Every attempt lands in query history under the
// given source with status "success", "blocked", or "error".
//
// Saved-query and API handlers call this directly with their own source;
// Run uses it with source "chat".
func (p *Pipeline) Execute(ctx context.Context, userID int64, sql, source string, useCache bool) (*warehouse.Result, error) {
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("query.source", source))

	if p.wh == nil {
		span.SetStatus(codes.Error, "warehouse not available")
		return nil, ErrWarehouseUnavailable
	}

	if useCache && p.cache != nil {
		if cached, ok := p.cachedResult(ctx, sql); ok {
			p.metrics.RecordCacheLookup(true)
			p.metrics.ObserveRows(observability.QuerySource(source), cached.Metadata.RowCount)
			p.recordQuery(ctx, store.QueryRecord{
				UserID:    userID,
				SQLQuery:  sql,
				Source:    source,
				RowCount:  cached.Metadata.RowCount,
				FromCache: true,
				Status:    store.QueryStatusSuccess,
			})
			span.SetAttributes(attribute.Bool("result.from_cache", true))
			return cached, nil
		}
		p.metrics.RecordCacheLookup(false)
	}

	result, err := p.wh.Query(ctx, sql)
	if err != nil {
		span.RecordError(err)
		status := store.QueryStatusError
		if reason, blocked := blockReason(err); blocked {
			status = store.QueryStatusBlocked
			p.metrics.RecordBlockedQuery(reason)
		}
		p.recordQuery(ctx, store.QueryRecord{
			UserID:   userID,
			SQLQuery: sql,
			Source:   source,
			Status:   status,
			Error:    err.Error(),
		})
		return nil, err
	}

	p.metrics.ObserveRows(observability.QuerySource(source), result.Metadata.RowCount)
	p.recordQuery(ctx, store.QueryRecord{
		UserID:        userID,
		SQLQuery:      sql,
		Source:        source,
		RowCount:      result.Metadata.RowCount,
		ExecutionTime: result.ExecutionTime,
		Status:        store.QueryStatusSuccess,
	})

	if useCache && p.cache != nil && len(result.Data) > 0 {
		p.cacheResult(ctx, sql, result)
	}

	return result, nil
}

// Insights asks the analyst to narrate a result set for the given question.
// Token metering applies when metrics are configured; failures degrade to
// the analyst's canned fallback text, so the return value is always usable.
func (p *Pipeline) Insights(ctx context.Context, question string, result *warehouse.Result) string {
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.Insights")
	defer span.End()

	return p.analyst.GenerateInsights(ctx, question, analytics.ResultSummary{
		Columns:       result.Metadata.Columns,
		Rows:          result.Data,
		ExecutionTime: result.ExecutionTime,
	})
}

// =============================================================================
// Internal Helpers
// =============================================================================

// cachedResult loads and decodes a cache entry. Decode failures are treated
// as misses so a corrupt entry degrades to a fresh execution.
func (p *Pipeline) cachedResult(ctx context.Context, sql string) (*warehouse.Result, bool) {
	entry, ok, err := p.cache.Get(ctx, sql)
	if err != nil {
		p.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var data []map[string]any
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		p.logger.Warn("cached rows not decodable", "error", err)
		return nil, false
	}
	var meta warehouse.Metadata
	if err := json.Unmarshal(entry.Metadata, &meta); err != nil {
		p.logger.Warn("cached metadata not decodable", "error", err)
		return nil, false
	}

	return &warehouse.Result{Data: data, Metadata: meta, FromCache: true}, true
}

// cacheResult stores a fresh result. Failures only log; the caller already
// has the data.
func (p *Pipeline) cacheResult(ctx context.Context, sql string, result *warehouse.Result) {
	data, err := json.Marshal(result.Data)
	if err != nil {
		p.logger.Warn("result rows not cacheable", "error", err)
		return
	}
	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		p.logger.Warn("result metadata not cacheable", "error", err)
		return
	}
	if err := p.cache.Put(ctx, sql, json.RawMessage(data), json.RawMessage(meta)); err != nil {
		p.logger.Warn("result not cached", "error", err)
	}
}

// recordQuery appends to query history. History is an audit trail, not a
// dependency; failures only log.
func (p *Pipeline) recordQuery(ctx context.Context, rec store.QueryRecord) {
	if err := p.store.RecordQuery(ctx, rec); err != nil {
		p.logger.Warn("query history not recorded", "error", err)
	}
}

// rememberFailure persists a failed run as an error exchange so the
// conversation shows what went wrong.
func (p *Pipeline) rememberFailure(ctx context.Context, req QueryRequest, sessionID string, cause error) {
	ex := store.Exchange{
		UserID:        req.UserID,
		SessionID:     sessionID,
		QueryText:     req.Query,
		ResultSummary: "Error: " + cause.Error(),
		QueryType:     "error",
	}
	if err := p.memory.Remember(ctx, ex); err != nil {
		p.logger.Warn("failed exchange not recorded", "session_id", sessionID, "error", err)
	}
}

// blockReason classifies guard rejections for the blocked-query counter.
func blockReason(err error) (observability.BlockReason, bool) {
	switch {
	case errors.Is(err, warehouse.ErrForbiddenKeyword):
		return observability.BlockReasonForbidden, true
	case errors.Is(err, warehouse.ErrNotReadOnly):
		return observability.BlockReasonNotReadOnly, true
	case errors.Is(err, warehouse.ErrMultiStatement):
		return observability.BlockReasonMultiStatement, true
	case errors.Is(err, warehouse.ErrEmptyQuery):
		return observability.BlockReasonEmpty, true
	}
	return "", false
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// =============================================================================
// LLM Metering
// =============================================================================

// meteredLLM wraps an LLM client so every successful completion reports its
// token usage. Backends that do not report usage record nothing.
type meteredLLM struct {
	next    llm.LLMClient
	metrics *observability.QueryMetrics
}

func (m *meteredLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	res, err := m.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.InputTokens > 0 || res.OutputTokens > 0 {
		m.metrics.RecordLLMTokens(res.InputTokens, res.OutputTokens, res.Model)
	}
	return res, nil
}

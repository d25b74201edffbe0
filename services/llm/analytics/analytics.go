// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics turns natural-language questions into warehouse SQL and
// narrates the results.
//
// The package wraps an llm.LLMClient with the four prompt flows the
// conversational pipeline needs: text-to-SQL generation against a schema
// description, insight narration over result rows, follow-up question
// suggestions, and chart recommendation. Model responses arrive as loosely
// formatted text, so every flow pairs its prompt with a tolerant parser and
// a deterministic fallback where one exists.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eulerianKnight/conversational-analytics/services/llm"
)

var tracer = otel.Tracer("convana.llm.analytics")

// Token budgets per flow. SQL generation gets the largest budget because the
// contract includes the statement plus explanation and performance notes.
const (
	sqlMaxTokens      = 1500
	insightsMaxTokens = 800
	followUpMaxTokens = 400
	chartMaxTokens    = 500
)

// Sample-row caps keep prompt size bounded on wide result sets.
const (
	insightsSampleRows = 5
	followUpSampleRows = 3
	chartSampleRows    = 5
)

// ResultSummary carries the slice of an executed query that the narration
// flows need. Rows hold decoded column values keyed by column name, in the
// shapes the warehouse decoder produces (float64, int64, string, time.Time,
// bool, nil).
type ResultSummary struct {
	// Columns lists result column names in select order.
	Columns []string

	// Rows holds the decoded result rows.
	Rows []map[string]any

	// ExecutionTime is the warehouse execution time in seconds.
	ExecutionTime float64
}

// Analyst runs the conversational-analytics prompt flows against a single
// LLM backend.
//
// # Description
//
// Analyst owns no state beyond the client and logger, so one instance can
// serve every request. TextToSQL is the only flow whose failure is fatal to
// a request; insights, follow-ups, and chart recommendations degrade to
// canned text or heuristics instead of surfacing errors.
//
// # Thread Safety
//
// Analyst is safe for concurrent use.
type Analyst struct {
	client llm.LLMClient
	logger *slog.Logger
}

// NewAnalyst creates an Analyst backed by the given client.
//
// # Inputs
//
//   - client: Any LLM backend. Must not be nil.
//
// # Outputs
//
//   - *Analyst: Configured analyst.
//   - error: Non-nil if client is nil.
func NewAnalyst(client llm.LLMClient) (*Analyst, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	return &Analyst{
		client: client,
		logger: slog.Default(),
	}, nil
}

// TextToSQL converts a natural-language question into a Snowflake SQL
// statement.
//
// # Description
//
// Sends the schema-grounded system prompt plus the user's question (with any
// prior conversation context prepended) and parses the JSON contract out of
// the response. When the model answers with bare SQL instead of the
// contract, the parser salvages the statement and fills the remaining fields
// with placeholders.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout.
//   - question: The user's natural-language question.
//   - schemaContext: Rendered schema description from the warehouse.
//   - conversationContext: Recent exchanges, empty for a fresh session.
//
// # Outputs
//
//   - *SQLContract: The generated statement with explanation and notes.
//   - error: Non-nil if the completion fails or no SQL can be extracted.
func (a *Analyst) TextToSQL(ctx context.Context, question, schemaContext, conversationContext string) (*SQLContract, error) {
	ctx, span := tracer.Start(ctx, "Analyst.TextToSQL")
	defer span.End()

	span.SetAttributes(
		attribute.String("question_preview", truncate(question, 100)),
		attribute.Bool("has_context", conversationContext != ""),
	)

	maxTokens := sqlMaxTokens
	res, err := a.client.Complete(ctx, llm.CompletionRequest{
		System: BuildSQLSystemPrompt(schemaContext),
		Messages: []llm.Message{
			{Role: "user", Content: BuildSQLUserMessage(question, conversationContext)},
		},
		Params:   llm.GenerationParams{MaxTokens: &maxTokens},
		JSONMode: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, fmt.Errorf("text-to-SQL completion failed: %w", err)
	}

	contract, err := ParseSQLResponse(res.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("query_type", contract.QueryType))
	a.logger.Debug("Generated SQL from question",
		slog.String("query_type", contract.QueryType),
		slog.String("sql_preview", truncate(contract.SQLQuery, 120)),
	)

	return contract, nil
}

// GenerateInsights narrates the business meaning of a result set.
//
// # Description
//
// Summarizes row count, columns, execution time, and a small sample for the
// model and returns its free-text analysis. This flow never fails a request:
// an empty result or a backend error yields explanatory text instead.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout.
//   - question: The original natural-language question.
//   - summary: The executed query's result summary.
//
// # Outputs
//
//   - string: Insight text suitable for direct display.
func (a *Analyst) GenerateInsights(ctx context.Context, question string, summary ResultSummary) string {
	ctx, span := tracer.Start(ctx, "Analyst.GenerateInsights")
	defer span.End()

	if len(summary.Rows) == 0 {
		return "No data found for the given query."
	}

	maxTokens := insightsMaxTokens
	res, err := a.client.Complete(ctx, llm.CompletionRequest{
		System: insightsSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: BuildInsightsUserMessage(question, summary)},
		},
		Params: llm.GenerationParams{MaxTokens: &maxTokens},
	})
	if err != nil {
		span.RecordError(err)
		a.logger.Error("Insight generation failed", "error", err)
		return fmt.Sprintf("Could not generate insights: %v", err)
	}

	return strings.TrimSpace(res.Text)
}

// SuggestFollowUps proposes follow-up questions for deeper analysis.
//
// # Description
//
// Asks the model for three to five follow-up questions, one per line, and
// splits them into a slice. Degrades to a single generic suggestion when the
// result set is empty or the backend fails.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout.
//   - question: The original natural-language question.
//   - summary: The executed query's result summary.
//
// # Outputs
//
//   - []string: Suggested questions, at least one entry.
func (a *Analyst) SuggestFollowUps(ctx context.Context, question string, summary ResultSummary) []string {
	ctx, span := tracer.Start(ctx, "Analyst.SuggestFollowUps")
	defer span.End()

	if len(summary.Rows) == 0 {
		return []string{"Modify your query to include different filters or time periods"}
	}

	maxTokens := followUpMaxTokens
	res, err := a.client.Complete(ctx, llm.CompletionRequest{
		System: followUpSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: BuildFollowUpsUserMessage(question, summary)},
		},
		Params: llm.GenerationParams{MaxTokens: &maxTokens},
	})
	if err != nil {
		span.RecordError(err)
		a.logger.Error("Follow-up suggestion failed", "error", err)
		return []string{"Explore related data by modifying your query"}
	}

	suggestions := ParseFollowUps(res.Text)
	if len(suggestions) == 0 {
		return []string{"Explore related data by modifying your query"}
	}
	return suggestions
}

// RecommendChart picks a visualization for a result set.
//
// # Description
//
// Asks the model for a chart recommendation in JSON form. If the backend
// fails or the response cannot be parsed, falls back to column-type
// heuristics so the caller always receives a usable spec.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout.
//   - question: The original natural-language question.
//   - summary: The executed query's result summary.
//
// # Outputs
//
//   - *ChartSpec: Never nil.
func (a *Analyst) RecommendChart(ctx context.Context, question string, summary ResultSummary) *ChartSpec {
	ctx, span := tracer.Start(ctx, "Analyst.RecommendChart")
	defer span.End()

	if len(summary.Rows) == 0 {
		return &ChartSpec{ChartType: ChartTable, Reason: "No data to visualize"}
	}

	maxTokens := chartMaxTokens
	res, err := a.client.Complete(ctx, llm.CompletionRequest{
		System: chartSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: BuildChartUserMessage(question, summary)},
		},
		Params:   llm.GenerationParams{MaxTokens: &maxTokens},
		JSONMode: true,
	})
	if err != nil {
		span.RecordError(err)
		a.logger.Error("Chart recommendation failed", "error", err)
		return FallbackChart(summary.Columns, summary.Rows)
	}

	spec, err := ParseChartResponse(res.Text)
	if err != nil {
		a.logger.Warn("Chart recommendation not parseable, using heuristics", "error", err)
		return FallbackChart(summary.Columns, summary.Rows)
	}

	span.SetAttributes(attribute.String("chart_type", spec.ChartType))
	return spec
}

// sampleJSON renders at most n rows as indented JSON for prompt embedding.
func sampleJSON(rows []map[string]any, n int) string {
	if len(rows) > n {
		rows = rows[:n]
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

// truncate shortens s to maxLen characters for logging and span attributes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	aggregationPattern = regexp.MustCompile(`\b(SUM|COUNT|AVG|MAX|MIN)\s*\(`)
	joinPattern        = regexp.MustCompile(`\bJOIN\b`)
	groupByPattern     = regexp.MustCompile(`\bGROUP\s+BY\b`)
	orderByPattern     = regexp.MustCompile(`\bORDER\s+BY\b`)
)

// PerformanceAnalysis summarizes structural traits of a query plus
// optimization suggestions and, when run against the warehouse, the
// EXPLAIN plan rows.
type PerformanceAnalysis struct {
	HasLimit            bool             `json:"has_limit"`
	UsesJoins           bool             `json:"uses_joins"`
	UsesAggregation     bool             `json:"uses_aggregation"`
	UsesGroupBy         bool             `json:"uses_groupby"`
	UsesOrderBy         bool             `json:"uses_orderby"`
	EstimatedComplexity string           `json:"estimated_complexity"`
	Suggestions         []string         `json:"suggestions"`
	QueryPlan           []map[string]any `json:"query_plan,omitempty"`
}

// ValidateSQL checks a statement without executing it and returns a
// user-facing verdict. Valid statements report "Valid query".
func ValidateSQL(query string) (bool, string) {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if upper == "" {
		return false, "Query is empty"
	}

	if kw, found := firstForbiddenKeyword(upper); found {
		return false, "Forbidden operation: " + kw
	}

	body := strings.TrimRight(upper, "; \t\r\n")
	if strings.Contains(body, ";") {
		return false, "Multiple SQL statements are not allowed"
	}

	if !hasAllowedPrefix(upper) {
		return false, "Query must start with SELECT, WITH, SHOW, DESCRIBE, or EXPLAIN"
	}

	if strings.Count(query, "(") != strings.Count(query, ")") {
		return false, "Unmatched parentheses"
	}
	if strings.Count(query, "'")%2 != 0 {
		return false, "Unmatched quotes"
	}

	return true, "Valid query"
}

// InspectQuery derives structural traits and suggestions from the query
// text alone. No warehouse round trip.
func InspectQuery(query string) PerformanceAnalysis {
	upper := strings.ToUpper(query)

	analysis := PerformanceAnalysis{
		HasLimit:            limitPattern.MatchString(upper),
		UsesJoins:           joinPattern.MatchString(upper),
		UsesAggregation:     aggregationPattern.MatchString(upper),
		UsesGroupBy:         groupByPattern.MatchString(upper),
		UsesOrderBy:         orderByPattern.MatchString(upper),
		EstimatedComplexity: "medium",
		Suggestions:         []string{},
	}

	if !analysis.HasLimit {
		analysis.Suggestions = append(analysis.Suggestions,
			"Consider adding LIMIT clause for large tables")
	}
	if analysis.UsesJoins && !analysis.HasLimit {
		analysis.Suggestions = append(analysis.Suggestions,
			"JOIN operations on large tables should include LIMIT")
	}
	if strings.Contains(upper, "LINEITEM") && !analysis.HasLimit {
		analysis.Suggestions = append(analysis.Suggestions,
			"LINEITEM table has 6M+ rows, always use LIMIT")
	}

	return analysis
}

// AnalyzePerformance inspects the query and attaches its EXPLAIN plan.
func (c *Client) AnalyzePerformance(ctx context.Context, query string) (*PerformanceAnalysis, error) {
	analysis := InspectQuery(query)

	plan, err := c.Query(ctx, "EXPLAIN "+query)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	analysis.QueryPlan = plan.Data

	return &analysis, nil
}

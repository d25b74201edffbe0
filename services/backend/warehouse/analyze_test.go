// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// ValidateSQL Tests
// -----------------------------------------------------------------------------

func TestValidateSQL(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		valid   bool
		message string
	}{
		{
			name:    "valid select",
			query:   "SELECT * FROM ORDERS LIMIT 10",
			valid:   true,
			message: "Valid query",
		},
		{
			name:    "valid cte",
			query:   "WITH r AS (SELECT 1) SELECT * FROM r",
			valid:   true,
			message: "Valid query",
		},
		{
			name:    "valid explain",
			query:   "EXPLAIN SELECT * FROM ORDERS",
			valid:   true,
			message: "Valid query",
		},
		{
			name:    "forbidden drop",
			query:   "DROP TABLE ORDERS",
			valid:   false,
			message: "Forbidden operation: DROP",
		},
		{
			name:    "forbidden lowercase delete",
			query:   "delete from orders",
			valid:   false,
			message: "Forbidden operation: DELETE",
		},
		{
			name:    "keyword inside identifier is fine",
			query:   "SELECT CREATED_AT FROM ORDERS",
			valid:   true,
			message: "Valid query",
		},
		{
			name:    "multiple statements",
			query:   "SELECT 1; SELECT 2",
			valid:   false,
			message: "Multiple SQL statements are not allowed",
		},
		{
			name:    "wrong leading keyword",
			query:   "USE DATABASE ANALYTICS",
			valid:   false,
			message: "Query must start with SELECT, WITH, SHOW, DESCRIBE, or EXPLAIN",
		},
		{
			name:    "unmatched parentheses",
			query:   "SELECT COUNT( FROM ORDERS",
			valid:   false,
			message: "Unmatched parentheses",
		},
		{
			name:    "unmatched quotes",
			query:   "SELECT * FROM ORDERS WHERE STATUS = 'O",
			valid:   false,
			message: "Unmatched quotes",
		},
		{
			name:    "empty",
			query:   "   ",
			valid:   false,
			message: "Query is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, message := ValidateSQL(tt.query)
			assert.Equal(t, tt.valid, valid)
			assert.Equal(t, tt.message, message)
		})
	}
}

// -----------------------------------------------------------------------------
// InspectQuery Tests
// -----------------------------------------------------------------------------

func TestInspectQuery_Traits(t *testing.T) {
	query := `SELECT n.NAME, SUM(l.EXTENDEDPRICE) AS REVENUE
		FROM LINEITEM l
		JOIN ORDERS o ON l.ORDERKEY = o.ORDERKEY
		JOIN CUSTOMER c ON o.CUSTKEY = c.CUSTKEY
		JOIN NATION n ON c.NATIONKEY = n.NATIONKEY
		GROUP BY n.NAME
		ORDER BY REVENUE DESC
		LIMIT 20`

	analysis := InspectQuery(query)
	assert.True(t, analysis.HasLimit)
	assert.True(t, analysis.UsesJoins)
	assert.True(t, analysis.UsesAggregation)
	assert.True(t, analysis.UsesGroupBy)
	assert.True(t, analysis.UsesOrderBy)
	assert.Equal(t, "medium", analysis.EstimatedComplexity)
	assert.Empty(t, analysis.Suggestions)
}

func TestInspectQuery_PlainSelect(t *testing.T) {
	analysis := InspectQuery("SELECT * FROM ORDERS LIMIT 10")
	assert.True(t, analysis.HasLimit)
	assert.False(t, analysis.UsesJoins)
	assert.False(t, analysis.UsesAggregation)
	assert.False(t, analysis.UsesGroupBy)
	assert.False(t, analysis.UsesOrderBy)
	assert.Empty(t, analysis.Suggestions)
	assert.NotNil(t, analysis.Suggestions)
}

func TestInspectQuery_AggregationNeedsCall(t *testing.T) {
	// Column names that merely contain an aggregate word are not aggregation.
	analysis := InspectQuery("SELECT MAX_RETRIES, ACCOUNT FROM SETTINGS LIMIT 5")
	assert.False(t, analysis.UsesAggregation)

	analysis = InspectQuery("SELECT COUNT(*) FROM ORDERS LIMIT 1")
	assert.True(t, analysis.UsesAggregation)

	analysis = InspectQuery("SELECT AVG (TOTALPRICE) FROM ORDERS LIMIT 1")
	assert.True(t, analysis.UsesAggregation)
}

func TestInspectQuery_Suggestions(t *testing.T) {
	t.Run("missing limit", func(t *testing.T) {
		analysis := InspectQuery("SELECT * FROM ORDERS")
		assert.Contains(t, analysis.Suggestions, "Consider adding LIMIT clause for large tables")
	})

	t.Run("join without limit", func(t *testing.T) {
		analysis := InspectQuery("SELECT * FROM ORDERS o JOIN CUSTOMER c ON o.CUSTKEY = c.CUSTKEY")
		assert.Contains(t, analysis.Suggestions, "Consider adding LIMIT clause for large tables")
		assert.Contains(t, analysis.Suggestions, "JOIN operations on large tables should include LIMIT")
	})

	t.Run("lineitem without limit", func(t *testing.T) {
		analysis := InspectQuery("SELECT * FROM LINEITEM")
		assert.Contains(t, analysis.Suggestions, "LINEITEM table has 6M+ rows, always use LIMIT")
	})

	t.Run("lineitem with limit", func(t *testing.T) {
		analysis := InspectQuery("SELECT * FROM LINEITEM LIMIT 100")
		assert.Empty(t, analysis.Suggestions)
	})
}

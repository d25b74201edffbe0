// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SQLContract is the JSON object the text-to-SQL prompt instructs the model
// to return.
type SQLContract struct {
	// SQLQuery is the generated Snowflake statement.
	SQLQuery string `json:"sql_query"`

	// Explanation describes what the query does.
	Explanation string `json:"explanation"`

	// QueryType labels the analysis, e.g. "supplier_performance".
	QueryType string `json:"query_type"`

	// EstimatedRows is the model's row estimate. Display text, not a count:
	// values like "unknown" are valid.
	EstimatedRows FlexString `json:"estimated_rows"`

	// PerformanceNotes carries optimization remarks.
	PerformanceNotes string `json:"performance_notes"`
}

// FlexString accepts a JSON string or number and stores its string form.
// Models answer numeric-looking fields inconsistently, quoting them in some
// responses and not in others.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return fmt.Errorf("empty JSON value")
	}
	if s == "null" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", truncate(s, 20))
	}
	*f = FlexString(num.String())
	return nil
}

// sqlStatementPattern locates a bare SELECT statement in free-form model
// output for the salvage path.
var sqlStatementPattern = regexp.MustCompile(`(?is)\bSELECT\b.*`)

// ParseSQLResponse extracts a SQLContract from raw model output.
//
// Tries the JSON contract first, tolerating markdown fences and surrounding
// prose. When the model ignores the contract and answers with bare SQL, the
// statement is salvaged up to the first blank line and the remaining fields
// are filled with placeholders.
func ParseSQLResponse(raw string) (*SQLContract, error) {
	if jsonStr, err := extractJSON(raw); err == nil {
		var contract SQLContract
		if err := json.Unmarshal([]byte(jsonStr), &contract); err == nil && strings.TrimSpace(contract.SQLQuery) != "" {
			contract.SQLQuery = strings.TrimSpace(contract.SQLQuery)
			return &contract, nil
		}
	}

	cleaned := stripFences(raw)
	if match := sqlStatementPattern.FindString(cleaned); match != "" {
		if i := strings.Index(match, "\n\n"); i != -1 {
			match = match[:i]
		}
		return &SQLContract{
			SQLQuery:         strings.TrimSpace(match),
			Explanation:      "SQL query extracted from response",
			QueryType:        "general",
			EstimatedRows:    "unknown",
			PerformanceNotes: "Manual extraction - review performance",
		}, nil
	}

	return nil, fmt.Errorf("could not extract SQL query from response: %s", truncate(raw, 100))
}

// ParseFollowUps splits follow-up suggestions into one entry per non-empty
// line.
func ParseFollowUps(raw string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// stripFences removes a wrapping markdown code fence, if present.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSON pulls the outermost JSON object out of raw model output,
// stripping code fences and ignoring prose before and after the braces.
func extractJSON(raw string) (string, error) {
	s := stripFences(raw)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", truncate(raw, 100))
	}

	return s[start : end+1], nil
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package warehouse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Guard errors. Handlers map these to 400 responses and record the
// statement in query history with status "blocked".
var (
	// ErrEmptyQuery is returned for blank statements.
	ErrEmptyQuery = errors.New("empty query")

	// ErrMultiStatement is returned when a statement contains a semicolon
	// anywhere but the tail. String literals are not excepted.
	ErrMultiStatement = errors.New("multi-statement queries are not allowed")

	// ErrNotReadOnly is returned when the leading keyword is not in the
	// allowlist.
	ErrNotReadOnly = errors.New("query must start with SELECT, WITH, SHOW, DESCRIBE, or EXPLAIN")

	// ErrForbiddenKeyword is returned when a mutating keyword appears
	// anywhere in the statement. The offending keyword is appended to the
	// error message.
	ErrForbiddenKeyword = errors.New("forbidden operation")
)

// allowedLeadingKeywords are the statement forms the warehouse will run.
var allowedLeadingKeywords = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN"}

// forbiddenKeywords are rejected wherever they appear as a whole word, so
// column names like CREATED_AT pass while `; DROP TABLE` payloads do not.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "INSERT", "UPDATE",
	"CREATE", "ALTER", "GRANT", "REVOKE", "MERGE", "CALL",
}

var (
	forbiddenPattern = regexp.MustCompile(`\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)
	limitPattern     = regexp.MustCompile(`\bLIMIT\b`)
	topPattern       = regexp.MustCompile(`\bTOP\b`)
)

// CheckReadOnly rejects statements that could mutate the warehouse.
// A single trailing semicolon is tolerated.
func CheckReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	body := strings.TrimRight(trimmed, "; \t\r\n")
	if strings.Contains(body, ";") {
		return ErrMultiStatement
	}

	upper := strings.ToUpper(body)
	if kw, found := firstForbiddenKeyword(upper); found {
		return fmt.Errorf("%w: %s", ErrForbiddenKeyword, kw)
	}
	if !hasAllowedPrefix(upper) {
		return ErrNotReadOnly
	}
	return nil
}

// EnsureLimit appends a LIMIT clause to SELECT statements that have
// neither LIMIT nor TOP. Other statement forms pass through untouched, as
// do statements that already bound their result size.
func EnsureLimit(query string, maxRows int) string {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "SELECT") {
		return query
	}
	if limitPattern.MatchString(upper) || topPattern.MatchString(upper) {
		return query
	}

	body := strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
	return fmt.Sprintf("%s LIMIT %d", body, maxRows)
}

func hasAllowedPrefix(upper string) bool {
	for _, kw := range allowedLeadingKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

func firstForbiddenKeyword(upper string) (string, bool) {
	m := forbiddenPattern.FindStringSubmatch(upper)
	if m == nil {
		return "", false
	}
	return m[1], true
}

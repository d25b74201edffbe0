// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks (SQL injection, command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid warehouse object identifiers.
// Allows: uppercase letters, digits, underscores, dollar signs.
// Must start with a letter or underscore. Max length: 255 characters
// (the Snowflake unquoted identifier limit).
var identifierPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_$]{0,254}$`)

// ValidateIdentifier validates a warehouse table or column name to prevent
// SQL injection.
//
// Valid identifiers:
//   - 1-255 characters
//   - Uppercase letters A-Z
//   - Digits 0-9 (not in first position)
//   - Underscores (_)
//   - Dollar signs ($, not in first position)
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateIdentifier(table); err != nil {
//	    return nil, fmt.Errorf("invalid table name: %w", err)
//	}
//	// Safe to interpolate into a DESCRIBE or information_schema query
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-255 uppercase alphanumeric chars, underscores, or dollar signs, starting with a letter or underscore)", name)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid names if any fail validation.
func ValidateIdentifiers(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateIdentifier(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier normalizes and validates a warehouse identifier.
// Returns the uppercase name if valid, or an error if invalid.
//
// Use this when accepting table names from API paths or user input:
//
//	table, err := validation.SanitizeIdentifier(c.Param("table"))
//	if err != nil {
//	    return err
//	}
//	// table is uppercase and validated
func SanitizeIdentifier(name string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if err := ValidateIdentifier(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

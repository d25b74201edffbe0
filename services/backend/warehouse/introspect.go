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

	"github.com/eulerianKnight/conversational-analytics/pkg/validation"
)

const defaultSampleLimit = 10

// Tables lists the tables in the configured schema with type and size
// information.
func (c *Client) Tables(ctx context.Context) (*Result, error) {
	query := `
		SELECT TABLE_NAME, TABLE_TYPE, ROW_COUNT, BYTES
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`
	return c.Query(ctx, query, c.cfg.Schema)
}

// TableColumns describes the columns of one table in ordinal order.
// The table name is sanitized before use.
func (c *Client) TableColumns(ctx context.Context, table string) (*Result, error) {
	name, err := validation.SanitizeIdentifier(table)
	if err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	query := `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`
	return c.Query(ctx, query, c.cfg.Schema, name)
}

// SampleData returns up to limit rows from a table. The table name is
// sanitized before interpolation; identifiers cannot be bound as
// placeholders.
func (c *Client) SampleData(ctx context.Context, table string, limit int) (*Result, error) {
	name, err := validation.SanitizeIdentifier(table)
	if err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}
	if limit <= 0 {
		limit = defaultSampleLimit
	}

	return c.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", name, limit))
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Query sources recorded in history rows.
const (
	QuerySourceChat     = "chat"
	QuerySourceSaved    = "saved"
	QuerySourceAPI      = "api"
	QuerySourceAlert    = "alert"
	QuerySourceValidate = "validate"
)

// Query outcomes recorded in history rows.
const (
	QueryStatusSuccess = "success"
	QueryStatusError   = "error"
	QueryStatusBlocked = "blocked"
)

// QueryRecord is one warehouse query execution attempt.
// Blocked statements are recorded too, with status "blocked".
type QueryRecord struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	SQLQuery      string    `json:"sql_query"`
	Source        string    `json:"source"`
	RowCount      int       `json:"row_count"`
	ExecutionTime float64   `json:"execution_time"`
	FromCache     bool      `json:"from_cache"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecordQuery appends a query execution record.
func (s *Store) RecordQuery(ctx context.Context, rec QueryRecord) error {
	source := rec.Source
	if source == "" {
		source = QuerySourceChat
	}
	status := rec.Status
	if status == "" {
		status = QueryStatusSuccess
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history
			(user_id, sql_query, source, row_count, execution_time,
			 from_cache, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.SQLQuery, source, rec.RowCount, rec.ExecutionTime,
		rec.FromCache, status, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

// RecentQueries returns the user's query records, newest first.
func (s *Store) RecentQueries(ctx context.Context, userID int64, limit int) ([]QueryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, sql_query, source, row_count, execution_time,
		       from_cache, status, error, created_at
		FROM query_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		var rowCount sql.NullInt64
		var execTime sql.NullFloat64
		var errText sql.NullString

		err := rows.Scan(&rec.ID, &rec.UserID, &rec.SQLQuery, &rec.Source,
			&rowCount, &execTime, &rec.FromCache, &rec.Status, &errText,
			&rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}

		rec.RowCount = int(rowCount.Int64)
		rec.ExecutionTime = execTime.Float64
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

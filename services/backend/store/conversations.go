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

// Exchange is one question/answer turn stored in conversation memory.
type Exchange struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	SessionID     string    `json:"session_id"`
	QueryText     string    `json:"query_text"`
	SQLQuery      string    `json:"sql_query,omitempty"`
	ResultSummary string    `json:"result_summary,omitempty"`
	QueryType     string    `json:"query_type,omitempty"`
	ExecutionTime float64   `json:"execution_time"`
	RowCount      int       `json:"row_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// SaveExchange appends a conversation turn for a user session.
func (s *Store) SaveExchange(ctx context.Context, ex Exchange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_memory
			(user_id, session_id, query_text, sql_query, result_summary,
			 query_type, execution_time, row_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.UserID, ex.SessionID, ex.QueryText, ex.SQLQuery, ex.ResultSummary,
		ex.QueryType, ex.ExecutionTime, ex.RowCount,
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns the newest exchanges for a session, newest first.
func (s *Store) RecentExchanges(ctx context.Context, userID int64, sessionID string, limit int) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, query_text, sql_query, result_summary,
		       query_type, execution_time, row_count, created_at
		FROM conversation_memory
		WHERE user_id = ? AND session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	return collectExchanges(rows)
}

// ExchangeHistory returns exchanges for a user across sessions, newest
// first. When sessionID is non-empty, results are scoped to that session.
func (s *Store) ExchangeHistory(ctx context.Context, userID int64, sessionID string, limit int) ([]Exchange, error) {
	query := `
		SELECT id, user_id, session_id, query_text, sql_query, result_summary,
		       query_type, execution_time, row_count, created_at
		FROM conversation_memory
		WHERE user_id = ?`
	args := []any{userID}

	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exchange history: %w", err)
	}
	defer rows.Close()

	return collectExchanges(rows)
}

func collectExchanges(rows *sql.Rows) ([]Exchange, error) {
	var exchanges []Exchange
	for rows.Next() {
		var ex Exchange
		var sqlQuery, summary, queryType sql.NullString
		var execTime sql.NullFloat64
		var rowCount sql.NullInt64

		err := rows.Scan(&ex.ID, &ex.UserID, &ex.SessionID, &ex.QueryText,
			&sqlQuery, &summary, &queryType, &execTime, &rowCount, &ex.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}

		ex.SQLQuery = sqlQuery.String
		ex.ResultSummary = summary.String
		ex.QueryType = queryType.String
		ex.ExecutionTime = execTime.Float64
		ex.RowCount = int(rowCount.Int64)
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

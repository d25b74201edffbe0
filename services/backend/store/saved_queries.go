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
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SavedQuery is a reusable SQL statement owned by a user.
// Tags persist as a JSON array in a TEXT column.
type SavedQuery struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Name           string     `json:"name"`
	SQLQuery       string     `json:"sql_query"`
	Description    string     `json:"description,omitempty"`
	Tags           []string   `json:"tags"`
	CreatedAt      time.Time  `json:"created_at"`
	LastExecuted   *time.Time `json:"last_executed,omitempty"`
	ExecutionCount int        `json:"execution_count"`
}

// CreateSavedQuery inserts a saved query and returns its ID.
func (s *Store) CreateSavedQuery(ctx context.Context, q SavedQuery) (int64, error) {
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_queries (user_id, name, sql_query, description, tags)
		VALUES (?, ?, ?, ?, ?)`,
		q.UserID, q.Name, q.SQLQuery, q.Description, tags,
	)
	if err != nil {
		return 0, fmt.Errorf("insert saved query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saved query insert id: %w", err)
	}
	return id, nil
}

// GetSavedQuery returns a saved query owned by the user.
// Returns ErrNotFound when the query does not exist or belongs to
// another user.
func (s *Store) GetSavedQuery(ctx context.Context, id, userID int64) (*SavedQuery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, sql_query, description, tags,
		       created_at, last_executed, execution_count
		FROM saved_queries WHERE id = ? AND user_id = ?`,
		id, userID)

	q, err := scanSavedQuery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("saved query: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("query saved query: %w", err)
	}
	return q, nil
}

// ListSavedQueries returns the user's saved queries, newest first.
func (s *Store) ListSavedQueries(ctx context.Context, userID int64) ([]SavedQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, sql_query, description, tags,
		       created_at, last_executed, execution_count
		FROM saved_queries WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list saved queries: %w", err)
	}
	defer rows.Close()

	var queries []SavedQuery
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saved query: %w", err)
		}
		queries = append(queries, *q)
	}
	return queries, rows.Err()
}

// UpdateSavedQuery replaces the editable fields of a saved query.
// Returns ErrNotFound when the query does not exist or belongs to
// another user.
func (s *Store) UpdateSavedQuery(ctx context.Context, q SavedQuery) error {
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE saved_queries
		SET name = ?, sql_query = ?, description = ?, tags = ?
		WHERE id = ? AND user_id = ?`,
		q.Name, q.SQLQuery, q.Description, tags, q.ID, q.UserID,
	)
	if err != nil {
		return fmt.Errorf("update saved query: %w", err)
	}
	return requireRow(res, "saved query")
}

// DeleteSavedQuery removes a saved query owned by the user.
// Returns ErrNotFound when the query does not exist or belongs to
// another user.
func (s *Store) DeleteSavedQuery(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM saved_queries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete saved query: %w", err)
	}
	return requireRow(res, "saved query")
}

// RecordSavedQueryExecution stamps last_executed and bumps the counter.
func (s *Store) RecordSavedQueryExecution(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE saved_queries
		SET last_executed = CURRENT_TIMESTAMP, execution_count = execution_count + 1
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("record saved query execution: %w", err)
	}
	return nil
}

func scanSavedQuery(row rowScanner) (*SavedQuery, error) {
	var q SavedQuery
	var description, tags sql.NullString
	var lastExecuted sql.NullTime

	err := row.Scan(&q.ID, &q.UserID, &q.Name, &q.SQLQuery, &description,
		&tags, &q.CreatedAt, &lastExecuted, &q.ExecutionCount)
	if err != nil {
		return nil, err
	}

	q.Description = description.String
	if lastExecuted.Valid {
		q.LastExecuted = &lastExecuted.Time
	}

	q.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &q.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &q, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// requireRow converts a zero-row update or delete into ErrNotFound.
func requireRow(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}

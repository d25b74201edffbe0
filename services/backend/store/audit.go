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
	"strings"
	"time"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
)

const defaultAuditQueryLimit = 100

// AuditStore persists audit events in the metadata store, making the
// trail queryable alongside query history. Writes are synchronous; with
// WAL mode a single insert is cheap enough for the request path.
type AuditStore struct {
	store *Store
}

// NewAuditStore wraps a Store as an audit logger.
func NewAuditStore(s *Store) *AuditStore {
	return &AuditStore{store: s}
}

// Log records one audit event. Sets the timestamp when zero and rejects
// events missing the type or user.
func (a *AuditStore) Log(ctx context.Context, event extensions.AuditEvent) error {
	if event.EventType == "" {
		return errors.New("audit event requires an event type")
	}
	if event.UserID == "" {
		return errors.New("audit event requires a user id")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var metadata any
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(event_type, occurred_at, user_id, action, resource_type,
			 resource_id, outcome, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventType, event.Timestamp.UTC(), event.UserID, event.Action,
		event.ResourceType, event.ResourceID, event.Outcome, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns audit events matching the filter, newest first.
func (a *AuditStore) Query(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	query := `
		SELECT event_type, occurred_at, user_id, action, resource_type,
		       resource_id, outcome, metadata
		FROM audit_events`

	var where []string
	var args []any

	if len(filter.EventTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.EventTypes)), ", ")
		where = append(where, "event_type IN ("+placeholders+")")
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.StartTime.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.StartTime.UTC())
	}
	if !filter.EndTime.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, filter.EndTime.UTC())
	}
	if filter.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditQueryLimit
	}
	args = append(args, limit, filter.Offset)

	rows, err := a.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []extensions.AuditEvent{}
	for rows.Next() {
		var ev extensions.AuditEvent
		var action, resourceType, resourceID, outcome, metadata sql.NullString

		err := rows.Scan(&ev.EventType, &ev.Timestamp, &ev.UserID, &action,
			&resourceType, &resourceID, &outcome, &metadata)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		ev.Action = action.String
		ev.ResourceType = resourceType.String
		ev.ResourceID = resourceID.String
		ev.Outcome = outcome.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Flush is a no-op; events are written synchronously.
func (a *AuditStore) Flush(ctx context.Context) error {
	return nil
}

var _ extensions.AuditLogger = (*AuditStore)(nil)

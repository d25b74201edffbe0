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
	"errors"
	"fmt"
)

// SetPreference stores or replaces a user preference value.
func (s *Store) SetPreference(ctx context.Context, userID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, preference_key, preference_value)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, preference_key)
		DO UPDATE SET preference_value = excluded.preference_value,
		              updated_at = CURRENT_TIMESTAMP`,
		userID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// GetPreference returns a single preference value.
// Returns ErrNotFound when the key has never been set.
func (s *Store) GetPreference(ctx context.Context, userID int64, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT preference_value FROM user_preferences
		WHERE user_id = ? AND preference_key = ?`,
		userID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("preference %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("get preference: %w", err)
	}
	return value.String, nil
}

// Preferences returns all preferences for a user as a key/value map.
func (s *Store) Preferences(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT preference_key, preference_value FROM user_preferences
		WHERE user_id = ? ORDER BY preference_key`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[key] = value.String
	}
	return prefs, rows.Err()
}

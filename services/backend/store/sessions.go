// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"time"
)

// CreateSession records a login session for a user.
// The session ID must be unique across all users.
func (s *Store) CreateSession(ctx context.Context, userID int64, sessionID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (user_id, session_id, expires_at)
		VALUES (?, ?, ?)`,
		userID, sessionID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// DeactivateSessions marks every session belonging to the user inactive.
// Used on logout. Returns the number of sessions deactivated.
func (s *Store) DeactivateSessions(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE user_id = ? AND is_active = TRUE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions count: %w", err)
	}
	return n, nil
}

// PurgeExpiredSessions deletes sessions whose expiry has passed.
// Returns the number of rows removed.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions count: %w", err)
	}
	return n, nil
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory builds conversation context for follow-up questions.
//
// The window is deliberately small. The model only needs the last few
// turns to resolve references like "those suppliers" or "same period",
// and a long context dilutes the schema information in the prompt.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// DefaultWindow is how many prior turns feed the prompt context.
const DefaultWindow = 5

// DefaultHistoryLimit bounds history listings when no limit is given.
const DefaultHistoryLimit = 10

// Manager reads and writes conversation memory for the query pipeline.
type Manager struct {
	store  *store.Store
	window int
}

// NewManager wraps a metadata store. A non-positive window falls back
// to DefaultWindow.
func NewManager(st *store.Store, window int) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Manager{store: st, window: window}
}

// Remember stores one completed turn.
func (m *Manager) Remember(ctx context.Context, ex store.Exchange) error {
	if err := m.store.SaveExchange(ctx, ex); err != nil {
		return fmt.Errorf("remember exchange: %w", err)
	}
	return nil
}

// RecentContext renders the session's last turns as prompt text, oldest
// first. Turns without a result summary contribute only their question.
func (m *Manager) RecentContext(ctx context.Context, userID int64, sessionID string) (string, error) {
	exchanges, err := m.store.RecentExchanges(ctx, userID, sessionID, m.window)
	if err != nil {
		return "", fmt.Errorf("recent context: %w", err)
	}

	var parts []string
	for i := len(exchanges) - 1; i >= 0; i-- {
		ex := exchanges[i]
		parts = append(parts, "Q: "+ex.QueryText)
		if ex.ResultSummary != "" {
			parts = append(parts, "A: "+ex.ResultSummary)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// History returns past turns, newest first. A non-empty sessionID
// scopes the listing to that session; a non-positive limit falls back
// to DefaultHistoryLimit.
func (m *Manager) History(ctx context.Context, userID int64, sessionID string, limit int) ([]store.Exchange, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	exchanges, err := m.store.ExchangeHistory(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}
	return exchanges, nil
}

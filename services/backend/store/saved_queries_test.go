// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestSavedQuery_CreateAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "saver")

	id, err := s.CreateSavedQuery(ctx, SavedQuery{
		UserID:      userID,
		Name:        "Top Suppliers",
		SQLQuery:    "SELECT NAME FROM SUPPLIER LIMIT 10",
		Description: "revenue leaders",
		Tags:        []string{"suppliers", "revenue"},
	})
	if err != nil {
		t.Fatalf("CreateSavedQuery() failed: %v", err)
	}

	q, err := s.GetSavedQuery(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetSavedQuery() failed: %v", err)
	}
	if q.Name != "Top Suppliers" {
		t.Errorf("Name = %q", q.Name)
	}
	if !reflect.DeepEqual(q.Tags, []string{"suppliers", "revenue"}) {
		t.Errorf("Tags = %v", q.Tags)
	}
	if q.ExecutionCount != 0 {
		t.Errorf("ExecutionCount = %d, want 0", q.ExecutionCount)
	}
	if q.LastExecuted != nil {
		t.Error("LastExecuted should be nil before first run")
	}
}

func TestSavedQuery_NilTagsBecomeEmpty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "notags")

	id, err := s.CreateSavedQuery(ctx, SavedQuery{
		UserID:   userID,
		Name:     "Plain",
		SQLQuery: "SELECT 1",
	})
	if err != nil {
		t.Fatalf("CreateSavedQuery() failed: %v", err)
	}

	q, err := s.GetSavedQuery(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetSavedQuery() failed: %v", err)
	}
	if q.Tags == nil || len(q.Tags) != 0 {
		t.Errorf("Tags = %#v, want empty non-nil slice", q.Tags)
	}
}

func TestSavedQuery_UserScoping(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, s, "owner")
	other := createTestUser(t, s, "other")

	id, err := s.CreateSavedQuery(ctx, SavedQuery{
		UserID: owner, Name: "Private", SQLQuery: "SELECT 1",
	})
	if err != nil {
		t.Fatalf("CreateSavedQuery() failed: %v", err)
	}

	_, err = s.GetSavedQuery(ctx, id, other)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
	if err := s.DeleteSavedQuery(ctx, id, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for cross-user delete, got %v", err)
	}
}

func TestSavedQuery_ListNewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "lister")

	for _, name := range []string{"one", "two", "three"} {
		_, err := s.CreateSavedQuery(ctx, SavedQuery{
			UserID: userID, Name: name, SQLQuery: "SELECT 1",
		})
		if err != nil {
			t.Fatalf("CreateSavedQuery(%q) failed: %v", name, err)
		}
	}

	queries, err := s.ListSavedQueries(ctx, userID)
	if err != nil {
		t.Fatalf("ListSavedQueries() failed: %v", err)
	}
	if len(queries) != 3 {
		t.Fatalf("got %d queries, want 3", len(queries))
	}
	if queries[0].Name != "three" {
		t.Errorf("newest first: got %q, want three", queries[0].Name)
	}
}

func TestSavedQuery_Update(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "updater")

	id, err := s.CreateSavedQuery(ctx, SavedQuery{
		UserID: userID, Name: "Before", SQLQuery: "SELECT 1",
	})
	if err != nil {
		t.Fatalf("CreateSavedQuery() failed: %v", err)
	}

	err = s.UpdateSavedQuery(ctx, SavedQuery{
		ID:          id,
		UserID:      userID,
		Name:        "After",
		SQLQuery:    "SELECT 2",
		Description: "updated",
		Tags:        []string{"new"},
	})
	if err != nil {
		t.Fatalf("UpdateSavedQuery() failed: %v", err)
	}

	q, err := s.GetSavedQuery(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetSavedQuery() failed: %v", err)
	}
	if q.Name != "After" || q.SQLQuery != "SELECT 2" || q.Description != "updated" {
		t.Errorf("update not applied: %+v", q)
	}

	err = s.UpdateSavedQuery(ctx, SavedQuery{
		ID: 9999, UserID: userID, Name: "x", SQLQuery: "SELECT 1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestSavedQuery_Delete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "deleter")

	id, err := s.CreateSavedQuery(ctx, SavedQuery{
		UserID: userID, Name: "Doomed", SQLQuery: "SELECT 1",
	})
	if err != nil {
		t.Fatalf("CreateSavedQuery() failed: %v", err)
	}

	if err := s.DeleteSavedQuery(ctx, id, userID); err != nil {
		t.Fatalf("DeleteSavedQuery() failed: %v", err)
	}
	_, err = s.GetSavedQuery(ctx, id, userID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSavedQuery_RecordExecution(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "runner")

	id, err := s.CreateSavedQuery(ctx, SavedQuery{
		UserID: userID, Name: "Counted", SQLQuery: "SELECT 1",
	})
	if err != nil {
		t.Fatalf("CreateSavedQuery() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.RecordSavedQueryExecution(ctx, id); err != nil {
			t.Fatalf("RecordSavedQueryExecution() failed: %v", err)
		}
	}

	q, err := s.GetSavedQuery(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetSavedQuery() failed: %v", err)
	}
	if q.ExecutionCount != 3 {
		t.Errorf("ExecutionCount = %d, want 3", q.ExecutionCount)
	}
	if q.LastExecuted == nil {
		t.Error("LastExecuted not stamped")
	}
}

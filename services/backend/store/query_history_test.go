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
	"testing"
)

func TestRecordQuery_Defaults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "historian")

	err := s.RecordQuery(ctx, QueryRecord{
		UserID:   userID,
		SQLQuery: "SELECT 1",
	})
	if err != nil {
		t.Fatalf("RecordQuery() failed: %v", err)
	}

	records, err := s.RecentQueries(ctx, userID, 10)
	if err != nil {
		t.Fatalf("RecentQueries() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Source != QuerySourceChat {
		t.Errorf("Source = %q, want chat", records[0].Source)
	}
	if records[0].Status != QueryStatusSuccess {
		t.Errorf("Status = %q, want success", records[0].Status)
	}
}

func TestRecordQuery_BlockedWithError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "blocked")

	err := s.RecordQuery(ctx, QueryRecord{
		UserID:   userID,
		SQLQuery: "DROP TABLE ORDERS",
		Source:   QuerySourceAPI,
		Status:   QueryStatusBlocked,
		Error:    "forbidden operation: DROP",
	})
	if err != nil {
		t.Fatalf("RecordQuery() failed: %v", err)
	}

	records, err := s.RecentQueries(ctx, userID, 10)
	if err != nil {
		t.Fatalf("RecentQueries() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Status != QueryStatusBlocked || rec.Source != QuerySourceAPI {
		t.Errorf("record = %+v", rec)
	}
	if rec.Error != "forbidden operation: DROP" {
		t.Errorf("Error = %q", rec.Error)
	}
}

func TestRecentQueries_WindowAndIsolation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "qalice")
	bob := createTestUser(t, s, "qbob")

	for i := 1; i <= 4; i++ {
		err := s.RecordQuery(ctx, QueryRecord{
			UserID:        alice,
			SQLQuery:      fmt.Sprintf("SELECT %d", i),
			RowCount:      i,
			ExecutionTime: 0.5,
			FromCache:     i%2 == 0,
		})
		if err != nil {
			t.Fatalf("RecordQuery(%d) failed: %v", i, err)
		}
	}
	if err := s.RecordQuery(ctx, QueryRecord{UserID: bob, SQLQuery: "SELECT 99"}); err != nil {
		t.Fatalf("RecordQuery(bob) failed: %v", err)
	}

	records, err := s.RecentQueries(ctx, alice, 3)
	if err != nil {
		t.Fatalf("RecentQueries() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].SQLQuery != "SELECT 4" {
		t.Errorf("newest first: got %q, want SELECT 4", records[0].SQLQuery)
	}
	if !records[0].FromCache || records[0].RowCount != 4 {
		t.Errorf("record fields: %+v", records[0])
	}
	for _, rec := range records {
		if rec.SQLQuery == "SELECT 99" {
			t.Error("bob's record leaked into alice's history")
		}
	}
}

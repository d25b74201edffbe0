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
	"fmt"
	"testing"
)

func createTestAlert(t *testing.T, s *Store, userID int64, name string) int64 {
	t.Helper()

	id, err := s.CreateAlert(context.Background(), Alert{
		UserID:             userID,
		AlertName:          name,
		Metric:             "daily_revenue",
		ThresholdValue:     100000,
		Condition:          ">",
		NotificationMethod: "email",
		SQLQuery:           "SELECT SUM(TOTALPRICE) FROM ORDERS",
	})
	if err != nil {
		t.Fatalf("CreateAlert(%q) failed: %v", name, err)
	}
	return id
}

func TestAlert_CreateAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "watcher")

	id := createTestAlert(t, s, userID, "Revenue spike")

	a, err := s.GetAlert(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetAlert() failed: %v", err)
	}
	if a.AlertName != "Revenue spike" || a.Condition != ">" {
		t.Errorf("alert = %+v", a)
	}
	if !a.IsActive {
		t.Error("new alerts should be active")
	}
	if a.TriggerCount != 0 || a.LastChecked != nil || a.LastTriggered != nil {
		t.Errorf("fresh alert has stamps: %+v", a)
	}
}

func TestAlert_GetScopedToOwner(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, s, "alertowner")
	other := createTestUser(t, s, "alertother")

	id := createTestAlert(t, s, owner, "Private")

	_, err := s.GetAlert(ctx, id, other)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
}

func TestAlert_InvalidConditionRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "badcond")

	_, err := s.CreateAlert(ctx, Alert{
		UserID:             userID,
		AlertName:          "Broken",
		Metric:             "m",
		ThresholdValue:     1,
		Condition:          "~",
		NotificationMethod: "email",
		SQLQuery:           "SELECT 1",
	})
	if err == nil {
		t.Fatal("expected CHECK constraint failure for condition '~'")
	}
}

func TestAlert_ListActiveAcrossUsers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	createTestAlert(t, s, alice, "alice-active")
	bobID := createTestAlert(t, s, bob, "bob-paused")
	createTestAlert(t, s, bob, "bob-active")

	inactive := false
	if err := s.UpdateAlert(ctx, bobID, bob, AlertUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateAlert() failed: %v", err)
	}

	active, err := s.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts() failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active alerts, want 2", len(active))
	}
	for _, a := range active {
		if a.AlertName == "bob-paused" {
			t.Error("paused alert returned as active")
		}
	}
}

func TestAlert_UpdatePartial(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "partial")

	id := createTestAlert(t, s, userID, "Before")

	name := "After"
	threshold := 250000.0
	err := s.UpdateAlert(ctx, id, userID, AlertUpdate{
		AlertName:      &name,
		ThresholdValue: &threshold,
	})
	if err != nil {
		t.Fatalf("UpdateAlert() failed: %v", err)
	}

	a, err := s.GetAlert(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetAlert() failed: %v", err)
	}
	if a.AlertName != "After" || a.ThresholdValue != 250000 {
		t.Errorf("update not applied: %+v", a)
	}
	if a.Condition != ">" || a.NotificationMethod != "email" {
		t.Errorf("untouched fields changed: %+v", a)
	}
}

func TestAlert_UpdateNoFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "nofields")

	id := createTestAlert(t, s, userID, "Untouched")

	err := s.UpdateAlert(ctx, id, userID, AlertUpdate{})
	if err == nil {
		t.Fatal("expected error for empty update")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("empty update should not be ErrNotFound, got %v", err)
	}
}

func TestAlert_UpdateMissingAlert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "missing")

	name := "x"
	err := s.UpdateAlert(ctx, 9999, userID, AlertUpdate{AlertName: &name})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAlert_DeleteCascadesHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "cascade")

	id := createTestAlert(t, s, userID, "Doomed")
	err := s.InsertAlertEvent(ctx, AlertEvent{
		AlertID: id, MetricValue: 150000, ThresholdValue: 100000,
	})
	if err != nil {
		t.Fatalf("InsertAlertEvent() failed: %v", err)
	}

	if err := s.DeleteAlert(ctx, id, userID); err != nil {
		t.Fatalf("DeleteAlert() failed: %v", err)
	}

	events, err := s.AlertHistory(ctx, id, 10)
	if err != nil {
		t.Fatalf("AlertHistory() failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("history survived alert delete: %d rows", len(events))
	}
}

func TestAlert_CheckAndTriggerStamps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "stamps")

	id := createTestAlert(t, s, userID, "Stamped")

	if err := s.MarkAlertChecked(ctx, id); err != nil {
		t.Fatalf("MarkAlertChecked() failed: %v", err)
	}
	if err := s.RecordAlertTrigger(ctx, id); err != nil {
		t.Fatalf("RecordAlertTrigger() failed: %v", err)
	}
	if err := s.RecordAlertTrigger(ctx, id); err != nil {
		t.Fatalf("RecordAlertTrigger() failed: %v", err)
	}

	a, err := s.GetAlert(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetAlert() failed: %v", err)
	}
	if a.LastChecked == nil {
		t.Error("LastChecked not stamped")
	}
	if a.LastTriggered == nil {
		t.Error("LastTriggered not stamped")
	}
	if a.TriggerCount != 2 {
		t.Errorf("TriggerCount = %d, want 2", a.TriggerCount)
	}
}

func TestAlertEvent_DefaultAndErrorStates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "states")

	id := createTestAlert(t, s, userID, "Stateful")

	err := s.InsertAlertEvent(ctx, AlertEvent{
		AlertID:          id,
		MetricValue:      120000,
		ThresholdValue:   100000,
		Message:          "threshold crossed",
		NotificationSent: true,
	})
	if err != nil {
		t.Fatalf("InsertAlertEvent() failed: %v", err)
	}
	err = s.InsertAlertEvent(ctx, AlertEvent{
		AlertID: id,
		Message: "query failed: timeout",
		State:   AlertStateError,
	})
	if err != nil {
		t.Fatalf("InsertAlertEvent() failed: %v", err)
	}

	events, err := s.AlertHistory(ctx, id, 10)
	if err != nil {
		t.Fatalf("AlertHistory() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].State != AlertStateError {
		t.Errorf("events[0].State = %q, want error", events[0].State)
	}
	if events[1].State != AlertStateTriggered {
		t.Errorf("events[1].State = %q, want triggered (default)", events[1].State)
	}
	if !events[1].NotificationSent || events[1].MetricValue != 120000 {
		t.Errorf("triggered event fields: %+v", events[1])
	}
}

func TestAlertHistory_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "histlimit")

	id := createTestAlert(t, s, userID, "Chatty")
	for i := 0; i < 5; i++ {
		err := s.InsertAlertEvent(ctx, AlertEvent{
			AlertID: id, MetricValue: float64(i), ThresholdValue: 1,
			Message: fmt.Sprintf("event %d", i),
		})
		if err != nil {
			t.Fatalf("InsertAlertEvent(%d) failed: %v", i, err)
		}
	}

	events, err := s.AlertHistory(ctx, id, 3)
	if err != nil {
		t.Fatalf("AlertHistory() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Message != "event 4" {
		t.Errorf("newest first: got %q, want event 4", events[0].Message)
	}
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"testing"
	"time"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	// Verify all fields are set to non-nil nop implementations
	if opts.AuthProvider == nil {
		t.Error("DefaultOptions().AuthProvider should not be nil")
	}
	if opts.AuthzProvider == nil {
		t.Error("DefaultOptions().AuthzProvider should not be nil")
	}
	if opts.AuditLogger == nil {
		t.Error("DefaultOptions().AuditLogger should not be nil")
	}

	// Verify they are the correct nop types
	if _, ok := opts.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("DefaultOptions().AuthProvider should be *NopAuthProvider")
	}
	if _, ok := opts.AuthzProvider.(*NopAuthzProvider); !ok {
		t.Error("DefaultOptions().AuthzProvider should be *NopAuthzProvider")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
}

func TestServiceOptions_WithAuth(t *testing.T) {
	original := DefaultOptions()
	customAuth := &mockAuthProvider{userID: "custom-user"}

	newOpts := original.WithAuth(customAuth)

	if newOpts.AuthProvider != customAuth {
		t.Error("WithAuth should set the custom AuthProvider")
	}

	// Original should be unchanged (immutable copy)
	if _, ok := original.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("Original options should be unchanged after WithAuth")
	}

	// Other fields should be preserved
	if newOpts.AuthzProvider == nil {
		t.Error("WithAuth should preserve AuthzProvider")
	}
	if newOpts.AuditLogger == nil {
		t.Error("WithAuth should preserve AuditLogger")
	}
}

func TestServiceOptions_WithAuthz(t *testing.T) {
	original := DefaultOptions()
	customAuthz := &mockAuthzProvider{}

	newOpts := original.WithAuthz(customAuthz)

	if newOpts.AuthzProvider != customAuthz {
		t.Error("WithAuthz should set the custom AuthzProvider")
	}

	if _, ok := original.AuthzProvider.(*NopAuthzProvider); !ok {
		t.Error("Original options should be unchanged after WithAuthz")
	}
}

func TestServiceOptions_WithAudit(t *testing.T) {
	original := DefaultOptions()
	customAudit := &mockAuditLogger{}

	newOpts := original.WithAudit(customAudit)

	if newOpts.AuditLogger != customAudit {
		t.Error("WithAudit should set the custom AuditLogger")
	}

	if _, ok := original.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("Original options should be unchanged after WithAudit")
	}
}

// ============================================================================
// AuthInfo Tests
// ============================================================================

func TestAuthInfo_HasRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		check string
		want  bool
	}{
		{"has role", []string{"admin", "analyst"}, "admin", true},
		{"missing role", []string{"analyst"}, "admin", false},
		{"empty roles", []string{}, "admin", false},
		{"nil roles", nil, "viewer", false},
		{"exact match only", []string{"administrator"}, "admin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &AuthInfo{UserID: "u1", Roles: tt.roles}
			if got := info.HasRole(tt.check); got != tt.want {
				t.Errorf("HasRole(%q) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

// ============================================================================
// NopAuthProvider Tests
// ============================================================================

func TestNopAuthProvider_Validate(t *testing.T) {
	provider := &NopAuthProvider{}

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"arbitrary token", "anything"},
		{"jwt-shaped token", "eyJhbGciOiJIUzI1NiJ9.x.y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := provider.Validate(context.Background(), tt.token)
			if err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
			if info.UserID != "local-user" {
				t.Errorf("UserID = %v, want local-user", info.UserID)
			}
			if !info.HasRole("admin") {
				t.Error("local-user should have admin role")
			}
		})
	}
}

func TestNopAuthzProvider_Authorize(t *testing.T) {
	provider := &NopAuthzProvider{}

	req := AuthzRequest{
		User:         &AuthInfo{UserID: "anyone"},
		Action:       "delete",
		ResourceType: "query",
		ResourceID:   "42",
	}

	if err := provider.Authorize(context.Background(), req); err != nil {
		t.Errorf("Authorize() error = %v, want nil (always allowed)", err)
	}
}

// ============================================================================
// NopAuditLogger Tests
// ============================================================================

func TestNopAuditLogger(t *testing.T) {
	logger := &NopAuditLogger{}
	ctx := context.Background()

	event := AuditEvent{
		EventType: "query.execute",
		UserID:    "local-user",
		Outcome:   "success",
	}
	if err := logger.Log(ctx, event); err != nil {
		t.Errorf("Log() error = %v, want nil", err)
	}

	events, err := logger.Query(ctx, AuditFilter{UserID: "local-user"})
	if err != nil {
		t.Errorf("Query() error = %v, want nil", err)
	}
	if len(events) != 0 {
		t.Errorf("Query() returned %d events, want 0", len(events))
	}

	if err := logger.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v, want nil", err)
	}
}

// ============================================================================
// Metadata Tests
// ============================================================================

func TestMetadata_SetAndGet(t *testing.T) {
	meta := NewMetadata().
		Set("session_id", "s-1").
		Set("rows", 42).
		Set("cached", true)

	if v, ok := meta.Get("session_id"); !ok || v != "s-1" {
		t.Errorf("Get(session_id) = %v, %v", v, ok)
	}
	if _, ok := meta.Get("missing"); ok {
		t.Error("Get(missing) should return false")
	}
}

func TestMetadata_TypedAccessors(t *testing.T) {
	now := time.Now()
	meta := NewMetadata().
		Set("name", "analyst1").
		Set("count", 7).
		Set("flag", true).
		Set("at", now)

	if s, ok := meta.GetString("name"); !ok || s != "analyst1" {
		t.Errorf("GetString(name) = %q, %v", s, ok)
	}
	if i, ok := meta.GetInt("count"); !ok || i != 7 {
		t.Errorf("GetInt(count) = %d, %v", i, ok)
	}
	if b, ok := meta.GetBool("flag"); !ok || !b {
		t.Errorf("GetBool(flag) = %v, %v", b, ok)
	}
	if ts, ok := meta.GetTime("at"); !ok || !ts.Equal(now) {
		t.Errorf("GetTime(at) = %v, %v", ts, ok)
	}

	// Wrong type returns false
	if _, ok := meta.GetString("count"); ok {
		t.Error("GetString on int value should return false")
	}
	if _, ok := meta.GetInt("name"); ok {
		t.Error("GetInt on string value should return false")
	}
}

func TestMetadata_HasAndDelete(t *testing.T) {
	meta := NewMetadata().Set("key", "value")

	if !meta.Has("key") {
		t.Error("Has(key) should be true")
	}

	meta.Delete("key")
	if meta.Has("key") {
		t.Error("Has(key) should be false after Delete")
	}

	// Delete of a missing key is safe
	meta.Delete("never-existed")
}

func TestMetadata_Clone(t *testing.T) {
	original := NewMetadata().Set("key", "value")
	clone := original.Clone()

	clone.Set("key", "modified")

	if v, _ := original.GetString("key"); v != "value" {
		t.Errorf("original modified through clone: %q", v)
	}
}

func TestMetadata_Merge(t *testing.T) {
	base := NewMetadata().Set("env", "prod").Set("shared", "base")
	extra := NewMetadata().Set("version", "1.0").Set("shared", "extra")

	base.Merge(extra)

	if v, _ := base.GetString("version"); v != "1.0" {
		t.Errorf("Merge should add new keys, got version = %q", v)
	}
	if v, _ := base.GetString("shared"); v != "extra" {
		t.Errorf("Merge should overwrite existing keys, got shared = %q", v)
	}

	// Nil merge is a no-op
	base.Merge(nil)
	if base.Len() != 3 {
		t.Errorf("Len() = %d after nil merge, want 3", base.Len())
	}
}

// ============================================================================
// Test Doubles
// ============================================================================

type mockAuthProvider struct {
	userID string
}

func (m *mockAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	return &AuthInfo{UserID: m.userID}, nil
}

type mockAuthzProvider struct {
	denyAll bool
}

func (m *mockAuthzProvider) Authorize(ctx context.Context, req AuthzRequest) error {
	if m.denyAll {
		return ErrUnauthorized
	}
	return nil
}

type mockAuditLogger struct {
	events []AuditEvent
}

func (m *mockAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return m.events, nil
}

func (m *mockAuditLogger) Flush(ctx context.Context) error {
	return nil
}

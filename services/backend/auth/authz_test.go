// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// TestRoleAuthorizer verifies the role gates over admin-only resources.
func TestRoleAuthorizer(t *testing.T) {
	authz := &RoleAuthorizer{}
	ctx := context.Background()

	admin := &extensions.AuthInfo{UserID: "1", Username: "root", Roles: []string{store.RoleAdmin}}
	regular := &extensions.AuthInfo{UserID: "2", Username: "alice", Roles: []string{store.RoleUser}}

	tests := []struct {
		name     string
		req      extensions.AuthzRequest
		wantDeny bool
	}{
		{
			name: "admin lists users",
			req:  extensions.AuthzRequest{User: admin, Action: "list", ResourceType: "users"},
		},
		{
			name: "admin clears cache",
			req:  extensions.AuthzRequest{User: admin, Action: "clear", ResourceType: "cache"},
		},
		{
			name:     "regular user cannot list users",
			req:      extensions.AuthzRequest{User: regular, Action: "list", ResourceType: "users"},
			wantDeny: true,
		},
		{
			name:     "regular user cannot clear cache",
			req:      extensions.AuthzRequest{User: regular, Action: "clear", ResourceType: "cache"},
			wantDeny: true,
		},
		{
			name: "regular user runs queries",
			req:  extensions.AuthzRequest{User: regular, Action: "execute", ResourceType: "query"},
		},
		{
			name: "regular user manages own alerts",
			req:  extensions.AuthzRequest{User: regular, Action: "create", ResourceType: "alert"},
		},
		{
			name:     "missing user is denied",
			req:      extensions.AuthzRequest{Action: "read", ResourceType: "query"},
			wantDeny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(ctx, tt.req)
			if tt.wantDeny {
				assert.ErrorIs(t, err, extensions.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

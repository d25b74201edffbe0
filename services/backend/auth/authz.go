// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"fmt"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// adminResources are resource types only admins may act on. Everything
// else is open to any authenticated user; per-row ownership is
// enforced by the store queries themselves.
var adminResources = map[string]bool{
	"users": true,
	"cache": true,
}

// RoleAuthorizer enforces role-based access over the API's resources.
//
// Admins may do anything. Regular users may use every analytics and
// query feature but cannot list accounts or clear the shared result
// cache.
//
// Thread Safety: stateless, safe for concurrent use.
type RoleAuthorizer struct{}

// Authorize checks the request against the role rules. Denials wrap
// extensions.ErrUnauthorized.
func (a *RoleAuthorizer) Authorize(_ context.Context, req extensions.AuthzRequest) error {
	if req.User == nil {
		return fmt.Errorf("no authenticated user: %w", extensions.ErrUnauthorized)
	}
	if req.User.HasRole(store.RoleAdmin) {
		return nil
	}
	if adminResources[req.ResourceType] {
		return fmt.Errorf("%s %s requires the admin role: %w",
			req.Action, req.ResourceType, extensions.ErrUnauthorized)
	}
	return nil
}

// Compile-time interface compliance check.
var _ extensions.AuthzProvider = (*RoleAuthorizer)(nil)

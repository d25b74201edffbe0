// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for pluggable platform functionality.
//
// This package provides extension points that let deployments swap
// authentication, authorization, and audit logging without modifying the
// core codebase. The local single-user setup uses no-op defaults for all
// interfaces; the backend service injects real implementations.
//
// # Design Philosophy
//
// The CLI is designed as a fully functional local utility that works
// without any identity infrastructure. Multi-user deployments provide
// concrete implementations of these interfaces and inject them via
// ServiceOptions.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - auth.go: Authentication and authorization (AuthProvider, AuthzProvider)
//   - audit.go: Audit event logging (AuditLogger)
//   - metadata.go: Extensible key-value claims (Metadata)
//
// # Usage (local, single-user)
//
// The local CLI uses no-op implementations:
//
//	opts := extensions.DefaultOptions()
//
// # Usage (backend service)
//
// The backend injects concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    AuthProvider:  authService,        // JWT validation
//	    AuthzProvider: roleAuthorizer,     // role-based checks
//	    AuditLogger:   store.AuditLog(),   // SQLite-backed trail
//	}
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to service constructors to enable multi-user features.
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is called or when services check for nil.
//
// Example:
//
//	// Local: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Backend: inject implementations
//	opts := extensions.ServiceOptions{
//	    AuthProvider:  jwtValidator,
//	    AuthzProvider: roleAuthorizer,
//	    AuditLogger:   auditStore,
//	}
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns valid local user)
	AuthProvider AuthProvider

	// AuthzProvider checks authorization permissions.
	// Default: NopAuthzProvider (always allows all actions)
	AuthzProvider AuthzProvider

	// AuditLogger records security-relevant events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by the local CLI.
// All operations are allowed and no audit trail is kept.
//
// Returns:
//   - ServiceOptions with all fields set to no-op implementations
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// HealthCheckVersion is the current version of health check definitions.
// Increment when check semantics change.
const HealthCheckVersion = "1.0.0"

// HealthCheckType specifies the method used to check service health.
//
// # Description
//
// Defines the protocol used to determine if a service is healthy.
//
// # Limitations
//
//   - HealthCheckTCP only verifies the port is open, not service health
//
// # Assumptions
//
//   - HTTP checks expect the service to respond within timeout
//   - Container checks assume podman or docker is the runtime
type HealthCheckType string

const (
	// HealthCheckHTTP checks health via HTTP GET request.
	// Expects 2xx status code by default.
	HealthCheckHTTP HealthCheckType = "http"

	// HealthCheckTCP checks health via TCP connection.
	// Only verifies the port is accepting connections.
	HealthCheckTCP HealthCheckType = "tcp"

	// HealthCheckContainer checks health via container runtime state.
	HealthCheckContainer HealthCheckType = "container"
)

// HealthState represents the binary health state of a service.
//
// States are mutually exclusive and represent a point-in-time snapshot.
type HealthState string

const (
	// HealthStateHealthy indicates the service is responding normally.
	HealthStateHealthy HealthState = "healthy"

	// HealthStateUnhealthy indicates the service is not responding correctly.
	HealthStateUnhealthy HealthState = "unhealthy"

	// HealthStateUnreachable indicates the service could not be contacted.
	HealthStateUnreachable HealthState = "unreachable"

	// HealthStateSkipped indicates the service was not checked.
	HealthStateSkipped HealthState = "skipped"
)

// ServiceDefinition describes a service to health check.
//
// # Description
//
// Defines the parameters needed to health check one service of the
// deployment: check type, endpoint, and criticality. Each definition
// has a unique ID for tracking and correlation.
//
// # Limitations
//
//   - URL is required for HTTP and TCP checks
//   - ContainerName is required for container checks
//
// # Assumptions
//
//   - Service endpoints are accessible from the checker host
//   - Container names are unique within the runtime
type ServiceDefinition struct {
	// ID is a unique identifier for this service definition.
	ID string

	// Name is the human-readable service name.
	Name string

	// URL is the health check endpoint (for HTTP/TCP checks).
	// TCP checks use host:port from the URL.
	URL string

	// ContainerName is the container name (empty for host services).
	ContainerName string

	// CheckType specifies how to check health.
	CheckType HealthCheckType

	// Critical marks the service as required for startup.
	// If a critical service fails, WaitForServices returns an error.
	Critical bool

	// Timeout overrides default per-check timeout. Zero means use default.
	Timeout time.Duration

	// ExpectedStatus is the expected HTTP status code (default: 200).
	ExpectedStatus int

	// Version indicates the check definition version.
	Version string

	// CreatedAt is when this definition was created.
	CreatedAt time.Time
}

// WaitOptions configures WaitForServices behavior.
//
// # Description
//
// Controls timeout, polling intervals, and failure modes for waiting on
// services to become healthy. Uses exponential backoff with jitter to
// avoid hammering services that are still booting.
//
// # Assumptions
//
//   - Multiplier > 1.0 for exponential growth
//   - Jitter in range [0, 1]
//   - InitialInterval <= MaxInterval
type WaitOptions struct {
	// ID is a unique identifier for this wait operation.
	ID string

	// Timeout is the overall timeout for waiting (default: 40s).
	// Matches the containers' health check warm-up window.
	Timeout time.Duration

	// InitialInterval is the first poll interval (default: 1s).
	InitialInterval time.Duration

	// MaxInterval is the maximum poll interval (default: 30s).
	// Backoff stops increasing after reaching this value; it matches
	// the compose health check interval.
	MaxInterval time.Duration

	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (default: 0.1).
	// Range: [interval * (1-Jitter), interval * (1+Jitter)]
	Jitter float64

	// SkipOptional skips non-critical services if true.
	SkipOptional bool

	// FailFast aborts the wait once a critical service has stayed
	// unhealthy for several consecutive polling rounds, instead of
	// running out the full timeout.
	FailFast bool

	// CreatedAt is when these options were created.
	CreatedAt time.Time
}

// DefaultWaitOptions returns the standard startup wait configuration:
// 40 second warm-up timeout, backoff 1s -> 2s -> 4s ... capped at 30s,
// 10% jitter.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		ID:              GenerateID(),
		Timeout:         40 * time.Second,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
		SkipOptional:    false,
		FailFast:        false,
		CreatedAt:       time.Now(),
	}
}

// WaitResult contains the outcome of WaitForServices.
type WaitResult struct {
	// ID is a unique identifier for this wait result.
	ID string

	// Success is true if all critical services became healthy.
	Success bool

	// Duration is how long the wait took.
	Duration time.Duration

	// Services contains the final status of each service.
	Services []HealthStatus

	// FailedCritical contains names of critical services that failed.
	FailedCritical []string

	// Skipped contains names of services that were skipped.
	Skipped []string

	// StartedAt is when the wait operation started.
	StartedAt time.Time

	// CompletedAt is when the wait operation completed.
	CompletedAt time.Time

	// OptionsID references the WaitOptions used.
	OptionsID string
}

// HealthStatus represents the health of a single service.
//
// Point-in-time snapshot; HTTPStatus is only populated for HTTP checks
// and ContainerState only for container checks.
type HealthStatus struct {
	// ID is a unique identifier for this health status.
	ID string

	// Name is the service name.
	Name string

	// State is the health state.
	State HealthState

	// Message provides additional context (error message, etc.).
	Message string

	// Latency is how long the health check took.
	Latency time.Duration

	// LastChecked is when the check was performed.
	LastChecked time.Time

	// HTTPStatus is the HTTP status code (for HTTP checks).
	HTTPStatus int

	// ContainerState is the container state (for container checks).
	ContainerState string

	// ServiceDefinitionID references the ServiceDefinition checked.
	ServiceDefinitionID string

	// CheckVersion is the version of the check that produced this result.
	CheckVersion string
}

// HealthCheckerConfig configures the DefaultHealthChecker.
type HealthCheckerConfig struct {
	// ID is a unique identifier for this configuration.
	ID string

	// DefaultTimeout is the per-check timeout (default: 5s).
	DefaultTimeout time.Duration

	// DefaultExpectedStatus is the expected HTTP status (default: 200).
	DefaultExpectedStatus int

	// Retries is how many consecutive failures mark a service unhealthy
	// in a single CheckService call (default: 3, matching the compose
	// health check retries).
	Retries int

	// ContainerNamePrefix filters containers (default: "convana-").
	ContainerNamePrefix string

	// Runtime is the container engine binary (default: "podman").
	Runtime string

	// Version indicates the configuration version.
	Version string

	// CreatedAt is when this configuration was created.
	CreatedAt time.Time
}

// DefaultHealthCheckerConfig returns defaults aligned with the compose
// health check stanzas: 5s probe timeout, HTTP 200 expected, 3 retries.
func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		ID:                    GenerateID(),
		DefaultTimeout:        5 * time.Second,
		DefaultExpectedStatus: 200,
		Retries:               3,
		ContainerNamePrefix:   "convana-",
		Runtime:               "podman",
		Version:               HealthCheckVersion,
		CreatedAt:             time.Now(),
	}
}

// DefaultServiceDefinitions returns the three deployment services.
//
// Backend and frontend are critical: startup fails if either never
// becomes healthy. The cache is optional; the backend degrades
// gracefully without it.
func DefaultServiceDefinitions() []ServiceDefinition {
	now := time.Now()
	return []ServiceDefinition{
		{
			ID:            GenerateID(),
			Name:          "Backend",
			URL:           "http://localhost:8000/health",
			ContainerName: "convana-backend",
			CheckType:     HealthCheckHTTP,
			Critical:      true,
			Version:       HealthCheckVersion,
			CreatedAt:     now,
		},
		{
			ID:            GenerateID(),
			Name:          "Frontend",
			URL:           "http://localhost:8501/",
			ContainerName: "convana-frontend",
			CheckType:     HealthCheckHTTP,
			Critical:      true,
			Version:       HealthCheckVersion,
			CreatedAt:     now,
		},
		{
			ID:            GenerateID(),
			Name:          "Cache",
			URL:           "tcp://localhost:6379",
			ContainerName: "convana-cache",
			CheckType:     HealthCheckTCP,
			Critical:      false,
			Version:       HealthCheckVersion,
			CreatedAt:     now,
		},
	}
}

// GenerateID creates a short unique identifier for health check
// entities (statuses, results, configurations).
//
// Returns a 16-character hex string from 8 random bytes. Not a UUID;
// shorter for log readability.
func GenerateID() string {
	b := make([]byte, 8)
	_, err := rand.Read(b)
	if err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000")))[:16]
	}
	return hex.EncodeToString(b)
}

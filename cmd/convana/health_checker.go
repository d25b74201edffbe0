// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrHealthCheckTimeout is returned when WaitForServices exceeds its timeout.
	ErrHealthCheckTimeout = errors.New("health check timeout")

	// ErrSSRFBlocked is returned when a probe URL targets a blocked address.
	ErrSSRFBlocked = errors.New("SSRF protection")
)

// =============================================================================
// Interface Definition
// =============================================================================

// HealthChecker verifies the health of deployment services.
//
// # Description
//
// Abstracts health checking so the stack, health, and smoke commands
// can be unit tested with MockHealthChecker. The production
// implementation probes HTTP endpoints, TCP ports, and container
// state.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type HealthChecker interface {
	// WaitForServices blocks until all critical services are healthy
	// or the timeout elapses. Polls with jittered exponential backoff.
	WaitForServices(ctx context.Context, services []ServiceDefinition, opts WaitOptions) (*WaitResult, error)

	// CheckService performs a health check on one service, retrying
	// transient failures up to the configured retry count.
	CheckService(ctx context.Context, service ServiceDefinition) (*HealthStatus, error)

	// CheckAllServices checks multiple services concurrently.
	// Result order matches input order.
	CheckAllServices(ctx context.Context, services []ServiceDefinition) ([]HealthStatus, error)

	// IsContainerRunning checks if a container exists and is running.
	IsContainerRunning(ctx context.Context, containerName string) (bool, error)
}

// HealthHTTPClient abstracts the HTTP client for testing.
type HealthHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// SSRF Protection
// =============================================================================

// isURLSafe validates a probe URL before any request is made.
//
// Blocks the cloud metadata endpoint and the link-local range
// (169.254.0.0/16). Localhost, private networks, and container bridge
// addresses are allowed since that is where the stack runs.
func isURLSafe(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname (not IP) - allow DNS resolution
		return nil
	}

	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("%w: cloud metadata endpoint blocked", ErrSSRFBlocked)
	}

	linkLocal := net.IPNet{
		IP:   net.ParseIP("169.254.0.0"),
		Mask: net.CIDRMask(16, 32),
	}
	if linkLocal.Contains(ip) {
		return fmt.Errorf("%w: link-local address blocked", ErrSSRFBlocked)
	}

	return nil
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultHealthChecker is the production HealthChecker.
type DefaultHealthChecker struct {
	proc       ProcessManager
	config     HealthCheckerConfig
	httpClient HealthHTTPClient
}

// NewDefaultHealthChecker creates a production health checker.
//
// # Examples
//
//	proc := NewDefaultProcessManager()
//	checker := NewDefaultHealthChecker(proc, DefaultHealthCheckerConfig())
func NewDefaultHealthChecker(proc ProcessManager, config HealthCheckerConfig) *DefaultHealthChecker {
	return &DefaultHealthChecker{
		proc:   proc,
		config: config,
		httpClient: &http.Client{
			Timeout: config.DefaultTimeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

// NewDefaultHealthCheckerWithHTTPClient creates a health checker with an
// injected HTTP client. Used primarily for testing.
func NewDefaultHealthCheckerWithHTTPClient(proc ProcessManager, config HealthCheckerConfig, httpClient HealthHTTPClient) *DefaultHealthChecker {
	return &DefaultHealthChecker{
		proc:       proc,
		config:     config,
		httpClient: httpClient,
	}
}

// WaitForServices blocks until all critical services are healthy or timeout.
//
// # Description
//
// Polls services with jittered exponential backoff until every critical
// service has reported healthy at least once, the warm-up timeout
// elapses, or (with FailFast) a critical service stays down for
// failFastRounds consecutive rounds. A service that is merely slow to
// start gets the full warm-up window before FailFast can abort.
// Optional services never fail the wait.
func (h *DefaultHealthChecker) WaitForServices(ctx context.Context, services []ServiceDefinition, opts WaitOptions) (*WaitResult, error) {
	startTime := time.Now()
	result := &WaitResult{
		ID:        GenerateID(),
		StartedAt: startTime,
		OptionsID: opts.ID,
		Services:  make([]HealthStatus, 0, len(services)),
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	checkServices := h.filterServicesForWait(services, opts, result)
	healthy := make(map[string]bool)
	downRounds := make(map[string]int)
	var latestStatuses []HealthStatus
	interval := opts.InitialInterval

	for {
		if h.isContextDone(timeoutCtx) {
			return h.buildTimeoutResult(result, latestStatuses, checkServices, healthy, startTime, ctx)
		}

		statuses, err := h.CheckAllServices(timeoutCtx, checkServices)
		if err != nil {
			h.sleepWithContext(timeoutCtx, h.applyJitter(interval, opts.Jitter))
			interval = h.calculateNextInterval(interval, opts.MaxInterval, opts.Multiplier)
			continue
		}

		latestStatuses = statuses
		for _, status := range statuses {
			if status.State == HealthStateHealthy {
				healthy[status.Name] = true
				downRounds[status.Name] = 0
			} else {
				downRounds[status.Name]++
			}
		}

		if h.areAllCriticalHealthy(checkServices, healthy) {
			result.Duration = time.Since(startTime)
			result.CompletedAt = time.Now()
			result.Services = statuses
			result.Success = true
			return result, nil
		}

		if opts.FailFast {
			if failed := h.findFailedCriticalService(checkServices, healthy, downRounds); failed != "" {
				return h.buildFailFastResult(result, statuses, failed, startTime)
			}
		}

		// Context-aware sleep so Ctrl+C is honored immediately
		h.sleepWithContext(timeoutCtx, h.applyJitter(interval, opts.Jitter))
		interval = h.calculateNextInterval(interval, opts.MaxInterval, opts.Multiplier)
	}
}

// CheckService performs a health check on one service.
//
// # Description
//
// Delegates to the type-specific probe for the service's CheckType.
// Unreachable and unhealthy results are retried up to config.Retries
// times with a short pause, matching the compose health check retry
// semantics; the last attempt's status is returned.
func (h *DefaultHealthChecker) CheckService(ctx context.Context, service ServiceDefinition) (*HealthStatus, error) {
	attempts := h.config.Retries
	if attempts < 1 {
		attempts = 1
	}

	var status *HealthStatus
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		status, err = h.checkServiceOnce(ctx, service)
		if status != nil && status.State == HealthStateHealthy {
			return status, err
		}
		if h.isContextDone(ctx) || attempt == attempts-1 {
			break
		}
		h.sleepWithContext(ctx, 500*time.Millisecond)
	}
	return status, err
}

// checkServiceOnce performs a single probe without retries.
func (h *DefaultHealthChecker) checkServiceOnce(ctx context.Context, service ServiceDefinition) (*HealthStatus, error) {
	startTime := time.Now()
	status := &HealthStatus{
		ID:                  GenerateID(),
		Name:                service.Name,
		ServiceDefinitionID: service.ID,
		CheckVersion:        service.Version,
		LastChecked:         startTime,
	}

	timeout := h.config.DefaultTimeout
	if service.Timeout > 0 {
		timeout = service.Timeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch service.CheckType {
	case HealthCheckHTTP:
		err = h.performHTTPCheck(checkCtx, service, status)
	case HealthCheckTCP:
		err = h.performTCPCheck(checkCtx, service, status)
	case HealthCheckContainer:
		err = h.performContainerCheck(checkCtx, service, status)
	default:
		status.State = HealthStateUnhealthy
		status.Message = fmt.Sprintf("unknown check type: %s", service.CheckType)
		return status, fmt.Errorf("unknown check type: %s", service.CheckType)
	}

	status.Latency = time.Since(startTime)
	status.LastChecked = time.Now()

	return status, err
}

// CheckAllServices checks multiple services concurrently.
func (h *DefaultHealthChecker) CheckAllServices(ctx context.Context, services []ServiceDefinition) ([]HealthStatus, error) {
	if len(services) == 0 {
		return []HealthStatus{}, nil
	}

	results := make([]HealthStatus, len(services))
	var g errgroup.Group

	for i, svc := range services {
		g.Go(func() error {
			status, _ := h.checkServiceOnce(ctx, svc)
			if status != nil {
				results[i] = *status
			} else {
				results[i] = HealthStatus{
					ID:                  GenerateID(),
					Name:                svc.Name,
					State:               HealthStateUnreachable,
					Message:             "check failed",
					LastChecked:         time.Now(),
					ServiceDefinitionID: svc.ID,
					CheckVersion:        svc.Version,
				}
			}
			return nil
		})
	}

	g.Wait()
	return results, nil
}

// IsContainerRunning checks if a container exists and is running.
func (h *DefaultHealthChecker) IsContainerRunning(ctx context.Context, containerName string) (bool, error) {
	runtime := h.config.Runtime
	if runtime == "" {
		runtime = "podman"
	}
	output, err := h.proc.Run(ctx, runtime, "inspect", "--format", "{{.State.Running}}", containerName)
	if err != nil {
		// Inspect fails for missing containers; that is "not running"
		return false, nil
	}
	return strings.TrimSpace(string(output)) == "true", nil
}

// =============================================================================
// Private Helpers
// =============================================================================

// filterServicesForWait drops optional services when SkipOptional is
// set, recording them in result.Skipped.
func (h *DefaultHealthChecker) filterServicesForWait(services []ServiceDefinition, opts WaitOptions, result *WaitResult) []ServiceDefinition {
	if !opts.SkipOptional {
		return services
	}

	filtered := make([]ServiceDefinition, 0)
	for _, svc := range services {
		if svc.Critical {
			filtered = append(filtered, svc)
		} else {
			result.Skipped = append(result.Skipped, svc.Name)
		}
	}
	return filtered
}

func (h *DefaultHealthChecker) isContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (h *DefaultHealthChecker) buildTimeoutResult(result *WaitResult, statuses []HealthStatus, services []ServiceDefinition, healthy map[string]bool, startTime time.Time, ctx context.Context) (*WaitResult, error) {
	result.Duration = time.Since(startTime)
	result.CompletedAt = time.Now()
	result.Services = statuses
	result.Success = false

	for _, svc := range services {
		if svc.Critical && !healthy[svc.Name] {
			result.FailedCritical = append(result.FailedCritical, svc.Name)
		}
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("context cancelled: %w", ctx.Err())
	}
	return result, ErrHealthCheckTimeout
}

func (h *DefaultHealthChecker) buildFailFastResult(result *WaitResult, statuses []HealthStatus, failedService string, startTime time.Time) (*WaitResult, error) {
	result.Duration = time.Since(startTime)
	result.CompletedAt = time.Now()
	result.Services = statuses
	result.FailedCritical = []string{failedService}
	result.Success = false

	var message string
	for _, status := range statuses {
		if status.Name == failedService {
			message = status.Message
			break
		}
	}
	return result, fmt.Errorf("critical service %s failed: %s", failedService, message)
}

func (h *DefaultHealthChecker) areAllCriticalHealthy(services []ServiceDefinition, healthy map[string]bool) bool {
	for _, svc := range services {
		if svc.Critical && !healthy[svc.Name] {
			return false
		}
	}
	return true
}

// failFastRounds is how many consecutive polling rounds a critical
// service must stay unhealthy before FailFast aborts the wait. Matches
// the compose healthcheck retry count so a service that is still inside
// its start_period is not declared dead on the first probe.
const failFastRounds = 3

func (h *DefaultHealthChecker) findFailedCriticalService(services []ServiceDefinition, healthy map[string]bool, downRounds map[string]int) string {
	for _, svc := range services {
		if svc.Critical && !healthy[svc.Name] && downRounds[svc.Name] >= failFastRounds {
			return svc.Name
		}
	}
	return ""
}

// applyJitter multiplies interval by a factor in [1-jitter, 1+jitter].
func (h *DefaultHealthChecker) applyJitter(interval time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return interval
	}
	factor := 1.0 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(interval) * factor)
}

// calculateNextInterval multiplies current by multiplier, capped at max.
func (h *DefaultHealthChecker) calculateNextInterval(current, max time.Duration, multiplier float64) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}

// sleepWithContext sleeps for duration or until the context is done.
func (h *DefaultHealthChecker) sleepWithContext(ctx context.Context, duration time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}
}

// =============================================================================
// Check Type Methods
// =============================================================================

// performHTTPCheck sends a GET to the service URL and compares the
// status code against the expected value.
func (h *DefaultHealthChecker) performHTTPCheck(ctx context.Context, service ServiceDefinition, status *HealthStatus) error {
	if service.URL == "" {
		status.State = HealthStateUnhealthy
		status.Message = "no URL configured for HTTP check"
		return fmt.Errorf("no URL configured for HTTP check")
	}

	// SSRF protection: validate URL before making the request
	if err := isURLSafe(service.URL); err != nil {
		status.State = HealthStateUnhealthy
		status.Message = fmt.Sprintf("blocked: %v", err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, service.URL, nil)
	if err != nil {
		status.State = HealthStateUnreachable
		status.Message = fmt.Sprintf("failed to create request: %v", err)
		return err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		status.State = HealthStateUnreachable
		status.Message = fmt.Sprintf("request failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	status.HTTPStatus = resp.StatusCode

	expectedStatus := h.config.DefaultExpectedStatus
	if service.ExpectedStatus > 0 {
		expectedStatus = service.ExpectedStatus
	}

	if resp.StatusCode == expectedStatus {
		status.State = HealthStateHealthy
		status.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	} else {
		status.State = HealthStateUnhealthy
		status.Message = fmt.Sprintf("HTTP %d (expected %d)", resp.StatusCode, expectedStatus)
	}

	return nil
}

// performTCPCheck attempts a TCP connection to the service's host:port.
// Only verifies the port accepts connections.
func (h *DefaultHealthChecker) performTCPCheck(ctx context.Context, service ServiceDefinition, status *HealthStatus) error {
	if service.URL == "" {
		status.State = HealthStateUnhealthy
		status.Message = "no URL configured for TCP check"
		return fmt.Errorf("no URL configured for TCP check")
	}

	host := strings.TrimPrefix(service.URL, "tcp://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")

	if err := isURLSafe("tcp://" + host); err != nil {
		status.State = HealthStateUnhealthy
		status.Message = fmt.Sprintf("blocked: %v", err)
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		status.State = HealthStateUnreachable
		status.Message = fmt.Sprintf("TCP connection failed: %v", err)
		return nil
	}
	defer conn.Close()

	status.State = HealthStateHealthy
	status.Message = "TCP port open"
	return nil
}

// performContainerCheck queries the container runtime for running state.
func (h *DefaultHealthChecker) performContainerCheck(ctx context.Context, service ServiceDefinition, status *HealthStatus) error {
	if service.ContainerName == "" {
		status.State = HealthStateUnhealthy
		status.Message = "no container name configured"
		return fmt.Errorf("no container name configured")
	}

	running, err := h.IsContainerRunning(ctx, service.ContainerName)
	if err != nil {
		status.State = HealthStateUnreachable
		status.Message = fmt.Sprintf("failed to check container: %v", err)
		return nil
	}

	if running {
		status.State = HealthStateHealthy
		status.ContainerState = "running"
		status.Message = "container running"
	} else {
		status.State = HealthStateUnhealthy
		status.ContainerState = "not running"
		status.Message = "container not running"
	}

	return nil
}

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockHealthChecker is a test double for HealthChecker.
//
// Configure by setting function fields. Calls are recorded for
// verification. Unset functions return permissive defaults.
type MockHealthChecker struct {
	WaitForServicesFunc    func(ctx context.Context, services []ServiceDefinition, opts WaitOptions) (*WaitResult, error)
	CheckServiceFunc       func(ctx context.Context, service ServiceDefinition) (*HealthStatus, error)
	CheckAllServicesFunc   func(ctx context.Context, services []ServiceDefinition) ([]HealthStatus, error)
	IsContainerRunningFunc func(ctx context.Context, containerName string) (bool, error)

	WaitForServicesCalls    []WaitForServicesCall
	CheckServiceCalls       []ServiceDefinition
	CheckAllServicesCalls   [][]ServiceDefinition
	IsContainerRunningCalls []string

	mu sync.Mutex
}

// WaitForServicesCall records one WaitForServices invocation.
type WaitForServicesCall struct {
	Services []ServiceDefinition
	Options  WaitOptions
}

// WaitForServices records the call and delegates to WaitForServicesFunc.
// Returns a success result when no function is set.
func (m *MockHealthChecker) WaitForServices(ctx context.Context, services []ServiceDefinition, opts WaitOptions) (*WaitResult, error) {
	m.mu.Lock()
	m.WaitForServicesCalls = append(m.WaitForServicesCalls, WaitForServicesCall{Services: services, Options: opts})
	m.mu.Unlock()

	if m.WaitForServicesFunc != nil {
		return m.WaitForServicesFunc(ctx, services, opts)
	}
	return &WaitResult{ID: GenerateID(), Success: true}, nil
}

// CheckService records the call and delegates to CheckServiceFunc.
func (m *MockHealthChecker) CheckService(ctx context.Context, service ServiceDefinition) (*HealthStatus, error) {
	m.mu.Lock()
	m.CheckServiceCalls = append(m.CheckServiceCalls, service)
	m.mu.Unlock()

	if m.CheckServiceFunc != nil {
		return m.CheckServiceFunc(ctx, service)
	}
	return &HealthStatus{ID: GenerateID(), Name: service.Name, State: HealthStateHealthy}, nil
}

// CheckAllServices records the call and delegates to CheckAllServicesFunc.
func (m *MockHealthChecker) CheckAllServices(ctx context.Context, services []ServiceDefinition) ([]HealthStatus, error) {
	m.mu.Lock()
	m.CheckAllServicesCalls = append(m.CheckAllServicesCalls, services)
	m.mu.Unlock()

	if m.CheckAllServicesFunc != nil {
		return m.CheckAllServicesFunc(ctx, services)
	}
	statuses := make([]HealthStatus, len(services))
	for i, svc := range services {
		statuses[i] = HealthStatus{ID: GenerateID(), Name: svc.Name, State: HealthStateHealthy}
	}
	return statuses, nil
}

// IsContainerRunning records the call and delegates to IsContainerRunningFunc.
func (m *MockHealthChecker) IsContainerRunning(ctx context.Context, containerName string) (bool, error) {
	m.mu.Lock()
	m.IsContainerRunningCalls = append(m.IsContainerRunningCalls, containerName)
	m.mu.Unlock()

	if m.IsContainerRunningFunc != nil {
		return m.IsContainerRunningFunc(ctx, containerName)
	}
	return true, nil
}

// Compile-time interface compliance check.
var (
	_ HealthChecker = (*DefaultHealthChecker)(nil)
	_ HealthChecker = (*MockHealthChecker)(nil)
)

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compose manages container compose operations for the analytics
// stack. It abstracts podman-compose / docker compose behind a testable
// interface and handles compose file layering, environment injection,
// and forceful cleanup when compose itself is wedged.
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrComposeFileMissing is returned when a required compose file doesn't exist.
	ErrComposeFileMissing = errors.New("compose file not found")

	// ErrCleanupPartial is returned when cleanup completes with some errors.
	ErrCleanupPartial = errors.New("cleanup completed with errors")

	// ErrInvalidConfig is returned when Config is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrInvalidEnvVar is returned when an environment variable key is invalid.
	// This prevents config injection attacks through malformed env var names.
	ErrInvalidEnvVar = errors.New("invalid environment variable")
)

// envVarKeyRegex validates environment variable key names.
// Keys must start with a letter or underscore and contain only
// alphanumerics and underscores. Prevents shell metacharacter injection.
var envVarKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// sensitiveEnvPattern matches env keys whose values must not be logged.
var sensitiveEnvPattern = regexp.MustCompile(`(?i)(token|secret|key|password|credential|webhook)`)

// =============================================================================
// Runner Interface
// =============================================================================

// Runner is the subset of process execution the executor needs.
// The CLI's ProcessManager satisfies it.
type Runner interface {
	// RunWithEnv executes a command in dir with extra environment
	// variables appended to the inherited environment.
	RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

	// RunStreaming executes a command with output attached to writers.
	RunStreaming(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error
}

// =============================================================================
// Interface Definition
// =============================================================================

// Executor manages compose operations for the analytics stack.
//
// # Description
//
// Abstracts all interactions with the compose tool, enabling testable
// orchestration of the backend, frontend, and cache containers. Handles
// compose file layering (base then override), environment injection,
// and both graceful and forceful container management.
//
// # Security
//
//   - Sanitizes environment variable keys before injection
//   - Does not log sensitive environment values (passwords, API keys)
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Operations that
// modify container state (Up, Down, Stop, ForceCleanup) are serialized.
type Executor interface {
	// Up starts services defined in the compose configuration.
	// Executes `up -d` with optional build flag; compose files layer
	// in order base -> override.
	Up(ctx context.Context, opts UpOptions) (*Result, error)

	// Down stops and removes containers defined in the compose
	// configuration. Volume removal is irreversible.
	Down(ctx context.Context, opts DownOptions) (*Result, error)

	// Stop stops containers without removing them.
	Stop(ctx context.Context, timeout time.Duration) (*Result, error)

	// Logs streams container logs to the provided writer. Follow mode
	// blocks until the context is cancelled.
	Logs(ctx context.Context, opts LogsOptions, w io.Writer) error

	// Build builds the stack container images without starting them,
	// streaming build output to the provided writer.
	Build(ctx context.Context, w io.Writer) (*Result, error)

	// Status returns the current state of stack containers, including
	// stopped ones for debugging.
	Status(ctx context.Context) (*Status, error)

	// ForceCleanup removes all stack containers regardless of compose
	// state. Nuclear option for when Down fails. Returns
	// ErrCleanupPartial if some steps failed.
	ForceCleanup(ctx context.Context) (*CleanupResult, error)

	// GetComposeFiles returns the ordered list of compose files that
	// will be used. Does not validate file content.
	GetComposeFiles() []string
}

// =============================================================================
// Supporting Types
// =============================================================================

// Config provides configuration for compose operations.
type Config struct {
	// StackDir is the directory containing compose files.
	StackDir string

	// ProjectName is the compose project name.
	// Default: "convana"
	ProjectName string

	// Runtime is the container engine: "podman" or "docker".
	// Default: "podman"
	Runtime string

	// BaseFile is the primary compose file name.
	// Default: "compose.yaml"
	BaseFile string

	// OverrideFile is the user override file name. Only layered in if
	// the file exists.
	// Default: "compose.override.yaml"
	OverrideFile string

	// ContainerNamePrefix filters containers for Status and cleanup.
	// Default: "convana-"
	ContainerNamePrefix string

	// DefaultTimeout is the default timeout for compose operations.
	// Default: 5 minutes
	DefaultTimeout time.Duration
}

// UpOptions configures the Up operation.
type UpOptions struct {
	// ForceBuild rebuilds images even if they exist (--build).
	ForceBuild bool

	// Services limits which services to start. Empty means all.
	Services []string

	// Env contains environment variables to inject into the compose run.
	Env map[string]string

	// RemoveOrphans removes containers for services no longer defined.
	RemoveOrphans bool

	// Timeout overrides the default operation timeout. Zero means use
	// DefaultTimeout from config.
	Timeout time.Duration
}

// DownOptions configures the Down operation.
type DownOptions struct {
	// RemoveOrphans removes containers for services not in compose file.
	RemoveOrphans bool

	// RemoveVolumes removes named volumes (-v). Destructive: the app
	// database and cache contents are gone afterwards.
	RemoveVolumes bool

	// Timeout for graceful container shutdown.
	Timeout time.Duration
}

// LogsOptions configures the Logs operation.
type LogsOptions struct {
	// Follow streams logs continuously (-f).
	Follow bool

	// Services limits which services to show logs for. Empty means all.
	Services []string

	// Tail limits output to last N lines per container. Zero means all.
	Tail int

	// Timestamps prepends each line with a timestamp.
	Timestamps bool
}

// Result contains the result of a compose operation.
type Result struct {
	// Success indicates if the operation completed without error.
	Success bool

	// Stdout contains standard output.
	Stdout string

	// Duration is how long the operation took.
	Duration time.Duration

	// Command is the full command that was executed (for debugging).
	Command string
}

// Status contains the current state of stack containers.
type Status struct {
	// Services contains status for each container.
	Services []ServiceStatus

	// Running is the count of running containers.
	Running int

	// Stopped is the count of stopped containers.
	Stopped int
}

// ServiceStatus contains the status of a single container.
type ServiceStatus struct {
	// Name is the service name derived from the container name.
	Name string

	// ContainerName is the actual container name.
	ContainerName string

	// State is the container state (running, exited, etc.).
	State string

	// Image is the container image.
	Image string
}

// CleanupResult contains details of a ForceCleanup operation.
type CleanupResult struct {
	// ContainersRemoved is the number of containers removed.
	ContainersRemoved int

	// ContainerNames lists the names of removed containers.
	ContainerNames []string

	// Errors contains any non-fatal errors encountered.
	Errors []string
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExecutor implements Executor using podman-compose or docker compose.
type DefaultExecutor struct {
	config     Config
	proc       Runner
	logger     *slog.Logger
	osStatFunc func(string) (os.FileInfo, error)
	mu         sync.Mutex
}

// NewDefaultExecutor creates a new Executor with the given configuration.
//
// # Defaults Applied
//
//   - ProjectName: "convana"
//   - Runtime: "podman"
//   - BaseFile: "compose.yaml"
//   - OverrideFile: "compose.override.yaml"
//   - ContainerNamePrefix: "convana-"
//   - DefaultTimeout: 5 minutes
//
// # Limitations
//
//   - Does not verify the compose tool is installed (checked at runtime)
//   - Does not verify StackDir exists (checked at runtime)
func NewDefaultExecutor(cfg Config, proc Runner) (*DefaultExecutor, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)

	return &DefaultExecutor{
		config:     cfg,
		proc:       proc,
		logger:     slog.Default(),
		osStatFunc: os.Stat,
	}, nil
}

func validateConfig(cfg *Config) error {
	if cfg.StackDir == "" {
		return fmt.Errorf("%w: StackDir is required", ErrInvalidConfig)
	}
	if cfg.Runtime != "" && cfg.Runtime != "podman" && cfg.Runtime != "docker" {
		return fmt.Errorf("%w: unsupported runtime %q", ErrInvalidConfig, cfg.Runtime)
	}
	return nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.ProjectName == "" {
		cfg.ProjectName = "convana"
	}
	if cfg.Runtime == "" {
		cfg.Runtime = "podman"
	}
	if cfg.BaseFile == "" {
		cfg.BaseFile = "compose.yaml"
	}
	if cfg.OverrideFile == "" {
		cfg.OverrideFile = "compose.override.yaml"
	}
	if cfg.ContainerNamePrefix == "" {
		cfg.ContainerNamePrefix = "convana-"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
}

// composeCommand returns the compose binary and leading args for the
// configured runtime: `podman-compose` vs `docker compose`.
func (e *DefaultExecutor) composeCommand() (string, []string) {
	if e.config.Runtime == "docker" {
		return "docker", []string{"compose"}
	}
	return "podman-compose", nil
}

// =============================================================================
// Interface Implementation
// =============================================================================

// Up starts services defined in the compose configuration.
func (e *DefaultExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	// Validate env vars before proceeding to prevent config injection
	if err := e.validateEnvVars(opts.Env); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.buildComposeFileArgs()
	args = append(args, "up", "-d")

	if opts.ForceBuild {
		args = append(args, "--build")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if len(opts.Services) > 0 {
		args = append(args, opts.Services...)
	}

	return e.runCompose(ctx, args, opts.Env, e.resolveTimeout(opts.Timeout))
}

// Down stops and removes containers defined in the compose configuration.
func (e *DefaultExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.buildComposeFileArgs()
	args = append(args, "down")

	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}

	return e.runCompose(ctx, args, nil, e.resolveTimeout(opts.Timeout))
}

// Stop stops containers without removing them.
func (e *DefaultExecutor) Stop(ctx context.Context, timeout time.Duration) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.buildComposeFileArgs()
	args = append(args, "stop")

	return e.runCompose(ctx, args, nil, e.resolveTimeout(timeout))
}

// Logs streams container logs to the provided writer.
func (e *DefaultExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	args := e.buildComposeFileArgs()
	args = append(args, "logs")

	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", fmt.Sprintf("%d", opts.Tail))
	}
	if opts.Timestamps {
		args = append(args, "--timestamps")
	}
	if len(opts.Services) > 0 {
		args = append(args, opts.Services...)
	}

	name, base := e.composeCommand()
	e.logCommand(fmt.Sprintf("%s %s", name, strings.Join(append(base, args...), " ")), nil)
	return e.proc.RunStreaming(ctx, e.config.StackDir, w, w, name, append(base, args...)...)
}

// Build builds the stack container images without starting them.
func (e *DefaultExecutor) Build(ctx context.Context, w io.Writer) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	args := e.buildComposeFileArgs()
	args = append(args, "build")

	name, base := e.composeCommand()
	cmdStr := fmt.Sprintf("%s %s", name, strings.Join(append(base, args...), " "))
	e.logCommand(cmdStr, nil)

	err := e.proc.RunStreaming(ctx, e.config.StackDir, w, w, name, append(base, args...)...)
	result := &Result{
		Success:  err == nil,
		Duration: time.Since(start),
		Command:  cmdStr,
	}
	if err != nil {
		return result, fmt.Errorf("compose build failed: %w", err)
	}
	return result, nil
}

// Status returns the current state of stack containers.
func (e *DefaultExecutor) Status(ctx context.Context) (*Status, error) {
	args := []string{
		"ps", "-a",
		"--filter", fmt.Sprintf("name=%s", e.config.ContainerNamePrefix),
		"--format", "json",
	}

	output, err := e.runRuntime(ctx, args, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to get container status: %w", err)
	}

	return e.parseContainerStatus(output.Stdout)
}

// ForceCleanup removes all stack containers regardless of compose state.
//
// Executes two steps, continuing past failures:
//  1. Force stop all matching containers (stop -t 0)
//  2. Force remove by name filter
func (e *DefaultExecutor) ForceCleanup(ctx context.Context) (*CleanupResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &CleanupResult{
		ContainerNames: []string{},
		Errors:         []string{},
	}

	names, err := e.listContainers(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list containers: %v", err))
	}

	for _, name := range names {
		if _, err := e.runRuntime(ctx, []string{"stop", "-t", "0", name}, 30*time.Second); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stop %s: %v", name, err))
		}
		if _, err := e.runRuntime(ctx, []string{"rm", "-f", name}, 30*time.Second); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", name, err))
			continue
		}
		result.ContainersRemoved++
		result.ContainerNames = append(result.ContainerNames, name)
	}

	if len(result.Errors) > 0 {
		return result, ErrCleanupPartial
	}
	return result, nil
}

// GetComposeFiles returns the ordered list of compose files that will be
// used: base always, override only when it exists.
func (e *DefaultExecutor) GetComposeFiles() []string {
	files := []string{filepath.Join(e.config.StackDir, e.config.BaseFile)}

	overridePath := filepath.Join(e.config.StackDir, e.config.OverrideFile)
	if e.fileExists(overridePath) {
		files = append(files, overridePath)
	}

	return files
}

// =============================================================================
// Private Helper Methods
// =============================================================================

// buildComposeFileArgs builds the -p and -f arguments for compose files.
func (e *DefaultExecutor) buildComposeFileArgs() []string {
	args := []string{"-p", e.config.ProjectName}
	for _, file := range e.GetComposeFiles() {
		args = append(args, "-f", file)
	}
	return args
}

// runCompose executes a compose command with env injection and timeout.
func (e *DefaultExecutor) runCompose(ctx context.Context, args []string, env map[string]string, timeout time.Duration) (*Result, error) {
	start := time.Now()

	name, base := e.composeCommand()
	fullArgs := append(base, args...)
	cmdStr := fmt.Sprintf("%s %s", name, strings.Join(fullArgs, " "))
	e.logCommand(cmdStr, env)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, err := e.proc.RunWithEnv(execCtx, e.config.StackDir, envToSlice(env), name, fullArgs...)

	result := &Result{
		Success:  err == nil,
		Stdout:   string(stdout),
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, fmt.Errorf("compose command failed: %w", err)
	}
	return result, nil
}

// runRuntime executes a direct container engine command (not compose).
// Used for ps, stop, rm where compose layering is unnecessary.
func (e *DefaultExecutor) runRuntime(ctx context.Context, args []string, timeout time.Duration) (*Result, error) {
	start := time.Now()
	cmdStr := fmt.Sprintf("%s %s", e.config.Runtime, strings.Join(args, " "))

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, err := e.proc.RunWithEnv(execCtx, "", nil, e.config.Runtime, args...)

	result := &Result{
		Success:  err == nil,
		Stdout:   string(stdout),
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, fmt.Errorf("%s command failed: %w", e.config.Runtime, err)
	}
	return result, nil
}

// listContainers returns names of containers matching the prefix,
// running or not.
func (e *DefaultExecutor) listContainers(ctx context.Context) ([]string, error) {
	args := []string{
		"ps", "-a",
		"--filter", fmt.Sprintf("name=%s", e.config.ContainerNamePrefix),
		"--format", "{{.Names}}",
	}

	output, err := e.runRuntime(ctx, args, 30*time.Second)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(output.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// containerJSON matches the fields we need from `ps --format json`.
// Podman emits a JSON array; docker emits newline-delimited objects.
// Both are handled.
type containerJSON struct {
	Names interface{} `json:"Names"`
	State string      `json:"State"`
	Image string      `json:"Image"`
}

// parseContainerStatus converts ps JSON output to a Status.
func (e *DefaultExecutor) parseContainerStatus(jsonOutput string) (*Status, error) {
	trimmed := strings.TrimSpace(jsonOutput)
	status := &Status{Services: []ServiceStatus{}}
	if trimmed == "" {
		return status, nil
	}

	var containers []containerJSON
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &containers); err != nil {
			return nil, fmt.Errorf("failed to parse container status: %w", err)
		}
	} else {
		// Newline-delimited objects (docker ps --format json)
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var c containerJSON
			if err := json.Unmarshal([]byte(line), &c); err != nil {
				return nil, fmt.Errorf("failed to parse container status: %w", err)
			}
			containers = append(containers, c)
		}
	}

	for _, c := range containers {
		name := firstContainerName(c.Names)
		svc := ServiceStatus{
			Name:          strings.TrimPrefix(name, e.config.ContainerNamePrefix),
			ContainerName: name,
			State:         strings.ToLower(c.State),
			Image:         c.Image,
		}
		status.Services = append(status.Services, svc)
		if svc.State == "running" {
			status.Running++
		} else {
			status.Stopped++
		}
	}

	return status, nil
}

// firstContainerName extracts the container name from the Names field,
// which podman encodes as a string array and docker as a string.
func firstContainerName(names interface{}) string {
	switch v := names.(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// validateEnvVars checks all env var keys against the allowed pattern.
func (e *DefaultExecutor) validateEnvVars(env map[string]string) error {
	for key := range env {
		if !envVarKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: key %q", ErrInvalidEnvVar, key)
		}
	}
	return nil
}

// logCommand logs the compose command with sensitive env values redacted.
func (e *DefaultExecutor) logCommand(cmdStr string, env map[string]string) {
	if env == nil {
		e.logger.Debug("Executing compose command", "command", cmdStr)
		return
	}

	redacted := make([]string, 0, len(env))
	for key, value := range env {
		if sensitiveEnvPattern.MatchString(key) {
			redacted = append(redacted, key+"=[REDACTED]")
		} else {
			redacted = append(redacted, key+"="+value)
		}
	}
	e.logger.Debug("Executing compose command", "command", cmdStr, "env", redacted)
}

func envToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for key, value := range env {
		result = append(result, key+"="+value)
	}
	return result
}

func (e *DefaultExecutor) resolveTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return e.config.DefaultTimeout
}

func (e *DefaultExecutor) fileExists(path string) bool {
	_, err := e.osStatFunc(path)
	return err == nil
}

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockExecutor is a test double for Executor.
//
// Configure by setting function fields. Calls are recorded for
// verification. Unset functions return permissive defaults.
type MockExecutor struct {
	UpFunc           func(ctx context.Context, opts UpOptions) (*Result, error)
	DownFunc         func(ctx context.Context, opts DownOptions) (*Result, error)
	StopFunc         func(ctx context.Context, timeout time.Duration) (*Result, error)
	LogsFunc         func(ctx context.Context, opts LogsOptions, w io.Writer) error
	BuildFunc        func(ctx context.Context, w io.Writer) (*Result, error)
	StatusFunc       func(ctx context.Context) (*Status, error)
	ForceCleanupFunc func(ctx context.Context) (*CleanupResult, error)
	ComposeFiles     []string

	UpCalls    []UpOptions
	DownCalls  []DownOptions
	StopCalls  []time.Duration
	LogsCalls  []LogsOptions
	BuildCalls int

	mu sync.Mutex
}

// Up records the call and delegates to UpFunc.
func (m *MockExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.mu.Unlock()

	if m.UpFunc != nil {
		return m.UpFunc(ctx, opts)
	}
	return &Result{Success: true}, nil
}

// Down records the call and delegates to DownFunc.
func (m *MockExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, opts)
	m.mu.Unlock()

	if m.DownFunc != nil {
		return m.DownFunc(ctx, opts)
	}
	return &Result{Success: true}, nil
}

// Stop records the call and delegates to StopFunc.
func (m *MockExecutor) Stop(ctx context.Context, timeout time.Duration) (*Result, error) {
	m.mu.Lock()
	m.StopCalls = append(m.StopCalls, timeout)
	m.mu.Unlock()

	if m.StopFunc != nil {
		return m.StopFunc(ctx, timeout)
	}
	return &Result{Success: true}, nil
}

// Logs records the call and delegates to LogsFunc.
func (m *MockExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	m.mu.Lock()
	m.LogsCalls = append(m.LogsCalls, opts)
	m.mu.Unlock()

	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, opts, w)
	}
	return nil
}

// Build records the call and delegates to BuildFunc.
func (m *MockExecutor) Build(ctx context.Context, w io.Writer) (*Result, error) {
	m.mu.Lock()
	m.BuildCalls++
	m.mu.Unlock()

	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, w)
	}
	return &Result{Success: true}, nil
}

// Status delegates to StatusFunc.
func (m *MockExecutor) Status(ctx context.Context) (*Status, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &Status{}, nil
}

// ForceCleanup delegates to ForceCleanupFunc.
func (m *MockExecutor) ForceCleanup(ctx context.Context) (*CleanupResult, error) {
	if m.ForceCleanupFunc != nil {
		return m.ForceCleanupFunc(ctx)
	}
	return &CleanupResult{}, nil
}

// GetComposeFiles returns the configured ComposeFiles.
func (m *MockExecutor) GetComposeFiles() []string {
	return m.ComposeFiles
}

// Compile-time interface compliance check.
var (
	_ Executor = (*DefaultExecutor)(nil)
	_ Executor = (*MockExecutor)(nil)
)

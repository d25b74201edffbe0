// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides ProcessManager for abstracting external process execution.

ProcessManager enables testable interaction with the container engine and
the Go toolchain. All exec.Command calls in the stack and CI code go
through this interface so unit tests can mock process execution.
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// All methods accept a context.Context for cancellation and timeout support.
type ProcessManager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Stdout output
	//   - error: Non-nil if command fails; stderr is folded into the error
	//
	// # Examples
	//
	//   output, err := pm.Run(ctx, "podman", "ps", "--format", "json")
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDir executes a command synchronously in the given working
	// directory. Compose operations need this because compose resolves
	// relative build contexts against the working directory.
	RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	// RunWithEnv executes a command in dir with extra environment
	// variables appended to the inherited environment. Compose needs
	// this to inject stack configuration without mutating the CLI's
	// own environment.
	RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command with data piped to stdin.
	// Used for `podman secret create <name> -` style commands so secret
	// values never appear in argv.
	RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// RunStreaming executes a command with stdout/stderr attached to the
	// given writers. Used for log following and interactive-ish output
	// (compose up, go test).
	RunStreaming(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error

	// IsRunning checks if a process matching the pattern exists (pgrep -f).
	//
	// # Outputs
	//
	//   - bool: True if at least one matching process is running
	//   - error: Non-nil if detection fails (not for "not found")
	IsRunning(ctx context.Context, pattern string) (bool, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
//
// This is the production implementation that executes real processes.
// Use MockProcessManager in tests instead.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a new DefaultProcessManager.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return pm.RunInDir(ctx, "", name, args...)
}

// RunInDir executes a command in dir and returns its output.
func (pm *DefaultProcessManager) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in error for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunWithEnv executes a command in dir with extra environment variables.
func (pm *DefaultProcessManager) RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunWithInput executes a command with data piped to stdin.
func (pm *DefaultProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunStreaming executes a command with output attached to the writers.
func (pm *DefaultProcessManager) RunStreaming(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// IsRunning checks if a process matching the pattern exists.
func (pm *DefaultProcessManager) IsRunning(ctx context.Context, pattern string) (bool, error) {
	cmd := exec.CommandContext(ctx, "pgrep", "-f", pattern)
	_, err := cmd.Output()

	if err != nil {
		// pgrep exits 1 when no processes match - not an error
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("pgrep failed: %w", err)
	}
	return true, nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it will panic.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
//	        if name == "podman" && args[0] == "ps" {
//	            return []byte("[]"), nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", name)
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run or RunInDir is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithEnvFunc is called when RunWithEnv is invoked.
	// Falls back to RunFunc when nil.
	RunWithEnvFunc func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

	// RunWithInputFunc is called when RunWithInput is invoked
	RunWithInputFunc func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// RunStreamingFunc is called when RunStreaming is invoked
	RunStreamingFunc func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error

	// IsRunningFunc is called when IsRunning is invoked
	IsRunningFunc func(ctx context.Context, pattern string) (bool, error)

	// Calls records all method invocations for verification
	Calls []ProcessManagerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ProcessManagerCall records a single method invocation.
type ProcessManagerCall struct {
	Method string
	Dir    string
	Name   string
	Args   []string
	Env    []string
	Input  []byte
}

func (m *MockProcessManager) record(call ProcessManagerCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(ProcessManagerCall{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunInDir delegates to RunFunc and records the call with its directory.
func (m *MockProcessManager) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.record(ProcessManagerCall{Method: "RunInDir", Dir: dir, Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithEnv delegates to RunWithEnvFunc (or RunFunc) and records the call.
func (m *MockProcessManager) RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	m.record(ProcessManagerCall{Method: "RunWithEnv", Dir: dir, Name: name, Args: args, Env: env})
	if m.RunWithEnvFunc != nil {
		return m.RunWithEnvFunc(ctx, dir, env, name, args...)
	}
	if m.RunFunc == nil {
		panic("MockProcessManager.RunWithEnvFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithInput delegates to RunWithInputFunc and records the call.
func (m *MockProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	m.record(ProcessManagerCall{Method: "RunWithInput", Name: name, Args: args, Input: input})
	if m.RunWithInputFunc == nil {
		panic("MockProcessManager.RunWithInputFunc not set")
	}
	return m.RunWithInputFunc(ctx, name, input, args...)
}

// RunStreaming delegates to RunStreamingFunc and records the call.
func (m *MockProcessManager) RunStreaming(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
	m.record(ProcessManagerCall{Method: "RunStreaming", Dir: dir, Name: name, Args: args})
	if m.RunStreamingFunc == nil {
		panic("MockProcessManager.RunStreamingFunc not set")
	}
	return m.RunStreamingFunc(ctx, dir, stdout, stderr, name, args...)
}

// IsRunning delegates to IsRunningFunc and records the call.
func (m *MockProcessManager) IsRunning(ctx context.Context, pattern string) (bool, error) {
	m.record(ProcessManagerCall{Method: "IsRunning", Name: pattern})
	if m.IsRunningFunc == nil {
		panic("MockProcessManager.IsRunningFunc not set")
	}
	return m.IsRunningFunc(ctx, pattern)
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// runnerCall records one Runner invocation.
type runnerCall struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

// mockRunner implements Runner for testing.
type mockRunner struct {
	RunWithEnvFunc   func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
	RunStreamingFunc func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error
	Calls            []runnerCall
}

func (m *mockRunner) RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, runnerCall{Dir: dir, Env: env, Name: name, Args: args})
	if m.RunWithEnvFunc != nil {
		return m.RunWithEnvFunc(ctx, dir, env, name, args...)
	}
	return []byte(""), nil
}

func (m *mockRunner) RunStreaming(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
	m.Calls = append(m.Calls, runnerCall{Dir: dir, Name: name, Args: args})
	if m.RunStreamingFunc != nil {
		return m.RunStreamingFunc(ctx, dir, stdout, stderr, name, args...)
	}
	return nil
}

// createTestExecutor creates an executor with a mock runner and a stat
// function that reports the override file as missing.
func createTestExecutor(t *testing.T, runner *mockRunner) *DefaultExecutor {
	t.Helper()

	executor, err := NewDefaultExecutor(Config{
		StackDir: "/opt/convana/deploy",
	}, runner)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	executor.osStatFunc = func(path string) (os.FileInfo, error) {
		if strings.Contains(path, "override") {
			return nil, os.ErrNotExist
		}
		return nil, nil
	}
	return executor
}

// =============================================================================
// UNIT TESTS: Configuration
// =============================================================================

func TestNewDefaultExecutor_AppliesDefaults(t *testing.T) {
	executor, err := NewDefaultExecutor(Config{StackDir: "/tmp/stack"}, &mockRunner{})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if executor.config.ProjectName != "convana" {
		t.Errorf("expected project convana, got %q", executor.config.ProjectName)
	}
	if executor.config.Runtime != "podman" {
		t.Errorf("expected runtime podman, got %q", executor.config.Runtime)
	}
	if executor.config.BaseFile != "compose.yaml" {
		t.Errorf("expected base file compose.yaml, got %q", executor.config.BaseFile)
	}
	if executor.config.ContainerNamePrefix != "convana-" {
		t.Errorf("expected prefix convana-, got %q", executor.config.ContainerNamePrefix)
	}
	if executor.config.DefaultTimeout != 5*time.Minute {
		t.Errorf("expected 5m timeout, got %v", executor.config.DefaultTimeout)
	}
}

func TestNewDefaultExecutor_RequiresStackDir(t *testing.T) {
	_, err := NewDefaultExecutor(Config{}, &mockRunner{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

func TestNewDefaultExecutor_RejectsUnknownRuntime(t *testing.T) {
	_, err := NewDefaultExecutor(Config{StackDir: "/tmp", Runtime: "containerd"}, &mockRunner{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

// =============================================================================
// UNIT TESTS: Up
// =============================================================================

func TestUp_BuildsExpectedCommand(t *testing.T) {
	runner := &mockRunner{}
	executor := createTestExecutor(t, runner)

	result, err := executor.Up(context.Background(), UpOptions{
		ForceBuild:    true,
		RemoveOrphans: true,
		Env:           map[string]string{"LLM_BACKEND_TYPE": "claude"},
	})

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.Calls))
	}

	call := runner.Calls[0]
	if call.Name != "podman-compose" {
		t.Errorf("expected podman-compose, got %q", call.Name)
	}
	if call.Dir != "/opt/convana/deploy" {
		t.Errorf("expected stack dir as working dir, got %q", call.Dir)
	}

	joined := strings.Join(call.Args, " ")
	for _, want := range []string{"-p convana", "up -d", "--build", "--remove-orphans", "-f /opt/convana/deploy/compose.yaml"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got: %s", want, joined)
		}
	}
	if strings.Contains(joined, "override") {
		t.Errorf("missing override file should not be layered: %s", joined)
	}
	if len(call.Env) != 1 || call.Env[0] != "LLM_BACKEND_TYPE=claude" {
		t.Errorf("expected env injection, got %v", call.Env)
	}
}

func TestUp_DockerRuntimeUsesComposeSubcommand(t *testing.T) {
	runner := &mockRunner{}
	executor, err := NewDefaultExecutor(Config{
		StackDir: "/opt/convana/deploy",
		Runtime:  "docker",
	}, runner)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	executor.osStatFunc = func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }

	if _, err := executor.Up(context.Background(), UpOptions{}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	call := runner.Calls[0]
	if call.Name != "docker" {
		t.Errorf("expected docker, got %q", call.Name)
	}
	if len(call.Args) == 0 || call.Args[0] != "compose" {
		t.Errorf("expected compose subcommand first, got %v", call.Args)
	}
}

func TestUp_RejectsInvalidEnvKeys(t *testing.T) {
	runner := &mockRunner{}
	executor := createTestExecutor(t, runner)

	_, err := executor.Up(context.Background(), UpOptions{
		Env: map[string]string{"BAD;KEY": "x"},
	})

	if !errors.Is(err, ErrInvalidEnvVar) {
		t.Errorf("expected ErrInvalidEnvVar, got: %v", err)
	}
	if len(runner.Calls) != 0 {
		t.Error("no command should run with invalid env keys")
	}
}

// =============================================================================
// UNIT TESTS: Down and Stop
// =============================================================================

func TestDown_VolumesFlag(t *testing.T) {
	runner := &mockRunner{}
	executor := createTestExecutor(t, runner)

	if _, err := executor.Down(context.Background(), DownOptions{RemoveVolumes: true}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	joined := strings.Join(runner.Calls[0].Args, " ")
	if !strings.Contains(joined, "down") || !strings.Contains(joined, "-v") {
		t.Errorf("expected down -v, got: %s", joined)
	}
}

func TestStop_BuildsStopCommand(t *testing.T) {
	runner := &mockRunner{}
	executor := createTestExecutor(t, runner)

	if _, err := executor.Stop(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	joined := strings.Join(runner.Calls[0].Args, " ")
	if !strings.HasSuffix(joined, "stop") {
		t.Errorf("expected stop command, got: %s", joined)
	}
}

// =============================================================================
// UNIT TESTS: Status parsing
// =============================================================================

func TestStatus_ParsesPodmanJSONArray(t *testing.T) {
	runner := &mockRunner{
		RunWithEnvFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
			return []byte(`[
				{"Names": ["convana-backend"], "State": "running", "Image": "localhost/convana-backend:latest"},
				{"Names": ["convana-cache"], "State": "exited", "Image": "docker.io/library/redis:7-alpine"}
			]`), nil
		},
	}
	executor := createTestExecutor(t, runner)

	status, err := executor.Status(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(status.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(status.Services))
	}
	if status.Running != 1 || status.Stopped != 1 {
		t.Errorf("expected 1 running / 1 stopped, got %d / %d", status.Running, status.Stopped)
	}
	if status.Services[0].Name != "backend" {
		t.Errorf("expected prefix stripped service name, got %q", status.Services[0].Name)
	}
	if status.Services[0].ContainerName != "convana-backend" {
		t.Errorf("expected container name preserved, got %q", status.Services[0].ContainerName)
	}
}

func TestStatus_ParsesDockerLineDelimitedJSON(t *testing.T) {
	runner := &mockRunner{
		RunWithEnvFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
			return []byte(`{"Names": "convana-backend", "State": "running", "Image": "convana-backend"}
{"Names": "convana-frontend", "State": "running", "Image": "convana-frontend"}`), nil
		},
	}
	executor := createTestExecutor(t, runner)

	status, err := executor.Status(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if status.Running != 2 {
		t.Errorf("expected 2 running, got %d", status.Running)
	}
}

func TestStatus_EmptyOutput(t *testing.T) {
	runner := &mockRunner{
		RunWithEnvFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
			return []byte("\n"), nil
		},
	}
	executor := createTestExecutor(t, runner)

	status, err := executor.Status(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(status.Services) != 0 {
		t.Errorf("expected no services, got %d", len(status.Services))
	}
}

// =============================================================================
// UNIT TESTS: ForceCleanup
// =============================================================================

func TestForceCleanup_RemovesMatchingContainers(t *testing.T) {
	runner := &mockRunner{
		RunWithEnvFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
			if len(args) > 0 && args[0] == "ps" {
				return []byte("convana-backend\nconvana-cache\n"), nil
			}
			return []byte(""), nil
		},
	}
	executor := createTestExecutor(t, runner)

	result, err := executor.ForceCleanup(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.ContainersRemoved != 2 {
		t.Errorf("expected 2 removed, got %d", result.ContainersRemoved)
	}
}

func TestForceCleanup_PartialErrors(t *testing.T) {
	runner := &mockRunner{
		RunWithEnvFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
			if len(args) > 0 && args[0] == "ps" {
				return []byte("convana-backend\n"), nil
			}
			if len(args) > 0 && args[0] == "rm" {
				return nil, errors.New("container in use")
			}
			return []byte(""), nil
		},
	}
	executor := createTestExecutor(t, runner)

	result, err := executor.ForceCleanup(context.Background())
	if !errors.Is(err, ErrCleanupPartial) {
		t.Errorf("expected ErrCleanupPartial, got: %v", err)
	}
	if result.ContainersRemoved != 0 {
		t.Errorf("expected 0 removed, got %d", result.ContainersRemoved)
	}
	if len(result.Errors) == 0 {
		t.Error("expected recorded errors")
	}
}

// =============================================================================
// UNIT TESTS: Compose file layering
// =============================================================================

func TestGetComposeFiles_IncludesOverrideWhenPresent(t *testing.T) {
	executor := createTestExecutor(t, &mockRunner{})
	executor.osStatFunc = func(string) (os.FileInfo, error) { return nil, nil }

	files := executor.GetComposeFiles()
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(files), files)
	}
	if !strings.HasSuffix(files[0], "compose.yaml") {
		t.Errorf("expected base first, got %q", files[0])
	}
	if !strings.HasSuffix(files[1], "compose.override.yaml") {
		t.Errorf("expected override second, got %q", files[1])
	}
}

// =============================================================================
// UNIT TESTS: Build
// =============================================================================

func TestBuild_StreamsComposeBuild(t *testing.T) {
	runner := &mockRunner{
		RunStreamingFunc: func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
			stdout.Write([]byte("STEP 1/4: FROM golang\n"))
			return nil
		},
	}
	executor := createTestExecutor(t, runner)

	var out strings.Builder
	result, err := executor.Build(context.Background(), &out)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if !strings.Contains(out.String(), "STEP 1/4") {
		t.Errorf("expected streamed build output, got %q", out.String())
	}

	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.Calls))
	}
	call := runner.Calls[0]
	if call.Name != "podman-compose" {
		t.Errorf("expected podman-compose, got %q", call.Name)
	}
	joined := strings.Join(call.Args, " ")
	if !strings.Contains(joined, "build") {
		t.Errorf("expected build subcommand in args: %v", call.Args)
	}
	if !strings.Contains(joined, "-p convana") {
		t.Errorf("expected project flag in args: %v", call.Args)
	}
}

func TestBuild_PropagatesFailure(t *testing.T) {
	runner := &mockRunner{
		RunStreamingFunc: func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
			return errors.New("exit status 1")
		},
	}
	executor := createTestExecutor(t, runner)

	result, err := executor.Build(context.Background(), io.Discard)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Success {
		t.Error("expected failure result")
	}
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	cliconfig "github.com/eulerianKnight/conversational-analytics/cmd/convana/config"
	"github.com/eulerianKnight/conversational-analytics/cmd/convana/internal/infra/compose"
)

// getStackDir resolves the compose directory from configuration.
// Relative paths are resolved against the current working directory so
// `convana stack start` works from a repo checkout.
func getStackDir() (string, error) {
	dir := cliconfig.Global.Stack.Dir
	if dir == "" {
		dir = "./deploy"
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get the current working directory: %w", err)
	}
	return filepath.Join(cwd, dir), nil
}

// getBackendBaseURL returns the backend address for CLI clients.
func getBackendBaseURL() string {
	// Priority: environment variable (used by tests and CI overrides)
	if url := os.Getenv("CONVANA_BACKEND_URL"); url != "" {
		return url
	}
	if url := cliconfig.Global.Backend.BaseURL; url != "" {
		return url
	}
	return "http://localhost:8000"
}

// newComposeExecutor builds the production compose executor from the
// loaded configuration.
func newComposeExecutor(proc ProcessManager) (*compose.DefaultExecutor, error) {
	stackDir, err := getStackDir()
	if err != nil {
		return nil, err
	}
	return compose.NewDefaultExecutor(compose.Config{
		StackDir:    stackDir,
		ProjectName: cliconfig.Global.Stack.ProjectName,
		Runtime:     cliconfig.Global.Stack.Runtime,
	}, proc)
}

// runStart implements `convana stack start`.
func runStart(cmd *cobra.Command, args []string) {
	cfg := cliconfig.Global
	llmBackend := cfg.Backend.LLMBackend
	if backendType != "" {
		llmBackend = backendType
		fmt.Printf("Overriding LLM backend to %s\n", backendType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	proc := NewDefaultProcessManager()
	executor, err := newComposeExecutor(proc)
	if err != nil {
		log.Fatalf("Failed to prepare compose executor: %v", err)
	}

	stackDir, _ := getStackDir()
	composeFile := filepath.Join(stackDir, "compose.yaml")
	if _, err := os.Stat(composeFile); os.IsNotExist(err) {
		log.Fatalf("Stack files not found in %s. Run from the project root or set stack.dir in ~/.convana/convana.yaml.", stackDir)
	}

	// Secret check: only required secrets and the active LLM backend's
	// key block startup.
	fmt.Println("--- Checking Secrets ---")
	for _, secret := range requiredSecrets {
		mustHave := secret.Required ||
			(llmBackend == "claude" && secret.Name == "claude_api_key") ||
			(llmBackend == "openai" && secret.Name == "openai_api_key")
		if !mustHave {
			continue
		}
		if !ensureSecretExists(ctx, proc, cfg.Stack.Runtime, secret) {
			log.Fatalf("Failed to verify secret: %s. Cannot proceed.", secret.Name)
		}
	}
	fmt.Println("------------------------")

	// Assemble the env set injected into compose. Values come from the
	// caller's environment so CI can configure the stack without a
	// config file.
	env := EmptyEnvVars()
	env.MustAdd("LLM_BACKEND_TYPE", llmBackend, false)
	for _, key := range []string{
		"SNOWFLAKE_ACCOUNT", "SNOWFLAKE_USER", "SNOWFLAKE_WAREHOUSE",
		"SNOWFLAKE_DATABASE", "SNOWFLAKE_SCHEMA", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		if val := os.Getenv(key); val != "" {
			env.MustAdd(key, val, false)
		}
	}
	if !cfg.Features.Alerts {
		env.MustAdd("ALERTS_ENABLED", "false", false)
	}

	if env.Len() > 0 {
		fmt.Println("Injecting stack configuration:")
		for _, line := range env.RedactedSlice() {
			fmt.Printf("    - %s\n", line)
		}
	}

	printStartupSummary(llmBackend)

	if forceBuild {
		fmt.Println("Force build enabled: Recompiling container images")
	}
	result, err := executor.Up(ctx, compose.UpOptions{
		ForceBuild:    forceBuild,
		RemoveOrphans: true,
		Env:           env.ToMap(),
	})
	if err != nil {
		log.Fatalf("Failed to start services: %v\nCommand: %s", err, result.Command)
	}

	// Wait for the stack to come up, matching the container health
	// check warm-up window.
	fmt.Println("\nWaiting for services to become healthy...")
	checkerConfig := DefaultHealthCheckerConfig()
	checkerConfig.Runtime = cfg.Stack.Runtime
	checker := NewDefaultHealthChecker(proc, checkerConfig)

	waitResult, err := checker.WaitForServices(ctx, DefaultServiceDefinitions(), DefaultWaitOptions())
	if err != nil {
		fmt.Printf("\n%sStack started, but not all services became healthy:%s\n", colorYellow, colorReset)
		for _, svc := range waitResult.Services {
			fmt.Printf("   %s: %s (%s)\n", svc.Name, svc.State, svc.Message)
		}
		fmt.Println("Check 'convana stack logs' for details.")
		os.Exit(CLIExitFindings)
	}

	fmt.Printf("\n%sAnalytics stack started in %v.%s\n", colorGreen, waitResult.Duration.Round(time.Second), colorReset)
	fmt.Printf("Backend API available at %s\n", getBackendBaseURL())
	fmt.Println("Frontend available at http://localhost:8501")
}

// printStartupSummary tells the user what configuration is in effect.
func printStartupSummary(llmBackend string) {
	fmt.Println("\n--- Stack Startup Configuration ---")
	fmt.Printf("   LLM Backend: \x1b[32m%s\x1b[0m\n", llmBackend)
	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" {
		fmt.Printf("   Warehouse:   Snowflake (%s)\n", os.Getenv("SNOWFLAKE_ACCOUNT"))
	} else {
		fmt.Println("   Warehouse:   none (lightweight mode, analytics endpoints return 503)")
	}
	fmt.Printf("   Runtime:     %s\n", cliconfig.Global.Stack.Runtime)
	fmt.Println("-----------------------------------")
}

// runStop implements `convana stack stop`.
func runStop(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	executor, err := newComposeExecutor(NewDefaultProcessManager())
	if err != nil {
		log.Fatalf("Failed to prepare compose executor: %v", err)
	}

	fmt.Println("Stopping analytics stack services...")
	if _, err := executor.Stop(ctx, 30*time.Second); err != nil {
		log.Printf("Warning: Failed to stop services: %v", err)
		return
	}
	fmt.Println("Analytics stack services stopped.")
}

// runDestroy implements `convana stack destroy`.
func runDestroy(cmd *cobra.Command, args []string) {
	warning := "This stops and deletes all stack containers."
	if removeVolumes {
		warning = "This stops and deletes all stack containers AND data volumes " +
			"(the app database, query history, and cache). This cannot be undone."
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Destroy the analytics stack?").
				Description(warning).
				Affirmative("Destroy").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil || !confirmed {
		fmt.Println("Aborted. No changes were made.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	executor, err := newComposeExecutor(NewDefaultProcessManager())
	if err != nil {
		log.Fatalf("Failed to prepare compose executor: %v", err)
	}

	fmt.Println("Destroying analytics stack...")
	if _, err := executor.Down(ctx, compose.DownOptions{
		RemoveOrphans: true,
		RemoveVolumes: removeVolumes,
	}); err != nil {
		fmt.Printf("Compose down failed (%v), attempting force cleanup...\n", err)
		result, cleanupErr := executor.ForceCleanup(ctx)
		if cleanupErr != nil {
			log.Fatalf("Force cleanup incomplete: %v (errors: %v)", cleanupErr, result.Errors)
		}
		fmt.Printf("Force-removed %d containers.\n", result.ContainersRemoved)
	}

	fmt.Println("\nAnalytics stack destroyed.")
}

// runStatus implements `convana stack status`.
func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	executor, err := newComposeExecutor(NewDefaultProcessManager())
	if err != nil {
		log.Fatalf("Failed to prepare compose executor: %v", err)
	}

	status, err := executor.Status(ctx)
	if err != nil {
		log.Fatalf("Failed to get stack status: %v", err)
	}

	if len(status.Services) == 0 {
		fmt.Println("No stack containers found. Start the stack with 'convana stack start'.")
		return
	}

	headerStyle := lipgloss.NewStyle().Bold(true)
	runningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	stoppedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SERVICE", "CONTAINER", "STATE", "IMAGE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 {
				if status.Services[row].State == "running" {
					return runningStyle
				}
				return stoppedStyle
			}
			return lipgloss.NewStyle()
		})
	for _, svc := range status.Services {
		t.Row(svc.Name, svc.ContainerName, svc.State, svc.Image)
	}

	fmt.Println(t.Render())
	fmt.Printf("%d running, %d stopped\n", status.Running, status.Stopped)
}

// runLogs implements `convana stack logs`.
func runLogs(cmd *cobra.Command, args []string) {
	executor, err := newComposeExecutor(NewDefaultProcessManager())
	if err != nil {
		log.Fatalf("Failed to prepare compose executor: %v", err)
	}

	if len(args) > 0 {
		fmt.Printf("Streaming logs for %v\n", args)
	} else {
		fmt.Println("Streaming logs for all services")
	}

	err = executor.Logs(context.Background(), compose.LogsOptions{
		Follow:   logFollow,
		Services: args,
		Tail:     logTail,
	}, os.Stdout)
	if err != nil {
		fmt.Println("\nLog streaming stopped or encountered an error")
	}
}

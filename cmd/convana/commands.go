// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	backendType   string // CLI override for backend.llm_backend (claude/openai/ollama)
	forceBuild    bool
	removeVolumes bool
	logFollow     bool
	logTail       int
	chatSessionID string

	healthJSONOutput bool
	healthVerbose    bool
	healthTimeout    string

	smokeTimeout string

	rootCmd = &cobra.Command{
		Use:   "convana",
		Short: "A cli to manage the conversational analytics stack",
		Long: `Convana deploys and operates a conversational analytics stack:
a Go backend that turns natural-language questions into Snowflake SQL,
a Streamlit frontend, and a Redis cache, all running as containers.`,
	}

	// --- Stack Management ---
	stackCmd = &cobra.Command{
		Use:   "stack",
		Short: "Manage the local analytics stack on your machine",
	}
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start all stack services and wait for them to become healthy",
		Run:   runStart, // Defined in cmd_stack.go
	}
	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop all stack services",
		Run:   runStop, // Defined in cmd_stack.go
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "DANGER: Stops and deletes all stack containers (and optionally data)",
		Run:   runDestroy, // Defined in cmd_stack.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the state of stack containers",
		Run:   runStatus, // Defined in cmd_stack.go
	}
	logsCmd = &cobra.Command{
		Use:   "logs [service_name]",
		Short: "Stream logs from a stack service container",
		Run:   runLogs, // Defined in cmd_stack.go
	}

	// --- Health / Smoke ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Display a health report for the running stack",
		Long: `Checks the backend, frontend, and cache services and prints a
health report. Exits with code 1 when a critical service is down.

Examples:
  convana health              # Formatted health report
  convana health --json       # JSON output for scripting
  convana health --verbose    # Per-service latency details`,
		Run: runHealthCommand, // Defined in cmd_health.go
	}
	smokeCmd = &cobra.Command{
		Use:   "smoke",
		Short: "Run smoke checks against the running stack (for CI)",
		Long: `Waits for all critical services to become healthy and exits
non-zero on the first critical failure. Intended for CI pipelines after
'convana stack start'.`,
		Run: runSmokeCommand, // Defined in cmd_smoke.go
	}

	// --- CI / Build Automation ---
	ciCmd = &cobra.Command{
		Use:   "ci",
		Short: "Build and test automation used by CI and local development",
	}
	ciInstallCmd = &cobra.Command{
		Use:   "install",
		Short: "Download Go module dependencies",
		Run:   runCIInstall, // Defined in cmd_ci.go
	}
	ciTestCmd = &cobra.Command{
		Use:   "test",
		Short: "Run the Go test suite",
		Run:   runCITest, // Defined in cmd_ci.go
	}
	ciLintCmd = &cobra.Command{
		Use:   "lint",
		Short: "Run go vet across the module",
		Run:   runCILint, // Defined in cmd_ci.go
	}
	ciFmtCmd = &cobra.Command{
		Use:   "fmt",
		Short: "Check gofmt formatting (fails on unformatted files)",
		Run:   runCIFmt, // Defined in cmd_ci.go
	}
	ciBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the stack container images",
		Run:   runCIBuild, // Defined in cmd_ci.go
	}

	// --- Secrets ---
	secretsCmd = &cobra.Command{
		Use:   "secrets",
		Short: "Manage container secrets for the stack",
	}
	secretsSetCmd = &cobra.Command{
		Use:   "set [secret_name]",
		Short: "Set a container secret (prompts for the value)",
		Args:  cobra.ExactArgs(1),
		Run:   runSecretsSet, // Defined in secrets.go
	}
	secretsCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Check which required secrets exist",
		Run:   runSecretsCheck, // Defined in secrets.go
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive analytics chat session against the backend",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}
)

// init runs when the Go program starts
func init() {
	// --- Stack Commands ---
	rootCmd.AddCommand(stackCmd)
	stackCmd.AddCommand(startCmd)
	stackCmd.AddCommand(stopCmd)
	stackCmd.AddCommand(destroyCmd)
	stackCmd.AddCommand(statusCmd)
	stackCmd.AddCommand(logsCmd)
	startCmd.Flags().StringVar(&backendType, "backend", "", "Set LLM backend (claude, "+
		"openai, ollama). Overrides the configured default.")
	startCmd.Flags().BoolVar(&forceBuild, "build", false, "Force rebuild of container images")
	destroyCmd.Flags().BoolVar(&removeVolumes, "volumes", false,
		"Also remove named volumes (deletes the app database and cache data)")
	logsCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVar(&logTail, "tail", 0, "Number of lines to show from the end of the logs")

	// --- Health / Smoke ---
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false, "Output as JSON for scripting")
	healthCmd.Flags().BoolVarP(&healthVerbose, "verbose", "v", false, "Show detailed per-service information")
	healthCmd.Flags().StringVar(&healthTimeout, "timeout", "10s", "Overall timeout for the health check")

	rootCmd.AddCommand(smokeCmd)
	smokeCmd.Flags().StringVar(&smokeTimeout, "timeout", "40s", "How long to wait for services to become healthy")

	// --- CI ---
	rootCmd.AddCommand(ciCmd)
	ciCmd.AddCommand(ciInstallCmd)
	ciCmd.AddCommand(ciTestCmd)
	ciCmd.AddCommand(ciLintCmd)
	ciCmd.AddCommand(ciFmtCmd)
	ciCmd.AddCommand(ciBuildCmd)

	// --- Secrets ---
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsCheckCmd)

	// --- Chat ---
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume a conversation using a specific session ID")
}

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
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// runChatCommand starts an interactive analytics chat session.
//
// # Description
//
// Prompts for backend credentials, authenticates, and runs the
// question/answer loop until the user exits. SIGINT/SIGTERM trigger a
// graceful shutdown.
//
// # Assumptions
//
//   - The backend is running and reachable at the configured base URL
func runChatCommand(cmd *cobra.Command, args []string) {
	baseURL := getBackendBaseURL()
	fmt.Printf("Connecting to %s\n", baseURL)

	username, password, err := promptForCredentials()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Login cancelled: %v\n", err)
		os.Exit(CLIExitError)
	}

	client := NewDefaultAnalyticsClient(baseURL)

	loginCtx, loginCancel := context.WithTimeout(context.Background(), loginDeadline)
	err = client.Login(loginCtx, username, password)
	loginCancel()
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthFailed):
			fmt.Fprintln(os.Stderr, "Invalid username or password.")
		case errors.Is(err, ErrBackendUnavailable):
			fmt.Fprintf(os.Stderr, "Cannot reach the backend at %s. Is the stack running?\n", baseURL)
			fmt.Fprintln(os.Stderr, "Start it with 'convana stack start'.")
		default:
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		}
		os.Exit(CLIExitError)
	}

	fmt.Printf("%s✓ Logged in as %s%s\n\n", colorGreen, username, colorReset)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reader := NewInteractiveInputReader(50, "> ")
	runner := NewAnalyticsChatRunner(client, reader, ChatRunnerConfig{
		SessionID: chatSessionID,
	})

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Chat session ended with error: %v\n", err)
		os.Exit(CLIExitError)
	}
}

// promptForCredentials collects the backend username and password.
// The password is never echoed and never passed through argv.
func promptForCredentials() (string, string, error) {
	var username, password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&username),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	if username == "" {
		return "", "", fmt.Errorf("username is required")
	}
	return username, password, nil
}

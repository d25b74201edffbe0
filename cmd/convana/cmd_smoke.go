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
	"os"
	"time"

	"github.com/spf13/cobra"

	cliconfig "github.com/eulerianKnight/conversational-analytics/cmd/convana/config"
)

// runSmokeCommand executes the CI smoke check.
//
// # Description
//
// Waits for the critical stack services to become healthy and exits
// non-zero as soon as one fails. Designed to run in CI right after
// 'convana stack start', with the same warm-up window the container
// health checks use.
//
// # Outputs
//
// Prints a pass/fail line per service. Exit code 0 on success, 1 when
// a critical service never became healthy, 2 on invalid input.
func runSmokeCommand(cmd *cobra.Command, args []string) {
	timeout, err := time.ParseDuration(smokeTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timeout %q: %v\n", smokeTimeout, err)
		os.Exit(CLIExitError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+10*time.Second)
	defer cancel()

	proc := NewDefaultProcessManager()
	checkerConfig := DefaultHealthCheckerConfig()
	checkerConfig.Runtime = cliconfig.Global.Stack.Runtime
	checker := NewDefaultHealthChecker(proc, checkerConfig)

	opts := DefaultWaitOptions()
	opts.Timeout = timeout
	opts.FailFast = true
	opts.SkipOptional = true

	fmt.Printf("Running smoke checks (timeout %v)...\n", timeout)

	result, waitErr := checker.WaitForServices(ctx, DefaultServiceDefinitions(), opts)
	for _, svc := range result.Services {
		switch svc.State {
		case HealthStateHealthy:
			fmt.Printf("  %s✓%s %s\n", colorGreen, colorReset, svc.Name)
		case HealthStateSkipped:
			fmt.Printf("  %s-%s %s (optional, skipped)\n", colorBlue, colorReset, svc.Name)
		default:
			fmt.Printf("  %s✗%s %s: %s\n", colorRed, colorReset, svc.Name, svc.Message)
		}
	}

	if waitErr != nil {
		fmt.Printf("\n%sSmoke checks FAILED%s after %v", colorRed, colorReset, result.Duration.Round(time.Second))
		if len(result.FailedCritical) > 0 {
			fmt.Printf(" (failed: %v)", result.FailedCritical)
		}
		fmt.Println()
		os.Exit(CLIExitFindings)
	}

	fmt.Printf("\n%sSmoke checks passed%s in %v\n", colorGreen, colorReset, result.Duration.Round(time.Second))
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cliconfig "github.com/eulerianKnight/conversational-analytics/cmd/convana/config"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// HealthReport is the aggregated outcome of `convana health`.
type HealthReport struct {
	// ID is a unique identifier for this report.
	ID string `json:"id"`

	// Timestamp is when the report was generated.
	Timestamp time.Time `json:"timestamp"`

	// OverallHealthy is true when every critical service is healthy.
	OverallHealthy bool `json:"overall_healthy"`

	// Services contains the per-service results.
	Services []HealthStatus `json:"services"`

	// Duration is how long the full check took.
	Duration time.Duration `json:"duration_ns"`
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runHealthCommand executes the health checks and displays results.
//
// # Description
//
// Checks the backend, frontend, and cache services concurrently and
// formats the results based on the output mode.
//
// # Inputs
//
//   - cmd: Cobra command (unused)
//   - args: Command arguments (unused)
//
// # Outputs
//
// Prints a formatted health report to stdout.
//
// # Limitations
//
//   - Exits with code 1 when a critical service is not healthy
//
// # Assumptions
//
//   - Stack services are deployed via compose on localhost
func runHealthCommand(cmd *cobra.Command, args []string) {
	timeout, err := time.ParseDuration(healthTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timeout %q: %v\n", healthTimeout, err)
		os.Exit(CLIExitError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	proc := NewDefaultProcessManager()
	checkerConfig := DefaultHealthCheckerConfig()
	checkerConfig.Runtime = cliconfig.Global.Stack.Runtime
	checker := NewDefaultHealthChecker(proc, checkerConfig)

	services := DefaultServiceDefinitions()
	started := time.Now()

	statuses, err := checker.CheckAllServices(ctx, services)
	if err != nil {
		OutputError(healthJSONOutput, "Health check failed", err)
		os.Exit(CLIExitError)
	}

	report := &HealthReport{
		ID:             GenerateID(),
		Timestamp:      time.Now(),
		OverallHealthy: true,
		Services:       statuses,
		Duration:       time.Since(started),
	}
	for i, svc := range services {
		if svc.Critical && statuses[i].State != HealthStateHealthy {
			report.OverallHealthy = false
		}
	}

	if healthJSONOutput {
		outputHealthJSON(report)
	} else {
		outputHealthReport(report, services)
	}

	if !report.OverallHealthy {
		os.Exit(CLIExitFindings)
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// outputHealthJSON outputs the report as JSON for automation.
func outputHealthJSON(report *HealthReport) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(CLIExitError)
	}
}

// outputHealthReport outputs the formatted health report.
//
// # Description
//
// Formats and displays the health report in a human-readable format
// with box drawing characters.
//
// # Limitations
//
//   - Uses Unicode box drawing characters
//
// # Assumptions
//
//   - Terminal supports Unicode
func outputHealthReport(report *HealthReport, services []ServiceDefinition) {
	width := 70

	// Header
	printBoxTop(width)
	printBoxCenter("CONVANA HEALTH REPORT", width)
	printBoxCenter(fmt.Sprintf("Generated: %s", report.Timestamp.Format("2006-01-02 15:04:05")), width)
	printBoxSeparator(width)

	// Overall State
	if report.OverallHealthy {
		printBoxLine(fmt.Sprintf("Overall State: %s✓ HEALTHY%s", colorGreen, colorReset), width)
	} else {
		printBoxLine(fmt.Sprintf("Overall State: %s✗ UNHEALTHY%s", colorRed, colorReset), width)
	}

	// Services
	printBoxSeparator(width)
	printBoxLine("Services:", width)
	for i, status := range report.Services {
		icon := getStateIcon(status.State)
		color := getStateColor(status.State)

		line := fmt.Sprintf("  %s%s %s%s", color, icon, colorReset, status.Name)
		line += fmt.Sprintf(" %s[%s]%s", color, strings.ToUpper(string(status.State)), colorReset)
		if i < len(services) && !services[i].Critical {
			line += " (optional)"
		}
		printBoxLine(line, width)

		if healthVerbose {
			if status.Message != "" {
				for _, wrapped := range wrapText(status.Message, width-12) {
					printBoxLine("      → "+wrapped, width)
				}
			}
			printBoxLine(fmt.Sprintf("      → latency: %v", status.Latency.Round(time.Millisecond)), width)
		}
	}

	// Footer
	printBoxBottom(width)
	fmt.Printf("\nChecks completed in %v\n", report.Duration.Round(time.Millisecond))

	if !report.OverallHealthy {
		fmt.Println("Check 'convana stack logs' for details on failing services.")
	}
}

// =============================================================================
// BOX DRAWING HELPERS
// =============================================================================

const (
	boxTopLeft     = "╔"
	boxTopRight    = "╗"
	boxBottomLeft  = "╚"
	boxBottomRight = "╝"
	boxHorizontal  = "═"
	boxVertical    = "║"
	boxLeftT       = "╠"
	boxRightT      = "╣"

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func printBoxTop(width int) {
	fmt.Print(boxTopLeft)
	for i := 0; i < width-2; i++ {
		fmt.Print(boxHorizontal)
	}
	fmt.Println(boxTopRight)
}

func printBoxBottom(width int) {
	fmt.Print(boxBottomLeft)
	for i := 0; i < width-2; i++ {
		fmt.Print(boxHorizontal)
	}
	fmt.Println(boxBottomRight)
}

func printBoxSeparator(width int) {
	fmt.Print(boxLeftT)
	for i := 0; i < width-2; i++ {
		fmt.Print(boxHorizontal)
	}
	fmt.Println(boxRightT)
}

func printBoxLine(content string, width int) {
	// Calculate visible length (excluding ANSI codes)
	visibleLen := visibleLength(content)
	padding := width - 4 - visibleLen
	if padding < 0 {
		padding = 0
	}

	fmt.Printf("%s %s%s %s\n", boxVertical, content, strings.Repeat(" ", padding), boxVertical)
}

func printBoxCenter(content string, width int) {
	visibleLen := visibleLength(content)
	totalPadding := width - 4 - visibleLen
	leftPad := totalPadding / 2
	rightPad := totalPadding - leftPad

	fmt.Printf("%s %s%s%s %s\n", boxVertical,
		strings.Repeat(" ", leftPad), content, strings.Repeat(" ", rightPad), boxVertical)
}

// visibleLength returns the visible length of a string, excluding ANSI escape codes.
func visibleLength(s string) int {
	// Simple ANSI code stripper
	inEscape := false
	visible := 0
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		visible++
	}
	return visible
}

// wrapText wraps text to the specified width.
func wrapText(text string, width int) []string {
	var lines []string
	words := strings.Fields(text)
	if len(words) == 0 {
		return lines
	}

	currentLine := words[0]
	for _, word := range words[1:] {
		if len(currentLine)+1+len(word) <= width {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}
	return lines
}

// =============================================================================
// STATE FORMATTING
// =============================================================================

func getStateIcon(state HealthState) string {
	switch state {
	case HealthStateHealthy:
		return "✓"
	case HealthStateUnhealthy:
		return "✗"
	case HealthStateUnreachable:
		return "⚠"
	case HealthStateSkipped:
		return "◐"
	default:
		return "?"
	}
}

func getStateColor(state HealthState) string {
	switch state {
	case HealthStateHealthy:
		return colorGreen
	case HealthStateUnhealthy:
		return colorRed
	case HealthStateUnreachable:
		return colorYellow
	case HealthStateSkipped:
		return colorBlue
	default:
		return colorCyan
	}
}

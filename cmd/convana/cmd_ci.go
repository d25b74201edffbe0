// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// CI / BUILD AUTOMATION
// =============================================================================
//
// These subcommands replace a Makefile-per-developer setup: CI pipelines
// and local development both call `convana ci <step>` so the steps stay
// identical everywhere. The Makefile in the repo root delegates here.

// runToolStreaming runs a build tool with output wired to the terminal.
func runToolStreaming(timeout time.Duration, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	proc := NewDefaultProcessManager()
	fmt.Printf("$ %s %s\n", name, strings.Join(args, " "))
	return proc.RunStreaming(ctx, "", os.Stdout, os.Stderr, name, args...)
}

// runCIInstall implements `convana ci install`.
func runCIInstall(cmd *cobra.Command, args []string) {
	if err := runToolStreaming(5*time.Minute, "go", "mod", "download"); err != nil {
		log.Fatalf("Dependency download failed: %v", err)
	}
	fmt.Println("Dependencies downloaded.")
}

// runCITest implements `convana ci test`.
func runCITest(cmd *cobra.Command, args []string) {
	testArgs := []string{"test", "-race", "-count=1", "./..."}
	if err := runToolStreaming(15*time.Minute, "go", testArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "\n%sTests FAILED%s\n", colorRed, colorReset)
		os.Exit(CLIExitFindings)
	}
	fmt.Printf("\n%sAll tests passed%s\n", colorGreen, colorReset)
}

// runCILint implements `convana ci lint`.
func runCILint(cmd *cobra.Command, args []string) {
	if err := runToolStreaming(5*time.Minute, "go", "vet", "./..."); err != nil {
		fmt.Fprintf(os.Stderr, "\n%sLint FAILED%s\n", colorRed, colorReset)
		os.Exit(CLIExitFindings)
	}
	fmt.Printf("%sLint passed%s\n", colorGreen, colorReset)
}

// runCIFmt implements `convana ci fmt`.
//
// gofmt -l prints the files that would change; any output means the
// tree is unformatted and the step fails.
func runCIFmt(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	proc := NewDefaultProcessManager()
	var out bytes.Buffer
	if err := proc.RunStreaming(ctx, "", &out, os.Stderr, "gofmt", "-l", "."); err != nil {
		log.Fatalf("gofmt failed: %v", err)
	}

	unformatted := strings.TrimSpace(out.String())
	if unformatted != "" {
		fmt.Fprintf(os.Stderr, "%sUnformatted files:%s\n", colorRed, colorReset)
		for _, file := range strings.Split(unformatted, "\n") {
			fmt.Fprintf(os.Stderr, "  %s\n", file)
		}
		fmt.Fprintln(os.Stderr, "Run 'gofmt -w .' to fix.")
		os.Exit(CLIExitFindings)
	}
	fmt.Printf("%sFormatting OK%s\n", colorGreen, colorReset)
}

// runCIBuild implements `convana ci build`.
//
// Compiles the Go binaries first so image builds fail fast on compile
// errors, then builds the stack container images.
func runCIBuild(cmd *cobra.Command, args []string) {
	if err := runToolStreaming(10*time.Minute, "go", "build", "./..."); err != nil {
		log.Fatalf("Go build failed: %v", err)
	}
	fmt.Printf("%sGo build OK%s\n", colorGreen, colorReset)

	executor, err := newComposeExecutor(NewDefaultProcessManager())
	if err != nil {
		log.Fatalf("Failed to prepare compose executor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	fmt.Println("Building container images...")
	if _, err := executor.Build(ctx, os.Stdout); err != nil {
		log.Fatalf("Image build failed: %v", err)
	}
	fmt.Printf("%sContainer images built%s\n", colorGreen, colorReset)
}

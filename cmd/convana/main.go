// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Command convana manages the conversational analytics stack.

It deploys and operates the backend API, Streamlit frontend, and Redis
cache as containers, runs health and smoke checks against them, manages
container secrets, and provides a terminal chat client against the
backend.

Usage:

	convana stack start [--build] [--backend TYPE]
	convana stack status
	convana health [--json] [--verbose]
	convana smoke
	convana ci test
	convana secrets set snowflake_password
	convana chat

Configuration lives in ~/.convana/convana.yaml and is created with
defaults on first run.
*/
package main

import (
	"log"

	cliconfig "github.com/eulerianKnight/conversational-analytics/cmd/convana/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := cliconfig.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
	}
}

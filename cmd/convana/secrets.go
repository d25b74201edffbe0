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
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	cliconfig "github.com/eulerianKnight/conversational-analytics/cmd/convana/config"
)

// SecretDefinition describes a container secret the stack can use.
type SecretDefinition struct {
	Name        string
	DisplayName string
	Description string
	Required    bool
}

// requiredSecrets lists the secrets the stack consumes. Only Required
// ones block startup; the rest enable optional features (alerts,
// notifications).
var requiredSecrets = []SecretDefinition{
	{
		Name:        "secret_key",
		DisplayName: "JWT Signing Key",
		Description: "Signs backend session tokens. Generate with: openssl rand -hex 32",
		Required:    true,
	},
	{
		Name:        "snowflake_password",
		DisplayName: "Snowflake Password",
		Description: "Password for the configured Snowflake user. Leave empty to run without a warehouse.",
	},
	{
		Name:        "claude_api_key",
		DisplayName: "Anthropic API Key",
		Description: "Required if you select 'claude' as your LLM backend.",
	},
	{
		Name:        "openai_api_key",
		DisplayName: "OpenAI API Key",
		Description: "Required if you select 'openai' as your LLM backend.",
	},
	{
		Name:        "smtp_password",
		DisplayName: "SMTP Password",
		Description: "Enables e-mail alert notifications.",
	},
	{
		Name:        "slack_webhook_url",
		DisplayName: "Slack Webhook URL",
		Description: "Enables Slack alert notifications.",
	},
}

// secretExists checks the container runtime for an existing secret.
func secretExists(ctx context.Context, proc ProcessManager, runtime, name string) bool {
	_, err := proc.Run(ctx, runtime, "secret", "inspect", name)
	return err == nil
}

// storeSecret creates a container secret, piping the value over stdin
// so it never appears in argv or the process table.
func storeSecret(ctx context.Context, proc ProcessManager, runtime, name string, value *memguard.LockedBuffer) error {
	defer value.Destroy()
	_, err := proc.RunWithInput(ctx, runtime, value.Bytes(), "secret", "create", name, "-")
	return err
}

// promptForSecret asks for a secret value interactively. The value is
// moved into a locked buffer as soon as the form returns.
func promptForSecret(def SecretDefinition) (*memguard.LockedBuffer, error) {
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s (%s)", def.DisplayName, def.Name)).
				Description(def.Description).
				EchoMode(huh.EchoModePassword).
				Value(&value),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	buf := memguard.NewBufferFromBytes([]byte(strings.TrimSpace(value)))
	value = ""
	return buf, nil
}

// ensureSecretExists checks for a secret and prompts to create it when
// missing. Returns false only when creation fails; an empty value
// creates an empty placeholder so compose can still mount it.
func ensureSecretExists(ctx context.Context, proc ProcessManager, runtime string, def SecretDefinition) bool {
	if secretExists(ctx, proc, runtime, def.Name) {
		return true
	}

	fmt.Printf("\nMissing secret: %s (%s)\n", def.DisplayName, def.Name)
	fmt.Printf("   %s\n", def.Description)

	buf, err := promptForSecret(def)
	if err != nil {
		log.Printf("Failed to read secret %s: %v", def.Name, err)
		return false
	}

	empty := buf.Size() == 0
	if err := storeSecret(ctx, proc, runtime, def.Name, buf); err != nil {
		log.Printf("Failed to create secret %s: %v", def.Name, err)
		return false
	}

	if empty {
		fmt.Printf("   Created empty placeholder for %s.\n", def.Name)
	} else {
		fmt.Printf("   %s stored successfully.\n", def.DisplayName)
	}
	return true
}

// runSecretsSet implements `convana secrets set <name>`.
func runSecretsSet(cmd *cobra.Command, args []string) {
	name := args[0]

	var def *SecretDefinition
	for i := range requiredSecrets {
		if requiredSecrets[i].Name == name {
			def = &requiredSecrets[i]
			break
		}
	}
	if def == nil {
		fmt.Fprintf(os.Stderr, "Unknown secret %q. Known secrets:\n", name)
		for _, s := range requiredSecrets {
			fmt.Fprintf(os.Stderr, "  %-22s %s\n", s.Name, s.Description)
		}
		os.Exit(CLIExitError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	proc := NewDefaultProcessManager()
	runtime := cliconfig.Global.Stack.Runtime

	buf, err := promptForSecret(*def)
	if err != nil {
		log.Fatalf("Failed to read secret value: %v", err)
	}

	// Replace any existing secret; runtimes reject duplicate names
	if secretExists(ctx, proc, runtime, def.Name) {
		if _, err := proc.Run(ctx, runtime, "secret", "rm", def.Name); err != nil {
			log.Fatalf("Failed to replace existing secret %s: %v", def.Name, err)
		}
	}

	if err := storeSecret(ctx, proc, runtime, def.Name, buf); err != nil {
		log.Fatalf("Failed to store secret %s: %v", def.Name, err)
	}
	fmt.Printf("%s stored successfully.\n", def.DisplayName)
}

// runSecretsCheck implements `convana secrets check`.
func runSecretsCheck(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proc := NewDefaultProcessManager()
	runtime := cliconfig.Global.Stack.Runtime

	missingRequired := false
	fmt.Println("--- Stack Secrets ---")
	for _, def := range requiredSecrets {
		if secretExists(ctx, proc, runtime, def.Name) {
			fmt.Printf("  %s✓%s %-22s %s\n", colorGreen, colorReset, def.Name, def.DisplayName)
			continue
		}
		marker := colorYellow + "○" + colorReset
		if def.Required {
			marker = colorRed + "✗" + colorReset
			missingRequired = true
		}
		fmt.Printf("  %s %-22s %s (missing)\n", marker, def.Name, def.DisplayName)
	}
	fmt.Println("---------------------")

	if missingRequired {
		fmt.Println("Required secrets are missing. Create them with 'convana secrets set <name>'.")
		os.Exit(CLIExitFindings)
	}
}

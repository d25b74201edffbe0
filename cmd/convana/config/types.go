// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

type ConvanaConfig struct {
	// Stack: where the compose files live and which engine runs them
	Stack StackConfig `yaml:"stack"`

	// Backend: how the CLI reaches the analytics API
	Backend BackendConfig `yaml:"backend"`

	// Secrets: pointer to where secrets are stored, engine store or env
	Secrets SecretsConfig `yaml:"secrets"`

	// Features: toggles for optional services
	Features FeatureConfig `yaml:"features"`
}

type StackConfig struct {
	Dir         string `yaml:"dir"`          // e.g. ./deploy
	Runtime     string `yaml:"runtime"`      // "podman" or "docker"
	ProjectName string `yaml:"project_name"` // compose project, e.g. convana
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url"` // e.g. http://localhost:8000
	// LLMBackend can be "claude", "openai", "ollama".
	LLMBackend string `yaml:"llm_backend"`
}

type SecretsConfig struct {
	UseEnv bool `yaml:"use_env"`
}

type FeatureConfig struct {
	Alerts        bool `yaml:"alerts"`
	Observability bool `yaml:"observability"`
}

func DefaultConfig() ConvanaConfig {
	return ConvanaConfig{
		Stack: StackConfig{
			Dir:         "./deploy",
			Runtime:     "podman",
			ProjectName: "convana",
		},
		Backend: BackendConfig{
			BaseURL:    "http://localhost:8000",
			LLMBackend: "claude",
		},
		Secrets: SecretsConfig{UseEnv: false},
		Features: FeatureConfig{
			Alerts:        true,
			Observability: true,
		},
	}
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewFromEnv builds an LLMClient from the LLM_BACKEND_TYPE environment
// variable. Recognized values: "claude", "anthropic", "openai", "ollama".
// An empty value defaults to the Anthropic backend, which is what the
// analytics prompt layer is tuned for.
func NewFromEnv() (LLMClient, error) {
	backendType := strings.ToLower(os.Getenv("LLM_BACKEND_TYPE"))
	switch backendType {
	case "openai":
		slog.Info("Using OpenAI LLM Backend")
		return NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM Backend")
		return NewOllamaClient()
	case "claude", "anthropic", "":
		slog.Info("Using Anthropic (Claude) LLM Backend")
		return NewAnthropicClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND_TYPE: %q (expected claude, anthropic, openai, or ollama)", backendType)
	}
}

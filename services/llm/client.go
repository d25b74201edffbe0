// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams tunes sampling for a completion request.
// Nil pointers mean "use the backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// CompletionRequest describes a single completion call.
//
// System carries the system prompt separately because backends place it
// differently (Anthropic top-level, OpenAI as a system message, Ollama
// inline). JSONMode asks the backend for structured output where the API
// supports it; callers must still parse defensively.
type CompletionRequest struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Params   GenerationParams `json:"params"`
	JSONMode bool             `json:"json_mode,omitempty"`
}

// CompletionResult is the backend's answer plus usage accounting.
// Token counts are zero when the backend doesn't report them.
type CompletionResult struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

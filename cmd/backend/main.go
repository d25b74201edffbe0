// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command backend starts the conversational analytics HTTP server.
//
// This is the main entry point for the containerized backend service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - BACKEND_PORT: HTTP server port (default: 8000)
//   - LLM_BACKEND_TYPE: completion provider - claude, openai, ollama (default: claude)
//   - APP_DB_PATH: SQLite application database path (default: ./data/convana.db)
//   - SNOWFLAKE_ACCOUNT: warehouse account; unset runs lightweight mode
//   - CORS_ALLOW_ORIGIN: allowed dashboard origin (default: http://localhost:8501)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o backend ./cmd/backend
//
//	# Run
//	./backend
//
//	# Or via container
//	podman-compose up backend
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/eulerianKnight/conversational-analytics/services/backend"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local development keeps secrets in a .env file; containers inject
	// real environment variables and have no file to load.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	cfg := backend.ConfigFromEnv()
	cfg.Logger = logger

	slog.Info("Starting backend",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"app_db_path", cfg.AppDBPath,
	)

	// Create backend with default (no-op) extension options
	svc, err := backend.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Backend error: %v", err)
	}
}

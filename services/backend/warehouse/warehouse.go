// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package warehouse provides the Snowflake access layer for the analytics
// API.
//
// Every statement passes a read-only guard before execution: a leading
// keyword allowlist (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN), a forbidden
// keyword scan with word boundaries, and a multi-statement check. SELECT
// statements without an explicit LIMIT get one appended at MaxRows.
//
// Results decode into ordered column metadata plus one map per row, so
// handlers can serialize them to JSON without knowing warehouse types.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("convana.backend.warehouse")

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotConfigured is returned when no warehouse account is set.
	// The backend runs in lightweight mode without one.
	ErrNotConfigured = errors.New("warehouse is not configured")

	// ErrClientClosed is returned when operations are called on a closed client.
	ErrClientClosed = errors.New("warehouse client is closed")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

const (
	// DefaultQueryTimeout bounds a single warehouse query.
	DefaultQueryTimeout = 300 * time.Second

	// DefaultMaxRows is the LIMIT appended to unbounded SELECT statements.
	DefaultMaxRows = 100000

	connMaxLifetime = time.Hour
	maxOpenConns    = 10
	maxIdleConns    = 5
)

// Config holds Snowflake connection settings.
type Config struct {
	// Account is the Snowflake account identifier (SNOWFLAKE_ACCOUNT).
	// Required; an empty account means the warehouse is not configured.
	Account string

	// User is the warehouse username (SNOWFLAKE_USER).
	User string

	// Password is the warehouse password (SNOWFLAKE_PASSWORD, with a
	// /run/secrets/snowflake_password fallback for container deployments).
	Password string

	// Database is the target database (SNOWFLAKE_DATABASE).
	Database string

	// Schema is the target schema (SNOWFLAKE_SCHEMA), also used for
	// INFORMATION_SCHEMA introspection filters.
	Schema string

	// Warehouse is the virtual warehouse to run on (SNOWFLAKE_WAREHOUSE).
	Warehouse string

	// Role is the session role (SNOWFLAKE_ROLE). Optional.
	Role string

	// QueryTimeout bounds a single query.
	// Default: 300s (QUERY_TIMEOUT_SECONDS).
	QueryTimeout time.Duration

	// MaxRows is the LIMIT appended to unbounded SELECT statements.
	// Default: 100000 (MAX_QUERY_ROWS).
	MaxRows int

	// Logger for client operations. Default: slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from the SNOWFLAKE_* environment surface.
func ConfigFromEnv() Config {
	password := os.Getenv("SNOWFLAKE_PASSWORD")
	if password == "" {
		password = readSecretFile("/run/secrets/snowflake_password")
	}

	return Config{
		Account:      os.Getenv("SNOWFLAKE_ACCOUNT"),
		User:         os.Getenv("SNOWFLAKE_USER"),
		Password:     password,
		Database:     os.Getenv("SNOWFLAKE_DATABASE"),
		Schema:       os.Getenv("SNOWFLAKE_SCHEMA"),
		Warehouse:    os.Getenv("SNOWFLAKE_WAREHOUSE"),
		Role:         os.Getenv("SNOWFLAKE_ROLE"),
		QueryTimeout: time.Duration(envInt("QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
		MaxRows:      envInt("MAX_QUERY_ROWS", DefaultMaxRows),
	}
}

// Configured reports whether a warehouse account is set.
func (c Config) Configured() bool {
	return c.Account != ""
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// Metadata describes the shape of a query result.
type Metadata struct {
	Columns     []string `json:"columns"`
	RowCount    int      `json:"row_count"`
	Query       string   `json:"query"`
	ColumnTypes []string `json:"column_types"`
}

// Result is a decoded warehouse query result. Data holds one map per row
// keyed by column name; Metadata preserves column order.
type Result struct {
	Data          []map[string]any `json:"data"`
	Metadata      Metadata         `json:"metadata"`
	ExecutionTime float64          `json:"execution_time"`
	FromCache     bool             `json:"from_cache"`
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client executes read-only analytics queries against Snowflake.
//
// Thread Safety: safe for concurrent use; the underlying sql.DB pools
// connections.
type Client struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// Open creates a warehouse client from the given configuration.
//
// The connection is established lazily; Open validates configuration and
// builds the DSN but does not reach the network. Use TestConnection to
// verify reachability.
func Open(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	cfg.applyDefaults()

	dsn, err := sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("build warehouse DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	logger := cfg.Logger.With(slog.String("component", "warehouse"))
	logger.Info("warehouse client initialized",
		slog.String("account", cfg.Account),
		slog.String("database", cfg.Database),
		slog.String("schema", cfg.Schema))

	return &Client{db: db, cfg: cfg, logger: logger}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// TestConnection verifies the warehouse answers a trivial query.
func (c *Client) TestConnection(ctx context.Context) error {
	if c == nil || c.db == nil {
		return ErrClientClosed
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("connection test: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("connection test: unexpected result %d", one)
	}
	return nil
}

// Query executes a read-only statement and decodes the full result set.
//
// The statement is checked by the read-only guard, capped with an
// automatic LIMIT when applicable, and bounded by the configured query
// timeout. Args bind to `?` placeholders.
//
// Thread Safety: safe for concurrent use.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	if c == nil || c.db == nil {
		return nil, ErrClientClosed
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "warehouse.Query")
	defer span.End()

	if err := CheckReadOnly(query); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blocked by guard")
		return nil, err
	}
	query = EnsureLimit(query, c.cfg.MaxRows)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("warehouse query: %w", err)
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, err
	}

	result.Metadata.Query = query
	result.ExecutionTime = time.Since(start).Seconds()

	span.SetAttributes(attribute.Int("rows", result.Metadata.RowCount))
	span.SetStatus(codes.Ok, "success")
	c.logger.Debug("warehouse query complete",
		slog.Int("rows", result.Metadata.RowCount),
		slog.Float64("execution_time", result.ExecutionTime))
	return result, nil
}

// collectRows decodes all rows into maps keyed by column name.
func collectRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	typeNames := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		typeNames[i] = ct.DatabaseTypeName()
	}

	data := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &Result{
		Data: data,
		Metadata: Metadata{
			Columns:     columns,
			RowCount:    len(data),
			ColumnTypes: typeNames,
		},
	}, nil
}

// -----------------------------------------------------------------------------
// Environment helpers
// -----------------------------------------------------------------------------

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func readSecretFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

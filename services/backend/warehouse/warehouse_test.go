// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package warehouse

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Test Fixtures
// -----------------------------------------------------------------------------

// newSQLiteClient backs a Client with in-memory SQLite so the guard,
// LIMIT rewrite, and row decoding run against a real database/sql driver
// without a live warehouse.
func newSQLiteClient(t *testing.T) *Client {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return &Client{
		db: db,
		cfg: Config{
			QueryTimeout: 30 * time.Second,
			MaxRows:      DefaultMaxRows,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func seedProducts(t *testing.T, c *Client) {
	t.Helper()

	_, err := c.db.Exec(`CREATE TABLE PRODUCTS (ID INTEGER PRIMARY KEY, NAME TEXT, PRICE REAL, NOTE TEXT)`)
	require.NoError(t, err)
	_, err = c.db.Exec(`INSERT INTO PRODUCTS (ID, NAME, PRICE, NOTE) VALUES (1, 'widget', 9.99, 'popular'), (2, 'gadget', 24.50, NULL)`)
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------
// Configuration Tests
// -----------------------------------------------------------------------------

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{
			"SNOWFLAKE_ACCOUNT", "SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD",
			"SNOWFLAKE_DATABASE", "SNOWFLAKE_SCHEMA", "SNOWFLAKE_WAREHOUSE",
			"SNOWFLAKE_ROLE", "QUERY_TIMEOUT_SECONDS", "MAX_QUERY_ROWS",
		} {
			t.Setenv(key, "")
		}

		cfg := ConfigFromEnv()
		assert.False(t, cfg.Configured())
		assert.Equal(t, 300*time.Second, cfg.QueryTimeout)
		assert.Equal(t, DefaultMaxRows, cfg.MaxRows)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("SNOWFLAKE_ACCOUNT", "acme-xy12345")
		t.Setenv("SNOWFLAKE_USER", "svc_analytics")
		t.Setenv("SNOWFLAKE_PASSWORD", "hunter2")
		t.Setenv("SNOWFLAKE_DATABASE", "SNOWFLAKE_SAMPLE_DATA")
		t.Setenv("SNOWFLAKE_SCHEMA", "TPCH_SF1")
		t.Setenv("SNOWFLAKE_WAREHOUSE", "COMPUTE_WH")
		t.Setenv("SNOWFLAKE_ROLE", "ANALYST")
		t.Setenv("QUERY_TIMEOUT_SECONDS", "60")
		t.Setenv("MAX_QUERY_ROWS", "5000")

		cfg := ConfigFromEnv()
		assert.True(t, cfg.Configured())
		assert.Equal(t, "acme-xy12345", cfg.Account)
		assert.Equal(t, "svc_analytics", cfg.User)
		assert.Equal(t, "hunter2", cfg.Password)
		assert.Equal(t, "SNOWFLAKE_SAMPLE_DATA", cfg.Database)
		assert.Equal(t, "TPCH_SF1", cfg.Schema)
		assert.Equal(t, "COMPUTE_WH", cfg.Warehouse)
		assert.Equal(t, "ANALYST", cfg.Role)
		assert.Equal(t, 60*time.Second, cfg.QueryTimeout)
		assert.Equal(t, 5000, cfg.MaxRows)
	})

	t.Run("bad numbers fall back", func(t *testing.T) {
		t.Setenv("QUERY_TIMEOUT_SECONDS", "not-a-number")
		t.Setenv("MAX_QUERY_ROWS", "")

		cfg := ConfigFromEnv()
		assert.Equal(t, 300*time.Second, cfg.QueryTimeout)
		assert.Equal(t, DefaultMaxRows, cfg.MaxRows)
	})
}

// -----------------------------------------------------------------------------
// Client Lifecycle Tests
// -----------------------------------------------------------------------------

func TestOpen_NotConfigured(t *testing.T) {
	c, err := Open(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, c)
}

func TestOpen_ConnectsLazily(t *testing.T) {
	// Open builds the pool without dialing, so no warehouse is needed.
	c, err := Open(Config{
		Account:  "acme-xy12345",
		User:     "svc_analytics",
		Password: "hunter2",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NoError(t, c.Close())
}

func TestClient_NilAndClosed(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())

	_, err := c.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, c.TestConnection(context.Background()), ErrClientClosed)

	empty := &Client{}
	_, err = empty.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrClientClosed)
}

// -----------------------------------------------------------------------------
// Query Tests
// -----------------------------------------------------------------------------

func TestQuery_DecodesRows(t *testing.T) {
	c := newSQLiteClient(t)
	seedProducts(t, c)

	result, err := c.Query(context.Background(), "SELECT ID, NAME, PRICE, NOTE FROM PRODUCTS ORDER BY ID")
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "NAME", "PRICE", "NOTE"}, result.Metadata.Columns)
	assert.Len(t, result.Metadata.ColumnTypes, 4)
	assert.Equal(t, 2, result.Metadata.RowCount)
	require.Len(t, result.Data, 2)

	assert.Equal(t, int64(1), result.Data[0]["ID"])
	assert.Equal(t, "widget", result.Data[0]["NAME"])
	assert.Equal(t, 9.99, result.Data[0]["PRICE"])
	assert.Nil(t, result.Data[1]["NOTE"])

	assert.False(t, result.FromCache)
	assert.Greater(t, result.ExecutionTime, 0.0)
}

func TestQuery_AppendsLimit(t *testing.T) {
	c := newSQLiteClient(t)
	seedProducts(t, c)

	result, err := c.Query(context.Background(), "SELECT * FROM PRODUCTS")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM PRODUCTS LIMIT 100000", result.Metadata.Query)
}

func TestQuery_BindsArgs(t *testing.T) {
	c := newSQLiteClient(t)
	seedProducts(t, c)

	result, err := c.Query(context.Background(), "SELECT NAME FROM PRODUCTS WHERE ID = ?", 2)
	require.NoError(t, err)
	require.Equal(t, 1, result.Metadata.RowCount)
	assert.Equal(t, "gadget", result.Data[0]["NAME"])
}

func TestQuery_GuardBlocksWrites(t *testing.T) {
	c := newSQLiteClient(t)
	seedProducts(t, c)

	_, err := c.Query(context.Background(), "DROP TABLE PRODUCTS")
	assert.ErrorIs(t, err, ErrForbiddenKeyword)

	_, err = c.Query(context.Background(), "SELECT 1; SELECT 2")
	assert.ErrorIs(t, err, ErrMultiStatement)

	// The table must still be there.
	result, err := c.Query(context.Background(), "SELECT COUNT(*) AS N FROM PRODUCTS")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Data[0]["N"])
}

func TestQuery_EmptyResultIsNotNil(t *testing.T) {
	c := newSQLiteClient(t)
	seedProducts(t, c)

	result, err := c.Query(context.Background(), "SELECT * FROM PRODUCTS WHERE ID = 99")
	require.NoError(t, err)
	assert.NotNil(t, result.Data)
	assert.Empty(t, result.Data)
	assert.Equal(t, 0, result.Metadata.RowCount)
}

func TestTestConnection(t *testing.T) {
	c := newSQLiteClient(t)
	assert.NoError(t, c.TestConnection(context.Background()))
}

// -----------------------------------------------------------------------------
// Introspection Tests
// -----------------------------------------------------------------------------

func TestSampleData(t *testing.T) {
	c := newSQLiteClient(t)
	seedProducts(t, c)

	result, err := c.SampleData(context.Background(), "products", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.RowCount)
}

func TestIntrospection_RejectsBadIdentifiers(t *testing.T) {
	c := newSQLiteClient(t)

	_, err := c.SampleData(context.Background(), "products; DROP TABLE x", 5)
	assert.Error(t, err)

	_, err = c.TableColumns(context.Background(), "bad-name!")
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// Dashboard Tests
// -----------------------------------------------------------------------------

func TestDashboardMetrics_PartialFailure(t *testing.T) {
	c := newSQLiteClient(t)

	_, err := c.db.Exec(`CREATE TABLE ORDERS (ORDERKEY INTEGER PRIMARY KEY, CUSTKEY INTEGER, TOTALPRICE REAL, ORDERDATE TEXT)`)
	require.NoError(t, err)
	_, err = c.db.Exec(`INSERT INTO ORDERS VALUES (1, 10, 100.50, '2025-06-01'), (2, 11, 200.25, '2025-06-02')`)
	require.NoError(t, err)

	metrics := c.DashboardMetrics(context.Background())
	require.Len(t, metrics, 4)

	totalOrders, ok := metrics["total_orders"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(2), totalOrders["count"])

	totalRevenue, ok := metrics["total_revenue"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 300.75, totalRevenue["revenue"], 0.001)

	// DATEADD does not exist here, so the windowed metrics degrade to an
	// error entry instead of failing the whole dashboard.
	suppliers, ok := metrics["active_suppliers"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, suppliers, "error")

	customers, ok := metrics["top_customers"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, customers, "error")
}

// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package warehouse

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	defaultPerformanceWindowDays = 30
	defaultSalesWindowMonths     = 12
)

const supplierPerformanceSQL = `
SELECT
    s.SUPPKEY,
    s.NAME as SUPPLIER_NAME,
    COUNT(DISTINCT l.ORDERKEY) as TOTAL_ORDERS,
    SUM(l.QUANTITY) as TOTAL_QUANTITY,
    SUM(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as TOTAL_REVENUE,
    AVG(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as AVG_ORDER_VALUE,
    AVG(DATEDIFF(day, l.SHIPDATE, l.COMMITDATE)) as AVG_DELIVERY_DELAY,
    COUNT(CASE WHEN l.SHIPDATE > l.COMMITDATE THEN 1 END) as LATE_DELIVERIES,
    s.ACCTBAL as ACCOUNT_BALANCE,
    n.NAME as NATION
FROM SUPPLIER s
JOIN LINEITEM l ON s.SUPPKEY = l.SUPPKEY
JOIN NATION n ON s.NATIONKEY = n.NATIONKEY
WHERE l.SHIPDATE >= DATEADD(day, -%d, CURRENT_DATE)
GROUP BY s.SUPPKEY, s.NAME, s.ACCTBAL, n.NAME
ORDER BY TOTAL_REVENUE DESC
LIMIT 100`

const monthlySalesSQL = `
SELECT
    DATE_TRUNC('month', l.SHIPDATE) as MONTH,
    SUM(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as REVENUE,
    SUM(l.QUANTITY) as QUANTITY_SOLD,
    COUNT(DISTINCT l.ORDERKEY) as ORDERS_COUNT,
    COUNT(DISTINCT l.PARTKEY) as UNIQUE_PARTS,
    AVG(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as AVG_ORDER_VALUE
FROM LINEITEM l
WHERE l.SHIPDATE >= DATEADD(month, -%d, CURRENT_DATE)
GROUP BY DATE_TRUNC('month', l.SHIPDATE)
ORDER BY MONTH`

// dashboardQueries are the headline metrics for the dashboard endpoint.
var dashboardQueries = []struct {
	Name string
	SQL  string
}{
	{"total_orders", "SELECT COUNT(*) as count FROM ORDERS"},
	{"total_revenue", "SELECT SUM(TOTALPRICE) as revenue FROM ORDERS"},
	{"active_suppliers", "SELECT COUNT(DISTINCT SUPPKEY) as count FROM LINEITEM WHERE SHIPDATE >= DATEADD(month, -1, CURRENT_DATE)"},
	{"top_customers", "SELECT COUNT(DISTINCT CUSTKEY) as count FROM ORDERS WHERE ORDERDATE >= DATEADD(month, -1, CURRENT_DATE)"},
}

func supplierPerformanceQuery(days int) string {
	if days <= 0 {
		days = defaultPerformanceWindowDays
	}
	return fmt.Sprintf(supplierPerformanceSQL, days)
}

func monthlySalesQuery(months int) string {
	if months <= 0 {
		months = defaultSalesWindowMonths
	}
	return fmt.Sprintf(monthlySalesSQL, months)
}

// SupplierPerformance aggregates per-supplier order volume, revenue, and
// delivery punctuality over the trailing window.
func (c *Client) SupplierPerformance(ctx context.Context, days int) (*Result, error) {
	return c.Query(ctx, supplierPerformanceQuery(days))
}

// MonthlySales returns monthly revenue aggregates over the trailing
// window, oldest month first.
func (c *Client) MonthlySales(ctx context.Context, months int) (*Result, error) {
	return c.Query(ctx, monthlySalesQuery(months))
}

// DashboardMetrics runs the headline metric queries. Each metric resolves
// independently; a failed query yields {"error": ...} for that metric
// rather than failing the whole set.
func (c *Client) DashboardMetrics(ctx context.Context) map[string]any {
	metrics := make(map[string]any, len(dashboardQueries))
	for _, q := range dashboardQueries {
		result, err := c.Query(ctx, q.SQL)
		if err != nil {
			c.logger.Warn("dashboard metric failed",
				slog.String("metric", q.Name),
				slog.String("error", err.Error()))
			metrics[q.Name] = map[string]any{"error": err.Error()}
			continue
		}
		if len(result.Data) > 0 {
			metrics[q.Name] = result.Data[0]
		} else {
			metrics[q.Name] = map[string]any{}
		}
	}
	return metrics
}

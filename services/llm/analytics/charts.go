// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Chart types the recommendation flow can produce. The model may pick any of
// these; the heuristic fallback only produces table, bar, line, and scatter.
const (
	ChartTable   = "table"
	ChartBar     = "bar"
	ChartLine    = "line"
	ChartScatter = "scatter"
	ChartPie     = "pie"
	ChartHeatmap = "heatmap"
)

// ChartSpec describes a recommended visualization for a result set.
type ChartSpec struct {
	ChartType string `json:"chart_type"`
	XAxis     string `json:"x_axis,omitempty"`
	YAxis     string `json:"y_axis,omitempty"`
	ColorBy   string `json:"color_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Title     string `json:"title,omitempty"`
}

// ParseChartResponse extracts a ChartSpec from raw model output.
func ParseChartResponse(raw string) (*ChartSpec, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var spec ChartSpec
	if err := json.Unmarshal([]byte(jsonStr), &spec); err != nil {
		return nil, fmt.Errorf("parsing chart recommendation: %w", err)
	}
	if spec.ChartType == "" {
		return nil, fmt.Errorf("chart recommendation missing chart_type")
	}

	return &spec, nil
}

// dateNameHints mark string columns as date-like by name. Cached result rows
// round-trip through JSON, which turns timestamps into strings, so the name
// is the only signal left.
var dateNameHints = []string{"date", "time", "month", "year"}

// FallbackChart recommends a chart from column types alone.
//
// Column types come from the first row only: two or more numeric columns
// give a scatter plot, exactly one numeric beside a categorical column gives
// a bar chart, a date column beside a numeric one gives a line chart, and
// anything else falls back to a table.
func FallbackChart(columns []string, rows []map[string]any) *ChartSpec {
	if len(rows) == 0 || len(columns) == 0 {
		return &ChartSpec{ChartType: ChartTable, Reason: "Insufficient data"}
	}

	numeric, categorical, dates := classifyColumns(columns, rows[0])

	switch {
	case len(numeric) >= 2:
		return &ChartSpec{
			ChartType: ChartScatter,
			XAxis:     numeric[0],
			YAxis:     numeric[1],
			Reason:    "Two numeric columns suitable for scatter plot",
		}
	case len(numeric) == 1 && len(categorical) >= 1:
		return &ChartSpec{
			ChartType: ChartBar,
			XAxis:     categorical[0],
			YAxis:     numeric[0],
			Reason:    "Categorical and numeric data suitable for bar chart",
		}
	case len(dates) > 0 && len(numeric) > 0:
		return &ChartSpec{
			ChartType: ChartLine,
			XAxis:     dates[0],
			YAxis:     numeric[0],
			Reason:    "Time series data suitable for line chart",
		}
	default:
		return &ChartSpec{
			ChartType: ChartTable,
			Reason:    "Data structure best suited for tabular display",
		}
	}
}

// classifyColumns buckets columns as numeric, categorical, or date-like
// based on the sample row's Go value types. Returned slices preserve column
// order.
func classifyColumns(columns []string, sample map[string]any) (numeric, categorical, dates []string) {
	for _, col := range columns {
		switch sample[col].(type) {
		case int, int32, int64, float32, float64:
			numeric = append(numeric, col)
		case time.Time:
			dates = append(dates, col)
		case string:
			if hasDateHint(col) {
				dates = append(dates, col)
			} else {
				categorical = append(categorical, col)
			}
		default:
			categorical = append(categorical, col)
		}
	}
	return numeric, categorical, dates
}

func hasDateHint(column string) bool {
	lower := strings.ToLower(column)
	for _, hint := range dateNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

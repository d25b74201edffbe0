// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alerts

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// RecorderConfig holds InfluxDB connection settings for the optional
// evaluation history recorder.
type RecorderConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// RecorderConfigFromEnv reads INFLUXDB_URL, INFLUXDB_TOKEN,
// INFLUXDB_ORG, and INFLUXDB_BUCKET.
func RecorderConfigFromEnv() RecorderConfig {
	cfg := RecorderConfig{
		URL:    os.Getenv("INFLUXDB_URL"),
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}
	if cfg.Org == "" {
		cfg.Org = "analytics"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "alerts"
	}
	return cfg
}

// Configured reports whether both a URL and a token are set.
func (c RecorderConfig) Configured() bool {
	return c.URL != "" && c.Token != ""
}

// Recorder writes one time-series point per alert evaluation so metric
// values can be charted over time.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

// OpenRecorder connects to InfluxDB. Returns nil when cfg is not
// configured; the evaluator treats a nil recorder as disabled.
func OpenRecorder(cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if !cfg.Configured() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	logger.Info("alert evaluation recorder enabled",
		slog.String("url", cfg.URL),
		slog.String("org", cfg.Org),
		slog.String("bucket", cfg.Bucket))

	return &Recorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger.With(slog.String("component", "alert_recorder")),
	}
}

// NewRecorder wraps an existing write API. Tests use this with a mock.
func NewRecorder(write api.WriteAPIBlocking, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		writeAPI: write,
		logger:   logger.With(slog.String("component", "alert_recorder")),
	}
}

// Record writes one evaluation point. A nil recorder drops the point,
// so callers built without InfluxDB configured need no guard.
func (r *Recorder) Record(ctx context.Context, alert *store.Alert, value float64, triggered bool) error {
	if r == nil {
		return nil
	}
	p := influxdb2.NewPointWithMeasurement("alert_evaluations").
		AddTag("alert_id", strconv.FormatInt(alert.ID, 10)).
		AddTag("alert_name", alert.AlertName).
		AddTag("metric", alert.Metric).
		AddField("value", value).
		AddField("threshold", alert.ThresholdValue).
		AddField("triggered", triggered).
		SetTime(time.Now().UTC())

	return r.writeAPI.WritePoint(ctx, p)
}

// Close releases the InfluxDB client.
func (r *Recorder) Close() {
	if r == nil || r.client == nil {
		return
	}
	r.client.Close()
}

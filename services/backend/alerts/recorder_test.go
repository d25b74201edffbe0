// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

type MockWriteAPI struct {
	WritePointFunc func(ctx context.Context, point ...*write.Point) error
	WrittenPoints  []*write.Point
}

func (m *MockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.WrittenPoints = append(m.WrittenPoints, point...)
	if m.WritePointFunc != nil {
		return m.WritePointFunc(ctx, point...)
	}
	return nil
}

func (m *MockWriteAPI) WriteRecord(ctx context.Context, line ...string) error {
	return nil
}

func (m *MockWriteAPI) EnableBatching()                 {}
func (m *MockWriteAPI) Flush(ctx context.Context) error { return nil }

func TestRecorder_WritesEvaluationPoint(t *testing.T) {
	mock := &MockWriteAPI{}
	rec := NewRecorder(mock, testLogger())

	alert := &store.Alert{
		ID:             12,
		AlertName:      "Backlog",
		Metric:         "open_orders",
		ThresholdValue: 250,
	}
	require.NoError(t, rec.Record(context.Background(), alert, 300, true))

	require.Len(t, mock.WrittenPoints, 1)
	p := mock.WrittenPoints[0]
	assert.Equal(t, "alert_evaluations", p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "12", tags["alert_id"])
	assert.Equal(t, "Backlog", tags["alert_name"])
	assert.Equal(t, "open_orders", tags["metric"])

	fields := map[string]any{}
	for _, field := range p.FieldList() {
		fields[field.Key] = field.Value
	}
	assert.Equal(t, 300.0, fields["value"])
	assert.Equal(t, 250.0, fields["threshold"])
	assert.Equal(t, true, fields["triggered"])
	assert.False(t, p.Time().IsZero())
}

func TestRecorder_PropagatesWriteErrors(t *testing.T) {
	mock := &MockWriteAPI{
		WritePointFunc: func(ctx context.Context, point ...*write.Point) error {
			return errors.New("influx down")
		},
	}
	rec := NewRecorder(mock, testLogger())

	err := rec.Record(context.Background(), &store.Alert{ID: 1}, 1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx down")
}

func TestCheckAll_RecordsEvaluationPoints(t *testing.T) {
	mock := &MockWriteAPI{}
	runner := &fakeRunner{result: singleValue("total_revenue", 800.0)}
	f := newTestEvaluator(t, runner, nil)
	f.evaluator.recorder = NewRecorder(mock, testLogger())
	f.createAlert(t, ">", 1000)

	_, err := f.evaluator.CheckAll(context.Background())
	require.NoError(t, err)

	require.Len(t, mock.WrittenPoints, 1)
	fields := map[string]any{}
	for _, field := range mock.WrittenPoints[0].FieldList() {
		fields[field.Key] = field.Value
	}
	assert.Equal(t, 800.0, fields["value"])
	assert.Equal(t, false, fields["triggered"])
}

func TestRecorderConfigFromEnv(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "http://influx:8086")
	t.Setenv("INFLUXDB_TOKEN", "token")
	t.Setenv("INFLUXDB_ORG", "")
	t.Setenv("INFLUXDB_BUCKET", "")

	cfg := RecorderConfigFromEnv()
	assert.Equal(t, "http://influx:8086", cfg.URL)
	assert.Equal(t, "analytics", cfg.Org)
	assert.Equal(t, "alerts", cfg.Bucket)
	assert.True(t, cfg.Configured())
}

func TestOpenRecorder_NotConfigured(t *testing.T) {
	assert.Nil(t, OpenRecorder(RecorderConfig{}, testLogger()))
	assert.Nil(t, OpenRecorder(RecorderConfig{URL: "http://localhost:8086"}, testLogger()))

	var rec *Recorder
	rec.Close()
	assert.NoError(t, rec.Record(context.Background(), &store.Alert{}, 0, false))
}

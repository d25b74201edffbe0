// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alerts

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eulerianKnight/conversational-analytics/services/backend/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newHubServer(t *testing.T) (*Hub, string, *observability.QueryMetrics) {
	t.Helper()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(metrics, testLogger())

	router := gin.New()
	router.GET("/ws/alerts", hub.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	return hub, url, metrics
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, url, metrics := newHubServer(t)

	first := dialHub(t, url)
	second := dialHub(t, url)

	// Registration races the 101 handshake, so poll instead of
	// asserting immediately.
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveWebsocketClients))

	hub.Broadcast(TriggerEvent{
		Type:        "alert_triggered",
		AlertID:     7,
		AlertName:   "Low Inventory",
		Metric:      "available_qty",
		MetricValue: 12,
	})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event TriggerEvent
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "alert_triggered", event.Type)
		assert.Equal(t, int64(7), event.AlertID)
		assert.Equal(t, "Low Inventory", event.AlertName)
		assert.Equal(t, 12.0, event.MetricValue)
	}
}

func TestHub_ClientDisconnectLowersCount(t *testing.T) {
	hub, url, metrics := newHubServer(t)

	conn := dialHub(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.ActiveWebsocketClients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, url, _ := newHubServer(t)

	conn := dialHub(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	// The client should see a close frame or a dropped connection, not
	// a hang.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestHub_RefusesClientsAfterClose(t *testing.T) {
	hub, url, _ := newHubServer(t)
	hub.Close()

	// The upgrade itself still succeeds; the hub closes the connection
	// right after.
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	assert.Equal(t, 0, hub.ClientCount())
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_NilSafe(t *testing.T) {
	var hub *Hub
	hub.Broadcast(TriggerEvent{Type: "alert_triggered"})
	assert.Equal(t, 0, hub.ClientCount())
}

func TestCheckAll_BroadcastsTriggerEvent(t *testing.T) {
	hub, url, _ := newHubServer(t)
	conn := dialHub(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	runner := &fakeRunner{result: singleValue("total_revenue", 9000.0)}
	f := newTestEvaluator(t, runner, nil)
	f.evaluator.hub = hub
	f.createAlert(t, ">", 1000)

	_, err := f.evaluator.CheckAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event TriggerEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "alert_triggered", event.Type)
	assert.Equal(t, "Revenue Watch", event.AlertName)
	assert.Equal(t, "total_revenue", event.Metric)
	assert.Equal(t, 9000.0, event.MetricValue)
	assert.Equal(t, 1000.0, event.ThresholdValue)
	assert.Contains(t, event.Message, "🚨")
	assert.False(t, event.Timestamp.IsZero())
}

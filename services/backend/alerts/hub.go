// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alerts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/eulerianKnight/conversational-analytics/services/backend/observability"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before it is
	// considered gone.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. Clients only listen.
	maxMessageSize = 512

	// sendBuffer is the per-client outbound queue. A client that falls
	// this far behind is dropped.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TriggerEvent is the payload broadcast to websocket subscribers when
// an alert fires.
type TriggerEvent struct {
	Type           string    `json:"type"`
	AlertID        int64     `json:"alert_id"`
	AlertName      string    `json:"alert_name"`
	Metric         string    `json:"metric"`
	MetricValue    float64   `json:"metric_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Condition      string    `json:"condition"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

// Hub fans alert events out to connected websocket clients.
//
// Thread Safety: all methods are safe for concurrent use, and Broadcast
// is safe on a nil receiver.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	metrics *observability.QueryMetrics
	logger  *slog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an empty hub.
func NewHub(metrics *observability.QueryMetrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		metrics: metrics,
		logger:  logger.With(slog.String("component", "alert_hub")),
	}
}

// Handle upgrades the request and serves the connection until the
// client disconnects or the hub closes.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	client.readLoop(h)
}

// Broadcast sends v as JSON to every connected client. Clients whose
// queue is full are dropped.
func (h *Hub) Broadcast(v any) {
	if h == nil {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("encode broadcast failed",
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	var dropped []*wsClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for range dropped {
		h.metrics.WebsocketClosed()
		h.logger.Warn("dropped slow alert stream client")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new connections. Safe to
// call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	n := len(h.clients)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for i := 0; i < n; i++ {
		h.metrics.WebsocketClosed()
	}
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.WebsocketOpened()
	h.logger.Info("alert stream client connected")
	return true
}

// remove deregisters a client. The send channel is closed exactly once,
// whether the client left or Broadcast dropped it first.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if present {
		h.metrics.WebsocketClosed()
		h.logger.Info("alert stream client disconnected")
	}
}

// readLoop drains inbound frames to service pong handling. The hub
// never expects application messages from clients.
func (c *wsClient) readLoop(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

const (
	// clientSendBuffer is the per-client backlog. A client that falls this
	// far behind starts losing frames, not slowing the observation loop.
	clientSendBuffer = 32

	// writeWait bounds a single WebSocket write.
	writeWait = 5 * time.Second
)

// ErrHubClosed is returned when a client connects to a hub that has shut
// down.
var ErrHubClosed = errors.New("event stream hub is closed")

// Hub fans ingested event batches out to WebSocket subscribers.
//
// # Thread Safety
//
// Safe for concurrent use. Broadcast never blocks on a client: each
// subscriber has a bounded send queue and frames are dropped when it is
// full.
type Hub struct {
	logger *logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:  logger.With("component", "stream_hub"),
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Broadcast marshals one frame and offers it to every subscriber. Slow
// subscribers are skipped for this frame.
func (h *Hub) Broadcast(sessionID string, events []event.Event) {
	if len(events) == 0 {
		return
	}
	payload, err := json.Marshal(StreamFrame{SessionID: sessionID, Events: events})
	if err != nil {
		h.logger.Error("stream frame marshal failed", "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			h.logger.Debug("stream frame dropped for slow client",
				"remote", conn.RemoteAddr().String(),
				"events", len(events))
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects future ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for conn, send := range h.clients {
		close(send)
		delete(h.clients, conn)
	}
}

// add registers a connection and returns its send queue. The caller owns
// the read side; the hub's writer goroutine owns the connection's writes
// and closes the connection when the queue closes.
func (h *Hub) add(conn *websocket.Conn) (chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	send := make(chan []byte, clientSendBuffer)
	h.clients[conn] = send
	go writePump(conn, send)
	h.logger.Info("stream client connected", "remote", conn.RemoteAddr().String(), "clients", len(h.clients))
	return send, nil
}

// remove unregisters a connection; its writer drains and closes the
// socket.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	send, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	close(send)
	h.logger.Info("stream client disconnected", "remote", conn.RemoteAddr().String(), "clients", len(h.clients))
}

// writePump serializes all writes to one connection. It exits when the
// send queue closes or a write fails, closing the socket either way so
// the read side unblocks.
func writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for payload := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

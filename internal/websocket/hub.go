// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package websocket

import (
	"context"
	"sync"

	"github.com/tomtom215/streamweaver/internal/logging"
)

// Message types pushed to clients.
const (
	MessageTypeProbeProgress = "probe_progress"
	MessageTypeJournalEvent  = "journal_event"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is one typed payload on the wire.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run Serve before registering clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Serve runs the hub loop until ctx is cancelled, closing every client on
// the way out. It satisfies the suture service contract.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").Msg("Websocket hub stopped")
			return ctx.Err()
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug().Int("total_clients", total).Msg("Websocket client connected")
		case client := <-h.unregister:
			h.drop(client)
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

// Broadcast queues a message for every connected client. A full hub queue
// drops the message; feeds are periodic so the next one catches up.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// send fans one message out. A client whose queue is full is dropped; its
// write pump notices the closed channel and tears the connection down.
func (h *Hub) send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
			logging.Warn().Msg("Dropped slow websocket client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package websocket

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/metrics"
)

// Control message types.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is one frame on the stream. Type is an event topic or a control
// type; Data is the raw event payload.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HubConfig configures a Hub.
type HubConfig struct {
	// AllowedOrigins lists browser origins allowed to connect. "*" allows
	// any origin. Requests without an Origin header are always accepted.
	AllowedOrigins []string

	// BroadcastBuffer sizes the hub's inbound queue.
	BroadcastBuffer int

	// ClientBuffer sizes each client's outbound queue.
	ClientBuffer int
}

// DefaultHubConfig returns the hub defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{BroadcastBuffer: 256, ClientBuffer: 64}
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	cfg       HubConfig
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
	broadcast chan Message

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub returns a hub; run it with Serve.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewHub(cfg HubConfig, logger zerolog.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = def.BroadcastBuffer
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	h := &Hub{
		cfg:       cfg,
		logger:    logger.With().Str("component", "websocket-hub").Logger(),
		broadcast: make(chan Message, cfg.BroadcastBuffer),
		clients:   make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Serve implements suture.Service. It delivers broadcasts until ctx is
// canceled, then closes every client.
func (h *Hub) Serve(ctx context.Context) error {
	h.logger.Info().Msg("websocket hub started")
	for {
		// shutdown wins over pending broadcasts
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) shutdown(ctx context.Context) {
	n := h.closeAllClients()
	reason := "context_canceled"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = "context_deadline"
	}
	h.logger.Info().Str("reason", reason).Int("clients_closed", n).Msg("websocket hub stopped")
}

// Broadcast queues msg for every client. It never blocks; a full queue
// drops the message and returns false.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		metrics.RecordStreamMessage("dropped")
		h.logger.Warn().Str("type", msg.Type).Msg("broadcast queue full, dropping message")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and attaches a client to the hub. The
// optional topics query parameter is a comma-separated topic filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newClient(h, conn, parseTopics(r.URL.Query().Get("topics")))
	h.register(c)
	c.start()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetStreamClients(n)
	h.logger.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client connected")
}

// unregister removes c and closes its queue. Removing an unknown client is
// a no-op, so the read pump and the hub may both call it.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.SetStreamClients(n)
		h.logger.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// broadcastToClients delivers msg in client ID order. Clients with a full
// queue are dropped.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		if !c.wants(msg.Type) {
			continue
		}
		select {
		case c.send <- msg:
			metrics.RecordStreamMessage("sent")
		default:
			metrics.RecordStreamMessage("dropped")
			h.logger.Warn().Uint64("client_id", c.id).Msg("websocket client too slow, disconnecting")
			close(c.send)
			delete(h.clients, c)
		}
	}
	metrics.SetStreamClients(len(h.clients))
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.SetStreamClients(0)
	return len(clients)
}

// sortedClients must be called with mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b *Client) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return clients
}

func parseTopics(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	topics := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = struct{}{}
		}
	}
	if len(topics) == 0 {
		return nil
	}
	return topics
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/fusionserve/internal/logging"
)

type testHub struct {
	*Hub
	server *httptest.Server
	cancel context.CancelFunc
	done   chan error
}

func startHub(t *testing.T, cfg HubConfig) *testHub {
	t.Helper()
	h := NewHub(cfg, logging.NewTestLogger(nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testHub{Hub: h, server: srv, cancel: cancel, done: done}
}

func (th *testHub) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(th.server.URL, "http") + "/" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestHubBroadcast(t *testing.T) {
	th := startHub(t, HubConfig{})
	all := th.dial(t, "")
	anomalies := th.dial(t, "?topics=prediction.anomaly")
	waitForClients(t, th.Hub, 2)

	th.Broadcast(Message{Type: "model.trained", Data: []byte(`{"version":2}`)})
	th.Broadcast(Message{Type: "prediction.anomaly", Data: []byte(`{"anomalies":1}`)})

	first := readMessage(t, all)
	if first.Type != "model.trained" || string(first.Data) != `{"version":2}` {
		t.Errorf("first message = %s %s, want model.trained", first.Type, first.Data)
	}
	if second := readMessage(t, all); second.Type != "prediction.anomaly" {
		t.Errorf("second message type = %q, want prediction.anomaly", second.Type)
	}

	// the filtered client skips model.trained
	if got := readMessage(t, anomalies); got.Type != "prediction.anomaly" {
		t.Errorf("filtered client got %q, want prediction.anomaly", got.Type)
	}
}

func TestHubPingPong(t *testing.T) {
	th := startHub(t, HubConfig{})
	conn := th.dial(t, "")
	waitForClients(t, th.Hub, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if got := readMessage(t, conn); got.Type != MessageTypePong {
		t.Errorf("reply type = %q, want pong", got.Type)
	}
}

func TestHubDisconnect(t *testing.T) {
	th := startHub(t, HubConfig{})
	conn := th.dial(t, "")
	waitForClients(t, th.Hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitForClients(t, th.Hub, 0)
}

func TestHubShutdown(t *testing.T) {
	th := startHub(t, HubConfig{})
	conn := th.dial(t, "")
	waitForClients(t, th.Hub, 1)

	th.cancel()
	select {
	case err := <-th.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if th.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after shutdown, want 0", th.ClientCount())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want close 1001", err)
	}
}

func TestBroadcastQueueFull(t *testing.T) {
	h := NewHub(HubConfig{BroadcastBuffer: 1}, logging.NewTestLogger(nil))
	if !h.Broadcast(Message{Type: "a"}) {
		t.Fatal("first Broadcast = false, want true")
	}
	if h.Broadcast(Message{Type: "b"}) {
		t.Error("second Broadcast = true on a full queue, want false")
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := NewHub(HubConfig{ClientBuffer: 1}, logging.NewTestLogger(nil))
	c := &Client{id: 1, hub: h, send: make(chan Message, 1)}
	h.register(c)

	h.broadcastToClients(Message{Type: "a"})
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", h.ClientCount())
	}
	h.broadcastToClients(Message{Type: "b"})
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want slow client dropped", h.ClientCount())
	}

	if msg := <-c.send; msg.Type != "a" {
		t.Errorf("queued message = %q, want a", msg.Type)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after drop")
	}

	// a later unregister from the read pump is a no-op
	h.unregister(c)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(HubConfig{AllowedOrigins: tt.allowed}, logging.NewTestLogger(nil))
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestUpgradeRejectsPlainRequest(t *testing.T) {
	h := NewHub(HubConfig{}, logging.NewTestLogger(nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}

func TestParseTopics(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{" , ", nil},
		{"model.trained", []string{"model.trained"}},
		{"model.trained, prediction.anomaly,", []string{"model.trained", "prediction.anomaly"}},
	}
	for _, tt := range tests {
		got := parseTopics(tt.raw)
		if len(got) != len(tt.want) {
			t.Errorf("parseTopics(%q) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for _, topic := range tt.want {
			if _, ok := got[topic]; !ok {
				t.Errorf("parseTopics(%q) missing %q", tt.raw, topic)
			}
		}
	}
}

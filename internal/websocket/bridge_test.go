// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fusionserve/internal/events"
	"github.com/tomtom215/fusionserve/internal/logging"
)

func TestBridgeForwardsEvents(t *testing.T) {
	cfg := events.DefaultConfig()
	cfg.TopicPrefix = "fs"
	pub, err := events.NewPublisher(cfg, logging.NewTestLogger(nil))
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })

	hub := NewHub(HubConfig{}, logging.NewTestLogger(nil))
	bridge := NewBridge(pub, hub, logging.NewTestLogger(nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Serve(ctx) }()

	// gochannel drops messages published before the bridge subscribes
	var got Message
	deadline := time.After(2 * time.Second)
wait:
	for {
		if err := pub.Publish(ctx, events.TopicModelTrained, events.ModelTrained{Model: "default", Version: 4}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case got = <-hub.broadcast:
			break wait
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("bridge forwarded nothing")
		}
	}

	if got.Type != events.TopicModelTrained {
		t.Errorf("Type = %q, want %q", got.Type, events.TopicModelTrained)
	}
	var ev events.ModelTrained
	if err := json.Unmarshal(got.Data, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.Model != "default" || ev.Version != 4 {
		t.Errorf("payload = %+v", ev)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

type brokeredSubscriber struct{}

func (brokeredSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, events.ErrSubscribeUnsupported
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, errors.New("closed")
}

func TestBridgeSubscribeErrors(t *testing.T) {
	hub := NewHub(HubConfig{}, logging.NewTestLogger(nil))

	err := NewBridge(brokeredSubscriber{}, hub, logging.NewTestLogger(nil)).Serve(context.Background())
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("unsupported backend: Serve() = %v, want ErrDoNotRestart", err)
	}

	err = NewBridge(failingSubscriber{}, hub, logging.NewTestLogger(nil)).Serve(context.Background())
	if err == nil || errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("failing subscriber: Serve() = %v, want a restartable error", err)
	}
}

func TestBridgeString(t *testing.T) {
	hub := NewHub(HubConfig{}, logging.NewTestLogger(nil))
	if got := NewBridge(brokeredSubscriber{}, hub, logging.NewTestLogger(nil)).String(); got != "event-bridge" {
		t.Errorf("String() = %q, want event-bridge", got)
	}
	if got := hub.String(); got != "websocket-hub" {
		t.Errorf("String() = %q, want websocket-hub", got)
	}
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/fusionserve/internal/events"
)

// Subscriber is the part of events.Publisher the bridge needs.
type Subscriber interface {
	Subscribe(ctx context.Context, name string) (<-chan *message.Message, error)
}

// Bridge forwards lifecycle events from a Subscriber into a Hub.
type Bridge struct {
	sub    Subscriber
	hub    *Hub
	topics []string
	logger zerolog.Logger
}

// NewBridge returns a bridge for every lifecycle topic.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewBridge(sub Subscriber, hub *Hub, logger zerolog.Logger) *Bridge {
	return &Bridge{
		sub:    sub,
		hub:    hub,
		topics: events.Topics(),
		logger: logger.With().Str("component", "event-bridge").Logger(),
	}
}

// Serve implements suture.Service. A backend without local subscriptions
// stops the bridge for good.
func (b *Bridge) Serve(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(subCtx)
	for _, topic := range b.topics {
		ch, err := b.sub.Subscribe(gctx, topic)
		if errors.Is(err, events.ErrSubscribeUnsupported) {
			b.logger.Warn().Err(err).Msg("event stream disabled")
			return suture.ErrDoNotRestart
		}
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		g.Go(func() error {
			b.forward(gctx, ch)
			return nil
		})
	}
	b.logger.Info().Strs("topics", b.topics).Msg("event bridge started")

	<-ctx.Done()
	_ = g.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (b *Bridge) String() string { return "event-bridge" }

func (b *Bridge) forward(ctx context.Context, ch <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.hub.Broadcast(Message{
				Type: msg.Metadata.Get(events.MetadataEventType),
				Data: append([]byte(nil), msg.Payload...),
			})
			msg.Ack()
		}
	}
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

//go:build nats

package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// newNATSPublisher publishes over core NATS. Lifecycle events are
// notifications, so JetStream persistence is not required.
func newNATSPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if !cfg.NATSEmbedded {
		return dialNATS(cfg, logger)
	}

	srv, err := StartEmbeddedServer(cfg.EmbeddedHost, cfg.EmbeddedPort)
	if err != nil {
		return nil, err
	}
	cfg.NATSURL = srv.ClientURL()
	logger.Info("embedded NATS server started", watermill.LogFields{"url": cfg.NATSURL})

	pub, err := dialNATS(cfg, logger)
	if err != nil {
		srv.Shutdown()
		return nil, err
	}
	return &embeddedPublisher{Publisher: pub, server: srv}, nil
}

func dialNATS(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("fusionserve-events"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package events

import (
	"fmt"
	"time"
)

// Backends.
const (
	BackendGoChannel = "gochannel"
	BackendNATS      = "nats"
)

// Config configures the publisher.
type Config struct {
	Backend     string
	NATSURL     string
	TopicPrefix string

	// OutputBuffer sizes each gochannel subscriber channel.
	OutputBuffer int64

	// Breaker settings. FailureThreshold consecutive failures open the
	// breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration

	MaxReconnects int
	ReconnectWait time.Duration

	// NATSEmbedded starts an in-process broker on EmbeddedPort and
	// connects to it instead of NATSURL.
	NATSEmbedded bool
	EmbeddedHost string
	EmbeddedPort int
}

// DefaultConfig returns the in-process defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendGoChannel,
		NATSURL:          "nats://127.0.0.1:4222",
		OutputBuffer:     64,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		EmbeddedHost:     "127.0.0.1",
		EmbeddedPort:     4222,
	}
}

// Validate checks the backend selection.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGoChannel:
	case BackendNATS:
		if c.NATSURL == "" && !c.NATSEmbedded {
			return fmt.Errorf("events: nats_url is required for the nats backend")
		}
	default:
		return fmt.Errorf("events: unknown backend %q (want %s or %s)", c.Backend, BackendGoChannel, BackendNATS)
	}
	return nil
}

// topic applies the prefix to name.
func (c *Config) topic(name string) string {
	if c.TopicPrefix == "" {
		return name
	}
	return c.TopicPrefix + "." + name
}

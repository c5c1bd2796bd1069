// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

//go:build !nats

package events

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ErrNATSUnavailable is returned when the nats backend is selected in a
// build without it.
var ErrNATSUnavailable = errors.New("nats event backend not available: build with -tags=nats")

func newNATSPublisher(Config, watermill.LoggerAdapter) (message.Publisher, error) {
	return nil, ErrNATSUnavailable
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

/*
Package websocket streams model lifecycle events to connected clients.

A Hub owns the set of clients and fans messages out to them. A Bridge
subscribes to the in-process event publisher and forwards every lifecycle
event into the hub. Both run as suture services.

	events.Publisher ──► Bridge ──► Hub ──┬──► Client
	                                      ├──► Client
	                                      └──► Client

Each client runs two goroutines: readPump answers {"type":"ping"} with a
pong and detects disconnects, writePump writes queued messages and sends
websocket pings so idle proxies keep the connection open.

Messages carry the event topic as their type and the event payload as data:

	{"type": "model.trained", "data": {"job_id": "01J...", "model": "default", ...}}

Clients may narrow the stream with a topics query parameter:

	GET /api/v1/events/ws?topics=model.trained,prediction.anomaly

A client whose send buffer fills is dropped rather than slowing the hub.
*/
package websocket

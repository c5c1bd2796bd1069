// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

/*
Package supervisor runs the long-lived parts of the service under a suture v4
supervisor tree.

	RootSupervisor ("fusionserve")
	├── TrainingSupervisor ("training-layer")
	│   ├── training-runner    (jobs.Runner)
	│   └── retrain-scheduler  (services.RetrainService, if enabled)
	└── APISupervisor ("api-layer")
	    ├── http-server        (services.HTTPServerService)
	    ├── websocket-hub      (websocket.Hub, if the event stream is on)
	    └── event-bridge       (websocket.Bridge, if the event stream is on)

Crashed services are restarted with suture's decaying failure counter; once
FailureThreshold is exceeded the layer waits FailureBackoff before trying
again. Supervisor events are logged through sutureslog.

A service returning nil is not restarted. Services must return promptly
once their context is canceled; UnstoppedServiceReport lists the ones that
did not stop within ShutdownTimeout.

The model registry and the event publisher are not supervised. Both are
plain values owned by main and closed after the tree stops.
*/
package supervisor

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

/*
Package api serves the model registry over HTTP with the chi router.

Routes (prefix configurable, /api/v1 by default):

	GET  /health                          liveness
	GET  /metrics                         Prometheus exposition
	GET  /api/v1/info                     service name, version and models
	POST /api/v1/predict                  score content, contents or rows
	POST /api/v1/train                    queue a training job (202)
	GET  /api/v1/train/jobs               recent training jobs
	GET  /api/v1/train/jobs/{id}          one training job
	POST /api/v1/extract-features         run the extractor on content
	GET  /api/v1/models                   registered models and metadata
	GET  /api/v1/models/{name}/metadata   one model's metadata
	POST /api/v1/models/{name}/validate   score labelled rows
	GET  /api/v1/events/ws                lifecycle event stream (websocket, optional)

Every JSON response uses the models.APIResponse envelope. Errors carry a
machine readable code; see errors.go for the mapping from domain errors to
status codes.

Middleware order:

	RequestID → RealIP → AccessLog → Recoverer → CORS
	  /api/v1: RateLimit → Metrics → BodyLimit → Compress → Authenticate
*/
package api

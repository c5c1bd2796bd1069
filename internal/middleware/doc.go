// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

/*
Package middleware provides the HTTP middleware shared by every route.

All middleware has the chi signature func(http.Handler) http.Handler:

  - RequestID: accepts or generates X-Request-ID and stores it in the
    logging context
  - AccessLog: one zerolog entry per request
  - Metrics: Prometheus request counters, latency and in-flight gauge,
    labelled by chi route pattern to bound cardinality
  - BodyLimit: caps request bodies with http.MaxBytesReader

Order matters. RequestID runs first so every later log line carries the
ID; Metrics runs inside routing so the route pattern is known.
*/
package middleware

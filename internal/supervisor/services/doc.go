// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package services adapts long-running components to suture.Service.
//
// HTTPServerService turns the ListenAndServe/Shutdown pair of *http.Server
// into a context-driven Serve. RetrainService ticks every training interval
// and asks a Retrainer (the jobs.Runner) to queue each model's last
// successful dataset again.
//
// Every wrapper implements fmt.Stringer so supervisor events name it.
package services

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package estimators implements the statistical building blocks of the
// fusion pipeline: a standard scaler, a random forest classifier and an
// isolation forest anomaly scorer.
//
// # Determinism
//
// Every estimator is seeded. Tree seeds are drawn from the master seed in
// tree order before any tree is grown, so the fitted ensemble is identical
// regardless of how many goroutines grow it.
//
// # Thread Safety
//
// Fit mutates the receiver and must not run concurrently with anything
// else. A fitted estimator is read-only and safe for concurrent scoring.
// The pipeline fits fresh estimators and swaps them in, so it never calls
// Fit on an estimator that is being read.
package estimators

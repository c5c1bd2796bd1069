// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package auth guards the API with bearer tokens and role-based access.
//
// In "jwt" mode every API request carries an HS256 token whose "sub" claim
// names the caller and whose "role" claim is one of viewer, trainer or
// admin. A casbin enforcer then decides (role, path, method):
//
//	viewer    read endpoints, predict, extract-features
//	trainer   viewer plus train and validate
//	admin     everything
//
// In "none" mode the middleware is a pass-through.
package auth

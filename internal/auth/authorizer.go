// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package auth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Roles, from least to most privileged. Each inherits the one before it.
const (
	RoleViewer  = "viewer"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

var roles = []string{RoleViewer, RoleTrainer, RoleAdmin}

// ValidRole reports whether role is known.
func ValidRole(role string) bool { return slices.Contains(roles, role) }

// rbacModel matches (role, path, method) with role inheritance and
// keyMatch2 path patterns such as /models/:name/metadata.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// defaultPolicy paths are relative to the API prefix.
const defaultPolicy = `
p, viewer, /info, GET
p, viewer, /models, GET
p, viewer, /models/:name/metadata, GET
p, viewer, /predict, POST
p, viewer, /extract-features, POST
p, viewer, /train/jobs, GET
p, viewer, /train/jobs/:id, GET
p, viewer, /events/ws, GET

p, trainer, /train, POST
p, trainer, /models/:name/validate, POST

p, admin, /*, *

g, trainer, viewer
g, admin, trainer
`

// Authorizer decides whether a role may call an endpoint.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewAuthorizer builds an authorizer with the built-in role policy.
func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, defaultPolicy); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// loadPolicy reads casbin CSV lines: "p, sub, obj, act" and "g, child, parent".
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for n, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		params := make([]any, 0, len(fields)-1)
		for _, f := range fields[1:] {
			params = append(params, strings.TrimSpace(f))
		}

		var err error
		switch strings.TrimSpace(fields[0]) {
		case "p":
			_, err = enforcer.AddPolicy(params...)
		case "g":
			_, err = enforcer.AddGroupingPolicy(params...)
		default:
			err = fmt.Errorf("unknown policy type %q", fields[0])
		}
		if err != nil {
			return fmt.Errorf("policy line %d: %w", n+1, err)
		}
	}
	return nil
}

// Allowed reports whether role may call method on path.
func (a *Authorizer) Allowed(role, path, method string) (bool, error) {
	if !ValidRole(role) {
		return false, nil
	}
	return a.enforcer.Enforce(role, path, method)
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes suture's restart policy. Zero fields take the defaults.
type TreeConfig struct {
	// FailureThreshold failures, decaying at one per FailureDecay seconds,
	// put a layer into FailureBackoff.
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration

	// ShutdownTimeout bounds how long each service may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Layer names.
const (
	LayerTraining = "training-layer"
	LayerAPI      = "api-layer"
)

// SupervisorTree is the process tree of the service. The training layer
// holds the job runner and the retrain ticker; the API layer holds the HTTP
// server and the event stream. A training worker that keeps crashing backs
// off on its own without taking the HTTP server down with it.
type SupervisorTree struct {
	root     *suture.Supervisor
	training *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig

	mu       sync.Mutex
	services map[string][]string
}

// NewSupervisorTree creates a supervisor tree that logs through logger.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver. Layers inherit the hook from the
	// root when added, so their specs leave it nil.
	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New("fusionserve", config.spec(handler.MustHook()))
	training := suture.New(LayerTraining, config.spec(nil))
	api := suture.New(LayerAPI, config.spec(nil))
	root.Add(training)
	root.Add(api)

	return &SupervisorTree{
		root:     root,
		training: training,
		api:      api,
		config:   config,
		services: map[string][]string{LayerTraining: {}, LayerAPI: {}},
	}, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddTrainingService adds a service to the training layer.
func (t *SupervisorTree) AddTrainingService(svc suture.Service) suture.ServiceToken {
	t.record(LayerTraining, svc)
	return t.training.Add(svc)
}

// RemoveTrainingService stops and removes a training layer service.
func (t *SupervisorTree) RemoveTrainingService(token suture.ServiceToken) error {
	return t.training.Remove(token)
}

// AddAPIService adds a service to the API layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	t.record(LayerAPI, svc)
	return t.api.Add(svc)
}

// Services returns the names of the services added to each layer, in the
// order they were added. Removed services are still listed.
func (t *SupervisorTree) Services() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.services))
	for layer, names := range t.services {
		out[layer] = slices.Clone(names)
	}
	return out
}

func (t *SupervisorTree) record(layer string, svc suture.Service) {
	name := fmt.Sprintf("%T", svc)
	if s, ok := svc.(fmt.Stringer); ok {
		name = s.String()
	}
	t.mu.Lock()
	t.services[layer] = append(t.services[layer], name)
	t.mu.Unlock()
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result of Serve.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that did not stop within the
// shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

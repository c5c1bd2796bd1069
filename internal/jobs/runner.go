// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/cache"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
	"github.com/tomtom215/fusionserve/internal/ml"
)

// Request is the data of one training job.
type Request struct {
	ModelName string
	Rows      [][]float64
	Labels    []int
	Source    string
}

// Notifier is told about finished jobs. Implementations must not block for
// long; the runner calls them inline.
type Notifier interface {
	TrainingSucceeded(ctx context.Context, job *Job, md ml.Metadata)
	TrainingFailed(ctx context.Context, job *Job, err error)
}

// RunnerConfig tunes the Runner.
type RunnerConfig struct {
	// QueueSize bounds jobs waiting to run.
	QueueSize int

	// Timeout bounds a single training run.
	Timeout time.Duration

	// DedupWindow is how long an identical request maps to the same job;
	// zero disables deduplication.
	DedupWindow time.Duration
	DedupSize   int
}

// DefaultRunnerConfig returns the defaults used by the server.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:   16,
		Timeout:     30 * time.Minute,
		DedupWindow: 10 * time.Minute,
		DedupSize:   1024,
	}
}

type queued struct {
	job *Job
	req Request
}

// Runner accepts training requests and runs them one at a time. Serve
// implements suture.Service.
type Runner struct {
	registry *ml.Registry
	store    Store
	notifier Notifier
	config   RunnerConfig
	logger   zerolog.Logger

	queue chan queued
	dedup *cache.LRU[string, string]

	mu       sync.Mutex
	datasets map[string]Request
}

// NewRunner builds a runner. notifier may be nil.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRunner(registry *ml.Registry, store Store, notifier Notifier, cfg RunnerConfig, logger zerolog.Logger) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	r := &Runner{
		registry: registry,
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   logger.With().Str("component", "training-runner").Logger(),
		queue:    make(chan queued, cfg.QueueSize),
		datasets: make(map[string]Request),
	}
	if cfg.DedupWindow > 0 {
		r.dedup = cache.New[string, string](cfg.DedupSize, cfg.DedupWindow)
	}
	return r
}

// Submit records a job for req and queues it. The model must exist; rows
// are checked for shape here so malformed requests fail fast. An identical
// request inside the dedup window returns the existing job with
// Deduplicated set, unless that job failed.
func (r *Runner) Submit(ctx context.Context, req Request) (*Job, error) {
	if _, err := r.registry.Lookup(req.ModelName); err != nil {
		return nil, err
	}
	if _, err := ml.CheckLabelled(req.Rows, req.Labels, 0); err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = SourceFeatures
	}

	id := NewJobID()
	key := ""
	if r.dedup != nil {
		key = fingerprint(req)
		existingID, loaded := r.dedup.GetOrAdd(key, id)
		if loaded {
			existing, err := r.store.Get(ctx, existingID)
			if err == nil && existing.Status != StatusFailed {
				existing.Deduplicated = true
				logging.Enrich(ctx, r.logger).Debug().Str("job_id", existing.ID).Msg("training request deduplicated")
				return existing, nil
			}
			r.dedup.Add(key, id)
		}
	}

	job := &Job{
		ID:        id,
		ModelName: req.ModelName,
		Status:    StatusQueued,
		Source:    req.Source,
		Rows:      len(req.Rows),
		Classes:   countClasses(req.Labels),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Put(ctx, job); err != nil {
		r.forget(key)
		return nil, err
	}

	snapshot := *job
	select {
	case r.queue <- queued{job: &snapshot, req: req}:
	default:
		r.forget(key)
		r.finish(ctx, &snapshot, 0, ErrQueueFull)
		return nil, ErrQueueFull
	}
	metrics.SetTrainingQueueDepth(len(r.queue))

	logging.Enrich(ctx, r.logger).Info().
		Str("job_id", job.ID).
		Str("model", job.ModelName).
		Str("source", job.Source).
		Int("rows", job.Rows).
		Msg("training job queued")

	return job, nil
}

func (r *Runner) forget(key string) {
	if r.dedup != nil && key != "" {
		r.dedup.Remove(key)
	}
}

// Get returns the job with id.
func (r *Runner) Get(ctx context.Context, id string) (*Job, error) {
	return r.store.Get(ctx, id)
}

// List returns recent jobs, newest first.
func (r *Runner) List(ctx context.Context, limit int) ([]*Job, error) {
	return r.store.List(ctx, limit)
}

// Pending returns the number of queued jobs.
func (r *Runner) Pending() int { return len(r.queue) }

// Serve drains the queue until ctx is canceled.
func (r *Runner) Serve(ctx context.Context) error {
	r.logger.Info().Int("queue_size", cap(r.queue)).Dur("timeout", r.config.Timeout).Msg("training runner starting")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Int("pending", len(r.queue)).Msg("training runner shutting down")
			return ctx.Err()
		case item := <-r.queue:
			metrics.SetTrainingQueueDepth(len(r.queue))
			r.run(ctx, item)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (r *Runner) String() string { return "training-runner" }

func (r *Runner) run(ctx context.Context, item queued) {
	job := item.job
	ctx = logging.ContextWithJobID(logging.ContextWithModel(ctx, job.ModelName), job.ID)

	started := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &started
	if err := r.store.Put(ctx, job); err != nil {
		logging.Enrich(ctx, r.logger).Warn().Err(err).Msg("failed to record job start")
	}

	model, err := r.registry.Lookup(job.ModelName)
	if err != nil {
		r.finish(ctx, job, 0, err)
		return
	}

	trainCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if err := model.Train(trainCtx, item.req.Rows, item.req.Labels); err != nil {
		r.finish(ctx, job, 0, err)
		return
	}

	md := model.Metadata()
	r.remember(item.req)
	r.finish(ctx, job, md.Version, nil)
	if r.notifier != nil {
		r.notifier.TrainingSucceeded(ctx, job, md)
	}
}

// finish records the terminal state of job.
func (r *Runner) finish(ctx context.Context, job *Job, version int, err error) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	logger := logging.Enrich(ctx, r.logger)

	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		metrics.RecordTrainingJob(string(StatusFailed))
		logger.Error().Err(err).Str("job_id", job.ID).Msg("training job failed")
		if r.notifier != nil && !errors.Is(err, ErrQueueFull) {
			r.notifier.TrainingFailed(ctx, job, err)
		}
	} else {
		job.Status = StatusSucceeded
		job.ModelVersion = version
		metrics.RecordTrainingJob(string(StatusSucceeded))
		logger.Info().Str("job_id", job.ID).Int("model_version", version).Dur("duration", job.Duration()).Msg("training job succeeded")
	}

	// the job context may already be canceled by shutdown
	if perr := r.store.Put(context.WithoutCancel(ctx), job); perr != nil {
		logger.Warn().Err(perr).Str("job_id", job.ID).Msg("failed to record job result")
	}
}

// remember keeps the last successful dataset of a model for retraining.
func (r *Runner) remember(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[req.ModelName] = req
}

// Resubmit queues the last successful dataset of every model again and
// returns the jobs it created or found. Models without a dataset are
// skipped.
func (r *Runner) Resubmit(ctx context.Context) ([]*Job, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.datasets))
	for name := range r.datasets {
		names = append(names, name)
	}
	slices.Sort(names)
	reqs := make([]Request, len(names))
	for i, name := range names {
		reqs[i] = r.datasets[name]
	}
	r.mu.Unlock()

	var out []*Job
	var errs []error
	for _, req := range reqs {
		req.Source = SourceRetrain
		job, err := r.Submit(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("model %q: %w", req.ModelName, err))
			continue
		}
		out = append(out, job)
	}
	return out, errors.Join(errs...)
}

// fingerprint hashes the model name, rows and labels of req.
func fingerprint(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.ModelName))
	h.Write([]byte{0})
	var buf [8]byte
	for _, row := range req.Rows {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(row)))
		h.Write(buf[:])
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	for _, l := range req.Labels {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(l)))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func countClasses(labels []int) int {
	seen := make(map[int]struct{}, 4)
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

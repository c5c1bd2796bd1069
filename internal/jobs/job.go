// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package jobs runs model training asynchronously.
//
// A training request becomes a Job with a ULID identifier. Jobs are
// recorded in a Store (Badger, in memory or on disk) and processed one at a
// time by the Runner, which is meant to run under a supervisor. Identical
// requests submitted inside the dedup window return the existing job.
package jobs

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a job.
type Status string

// Job states. A job moves queued → running → succeeded or failed.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job sources.
const (
	SourceFeatures = "features"
	SourceContents = "contents"
	SourceRetrain  = "retrain"
)

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("training job not found")

	// ErrQueueFull is returned when the training queue cannot take more work.
	ErrQueueFull = errors.New("training queue is full")
)

// Job is the record of one training request.
type Job struct {
	ID        string `json:"id"`
	ModelName string `json:"model_name"`
	Status    Status `json:"status"`
	Source    string `json:"source"`
	Rows      int    `json:"rows"`
	Classes   int    `json:"classes"`
	Error     string `json:"error,omitempty"`

	// ModelVersion is the model version produced by a successful run.
	ModelVersion int `json:"model_version,omitempty"`

	// Deduplicated is set on responses that returned an existing job.
	Deduplicated bool `json:"deduplicated,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Duration returns how long the job ran, or zero if it has not finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewJobID returns a new lexically sortable job ID.
func NewJobID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Now(), idEntropy).String()
}

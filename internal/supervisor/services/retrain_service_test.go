// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fusionserve/internal/jobs"
)

type fakeRetrainer struct {
	mu    sync.Mutex
	calls int
	jobs  []*jobs.Job
	err   error
}

func (f *fakeRetrainer) Resubmit(ctx context.Context) ([]*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("round has no deadline")
	}
	return f.jobs, f.err
}

func (f *fakeRetrainer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewRetrainServiceDefaults(t *testing.T) {
	svc := NewRetrainService(&fakeRetrainer{}, RetrainServiceConfig{}, zerolog.Nop())
	if svc.config.Interval != time.Hour || svc.config.Timeout != time.Minute {
		t.Errorf("config = %+v, want 1h interval and 1m timeout", svc.config)
	}
	if svc.String() != "retrain-scheduler" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestRetrainServiceTicks(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []*jobs.Job
		err     error
		wantLog string
	}{
		{"queued", []*jobs.Job{{ID: "01A"}, {ID: "01B"}}, nil, "scheduled retrain queued"},
		{"partial failure", []*jobs.Job{{ID: "01A"}}, errors.New("model \"b\": training queue is full"), "scheduled retrain incomplete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out syncBuffer
			r := &fakeRetrainer{jobs: tt.jobs, err: tt.err}
			svc := NewRetrainService(r, RetrainServiceConfig{Interval: 10 * time.Millisecond}, zerolog.New(&out))

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve(ctx) }()

			deadline := time.Now().Add(2 * time.Second)
			for r.Calls() < 2 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			cancel()

			if err := <-errCh; !errors.Is(err, context.Canceled) {
				t.Errorf("Serve = %v, want context.Canceled", err)
			}
			if r.Calls() < 2 {
				t.Fatalf("Resubmit called %d times, want at least 2", r.Calls())
			}
			if !strings.Contains(out.String(), tt.wantLog) {
				t.Errorf("log output missing %q: %s", tt.wantLog, out.String())
			}
		})
	}
}

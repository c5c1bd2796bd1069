// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/ml"
)

func newTestPublisher(t *testing.T, prefix string) *Publisher {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TopicPrefix = prefix
	p, err := NewPublisher(cfg, logging.NewTestLogger(nil))
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"nats", func(c *Config) { c.Backend = BackendNATS }, false},
		{"nats without url", func(c *Config) { c.Backend = BackendNATS; c.NATSURL = "" }, true},
		{"embedded nats without url", func(c *Config) { c.Backend = BackendNATS; c.NATSURL = ""; c.NATSEmbedded = true }, false},
		{"unknown backend", func(c *Config) { c.Backend = "kafka" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTopicPrefix(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	if got := cfg.topic(TopicModelTrained); got != "model.trained" {
		t.Errorf("topic() = %q, want model.trained", got)
	}
	cfg.TopicPrefix = "fusionserve"
	if got := cfg.topic(TopicModelTrained); got != "fusionserve.model.trained" {
		t.Errorf("topic() = %q, want fusionserve.model.trained", got)
	}
	if got := len(Topics()); got != 3 {
		t.Errorf("len(Topics()) = %d, want 3", got)
	}
}

func TestTrainingNotifications(t *testing.T) {
	t.Parallel()
	p := newTestPublisher(t, "fs")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trained, err := p.Subscribe(ctx, TopicModelTrained)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	failed, err := p.Subscribe(ctx, TopicTrainingFailed)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(250 * time.Millisecond)
	job := &jobs.Job{ID: "01JOB", ModelName: "default", Source: jobs.SourceFeatures, Rows: 40, StartedAt: &start, FinishedAt: &end}

	p.TrainingSucceeded(ctx, job, ml.Metadata{Version: 3, Classes: []int{0, 1}, NFeatures: 12})
	msg := receive(t, trained)
	if msg.Metadata.Get(MetadataEventType) != TopicModelTrained {
		t.Errorf("event_type = %q", msg.Metadata.Get(MetadataEventType))
	}
	ev, err := Decode[ModelTrained](msg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.JobID != "01JOB" || ev.Version != 3 || ev.NFeatures != 12 || ev.DurationMS != 250 || len(ev.Classes) != 2 {
		t.Errorf("ModelTrained = %+v", ev)
	}

	p.TrainingFailed(ctx, job, errors.New("boom"))
	fe, err := Decode[TrainingFailed](receive(t, failed))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if fe.Error != "boom" || fe.Model != "default" {
		t.Errorf("TrainingFailed = %+v", fe)
	}
}

func TestAnomaliesDetected(t *testing.T) {
	t.Parallel()
	p := newTestPublisher(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Subscribe(ctx, TopicPredictionAnomaly)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	clean := &ml.Prediction{
		Predictions:   []int{1, 1},
		AnomalyScores: []float64{0.9, 0.95},
		IsAnomaly:     []bool{false, false},
	}
	if p.AnomaliesDetected(ctx, "default", clean, 0.85) {
		t.Error("AnomaliesDetected reported an event for a clean prediction")
	}
	if p.AnomaliesDetected(ctx, "default", nil, 0.85) {
		t.Error("AnomaliesDetected reported an event for nil")
	}

	flagged := &ml.Prediction{
		Predictions:   []int{1, 0, 1},
		AnomalyScores: []float64{0.4, 0.9, 0.7},
		IsAnomaly:     []bool{true, false, true},
	}
	reqCtx := logging.ContextWithRequestID(ctx, "req-1")
	if !p.AnomaliesDetected(reqCtx, "default", flagged, 0.85) {
		t.Fatal("AnomaliesDetected did not report an event")
	}

	msg := receive(t, ch)
	if msg.Metadata.Get("request_id") != "req-1" {
		t.Errorf("request_id metadata = %q", msg.Metadata.Get("request_id"))
	}
	ev, err := Decode[PredictionAnomaly](msg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Anomalies != 2 || ev.Rows != 3 || ev.MinScore != 0.4 || ev.RequestID != "req-1" {
		t.Errorf("PredictionAnomaly = %+v", ev)
	}
	if len(ev.RowIndices) != 2 || ev.RowIndices[0] != 0 || ev.RowIndices[1] != 2 {
		t.Errorf("RowIndices = %v, want [0 2]", ev.RowIndices)
	}
}

func TestPublishAfterClose(t *testing.T) {
	t.Parallel()
	p := newTestPublisher(t, "")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := p.Publish(context.Background(), TopicModelTrained, struct{}{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
}

type failingPublisher struct {
	calls atomic.Int32
}

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls.Add(1)
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublishBreakerOpens(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Backend = "test"
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Minute

	var buf bytes.Buffer
	logger := logging.NewTestLogger(&buf)
	backend := &failingPublisher{}
	p := &Publisher{cfg: cfg, pub: backend, breaker: newBreaker(cfg, logger), logger: logger}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := p.Publish(ctx, TopicModelTrained, struct{}{}); err == nil {
			t.Fatalf("publish %d succeeded against a failing backend", i)
		}
	}
	err := p.Publish(ctx, TopicModelTrained, struct{}{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("third publish = %v, want ErrOpenState", err)
	}
	if backend.calls.Load() != 2 {
		t.Errorf("backend called %d times, want 2", backend.calls.Load())
	}

	// notifications swallow the error and log it
	p.TrainingFailed(ctx, &jobs.Job{ID: "x"}, errors.New("boom"))
	if !strings.Contains(buf.String(), "failed to publish event") {
		t.Errorf("expected a publish warning, got: %s", buf.String())
	}
}

func TestWatermillLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWatermillLogger(logging.NewTestLogger(&buf))

	l.With(watermill.LogFields{"topic": "model.trained"}).Info("subscribed", watermill.LogFields{"n": 1})
	l.Error("publish failed", errors.New("boom"), nil)

	out := buf.String()
	for _, want := range []string{`"topic":"model.trained"`, `"n":1`, `"message":"subscribed"`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package events

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fusionserve/internal/jobs"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
	"github.com/tomtom215/fusionserve/internal/ml"
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("event publisher is closed")

	// ErrSubscribeUnsupported is returned by Subscribe on brokered backends.
	ErrSubscribeUnsupported = errors.New("subscribe is only supported by the gochannel backend")
)

// Publisher publishes lifecycle events. It implements jobs.Notifier.
type Publisher struct {
	cfg     Config
	pub     message.Publisher
	local   *gochannel.GoChannel
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ jobs.Notifier = (*Publisher)(nil)

// NewPublisher builds a publisher for cfg.Backend.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewPublisher(cfg Config, logger zerolog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "events").Str("backend", cfg.Backend).Logger()
	wlogger := NewWatermillLogger(logger)

	p := &Publisher{cfg: cfg, logger: logger}
	switch cfg.Backend {
	case BackendNATS:
		pub, err := newNATSPublisher(cfg, wlogger)
		if err != nil {
			return nil, err
		}
		p.pub = pub
	default:
		p.local = gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, wlogger)
		p.pub = p.local
	}
	p.breaker = newBreaker(cfg, logger)

	logger.Info().Str("topic_prefix", cfg.TopicPrefix).Msg("event publisher ready")
	return p, nil
}

func newBreaker(cfg Config, logger zerolog.Logger) *gobreaker.CircuitBreaker[struct{}] { //nolint:gocritic // zerolog.Logger is designed to be passed by value
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	name := "events-" + cfg.Backend
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("event circuit breaker state change")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), breakerValue(to))
		},
	})
}

func breakerValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Topic returns the full topic name for name.
func (p *Publisher) Topic(name string) string { return p.cfg.topic(name) }

// Publish marshals payload to JSON and publishes it on the topic name.
func (p *Publisher) Publish(ctx context.Context, name string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataEventType, name)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set("request_id", id)
	}
	msg.SetContext(ctx)

	topic := p.cfg.topic(name)
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.pub.Publish(topic, msg)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordCircuitBreakerRequest(p.breaker.Name(), "rejected")
	case err != nil:
		metrics.RecordCircuitBreakerRequest(p.breaker.Name(), "failure")
	default:
		metrics.RecordCircuitBreakerRequest(p.breaker.Name(), "success")
	}
	metrics.RecordEventPublish(name, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// publishLogged publishes and logs failures; lifecycle notifications never
// fail the caller.
func (p *Publisher) publishLogged(ctx context.Context, name string, payload any) {
	if err := p.Publish(ctx, name, payload); err != nil {
		logging.Enrich(ctx, p.logger).Warn().Err(err).Str("event", name).Msg("failed to publish event")
	}
}

// TrainingSucceeded implements jobs.Notifier.
func (p *Publisher) TrainingSucceeded(ctx context.Context, job *jobs.Job, md ml.Metadata) {
	p.publishLogged(ctx, TopicModelTrained, ModelTrained{
		JobID:      job.ID,
		Model:      job.ModelName,
		Version:    md.Version,
		Source:     job.Source,
		Rows:       job.Rows,
		Classes:    md.Classes,
		NFeatures:  md.NFeatures,
		DurationMS: job.Duration().Milliseconds(),
		OccurredAt: time.Now().UTC(),
	})
}

// TrainingFailed implements jobs.Notifier.
func (p *Publisher) TrainingFailed(ctx context.Context, job *jobs.Job, err error) {
	p.publishLogged(ctx, TopicTrainingFailed, TrainingFailed{
		JobID:      job.ID,
		Model:      job.ModelName,
		Source:     job.Source,
		Rows:       job.Rows,
		Error:      err.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

// AnomaliesDetected publishes a prediction.anomaly event when pred flagged
// any row. It reports whether an event was sent.
func (p *Publisher) AnomaliesDetected(ctx context.Context, model string, pred *ml.Prediction, threshold float64) bool {
	if pred == nil || pred.AnomalyCount() == 0 {
		return false
	}
	ev := PredictionAnomaly{
		Model:      model,
		RequestID:  logging.RequestIDFromContext(ctx),
		Rows:       pred.Len(),
		MinScore:   math.Inf(1),
		Threshold:  threshold,
		OccurredAt: time.Now().UTC(),
	}
	for i, flagged := range pred.IsAnomaly {
		if !flagged {
			continue
		}
		ev.RowIndices = append(ev.RowIndices, i)
		ev.MinScore = min(ev.MinScore, pred.AnomalyScores[i])
	}
	ev.Anomalies = len(ev.RowIndices)
	p.publishLogged(ctx, TopicPredictionAnomaly, ev)
	return true
}

// Subscribe returns the messages published on the topic name. Only the
// gochannel backend supports it; brokered consumers subscribe to the broker.
func (p *Publisher) Subscribe(ctx context.Context, name string) (<-chan *message.Message, error) {
	if p.local == nil {
		return nil, ErrSubscribeUnsupported
	}
	return p.local.Subscribe(ctx, p.cfg.topic(name))
}

// Close shuts the backend down. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pub.Close()
}

// Decode unmarshals the JSON payload of msg into T.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s event: %w", msg.Metadata.Get(MetadataEventType), err)
	}
	return v, nil
}

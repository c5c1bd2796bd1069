// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
	Model      ModelConfig      `koanf:"model"`
	Features   FeaturesConfig   `koanf:"features"`
	Training   TrainingConfig   `koanf:"training"`
	Events     EventsConfig     `koanf:"events"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Name            string        `koanf:"name"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// MaxBatchSize caps rows per predict or train request.
	MaxBatchSize int `koanf:"max_batch_size"`

	APIPrefix string `koanf:"api_prefix"`
	Debug     bool   `koanf:"debug"`

	// ScraperServiceURL is the upstream content producer, reported by
	// /info and allowed as a CORS origin.
	ScraperServiceURL string `koanf:"scraper_service_url"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SecurityConfig configures CORS, rate limiting and authentication.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitPeriod   time.Duration `koanf:"rate_limit_period"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// AuthMode is "none" or "jwt".
	AuthMode  string        `koanf:"auth_mode"`
	JWTSecret string        `koanf:"jwt_secret"`
	JWTIssuer string        `koanf:"jwt_issuer"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// LoggingConfig configures zerolog and file rotation.
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Caller     bool   `koanf:"caller"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// ModelConfig configures the registered fusion models.
type ModelConfig struct {
	ConfidenceThreshold float64       `koanf:"confidence_threshold"`
	MinSamples          int           `koanf:"min_samples"`
	TrainingInterval    time.Duration `koanf:"training_interval"`

	// ModelPath is reported by /info. Models live in memory.
	ModelPath string `koanf:"model_path"`

	// Names lists the models registered at startup. The first is also
	// registered as "default" when "default" is not listed.
	Names []string `koanf:"names"`

	NTrees        int     `koanf:"n_trees"`
	MaxDepth      int     `koanf:"max_depth"`
	Seed          int64   `koanf:"seed"`
	Contamination float64 `koanf:"contamination"`
	MaxSamples    int     `koanf:"max_samples"`
}

// FeaturesConfig configures extraction and image loading.
type FeaturesConfig struct {
	UseNLP        bool   `koanf:"use_nlp"`
	UseVision     bool   `koanf:"use_vision"`
	TextModel     string `koanf:"text_model"`
	VisionModel   string `koanf:"vision_model"`
	EmbeddingDim  int    `koanf:"embedding_dim"`
	MaxTextLength int    `koanf:"max_text_length"`
	ImageWidth    int    `koanf:"image_width"`
	ImageHeight   int    `koanf:"image_height"`
	LexiconPath   string `koanf:"lexicon_path"`

	ImageCacheSize int           `koanf:"image_cache_size"`
	ImageCacheTTL  time.Duration `koanf:"image_cache_ttl"`

	FetchTimeout    time.Duration `koanf:"fetch_timeout"`
	FetchMaxBytes   int64         `koanf:"fetch_max_bytes"`
	FetchRateLimit  float64       `koanf:"fetch_rate_limit"`
	FetchAllowFiles bool          `koanf:"fetch_allow_files"`

	// Remote images are off unless FetchAllowRemote is set. An empty host
	// list allows any public host; private addresses also need FetchAllowPrivate.
	FetchAllowRemote  bool     `koanf:"fetch_allow_remote"`
	FetchAllowedHosts []string `koanf:"fetch_allowed_hosts"`
	FetchAllowPrivate bool     `koanf:"fetch_allow_private"`
}

// TrainingConfig configures the training job runner.
type TrainingConfig struct {
	QueueSize int           `koanf:"queue_size"`
	Timeout   time.Duration `koanf:"timeout"`

	// JobStorePath is the Badger directory; empty keeps jobs in memory.
	JobStorePath string `koanf:"job_store_path"`
	JobHistory   int    `koanf:"job_history"`

	DedupWindow    time.Duration `koanf:"dedup_window"`
	RetrainEnabled bool          `koanf:"retrain_enabled"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Backend     string `koanf:"backend"`
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix"`

	// NATSEmbedded runs a broker inside the process on EmbeddedPort and
	// ignores NATSURL. Only builds with -tags=nats include it.
	NATSEmbedded bool `koanf:"nats_embedded"`
	EmbeddedPort int  `koanf:"nats_embedded_port"`

	// StreamEnabled serves events to websocket clients. It needs the
	// gochannel backend.
	StreamEnabled bool `koanf:"stream_enabled"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// defaultConfig is the bottom configuration layer.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:              "Fusionserve ML Service",
			Host:              "0.0.0.0",
			Port:              8000,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxBodyBytes:      8 << 20,
			MaxBatchSize:      100,
			APIPrefix:         "/api/v1",
			ScraperServiceURL: "http://localhost:3000",
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitRequests: 100,
			RateLimitPeriod:   60 * time.Second,
			AuthMode:          "none",
			JWTIssuer:         "fusionserve",
			TokenTTL:          24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Model: ModelConfig{
			ConfidenceThreshold: 0.85,
			MinSamples:          100,
			TrainingInterval:    time.Hour,
			ModelPath:           "models",
			Names:               []string{"default"},
			NTrees:              100,
			Seed:                42,
			Contamination:       0.1,
			MaxSamples:          256,
		},
		Features: FeaturesConfig{
			UseNLP:         true,
			UseVision:      true,
			TextModel:      "hashing",
			VisionModel:    "pooled",
			EmbeddingDim:   128,
			MaxTextLength:  512,
			ImageWidth:     224,
			ImageHeight:    224,
			ImageCacheSize: 512,
			ImageCacheTTL:  10 * time.Minute,
			FetchTimeout:   10 * time.Second,
			FetchMaxBytes:  10 << 20,
			FetchRateLimit: 20,
		},
		Training: TrainingConfig{
			QueueSize:   16,
			Timeout:     30 * time.Minute,
			JobHistory:  200,
			DedupWindow: 10 * time.Minute,
		},
		Events: EventsConfig{
			Enabled:       true,
			Backend:       "gochannel",
			NATSURL:       "nats://127.0.0.1:4222",
			EmbeddedPort:  4222,
			StreamEnabled: true,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

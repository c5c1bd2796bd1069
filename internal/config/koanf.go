// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fusionserve/config.yaml",
	"/etc/fusionserve/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load layers defaults, the first config file found and environment
// variables, then validates the result.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// FilePath returns the config file Load reads, or "" when there is none.
func FilePath() string { return findConfigFile() }

// LoadFile is Load with an explicit config file; an empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment, highest priority.
	// PORT -> server.port, FEATURES_USE_NLP -> features.use_nlp
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processSecondsFields(k); err != nil {
		return nil, fmt.Errorf("failed to process duration fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"model.names",
	"features.fetch_allowed_hosts",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// secondsConfigPaths are durations that also accept a bare number of
// seconds, the way TRAINING_INTERVAL=3600 has always been written.
var secondsConfigPaths = []string{
	"model.training_interval",
	"security.rate_limit_period",
}

func processSecondsFields(k *koanf.Koanf) error {
	for _, path := range secondsConfigPaths {
		var secs string
		switch v := k.Get(path).(type) {
		case string:
			if _, err := strconv.ParseUint(v, 10, 64); err != nil {
				continue
			}
			secs = v
		case int:
			secs = strconv.Itoa(v)
		case int64:
			secs = strconv.FormatInt(v, 10)
		case float64:
			secs = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			continue
		}
		if err := k.Set(path, secs+"s"); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// The unprefixed names are the ones deployments of the service have
// always used.
var envMappings = map[string]string{
	// Server
	"project_name":          "server.name",
	"host":                  "server.host",
	"port":                  "server.port",
	"debug":                 "server.debug",
	"api_v1_prefix":         "server.api_prefix",
	"max_batch_size":        "server.max_batch_size",
	"max_body_bytes":        "server.max_body_bytes",
	"scraper_service_url":   "server.scraper_service_url",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_period":   "security.rate_limit_period",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.jwt_issuer",
	"token_ttl":           "security.token_ttl",

	// Logging
	"log_level":       "logging.level",
	"log_format":      "logging.format",
	"log_caller":      "logging.caller",
	"log_file":        "logging.file",
	"log_max_size_mb": "logging.max_size_mb",
	"log_max_backups": "logging.max_backups",
	"log_max_age":     "logging.max_age_days",
	"log_compress":    "logging.compress",

	// Model
	"model_path":           "model.model_path",
	"model_names":          "model.names",
	"confidence_threshold": "model.confidence_threshold",
	"min_samples":          "model.min_samples",
	"training_interval":    "model.training_interval",
	"model_n_trees":        "model.n_trees",
	"model_max_depth":      "model.max_depth",
	"model_seed":           "model.seed",
	"model_contamination":  "model.contamination",
	"model_max_samples":    "model.max_samples",

	// Features
	"features_use_nlp":             "features.use_nlp",
	"features_use_vision":          "features.use_vision",
	"features_text_model":          "features.text_model",
	"features_vision_model":        "features.vision_model",
	"features_embedding_dim":       "features.embedding_dim",
	"features_max_text_length":     "features.max_text_length",
	"features_image_width":         "features.image_width",
	"features_image_height":        "features.image_height",
	"features_lexicon_path":        "features.lexicon_path",
	"features_image_cache_size":    "features.image_cache_size",
	"features_image_cache_ttl":     "features.image_cache_ttl",
	"features_fetch_timeout":       "features.fetch_timeout",
	"features_fetch_max_bytes":     "features.fetch_max_bytes",
	"features_fetch_rate_limit":    "features.fetch_rate_limit",
	"features_fetch_allow_files":   "features.fetch_allow_files",
	"features_fetch_allow_remote":  "features.fetch_allow_remote",
	"features_fetch_allowed_hosts": "features.fetch_allowed_hosts",
	"features_fetch_allow_private": "features.fetch_allow_private",

	// Training
	"training_queue_size":      "training.queue_size",
	"training_timeout":         "training.timeout",
	"training_job_store_path":  "training.job_store_path",
	"training_job_history":     "training.job_history",
	"training_dedup_window":    "training.dedup_window",
	"training_retrain_enabled": "training.retrain_enabled",

	// Events
	"events_enabled":        "events.enabled",
	"events_backend":        "events.backend",
	"events_topic_prefix":   "events.topic_prefix",
	"events_stream_enabled": "events.stream_enabled",
	"nats_url":              "events.nats_url",
	"nats_embedded":         "events.nats_embedded",
	"nats_embedded_port":    "events.nats_embedded_port",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps known variables and drops everything else, so
// unrelated environment never leaks into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}

// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"errors"
	"fmt"
)

// Default feature configuration values.
const (
	DefaultTextModel     = "hashing"
	DefaultVisionModel   = "pooled"
	DefaultEmbeddingDim  = 128
	DefaultMaxTextLength = 512
	DefaultImageWidth    = 224
	DefaultImageHeight   = 224

	maxEmbeddingDim  = 4096
	maxImageEdge     = 4096
	maxTextLengthCap = 1 << 20
)

// ImageSize is the target [width, height] every image is resized to.
type ImageSize [2]int

// Width returns the target width.
func (s ImageSize) Width() int { return s[0] }

// Height returns the target height.
func (s ImageSize) Height() int { return s[1] }

// Config selects which modalities run and how. It is a value type: an
// Extractor copies it at construction and never changes it afterwards.
type Config struct {
	UseNLP        bool      `json:"use_nlp"`
	UseVision     bool      `json:"use_vision"`
	TextModel     string    `json:"text_model"`
	VisionModel   string    `json:"vision_model"`
	EmbeddingDim  int       `json:"embedding_dim"`
	MaxTextLength int       `json:"max_text_length"`
	ImageSize     ImageSize `json:"image_size"`
}

// DefaultConfig returns the configuration used by the default model.
func DefaultConfig() Config {
	return Config{
		UseNLP:        true,
		UseVision:     true,
		TextModel:     DefaultTextModel,
		VisionModel:   DefaultVisionModel,
		EmbeddingDim:  DefaultEmbeddingDim,
		MaxTextLength: DefaultMaxTextLength,
		ImageSize:     ImageSize{DefaultImageWidth, DefaultImageHeight},
	}
}

// Validate reports structural misconfiguration as an *ExtractionError.
func (c Config) Validate() error {
	var errs []error
	if c.UseNLP {
		if _, ok := lookupTextEncoder(c.TextModel); !ok {
			errs = append(errs, fmt.Errorf("unknown text_model %q", c.TextModel))
		}
		if c.EmbeddingDim < 1 || c.EmbeddingDim > maxEmbeddingDim {
			errs = append(errs, fmt.Errorf("embedding_dim must be between 1 and %d, got %d", maxEmbeddingDim, c.EmbeddingDim))
		}
		if c.MaxTextLength < 1 || c.MaxTextLength > maxTextLengthCap {
			errs = append(errs, fmt.Errorf("max_text_length must be between 1 and %d, got %d", maxTextLengthCap, c.MaxTextLength))
		}
	}
	if c.UseVision {
		if _, ok := lookupImageEncoder(c.VisionModel); !ok {
			errs = append(errs, fmt.Errorf("unknown vision_model %q", c.VisionModel))
		}
		w, h := c.ImageSize.Width(), c.ImageSize.Height()
		if w < 1 || h < 1 || w > maxImageEdge || h > maxImageEdge {
			errs = append(errs, fmt.Errorf("image_size must be two values between 1 and %d, got [%d, %d]", maxImageEdge, w, h))
		}
	}
	if len(errs) > 0 {
		return &ExtractionError{Field: "config", Err: errors.Join(errs...)}
	}
	return nil
}

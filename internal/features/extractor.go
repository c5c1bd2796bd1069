// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Package features turns text and image content into a Bundle of
// fixed-width numeric groups.
//
// An Extractor runs two independent branches. The text branch annotates
// the (truncated) text with a rule-based tagger and produces a POS
// distribution, an entity distribution, six document statistics and a
// mean-pooled token embedding. The vision branch loads each image, resizes
// it, encodes it and averages the per-image vectors; images that fail are
// logged and skipped. Both branches run concurrently and the bundle is
// assembled once both have finished.
//
// Group widths depend only on the Config, so a Layout can flatten any
// bundle from the same extractor into a row of constant width.
package features

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
)

// Option customizes NewExtractor.
type Option func(*extractorOptions)

type extractorOptions struct {
	lexicon *Lexicon
	loader  ImageLoader
	cache   *EmbeddingCache
	logger  *zerolog.Logger
}

// WithLexicon sets the annotator lexicon; the embedded default is used otherwise.
func WithLexicon(lex *Lexicon) Option {
	return func(o *extractorOptions) { o.lexicon = lex }
}

// WithImageLoader sets how image references are resolved.
func WithImageLoader(l ImageLoader) Option {
	return func(o *extractorOptions) { o.loader = l }
}

// WithEmbeddingCache enables per-image embedding memoization.
func WithEmbeddingCache(c *EmbeddingCache) Option {
	return func(o *extractorOptions) { o.cache = c }
}

// WithLogger sets the extractor logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(l zerolog.Logger) Option {
	return func(o *extractorOptions) { o.logger = &l }
}

// Extractor fuses the text and vision branches into one Bundle.
type Extractor struct {
	cfg    Config
	text   *TextAnalyzer
	vision *VisionEmbedder
	layout Layout
	logger zerolog.Logger
}

// NewExtractor validates cfg and builds the enabled branches. An invalid
// cfg is reported as *ExtractionError.
func NewExtractor(cfg Config, opts ...Option) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := extractorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.WithComponent("features")
	if o.logger != nil {
		logger = o.logger.With().Str("component", "features").Logger()
	}

	e := &Extractor{cfg: cfg, logger: logger}

	if cfg.UseNLP {
		newEncoder, _ := lookupTextEncoder(cfg.TextModel)
		lex := o.lexicon
		if lex == nil {
			lex = DefaultLexicon()
		}
		e.text = NewTextAnalyzer(NewLexiconAnnotator(lex), newEncoder(cfg.EmbeddingDim), cfg.MaxTextLength)
		e.layout.Groups = append(e.layout.Groups,
			GroupSpec{Name: GroupPOSTags, Width: len(POSTags)},
			GroupSpec{Name: GroupEntities, Width: len(EntityLabels)},
			GroupSpec{Name: GroupTextStats, Width: TextStatsWidth},
			GroupSpec{Name: GroupTextEmbedding, Width: e.text.Dimensions()},
		)
	}

	if cfg.UseVision {
		newEncoder, _ := lookupImageEncoder(cfg.VisionModel)
		loader := o.loader
		if loader == nil {
			// data URIs only
			loader = NewSourceLoader(LoaderConfig{MaxBytes: DefaultFetcherConfig().MaxBytes})
		}
		e.vision = NewVisionEmbedder(loader, newEncoder(), cfg.ImageSize, o.cache, logger)
		e.layout.Groups = append(e.layout.Groups, GroupSpec{Name: GroupImageFeatures, Width: e.vision.Dimensions()})
	}

	return e, nil
}

// Config returns the configuration the extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// Layout returns the column layout of flattened rows.
func (e *Extractor) Layout() Layout { return e.layout }

// Extract builds the Bundle for content. Content with neither text nor
// images, or whose modalities are disabled, yields an empty Bundle.
func (e *Extractor) Extract(ctx context.Context, content Content) (Bundle, error) {
	var textGroups Bundle
	var imageVec []float64

	g, gctx := errgroup.WithContext(ctx)
	if e.text != nil && content.HasText() {
		text := *content.Text
		g.Go(func() error {
			start := time.Now()
			textGroups = e.text.Analyze(text)
			metrics.RecordExtraction("text", time.Since(start))
			return nil
		})
	}
	if e.vision != nil && content.HasImages() {
		refs := content.Images
		g.Go(func() error {
			start := time.Now()
			imageVec = e.vision.Embed(gctx, refs)
			metrics.RecordExtraction("vision", time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &ExtractionError{Field: "content", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ExtractionError{Field: "content", Err: err}
	}

	bundle := make(Bundle, len(textGroups)+1)
	for k, v := range textGroups {
		bundle[k] = v
	}
	if imageVec != nil {
		bundle[GroupImageFeatures] = imageVec
	}

	logging.Enrich(ctx, e.logger).Debug().
		Strs("groups", bundle.Names()).
		Int("images", len(content.Images)).
		Msg("features extracted")
	return bundle, nil
}

// Row extracts content and flattens it with the extractor's layout.
func (e *Extractor) Row(ctx context.Context, content Content) ([]float64, error) {
	b, err := e.Extract(ctx, content)
	if err != nil {
		return nil, err
	}
	row, err := e.layout.Row(b)
	if err != nil {
		return nil, &ExtractionError{Field: "layout", Err: err}
	}
	return row, nil
}

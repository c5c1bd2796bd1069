// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"iter"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
)

// ImageEncoder maps a resized RGBA image to a fixed-length vector.
type ImageEncoder interface {
	Name() string
	Dimensions() int
	Encode(img *image.RGBA) []float64
}

// ImageEncoderFactory builds an ImageEncoder.
type ImageEncoderFactory func() ImageEncoder

// RegisterImageEncoder makes an encoder selectable through Config.VisionModel.
func RegisterImageEncoder(name string, f ImageEncoderFactory) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	imageEncoders[name] = f
}

func lookupImageEncoder(name string) (ImageEncoderFactory, bool) {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	f, ok := imageEncoders[name]
	return f, ok
}

// ImageEncoderNames lists the registered image encoders, sorted.
func ImageEncoderNames() []string {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	names := make([]string, 0, len(imageEncoders))
	for n := range imageEncoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

const (
	pooledBins = 8
	pooledGrid = 8
	histBins   = 16
)

// PooledEncoder concatenates 8-bin per-channel colour histograms with an
// 8x8 grid of mean luminance.
type PooledEncoder struct{}

func (PooledEncoder) Name() string    { return DefaultVisionModel }
func (PooledEncoder) Dimensions() int { return 3*pooledBins + pooledGrid*pooledGrid }

// Encode implements ImageEncoder.
func (PooledEncoder) Encode(img *image.RGBA) []float64 {
	out := colorHistogram(img, pooledBins)
	return append(out, luminanceGrid(img, pooledGrid)...)
}

// HistogramEncoder is 16-bin per-channel colour histograms only.
type HistogramEncoder struct{}

func (HistogramEncoder) Name() string    { return "histogram" }
func (HistogramEncoder) Dimensions() int { return 3 * histBins }

// Encode implements ImageEncoder.
func (HistogramEncoder) Encode(img *image.RGBA) []float64 {
	return colorHistogram(img, histBins)
}

// colorHistogram returns R, G and B histograms, each normalized to sum 1.
func colorHistogram(img *image.RGBA, bins int) []float64 {
	out := make([]float64, 3*bins)
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				bin := int(img.Pix[i+c]) * bins / 256
				out[c*bins+bin]++
			}
		}
	}
	for i := range out {
		out[i] /= n
	}
	return out
}

// luminanceGrid averages Rec. 601 luma over a grid x grid partition, scaled to [0,1].
func luminanceGrid(img *image.RGBA, grid int) []float64 {
	out := make([]float64, grid*grid)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for gy := 0; gy < grid; gy++ {
		y0, y1 := b.Min.Y+gy*h/grid, b.Min.Y+(gy+1)*h/grid
		for gx := 0; gx < grid; gx++ {
			x0, x1 := b.Min.X+gx*w/grid, b.Min.X+(gx+1)*w/grid
			var sum float64
			var count int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					i := img.PixOffset(x, y)
					sum += 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
					count++
				}
			}
			if count > 0 {
				out[gy*grid+gx] = sum / float64(count) / 255
			}
		}
	}
	return out
}

// EmbeddingCache memoizes per-image embeddings with an LRU bound and a TTL.
// It is safe for concurrent use and may be shared between extractors.
type EmbeddingCache struct {
	lru *expirable.LRU[string, []float64]
}

// NewEmbeddingCache returns a cache of size entries, or nil when size <= 0.
func NewEmbeddingCache(size int, ttl time.Duration) *EmbeddingCache {
	if size <= 0 {
		return nil
	}
	return &EmbeddingCache{lru: expirable.NewLRU[string, []float64](size, nil, ttl)}
}

func (c *EmbeddingCache) get(key string) ([]float64, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *EmbeddingCache) add(key string, v []float64) {
	if c != nil {
		c.lru.Add(key, v)
	}
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// imageResult is one element of the per-image result sequence.
type imageResult struct {
	ref    string
	vector []float64
	stage  string
	err    error
	cached bool
}

// VisionEmbedder loads, resizes and encodes images, then averages the
// per-image vectors.
type VisionEmbedder struct {
	loader  ImageLoader
	encoder ImageEncoder
	size    ImageSize
	cache   *EmbeddingCache
	logger  zerolog.Logger
}

// NewVisionEmbedder wires the pieces together; cache may be nil.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewVisionEmbedder(loader ImageLoader, encoder ImageEncoder, size ImageSize, cache *EmbeddingCache, logger zerolog.Logger) *VisionEmbedder {
	return &VisionEmbedder{loader: loader, encoder: encoder, size: size, cache: cache, logger: logger}
}

// Dimensions returns the encoder width.
func (v *VisionEmbedder) Dimensions() int { return v.encoder.Dimensions() }

// results lazily yields one result per reference. It stops early when ctx
// is done or the consumer stops pulling.
func (v *VisionEmbedder) results(ctx context.Context, refs []string) iter.Seq[imageResult] {
	return func(yield func(imageResult) bool) {
		for _, ref := range refs {
			if ctx.Err() != nil {
				return
			}
			if !yield(v.embedOne(ctx, ref)) {
				return
			}
		}
	}
}

func (v *VisionEmbedder) embedOne(ctx context.Context, ref string) imageResult {
	key := v.cacheKey(ref)
	if vec, ok := v.cache.get(key); ok {
		return imageResult{ref: ref, vector: vec, cached: true}
	}

	img, err := v.loader.Load(ctx, ref)
	if err != nil {
		stage := StageLoad
		var le *ImageLoadError
		if errors.As(err, &le) {
			stage = le.Stage
		}
		return imageResult{ref: ref, stage: stage, err: err}
	}

	vec := v.encoder.Encode(v.prepare(img))
	if len(vec) != v.encoder.Dimensions() {
		return imageResult{ref: ref, stage: StageEncode, err: errors.New("encoder returned " +
			strconv.Itoa(len(vec)) + " values, want " + strconv.Itoa(v.encoder.Dimensions()))}
	}
	v.cache.add(key, vec)
	return imageResult{ref: ref, vector: vec}
}

// prepare converts to RGBA at the target size in one bilinear pass.
func (v *VisionEmbedder) prepare(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, v.size.Width(), v.size.Height()))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func (v *VisionEmbedder) cacheKey(ref string) string {
	h := sha256.New()
	h.Write([]byte(v.encoder.Name()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(v.size.Width()) + "x" + strconv.Itoa(v.size.Height())))
	h.Write([]byte{0})
	h.Write([]byte(ref))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed averages the embeddings of every image that loads and encodes.
// Failed images are logged and skipped. When nothing succeeds the result is
// an empty, non-nil slice.
func (v *VisionEmbedder) Embed(ctx context.Context, refs []string) []float64 {
	var sum []float64
	count := 0
	for r := range v.results(ctx, refs) {
		if r.err != nil {
			logging.Enrich(ctx, v.logger).Warn().Err(r.err).
				Str("image", truncateRef(r.ref)).Str("stage", r.stage).
				Msg("image skipped")
			metrics.RecordImageFailure(r.stage)
			continue
		}
		if r.cached {
			metrics.RecordImage("cached")
		} else {
			metrics.RecordImage("encoded")
		}
		if sum == nil {
			sum = make([]float64, len(r.vector))
		}
		floats.Add(sum, r.vector)
		count++
	}
	if count == 0 {
		return []float64{}
	}
	floats.Scale(1/float64(count), sum)
	return sum
}

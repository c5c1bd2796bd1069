// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"hash/fnv"
	"sort"
	"sync"
	"unicode/utf8"

	"gonum.org/v1/gonum/floats"
)

// TextEncoder produces one dense vector per token. The analyzer mean-pools
// them into the text_embedding group.
type TextEncoder interface {
	Name() string
	Dimensions() int
	EncodeTokens(tokens []Token) [][]float64
}

// TextEncoderFactory builds a TextEncoder for a given embedding size.
type TextEncoderFactory func(dim int) TextEncoder

var (
	encodersMu    sync.RWMutex
	textEncoders  = map[string]TextEncoderFactory{}
	imageEncoders = map[string]ImageEncoderFactory{}
)

//nolint:gochecknoinits // built-in encoders must be selectable by name
func init() {
	RegisterTextEncoder(DefaultTextModel, func(dim int) TextEncoder { return NewHashingEncoder(dim) })
	RegisterImageEncoder(DefaultVisionModel, func() ImageEncoder { return PooledEncoder{} })
	RegisterImageEncoder("histogram", func() ImageEncoder { return HistogramEncoder{} })
}

// RegisterTextEncoder makes an encoder selectable through Config.TextModel.
// Registering an existing name replaces it.
func RegisterTextEncoder(name string, f TextEncoderFactory) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	textEncoders[name] = f
}

func lookupTextEncoder(name string) (TextEncoderFactory, bool) {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	f, ok := textEncoders[name]
	return f, ok
}

// TextEncoderNames lists the registered text encoders, sorted.
func TextEncoderNames() []string {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	names := make([]string, 0, len(textEncoders))
	for n := range textEncoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HashingEncoder embeds a token by hashing its lemma and the lemma's
// character trigrams into signed buckets, then L2-normalizing. Equal
// lemmas always map to equal vectors and morphologically close words share
// trigram buckets.
type HashingEncoder struct {
	dim int
}

// NewHashingEncoder returns a HashingEncoder with dim buckets.
func NewHashingEncoder(dim int) *HashingEncoder {
	return &HashingEncoder{dim: dim}
}

func (e *HashingEncoder) Name() string    { return DefaultTextModel }
func (e *HashingEncoder) Dimensions() int { return e.dim }

const trigramWeight = 0.5

// EncodeTokens implements TextEncoder.
func (e *HashingEncoder) EncodeTokens(tokens []Token) [][]float64 {
	out := make([][]float64, len(tokens))
	for i, t := range tokens {
		v := make([]float64, e.dim)
		key := t.Lemma
		if key == "" {
			key = t.Lower
		}
		e.add(v, "w:"+key, 1)
		padded := "<" + key + ">"
		if utf8.RuneCountInString(padded) >= 3 {
			runes := []rune(padded)
			for j := 0; j+3 <= len(runes); j++ {
				e.add(v, "g:"+string(runes[j:j+3]), trigramWeight)
			}
		}
		normalize(v)
		out[i] = v
	}
	return out
}

func (e *HashingEncoder) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature)) //nolint:errcheck // hash writes never fail
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func normalize(v []float64) {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return
	}
	floats.Scale(1/norm, v)
}

// TextAnalyzer turns raw text into the four text feature groups.
type TextAnalyzer struct {
	annotator Annotator
	encoder   TextEncoder
	maxLen    int
}

// NewTextAnalyzer combines an annotator and encoder. Text longer than
// maxLen runes is truncated before analysis.
func NewTextAnalyzer(annotator Annotator, encoder TextEncoder, maxLen int) *TextAnalyzer {
	return &TextAnalyzer{annotator: annotator, encoder: encoder, maxLen: maxLen}
}

// Dimensions returns the embedding width.
func (a *TextAnalyzer) Dimensions() int { return a.encoder.Dimensions() }

// Analyze returns pos_tags, entities, text_stats and text_embedding for text.
func (a *TextAnalyzer) Analyze(text string) Bundle {
	doc := a.annotator.Annotate(truncateRunes(text, a.maxLen))
	n := len(doc.Tokens)
	denom := float64(max(n, 1))

	pos := make([]float64, len(POSTags))
	var nonPunct, stops, oov int
	lemmas := make(map[string]struct{}, n)
	for _, t := range doc.Tokens {
		if i := posIndex(t.POS); i >= 0 {
			pos[i]++
		}
		if !t.IsPunct {
			nonPunct++
		}
		if t.IsStop {
			stops++
		}
		if t.IsOOV {
			oov++
		}
		lemmas[t.Lemma] = struct{}{}
	}
	for i := range pos {
		pos[i] /= denom
	}

	ents := make([]float64, len(EntityLabels))
	entDenom := float64(max(len(doc.Entities), 1))
	for _, e := range doc.Entities {
		if i := entityIndex(e.Label); i >= 0 {
			ents[i]++
		}
	}
	for i := range ents {
		ents[i] /= entDenom
	}

	stats := []float64{
		float64(n),
		float64(nonPunct),
		float64(stops),
		float64(len(doc.Entities)),
		float64(len(lemmas)) / denom,
		float64(oov) / denom,
	}

	return Bundle{
		GroupPOSTags:       pos,
		GroupEntities:      ents,
		GroupTextStats:     stats,
		GroupTextEmbedding: meanPool(a.encoder.EncodeTokens(doc.Tokens), a.encoder.Dimensions()),
	}
}

func meanPool(vectors [][]float64, dim int) []float64 {
	out := make([]float64, dim)
	if len(vectors) == 0 {
		return out
	}
	for _, v := range vectors {
		floats.Add(out, v)
	}
	floats.Scale(1/float64(len(vectors)), out)
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

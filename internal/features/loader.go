// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/url"
	"os"
	"strings"

	_ "golang.org/x/image/webp" // register decoder
)

// Image load stages, used as the failure label.
const (
	StageLoad   = "load"
	StageDecode = "decode"
	StageEncode = "encode"
)

var (
	// ErrFilesDisabled is returned for filesystem references when file access is off.
	ErrFilesDisabled = errors.New("file image references are disabled")
	// ErrRemoteDisabled is returned for http(s) references when remote access is off.
	ErrRemoteDisabled = errors.New("remote image references are disabled")
)

// ImageLoadError wraps a failure to load or decode a single image.
type ImageLoadError struct {
	Stage string
	Err   error
}

func (e *ImageLoadError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *ImageLoadError) Unwrap() error { return e.Err }

// ImageLoader resolves an image reference to a decoded image.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// LoaderConfig configures a SourceLoader.
type LoaderConfig struct {
	// AllowFiles permits plain filesystem paths and file:// URLs.
	AllowFiles bool
	// AllowRemote permits http and https references through Fetcher.
	AllowRemote bool
	// MaxBytes caps file and data URI payloads.
	MaxBytes int64
	// Fetcher handles http and https references; nil rejects them.
	Fetcher *HTTPFetcher
}

// SourceLoader understands data: URIs, http(s) URLs and local paths.
type SourceLoader struct {
	cfg LoaderConfig
}

// NewSourceLoader returns a loader for cfg.
func NewSourceLoader(cfg LoaderConfig) *SourceLoader {
	return &SourceLoader{cfg: cfg}
}

// Load implements ImageLoader.
func (l *SourceLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	data, err := l.read(ctx, strings.TrimSpace(ref))
	if err != nil {
		return nil, &ImageLoadError{Stage: StageLoad, Err: err}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageLoadError{Stage: StageDecode, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &ImageLoadError{Stage: StageDecode, Err: errors.New("image has no pixels")}
	}
	return img, nil
}

func (l *SourceLoader) read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, errors.New("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref, l.cfg.MaxBytes)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if !l.cfg.AllowRemote || l.cfg.Fetcher == nil {
			return nil, ErrRemoteDisabled
		}
		return l.cfg.Fetcher.Fetch(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, err
		}
		return l.readFile(u.Path)
	case strings.Contains(ref, "://"):
		return nil, fmt.Errorf("unsupported image reference scheme in %q", truncateRef(ref))
	default:
		return l.readFile(ref)
	}
}

func (l *SourceLoader) readFile(path string) ([]byte, error) {
	if !l.cfg.AllowFiles {
		return nil, ErrFilesDisabled
	}
	f, err := os.Open(path) //nolint:gosec // file access is an explicit opt-in
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file
	return readLimited(f, l.cfg.MaxBytes)
}

// decodeDataURI handles data:[<mediatype>][;base64],<payload>.
func decodeDataURI(ref string, limit int64) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, err
		}
		return checkSize([]byte(decoded), limit)
	}
	if limit > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > limit+2 {
		return nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("data URI payload: %w", err)
	}
	return checkSize(data, limit)
}

func checkSize(data []byte, limit int64) ([]byte, error) {
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// truncateRef keeps log lines short for inline data URIs.
func truncateRef(ref string) string {
	const maxRef = 96
	if len(ref) <= maxRef {
		return ref
	}
	return fmt.Sprintf("%s...(%d bytes)", ref[:maxRef], len(ref))
}

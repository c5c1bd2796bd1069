// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"syscall"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/metrics"
)

// FetcherConfig tunes the remote image fetcher.
type FetcherConfig struct {
	Name     string
	Timeout  time.Duration
	MaxBytes int64

	// RateLimit is requests per second across all remote images; 0 disables it.
	RateLimit float64
	Burst     int

	// FailureThreshold consecutive upstream failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration

	// AllowedHosts restricts fetches to these hostnames when non-empty.
	AllowedHosts []string
	// AllowPrivate lets the default client dial loopback, private and
	// link-local addresses.
	AllowPrivate bool
}

// DefaultFetcherConfig returns conservative defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Name:             "image-fetch",
		Timeout:          10 * time.Second,
		MaxBytes:         10 << 20,
		RateLimit:        20,
		Burst:            10,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

var (
	// ErrTooLarge is returned when an image exceeds the configured byte limit.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrHostNotAllowed is returned for hosts outside FetcherConfig.AllowedHosts.
	ErrHostNotAllowed = errors.New("image host not allowed")
	// ErrAddressBlocked is returned when a remote host resolves to a
	// non-public address.
	ErrAddressBlocked = errors.New("image address not allowed")
)

// HTTPFetcher downloads remote images behind a rate limiter and a circuit
// breaker. It never retries; a failed image is skipped by the caller.
type HTTPFetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[[]byte]
	maxBytes int64
	name     string
	hosts    []string
}

// NewHTTPFetcher builds a fetcher. A nil client uses one with cfg.Timeout
// that refuses non-public addresses unless cfg.AllowPrivate is set.
func NewHTTPFetcher(cfg FetcherConfig, client *http.Client) *HTTPFetcher {
	if cfg.Name == "" {
		cfg.Name = "image-fetch"
	}
	if client == nil {
		client = newFetchClient(cfg)
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// client errors say nothing about upstream health
		IsSuccessful: func(err error) bool {
			var se *HTTPStatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, ErrTooLarge) || errors.Is(err, ErrAddressBlocked)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("image fetch circuit breaker state change")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), stateValue(to))
		},
	})

	return &HTTPFetcher{
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		cb:       cb,
		maxBytes: cfg.MaxBytes,
		name:     cfg.Name,
		hosts:    normalizeHosts(cfg.AllowedHosts),
	}
}

func newFetchClient(cfg FetcherConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
	if !cfg.AllowPrivate {
		dialer.Control = publicOnly
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// a proxy would be dialed instead of the image host
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: cfg.Timeout, Transport: transport}
}

// publicOnly is a net.Dialer Control hook. It runs after DNS resolution, so
// a public name pointing at an internal address is refused too.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAddressBlocked, host)
	}
	if !isPublic(addr.Unmap()) {
		return fmt.Errorf("%w: %s", ErrAddressBlocked, addr)
	}
	return nil
}

func isPublic(addr netip.Addr) bool {
	return addr.IsGlobalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast()
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func (f *HTTPFetcher) hostAllowed(rawURL string) error {
	if len(f.hosts) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if !slices.Contains(f.hosts, strings.ToLower(u.Hostname())) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Fetch returns the body of rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.hostAllowed(rawURL); err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := f.cb.Execute(func() ([]byte, error) {
		return f.get(ctx, rawURL)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordCircuitBreakerRequest(f.name, "rejected")
	case err != nil:
		metrics.RecordCircuitBreakerRequest(f.name, "failure")
	default:
		metrics.RecordCircuitBreakerRequest(f.name, "success")
	}
	return body, err
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return readLimited(resp.Body, f.maxBytes)
}

// readLimited reads r fully, failing with ErrTooLarge past limit bytes.
// A non-positive limit disables the check.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

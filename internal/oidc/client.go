// Package oidc fetches and inspects OpenID Connect discovery and JWKS documents.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/janovincze/idbroker/internal/metrics"
)

// Fetch defaults.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxResponseSize = 1 << 20 // 1MB
	DefaultUserAgent       = "idbroker-discovery"
)

// Fetch outcomes used as metric labels.
const (
	OutcomeSuccess      = "success"
	OutcomeRequestError = "request_error"
	OutcomeNetworkError = "network_error"
	OutcomeHTTPError    = "http_error"
	OutcomeTooLarge     = "too_large"
	OutcomeDecodeError  = "decode_error"
)

// HTTPClient is the part of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherConfig holds fetcher settings.
type FetcherConfig struct {
	// Timeout bounds each individual fetch
	Timeout time.Duration

	// MaxResponseSize is the largest body accepted, in bytes
	MaxResponseSize int64

	// UserAgent is sent with every request
	UserAgent string
}

// DefaultFetcherConfig returns a FetcherConfig with sensible defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:         DefaultTimeout,
		MaxResponseSize: DefaultMaxResponseSize,
		UserAgent:       DefaultUserAgent,
	}
}

// Fetcher retrieves JSON documents from remote identity providers. It holds
// no per-call state and is safe for concurrent use.
type Fetcher struct {
	client HTTPClient
	cfg    FetcherConfig
	logger *slog.Logger
}

// NewHTTPClient creates the shared HTTP client used for discovery.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewFetcher creates a new Fetcher. A nil client gets a default *http.Client.
func NewFetcher(client HTTPClient, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "oidc-fetcher"),
	}
}

// FetchJSON performs a GET against rawURL and decodes the body as a JSON
// object. Every failure is returned as a *FetchError.
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string) (map[string]any, error) {
	start := time.Now()
	doc, outcome, err := f.fetch(ctx, rawURL)
	duration := time.Since(start)

	metrics.DiscoveryFetchesTotal.WithLabelValues(outcome).Inc()
	metrics.DiscoveryFetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	if err != nil {
		f.logger.Warn("document fetch failed",
			"url", rawURL,
			"outcome", outcome,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	f.logger.Debug("document fetched", "url", rawURL, "duration_ms", duration.Milliseconds())
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (map[string]any, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, OutcomeRequestError, &FetchError{URL: rawURL, Detail: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, OutcomeNetworkError, &FetchError{URL: rawURL, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, OutcomeNetworkError, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("failed to read response body: %v", err),
			Err:        err,
		}
	}
	tooLarge := int64(len(body)) > f.cfg.MaxResponseSize
	if tooLarge {
		body = body[:f.cfg.MaxResponseSize]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(body)
		if strings.TrimSpace(detail) == "" {
			detail = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, OutcomeHTTPError, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Detail: detail}
	}

	if tooLarge {
		return nil, OutcomeTooLarge, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("response exceeds maximum size of %d bytes", f.cfg.MaxResponseSize),
		}
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, OutcomeDecodeError, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("invalid JSON document: %v", err),
			Err:        err,
		}
	}
	if doc == nil {
		return nil, OutcomeDecodeError, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Detail:     "invalid JSON document: expected an object",
		}
	}

	return doc, OutcomeSuccess, nil
}

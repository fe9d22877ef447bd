package nwis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	// DefaultTimeout bounds a single request, including reading the body.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "nwis-data-etl"

	// maxErrorBody caps how much of a failed response is kept for diagnostics.
	maxErrorBody = 4096
)

// Request outcomes reported to an Observer.
const (
	OutcomeSuccess        = "success"
	OutcomeTransportError = "transport_error"
	OutcomeStatusError    = "status_error"
	OutcomeDecodeError    = "decode_error"
)

// Observer is notified once per Fetch with the outcome and elapsed time.
type Observer func(outcome string, elapsed time.Duration)

// Client performs single-shot GET requests against the NWIS web services.
// It never retries and never caches; callers own any retry policy.
type Client struct {
	httpClient *http.Client
	root       string
	userAgent  string
	timeout    time.Duration
	logger     *slog.Logger
	observe    Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRoot overrides DefaultRoot, e.g. to point at a test server.
func WithRoot(root string) Option {
	return func(c *Client) { c.root = root }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger used for request and fetch summaries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a hook that sees every request outcome.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// NewClient creates a Client for DefaultRoot with DefaultTimeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		root:      DefaultRoot,
		userAgent: defaultUserAgent,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Root returns the service root the client targets.
func (c *Client) Root() string { return c.root }

// ServiceURL returns the base endpoint of s under the client's root.
func (c *Client) ServiceURL(s Service) string { return ServiceURL(c.root, s) }

// Fetch GETs rawURL with Accept-Encoding: gzip and returns the decompressed
// body. Failures are *TransportError, *HTTPStatusError or *DecodeError.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	body, outcome, err := c.fetch(ctx, rawURL)
	elapsed := time.Since(start)
	if c.observe != nil {
		c.observe(outcome, elapsed)
	}
	if err != nil {
		c.logger.Debug("nwis request failed", "url", rawURL, "outcome", outcome, "error", err)
		return nil, err
	}
	c.logger.Debug("nwis request complete", "url", rawURL, "bytes", len(body), "duration", elapsed)
	return body, nil
}

// FetchJSON fetches rawURL and decodes the body into v.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Format: FormatJSON, Err: err}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, OutcomeTransportError, &TransportError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	// Setting Accept-Encoding ourselves turns off net/http's transparent
	// decompression, so the body is inflated below.
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, OutcomeTransportError, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, OutcomeTransportError, &TransportError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	encoding := resp.Header.Get("Content-Encoding")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, derr := decompress(encoding, raw)
		if derr != nil {
			body = raw
		}
		return nil, OutcomeStatusError, &HTTPStatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       truncate(body, maxErrorBody),
		}
	}

	body, err := decompress(encoding, raw)
	if err != nil {
		return nil, OutcomeDecodeError, &DecodeError{Format: "gzip", Err: err}
	}
	return body, OutcomeSuccess, nil
}

// decompress inflates body when the server declared gzip or the payload
// carries the gzip magic bytes.
func decompress(encoding string, body []byte) ([]byte, error) {
	declared := strings.EqualFold(strings.TrimSpace(encoding), "gzip")
	if !declared && !isGzip(body) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func truncate(b []byte, n int) []byte {
	b = bytes.TrimSpace(b)
	if len(b) <= n {
		return b
	}
	return b[:n]
}

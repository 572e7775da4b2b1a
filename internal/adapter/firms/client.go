// Package firms fetches hotspot CSV payloads over HTTP.
package firms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
)

// errorBodyLimit caps how much of a non-2xx body is kept for the error message.
const errorBodyLimit = 512

// Options configures a Client.
type Options struct {
	URL      string
	Headers  map[string]string // sent with every request, e.g. Authorization
	Timeout  time.Duration
	MaxBytes int64
	Encoding string // WHATWG label; empty means UTF-8
}

// Client implements pipeline.Fetcher against a FIRMS-style CSV endpoint.
type Client struct {
	url        string
	headers    map[string]string
	maxBytes   int64
	decoder    encoding.Encoding
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a fetch client. It fails only on an unknown encoding label.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	var enc encoding.Encoding
	if opts.Encoding != "" {
		e, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, fmt.Errorf("source encoding %q: %w", opts.Encoding, err)
		}
		enc = e
	}
	return &Client{
		url:      opts.URL,
		headers:  opts.Headers,
		maxBytes: opts.MaxBytes,
		decoder:  enc,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}, nil
}

// Source returns the endpoint with credentials masked, safe for logs.
func (c *Client) Source() string {
	return RedactURL(c.url)
}

// Fetch performs one GET and returns the body decoded to UTF-8. Transport
// failures come back as *domain.NetworkError and non-2xx responses as
// *domain.HTTPStatusError.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	source := c.Source()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{URL: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &domain.HTTPStatusError{
			URL:        source,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, &domain.NetworkError{URL: source, Err: err}
	}

	c.logger.Debug("fetched payload", "source", source, "status_code", resp.StatusCode, "bytes", len(body))
	return body, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.maxBytes > 0 {
		r = io.LimitReader(r, c.maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.maxBytes > 0 && int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", c.maxBytes)
	}
	if c.decoder == nil {
		return body, nil
	}
	decoded, err := c.decoder.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return decoded, nil
}

// RedactURL masks userinfo, query values and the FIRMS map key path segment.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if q := u.Query(); len(q) > 0 {
		for k := range q {
			q.Set(k, "redacted")
		}
		u.RawQuery = q.Encode()
	}
	// FIRMS puts the map key right after /api/<endpoint>/<format>/.
	segs := strings.Split(u.Path, "/")
	for i := 0; i+3 < len(segs); i++ {
		if segs[i] == "api" && segs[i+3] != "" {
			segs[i+3] = "redacted"
			u.Path = strings.Join(segs, "/")
			u.RawPath = ""
			break
		}
	}
	return u.String()
}

// Package httputil implements the fetch capability handed to providers: a
// hardened HTTP client with browser-like defaults, an optional egress proxy
// and error classification onto the media error taxonomy.
package httputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sourcery/internal/media"
)

// DefaultUserAgent is sent when a request sets no User-Agent of its own.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

const defaultReadLimit = 10 * 1024 * 1024 // 10MB

// Options describes a single request. The zero value is a plain GET.
type Options struct {
	Method  string
	Headers map[string]string
	Query   url.Values
	// Form is sent url-encoded when Body is nil.
	Form url.Values
	Body []byte
	// ReadLimit caps the response body; zero means 10MB.
	ReadLimit int64
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
}

// Config holds the transport settings for a Client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// ProxyURL routes every request through an egress proxy when set.
	ProxyURL string
	// AllowHTTP lifts the https-only rule. Only local tooling sets it.
	AllowHTTP bool
}

// Client performs provider requests.
type Client struct {
	http      *http.Client
	userAgent string
	allowHTTP bool
}

// NewHTTPClient creates a hardened *http.Client with secure defaults.
func NewHTTPClient(timeout time.Duration, proxy *url.URL) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConnsPerHost: 5,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	var proxy *url.URL
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid proxy url %q", media.ErrConfiguration, cfg.ProxyURL)
		}
		proxy = u
	}
	c := Wrap(NewHTTPClient(cfg.Timeout, proxy), cfg.UserAgent)
	c.allowHTTP = cfg.AllowHTTP
	return c, nil
}

// Wrap adapts an existing *http.Client, such as an httptest server's client.
func Wrap(hc *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{http: hc, userAgent: userAgent}
}

// Fetch performs the request and returns the body of a 2xx response.
// A 404 wraps media.ErrNotFound; any other failure wraps media.ErrTransport.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	resp, err := c.FetchFull(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if err := StatusError(resp.StatusCode, rawURL); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FetchFull performs the request and returns the response whatever its
// status. Only network failures produce an error.
func (c *Client) FetchFull(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	req, err := c.newRequest(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", media.ErrTransport, req.Method, redactURL(req.URL), err)
	}
	defer resp.Body.Close()

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading response: %v", media.ErrTransport, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string, opts Options) (*http.Request, error) {
	if err := c.validate(rawURL); err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", media.ErrTransport, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrTransport, err)
	}
	if len(opts.Query) > 0 {
		q := u.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	method := opts.Method
	var body io.Reader
	contentType := ""
	switch {
	case opts.Body != nil:
		body = bytes.NewReader(opts.Body)
	case opts.Form != nil:
		body = strings.NewReader(opts.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", media.ErrTransport, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) validate(rawURL string) error {
	if c.allowHTTP {
		u, err := url.Parse(rawURL)
		if err != nil {
			return err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return nil
	}
	return ValidateURL(rawURL)
}

// StatusError maps a non-2xx status onto the error taxonomy.
func StatusError(status int, rawURL string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: status %d for %s", media.ErrNotFound, status, RedactURL(rawURL))
	default:
		return fmt.Errorf("%w: unexpected status %d for %s", media.ErrTransport, status, RedactURL(rawURL))
	}
}

package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

// apiClient is the HTTP plumbing shared by the service implementations:
// bearer auth, a client-side rate limit and retries on throttling.
type apiClient struct {
	service    string
	baseURL    string
	token      string
	fetch      provider.Fetcher
	limiter    *rate.Limiter
	retries    uint
	retryDelay time.Duration
	log        *logrus.Entry
}

func newAPIClient(service, defaultBase string, opts ServiceOptions) *apiClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBase
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &apiClient{
		service:    service,
		baseURL:    base,
		token:      strings.TrimSpace(opts.Token),
		fetch:      opts.Fetcher,
		limiter:    limiter,
		retries:    opts.Retries,
		retryDelay: delay,
		log:        log.WithField("service", service),
	}
}

// throttled marks a response worth retrying.
type throttled struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (t *throttled) Error() string {
	return fmt.Sprintf("status %d: %s", t.status, t.body)
}

// apiError is the error body shape used by Real-Debrid.
type apiError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func isThrottled(resp *httputil.Response) (bool, time.Duration) {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
	case http.StatusServiceUnavailable:
		var e apiError
		if err := json.Unmarshal(resp.Body, &e); err != nil ||
			(e.Error != "hoster_unavailable" && e.ErrorCode != 19) {
			return false, 0
		}
	default:
		return false, 0
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return true, time.Duration(secs) * time.Second
	}
	return true, 0
}

// do performs one API call, waiting on the rate limiter and retrying
// throttled responses with exponential backoff.
func (c *apiClient) do(ctx context.Context, method, endpoint string, query, form url.Values) (*httputil.Response, error) {
	opts := httputil.Options{
		Method:  method,
		Headers: map[string]string{"Authorization": "Bearer " + c.token, "Accept": "application/json"},
		Query:   query,
		Form:    form,
	}
	u := c.baseURL + endpoint

	resp, err := retry.DoWithData(
		func() (*httputil.Response, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Unrecoverable(err)
			}
			resp, err := c.fetch.FetchFull(ctx, u, opts)
			if err != nil {
				if ctx.Err() != nil {
					return nil, retry.Unrecoverable(err)
				}
				return nil, err
			}
			if ok, after := isThrottled(resp); ok {
				return nil, &throttled{status: resp.StatusCode, retryAfter: after, body: snippet(resp.Body)}
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retries+1),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var t *throttled
			return errors.As(err, &t) || errors.Is(err, media.ErrTransport)
		}),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			var t *throttled
			if errors.As(err, &t) && t.retryAfter > 0 {
				return t.retryAfter
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithError(err).WithField("attempt", n+1).Debug("retrying debrid request")
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var t *throttled
		if errors.As(err, &t) {
			return nil, fmt.Errorf("%w: %s throttled after %d attempts: %v", media.ErrTransport, c.service, c.retries+1, t)
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s rejected the API token (status %d)", media.ErrConfiguration, c.service, resp.StatusCode)
	}
	return resp, nil
}

// decode checks for a 2xx status and unmarshals the body into v.
func (c *apiClient) decode(resp *httputil.Response, endpoint string, v any) error {
	if err := httputil.StatusError(resp.StatusCode, c.baseURL+endpoint); err != nil {
		return fmt.Errorf("%s %s: %w (body: %s)", c.service, endpoint, err, snippet(resp.Body))
	}
	if v == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: decode %s %s response: %v", media.ErrTransport, c.service, endpoint, err)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

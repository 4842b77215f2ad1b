package httputil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcery/internal/media"
)

func newTestServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	return srv, Wrap(srv.Client(), "")
}

func TestFetchSetsHeadersAndQuery(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://ref.example/", r.Header.Get("Referer"))
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		assert.Equal(t, "keep", r.URL.Query().Get("base"))
		_, _ = io.WriteString(w, "ok")
	})

	body, err := c.Fetch(context.Background(), srv.URL+"/path?base=keep", Options{
		Headers: map[string]string{"Referer": "https://ref.example/"},
		Query:   url.Values{"id": {"42"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestFetchPostsForm(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "magnet:?xt=urn:btih:abc", r.PostForm.Get("magnet"))
		_, _ = io.WriteString(w, `{"id":"X"}`)
	})

	body, err := c.Fetch(context.Background(), srv.URL, Options{
		Form: url.Values{"magnet": {"magnet:?xt=urn:btih:abc"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"X"}`, string(body))
}

func TestFetchStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, media.ErrNotFound},
		{http.StatusInternalServerError, media.ErrTransport},
		{http.StatusForbidden, media.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.Fetch(context.Background(), srv.URL, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchFullReturnsNon2xx(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	})

	resp, err := c.FetchFull(context.Background(), srv.URL+"/start", Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Test"))
	assert.Equal(t, "short and stout", string(resp.Body))
	assert.Equal(t, srv.URL+"/final", resp.FinalURL)
}

func TestFetchRejectsPlainHTTP(t *testing.T) {
	c := Wrap(http.DefaultClient, "")
	_, err := c.Fetch(context.Background(), "http://example.com", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrTransport)
}

func TestFetchHonoursContext(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, srv.URL, Options{})
	require.Error(t, err)
	assert.Equal(t, media.KindTimeout, media.KindOf(err))
}

func TestReadLimit(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789")
	})

	body, err := c.Fetch(context.Background(), srv.URL, Options{ReadLimit: 4})
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
}

func TestNewRejectsBadProxy(t *testing.T) {
	_, err := New(Config{ProxyURL: "::not a url"})
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrConfiguration)

	c, err := New(Config{ProxyURL: "http://127.0.0.1:3128", Timeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

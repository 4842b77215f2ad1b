// Package provider defines the two kinds of stream providers, sourcerers and
// embeds, the scope handed to them on each call, and the registry that
// orders them.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sourcery/internal/httputil"
	"sourcery/internal/media"
)

// Kind distinguishes sourcerers from embeds.
type Kind string

const (
	KindSourcerer Kind = "sourcerer"
	KindEmbed     Kind = "embed"
)

// Fetcher is the HTTP capability providers use. *httputil.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts httputil.Options) ([]byte, error)
	FetchFull(ctx context.Context, url string, opts httputil.Options) (*httputil.Response, error)
}

// TitleLookup resolves external ids to a display title for sites that only
// support text search.
type TitleLookup func(ctx context.Context, q media.Query) (string, error)

// Descriptor is the static metadata of a provider.
type Descriptor struct {
	ID   string
	Name string
	// Rank orders trial sequence; higher is tried first.
	Rank  int
	Flags []media.Flag
	// Disabled providers are never invoked. DisabledReason says why.
	Disabled       bool
	DisabledReason error
	// Timeout overrides the orchestrator's per-provider timeout when set.
	Timeout time.Duration
}

// ScrapeFunc resolves a query to streams and/or embed references.
type ScrapeFunc func(ctx context.Context, s *Scope, q media.Query) (*media.Result, error)

// ResolveFunc resolves a single embed URL to streams.
type ResolveFunc func(ctx context.Context, s *Scope, url string) (*media.Result, error)

// Sourcerer is a top-level provider.
type Sourcerer struct {
	Descriptor
	Scrape ScrapeFunc
}

// Embed resolves URLs produced by sourcerers.
type Embed struct {
	Descriptor
	Resolve ResolveFunc
}

// Scope is what a provider sees during one invocation.
type Scope struct {
	Fetcher Fetcher
	// Proxied routes through the configured egress proxy. It falls back to
	// Fetcher when no proxy is configured.
	Proxied Fetcher
	Log     *logrus.Entry

	OnProgress func(percent int)
	Titles     TitleLookup
}

// Progress reports provider-local progress in 0..100.
func (s *Scope) Progress(percent int) {
	if s == nil || s.OnProgress == nil {
		return
	}
	s.OnProgress(max(0, min(100, percent)))
}

// Logger returns the scope's logger, never nil.
func (s *Scope) Logger() *logrus.Entry {
	if s == nil || s.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.Log
}

// Title returns q.Title, asking the title lookup when the query only
// carries external ids.
func (s *Scope) Title(ctx context.Context, q media.Query) (string, error) {
	if q.Title != "" {
		return q.Title, nil
	}
	if s == nil || s.Titles == nil {
		return "", fmt.Errorf("%w: query has no title and no title lookup is configured", media.ErrNotFound)
	}
	return s.Titles(ctx, q)
}

// ProxiedFetcher returns the proxied fetcher, or the direct one without a proxy.
func (s *Scope) ProxiedFetcher() Fetcher {
	if s.Proxied != nil {
		return s.Proxied
	}
	return s.Fetcher
}

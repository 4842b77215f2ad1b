package debrid

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"sourcery/internal/media"
	"sourcery/internal/provider"
)

// ID is the provider id of the debrid sourcerer.
const ID = "debrid"

// Config configures the debrid sourcerer.
type Config struct {
	Addons []string
	Poll   PollConfig
	// Concurrency caps buckets resolved at once.
	Concurrency int
	Rank        int
}

// Sourcerer exposes the debrid workflow as a provider.
type Sourcerer struct {
	cfg Config
	svc Service
}

// NewSourcerer returns the provider for svc. A nil svc, or an error from
// building it, yields a disabled descriptor carrying that reason.
func NewSourcerer(cfg Config, svc Service, svcErr error) provider.Sourcerer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Rank == 0 {
		cfg.Rank = 100
	}
	d := provider.Descriptor{
		ID:      ID,
		Name:    "Debrid",
		Rank:    cfg.Rank,
		Timeout: cfg.Timeout(),
	}
	if svc == nil || svcErr != nil {
		if svcErr == nil {
			svcErr = fmt.Errorf("%w: no debrid service configured", media.ErrConfiguration)
		}
		d.Disabled = true
		d.DisabledReason = svcErr
		return provider.Sourcerer{Descriptor: d}
	}
	d.Name = "Debrid (" + svc.Name() + ")"

	s := &Sourcerer{cfg: cfg, svc: svc}
	return provider.Sourcerer{Descriptor: d, Scrape: s.Scrape}
}

// Timeout is the end-to-end bound for one scrape: every poll of both loops
// plus headroom for addon queries and unrestricting.
func (c Config) Timeout() time.Duration {
	polls := c.Poll.InitialAttempts + c.Poll.MainAttempts
	return time.Duration(polls)*c.Poll.Interval + 30*time.Second
}

type bucketResult struct {
	stream media.Stream
	err    error
	bucket media.Quality
}

// Scrape gathers candidates and resolves each resolution bucket, a few at a
// time. Buckets fail independently. When ctx is canceled the buckets already
// resolved are returned without error.
func (s *Sourcerer) Scrape(ctx context.Context, sc *provider.Scope, q media.Query) (*media.Result, error) {
	log := sc.Logger()

	title, err := sc.Title(ctx, q)
	if err != nil {
		log.WithError(err).Debug("no title for file selection; falling back to largest file")
		title = ""
	}

	cands, err := GatherCandidates(ctx, sc.Fetcher, s.cfg.Addons, q, log)
	if err != nil {
		return nil, err
	}
	sc.Progress(10)
	log.WithField("buckets", len(cands)).Debug("resolving debrid buckets")

	var done atomic.Int32
	resolver := NewResolver(s.svc, s.cfg.Poll, log)
	p := pool.NewWithResults[bucketResult]().WithMaxGoroutines(s.cfg.Concurrency)
	for _, c := range cands {
		p.Go(func() bucketResult {
			defer func() {
				n := done.Add(1)
				sc.Progress(10 + int(n)*90/len(cands))
			}()
			if ctx.Err() != nil {
				return bucketResult{bucket: c.Bucket, err: ctx.Err()}
			}
			stream, err := resolver.Resolve(ctx, c, title)
			return bucketResult{stream: stream, err: err, bucket: c.Bucket}
		})
	}
	results := p.Wait()

	var streams []media.Stream
	var errs []error
	for _, r := range results {
		if r.err != nil {
			if !errors.Is(r.err, context.Canceled) {
				log.WithError(r.err).WithField("bucket", r.bucket).Debug("debrid bucket failed")
			}
			errs = append(errs, fmt.Errorf("%s: %w", r.bucket, r.err))
			continue
		}
		streams = append(streams, r.stream)
	}
	slices.SortStableFunc(streams, func(a, b media.Stream) int {
		qa, _, _ := a.Best()
		qb, _, _ := b.Best()
		return qb.Rank() - qa.Rank()
	})

	if len(streams) > 0 {
		return &media.Result{Streams: streams}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: no debrid bucket resolved: %w", media.ErrNotFound, errors.Join(errs...))
}

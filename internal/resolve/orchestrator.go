// Package resolve walks the provider registry for a query and streams back
// every playable source it finds.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"sourcery/internal/media"
	"sourcery/internal/provider"
)

// DefaultTimeout bounds a single provider invocation.
const DefaultTimeout = 20 * time.Second

// DefaultGrace is how long a provider whose context ended may take to hand
// back what it already resolved.
const DefaultGrace = 2 * time.Second

// Config wires an Orchestrator.
type Config struct {
	Registry *provider.Registry
	Fetcher  provider.Fetcher
	// Proxied is optional; providers fall back to Fetcher without it.
	Proxied provider.Fetcher
	Logger  *logrus.Logger
	Timeout time.Duration
	// Grace bounds the wait for a canceled or timed-out provider to return
	// its partial result. Defaults to DefaultGrace.
	Grace  time.Duration
	Titles provider.TitleLookup
}

// Orchestrator runs resolution passes. It is safe for concurrent use.
type Orchestrator struct {
	reg     *provider.Registry
	fetch   provider.Fetcher
	proxied provider.Fetcher
	log     *logrus.Logger
	timeout time.Duration
	grace   time.Duration
	titles  provider.TitleLookup
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: orchestrator needs a registry", media.ErrConfiguration)
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("%w: orchestrator needs a fetcher", media.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &Orchestrator{
		reg:     cfg.Registry,
		fetch:   cfg.Fetcher,
		proxied: cfg.Proxied,
		log:     cfg.Logger,
		timeout: cfg.Timeout,
		grace:   cfg.Grace,
		titles:  cfg.Titles,
	}, nil
}

// Options tunes one resolution pass.
type Options struct {
	// PreferredProviderIDs are tried first, in rank order among themselves.
	PreferredProviderIDs []string
	// OnProgress receives monotonically non-decreasing percentages.
	OnProgress func(percent int)
}

// Run is one resolution pass in flight. Streams must be consumed, or Wait
// called, for the pass to finish.
type Run struct {
	ID      string
	streams chan media.Stream
	done    chan struct{}
	report  *Report
	err     error
}

// Streams yields streams as providers produce them. The channel is closed
// when the pass ends.
func (r *Run) Streams() <-chan media.Stream {
	return r.streams
}

// Wait blocks until the pass ends and returns its report. Streams not yet
// received from Streams are discarded, though they remain in the report.
// The error is an *ExhaustedError when every provider failed and nothing
// was emitted.
func (r *Run) Wait() (*Report, error) {
	for range r.streams {
	}
	<-r.done
	return r.report, r.err
}

// Resolve starts a pass over the registry for q. The query is validated up
// front; an invalid query yields a run that ends immediately with the error.
func (o *Orchestrator) Resolve(ctx context.Context, q media.Query, opts Options) *Run {
	run := &Run{
		ID:      uuid.NewString(),
		streams: make(chan media.Stream),
		done:    make(chan struct{}),
		report:  &Report{},
	}
	run.report.RunID = run.ID

	p := &pass{
		o:        o,
		q:        q,
		run:      run,
		progress: newProgressTracker(opts.OnProgress),
		log: o.log.WithFields(logrus.Fields{
			"run":   run.ID,
			"query": q.String(),
		}),
	}

	go func() {
		defer close(run.done)
		defer close(run.streams)
		if err := q.Validate(); err != nil {
			run.err = err
			return
		}
		run.err = p.execute(ctx, order(o.reg.Sourcerers(), opts.PreferredProviderIDs))
	}()
	return run
}

// ResolveAll runs a pass to completion and returns its report.
func (o *Orchestrator) ResolveAll(ctx context.Context, q media.Query, opts Options) (*Report, error) {
	return o.Resolve(ctx, q, opts).Wait()
}

// order moves preferred sourcerers to the front, keeping rank order inside
// both groups.
func order(all []provider.Sourcerer, preferred []string) []provider.Sourcerer {
	if len(preferred) == 0 {
		return all
	}
	first, rest := lo.FilterReject(all, func(s provider.Sourcerer, _ int) bool {
		return lo.Contains(preferred, s.ID)
	})
	return append(first, rest...)
}

type pass struct {
	o        *Orchestrator
	q        media.Query
	run      *Run
	progress *progressTracker
	log      *logrus.Entry
}

func (p *pass) execute(ctx context.Context, sourcerers []provider.Sourcerer) error {
	p.log.WithField("providers", len(sourcerers)).Debug("resolution started")
	p.progress.report(0)

	spans := span{lo: 0, hi: 100}.split(len(sourcerers))
	for i, s := range sourcerers {
		if ctx.Err() != nil {
			p.cancel()
			return nil
		}
		if !p.sourcerer(ctx, s, spans[i]) {
			p.cancel()
			return nil
		}
	}

	p.progress.report(100)
	rep := p.run.report
	p.log.WithFields(logrus.Fields{
		"streams":   len(rep.Streams),
		"success":   rep.Count(StatusSuccess),
		"not_found": rep.Count(StatusNotFound),
		"timeout":   rep.Count(StatusTimeout),
		"error":     rep.Count(StatusError),
	}).Info("resolution finished")

	if len(rep.Streams) == 0 {
		return &ExhaustedError{Outcomes: rep.Outcomes}
	}
	return nil
}

func (p *pass) cancel() {
	p.run.report.Canceled = true
	p.log.WithField("streams", len(p.run.report.Streams)).Info("resolution canceled")
}

// sourcerer runs one sourcerer and the embeds it points at. It returns
// false when the pass was canceled.
func (p *pass) sourcerer(ctx context.Context, s provider.Sourcerer, share span) bool {
	scrapeShare, embedShare := span{share.lo, share.lo + (share.hi-share.lo)/2}, span{share.lo + (share.hi-share.lo)/2, share.hi}

	res, out := p.invoke(ctx, s.Descriptor, provider.KindSourcerer, "", scrapeShare,
		func(ctx context.Context, sc *provider.Scope) (*media.Result, error) {
			return s.Scrape(ctx, sc, p.q)
		})
	if out == nil {
		p.salvage(res, s.Descriptor, provider.Descriptor{})
		return false
	}
	if !p.emit(ctx, res.Streams, s.Descriptor, provider.Descriptor{}) {
		return false
	}
	p.progress.report(int(scrapeShare.hi))

	embedShares := embedShare.split(len(res.Embeds))
	for i, ref := range res.Embeds {
		if ctx.Err() != nil {
			return false
		}
		if !p.embed(ctx, s.Descriptor, ref, embedShares[i]) {
			return false
		}
	}
	p.progress.report(int(share.hi))
	return true
}

func (p *pass) embed(ctx context.Context, parent provider.Descriptor, ref media.EmbedRef, share span) bool {
	e, err := p.o.reg.Embed(ref.EmbedID)
	if err != nil {
		p.record(Outcome{ProviderID: ref.EmbedID, Kind: provider.KindEmbed, Parent: parent.ID, Status: StatusNotFound, Err: err})
		p.log.WithFields(logrus.Fields{"provider": ref.EmbedID, "parent": parent.ID}).
			WithError(err).Debug("embed skipped")
		return true
	}

	res, out := p.invoke(ctx, e.Descriptor, provider.KindEmbed, parent.ID, share,
		func(ctx context.Context, sc *provider.Scope) (*media.Result, error) {
			return e.Resolve(ctx, sc, ref.URL)
		})
	if out == nil {
		p.salvage(res, parent, e.Descriptor)
		return false
	}
	if len(res.Embeds) > 0 {
		p.log.WithField("provider", e.ID).Debug("embed returned nested embed references; ignoring them")
	}
	return p.emit(ctx, res.Streams, parent, e.Descriptor)
}

type callResult struct {
	res *media.Result
	err error
}

// invoke calls one provider under its timeout and records the outcome. A nil
// outcome means the pass was canceled; the result then holds only the
// streams the provider returned within the grace period, if any.
func (p *pass) invoke(
	ctx context.Context,
	d provider.Descriptor,
	kind provider.Kind,
	parent string,
	share span,
	call func(context.Context, *provider.Scope) (*media.Result, error),
) (*media.Result, *Outcome) {
	timeout := p.o.timeout
	if d.Timeout > 0 {
		timeout = d.Timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := p.log.WithFields(logrus.Fields{"provider": d.ID, "kind": kind})
	if parent != "" {
		log = log.WithField("parent", parent)
	}

	var active atomic.Bool
	active.Store(true)
	scope := &provider.Scope{
		Fetcher: p.o.fetch,
		Proxied: p.o.proxied,
		Log:     log,
		Titles:  p.o.titles,
		OnProgress: func(percent int) {
			if active.Load() {
				p.progress.report(share.at(percent))
			}
		},
	}

	start := time.Now()
	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callResult{err: fmt.Errorf("provider %s panicked: %v", d.ID, r)}
			}
		}()
		res, err := call(cctx, scope)
		ch <- callResult{res: res, err: err}
	}()

	var cr callResult
	select {
	case cr = <-ch:
	case <-cctx.Done():
		cr = p.late(ch, cctx.Err())
	}
	active.Store(false)

	if ctx.Err() != nil {
		if cr.res == nil || len(cr.res.Streams) == 0 {
			log.Debug("provider interrupted by cancellation")
			return nil, nil
		}
		out := Outcome{
			ProviderID: d.ID, Kind: kind, Parent: parent, Status: StatusSuccess,
			Streams: len(cr.res.Streams), Duration: time.Since(start),
		}
		p.record(out)
		log.WithField("streams", out.Streams).Info("provider canceled; keeping streams it already resolved")
		return &media.Result{Streams: cr.res.Streams}, nil
	}

	out := Outcome{ProviderID: d.ID, Kind: kind, Parent: parent, Duration: time.Since(start)}
	res := cr.res
	if res == nil {
		res = &media.Result{}
	}
	switch {
	case cr.err == nil && res.Empty():
		out.Status = StatusNotFound
		out.Err = fmt.Errorf("%w: %s returned nothing", media.ErrNotFound, d.ID)
	case cr.err == nil:
		out.Status = StatusSuccess
		out.Streams, out.Embeds = len(res.Streams), len(res.Embeds)
	case media.Recoverable(cr.err):
		out.Status = StatusNotFound
		out.Err = cr.err
	case errors.Is(cr.err, context.DeadlineExceeded) || errors.Is(cr.err, media.ErrTimeout):
		out.Status = StatusTimeout
		out.Err = fmt.Errorf("%w: %s after %s: %w", media.ErrTimeout, d.ID, timeout, cr.err)
	default:
		out.Status = StatusError
		out.Err = cr.err
	}
	if out.Status != StatusSuccess {
		res = &media.Result{}
	}
	p.record(out)

	entry := log.WithField("took", out.Duration.Round(time.Millisecond))
	switch out.Status {
	case StatusSuccess:
		entry.WithFields(logrus.Fields{"streams": out.Streams, "embeds": out.Embeds}).Debug("provider succeeded")
	case StatusNotFound:
		entry.WithError(out.Err).Debug("provider found nothing")
	case StatusTimeout:
		entry.Info("provider timed out")
	default:
		entry.WithError(out.Err).Warn("provider failed")
	}
	return res, &out
}

// late waits up to the grace period for a provider whose context ended. A
// provider that returns something in time keeps its result; otherwise the
// call fails with cause.
func (p *pass) late(ch <-chan callResult, cause error) callResult {
	t := time.NewTimer(p.o.grace)
	defer t.Stop()
	select {
	case cr := <-ch:
		if cr.res != nil && !cr.res.Empty() {
			return callResult{res: cr.res}
		}
	case <-t.C:
	}
	return callResult{err: cause}
}

func (p *pass) record(o Outcome) {
	p.run.report.Outcomes = append(p.run.report.Outcomes, o)
}

// emit decorates and sends streams. It returns false when the pass was
// canceled while waiting for the consumer.
func (p *pass) emit(ctx context.Context, streams []media.Stream, src, embed provider.Descriptor) bool {
	for _, s := range p.decorate(streams, src, embed) {
		select {
		case p.run.streams <- s:
			p.run.report.Streams = append(p.run.report.Streams, s)
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// salvage keeps the streams a provider handed back after the pass was
// canceled. They always go into the report; a consumer still reading gets
// them too, for up to the grace period.
func (p *pass) salvage(res *media.Result, src, embed provider.Descriptor) {
	if res == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.Background(), p.o.grace)
	defer cancel()
	for _, s := range p.decorate(res.Streams, src, embed) {
		p.run.report.Streams = append(p.run.report.Streams, s)
		select {
		case p.run.streams <- s:
		case <-wctx.Done():
		}
	}
}

// decorate drops unplayable streams and stamps the rest with their origin.
func (p *pass) decorate(streams []media.Stream, src, embed provider.Descriptor) []media.Stream {
	origin := src
	if embed.ID != "" {
		origin = embed
	}
	out := make([]media.Stream, 0, len(streams))
	for _, s := range streams {
		if !s.Playable() {
			p.log.WithFields(logrus.Fields{"provider": origin.ID, "stream": s.ID}).Debug("dropping unplayable stream")
			continue
		}
		s.SourcererID = src.ID
		s.EmbedID = embed.ID
		s.Flags = lo.Uniq(append(append([]media.Flag{}, s.Flags...), origin.Flags...))
		if s.Captions == nil {
			s.Captions = []media.Caption{}
		}
		out = append(out, s)
	}
	return out
}

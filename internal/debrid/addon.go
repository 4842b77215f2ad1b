package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

type addonResponse struct {
	Streams []addonStream `json:"streams"`
}

type addonStream struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	InfoHash      string         `json:"infoHash"`
	FileIdx       *int           `json:"fileIdx"`
	Seeders       any            `json:"seeders"`
	BehaviorHints map[string]any `json:"behaviorHints"`
}

var (
	reSeeders = regexp.MustCompile(`👤\s*(\d+)`)
	reSize    = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGT]?B)`)
	reHash    = regexp.MustCompile(`(?i)^[0-9a-f]{40}$`)

	// badReleaseTokens mark camera and pre-release copies.
	badReleaseTokens = []string{
		"cam", "camrip", "hdcam", "ts", "hdts", "telesync", "tc", "telecine",
		"scr", "screener", "dvdscr", "bdscr",
	}
	containerTokens = []string{"mp4", "m4v", "mkv", "avi", "wmv", "webm", "flv", "mov"}
)

// addonID builds the Stremio id: the IMDB id, plus :season:episode for shows.
func addonID(q media.Query) (string, string, error) {
	if err := httputil.ValidateIMDBID(q.IMDBID); err != nil {
		return "", "", fmt.Errorf("%w: addons need an IMDB id: %v", media.ErrNotFound, err)
	}
	if q.IsShow() {
		return "series", fmt.Sprintf("%s:%d:%d", q.IMDBID, q.Season, q.Episode), nil
	}
	return "movie", q.IMDBID, nil
}

// GatherCandidates queries every addon concurrently and returns at most one
// candidate per resolution bucket, best bucket first. Addon failures are
// logged; an error is returned only when every addon failed.
func GatherCandidates(ctx context.Context, f provider.Fetcher, addons []string, q media.Query, log *logrus.Entry) ([]Candidate, error) {
	kind, id, err := addonID(q)
	if err != nil {
		return nil, err
	}
	if len(addons) == 0 {
		return nil, fmt.Errorf("%w: no torrent addons configured", media.ErrConfiguration)
	}

	p := pool.NewWithResults[[]Candidate]().WithErrors().WithContext(ctx)
	for _, base := range addons {
		p.Go(func(ctx context.Context) ([]Candidate, error) {
			return queryAddon(ctx, f, base, kind, id)
		})
	}
	results, err := p.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("all torrent addons failed: %w", err)
		}
		log.WithError(err).Warn("some torrent addons failed")
	}

	all := lo.Flatten(results)
	kept := lo.Filter(all, func(c Candidate, _ int) bool { return acceptable(c.Title) })
	log.WithFields(logrus.Fields{"found": len(all), "kept": len(kept)}).Debug("addon candidates filtered")

	buckets := bucketize(kept)
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: no usable torrents for %s", media.ErrNotFound, id)
	}
	return buckets, nil
}

func queryAddon(ctx context.Context, f provider.Fetcher, base, kind, id string) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", strings.TrimRight(base, "/"), kind, url.PathEscape(id))
	body, err := f.Fetch(ctx, endpoint, httputil.Options{Headers: map[string]string{"Accept": "application/json"}})
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("addon %s: %w", httputil.Origin(base), err)
	}

	var resp addonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("addon %s: %w: decode streams: %v", httputil.Origin(base), media.ErrTransport, err)
	}

	source := httputil.Origin(base)
	out := make([]Candidate, 0, len(resp.Streams))
	for _, s := range resp.Streams {
		hash := strings.ToLower(strings.TrimSpace(s.InfoHash))
		if !reHash.MatchString(hash) {
			continue
		}
		release := firstLine(s.Title)
		out = append(out, Candidate{
			Magnet:  buildMagnet(hash, trackers(s.BehaviorHints)),
			Hash:    hash,
			Source:  source,
			Title:   release,
			Bucket:  detectBucket(s.Name, s.Title),
			Seeders: seeders(s.Seeders, s.Title),
			Size:    parseSize(s.Title),
		})
	}
	return out, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

func releaseTokens(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
}

// acceptable rejects camera copies and releases with a non-MP4 container
// hint. Titles without any container hint pass.
func acceptable(title string) bool {
	tokens := releaseTokens(title)
	if lo.Some(tokens, badReleaseTokens) {
		return false
	}
	hints := lo.Intersect(tokens, containerTokens)
	if len(hints) == 0 {
		return true
	}
	return lo.Contains(hints, "mp4") || lo.Contains(hints, "m4v")
}

func detectBucket(name, raw string) media.Quality {
	release := strings.ToLower(name + " " + raw)
	switch {
	case strings.Contains(release, "2160p") || strings.Contains(release, "4k"):
		return media.Quality4K
	case strings.Contains(release, "1080p"):
		return media.Quality1080
	case strings.Contains(release, "720p"):
		return media.Quality720
	case strings.Contains(release, "480p"):
		return media.Quality480
	case strings.Contains(release, "360p"):
		return media.Quality360
	default:
		return media.QualityUnknown
	}
}

// bucketize keeps the best-seeded candidate of each resolution, first seen
// winning ties, ordered best resolution first.
func bucketize(cands []Candidate) []Candidate {
	best := map[media.Quality]Candidate{}
	for _, c := range cands {
		if cur, ok := best[c.Bucket]; !ok || c.Seeders > cur.Seeders {
			best[c.Bucket] = c
		}
	}
	out := lo.Values(best)
	slices.SortFunc(out, func(a, b Candidate) int { return b.Bucket.Rank() - a.Bucket.Rank() })
	return out
}

func trackers(hints map[string]any) []string {
	raw, ok := hints["openTrackers"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func buildMagnet(hash string, trackers []string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToUpper(hash))
	for _, tr := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	return b.String()
}

func seeders(v any, raw string) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	if m := reSeeders.FindStringSubmatch(raw); len(m) == 2 {
		i, _ := strconv.Atoi(m[1])
		return i
	}
	return 0
}

func parseSize(raw string) int64 {
	m := reSize.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	mult := map[string]float64{"B": 1, "KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30, "TB": 1 << 40}
	return int64(v * mult[strings.ToUpper(m[2])])
}

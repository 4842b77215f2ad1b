package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

const defaultFlixHQBase = "https://flixhq.to"

// maxSearchPages limits how many pages of search results to fetch.
const maxSearchPages = 3

// flixServerEmbeds maps server names onto embed ids. Unlisted servers are
// skipped.
var flixServerEmbeds = map[string]string{
	"upcloud":    "upcloud",
	"vidcloud":   "megacloud",
	"megacloud":  "megacloud",
	"akcloud":    "megacloud",
	"mixdrop":    "mixdrop",
	"streamwish": "streamwish",
}

// FlixHQ scrapes a FlixHQ-style catalogue site. It never resolves players
// itself; each server becomes an embed reference.
type FlixHQ struct {
	Base string
}

func (f FlixHQ) base() string {
	if f.Base == "" {
		return defaultFlixHQBase
	}
	return strings.TrimRight(f.Base, "/")
}

// Scrape finds the best matching title and returns one embed reference per
// supported server.
func (f FlixHQ) Scrape(ctx context.Context, sc *provider.Scope, q media.Query) (*media.Result, error) {
	title, err := sc.Title(ctx, q)
	if err != nil {
		return nil, err
	}
	log := sc.Logger()
	// The site blocks some origins; every request to it may go via the proxy.
	fetch := sc.ProxiedFetcher()

	results, err := f.search(ctx, fetch, title)
	if err != nil {
		return nil, err
	}
	match, ok := bestMatch(results, title, q)
	if !ok {
		return nil, fmt.Errorf("%w: no search result matches %q", media.ErrNotFound, title)
	}
	log.WithField("match", match.Path).Debug("flixhq title matched")
	sc.Progress(25)

	servers, err := f.servers(ctx, fetch, match, q)
	if err != nil {
		return nil, err
	}
	sc.Progress(50)

	var refs []media.EmbedRef
	for i, s := range servers {
		embedID, known := flixServerEmbeds[s.Name]
		if !known {
			log.WithField("server", s.Name).Debug("skipping unsupported server")
			continue
		}
		link, err := f.embedLink(ctx, fetch, s.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).WithField("server", s.Name).Debug("no embed link for server")
			continue
		}
		refs = append(refs, media.EmbedRef{EmbedID: embedID, URL: link})
		sc.Progress(50 + (i+1)*50/len(servers))
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no supported servers for %s", media.ErrNotFound, match.Path)
	}
	return &media.Result{Embeds: refs}, nil
}

func (f FlixHQ) fetchDocument(ctx context.Context, fetch provider.Fetcher, u string, ajax bool) (*goquery.Document, error) {
	headers := map[string]string{"Referer": f.base() + "/"}
	if ajax {
		headers["X-Requested-With"] = "XMLHttpRequest"
	}
	body, err := fetch.Fetch(ctx, u, httputil.Options{Headers: headers})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML: %v", media.ErrTransport, err)
	}
	return doc, nil
}

// search fetches up to maxSearchPages result pages. Later pages failing
// keeps what was found so far.
func (f FlixHQ) search(ctx context.Context, fetch provider.Fetcher, title string) ([]flixTitle, error) {
	searchURL := f.base() + "/search/" + httputil.EncodeQuery(title)
	doc, err := f.fetchDocument(ctx, fetch, searchURL, false)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", title, err)
	}
	results := parseSearchResults(doc)

	for page := 2; page <= min(parseLastPage(doc), maxSearchPages); page++ {
		next, err := f.fetchDocument(ctx, fetch, fmt.Sprintf("%s?page=%d", searchURL, page), false)
		if err != nil {
			break
		}
		results = append(results, parseSearchResults(next)...)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no search results for %q", media.ErrNotFound, title)
	}
	return results, nil
}

// bestMatch ranks results of the right kind: exact title first, then year,
// then fuzzy distance.
func bestMatch(results []flixTitle, title string, q media.Query) (flixTitle, bool) {
	type scored struct {
		t     flixTitle
		exact bool
		year  bool
		dist  int
	}
	want := strings.ToLower(strings.TrimSpace(title))

	var cands []scored
	for _, r := range results {
		if r.Show != q.IsShow() {
			continue
		}
		got := strings.ToLower(r.Name)
		dist := fuzzy.RankMatchNormalizedFold(want, got)
		if rev := fuzzy.RankMatchNormalizedFold(got, want); rev >= 0 && (dist < 0 || rev < dist) {
			dist = rev
		}
		if dist < 0 {
			continue
		}
		cands = append(cands, scored{
			t:     r,
			exact: got == want,
			year:  q.Year > 0 && r.Year == q.Year,
			dist:  dist,
		})
	}
	if len(cands) == 0 {
		return flixTitle{}, false
	}

	slices.SortStableFunc(cands, func(a, b scored) int {
		if a.exact != b.exact {
			if a.exact {
				return -1
			}
			return 1
		}
		if a.year != b.year {
			if a.year {
				return -1
			}
			return 1
		}
		return a.dist - b.dist
	})
	return cands[0].t, true
}

func (f FlixHQ) servers(ctx context.Context, fetch provider.Fetcher, t flixTitle, q media.Query) ([]flixServer, error) {
	numID := numericID(t.Path)
	if numID == "" {
		return nil, fmt.Errorf("%w: cannot extract numeric id from %q", media.ErrNotFound, t.Path)
	}

	if !q.IsShow() {
		doc, err := f.fetchDocument(ctx, fetch, f.base()+"/ajax/movie/episodes/"+numID, true)
		if err != nil {
			return nil, fmt.Errorf("getting servers: %w", err)
		}
		return parseServers(doc), nil
	}

	doc, err := f.fetchDocument(ctx, fetch, f.base()+"/ajax/v2/tv/seasons/"+numID, true)
	if err != nil {
		return nil, fmt.Errorf("getting seasons: %w", err)
	}
	season, ok := findNumber(parseSeasons(doc), q.Season)
	if !ok {
		return nil, fmt.Errorf("%w: season %d not listed", media.ErrNotFound, q.Season)
	}
	if err := httputil.ValidateID(season.ID); err != nil {
		return nil, fmt.Errorf("%w: invalid season id: %v", media.ErrNotFound, err)
	}

	doc, err = f.fetchDocument(ctx, fetch, f.base()+"/ajax/v2/season/episodes/"+season.ID, true)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	episode, ok := findNumber(parseEpisodes(doc), q.Episode)
	if !ok {
		return nil, fmt.Errorf("%w: episode %d not listed", media.ErrNotFound, q.Episode)
	}
	if err := httputil.ValidateID(episode.ID); err != nil {
		return nil, fmt.Errorf("%w: invalid episode id: %v", media.ErrNotFound, err)
	}

	doc, err = f.fetchDocument(ctx, fetch, f.base()+"/ajax/v2/episode/servers/"+episode.ID, true)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	return parseServers(doc), nil
}

func findNumber(items []flixItem, n int) (flixItem, bool) {
	for _, it := range items {
		if it.Number == n {
			return it, true
		}
	}
	return flixItem{}, false
}

// embedLink asks the site for the player URL of a server.
func (f FlixHQ) embedLink(ctx context.Context, fetch provider.Fetcher, serverID string) (string, error) {
	if err := httputil.ValidateID(serverID); err != nil {
		return "", fmt.Errorf("%w: invalid server id: %v", media.ErrNotFound, err)
	}
	body, err := fetch.Fetch(ctx, f.base()+"/ajax/episode/sources/"+serverID, httputil.Options{
		Headers: map[string]string{"X-Requested-With": "XMLHttpRequest", "Referer": f.base() + "/"},
	})
	if err != nil {
		return "", err
	}
	// {"type":"iframe","link":"https://...","sources":[],"tracks":[],"title":""}
	var out struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decoding embed link: %v", media.ErrTransport, err)
	}
	if httputil.ValidateURL(out.Link) != nil {
		return "", fmt.Errorf("%w: server %s has no https player link", media.ErrNotFound, serverID)
	}
	return out.Link, nil
}

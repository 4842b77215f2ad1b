package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

const defaultPlayerKeysURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

var reEmbedPrefix = regexp.MustCompile(`^embed-\d+$`)

// MegaCloud resolves megacloud-family player URLs (MegaCloud, UpCloud and
// their mirrors) into HLS streams.
type MegaCloud struct {
	id      string
	keysURL string

	mu        sync.Mutex
	playerKey string
}

// NewMegaCloud returns the resolver for embed id. keysURL points at the JSON
// document publishing the current player key; empty uses the public one.
func NewMegaCloud(id, keysURL string) *MegaCloud {
	if keysURL == "" {
		keysURL = defaultPlayerKeysURL
	}
	return &MegaCloud{id: id, keysURL: keysURL}
}

type megaSources struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []megaTrack     `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type megaTrack struct {
	File    string `json:"file"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Default bool   `json:"default"`
}

type megaSource struct {
	File string `json:"file"`
	Type string `json:"type"`
}

// splitEmbedURL returns host, embed prefix and source id of a player URL such
// as https://host/embed-1/v3/e-1/AbCdEf?z=.
func splitEmbedURL(embedURL string) (host, prefix, id string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: parsing embed URL: %v", media.ErrNotFound, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	prefix = parts[0]
	if !reEmbedPrefix.MatchString(prefix) {
		prefix = "embed-2"
	}
	id = parts[len(parts)-1]
	if id == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("%w: no source id in %s", media.ErrNotFound, httputil.RedactURL(embedURL))
	}
	return u.Host, prefix, id, nil
}

// Resolve fetches the player page for its client key, asks getSources for
// the playlist and decrypts it when needed.
func (m *MegaCloud) Resolve(ctx context.Context, sc *provider.Scope, embedURL string) (*media.Result, error) {
	host, prefix, id, err := splitEmbedURL(embedURL)
	if err != nil {
		return nil, err
	}
	origin := "https://" + host
	// The player host filters origins; the published key list does not.
	f := sc.ProxiedFetcher()

	page, err := f.Fetch(ctx, fmt.Sprintf("%s/%s/v3/e-1/%s?z=", origin, prefix, id), httputil.Options{
		Headers: map[string]string{"Referer": "https://flixhq.to/"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching player page: %w", err)
	}
	key, err := clientKey(string(page))
	if err != nil {
		return nil, err
	}
	sc.Progress(30)

	body, err := f.Fetch(ctx, origin+"/"+prefix+"/v3/e-1/getSources", httputil.Options{
		Query: url.Values{"id": {id}, "_k": {key}},
		Headers: map[string]string{
			"Referer":          embedURL,
			"Accept":           "application/json",
			"X-Requested-With": "XMLHttpRequest",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching sources: %w", err)
	}

	var resp megaSources
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding sources: %v", media.ErrDeobfuscation, err)
	}
	sc.Progress(60)

	sources, err := m.sources(ctx, sc, resp, key)
	if err != nil {
		return nil, err
	}
	playlist := ""
	for _, s := range sources {
		if s.File != "" {
			playlist = s.File
			break
		}
	}
	if playlist == "" {
		return nil, fmt.Errorf("%w: player returned no sources", media.ErrNotFound)
	}

	stream := media.NewHLSStream(m.id, playlist)
	stream.Headers = map[string]string{"Referer": origin + "/", "Origin": origin}
	stream.Captions = tracksToCaptions(resp.Tracks)
	return &media.Result{Streams: []media.Stream{stream}}, nil
}

func (m *MegaCloud) sources(ctx context.Context, sc *provider.Scope, resp megaSources, key string) ([]megaSource, error) {
	var out []megaSource
	if !resp.Encrypted {
		if err := json.Unmarshal(resp.Sources, &out); err != nil {
			return nil, fmt.Errorf("%w: plaintext sources: %v", media.ErrDeobfuscation, err)
		}
		return out, nil
	}

	var payload string
	if err := json.Unmarshal(resp.Sources, &payload); err != nil {
		return nil, fmt.Errorf("%w: encrypted sources are not a string: %v", media.ErrDecryption, err)
	}
	playerKey, err := m.loadPlayerKey(ctx, sc.Fetcher)
	if err != nil {
		return nil, err
	}
	plain, err := decryptSources(payload, key, playerKey)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(plain), &out); err != nil {
		return nil, fmt.Errorf("%w: decrypted sources: %v", media.ErrDecryption, err)
	}
	return out, nil
}

// loadPlayerKey fetches the published player key once and caches it.
func (m *MegaCloud) loadPlayerKey(ctx context.Context, f provider.Fetcher) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playerKey != "" {
		return m.playerKey, nil
	}

	body, err := f.Fetch(ctx, m.keysURL, httputil.Options{Headers: map[string]string{"Accept": "application/json"}})
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return "", fmt.Errorf("%w: player key document missing: %v", media.ErrDecryption, err)
		}
		return "", fmt.Errorf("fetching player keys: %w", err)
	}
	var keys map[string]string
	if err := json.Unmarshal(body, &keys); err != nil {
		return "", fmt.Errorf("%w: decoding player keys: %v", media.ErrDecryption, err)
	}
	key := keys["mega"]
	if key == "" {
		return "", fmt.Errorf("%w: player key not published", media.ErrDecryption)
	}
	m.playerKey = key
	return key, nil
}

func tracksToCaptions(tracks []megaTrack) []media.Caption {
	captions := []media.Caption{}
	for _, t := range tracks {
		if t.Kind != "captions" || t.File == "" {
			continue
		}
		captions = append(captions, media.Caption{
			Type:     captionType(t.File),
			URL:      t.File,
			Language: t.Label,
		})
	}
	return captions
}

// captionType derives "srt" or "vtt" from a subtitle URL, defaulting to vtt.
func captionType(rawURL string) string {
	u, _, _ := strings.Cut(rawURL, "?")
	if strings.EqualFold(path.Ext(u), ".srt") {
		return "srt"
	}
	return "vtt"
}
